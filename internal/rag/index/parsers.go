package index

import (
	"sync"

	"github.com/nexuscore/nexus-core/internal/rag/parser/markdown"
	"github.com/nexuscore/nexus-core/internal/rag/parser/text"
)

var registerParsersOnce sync.Once

func ensureDefaultParsers() {
	registerParsersOnce.Do(func() {
		markdown.Register()
		text.Register()
	})
}
