package webhook

import (
	"encoding/json"
	"regexp"

	"github.com/tidwall/gjson"
)

// tokenPattern matches Mustache-style {{dot.path}} placeholders.
var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\[\]]+)\s*\}\}`)

// ExpandTemplate resolves every {{dot.path}} token in tpl against payload
// (raw JSON bytes). A path that resolves to an object or array is rendered
// as its JSON text; a path that doesn't exist renders as the empty string,
// matching the permissive resolution Discord/Slack embed templating uses in
// the channel adapters.
func ExpandTemplate(tpl string, payload []byte) string {
	return tokenPattern.ReplaceAllStringFunc(tpl, func(token string) string {
		path := tokenPattern.FindStringSubmatch(token)[1]
		result := gjson.GetBytes(payload, path)
		if !result.Exists() {
			return ""
		}
		if result.IsObject() || result.IsArray() {
			raw, err := json.Marshal(result.Value())
			if err != nil {
				return result.Raw
			}
			return string(raw)
		}
		return result.String()
	})
}
