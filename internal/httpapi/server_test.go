package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nexuscore/nexus-core/internal/store"
)

// Every Postgres-backed store from internal/store must satisfy the narrow
// interface this package declares, with no adapter layer in between --
// mirrors internal/store/store_test.go's own assertions for the interfaces
// that package's consumers declare.
var (
	_ ProjectStore       = (*store.ProjectStore)(nil)
	_ PromptLayerStore   = (*store.PromptLayerStore)(nil)
	_ SessionStore       = (*store.SessionStore)(nil)
	_ MessageStore       = (*store.MessageStore)(nil)
	_ ScheduledTaskStore = (*store.ScheduledTaskStore)(nil)
	_ WebhookStore       = (*store.WebhookStore)(nil)
)

func TestHealth_ReturnsOK(t *testing.T) {
	s := NewServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got == "" {
		t.Fatal("expected a non-empty response body")
	}
}

func TestRequireProjectID_RejectsEmptyParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if _, ok := requireProjectID(c); ok {
		t.Fatal("expected requireProjectID to fail with no :pid param set")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
