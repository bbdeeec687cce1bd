package httpapi

import (
	"github.com/gin-gonic/gin"
)

// getTrace handles GET /traces/:id.
func (s *Server) getTrace(c *gin.Context) {
	t, err := s.Traces.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if t == nil {
		fail(c, errNotFound)
		return
	}
	ok(c, 200, t)
}
