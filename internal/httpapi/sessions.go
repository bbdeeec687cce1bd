package httpapi

import (
	"github.com/gin-gonic/gin"
)

// listSessions handles GET /projects/:pid/sessions.
func (s *Server) listSessions(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}
	sessions, err := s.Sessions.ListByProject(c.Request.Context(), pid)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, sessions)
}

// listMessages handles GET /sessions/:id/messages.
func (s *Server) listMessages(c *gin.Context) {
	id := c.Param("id")
	session, err := s.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if session == nil {
		fail(c, errNotFound)
		return
	}
	messages, err := s.Messages.ListBySession(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, messages)
}
