package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/nexuscore/nexus-core/pkg/models"
)

type resolveApprovalRequest struct {
	Decision models.ApprovalStatus `json:"decision" binding:"required"`
	By       string                `json:"by"`
	Note     string                `json:"note"`
}

// listApprovals handles GET /approvals?project_id=.
func (s *Server) listApprovals(c *gin.Context) {
	pid := c.Query("project_id")
	if pid == "" {
		badRequest(c, "project_id query parameter is required")
		return
	}
	pending, err := s.Approvals.ListPending(c.Request.Context(), pid)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, pending)
}

// resolveApproval handles POST /approvals/:id/resolve.
func (s *Server) resolveApproval(c *gin.Context) {
	id := c.Param("id")

	var req resolveApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	resolved, err := s.Approvals.Resolve(c.Request.Context(), id, req.Decision, req.By, req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, resolved)
}
