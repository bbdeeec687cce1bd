package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/pkg/models"
)

type createProjectRequest struct {
	Name        string             `json:"name" binding:"required"`
	Owner       string             `json:"owner" binding:"required"`
	Environment models.Environment `json:"environment"`
	Tags        []string           `json:"tags,omitempty"`
	AgentConfig models.AgentConfig `json:"agent_config"`
}

// listProjects handles GET /projects.
func (s *Server) listProjects(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 50
	}

	projects, err := s.Projects.List(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, projects)
}

// createProject handles POST /projects.
func (s *Server) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Environment == "" {
		req.Environment = models.EnvironmentDevelopment
	}

	now := s.now()
	project := &models.Project{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Owner:       req.Owner,
		Environment: req.Environment,
		Tags:        req.Tags,
		AgentConfig: req.AgentConfig,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Projects.Create(c.Request.Context(), project); err != nil {
		fail(c, err)
		return
	}
	ok(c, 201, project)
}

// getProject handles GET /projects/:id.
func (s *Server) getProject(c *gin.Context) {
	project, err := s.Projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if project == nil {
		fail(c, errNotFound)
		return
	}
	ok(c, 200, project)
}

// updateProject handles PUT /projects/:id.
func (s *Server) updateProject(c *gin.Context) {
	id := c.Param("id")
	existing, err := s.Projects.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if existing == nil {
		fail(c, errNotFound)
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	existing.Name = req.Name
	existing.Owner = req.Owner
	if req.Environment != "" {
		existing.Environment = req.Environment
	}
	existing.Tags = req.Tags
	existing.AgentConfig = req.AgentConfig
	existing.UpdatedAt = s.now()

	if err := s.Projects.Update(c.Request.Context(), existing); err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, existing)
}
