package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/pkg/models"
)

type createPromptLayerRequest struct {
	LayerType    models.PromptLayerType `json:"layer_type" binding:"required"`
	Content      string                 `json:"content" binding:"required"`
	CreatedBy    string                 `json:"created_by"`
	ChangeReason string                 `json:"change_reason"`
}

// listPromptLayers handles GET /projects/:pid/prompt-layers, returning every
// version for the layer type named in the ?type= query param.
func (s *Server) listPromptLayers(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}
	layerType := models.PromptLayerType(c.Query("type"))
	if layerType == "" {
		badRequest(c, "type query parameter is required")
		return
	}

	versions, err := s.PromptLayers.ListVersions(c.Request.Context(), pid, layerType)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, versions)
}

// createPromptLayer handles POST /projects/:pid/prompt-layers.
func (s *Server) createPromptLayer(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}

	var req createPromptLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	layer := &models.PromptLayer{
		ID:           uuid.NewString(),
		ProjectID:    pid,
		LayerType:    req.LayerType,
		Content:      req.Content,
		CreatedBy:    req.CreatedBy,
		ChangeReason: req.ChangeReason,
		CreatedAt:    s.now(),
	}
	if err := s.PromptLayers.Create(c.Request.Context(), layer); err != nil {
		fail(c, err)
		return
	}
	ok(c, 201, layer)
}

// getActivePromptLayers handles GET /projects/:pid/prompt-layers/active,
// returning the currently active layer for each of the three layer types.
func (s *Server) getActivePromptLayers(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}

	layerTypes := []models.PromptLayerType{models.LayerIdentity, models.LayerInstructions, models.LayerSafety}
	active := make(map[models.PromptLayerType]*models.PromptLayer, len(layerTypes))
	for _, lt := range layerTypes {
		layer, err := s.PromptLayers.GetActive(c.Request.Context(), pid, lt)
		if err != nil {
			fail(c, err)
			return
		}
		active[lt] = layer
	}
	ok(c, 200, active)
}

// activatePromptLayer handles POST /prompt-layers/:id/activate.
func (s *Server) activatePromptLayer(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		badRequest(c, "layer id is required")
		return
	}
	if err := s.PromptLayers.Activate(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	layer, err := s.PromptLayers.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, layer)
}
