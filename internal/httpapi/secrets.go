package httpapi

import (
	"github.com/gin-gonic/gin"
)

type setSecretRequest struct {
	Key         string `json:"key" binding:"required"`
	Value       string `json:"value" binding:"required"`
	Description string `json:"description"`
}

// listSecrets handles GET /projects/:pid/secrets, returning metadata only --
// plaintext values never leave the Secret Service.
func (s *Server) listSecrets(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}
	list, err := s.Secrets.List(c.Request.Context(), pid)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, list)
}

// setSecret handles POST /projects/:pid/secrets.
func (s *Server) setSecret(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}

	var req setSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	meta, err := s.Secrets.Set(c.Request.Context(), pid, req.Key, req.Value, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, meta)
}

// getSecretMetadata handles GET /projects/:pid/secrets/:key -- metadata only,
// never the decrypted value.
func (s *Server) getSecretMetadata(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}
	key := c.Param("key")

	list, err := s.Secrets.List(c.Request.Context(), pid)
	if err != nil {
		fail(c, err)
		return
	}
	for _, meta := range list {
		if meta.Key == key {
			ok(c, 200, meta)
			return
		}
	}
	fail(c, errNotFound)
}

// deleteSecret handles DELETE /projects/:pid/secrets/:key.
func (s *Server) deleteSecret(c *gin.Context) {
	pid, okParam := requireProjectID(c)
	if !okParam {
		return
	}
	if err := s.Secrets.Delete(c.Request.Context(), pid, c.Param("key")); err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, gin.H{"deleted": true})
}
