// Package httpapi implements the documented HTTP surface (§6): handler
// functions and DTOs mountable on any router. Wired here to gin-gonic/gin,
// the way codeready-toolchain-tarsy's pkg/api package shapes its Server
// struct and gin.Context handlers -- the routing layer itself is an
// out-of-scope external collaborator, but something has to mount the
// handlers for cmd/nexus-core's `serve` subcommand to be runnable.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/nexuscore/nexus-core/internal/nexuserr"
)

// envelope is the documented {success, data|error{code,message,statusCode}}
// response shape every handler in this package returns.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

// fail writes err as the documented error envelope, classifying it through
// nexuserr so every handler maps errors the same way regardless of which
// collaborator produced them.
func fail(c *gin.Context, err error) {
	status := nexuserr.StatusOf(err)
	c.JSON(status, envelope{
		Success: false,
		Error: &errorBody{
			Code:       string(nexuserr.CodeOf(err)),
			Message:    err.Error(),
			StatusCode: status,
		},
	})
}

// badRequest is for request-shape errors (bad JSON, missing path param)
// that never reach a collaborator and so never produced a *nexuserr.Error.
func badRequest(c *gin.Context, message string) {
	fail(c, nexuserr.New(nexuserr.CodeValidation, message))
}
