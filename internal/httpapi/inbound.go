package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nexuscore/nexus-core/pkg/models"
)

type receiveInboundRequest struct {
	ProjectID               string         `json:"project_id" binding:"required"`
	SenderIdentifier        string         `json:"sender_identifier" binding:"required"`
	SenderName              string         `json:"sender_name,omitempty"`
	Content                 string         `json:"content" binding:"required"`
	ChannelMessageID        string         `json:"channel_message_id,omitempty"`
	MediaURLs               []string       `json:"media_urls,omitempty"`
	ReplyToChannelMessageID string         `json:"reply_to_channel_message_id,omitempty"`
	RawPayload              map[string]any `json:"raw_payload,omitempty"`
}

// receiveInbound handles POST /inbound/:channel, the delivery endpoint a
// channel adapter (or its own webhook receiver) calls once it has parsed a
// platform-native update into the shape Process needs. This is the
// synchronous sibling of triggerWebhook: that one fires a stored automation
// prompt, this one runs a live conversational turn.
func (s *Server) receiveInbound(c *gin.Context) {
	if s.Inbound == nil {
		fail(c, errNotFound)
		return
	}

	var req receiveInboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := s.Inbound.Process(c.Request.Context(), models.InboundMessage{
		ID:                      uuid.NewString(),
		ProjectID:               req.ProjectID,
		Channel:                 c.Param("channel"),
		ChannelMessageID:        req.ChannelMessageID,
		SenderIdentifier:        req.SenderIdentifier,
		SenderName:              req.SenderName,
		Content:                 req.Content,
		MediaURLs:               req.MediaURLs,
		ReplyToChannelMessageID: req.ReplyToChannelMessageID,
		RawPayload:              req.RawPayload,
		ReceivedAt:              time.Now(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, 200, result)
}
