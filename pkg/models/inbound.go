package models

import "time"

// InboundMessage is the unified shape every channel adapter normalizes its
// platform payload into before handing it to the Inbound Processor.
type InboundMessage struct {
	ID                      string         `json:"id"`
	ProjectID               string         `json:"project_id"`
	Channel                 string         `json:"channel"`
	ChannelMessageID        string         `json:"channel_message_id"`
	SenderIdentifier        string         `json:"sender_identifier"`
	SenderName              string         `json:"sender_name,omitempty"`
	Content                 string         `json:"content"`
	MediaURLs               []string       `json:"media_urls,omitempty"`
	ReplyToChannelMessageID string         `json:"reply_to_channel_message_id,omitempty"`
	RawPayload              map[string]any `json:"raw_payload,omitempty"`
	ReceivedAt              time.Time      `json:"received_at"`
}

// OutboundMessage is what the Inbound Processor hands back to a Channel
// Resolver adapter for delivery on the originating channel.
type OutboundMessage struct {
	Channel            string   `json:"channel"`
	RecipientIdentifier string  `json:"recipient_identifier"`
	Content            string   `json:"content"`
	MediaURLs          []string `json:"media_urls,omitempty"`
	InReplyToChannelID string   `json:"in_reply_to_channel_id,omitempty"`
}
