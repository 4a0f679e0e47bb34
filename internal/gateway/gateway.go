package gateway

import (
	"context"
	"errors"
	"strings"
)

// Media kinds accepted by the gateway.
const (
	MediaImage    = "image"
	MediaAudio    = "audio"
	MediaVideo    = "video"
	MediaDocument = "document"
)

// ErrInvalidMessage is returned when a message has no recipient or content.
var ErrInvalidMessage = errors.New("gateway: message requires a recipient and a body or media")

// Message is an outbound WhatsApp message.
type Message struct {
	To        string `json:"number"`
	Text      string `json:"body,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Caption   string `json:"caption,omitempty"`
	FileName  string `json:"file_name,omitempty"`
}

// Kind labels the message for metrics: "media" or "text".
func (m Message) Kind() string {
	if m.MediaURL != "" {
		return "media"
	}
	return "text"
}

// Validate checks the message can be delivered.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrInvalidMessage
	}
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.MediaURL) == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers messages on behalf of a company and returns the gateway message id.
type Sender interface {
	Send(ctx context.Context, companyID string, msg Message) (string, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, companyID string, msg Message) (string, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, companyID string, msg Message) (string, error) {
	return f(ctx, companyID, msg)
}
