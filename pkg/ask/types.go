// Package ask is the client side of the question-answering backend contract:
// POST /ask with the prior conversation, a JSON reply with optional
// attachments.
package ask

import (
	"errors"

	"github.com/nstogner/ragchat/pkg/store"
)

var (
	// ErrStatus is returned for any non-2xx response.
	ErrStatus = errors.New("unexpected status from backend")
	// ErrMalformedResponse is returned when the body is not a valid reply.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// Turn is one prior message reduced to what the backend needs.
// Attachments are never sent upstream.
type Turn struct {
	Role    store.MessageRole `json:"role"`
	Content string            `json:"content"`
}

type Request struct {
	Text         string `json:"text"`
	Conversation []Turn `json:"conversation"`
	UserID       string `json:"user_id,omitempty"`
}

type Response struct {
	Response    string             `json:"response"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
}

// TurnsOf reduces messages to turns, oldest first. The result is never nil so
// it always encodes as a JSON array.
func TurnsOf(msgs []store.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}
