package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/nstogner/ragchat/pkg/ask"
)

// SystemPrompt is sent to models that accept a system instruction.
const SystemPrompt = "You are a helpful assistant answering questions about economic data. " +
	"Please strictly use Markdown for all your responses."

// AnswerModel produces a reply to text given the prior conversation.
type AnswerModel interface {
	Answer(ctx context.Context, history []ask.Turn, text string) (string, error)
}

// Echo answers without calling any model. It lets the reference backend run
// without credentials.
type Echo struct{}

func (Echo) Answer(_ context.Context, history []ask.Turn, text string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Echo: %s", text)
	if len(history) > 0 {
		fmt.Fprintf(&sb, "\n\n_%d earlier messages in this conversation._", len(history))
	}
	return sb.String(), nil
}
