package runner

import (
	"log/slog"
	"slices"

	"github.com/nstogner/ragchat/pkg/ask"
	"github.com/nstogner/ragchat/pkg/auth"
	"github.com/nstogner/ragchat/pkg/store"
)

// buildRequest serializes the conversation as it stood before text was
// submitted. The credential is read here, so a session change after this
// point does not affect a request already sent.
func (r *Runner) buildRequest(prior []store.Message, text string) (ask.Request, string) {
	req := ask.Request{
		Text:         text,
		Conversation: ask.TurnsOf(prior),
	}

	var sess auth.Session
	if r.creds != nil {
		sess = r.creds.Current()
	}
	if !sess.Authenticated() {
		slog.Debug("Sending anonymous request", "turns", len(req.Conversation))
		return req, ""
	}
	req.UserID = sess.UserID
	return req, sess.AccessToken
}

// replyMessage converts a backend response into an assistant message.
func replyMessage(resp *ask.Response) store.Message {
	return store.Message{
		Role:        store.RoleAssistant,
		Content:     resp.Response,
		Attachments: slices.Clone(resp.Attachments),
	}
}
