package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/nstogner/ragchat/pkg/ask"
	"github.com/nstogner/ragchat/pkg/auth"
	"github.com/nstogner/ragchat/pkg/store"
)

// ErrorReply is the assistant message recorded when the backend call fails.
const ErrorReply = "Error connecting to backend"

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrInFlight     = errors.New("a request is already in flight")

	errNoResponse = errors.New("backend returned no response")
)

// Credentials supplies the session attached to each request.
type Credentials interface {
	Current() auth.Session
}

// Backend answers one question given the prior conversation.
type Backend interface {
	Ask(ctx context.Context, token string, req ask.Request) (*ask.Response, error)
}

// Runner drives one request/response cycle per submitted message. At most
// one request is outstanding at a time.
type Runner struct {
	creds   Credentials
	conv    *store.Conversation
	backend Backend
	timeout time.Duration

	mu      sync.Mutex
	loading bool
	subs    []chan bool
}

type Option func(*Runner)

// WithTimeout bounds each backend call. Expiry is handled like any other
// transport failure. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

func New(creds Credentials, conv *store.Conversation, backend Backend, opts ...Option) *Runner {
	r := &Runner{
		creds:   creds,
		conv:    conv,
		backend: backend,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit records text as a user message, asks the backend and records the
// reply. Empty input and submissions made while a request is in flight are
// rejected without touching the conversation. Backend failures never
// surface as errors: they are recorded as an ErrorReply message, which is
// returned like any other reply.
func (r *Runner) Submit(ctx context.Context, text string) (store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return store.Message{}, ErrEmptyMessage
	}
	if !r.setLoading(true) {
		return store.Message{}, ErrInFlight
	}
	defer r.setLoading(false)

	prior := r.conv.Snapshot()
	r.conv.Append(ctx, store.Message{Role: store.RoleUser, Content: text})

	req, token := r.buildRequest(prior, text)
	resp, err := r.call(ctx, token, req)
	if err != nil {
		slog.Error("Ask request failed", "error", err)
		return r.conv.Append(ctx, store.Message{Role: store.RoleAssistant, Content: ErrorReply}), nil
	}
	return r.conv.Append(ctx, replyMessage(resp)), nil
}

// Loading reports whether a request is in flight.
func (r *Runner) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Subscribe returns a channel that receives every loading transition.
// Slow readers see only the most recent value.
func (r *Runner) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}

func (r *Runner) call(ctx context.Context, token string, req ask.Request) (*ask.Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := r.backend.Ask(ctx, token, req)
	if err == nil && resp == nil {
		return nil, errNoResponse
	}
	return resp, err
}

// setLoading flips the loading flag. Setting it when already set fails.
func (r *Runner) setLoading(v bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v && r.loading {
		return false
	}
	r.loading = v
	for _, ch := range r.subs {
		// Drop a stale value so the newest transition is always delivered.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	return true
}
