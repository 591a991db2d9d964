package ask

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"regexp"
	"strings"

	"github.com/nstogner/ragchat/pkg/logging"
)

// TraceTransport dumps every request and response when the default logger
// is enabled at logging.LevelTrace.
type TraceTransport struct {
	Base http.RoundTripper
	// Name prefixes the log messages, e.g. "Backend" or "Gemini".
	Name string
}

func (t *TraceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if !slog.Default().Enabled(req.Context(), logging.LevelTrace) {
		return base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		slog.Log(req.Context(), logging.LevelTrace, "Failed to dump request", "name", t.Name, "error", err)
	} else {
		slog.Log(req.Context(), logging.LevelTrace, t.Name+" HTTP request", "url", req.URL.String(), "dump", redact(reqDump))
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Streamed bodies are left alone so the caller reads them as they arrive.
	stream := isStream(req, resp)
	respDump, err := httputil.DumpResponse(resp, !stream)
	if err != nil {
		slog.Log(req.Context(), logging.LevelTrace, "Failed to dump response", "name", t.Name, "error", err)
	} else {
		slog.Log(req.Context(), logging.LevelTrace, t.Name+" HTTP response", "status", resp.StatusCode, "isStream", stream, "dump", string(respDump))
	}
	return resp, nil
}

// isStream reports a server-sent event response. Gemini streaming asks for
// alt=sse; other servers announce text/event-stream.
func isStream(req *http.Request, resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")
}

var secretHeader = regexp.MustCompile(`(?im)^(Authorization|X-Goog-Api-Key):.*$`)

// redact blanks credential headers in a request dump.
func redact(dump []byte) string {
	return string(secretHeader.ReplaceAll(dump, []byte("$1: [redacted]\r")))
}
