package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nstogner/ragchat/pkg/logging"
	"github.com/nstogner/ragchat/pkg/store"
)

func TestClient_Ask(t *testing.T) {
	var gotAuth string
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ask" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"GDP is rising.","attachments":[{"type":"image","source":"https://x/y.png","series_id":"GDP"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	resp, err := c.Ask(context.Background(), "tok-123", Request{
		Text:         "How is GDP?",
		Conversation: []Turn{{Role: store.RoleUser, Content: "hi"}, {Role: store.RoleAssistant, Content: "hello"}},
		UserID:       "u1",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got.Text != "How is GDP?" || len(got.Conversation) != 2 || got.UserID != "u1" {
		t.Errorf("request = %+v", got)
	}
	if resp.Response != "GDP is rising." {
		t.Errorf("Response = %q", resp.Response)
	}
	want := store.Attachment{Type: store.AttachmentImage, Source: "https://x/y.png", SeriesID: "GDP"}
	if len(resp.Attachments) != 1 || resp.Attachments[0] != want {
		t.Errorf("Attachments = %+v", resp.Attachments)
	}
}

func TestClient_AnonymousRequest(t *testing.T) {
	var raw map[string]any
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Ask(context.Background(), "", Request{Text: "q"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if hasAuth {
		t.Error("Authorization header sent without a token")
	}
	if conv, ok := raw["conversation"].([]any); !ok || len(conv) != 0 {
		t.Errorf("conversation = %#v, want empty array", raw["conversation"])
	}
	if _, ok := raw["user_id"]; ok {
		t.Error("user_id sent for anonymous request")
	}
	if resp.Response != "ok" || resp.Attachments != nil {
		t.Errorf("resp = %+v", resp)
	}
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, ErrStatus},
		{"unauthorized", http.StatusUnauthorized, `{}`, ErrStatus},
		{"not json", http.StatusOK, `<html>`, ErrMalformedResponse},
		{"missing response", http.StatusOK, `{"answer":"x"}`, ErrMalformedResponse},
		{"bad attachments", http.StatusOK, `{"response":"x","attachments":"nope"}`, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Ask(context.Background(), "", Request{Text: "q"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL).Ask(ctx, "", Request{Text: "q"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestRedact(t *testing.T) {
	dump := "POST /ask HTTP/1.1\r\nAuthorization: Bearer secret\r\nContent-Type: application/json\r\n\r\n{}"
	out := redact([]byte(dump))
	if want := "Authorization: [redacted]\r\n"; !strings.Contains(out, want) {
		t.Errorf("redact = %q", out)
	}
	if strings.Contains(out, "secret") {
		t.Error("token leaked into dump")
	}
}

func TestTraceTransport_StreamBodyNotDumped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "sse" {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte("data: streamed-chunk\n\n"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"plain":"buffered-body"}`))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&logs, logging.LevelTrace))
	defer slog.SetDefault(prev)

	hc := &http.Client{Transport: &TraceTransport{Name: "Test"}}
	get := func(url string) string {
		t.Helper()
		resp, err := hc.Get(url)
		if err != nil {
			t.Fatalf("GET %s: %v", url, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		return string(body)
	}

	if body := get(srv.URL + "/stream?alt=sse"); !strings.Contains(body, "streamed-chunk") {
		t.Errorf("stream body = %q", body)
	}
	if strings.Contains(logs.String(), "streamed-chunk") {
		t.Error("stream body was dumped to the trace log")
	}

	if body := get(srv.URL + "/plain"); !strings.Contains(body, "buffered-body") {
		t.Errorf("plain body = %q", body)
	}
	if !strings.Contains(logs.String(), "buffered-body") {
		t.Error("non-stream body missing from the trace log")
	}
}
