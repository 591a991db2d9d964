package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/nstogner/ragchat/pkg/ask"
	"github.com/nstogner/ragchat/pkg/models"
	"github.com/nstogner/ragchat/pkg/store"
)

var ErrEmptyAnswer = errors.New("gemini returned no text")

// GeminiModel implements models.AnswerModel using the Google Gemini API.
type GeminiModel struct {
	client    *genai.Client
	modelName string
}

var _ models.AnswerModel = (*GeminiModel)(nil)

// New creates a GeminiModel that answers with modelName.
func New(ctx context.Context, apiKey, modelName string) (*GeminiModel, error) {
	httpClient := &http.Client{
		Transport: &apiKeyTransport{
			base:   &ask.TraceTransport{Base: http.DefaultTransport, Name: "Gemini"},
			apiKey: apiKey,
		},
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiModel{client: client, modelName: modelName}, nil
}

// apiKeyTransport adds the key header. Passing a custom http.Client bypasses
// the library's own key injection.
type apiKeyTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}
	return t.base.RoundTrip(req)
}

// Close releases resources.
func (m *GeminiModel) Close() {
	m.client.Close()
}

// List returns available models.
func (m *GeminiModel) List(ctx context.Context) ([]string, error) {
	iter := m.client.ListModels(ctx)
	var names []string
	for {
		model, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		slog.Debug("Found Gemini model", "name", model.Name)
		names = append(names, model.Name)
	}
	return names, nil
}

// Answer replays history as a chat and sends text as the next user turn.
func (m *GeminiModel) Answer(ctx context.Context, history []ask.Turn, text string) (string, error) {
	slog.Debug("Gemini.Answer", "model", m.modelName, "historyLen", len(history))
	gm := m.client.GenerativeModel(m.modelName)
	gm.SystemInstruction = genai.NewUserContent(genai.Text(models.SystemPrompt))

	cs := gm.StartChat()
	cs.History = toContents(history)

	iter := cs.SendMessageStream(ctx, genai.Text(text))
	var full strings.Builder
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", err
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if txt, ok := part.(genai.Text); ok {
					full.WriteString(string(txt))
				}
			}
		}
	}

	if full.Len() == 0 {
		return "", ErrEmptyAnswer
	}
	return full.String(), nil
}

// toContents maps turns to Gemini chat history. Empty turns are dropped.
func toContents(history []ask.Turn) []*genai.Content {
	var out []*genai.Content
	for _, t := range history {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := "user"
		if t.Role == store.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return out
}
