package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nstogner/ragchat/pkg/ask"
)

const maxRequestBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if s.requireAuth && token == "" {
		errorResponse(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return
	}

	var req ask.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		errorResponse(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	slog.Debug("Answering question",
		"requestID", middleware.GetReqID(r.Context()),
		"turns", len(req.Conversation),
		"userID", req.UserID,
	)
	answer, err := s.model.Answer(r.Context(), req.Conversation, req.Text)
	if err != nil {
		errorResponse(w, http.StatusBadGateway, fmt.Errorf("answer model: %w", err))
		return
	}
	jsonResponse(w, http.StatusOK, ask.Response{Response: answer})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
