package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dnschat/dnschat/internal/chat"
	"github.com/dnschat/dnschat/internal/transport"
	"github.com/dnschat/dnschat/internal/wire"
)

// AskHandler exposes the DNS transport engine as a JSON API.
type AskHandler struct {
	engine *chat.Service
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(engine *chat.Service) *AskHandler {
	return &AskHandler{
		engine: engine,
	}
}

type askRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversation_id"`
	Server         string   `json:"server"`
	Transports     []string `json:"transports"`
}

type askResponse struct {
	Text       string         `json:"text"`
	Records    map[int]string `json:"records"`
	RawRecords []string       `json:"raw_records"`
	Transport  string         `json:"transport"`
	Domain     string         `json:"domain"`
	DurationMs int64          `json:"duration_ms"`
}

// HandleAsk accepts a prompt and returns the reassembled TXT answer.
//
// Expected JSON body:
//
//	message          (required)
//	conversation_id  (optional)
//	server           (optional, must be whitelisted)
//	transports       (optional preference order: native|udp|tcp|https)
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, jsonError{Error: "invalid JSON body"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, jsonError{Error: "message is required"})
		return
	}

	kinds := make([]transport.Kind, 0, len(req.Transports))
	for _, t := range req.Transports {
		kinds = append(kinds, transport.Kind(t))
	}

	result, err := h.engine.Ask(r.Context(), chat.Query{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Server:         req.Server,
		Transports:     kinds,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage),
			errors.Is(err, chat.ErrServerNotAllowed),
			errors.Is(err, wire.ErrInvalidLabel),
			errors.Is(err, wire.ErrLabelTooLong),
			errors.Is(err, wire.ErrNameTooLong):
			writeJSON(w, http.StatusBadRequest, jsonError{Error: err.Error()})
		case errors.Is(err, chat.ErrRateLimited):
			writeJSON(w, http.StatusTooManyRequests, jsonError{Error: "rate limit exceeded"})
		case errors.Is(err, chat.ErrSuspended), errors.Is(err, chat.ErrNoTransports):
			writeJSON(w, http.StatusServiceUnavailable, jsonError{Error: err.Error()})
		default:
			slog.Error("ask failed", "error", err)
			writeJSON(w, http.StatusBadGateway, jsonError{Error: "all transports failed"})
		}
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Text:       result.Text,
		Records:    result.Records,
		RawRecords: result.RawRecords,
		Transport:  string(result.Transport),
		Domain:     result.Domain,
		DurationMs: result.Duration.Milliseconds(),
	})
}

// jsonError is the envelope for API error responses.
type jsonError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
