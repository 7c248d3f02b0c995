package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dnschat/dnschat/internal/chat"
	"github.com/dnschat/dnschat/internal/transport"
)

type stubTransport struct {
	kind    transport.Kind
	records []string
	err     error
}

func (s *stubTransport) Kind() transport.Kind { return s.kind }
func (s *stubTransport) Available() error     { return nil }
func (s *stubTransport) Query(context.Context, string, string) ([]string, error) {
	return s.records, s.err
}

func newTestHandler(tr transport.Transport, rateLimit int) *AskHandler {
	return NewAskHandler(chat.NewService(chat.Options{
		Transports:    []transport.Transport{tr},
		RateLimit:     rateLimit,
		MaxRetries:    1,
		BackoffBase:   1,
		BackoffCap:    2,
		BackoffJitter: 1,
	}))
}

func postAsk(t *testing.T, h *AskHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleAsk(rec, req)
	return rec
}

func TestHandleAsk(t *testing.T) {
	tr := &stubTransport{kind: transport.KindUDP, records: []string{"2/2:world", "1/2:hello "}}
	h := newTestHandler(tr, 10)

	rec := postAsk(t, h, `{"message":"hi there","conversation_id":"c1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Text != "hello world" {
		t.Errorf("text = %q, want %q", resp.Text, "hello world")
	}
	if resp.Transport != "udp" {
		t.Errorf("transport = %q, want udp", resp.Transport)
	}
	if resp.Domain != "hi-there.c1.ch.at" {
		t.Errorf("domain = %q", resp.Domain)
	}
}

func TestHandleAskValidation(t *testing.T) {
	tr := &stubTransport{kind: transport.KindUDP, records: []string{"ok"}}
	h := newTestHandler(tr, 10)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing message", `{"conversation_id":"c1"}`, http.StatusBadRequest},
		{"unsanitizable message", `{"message":"???"}`, http.StatusBadRequest},
		{"unknown server", `{"message":"hi","server":"evil.example"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := postAsk(t, h, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestHandleAskRateLimited(t *testing.T) {
	tr := &stubTransport{kind: transport.KindUDP, records: []string{"ok"}}
	h := newTestHandler(tr, 1)

	if rec := postAsk(t, h, `{"message":"hi"}`); rec.Code != http.StatusOK {
		t.Fatalf("first ask status = %d", rec.Code)
	}
	if rec := postAsk(t, h, `{"message":"hi"}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second ask status = %d, want 429", rec.Code)
	}
}

func TestHandleAskUpstreamFailure(t *testing.T) {
	tr := &stubTransport{kind: transport.KindUDP, err: context.DeadlineExceeded}
	h := newTestHandler(tr, 10)

	if rec := postAsk(t, h, `{"message":"hi"}`); rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}
