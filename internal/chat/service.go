// Package chat orchestrates DNS-tunneled chat queries: it turns a
// prompt into a TXT query name, walks the configured transports in
// preference order with retry, backoff, rate limiting, and
// deduplication, and reassembles the multi-part TXT answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dnschat/dnschat/internal/fragment"
	"github.com/dnschat/dnschat/internal/ratelimit"
	"github.com/dnschat/dnschat/internal/transport"
	"github.com/dnschat/dnschat/internal/wire"
)

var (
	// ErrEmptyMessage indicates a message with nothing left after
	// sanitization.
	ErrEmptyMessage = errors.New("message is empty after sanitization")

	// ErrServerNotAllowed indicates a server host absent from the
	// whitelist.
	ErrServerNotAllowed = errors.New("server is not in the allowed list")

	// ErrRateLimited indicates a full sliding window. The caller may try
	// again later; the engine does not retry this internally.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSuspended indicates the host application is backgrounded.
	ErrSuspended = errors.New("queries are paused while the app is in the background")

	// ErrNoTransports indicates that every requested transport was
	// unavailable on this build.
	ErrNoTransports = errors.New("no supported transports")

	// ErrAllTransportsFailed wraps the per-attempt errors once every
	// transport and retry has been exhausted.
	ErrAllTransportsFailed = errors.New("all transports failed")
)

// Defaults for Options fields left zero.
const (
	DefaultMaxRetries    = 3
	DefaultTimeout       = 10 * time.Second
	DefaultRateLimit     = 10
	DefaultRateInterval  = 60 * time.Second
	DefaultBackoffBase   = 250 * time.Millisecond
	DefaultBackoffCap    = 1500 * time.Millisecond
	DefaultBackoffJitter = 120 * time.Millisecond
)

// DefaultServers is the server whitelist used when Options.Servers is
// nil: allowed host names mapped to the canonical host queried.
var DefaultServers = map[string]string{
	"ch.at": "ch.at",
}

// AppState reports whether the host application is backgrounded. It is
// queried once per Ask at entry and between retries, never mid-attempt.
type AppState interface {
	Suspended() bool
}

// AlwaysActive is the AppState for hosts without a background notion,
// such as the CLI and the gateway.
type AlwaysActive struct{}

func (AlwaysActive) Suspended() bool { return false }

// Options configures a Service. Zero fields take the defaults above.
type Options struct {
	// Servers maps allowed host names to canonical hosts. Nil means
	// DefaultServers.
	Servers map[string]string

	// DefaultServer is used when a Query names no server. Defaults to
	// "ch.at".
	DefaultServer string

	// Transports in preference order. Nil means native, UDP, TCP, DoH.
	Transports []transport.Transport

	// AppState supplies the backgrounded signal. Nil means AlwaysActive.
	AppState AppState

	MaxRetries    int
	Timeout       time.Duration
	RateLimit     int
	RateInterval  time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffJitter time.Duration
}

// Query is one logical ask.
type Query struct {
	// Message is the raw prompt text.
	Message string

	// ConversationID discriminates threads on the server side. Empty
	// means a fresh discriminator is generated.
	ConversationID string

	// Server selects a whitelisted server host. Empty means the
	// configured default.
	Server string

	// Transports optionally restricts and reorders the transport
	// preference for this ask.
	Transports []transport.Kind
}

// Result is a completed ask.
type Result struct {
	// Records maps fragment index to payload after reassembly.
	Records map[int]string

	// RawRecords are the TXT strings as received, before reassembly.
	RawRecords []string

	// Text is the reassembled answer.
	Text string

	// Transport is the kind that produced the answer.
	Transport transport.Kind

	// Domain is the fully-qualified query name that was resolved.
	Domain string

	// Duration is the elapsed time of the underlying operation.
	Duration time.Duration
}

// Service is the transport orchestrator.
type Service struct {
	servers       map[string]string
	defaultServer string
	transports    []transport.Transport
	state         AppState
	window        *ratelimit.Window
	maxRetries    int
	timeout       time.Duration
	backoffBase   time.Duration
	backoffCap    time.Duration
	backoffJitter time.Duration

	// group collapses concurrent identical (server, name) operations
	// into one in-flight attempt; entries are removed on completion.
	group singleflight.Group
}

// NewService creates a Service from opts.
func NewService(opts Options) *Service {
	servers := opts.Servers
	if servers == nil {
		servers = DefaultServers
	}
	defaultServer := opts.DefaultServer
	if defaultServer == "" {
		defaultServer = "ch.at"
	}
	transports := opts.Transports
	if transports == nil {
		transports = []transport.Transport{
			&transport.Resolver{},
			&transport.UDP{},
			&transport.TCP{},
			&transport.DoH{},
		}
	}
	state := opts.AppState
	if state == nil {
		state = AlwaysActive{}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rateLimit := opts.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	rateInterval := opts.RateInterval
	if rateInterval <= 0 {
		rateInterval = DefaultRateInterval
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	backoffCap := opts.BackoffCap
	if backoffCap <= 0 {
		backoffCap = DefaultBackoffCap
	}
	backoffJitter := opts.BackoffJitter
	if backoffJitter <= 0 {
		backoffJitter = DefaultBackoffJitter
	}

	return &Service{
		servers:       servers,
		defaultServer: defaultServer,
		transports:    transports,
		state:         state,
		window:        ratelimit.NewWindow(rateLimit, rateInterval),
		maxRetries:    maxRetries,
		timeout:       timeout,
		backoffBase:   backoffBase,
		backoffCap:    backoffCap,
		backoffJitter: backoffJitter,
	}
}

// Ask resolves one prompt into a reassembled answer.
//
// Validation, rate limiting, and the suspension check all fail fast
// before any network I/O and are never retried. Per-transport errors
// are collected and surface only in aggregate when nothing succeeds.
func (s *Service) Ask(ctx context.Context, q Query) (*Result, error) {
	// Captured once; a call runs under one consistent
	// background/foreground assumption.
	if s.state.Suspended() {
		return nil, ErrSuspended
	}

	if !s.window.Allow() {
		return nil, ErrRateLimited
	}

	messageLabel := sanitizeLabel(q.Message)
	if messageLabel == "" {
		return nil, ErrEmptyMessage
	}

	conversationLabel := sanitizeLabel(q.ConversationID)
	if conversationLabel == "" {
		conversationLabel, _, _ = strings.Cut(uuid.NewString(), "-")
	}

	server, err := s.resolveServer(q.Server)
	if err != nil {
		return nil, err
	}

	name, err := wire.NormalizeName(messageLabel + "." + conversationLabel + "." + server)
	if err != nil {
		return nil, err
	}

	candidates, err := s.selectTransports(q.Transports)
	if err != nil {
		return nil, err
	}

	key := server + "-" + name
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.execute(ctx, server, name, candidates)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("shared in-flight query result", "key", key)
	}
	return v.(*Result), nil
}

func (s *Service) resolveServer(requested string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(requested))
	if host == "" {
		host = s.defaultServer
	}
	canonical, ok := s.servers[host]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrServerNotAllowed, host)
	}
	return canonical, nil
}

// selectTransports resolves the preference order and filters it to the
// transports available on this build. With every candidate eliminated,
// the returned error names each requested transport and why it was
// unavailable.
func (s *Service) selectTransports(preferences []transport.Kind) ([]transport.Transport, error) {
	byKind := make(map[transport.Kind]transport.Transport, len(s.transports))
	order := make([]transport.Transport, 0, len(s.transports))
	for _, tr := range s.transports {
		byKind[tr.Kind()] = tr
		order = append(order, tr)
	}

	if len(preferences) > 0 {
		order = order[:0]
		for _, kind := range preferences {
			if tr, ok := byKind[kind]; ok {
				order = append(order, tr)
			}
		}
	}

	available := make([]transport.Transport, 0, len(order))
	var reasons []string
	for _, tr := range order {
		if err := tr.Available(); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", tr.Kind(), err))
			continue
		}
		available = append(available, tr)
	}

	if len(available) == 0 {
		if len(reasons) == 0 {
			return nil, fmt.Errorf("%w: no requested transport is registered", ErrNoTransports)
		}
		return nil, fmt.Errorf("%w: %s", ErrNoTransports, strings.Join(reasons, "; "))
	}
	return available, nil
}

// execute runs the retry/fallback loop for one deduplicated operation.
// Transports run strictly sequentially so failure attribution stays
// deterministic and fallback adds no concurrent network load.
func (s *Service) execute(ctx context.Context, server, name string, candidates []transport.Transport) (*Result, error) {
	start := time.Now()
	var attemptErrs []error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			// A suspension raised mid-flight lets the current attempt
			// finish but stops further retries.
			if s.state.Suspended() {
				attemptErrs = append(attemptErrs, ErrSuspended)
				break
			}
			select {
			case <-ctx.Done():
				attemptErrs = append(attemptErrs, ctx.Err())
				return nil, fmt.Errorf("%w: %w", ErrAllTransportsFailed, errors.Join(attemptErrs...))
			case <-time.After(s.backoffDelay(attempt - 1)):
			}
		}

		for _, tr := range candidates {
			attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
			records, err := tr.Query(attemptCtx, server, name)
			cancel()

			if err != nil {
				slog.Debug("transport attempt failed",
					"transport", tr.Kind(), "attempt", attempt+1, "error", err)
				attemptErrs = append(attemptErrs, fmt.Errorf("%s attempt %d: %w", tr.Kind(), attempt+1, err))
				continue
			}
			if len(records) == 0 {
				attemptErrs = append(attemptErrs, fmt.Errorf("%s attempt %d: %w", tr.Kind(), attempt+1, wire.ErrNoRecords))
				continue
			}

			byIndex, text := fragment.Assemble(records)
			return &Result{
				Records:    byIndex,
				RawRecords: records,
				Text:       text,
				Transport:  tr.Kind(),
				Domain:     name,
				Duration:   time.Since(start),
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrAllTransportsFailed, errors.Join(attemptErrs...))
}

// backoffDelay computes min(cap, base*2^attempt) plus random jitter, so
// many concurrent callers retrying together desynchronize.
func (s *Service) backoffDelay(attempt int) time.Duration {
	delay := s.backoffBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= s.backoffCap {
			delay = s.backoffCap
			break
		}
	}
	if delay > s.backoffCap {
		delay = s.backoffCap
	}
	return delay + rand.N(s.backoffJitter)
}
