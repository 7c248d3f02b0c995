// Package transport provides the interchangeable DNS transports the
// orchestrator falls back across: raw UDP and TCP sockets speaking the
// hand-rolled wire format, a high-level native resolver, and a
// DNS-over-HTTPS gateway.
package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Kind identifies a transport in preference lists and results.
type Kind string

const (
	KindNative Kind = "native"
	KindUDP    Kind = "udp"
	KindTCP    Kind = "tcp"
	KindHTTPS  Kind = "https"
)

// DefaultTimeout bounds a single query attempt when the caller's
// context carries no deadline.
const DefaultTimeout = 10 * time.Second

var (
	// ErrTimeout indicates an attempt that did not complete within its
	// deadline.
	ErrTimeout = errors.New("DNS query timed out")

	// ErrResponseTooLarge indicates a stream frame whose declared length
	// exceeds the configured maximum.
	ErrResponseTooLarge = errors.New("DNS response exceeds size limit")

	// ErrIDMismatch indicates a response whose transaction id does not
	// match the query. Treated like any other malformed response.
	ErrIDMismatch = errors.New("response transaction id does not match query")
)

// Transport is one strategy for resolving a TXT query name against a
// server. Implementations are safe for concurrent use.
type Transport interface {
	// Kind names the transport for preference lists and diagnostics.
	Kind() Kind

	// Available reports whether the transport can be used on this
	// build/host. A non-nil error names the reason it cannot.
	Available() error

	// Query resolves the fully-qualified TXT query name against the
	// given server host and returns the raw TXT strings. The context
	// bounds the whole operation; without a deadline, DefaultTimeout
	// applies.
	Query(ctx context.Context, server, name string) ([]string, error)
}

// settle state values.
const (
	statePending int32 = iota
	stateSettled
)

// settle is the completion guard: a compare-and-swap gate ensuring that
// exactly one of racing success/failure/timeout events transitions an
// operation to its terminal state. Late firers observe false and must
// treat their result as stale.
type settle struct {
	state atomic.Int32
}

// once reports whether the caller won the transition to settled.
func (s *settle) once() bool {
	return s.state.CompareAndSwap(statePending, stateSettled)
}

// outcome carries one attempt's result through the guard.
type outcome struct {
	records []string
	err     error
}

// deadlineFrom returns the context deadline, or now+DefaultTimeout when
// the context has none.
func deadlineFrom(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(DefaultTimeout)
}
