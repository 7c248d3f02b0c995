package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/dnschat/dnschat/internal/wire"
)

// udpBufferSize fits any answer the server can send without TCP
// fallback; plain DNS over UDP with EDNS0 tops out well below this.
const udpBufferSize = 4096

// UDP sends one encoded query as a single datagram and awaits exactly
// one response datagram.
type UDP struct {
	// Port overrides the DNS port, for tests. Empty means "53".
	Port string
}

func (t *UDP) Kind() Kind { return KindUDP }

func (t *UDP) Available() error { return nil }

func (t *UDP) Query(ctx context.Context, server, name string) ([]string, error) {
	packet, id, err := wire.Encode(name)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(server, t.port()))
	if err != nil {
		return nil, fmt.Errorf("udp dial %s: %w", server, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadlineFrom(ctx)); err != nil {
		return nil, fmt.Errorf("udp set deadline: %w", err)
	}

	guard := &settle{}
	done := make(chan outcome, 1)

	go func() {
		records, err := udpExchange(conn, packet, id)
		if guard.once() {
			done <- outcome{records: records, err: err}
		}
		// A lost race means the context already settled this attempt;
		// the result is stale and dropped.
	}()

	select {
	case <-ctx.Done():
		if guard.once() {
			// Unblock the reader; its eventual error loses the guard race.
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		out := <-done
		return out.records, out.err
	case out := <-done:
		return out.records, out.err
	}
}

func (t *UDP) port() string {
	if t.Port != "" {
		return t.Port
	}
	return "53"
}

func udpExchange(conn net.Conn, packet []byte, id uint16) ([]string, error) {
	if _, err := conn.Write(packet); err != nil {
		return nil, fmt.Errorf("udp send: %w", err)
	}

	buf := make([]byte, udpBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("udp receive: %w", err)
	}

	if n >= 2 {
		if got := uint16(buf[0])<<8 | uint16(buf[1]); got != id {
			return nil, fmt.Errorf("%w: got %#04x, want %#04x", ErrIDMismatch, got, id)
		}
	}

	records, err := wire.Decode(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("udp decode: %w", err)
	}
	return records, nil
}
