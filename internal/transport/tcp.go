package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/dnschat/dnschat/internal/wire"
)

// MaxStreamResponse caps how many bytes a stream peer may claim in its
// length prefix. A hostile or corrupted peer announcing a huge frame
// must not force unbounded buffering.
const MaxStreamResponse = 64 * 1024

// TCP speaks the stream DNS convention: the encoded query and its
// response are each framed by a 2-byte big-endian length prefix.
type TCP struct {
	// Port overrides the DNS port, for tests. Empty means "53".
	Port string

	// MaxResponse overrides MaxStreamResponse when positive.
	MaxResponse int
}

func (t *TCP) Kind() Kind { return KindTCP }

func (t *TCP) Available() error { return nil }

func (t *TCP) Query(ctx context.Context, server, name string) ([]string, error) {
	packet, id, err := wire.Encode(name)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(server, t.port()))
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", server, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadlineFrom(ctx)); err != nil {
		return nil, fmt.Errorf("tcp set deadline: %w", err)
	}

	guard := &settle{}
	done := make(chan outcome, 1)

	go func() {
		records, err := t.exchange(conn, packet, id)
		if guard.once() {
			done <- outcome{records: records, err: err}
		}
	}()

	select {
	case <-ctx.Done():
		if guard.once() {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		out := <-done
		return out.records, out.err
	case out := <-done:
		return out.records, out.err
	}
}

func (t *TCP) port() string {
	if t.Port != "" {
		return t.Port
	}
	return "53"
}

func (t *TCP) maxResponse() int {
	if t.MaxResponse > 0 {
		return t.MaxResponse
	}
	return MaxStreamResponse
}

func (t *TCP) exchange(conn net.Conn, packet []byte, id uint16) ([]string, error) {
	framed := make([]byte, 2+len(packet))
	binary.BigEndian.PutUint16(framed, uint16(len(packet)))
	copy(framed[2:], packet)

	if _, err := conn.Write(framed); err != nil {
		return nil, fmt.Errorf("tcp send: %w", err)
	}

	var prefix [2]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, fmt.Errorf("tcp read length prefix: %w", err)
	}

	length := int(binary.BigEndian.Uint16(prefix[:]))
	if length > t.maxResponse() {
		return nil, fmt.Errorf("%w: peer declared %d bytes", ErrResponseTooLarge, length)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(conn, frame); err != nil {
		return nil, fmt.Errorf("tcp read frame: %w", err)
	}

	if length >= 2 {
		if got := binary.BigEndian.Uint16(frame[:2]); got != id {
			return nil, fmt.Errorf("%w: got %#04x, want %#04x", ErrIDMismatch, got, id)
		}
	}

	records, err := wire.Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("tcp decode: %w", err)
	}
	return records, nil
}
