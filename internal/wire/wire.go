// Package wire implements the DNS wire format used by the transport
// engine: building single-question TXT queries and defensively parsing
// TXT answers out of untrusted response buffers.
//
// Only the subset of RFC 1035 the engine needs is implemented. Query
// packets are well-formed by construction; response packets come from
// an untrusted peer and every offset advance is bounds-checked.
package wire

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"strings"
)

const (
	// TypeTXT is the DNS TXT record type code.
	TypeTXT = 16
	// ClassIN is the Internet class code.
	ClassIN = 1

	// MaxLabelLength is the longest permitted single label, per RFC 1035.
	MaxLabelLength = 63
	// MaxNameLength is the longest permitted encoded query name.
	MaxNameLength = 255

	headerLength = 12
)

var (
	// ErrInvalidLabel indicates a label with characters outside [a-z0-9-]
	// or an empty label.
	ErrInvalidLabel = errors.New("invalid characters in DNS label")

	// ErrLabelTooLong indicates a label longer than 63 bytes.
	ErrLabelTooLong = errors.New("DNS label exceeds 63 bytes")

	// ErrNameTooLong indicates an encoded query name longer than 255 bytes.
	ErrNameTooLong = errors.New("DNS query name exceeds 255 bytes")

	// ErrDecode indicates a malformed response buffer. Errors wrap
	// ErrDecode with detail about the offending section.
	ErrDecode = errors.New("malformed DNS response")

	// ErrNoRecords indicates a well-formed response whose answer section
	// carried zero TXT strings.
	ErrNoRecords = errors.New("no TXT records found")
)

// NormalizeName validates a dot-separated query name and returns its
// canonical lowercase form. Each label must be non-empty, at most 63
// bytes, and restricted to [a-z0-9-]; the encoded name must fit in 255
// bytes. Invalid names are rejected outright, never truncated.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty query name", ErrInvalidLabel)
	}

	labels := strings.Split(trimmed, ".")
	total := 1 // trailing root byte
	for _, label := range labels {
		if err := checkLabel(label); err != nil {
			return "", err
		}
		total += 1 + len(label)
		if total > MaxNameLength {
			return "", ErrNameTooLong
		}
	}

	return strings.Join(labels, "."), nil
}

func checkLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidLabel)
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("%w: %q", ErrLabelTooLong, label)
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

// Encode builds a single-question TXT/IN query packet for the given
// query name and returns the packet together with its transaction id.
// The name is validated with NormalizeName first; nothing is emitted
// for an invalid name.
func Encode(name string) ([]byte, uint16, error) {
	normalized, err := NormalizeName(name)
	if err != nil {
		return nil, 0, err
	}

	id := transactionID()
	labels := strings.Split(normalized, ".")

	encodedNameLen := 1
	for _, label := range labels {
		encodedNameLen += 1 + len(label)
	}

	buf := make([]byte, 0, headerLength+encodedNameLen+4)

	var header [headerLength]byte
	binary.BigEndian.PutUint16(header[0:2], id)
	binary.BigEndian.PutUint16(header[2:4], 0x0100) // standard query, recursion desired
	binary.BigEndian.PutUint16(header[4:6], 1)      // QDCOUNT
	buf = append(buf, header[:]...)

	for _, label := range labels {
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0x00)

	buf = binary.BigEndian.AppendUint16(buf, TypeTXT)
	buf = binary.BigEndian.AppendUint16(buf, ClassIN)

	return buf, id, nil
}

// transactionID draws a 16-bit id from crypto/rand, falling back to a
// pseudo-random source only if the system source fails. The id space is
// only 65536 values, so a weak source causes accidental reuse once
// concurrency approaches its square root.
func transactionID() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint16(mrand.Uint32())
	}
	return binary.BigEndian.Uint16(b[:])
}

// Decode parses an untrusted DNS response buffer and returns every TXT
// string found in its answer section. The parse fails fast with an
// error wrapping ErrDecode on any truncated or inconsistent length
// field; it never reads past the buffer. A clean parse that yields no
// TXT strings returns ErrNoRecords.
func Decode(buf []byte) ([]string, error) {
	if len(buf) < headerLength {
		return nil, fmt.Errorf("%w: %d byte buffer is shorter than the header", ErrDecode, len(buf))
	}

	qdCount := int(binary.BigEndian.Uint16(buf[4:6]))
	anCount := int(binary.BigEndian.Uint16(buf[6:8]))

	offset := headerLength

	// Skip the echoed question section.
	for i := 0; i < qdCount; i++ {
		next, err := skipName(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		offset = next + 4 // QTYPE + QCLASS
		if offset > len(buf) {
			return nil, fmt.Errorf("%w: truncated question section", ErrDecode)
		}
	}

	var records []string
	for i := 0; i < anCount; i++ {
		next, err := skipName(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("answer %d: %w", i, err)
		}
		offset = next

		if offset+10 > len(buf) {
			return nil, fmt.Errorf("%w: truncated answer header", ErrDecode)
		}
		rrType := binary.BigEndian.Uint16(buf[offset : offset+2])
		rdLength := int(binary.BigEndian.Uint16(buf[offset+8 : offset+10]))
		offset += 10

		if offset+rdLength > len(buf) {
			return nil, fmt.Errorf("%w: RDLENGTH %d overruns buffer", ErrDecode, rdLength)
		}

		if rrType == TypeTXT {
			strs, err := parseTXTData(buf[offset : offset+rdLength])
			if err != nil {
				return nil, fmt.Errorf("answer %d: %w", i, err)
			}
			records = append(records, strs...)
		}
		offset += rdLength
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}

// skipName advances past a literal or compressed name starting at
// offset and returns the offset of the byte following it. Compression
// pointers terminate the name, so they are not followed; a pointer
// into thin air is still a two-byte field here.
func skipName(buf []byte, offset int) (int, error) {
	for {
		if offset >= len(buf) {
			return 0, fmt.Errorf("%w: truncated name", ErrDecode)
		}
		length := int(buf[offset])
		switch {
		case length == 0:
			return offset + 1, nil
		case length&0xC0 == 0xC0:
			if offset+2 > len(buf) {
				return 0, fmt.Errorf("%w: truncated compression pointer", ErrDecode)
			}
			return offset + 2, nil
		case length > MaxLabelLength:
			return 0, fmt.Errorf("%w: label length %d", ErrDecode, length)
		default:
			offset += 1 + length
			if offset > len(buf) {
				return 0, fmt.Errorf("%w: label overruns buffer", ErrDecode)
			}
		}
	}
}

// parseTXTData walks TXT resource data as a sequence of one-byte
// length-prefixed strings.
func parseTXTData(data []byte) ([]string, error) {
	var strs []string
	for p := 0; p < len(data); {
		length := int(data[p])
		p++
		if p+length > len(data) {
			return nil, fmt.Errorf("%w: TXT string length %d overruns resource data", ErrDecode, length)
		}
		if length > 0 {
			strs = append(strs, string(data[p:p+length]))
		}
		p += length
	}
	return strs, nil
}
