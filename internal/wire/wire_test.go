package wire

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"simple", "hello.ch.at", "hello.ch.at", nil},
		{"uppercase folded", "Hello.CH.AT", "hello.ch.at", nil},
		{"surrounding space trimmed", "  hello.ch.at  ", "hello.ch.at", nil},
		{"hyphens allowed", "what-is-dns.ch.at", "what-is-dns.ch.at", nil},
		{"empty", "", "", ErrInvalidLabel},
		{"empty label", "hello..ch.at", "", ErrInvalidLabel},
		{"underscore rejected", "hello_world.ch.at", "", ErrInvalidLabel},
		{"space inside label rejected", "hello world.ch.at", "", ErrInvalidLabel},
		{"label too long", strings.Repeat("a", 64) + ".ch.at", "", ErrLabelTooLong},
		{"label at limit", strings.Repeat("a", 63) + ".ch.at", strings.Repeat("a", 63) + ".ch.at", nil},
		{
			"name too long",
			strings.Repeat(strings.Repeat("a", 60)+".", 5) + "ch.at",
			"",
			ErrNameTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeName(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NormalizeName(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeName(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncodeDeterministicSize(t *testing.T) {
	names := []string{
		"hello.ch.at",
		"what-is-dns.a1b2c3.ch.at",
		strings.Repeat("a", 63) + ".ch.at",
	}

	for _, name := range names {
		packet, _, err := Encode(name)
		if err != nil {
			t.Fatalf("Encode(%q) unexpected error: %v", name, err)
		}

		// Header + each label with its length byte + root byte + QTYPE + QCLASS.
		encodedName := 1
		for _, label := range strings.Split(name, ".") {
			encodedName += 1 + len(label)
		}
		want := 12 + encodedName + 4
		if len(packet) != want {
			t.Errorf("Encode(%q) produced %d bytes, want %d", name, len(packet), want)
		}
	}
}

func TestEncodeHeader(t *testing.T) {
	packet, id, err := Encode("hi.ch.at")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if got := binary.BigEndian.Uint16(packet[0:2]); got != id {
		t.Errorf("packet id = %d, returned id = %d", got, id)
	}
	if got := binary.BigEndian.Uint16(packet[2:4]); got != 0x0100 {
		t.Errorf("flags = %#04x, want 0x0100", got)
	}
	if got := binary.BigEndian.Uint16(packet[4:6]); got != 1 {
		t.Errorf("QDCOUNT = %d, want 1", got)
	}
	for section, off := range map[string]int{"ANCOUNT": 6, "NSCOUNT": 8, "ARCOUNT": 10} {
		if got := binary.BigEndian.Uint16(packet[off : off+2]); got != 0 {
			t.Errorf("%s = %d, want 0", section, got)
		}
	}

	// QTYPE/QCLASS trail the packet.
	n := len(packet)
	if got := binary.BigEndian.Uint16(packet[n-4 : n-2]); got != TypeTXT {
		t.Errorf("QTYPE = %d, want %d", got, TypeTXT)
	}
	if got := binary.BigEndian.Uint16(packet[n-2:]); got != ClassIN {
		t.Errorf("QCLASS = %d, want %d", got, ClassIN)
	}
}

func TestEncodeRejectsInvalidNames(t *testing.T) {
	for _, name := range []string{"", "UPPER CASE.ch.at", "a..b", strings.Repeat("x", 64) + ".ch.at"} {
		if packet, _, err := Encode(name); err == nil {
			t.Errorf("Encode(%q) = %d bytes, want error", name, len(packet))
		}
	}
}

// buildResponse assembles a minimal response: header, echoed question
// for "q.ch.at", and one TXT answer with the given strings.
func buildResponse(txt ...string) []byte {
	var buf []byte

	var header [12]byte
	binary.BigEndian.PutUint16(header[0:2], 0xbeef)
	binary.BigEndian.PutUint16(header[2:4], 0x8180)
	binary.BigEndian.PutUint16(header[4:6], 1)
	binary.BigEndian.PutUint16(header[6:8], 1)
	buf = append(buf, header[:]...)

	question := []byte{1, 'q', 2, 'c', 'h', 2, 'a', 't', 0}
	buf = append(buf, question...)
	buf = binary.BigEndian.AppendUint16(buf, TypeTXT)
	buf = binary.BigEndian.AppendUint16(buf, ClassIN)

	// Answer: compressed name pointer to the question name.
	buf = append(buf, 0xC0, 0x0C)
	buf = binary.BigEndian.AppendUint16(buf, TypeTXT)
	buf = binary.BigEndian.AppendUint16(buf, ClassIN)
	buf = append(buf, 0, 0, 0, 60) // TTL

	var rdata []byte
	for _, s := range txt {
		rdata = append(rdata, byte(len(s)))
		rdata = append(rdata, s...)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(rdata)))
	buf = append(buf, rdata...)

	return buf
}

func TestDecode(t *testing.T) {
	records, err := Decode(buildResponse("1/2:hello ", "2/2:world"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(records) != 2 || records[0] != "1/2:hello " || records[1] != "2/2:world" {
		t.Errorf("Decode = %q, want the two TXT strings in order", records)
	}
}

func TestDecodeNoRecords(t *testing.T) {
	// ANCOUNT=0: clean parse, empty answer section.
	resp := buildResponse("x")
	binary.BigEndian.PutUint16(resp[6:8], 0)
	resp = resp[:12+9+4] // header + question only

	if _, err := Decode(resp); !errors.Is(err, ErrNoRecords) {
		t.Errorf("Decode error = %v, want ErrNoRecords", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	valid := buildResponse("1/1:hi")

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"short header", valid[:7]},
		{"truncated question", valid[:14]},
		{"truncated answer header", valid[:12+9+4+2]},
		{"truncated compression pointer", valid[:12+9+4+1]},
		{"truncated rdata", valid[:len(valid)-3]},
		{"rdlength overrun", func() []byte {
			b := append([]byte(nil), valid...)
			// RDLENGTH sits 2 bytes before the rdata start.
			binary.BigEndian.PutUint16(b[len(b)-9:len(b)-7], 0xFFFF)
			return b
		}()},
		{"txt length overrun", func() []byte {
			b := append([]byte(nil), valid...)
			b[len(b)-7] = 0xFF // first TXT string length byte
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if records, err := Decode(tt.buf); !errors.Is(err, ErrDecode) {
				t.Errorf("Decode = (%q, %v), want ErrDecode", records, err)
			}
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	// A query packet has no answers; decoding it is a clean parse with
	// zero records.
	packet, _, err := Encode("ping.ch.at")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(packet); !errors.Is(err, ErrNoRecords) {
		t.Errorf("Decode(query) error = %v, want ErrNoRecords", err)
	}
}
