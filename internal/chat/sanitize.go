package chat

import (
	"strings"

	"github.com/dnschat/dnschat/internal/wire"
)

// sanitizeLabel reduces free-form text to a single DNS label: folded to
// lowercase, control characters stripped, whitespace and separator runs
// collapsed to one hyphen, everything outside [a-z0-9-] dropped, capped
// at the 63-byte label limit. Returns "" when nothing survives.
func sanitizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	pendingHyphen := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '-' || r == '_' || r == '.':
			pendingHyphen = true
		default:
			// Control characters, punctuation, and non-ASCII are dropped.
		}
	}

	label := b.String()
	if len(label) > wire.MaxLabelLength {
		label = strings.TrimRight(label[:wire.MaxLabelLength], "-")
	}
	return label
}
