// Package fragment reassembles multi-part TXT answers.
//
// A logical answer too large for one TXT string is split across
// several, each optionally prefixed with "<index>/<total>:" or
// "<index>:" so the receiver can reorder them. Fragments without a
// numeric prefix are single parts and are slotted into the first free
// index, so a lone unprefixed string behaves as "1/1".
package fragment

import (
	"sort"
	"strconv"
	"strings"
)

// Assemble orders and joins raw TXT strings into the final text.
//
// Each string is split on its first ':'; a prefix of the form
// "<index>/<total>" or "<index>" with a positive numeric index keys the
// fragment for ordering and deduplication (first occurrence wins).
// Unprefixed strings take the smallest positive index not yet used.
// Strings whose prefix never parses numerically are appended after all
// keyed fragments, in arrival order.
func Assemble(records []string) (map[int]string, string) {
	byIndex := make(map[int]string, len(records))
	var unkeyed []string

	for _, raw := range records {
		index, payload, keyed := parse(raw)
		if !keyed {
			unkeyed = append(unkeyed, payload)
			continue
		}
		if index == 0 {
			index = nextFree(byIndex)
		}
		if _, dup := byIndex[index]; dup {
			continue
		}
		byIndex[index] = payload
	}

	indices := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var b strings.Builder
	for _, i := range indices {
		b.WriteString(byIndex[i])
	}
	for _, payload := range unkeyed {
		b.WriteString(payload)
	}

	return byIndex, b.String()
}

// parse splits one raw TXT string. keyed is false only when the string
// carries a prefix-shaped "something:" head that is not numeric; the
// payload is then the remainder, matching the arrival-order fallback.
// A string with no ':' at all is an unprefixed fragment (index 0,
// keyed true).
func parse(raw string) (index int, payload string, keyed bool) {
	head, rest, found := strings.Cut(raw, ":")
	if !found {
		return 0, raw, true
	}

	indexPart := head
	if slash := strings.IndexByte(head, '/'); slash >= 0 {
		indexPart = head[:slash]
	}

	index, err := strconv.Atoi(strings.TrimSpace(indexPart))
	if err != nil || index < 1 {
		return 0, rest, false
	}
	return index, rest, true
}

func nextFree(byIndex map[int]string) int {
	for i := 1; ; i++ {
		if _, used := byIndex[i]; !used {
			return i
		}
	}
}
