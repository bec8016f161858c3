package extract

import (
	"sort"
	"strconv"
)

// Key identifies a (possibly multi-part) question: a numeric part and an
// optional lowercase sub-part letter, e.g. "9" or "9a".
type Key struct {
	Number int
	Part   byte // 0 when the question has no sub-part
}

// ParseKey parses identifiers like "1", "9a". Anything else (including
// uppercase sub-parts and multi-letter suffixes) is rejected.
func ParseKey(s string) (Key, bool) {
	if s == "" {
		return Key{}, false
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return Key{}, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return Key{}, false
	}
	k := Key{Number: n}
	switch {
	case i == len(s):
		return k, true
	case i == len(s)-1 && s[i] >= 'a' && s[i] <= 'z':
		k.Part = s[i]
		return k, true
	}
	return Key{}, false
}

func (k Key) String() string {
	s := strconv.Itoa(k.Number)
	if k.Part != 0 {
		s += string(k.Part)
	}
	return s
}

// Less orders by number, then sub-part; a bare question precedes its
// sub-parts ("9" < "9a" < "9b" < "10").
func (k Key) Less(o Key) bool {
	if k.Number != o.Number {
		return k.Number < o.Number
	}
	return k.Part < o.Part
}

// SortKeys returns keys in display order. Keys that do not parse sort after
// all parseable ones, lexicographically.
func SortKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := ParseKey(out[i])
		b, bok := ParseKey(out[j])
		switch {
		case aok && bok:
			return a.Less(b)
		case aok:
			return true
		case bok:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}
