// Package oid provides the object identifier value type used as the
// addressing unit throughout the engine. OIDs are immutable ordered
// sequences of unsigned 32-bit arcs with a total lexicographic order.
package oid

import (
	"fmt"
	"strconv"
	"strings"
)

// OID is an ordered sequence of non-negative integer arcs. A valid OID
// has at least one arc. OIDs are never mutated after construction; all
// operations return new values or read-only results.
type OID []uint32

// FormatError reports a malformed dotted-decimal OID string. It is a
// boundary error: callers reject the input before it reaches the tree.
type FormatError struct {
	Input   string
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid OID %q: %s", e.Input, e.Message)
}

// Parse converts a dotted-decimal string into an OID. Only strings
// matching digit+(.digit+)* are accepted; empty strings, leading or
// trailing dots, negative or non-numeric arcs, and arcs beyond the
// unsigned 32-bit range are rejected with a FormatError.
func Parse(s string) (OID, error) {
	if s == "" {
		return nil, &FormatError{Input: s, Message: "empty string"}
	}

	parts := strings.Split(s, ".")
	out := make(OID, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			return nil, &FormatError{Input: s, Message: "empty arc"}
		}

		arc, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, &FormatError{Input: s, Message: fmt.Sprintf("arc %q is not an unsigned 32-bit integer", part)}
		}

		out = append(out, uint32(arc))
	}

	return out, nil
}

// MustParse is like Parse but panics on malformed input. It is intended
// for compile-time constant OIDs such as built-in MIB definitions.
func MustParse(s string) OID {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

// String returns the dotted-decimal representation of the OID.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}

	var b strings.Builder
	for i, arc := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}

	return b.String()
}

// Compare orders two OIDs arc by arc. A proper prefix sorts before any
// of its extensions, so 1.3.6.1.2.1.1 < 1.3.6.1.2.1.1.0. The result is
// -1, 0, or 1.
func Compare(a, b OID) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}

	return 0
}

// IsPrefixOf reports whether o's arc sequence is a prefix of other.
// An OID is a prefix of itself. The comparison is structural, not
// string-based: 1.3.6.1.2.1.1 is not a prefix of 1.3.6.1.2.1.10.
func (o OID) IsPrefixOf(other OID) bool {
	if len(o) > len(other) {
		return false
	}

	for i, arc := range o {
		if other[i] != arc {
			return false
		}
	}

	return true
}

// Equal reports whether two OIDs have identical arc sequences.
func (o OID) Equal(other OID) bool {
	return Compare(o, other) == 0
}

// Clone returns an independent copy of the OID.
func (o OID) Clone() OID {
	out := make(OID, len(o))
	copy(out, o)
	return out
}
