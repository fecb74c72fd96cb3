// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

// Well-known CoAP option numbers used by this gateway. The full IANA
// registry is out of scope; only the numbers the pipeline inspects are
// named.
const (
	OptionUriPath      = 11
	OptionContentFormat = 12
)

// MaxOptionNumber bounds the absolute option number this decoder accepts.
// RFC 7252 does not fix an upper bound on custom option numbers, but a
// two-byte extended delta (nibble 14) tops out at 65804 (65535 + 269), so
// that is the largest number a valid encoding can ever produce.
const MaxOptionNumber = 65804

// Option is a single decoded CoAP option: its reconstructed absolute
// number, its opaque value, and the number of wire bytes it consumed
// (header nibble byte + extended-delta bytes + extended-length bytes +
// value bytes).
type Option struct {
	Number uint32
	Value  []byte
	Offset int
}

// Repeatable reports whether option numbers that may legally repeat
// within a message include this option's number. Used when collapsing a
// decoded option list into a map: duplicates of non-repeatable options
// are dropped, keeping the first occurrence.
func Repeatable(number uint32) bool {
	switch number {
	case OptionUriPath:
		return true
	default:
		return false
	}
}

// ToMap collapses opts into a map from option number to values, retaining
// duplicates only for option numbers that permit repetition. The list
// itself (opts) always preserves duplicates as decoded.
func ToMap(opts []Option) map[uint32][][]byte {
	m := make(map[uint32][][]byte, len(opts))
	for _, o := range opts {
		existing, ok := m[o.Number]
		if ok && !Repeatable(o.Number) {
			continue
		}
		m[o.Number] = append(existing, o.Value)
	}
	return m
}

// UriPath concatenates the values of all Uri-Path options (number 11), in
// option order, joined by '/'. This is the topic path source the
// pipeline uses for broker.Push.
func UriPath(opts []Option) string {
	var segments []string
	for _, o := range opts {
		if o.Number == OptionUriPath {
			segments = append(segments, string(o.Value))
		}
	}
	path := ""
	for i, s := range segments {
		if i > 0 {
			path += "/"
		}
		path += s
	}
	return path
}
