// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

// Encode serializes m back to its wire representation. It is the
// reciprocal of Decode: for any Message m produced by Decode,
// Decode(Encode(m)) reproduces m modulo the absent-vs-empty
// canonicalization NewBody already applies.
func Encode(m Message) []byte {
	out := make([]byte, 0, 4+len(m.Body.Token)+16+len(m.Body.Payload))

	b1 := m.Header.Version<<6 | uint8(m.Header.Type)<<4 | m.Header.TokenLength
	b2 := m.Header.CodePrefix<<5 | m.Header.CodeSuffix
	out = append(out, b1, b2, byte(m.Header.ID>>8), byte(m.Header.ID))
	out = append(out, m.Body.Token...)

	prev := uint32(0)
	for _, opt := range m.Body.Options {
		delta := opt.Number - prev
		prev = opt.Number
		length := uint32(len(opt.Value))

		deltaNibble, deltaExt := encodeNibble(delta)
		lengthNibble, lengthExt := encodeNibble(length)

		out = append(out, deltaNibble<<4|lengthNibble)
		out = append(out, deltaExt...)
		out = append(out, lengthExt...)
		out = append(out, opt.Value...)
	}

	if len(m.Body.Payload) > 0 {
		out = append(out, 0xFF)
		out = append(out, m.Body.Payload...)
	}

	return out
}

// encodeNibble picks the minimal delta/length nibble encoding for v,
// using the extended forms only when the nibble alone (0-12) cannot carry
// the value.
func encodeNibble(v uint32) (nibble uint8, ext []byte) {
	switch {
	case v <= 12:
		return uint8(v), nil
	case v <= 268:
		return 13, []byte{byte(v - 13)}
	default: // v <= 65804 for any value this codec itself produced
		e := v - 269
		return 14, []byte{byte(e >> 8), byte(e)}
	}
}

// Ack builds a CON-less acknowledgement message for id: type ACK, code
// 0.00, no token, no body.
func Ack(id uint16) Message {
	h, _ := NewHeader(1, uint8(Acknowledgement), 0, 0, 0, id)
	return Message{Header: h}
}

// Reset builds a reset message for id: type RST, code 0.00, no token, no
// body.
func Reset(id uint16) Message {
	h, _ := NewHeader(1, uint8(ResetType), 0, 0, 0, id)
	return Message{Header: h}
}
