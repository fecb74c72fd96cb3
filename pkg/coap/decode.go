// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "github.com/absmach/coap-gateway/pkg/bytesutil"

// Decode parses a CoAP datagram into a Message, short-circuiting on the
// first failure. Header validation reads bytes 3-4 (the message id)
// before validating bytes 0-2, so every error on an input of at least 4
// bytes carries the recovered id; every error on fewer than 4 bytes
// carries none.
func Decode(data []byte) DecodeResult {
	if len(data) < 4 {
		return DecodeResult{Err: newChunkSizeError(nil)}
	}

	b1, b2, b3, b4 := data[0], data[1], data[2], data[3]
	id := uint16(b3)<<8 | uint16(b4)

	version := b1 >> 6
	typ := (b1 >> 4) & 0x03
	tokenLength := b1 & 0x0F
	codePrefix := b2 >> 5
	codeSuffix := b2 & 0x1F

	header, herr := NewHeader(version, typ, tokenLength, codePrefix, codeSuffix, id)
	if herr != nil {
		return DecodeResult{Err: herr}
	}

	rest := data[4:]

	var token Token
	if header.TokenLength > 0 {
		tok, err := bytesutil.TakeNonEmpty(rest, int(header.TokenLength))
		if err != nil {
			return DecodeResult{Err: newChunkSizeError(&id)}
		}
		token = append(Token(nil), tok...)
		rest, _ = bytesutil.DropExact(rest, int(header.TokenLength))
	}

	var options []Option
	var payload []byte
	runningNumber := uint32(0)

	for len(rest) > 0 {
		if rest[0] == 0xFF {
			rest = rest[1:]
			if len(rest) == 0 {
				return DecodeResult{Err: newOptionError(KindInvalidPayloadMarker, id)}
			}
			payload = append([]byte(nil), rest...)
			rest = nil
			break
		}

		deltaNibble := rest[0] >> 4
		lengthNibble := rest[0] & 0x0F
		offset := 1
		rest = rest[1:]

		deltaVal, deltaExtLen, next, derr := readExtended(rest, deltaNibble, id, KindInvalidOptionDelta)
		if derr != nil {
			return DecodeResult{Err: derr}
		}
		rest = next

		lengthVal, lengthExtLen, next, lerr := readExtended(rest, lengthNibble, id, KindInvalidOptionLength)
		if lerr != nil {
			return DecodeResult{Err: lerr}
		}
		rest = next

		value, verr := bytesutil.TakeExact(rest, int(lengthVal))
		if verr != nil {
			return DecodeResult{Err: newChunkSizeError(&id)}
		}
		rest, _ = bytesutil.DropExact(rest, int(lengthVal))

		runningNumber += deltaVal
		if runningNumber > MaxOptionNumber {
			return DecodeResult{Err: newOptionError(KindInvalidOptionNumber, id)}
		}

		options = append(options, Option{
			Number: runningNumber,
			Value:  append([]byte(nil), value...),
			Offset: offset + deltaExtLen + lengthExtLen + int(lengthVal),
		})
	}

	return DecodeResult{Message: Message{Header: header, Body: NewBody(token, options, payload)}}
}

// readExtended interprets a delta/length nibble, reading the 1- or 2-byte
// extension when the nibble is 13 or 14. Nibble value 15 is always
// reserved/invalid.
func readExtended(rest []byte, nibble uint8, id uint16, invalidKind ErrorKind) (value uint32, consumed int, remaining []byte, err *ParseError) {
	switch {
	case nibble <= 12:
		return uint32(nibble), 0, rest, nil
	case nibble == 13:
		b, e := bytesutil.TakeExact(rest, 1)
		if e != nil {
			return 0, 0, rest, newChunkSizeError(&id)
		}
		return uint32(b[0]) + 13, 1, rest[1:], nil
	case nibble == 14:
		b, e := bytesutil.TakeExact(rest, 2)
		if e != nil {
			return 0, 0, rest, newChunkSizeError(&id)
		}
		return uint32(bytesutil.FirstTwoBytes(b)) + 269, 2, rest[2:], nil
	default: // 15, reserved
		return 0, 0, rest, newOptionError(invalidKind, id)
	}
}
