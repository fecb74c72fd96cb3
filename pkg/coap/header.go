// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

// Type is the CoAP message type carried in the header.
type Type uint8

const (
	// Confirmable messages require an acknowledgement from the receiver.
	Confirmable Type = 0
	// NonConfirmable messages are not acknowledged.
	NonConfirmable Type = 1
	// Acknowledgement messages confirm receipt of a Confirmable message.
	Acknowledgement Type = 2
	// ResetType messages indicate a message was received but could not be
	// processed.
	ResetType Type = 3
)

func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case ResetType:
		return "RST"
	default:
		return "UNKNOWN"
	}
}

// Header is the fixed 4-byte CoAP header, decomposed into its bit-packed
// fields (RFC 7252 §3).
type Header struct {
	Version     uint8
	Type        Type
	TokenLength uint8
	CodePrefix  uint8
	CodeSuffix  uint8
	ID          uint16
}

// NewHeader validates and constructs a Header. Every field is checked
// against its fixed bit range; construction fails on the first violation.
// The recovered id is always attached to the returned error, since bytes
// 3-4 (the message id) are read before header-field validation runs.
func NewHeader(version, typ, tokenLength, codePrefix, codeSuffix uint8, id uint16) (Header, *ParseError) {
	if version != 1 {
		return Header{}, newHeaderFieldError(FieldVersion, id)
	}
	if typ > 3 {
		return Header{}, newHeaderFieldError(FieldType, id)
	}
	if tokenLength > 8 {
		return Header{}, newHeaderFieldError(FieldTokenLength, id)
	}
	if codePrefix > 7 {
		return Header{}, newHeaderFieldError(FieldCodePrefix, id)
	}
	if codeSuffix > 31 {
		return Header{}, newHeaderFieldError(FieldCodeSuffix, id)
	}
	return Header{
		Version:     version,
		Type:        Type(typ),
		TokenLength: tokenLength,
		CodePrefix:  codePrefix,
		CodeSuffix:  codeSuffix,
		ID:          id,
	}, nil
}

// IsConfirmable reports whether the header's type is Confirmable.
func (h Header) IsConfirmable() bool {
	return h.Type == Confirmable
}
