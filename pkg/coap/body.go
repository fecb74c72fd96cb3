// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

// Token is the CoAP token: 0 bytes (absent, represented as a nil Token) or
// 1-8 opaque bytes correlating a request with its response.
type Token []byte

// MediaType classifies how the payload should be interpreted. Content-
// Format sniffing beyond "treat as text" is a placeholder pending a real
// implementation; this gateway never returns anything but
// MediaTypeAbsent, MediaTypeText, or MediaTypeSniffing.
type MediaType int

const (
	MediaTypeAbsent MediaType = iota
	MediaTypeText
	MediaTypeSniffing
)

// Body is the optional token, option list, and payload that follow the
// fixed header.
type Body struct {
	Token     Token
	Options   []Option
	Payload   []byte
	MediaType MediaType
}

// NewBody canonicalizes empty option/payload collections to absent (nil)
// and derives the media type from a Content-Format option (number 12)
// if present.
func NewBody(token Token, options []Option, payload []byte) Body {
	if len(options) == 0 {
		options = nil
	}
	if len(payload) == 0 {
		payload = nil
	}
	return Body{
		Token:     token,
		Options:   options,
		Payload:   payload,
		MediaType: mediaTypeOf(options, payload),
	}
}

func mediaTypeOf(options []Option, payload []byte) MediaType {
	if len(payload) == 0 {
		return MediaTypeAbsent
	}
	for _, o := range options {
		if o.Number == OptionContentFormat && len(o.Value) > 0 {
			// A present, integer-valued Content-Format selects a media
			// type. This scope only distinguishes "typed" from
			// "sniffed"; both currently render as text.
			return MediaTypeText
		}
	}
	return MediaTypeSniffing
}
