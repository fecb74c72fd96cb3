// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package grpc

import (
	"encoding/binary"
	"fmt"

	"github.com/absmach/coap-gateway/pkg/bytesutil"
)

// Action names an ADD or REMOVE subscription change carried by a
// SubscribeRequest on a live Subscribe stream.
type Action int32

const (
	ActionAdd Action = iota
	ActionRemove
)

// SubscribeRequest is one message on a bidirectional Subscribe stream: it
// names an Action and the topic paths (segments, one per string) it
// applies to.
type SubscribeRequest struct {
	Action Action
	Topics []string
}

// Envelope carries one delivered payload plus the topic path (segments)
// it was published to, so a subscriber fanned in from several sub-paths
// can tell which publish produced a given payload.
type Envelope struct {
	Path    []string
	Payload []byte
}

// GetTopicsRequest has no fields; it exists so the RPC has a typed
// request message like every other method.
type GetTopicsRequest struct{}

// Path names a single topic path as its ordered list of segments. One
// Path is streamed per topic known to the broker.
type Path struct {
	Segments []string
}

func marshalStrings(ss []string) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(len(ss)))
	for _, s := range ss {
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(s)))
		buf = append(buf, lenBuf...)
		buf = append(buf, s...)
	}
	return buf
}

// unmarshalStrings decodes a length-prefixed string list off the front of
// data and returns the strings alongside whatever bytes follow it, so
// callers can chain additional fields after the list.
func unmarshalStrings(data []byte) (ss []string, rest []byte, err error) {
	header, err := bytesutil.TakeExact(data, 2)
	if err != nil {
		return nil, nil, err
	}
	count := bytesutil.FirstTwoBytes(header)
	data, _ = bytesutil.DropExact(data, 2)

	ss = make([]string, 0, count)
	for i := 0; i < count; i++ {
		lenHeader, err := bytesutil.TakeExact(data, 2)
		if err != nil {
			return nil, nil, err
		}
		l := bytesutil.FirstTwoBytes(lenHeader)
		data, _ = bytesutil.DropExact(data, 2)

		s, err := bytesutil.TakeExact(data, l)
		if err != nil {
			return nil, nil, err
		}
		data, _ = bytesutil.DropExact(data, l)
		ss = append(ss, string(s))
	}
	return ss, data, nil
}

// Marshal implements wireMessage.
func (m *SubscribeRequest) Marshal() ([]byte, error) {
	buf := append([]byte{byte(m.Action)}, marshalStrings(m.Topics)...)
	return buf, nil
}

// Unmarshal implements wireMessage.
func (m *SubscribeRequest) Unmarshal(data []byte) error {
	action, err := bytesutil.TakeExact(data, 1)
	if err != nil {
		return fmt.Errorf("grpc: decoding SubscribeRequest action: %w", err)
	}
	rest, _ := bytesutil.DropExact(data, 1)

	ss, _, err := unmarshalStrings(rest)
	if err != nil {
		return fmt.Errorf("grpc: decoding SubscribeRequest: %w", err)
	}
	m.Action = Action(action[0])
	m.Topics = ss
	return nil
}

// Marshal implements wireMessage.
func (m *Envelope) Marshal() ([]byte, error) {
	buf := marshalStrings(m.Path)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(m.Payload)))
	buf = append(buf, lenBuf...)
	buf = append(buf, m.Payload...)
	return buf, nil
}

// Unmarshal implements wireMessage.
func (m *Envelope) Unmarshal(data []byte) error {
	segs, rest, err := unmarshalStrings(data)
	if err != nil {
		return fmt.Errorf("grpc: decoding Envelope path: %w", err)
	}

	lenHeader, err := bytesutil.TakeExact(rest, 4)
	if err != nil {
		return fmt.Errorf("grpc: decoding Envelope payload length: %w", err)
	}
	n := int(binary.BigEndian.Uint32(lenHeader))
	rest, _ = bytesutil.DropExact(rest, 4)

	payload, err := bytesutil.TakeExact(rest, n)
	if err != nil {
		return fmt.Errorf("grpc: decoding Envelope payload: %w", err)
	}
	m.Path = segs
	m.Payload = append([]byte(nil), payload...)
	return nil
}

// Marshal implements wireMessage.
func (m *GetTopicsRequest) Marshal() ([]byte, error) { return nil, nil }

// Unmarshal implements wireMessage.
func (m *GetTopicsRequest) Unmarshal([]byte) error { return nil }

// Marshal implements wireMessage.
func (m *Path) Marshal() ([]byte, error) {
	return marshalStrings(m.Segments), nil
}

// Unmarshal implements wireMessage.
func (m *Path) Unmarshal(data []byte) error {
	ss, _, err := unmarshalStrings(data)
	if err != nil {
		return fmt.Errorf("grpc: decoding Path: %w", err)
	}
	m.Segments = ss
	return nil
}
