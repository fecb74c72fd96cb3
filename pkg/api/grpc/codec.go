// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package grpc exposes the broker's Subscribe/GetTopics operations over a
// gRPC streaming façade, hand-authored against google.golang.org/grpc's
// low-level ServiceDesc/StreamDesc API. Wire-compatible protobuf messages
// require descriptors emitted by protoc; producing those by hand is
// impractical, so this package registers its own "proto" codec (a
// documented grpc-go extension point, see encoding.RegisterCodec) that
// marshals the message types below with a hand-rolled length-prefixed,
// big-endian byte encoding (see messages.go, read back with
// pkg/bytesutil's helpers), instead of shadowing
// google.golang.org/protobuf's wire format.
package grpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// wireMessage is satisfied by every message type in this package.
type wireMessage interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// codecName matches grpc-go's built-in default so that grpc.NewServer and
// grpc.Dial use this codec without extra dial/server options.
const codecName = "proto"

type byteCodec struct{}

func (byteCodec) Name() string { return codecName }

func (byteCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("grpc: %T does not implement wireMessage", v)
	}
	return m.Marshal()
}

func (byteCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("grpc: %T does not implement wireMessage", v)
	}
	return m.Unmarshal(data)
}

func init() {
	encoding.RegisterCodec(byteCodec{})
}
