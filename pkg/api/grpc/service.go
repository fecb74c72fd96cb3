// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// BrokerServer is implemented by the type registered against ServiceDesc.
type BrokerServer interface {
	// Subscribe is a bidirectional stream: the client sends a
	// SubscribeRequest (ADD or REMOVE, naming topic paths) whenever its
	// subscription set changes, and the server fans out every payload
	// published to those paths (or to any path beneath them) as Envelopes
	// until the stream's context is done.
	Subscribe(stream Broker_SubscribeServer) error

	// GetTopics streams every topic path currently known to the broker,
	// one Path per message.
	GetTopics(req *GetTopicsRequest, stream Broker_GetTopicsServer) error
}

// UnimplementedBrokerServer can be embedded to satisfy BrokerServer while
// only overriding the methods a given server cares about.
type UnimplementedBrokerServer struct{}

func (UnimplementedBrokerServer) Subscribe(Broker_SubscribeServer) error {
	return grpcUnimplemented("Subscribe")
}

func (UnimplementedBrokerServer) GetTopics(*GetTopicsRequest, Broker_GetTopicsServer) error {
	return grpcUnimplemented("GetTopics")
}

// Broker_SubscribeServer is the server-side stream handle for Subscribe.
type Broker_SubscribeServer interface {
	Send(*Envelope) error
	Recv() (*SubscribeRequest, error)
	grpc.ServerStream
}

type brokerSubscribeServer struct {
	grpc.ServerStream
}

func (s *brokerSubscribeServer) Send(m *Envelope) error {
	return s.ServerStream.SendMsg(m)
}

func (s *brokerSubscribeServer) Recv() (*SubscribeRequest, error) {
	m := new(SubscribeRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Broker_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(BrokerServer).Subscribe(&brokerSubscribeServer{stream})
}

// Broker_GetTopicsServer is the server-side stream handle for GetTopics.
type Broker_GetTopicsServer interface {
	Send(*Path) error
	grpc.ServerStream
}

type brokerGetTopicsServer struct {
	grpc.ServerStream
}

func (s *brokerGetTopicsServer) Send(m *Path) error {
	return s.ServerStream.SendMsg(m)
}

func _Broker_GetTopics_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(GetTopicsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(BrokerServer).GetTopics(m, &brokerGetTopicsServer{stream})
}

// ServiceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would emit for a service with one bidirectional-streaming RPC and one
// server-streaming RPC, registered with grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "coapgateway.Broker",
	HandlerType: (*BrokerServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       _Broker_Subscribe_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "GetTopics",
			Handler:       _Broker_GetTopics_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "coapgateway/broker.proto",
}

// BrokerClient is the client-side counterpart of BrokerServer.
type BrokerClient interface {
	Subscribe(ctx context.Context, opts ...grpc.CallOption) (Broker_SubscribeClient, error)
	GetTopics(ctx context.Context, req *GetTopicsRequest, opts ...grpc.CallOption) (Broker_GetTopicsClient, error)
}

type brokerClient struct {
	cc grpc.ClientConnInterface
}

// NewBrokerClient wraps a client connection for calling the Broker service.
func NewBrokerClient(cc grpc.ClientConnInterface) BrokerClient {
	return &brokerClient{cc: cc}
}

func (c *brokerClient) Subscribe(ctx context.Context, opts ...grpc.CallOption) (Broker_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/coapgateway.Broker/Subscribe", opts...)
	if err != nil {
		return nil, err
	}
	return &brokerSubscribeClient{stream}, nil
}

func (c *brokerClient) GetTopics(ctx context.Context, req *GetTopicsRequest, opts ...grpc.CallOption) (Broker_GetTopicsClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], "/coapgateway.Broker/GetTopics", opts...)
	if err != nil {
		return nil, err
	}
	x := &brokerGetTopicsClient{stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// Broker_SubscribeClient is the client-side stream handle for Subscribe.
type Broker_SubscribeClient interface {
	Send(*SubscribeRequest) error
	Recv() (*Envelope, error)
	grpc.ClientStream
}

type brokerSubscribeClient struct {
	grpc.ClientStream
}

func (x *brokerSubscribeClient) Send(m *SubscribeRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *brokerSubscribeClient) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Broker_GetTopicsClient is the client-side stream handle for GetTopics.
type Broker_GetTopicsClient interface {
	Recv() (*Path, error)
	grpc.ClientStream
}

type brokerGetTopicsClient struct {
	grpc.ClientStream
}

func (x *brokerGetTopicsClient) Recv() (*Path, error) {
	m := new(Path)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
