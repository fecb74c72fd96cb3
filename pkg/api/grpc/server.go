// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/absmach/coap-gateway/pkg/breaker"
	"github.com/absmach/coap-gateway/pkg/broker"
	"github.com/absmach/coap-gateway/pkg/metrics"
	"github.com/absmach/coap-gateway/pkg/topic"
)

// Server implements BrokerServer against a broker.Broker.
type Server struct {
	UnimplementedBrokerServer

	broker  *broker.Broker
	breaker *breaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Server backed by b. breaker and m may be nil.
func New(b *broker.Broker, cb *breaker.CircuitBreaker, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{broker: b, breaker: cb, metrics: m, logger: logger}
}

// filterTopics rejects any segment that is empty or contains '/', per the
// subscription API's filter: only topic.New's cleaned form for a
// single-segment input, unchanged from the raw string, is accepted.
func filterTopics(topics []string) []string {
	valid := make([]string, 0, len(topics))
	for _, t := range topics {
		tp, err := topic.New([]string{t})
		if err != nil {
			continue
		}
		if tp.String() != t {
			continue
		}
		valid = append(valid, t)
	}
	return valid
}

// Subscribe implements BrokerServer. The client stream carries a sequence
// of SubscribeRequests: the first establishes the initial subscription
// set (it must ADD at least one valid topic), and any further request
// applies an ADD or REMOVE against the same subscriber id. Fanned-out
// payloads are drained from the subscriber's mailbox concurrently with
// that receive loop.
func (s *Server) Subscribe(stream Broker_SubscribeServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	topics := filterTopics(first.Topics)
	if first.Action != ActionAdd || len(topics) == 0 {
		return status.Error(codes.InvalidArgument, "first message must ADD at least one valid topic")
	}

	id := s.broker.NextID()
	s.broker.AddSubscriberTo(topics, id)
	defer s.broker.RemoveSubscriber(id)

	if s.metrics != nil {
		s.metrics.GRPCStreamsActive.Inc()
		defer s.metrics.GRPCStreamsActive.Dec()
	}

	mb, ok := s.broker.Mailbox(id)
	if !ok {
		return status.Error(codes.Internal, "subscriber mailbox missing")
	}

	recvErrCh := make(chan error, 1)
	go s.recvLoop(stream, id, recvErrCh)

	ctx := stream.Context()
	for {
		msg, ok := mb.Take(ctx)
		if !ok {
			return ctx.Err()
		}

		if err := s.send(stream, msg); err != nil {
			if err == breaker.ErrCircuitOpen {
				s.logger.Warn("dropping subscriber message, circuit open", slog.Uint64("subscriber", id))
				continue
			}
			return err
		}

		select {
		case err := <-recvErrCh:
			if err != nil && err != io.EOF && !errors.Is(err, context.Canceled) {
				return err
			}
		default:
		}
	}
}

// recvLoop applies every ADD/REMOVE SubscribeRequest arriving after the
// first to the broker, until the stream errors (client hangup, context
// cancellation).
func (s *Server) recvLoop(stream Broker_SubscribeServer, id uint64, errCh chan<- error) {
	for {
		req, err := stream.Recv()
		if err != nil {
			errCh <- err
			return
		}
		topics := filterTopics(req.Topics)
		if len(topics) == 0 {
			continue
		}
		switch req.Action {
		case ActionAdd:
			s.broker.AddSubscriberTo(topics, id)
		case ActionRemove:
			s.broker.RemoveSubscriptions(topics, id)
		}
	}
}

func (s *Server) send(stream Broker_SubscribeServer, msg broker.Message) error {
	env := &Envelope{Path: strings.Split(msg.Topic, "/"), Payload: msg.Payload}
	call := func() error { return stream.Send(env) }
	if s.breaker == nil {
		err := call()
		s.recordPush(err, msg.Topic)
		return err
	}
	err := s.breaker.Call(call)
	s.recordPush(err, msg.Topic)
	return err
}

func (s *Server) recordPush(err error, path string) {
	if s.metrics == nil || err != nil {
		return
	}
	s.metrics.GRPCMessagesPushed.WithLabelValues(path).Inc()
}

// GetTopics implements BrokerServer, streaming one Path per topic
// currently known to the broker.
func (s *Server) GetTopics(_ *GetTopicsRequest, stream Broker_GetTopicsServer) error {
	for _, p := range s.broker.GetTopics() {
		if err := stream.Send(&Path{Segments: strings.Split(p, "/")}); err != nil {
			return err
		}
	}
	return nil
}

// Listen starts a gRPC server exposing Server on address and blocks until
// ctx is cancelled.
func Listen(ctx context.Context, address string, srv *Server) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	gs := grpc.NewServer()
	gs.RegisterService(&ServiceDesc, srv)

	srv.logger.Info("gRPC broker facade listening", slog.String("address", address))

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()

	select {
	case <-ctx.Done():
		gs.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
