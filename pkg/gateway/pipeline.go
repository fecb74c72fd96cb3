// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package gateway wires the codec, responder, duplicate tracker, and
// broker into the ingress pipeline: read datagram -> decode -> respond
// -> deliver payload to broker.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/absmach/coap-gateway/pkg/broker"
	"github.com/absmach/coap-gateway/pkg/coap"
	"github.com/absmach/coap-gateway/pkg/dedupe"
	"github.com/absmach/coap-gateway/pkg/metrics"
	"github.com/absmach/coap-gateway/pkg/topic"
)

// deliverQueueSize bounds the pipeline's internal delivery queue
// (buffered so the decode/respond path never blocks on broker delivery).
const deliverQueueSize = 256

// Pipeline orchestrates one CoAP gateway instance: decoding, responding,
// duplicate suppression, and broker delivery.
type Pipeline struct {
	broker  *broker.Broker
	dedup   *dedupe.Set[dedupe.Key]
	hooks   Hooks
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	deliverCh chan deliverJob
}

type deliverJob struct {
	peer net.Addr
	msg  coap.Message
}

// New creates a Pipeline delivering into b. A nil hooks uses NoopHooks; a
// non-positive window uses dedupe.DefaultExchangeLifetime. m may be nil.
func New(b *broker.Broker, hooks Hooks, window time.Duration, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if hooks == nil {
		hooks = NoopHooks{}
	}
	if window <= 0 {
		window = dedupe.DefaultExchangeLifetime
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		broker:    b,
		dedup:     dedupe.New[dedupe.Key](),
		hooks:     hooks,
		window:    window,
		logger:    logger,
		metrics:   m,
		deliverCh: make(chan deliverJob, deliverQueueSize),
	}
}

// DedupSize reports the number of datagrams currently tracked by the
// duplicate suppressor, for health/readiness reporting.
func (p *Pipeline) DedupSize() int {
	return p.dedup.Size()
}

// Run drains the delivery queue until ctx is cancelled. It must run as
// its own supervised goroutine (see cmd/coap-gateway) alongside the UDP
// ingress loop.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.deliverCh:
			p.deliver(job.peer, job.msg)
		}
	}
}

// Process handles one inbound (peer, bytes) datagram: it decodes, decides
// on a reply, and enqueues successfully decoded messages for broker
// delivery. It never blocks on delivery — a full queue drops the
// datagram and calls OnDrop, matching the UDP server's own "worker
// pool full, dropping packet" policy.
func (p *Pipeline) Process(peer net.Addr, data []byte) (coap.Reply, bool) {
	result := coap.Decode(data)
	reply, hasReply := coap.Respond(peer, result)

	switch {
	case hasReply && result.Err != nil:
		p.hooks.OnReset(peer, *result.Err.ID)
	case hasReply:
		p.hooks.OnAck(peer, result.Message.Header.ID)
	}

	switch {
	case result.Err != nil && result.Err.ID == nil:
		p.hooks.OnDrop(peer, ErrMissingCoapID)
	case result.Err != nil:
		p.hooks.OnDrop(peer, result.Err)
	case result.OK():
		select {
		case p.deliverCh <- deliverJob{peer: peer, msg: result.Message}:
		default:
			p.logger.Warn("delivery queue full, dropping datagram",
				slog.String("peer", peer.String()))
			p.hooks.OnDrop(peer, ErrDeliveryQueueFull)
		}
	}

	return reply, hasReply
}

// deliver runs on the pipeline's own goroutine (via Run), so publishes to
// a single topic are delivered to the broker in the order Process
// enqueued them, independent of how many ingress goroutines called
// Process concurrently.
func (p *Pipeline) deliver(peer net.Addr, msg coap.Message) {
	key := dedupe.Key{Peer: peer.String(), ID: msg.Header.ID}
	if !p.dedup.AddAndDeleteAfter(key, p.window) {
		p.hooks.OnDrop(peer, ErrDuplicate)
		return
	}

	path := coap.UriPath(msg.Body.Options)
	tp, err := topic.Parse(path)
	if err != nil {
		p.hooks.OnDrop(peer, err)
		return
	}

	depths := p.broker.Push(tp.String(), msg.Body.Payload)
	if p.metrics != nil {
		p.metrics.BrokerPublishTotal.WithLabelValues(tp.String()).Inc()
		for _, d := range depths {
			p.metrics.MailboxDepth.Observe(float64(d))
		}
	}
	p.hooks.OnPublish(peer, tp.String(), msg.Body.Payload)
}
