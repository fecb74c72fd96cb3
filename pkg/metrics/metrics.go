// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for the CoAP gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Ingress/egress datagram metrics.
	DatagramsTotal     *prometheus.CounterVec
	DatagramSize       *prometheus.HistogramVec
	DecodeErrors       *prometheus.CounterVec
	AcksSent           prometheus.Counter
	ResetsSent         prometheus.Counter
	DuplicatesDropped  prometheus.Counter
	DeliveryQueueDrops prometheus.Counter

	// Broker metrics.
	BrokerTopics       prometheus.Gauge
	BrokerSubscribers  prometheus.Gauge
	BrokerPublishTotal *prometheus.CounterVec
	MailboxDepth       prometheus.Histogram

	// Rate limiter / circuit breaker metrics.
	RateLimitedDatagrams   prometheus.Counter
	RateLimitActiveClients prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerTrips    *prometheus.CounterVec

	// gRPC subscription facade metrics.
	GRPCStreamsActive  prometheus.Gauge
	GRPCMessagesPushed *prometheus.CounterVec
}

// New creates a new Metrics instance with all counters, gauges, and
// histograms registered against the default Prometheus registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "coapgw"
	}

	return &Metrics{
		DatagramsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datagrams_total",
				Help:      "Total number of CoAP datagrams processed, by message type and direction",
			},
			[]string{"type", "direction"},
		),
		DatagramSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "datagram_size_bytes",
				Help:      "Size of CoAP datagrams in bytes",
				Buckets:   []float64{16, 32, 64, 128, 256, 512, 1024, 1500},
			},
			[]string{"direction"},
		),
		DecodeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_errors_total",
				Help:      "Total number of datagrams that failed to decode, by error kind",
			},
			[]string{"kind"},
		),
		AcksSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acks_sent_total",
				Help:      "Total number of acknowledgements sent for Confirmable messages",
			},
		),
		ResetsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resets_sent_total",
				Help:      "Total number of resets sent for malformed, id-carrying datagrams",
			},
		),
		DuplicatesDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicates_dropped_total",
				Help:      "Total number of retransmissions absorbed by the duplicate tracker",
			},
		),
		DeliveryQueueDrops: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_queue_drops_total",
				Help:      "Total number of datagrams dropped because the delivery queue was full",
			},
		),
		BrokerTopics: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "broker_topics",
				Help:      "Number of distinct topic paths known to the broker",
			},
		),
		BrokerSubscribers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "broker_subscribers",
				Help:      "Number of active broker subscribers",
			},
		),
		BrokerPublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broker_publish_total",
				Help:      "Total number of payloads pushed into the broker, by topic",
			},
			[]string{"topic"},
		),
		MailboxDepth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mailbox_depth",
				Help:      "Observed subscriber mailbox depth at publish time",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		RateLimitedDatagrams: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_datagrams_total",
				Help:      "Total number of datagrams rejected by the per-peer rate limiter",
			},
		),
		RateLimitActiveClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rate_limit_active_clients",
				Help:      "Number of peer addresses currently tracked by the rate limiter",
			},
		),
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"target"},
		),
		CircuitBreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"target"},
		),
		GRPCStreamsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "grpc_streams_active",
				Help:      "Number of active gRPC Subscribe streams",
			},
		),
		GRPCMessagesPushed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_messages_pushed_total",
				Help:      "Total number of messages pushed to gRPC subscribers",
			},
			[]string{"topic"},
		),
	}
}

// ObserveDatagram records an inbound or outbound datagram of the given
// CoAP message type.
func (m *Metrics) ObserveDatagram(msgType, direction string, size int) {
	m.DatagramsTotal.WithLabelValues(msgType, direction).Inc()
	m.DatagramSize.WithLabelValues(direction).Observe(float64(size))
}
