// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway's runtime configuration from the
// environment: a plain struct with env tags, parsed with caarlos0/env,
// optionally preceded by a .env file loaded with godotenv.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full set of environment-driven gateway settings.
type Config struct {
	// UDPAddress is the CoAP listen address, host:port.
	UDPAddress string `env:"COAP_GATEWAY_UDP_ADDRESS,required"`

	// GRPCAddress is the Subscribe/GetTopics facade's listen address.
	GRPCAddress string `env:"COAP_GATEWAY_GRPC_ADDRESS" envDefault:":7070"`

	// HTTPAddress serves /healthz, /readyz, and /metrics.
	HTTPAddress string `env:"COAP_GATEWAY_HTTP_ADDRESS" envDefault:":9090"`

	// DedupWindow is the exchange lifetime used to suppress retransmissions.
	DedupWindow time.Duration `env:"COAP_GATEWAY_DEDUP_WINDOW" envDefault:"145s"`

	// DeliverQueueSize is parsed from the environment but not passed on:
	// the pipeline's broker-delivery queue has a fixed capacity of 256
	// (gateway's deliverQueueSize) whatever this is set to.
	DeliverQueueSize int `env:"COAP_GATEWAY_DELIVER_QUEUE_SIZE" envDefault:"256"`

	// BufferSize is the UDP datagram read buffer size in bytes.
	BufferSize int `env:"COAP_GATEWAY_BUFFER_SIZE" envDefault:"8192"`

	// WorkerPoolSize is the number of goroutines processing datagrams.
	WorkerPoolSize int `env:"COAP_GATEWAY_WORKER_POOL_SIZE" envDefault:"100"`

	// PeerIdleTimeout evicts a peer's session bookkeeping record after
	// this long without a datagram.
	PeerIdleTimeout time.Duration `env:"COAP_GATEWAY_PEER_IDLE_TIMEOUT" envDefault:"5m"`

	// ShutdownTimeout bounds graceful worker drain on shutdown.
	ShutdownTimeout time.Duration `env:"COAP_GATEWAY_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// RateLimitCapacity is the token bucket capacity per peer address.
	RateLimitCapacity int64 `env:"COAP_GATEWAY_RATE_LIMIT_CAPACITY" envDefault:"100"`

	// RateLimitRefillPerSecond is the token refill rate per peer address.
	RateLimitRefillPerSecond int64 `env:"COAP_GATEWAY_RATE_LIMIT_REFILL" envDefault:"50"`

	// RateLimitMaxPeers bounds the number of tracked per-peer limiters.
	RateLimitMaxPeers int `env:"COAP_GATEWAY_RATE_LIMIT_MAX_PEERS" envDefault:"10000"`

	// BreakerMaxFailures is the consecutive gRPC egress failure count
	// that trips the circuit breaker guarding a subscriber stream.
	BreakerMaxFailures int `env:"COAP_GATEWAY_BREAKER_MAX_FAILURES" envDefault:"5"`

	// BreakerResetTimeout is how long the breaker stays open before
	// probing the subscriber stream again.
	BreakerResetTimeout time.Duration `env:"COAP_GATEWAY_BREAKER_RESET_TIMEOUT" envDefault:"60s"`

	// MetricsNamespace prefixes every exported Prometheus metric.
	MetricsNamespace string `env:"COAP_GATEWAY_METRICS_NAMESPACE" envDefault:"coapgw"`

	// LogLevel controls the slog handler's minimum level (debug, info, warn, error).
	LogLevel string `env:"COAP_GATEWAY_LOG_LEVEL" envDefault:"info"`
}

// Load parses Config from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
