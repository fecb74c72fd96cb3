// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	grpcapi "github.com/absmach/coap-gateway/pkg/api/grpc"
	"github.com/absmach/coap-gateway/pkg/breaker"
	"github.com/absmach/coap-gateway/pkg/broker"
	"github.com/absmach/coap-gateway/pkg/coap"
	"github.com/absmach/coap-gateway/pkg/gateway"
	"github.com/absmach/coap-gateway/pkg/health"
	"github.com/absmach/coap-gateway/pkg/metrics"
	"github.com/absmach/coap-gateway/pkg/ratelimit"
	udpserver "github.com/absmach/coap-gateway/pkg/server/udp"

	"github.com/absmach/coap-gateway/internal/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	b := broker.New()
	m := metrics.New(cfg.MetricsNamespace)

	pipeline := gateway.New(b, loggingHooks{logger: logger, metrics: m}, cfg.DedupWindow, logger, m)
	g.Go(func() error {
		pipeline.Run(ctx)
		return nil
	})

	limiter := ratelimit.NewLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefillPerSecond, cfg.RateLimitMaxPeers)
	defer limiter.Close()

	udpSrv := udpserver.New(udpserver.Config{
		Address:         cfg.UDPAddress,
		IdleTimeout:     cfg.PeerIdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		BufferSize:      cfg.BufferSize,
		WorkerPoolSize:  cfg.WorkerPoolSize,
		Logger:          logger,
	}, pipeline, limiter, m)

	g.Go(func() error {
		return udpSrv.Listen(ctx)
	})

	cb := breaker.New(breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
	})
	cb.OnStateChange(func(from, to breaker.State) {
		m.CircuitBreakerState.WithLabelValues("grpc_subscribers").Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.WithLabelValues("grpc_subscribers").Inc()
		}
		logger.Info("circuit breaker state change",
			slog.String("target", "grpc_subscribers"),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})
	grpcSrv := grpcapi.New(b, cb, m, logger)
	g.Go(func() error {
		return grpcapi.Listen(ctx, cfg.GRPCAddress, grpcSrv)
	})

	g.Go(func() error {
		return sampleBrokerGauges(ctx, b, m)
	})

	g.Go(func() error {
		return sampleThrottleGauges(ctx, limiter, cb, m)
	})

	checker := health.NewChecker(5 * time.Second)
	checker.Register("udp_socket", func(context.Context) (string, error) {
		addr := udpSrv.LocalAddr()
		if addr == nil {
			return "", fmt.Errorf("udp socket not yet bound")
		}
		return addr.String(), nil
	})
	checker.Register("broker", func(context.Context) (string, error) {
		topics, subs := b.TopicCount(), b.SubscriberCount()
		if topics < 0 || subs < 0 {
			return "", fmt.Errorf("broker reported negative counts: topics=%d subscribers=%d", topics, subs)
		}
		return fmt.Sprintf("topics=%d subscribers=%d", topics, subs), nil
	})
	checker.Register("dedup", func(context.Context) (string, error) {
		size := pipeline.DedupSize()
		if size < 0 {
			return "", fmt.Errorf("duplicate tracker reported negative size: %d", size)
		}
		return fmt.Sprintf("tracked=%d", size), nil
	})
	checker.Register("grpc_breaker", func(context.Context) (string, error) {
		state, failures, _ := cb.Stats()
		if state == breaker.StateOpen {
			return "", fmt.Errorf("circuit open after %d failures", failures)
		}
		return fmt.Sprintf("state=%s failures=%d", state, failures), nil
	})

	g.Go(func() error {
		return serveHTTP(ctx, cfg.HTTPAddress, checker, logger)
	})

	g.Go(func() error {
		return stopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("coap-gateway terminated with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("coap-gateway stopped")
}

func serveHTTP(ctx context.Context, addr string, checker *health.Checker, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.HTTPHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
	mux.Handle("/livez", health.LivenessHandler())
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP admin server listening", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// sampleBrokerGauges periodically snapshots broker topic and subscriber
// counts into gauges. The broker has no change-notification hook of its
// own, so polling is the simplest way to keep these gauges current
// without adding call-site instrumentation to every broker method.
func sampleBrokerGauges(ctx context.Context, b *broker.Broker, m *metrics.Metrics) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.BrokerTopics.Set(float64(b.TopicCount()))
			m.BrokerSubscribers.Set(float64(b.SubscriberCount()))
		}
	}
}

// sampleThrottleGauges periodically snapshots rate limiter and circuit
// breaker state into gauges, mirroring sampleBrokerGauges: the rate
// limiter pushes no change notifications of its own, and the breaker's
// OnStateChange callback fires only on transitions.
func sampleThrottleGauges(ctx context.Context, limiter *ratelimit.Limiter, cb *breaker.CircuitBreaker, m *metrics.Metrics) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.RateLimitActiveClients.Set(float64(limiter.Stats()))
			state, _, _ := cb.Stats()
			m.CircuitBreakerState.WithLabelValues("grpc_subscribers").Set(float64(state))
		}
	}
}

// loggingHooks adapts gateway.Hooks onto structured logging and metrics.
type loggingHooks struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (h loggingHooks) OnAck(peer net.Addr, id uint16) {
	h.metrics.AcksSent.Inc()
	h.logger.Debug("ack sent", slog.String("peer", peer.String()), slog.Uint64("id", uint64(id)))
}

func (h loggingHooks) OnReset(peer net.Addr, id uint16) {
	h.metrics.ResetsSent.Inc()
	h.logger.Debug("reset sent", slog.String("peer", peer.String()), slog.Uint64("id", uint64(id)))
}

func (h loggingHooks) OnPublish(peer net.Addr, path string, payload []byte) {
	h.logger.Debug("published", slog.String("peer", peer.String()), slog.String("topic", path), slog.Int("bytes", len(payload)))
}

func (h loggingHooks) OnDrop(peer net.Addr, err error) {
	switch {
	case err == gateway.ErrDuplicate:
		h.metrics.DuplicatesDropped.Inc()
	case err == gateway.ErrDeliveryQueueFull:
		h.metrics.DeliveryQueueDrops.Inc()
	case err == gateway.ErrMissingCoapID:
		h.metrics.DecodeErrors.WithLabelValues("no_id").Inc()
	default:
		kind := "topic"
		if pe, ok := err.(*coap.ParseError); ok {
			kind = pe.Kind.String()
		}
		h.metrics.DecodeErrors.WithLabelValues(kind).Inc()
	}
	h.logger.Debug("datagram dropped", slog.String("peer", peer.String()), slog.String("error", err.Error()))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func stopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
