// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package udp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/absmach/coap-gateway/pkg/coap"
	gwerrors "github.com/absmach/coap-gateway/pkg/errors"
	"github.com/absmach/coap-gateway/pkg/metrics"
)

const (
	// MaxDatagramSize is the maximum size of a UDP datagram.
	MaxDatagramSize = 65535

	// DefaultBufferSize is the default buffer size for UDP reads.
	DefaultBufferSize = 8192

	// DefaultWorkerPoolSize is the default number of workers processing
	// datagrams concurrently.
	DefaultWorkerPoolSize = 100

	// DefaultIdleTimeout is how long a peer session may sit idle before
	// its bookkeeping record is evicted.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultShutdownTimeout bounds how long Listen waits for in-flight
	// workers to finish during graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Processor decodes an inbound datagram and decides on a reply. It is
// implemented by *gateway.Pipeline; the interface exists so this package
// can be tested and reasoned about without importing gateway's broker
// wiring.
type Processor interface {
	Process(peer net.Addr, data []byte) (coap.Reply, bool)
}

// RateLimiter gates datagrams per peer key (typically the peer address).
type RateLimiter interface {
	Allow(key string) bool
}

// Config holds the UDP server configuration.
type Config struct {
	// Address is the listen address (host:port).
	Address string

	// IdleTimeout is the peer session idle timeout.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful worker drain on shutdown.
	ShutdownTimeout time.Duration

	// BufferSize is the size of datagram read buffers in bytes.
	BufferSize int

	// WorkerPoolSize is the number of goroutines processing datagrams.
	WorkerPoolSize int

	// ReadBufferSize sets the socket receive buffer size (SO_RCVBUF).
	ReadBufferSize int

	// WriteBufferSize sets the socket send buffer size (SO_SNDBUF).
	WriteBufferSize int

	// Logger for server events.
	Logger *slog.Logger
}

type packetJob struct {
	clientAddr *net.UDPAddr
	data       []byte
}

// Server is the CoAP gateway's UDP ingress/egress: it terminates every
// datagram on the listening socket itself (decode, respond, hand off to
// the broker via Processor) rather than proxying to a backend.
type Server struct {
	config     Config
	processor  Processor
	limiter    RateLimiter
	metrics    *metrics.Metrics
	sessions   *SessionManager
	bufferPool *sync.Pool
	packetCh   chan packetJob
	workerWg   sync.WaitGroup

	addrMu    sync.RWMutex
	boundAddr *net.UDPAddr
}

// LocalAddr returns the address the server is bound to, or nil if Listen
// has not yet bound a socket.
func (s *Server) LocalAddr() *net.UDPAddr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.boundAddr
}

// New creates a new UDP server with the given configuration, processor,
// and optional rate limiter and metrics (either may be nil).
func New(cfg Config, p Processor, limiter RateLimiter, m *metrics.Metrics) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.BufferSize > MaxDatagramSize {
		cfg.BufferSize = MaxDatagramSize
	}
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = DefaultWorkerPoolSize
	}

	bufferPool := &sync.Pool{
		New: func() interface{} {
			buf := make([]byte, cfg.BufferSize)
			return &buf
		},
	}

	return &Server{
		config:     cfg,
		processor:  p,
		limiter:    limiter,
		metrics:    m,
		sessions:   NewSessionManager(cfg.Logger),
		bufferPool: bufferPool,
		packetCh:   make(chan packetJob, cfg.WorkerPoolSize*2),
	}
}

// Listen starts the UDP server and blocks until the context is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.config.Address)
	if err != nil {
		return gwerrors.New("resolve_addr", "udp_ingress", s.config.Address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return gwerrors.New("listen", "udp_ingress", s.config.Address, err)
	}
	defer conn.Close()

	s.addrMu.Lock()
	s.boundAddr = conn.LocalAddr().(*net.UDPAddr)
	s.addrMu.Unlock()

	if s.config.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(s.config.ReadBufferSize); err != nil {
			s.config.Logger.Warn("failed to set read buffer size", slog.String("error", err.Error()))
		}
	}
	if s.config.WriteBufferSize > 0 {
		if err := conn.SetWriteBuffer(s.config.WriteBufferSize); err != nil {
			s.config.Logger.Warn("failed to set write buffer size", slog.String("error", err.Error()))
		}
	}

	s.config.Logger.Info("UDP gateway listening",
		slog.String("address", s.config.Address),
		slog.Int("worker_pool_size", s.config.WorkerPoolSize),
		slog.Int("buffer_size", s.config.BufferSize))

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	s.startWorkerPool(workerCtx, conn)

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()
	go s.sessions.Cleanup(cleanupCtx, s.config.IdleTimeout)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			bufPtr := s.bufferPool.Get().(*[]byte)
			buffer := *bufPtr

			n, clientAddr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				s.bufferPool.Put(bufPtr)
				select {
				case <-ctx.Done():
					return
				default:
					s.config.Logger.Error("failed to read UDP datagram", slog.String("error", err.Error()))
					continue
				}
			}

			datagram := make([]byte, n)
			copy(datagram, buffer[:n])
			s.bufferPool.Put(bufPtr)

			select {
			case s.packetCh <- packetJob{clientAddr: clientAddr, data: datagram}:
			case <-ctx.Done():
				return
			default:
				s.config.Logger.Warn("worker pool full, dropping datagram", slog.String("peer", clientAddr.String()))
			}
		}
	}()

	<-ctx.Done()
	s.config.Logger.Info("shutdown signal received, closing listener")

	if err := conn.Close(); err != nil {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}
	<-readDone

	close(s.packetCh)
	workerCancel()

	drained := make(chan struct{})
	go func() {
		s.workerWg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.config.Logger.Info("all workers stopped")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, workers still draining")
		return ErrShutdownTimeout
	}
}

func (s *Server) startWorkerPool(ctx context.Context, conn *net.UDPConn) {
	for i := 0; i < s.config.WorkerPoolSize; i++ {
		s.workerWg.Add(1)
		go func(workerID int) {
			defer s.workerWg.Done()
			s.packetWorker(ctx, conn, workerID)
		}(i)
	}
	s.config.Logger.Info("worker pool started", slog.Int("workers", s.config.WorkerPoolSize))
}

func (s *Server) packetWorker(ctx context.Context, conn *net.UDPConn, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.packetCh:
			if !ok {
				return
			}
			s.handlePacket(conn, job.clientAddr, job.data)
		}
	}
}

// handlePacket runs the rate limiter, decode/respond pipeline, and writes
// a reply datagram back to the peer if one is due.
func (s *Server) handlePacket(conn *net.UDPConn, clientAddr *net.UDPAddr, data []byte) {
	_, isNew := s.sessions.GetOrCreate(clientAddr)
	if isNew {
		s.config.Logger.Debug("new peer", slog.String("peer", clientAddr.String()))
	}

	if s.metrics != nil {
		msgType := "unknown"
		if len(data) > 0 {
			msgType = coap.Type((data[0] >> 4) & 0x03).String()
		}
		s.metrics.ObserveDatagram(msgType, "inbound", len(data))
	}

	if s.limiter != nil && !s.limiter.Allow(clientAddr.String()) {
		if s.metrics != nil {
			s.metrics.RateLimitedDatagrams.Inc()
		}
		s.config.Logger.Debug("rate limited datagram", slog.String("peer", clientAddr.String()))
		return
	}

	reply, ok := s.processor.Process(clientAddr, data)
	if !ok {
		return
	}

	if _, err := conn.WriteTo(reply.Data, reply.Peer); err != nil {
		wrapped := gwerrors.New("write_reply", "udp_ingress", clientAddr.String(), err)
		s.config.Logger.Debug("failed to write reply datagram", slog.String("error", wrapped.Error()))
		return
	}

	if s.metrics != nil {
		msgType := "unknown"
		if len(reply.Data) > 0 {
			msgType = coap.Type((reply.Data[0] >> 4) & 0x03).String()
		}
		s.metrics.ObserveDatagram(msgType, "outbound", len(reply.Data))
	}
}
