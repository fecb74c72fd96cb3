// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package udp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/absmach/coap-gateway/pkg/coap"
)

// echoProcessor replies with a fixed ack for every datagram when reply is
// set (and with nothing otherwise), regardless of its contents, so tests can assert on the write-back path without
// depending on gateway.Pipeline.
type echoProcessor struct {
	replyID uint16
	reply   bool
	calls   int
}

func (p *echoProcessor) Process(peer net.Addr, data []byte) (coap.Reply, bool) {
	p.calls++
	if !p.reply {
		return coap.Reply{}, false
	}
	return coap.Reply{Peer: peer, Data: coap.Encode(coap.Ack(p.replyID))}, true
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

func TestServerRoundTripsAck(t *testing.T) {
	proc := &echoProcessor{replyID: 7, reply: true}
	srv := New(Config{Address: "127.0.0.1:0"}, proc, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(ctx) }()

	addr := waitForListenAddr(t, srv)

	client, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte{0x40, 0x01, 0x00, 0x07}); err != nil {
		t.Fatalf("write: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("expected reply, got error: %v", err)
	}
	want := coap.Encode(coap.Ack(7))
	if string(buf[:n]) != string(want) {
		t.Fatalf("got % x, want % x", buf[:n], want)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Listen returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestServerRateLimiterBlocksReply(t *testing.T) {
	proc := &echoProcessor{replyID: 7, reply: true}
	srv := New(Config{Address: "127.0.0.1:0"}, proc, denyAllLimiter{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Listen(ctx)

	addr := waitForListenAddr(t, srv)

	client, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	client.Write([]byte{0x40, 0x01, 0x00, 0x07})

	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := client.Read(buf); err == nil {
		t.Fatal("expected no reply, rate limiter should have blocked it")
	}
}

func TestServerInvalidAddress(t *testing.T) {
	proc := &echoProcessor{}
	srv := New(Config{Address: "invalid:address:99999"}, proc, nil, nil)

	if err := srv.Listen(context.Background()); err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	srv := New(Config{Address: "127.0.0.1:0"}, &echoProcessor{}, nil, nil)

	if srv.config.Logger == nil {
		t.Error("expected default logger")
	}
	if srv.config.IdleTimeout == 0 {
		t.Error("expected default idle timeout")
	}
	if srv.config.ShutdownTimeout == 0 {
		t.Error("expected default shutdown timeout")
	}
	if srv.config.WorkerPoolSize == 0 {
		t.Error("expected default worker pool size")
	}
}

func TestServerContextCancellationShutsDown(t *testing.T) {
	srv := New(Config{Address: "127.0.0.1:0"}, &echoProcessor{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(ctx) }()

	waitForListenAddr(t, srv)
	cancel()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}

func TestSessionManagerGetOrCreate(t *testing.T) {
	sm := NewSessionManager(nil)
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:12345")

	sess, isNew := sm.GetOrCreate(addr)
	if !isNew {
		t.Fatal("expected first GetOrCreate to report a new session")
	}
	if sess.DatagramCount() != 1 {
		t.Fatalf("got datagram count %d, want 1", sess.DatagramCount())
	}

	again, isNew := sm.GetOrCreate(addr)
	if isNew {
		t.Fatal("expected second GetOrCreate to reuse the session")
	}
	if again.ID != sess.ID {
		t.Fatal("expected the same session to be returned")
	}
	if again.DatagramCount() != 2 {
		t.Fatalf("got datagram count %d, want 2", again.DatagramCount())
	}

	if sm.Count() != 1 {
		t.Fatalf("got session count %d, want 1", sm.Count())
	}

	sm.Remove(addr)
	if sm.Count() != 0 {
		t.Fatalf("got session count %d after Remove, want 0", sm.Count())
	}
}

func TestSessionManagerCleanupEvictsIdle(t *testing.T) {
	sm := NewSessionManager(nil)
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:12345")
	sm.GetOrCreate(addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sm.Cleanup(ctx, 20*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sm.Count() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected idle session to be evicted")
}

// waitForListenAddr polls until the server has bound its listening
// socket and returns the resolved address, since Address: "...:0" only
// picks a concrete port once Listen starts.
func waitForListenAddr(t *testing.T, srv *Server) *net.UDPAddr {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := srv.LocalAddr(); addr != nil {
			return addr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never bound a listening address")
	return nil
}
