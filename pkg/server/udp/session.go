// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package udp

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PeerSession is a bookkeeping record for a peer address, not a dialed
// backend connection: CoAP over UDP is connectionless and terminates at
// this gateway, so there is no backend to proxy to. A session here only
// records first-seen time, last activity and a datagram count for a peer
// between datagrams; the rate limiter and metrics keep their own state.
type PeerSession struct {
	// ID is assigned the first time this peer is seen.
	ID string

	// RemoteAddr is the peer's UDP address.
	RemoteAddr *net.UDPAddr

	// FirstSeen is when this peer was first observed.
	FirstSeen time.Time

	mu            sync.Mutex
	lastActivity  time.Time
	datagramCount uint64
}

// Touch records a datagram from this peer.
func (s *PeerSession) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.datagramCount++
	s.mu.Unlock()
}

// LastActivity returns the last time a datagram was seen from this peer.
func (s *PeerSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// DatagramCount returns the number of datagrams seen from this peer.
func (s *PeerSession) DatagramCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.datagramCount
}

// SessionManager tracks PeerSession records keyed by peer address and
// evicts ones that have gone idle.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*PeerSession
	logger   *slog.Logger
}

// NewSessionManager creates a new session manager.
func NewSessionManager(logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions: make(map[string]*PeerSession),
		logger:   logger,
	}
}

// GetOrCreate returns the existing PeerSession for addr, creating one if
// necessary, and records a datagram against it.
func (sm *SessionManager) GetOrCreate(addr *net.UDPAddr) (sess *PeerSession, isNew bool) {
	key := addr.String()

	sm.mu.RLock()
	if s, ok := sm.sessions[key]; ok {
		sm.mu.RUnlock()
		s.Touch()
		return s, false
	}
	sm.mu.RUnlock()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, ok := sm.sessions[key]; ok {
		s.Touch()
		return s, false
	}

	now := time.Now()
	s := &PeerSession{
		ID:            uuid.New().String(),
		RemoteAddr:    addr,
		FirstSeen:     now,
		lastActivity:  now,
		datagramCount: 1,
	}
	sm.sessions[key] = s
	sm.logger.Debug("new peer session", slog.String("session", s.ID), slog.String("peer", key))
	return s, true
}

// Remove drops the session for addr.
func (sm *SessionManager) Remove(addr *net.UDPAddr) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, addr.String())
}

// Count returns the number of tracked peer sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Cleanup periodically evicts sessions idle for longer than timeout. It
// blocks until ctx is cancelled, so callers run it as its own goroutine.
func (sm *SessionManager) Cleanup(ctx context.Context, timeout time.Duration) {
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.evictIdle(timeout)
		}
	}
}

func (sm *SessionManager) evictIdle(timeout time.Duration) {
	now := time.Now()
	var stale []string

	sm.mu.RLock()
	for key, sess := range sm.sessions {
		if now.Sub(sess.LastActivity()) > timeout {
			stale = append(stale, key)
		}
	}
	sm.mu.RUnlock()

	if len(stale) == 0 {
		return
	}

	sm.mu.Lock()
	for _, key := range stale {
		delete(sm.sessions, key)
	}
	sm.mu.Unlock()

	sm.logger.Debug("evicted idle peer sessions", slog.Int("count", len(stale)))
}
