// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package broker implements a transactional topic broker: a tree of
// hierarchical topic paths mapping to subscriber sets, subscriber-to-
// mailbox queues, and atomic multi-map updates that stay consistent
// under concurrent subscribe/unsubscribe/publish.
//
// Languages with software transactional memory model this as one STM
// transaction per operation; this Go implementation uses a more
// pedestrian fallback instead: a single sync.RWMutex guards a struct of
// the four correlated maps, and every exported method takes it while it
// reads or updates them. Push releases it before offering to the
// collected mailboxes, which have their own locks.
package broker

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrMissingSubscriber is returned when an operation names a subscriber
// id that has no entry in the subscribers index (never subscribed, or
// already removed).
var ErrMissingSubscriber = errors.New("broker: missing subscriber")

// ErrMissingBrokerBucket is returned when an operation expects a topic
// bucket that does not exist.
var ErrMissingBrokerBucket = errors.New("broker: missing topic bucket")

// Broker is the transactional subscription/mailbox store.
type Broker struct {
	mu sync.RWMutex

	counter       uint64
	mailboxes     map[uint64]*Mailbox
	subscriptions map[string]map[uint64]struct{}
	subscribers   map[uint64]map[string]struct{}
}

// New creates an empty Broker.
func New() *Broker {
	return &Broker{
		mailboxes:     make(map[uint64]*Mailbox),
		subscriptions: make(map[string]map[uint64]struct{}),
		subscribers:   make(map[uint64]map[string]struct{}),
	}
}

// NextID post-increments the counter. It never reuses ids and never
// returns 0.
func (b *Broker) NextID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counter++
	return b.counter
}

// AddSubscriberTo inserts id into subscriptions[path] and path into
// subscribers[id] for every canonical path, creating a mailbox for id if
// one does not already exist. All updates commit as one transaction.
func (b *Broker) AddSubscriberTo(paths []string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, path := range paths {
		subs, ok := b.subscriptions[path]
		if !ok {
			subs = make(map[uint64]struct{})
			b.subscriptions[path] = subs
		}
		subs[id] = struct{}{}

		owned, ok := b.subscribers[id]
		if !ok {
			owned = make(map[string]struct{})
			b.subscribers[id] = owned
		}
		owned[path] = struct{}{}
	}

	if _, ok := b.mailboxes[id]; !ok {
		b.mailboxes[id] = newMailbox()
	}
}

// RemoveSubscriber tears down id entirely: it is dropped from every topic
// it subscribed to (the topic keys themselves survive, now with id
// absent), and its mailbox and inverse-index entry are deleted. Fails
// with ErrMissingSubscriber if id was never subscribed or was already
// removed.
func (b *Broker) RemoveSubscriber(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	owned, ok := b.subscribers[id]
	if !ok {
		return ErrMissingSubscriber
	}

	for path := range owned {
		if subs, ok := b.subscriptions[path]; ok {
			delete(subs, id)
		}
	}

	if mb, ok := b.mailboxes[id]; ok {
		mb.Close()
	}
	delete(b.mailboxes, id)
	delete(b.subscribers, id)
	return nil
}

// RemoveSubscriptions removes id from subscriptions[path] for each path
// in paths, keeping the inverse index consistent. It does not delete the
// mailbox or the subscriber's remaining subscriptions.
func (b *Broker) RemoveSubscriptions(paths []string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, path := range paths {
		if subs, ok := b.subscriptions[path]; ok {
			delete(subs, id)
		}
		if owned, ok := b.subscribers[id]; ok {
			delete(owned, path)
		}
	}
}

// AddTopic ensures every sub-path prefix of path exists in subscriptions,
// creating empty buckets where absent. It never overwrites an existing
// bucket.
func (b *Broker) AddTopic(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range subPaths(path) {
		if _, ok := b.subscriptions[sub]; !ok {
			b.subscriptions[sub] = make(map[uint64]struct{})
		}
	}
}

// Push delivers msg to every subscriber of any sub-path prefix of path,
// deduplicated at the id-set level so a subscriber of both an ancestor
// and path itself receives msg exactly once. Sub-path expansion happens
// before the lock is taken to keep the critical section small. If a
// subscription set names an id with no live mailbox — the broker racing
// subscriber teardown — a fresh empty mailbox is created defensively so
// the offer still lands somewhere observable.
//
// Push returns the post-offer depth of every mailbox it delivered into,
// for callers that want to observe fan-out and queue buildup.
func (b *Broker) Push(path string, msg []byte) []int {
	prefixes := subPaths(path)

	b.mu.Lock()
	ids := make(map[uint64]struct{})
	for _, p := range prefixes {
		for id := range b.subscriptions[p] {
			ids[id] = struct{}{}
		}
	}
	targets := make([]*Mailbox, 0, len(ids))
	for id := range ids {
		mb, ok := b.mailboxes[id]
		if !ok {
			mb = newMailbox()
			b.mailboxes[id] = mb
		}
		targets = append(targets, mb)
	}
	b.mu.Unlock()

	depths := make([]int, len(targets))
	for i, mb := range targets {
		mb.Offer(Message{Topic: path, Payload: msg})
		depths[i] = mb.Len()
	}
	return depths
}

// GetSubscribers returns a snapshot of the subscriber set for path, and
// whether the topic bucket exists at all.
func (b *Broker) GetSubscribers(path string) (map[uint64]struct{}, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs, ok := b.subscriptions[path]
	if !ok {
		return nil, false
	}
	out := make(map[uint64]struct{}, len(subs))
	for id := range subs {
		out[id] = struct{}{}
	}
	return out, true
}

// GetTopics returns every known canonical topic path, sorted.
func (b *Broker) GetTopics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.subscriptions))
	for p := range b.subscriptions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Mailbox returns the mailbox for id, if any. Used by the egress stage
// that drains messages out to remote subscribers.
func (b *Broker) Mailbox(id uint64) (*Mailbox, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	mb, ok := b.mailboxes[id]
	return mb, ok
}

// TopicCount and SubscriberCount are size accessors for tests and
// metrics.
func (b *Broker) TopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// subPaths computes the left-to-right non-empty prefixes of a canonical
// '/'-joined path: for a/b/c, that is [a, a/b, a/b/c].
func subPaths(path string) []string {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, "/")
	out := make([]string, len(segments))
	for i := range segments {
		out[i] = strings.Join(segments[:i+1], "/")
	}
	return out
}
