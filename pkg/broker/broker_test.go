// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNextIDMonotonic(t *testing.T) {
	b := New()
	a := b.NextID()
	c := b.NextID()
	if c <= a {
		t.Fatalf("got %d then %d, want strictly increasing", a, c)
	}
}

func TestAddSubscriberToInverseIndexInvariant(t *testing.T) {
	b := New()
	id := b.NextID()
	b.AddSubscriberTo([]string{"a", "a/b"}, id)

	for _, p := range []string{"a", "a/b"} {
		subs, ok := b.GetSubscribers(p)
		if !ok {
			t.Fatalf("expected topic %q to exist", p)
		}
		if _, ok := subs[id]; !ok {
			t.Fatalf("expected subscriptions[%q] to contain %d", p, id)
		}

		b.mu.RLock()
		_, inverse := b.subscribers[id][p]
		b.mu.RUnlock()
		if !inverse {
			t.Fatalf("expected subscribers[%d] to contain %q", id, p)
		}
	}
}

func TestRemoveSubscriberMissing(t *testing.T) {
	b := New()
	if err := b.RemoveSubscriber(42); err != ErrMissingSubscriber {
		t.Fatalf("got %v, want ErrMissingSubscriber", err)
	}
}

func TestRemoveSubscriberLeavesEmptyTopicKeys(t *testing.T) {
	b := New()
	id := b.NextID()
	b.AddSubscriberTo([]string{"x", "y"}, id)

	if err := b.RemoveSubscriber(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range []string{"x", "y"} {
		subs, ok := b.GetSubscribers(p)
		if !ok {
			t.Fatalf("expected topic %q to still be present", p)
		}
		if len(subs) != 0 {
			t.Fatalf("expected topic %q to have no subscribers, got %v", p, subs)
		}
	}

	if _, ok := b.Mailbox(id); ok {
		t.Fatal("expected mailbox to be gone")
	}
}

func TestRemoveSubscriberIsTerminal(t *testing.T) {
	b := New()
	id := b.NextID()
	b.AddSubscriberTo([]string{"a"}, id)
	if err := b.RemoveSubscriber(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.RemoveSubscriber(id); err != ErrMissingSubscriber {
		t.Fatalf("got %v, want ErrMissingSubscriber on second removal", err)
	}
}

func TestFanOutDedup(t *testing.T) {
	b := New()
	id1 := b.NextID()
	id2 := b.NextID()

	b.AddSubscriberTo([]string{"root/node/leaf"}, id1)
	b.AddSubscriberTo([]string{"root/node"}, id2)

	b.Push("root/node/leaf/extra", []byte("m1"))

	mb1, _ := b.Mailbox(id1)
	mb2, _ := b.Mailbox(id2)
	if mb1.Len() != 1 || mb2.Len() != 1 {
		t.Fatalf("got mb1=%d mb2=%d, want 1 each", mb1.Len(), mb2.Len())
	}

	// id1 also subscribes to "root" — republish must still land once.
	b.AddSubscriberTo([]string{"root"}, id1)
	b.Push("root/node/leaf/extra", []byte("m2"))

	if mb1.Len() != 2 {
		t.Fatalf("got mb1 len %d, want 2 (once per publish, deduplicated)", mb1.Len())
	}
	if mb2.Len() != 2 {
		t.Fatalf("got mb2 len %d, want 2", mb2.Len())
	}
}

func TestPushReturnsPostOfferDepths(t *testing.T) {
	b := New()
	id1 := b.NextID()
	id2 := b.NextID()
	b.AddSubscriberTo([]string{"sensors"}, id1)
	b.AddSubscriberTo([]string{"sensors"}, id2)

	depths := b.Push("sensors", []byte("m1"))
	if len(depths) != 2 {
		t.Fatalf("got %d depths, want 2", len(depths))
	}
	for _, d := range depths {
		if d != 1 {
			t.Fatalf("got depth %d, want 1 after a single offer", d)
		}
	}

	depths = b.Push("sensors", []byte("m2"))
	for _, d := range depths {
		if d != 2 {
			t.Fatalf("got depth %d, want 2 after a second offer", d)
		}
	}
}

func TestPushDefensivelyCreatesMissingMailbox(t *testing.T) {
	b := New()
	id := b.NextID()
	b.AddSubscriberTo([]string{"a"}, id)

	// Simulate the mailbox having vanished (e.g. a race with teardown)
	// while the subscription entry is still present.
	b.mu.Lock()
	delete(b.mailboxes, id)
	b.mu.Unlock()

	b.Push("a", []byte("hi"))

	mb, ok := b.Mailbox(id)
	if !ok {
		t.Fatal("expected a mailbox to have been created defensively")
	}
	if mb.Len() != 1 {
		t.Fatalf("got len %d, want 1", mb.Len())
	}
}

func TestAddTopicNeverOverwrites(t *testing.T) {
	b := New()
	id := b.NextID()
	b.AddSubscriberTo([]string{"a/b"}, id)

	b.AddTopic("a/b/c")

	subs, ok := b.GetSubscribers("a/b")
	if !ok {
		t.Fatal("expected a/b to still exist")
	}
	if _, ok := subs[id]; !ok {
		t.Fatal("AddTopic must not overwrite an existing bucket")
	}
	if _, ok := b.GetSubscribers("a/b/c"); !ok {
		t.Fatal("expected a/b/c to have been created")
	}
}

func TestRemoveSubscriptionsKeepsMailbox(t *testing.T) {
	b := New()
	id := b.NextID()
	b.AddSubscriberTo([]string{"a", "b"}, id)

	b.RemoveSubscriptions([]string{"a"}, id)

	if subs, _ := b.GetSubscribers("a"); len(subs) != 0 {
		t.Fatalf("expected no subscribers left on a, got %v", subs)
	}
	subsB, ok := b.GetSubscribers("b")
	if !ok {
		t.Fatal("expected topic b to exist")
	}
	if _, ok := subsB[id]; !ok {
		t.Fatal("expected subscription to b to survive")
	}
	if _, ok := b.Mailbox(id); !ok {
		t.Fatal("expected mailbox to survive RemoveSubscriptions")
	}
}

func TestConcurrentSubscribeUnsubscribePublishPreservesInvariant(t *testing.T) {
	b := New()
	const n = 50

	var wg sync.WaitGroup
	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		ids[i] = b.NextID()
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			b.AddSubscriberTo([]string{"root/topic"}, id)
			b.Push("root/topic", []byte("x"))
			b.RemoveSubscriber(id)
		}(ids[i])
	}
	wg.Wait()

	subs, ok := b.GetSubscribers("root/topic")
	if !ok {
		t.Fatal("expected root/topic bucket to survive")
	}
	if len(subs) != 0 {
		t.Fatalf("expected all subscribers removed, got %v", subs)
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("got subscriber count %d, want 0", b.SubscriberCount())
	}
}

func TestMailboxTakeSuspendsUntilOffer(t *testing.T) {
	mb := newMailbox()
	ctx := context.Background()

	done := make(chan Message, 1)
	go func() {
		msg, ok := mb.Take(ctx)
		if !ok {
			return
		}
		done <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	mb.Offer(Message{Topic: "t", Payload: []byte("hello")})

	select {
	case msg := <-done:
		if string(msg.Payload) != "hello" {
			t.Fatalf("got %q, want hello", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not unblock after Offer")
	}
}

func TestMailboxTakeRespectsContextCancellation(t *testing.T) {
	mb := newMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := mb.Take(ctx)
	if ok {
		t.Fatal("expected Take to fail on a cancelled context with nothing queued")
	}
}
