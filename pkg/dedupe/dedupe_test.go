// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package dedupe

import (
	"testing"
	"time"
)

func TestAddReturnsTrueOnceThenFalse(t *testing.T) {
	s := New[Key]()
	k := Key{Peer: "10.0.0.1:1234", ID: 0x1234}

	if !s.Add(k) {
		t.Fatal("expected first Add to return true")
	}
	if s.Add(k) {
		t.Fatal("expected second Add to return false")
	}
	if s.Size() != 1 {
		t.Fatalf("got size %d, want 1", s.Size())
	}
}

func TestRemove(t *testing.T) {
	s := New[Key]()
	k := Key{Peer: "peer", ID: 1}
	if s.Remove(k) {
		t.Fatal("expected Remove on absent key to return false")
	}
	s.Add(k)
	if !s.Remove(k) {
		t.Fatal("expected Remove on present key to return true")
	}
	if s.Size() != 0 {
		t.Fatalf("got size %d, want 0", s.Size())
	}
}

func TestAddAndDeleteAfterEvictsOnSchedule(t *testing.T) {
	s := New[Key]()
	k := Key{Peer: "peer", ID: 2}

	if !s.AddAndDeleteAfter(k, 10*time.Millisecond) {
		t.Fatal("expected first add to return true")
	}
	if s.Add(k) {
		t.Fatal("expected re-add within the window to return false")
	}

	time.Sleep(50 * time.Millisecond)

	if !s.Add(k) {
		t.Fatal("expected add after eviction to return true again")
	}
}

func TestAddAndDeleteAfterToleratesManualRemoval(t *testing.T) {
	s := New[Key]()
	k := Key{Peer: "peer", ID: 3}

	s.AddAndDeleteAfter(k, 5*time.Millisecond)
	s.Remove(k) // race the scheduled removal; must not panic or double-decrement

	time.Sleep(20 * time.Millisecond)

	if s.Size() != 0 {
		t.Fatalf("got size %d, want 0", s.Size())
	}
}
