// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bytesutil

import (
	"bytes"
	"testing"
)

func TestTakeExact(t *testing.T) {
	got, err := TakeExact([]byte{1, 2, 3, 4}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("got %v, want [1 2]", got)
	}

	if _, err := TakeExact([]byte{1}, 2); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestDropExact(t *testing.T) {
	got, err := DropExact([]byte{1, 2, 3, 4}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, []byte{3, 4}) {
		t.Fatalf("got %v, want [3 4]", got)
	}

	if _, err := DropExact([]byte{1}, 5); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestTakeNonEmpty(t *testing.T) {
	if _, err := TakeNonEmpty([]byte{1, 2}, 0); err == nil {
		t.Fatal("expected error for zero-length request")
	}

	got, err := TakeNonEmpty([]byte{1, 2}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, []byte{1}) {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestLeftPadTo(t *testing.T) {
	got := LeftPadTo([]byte{1, 2}, 4, 0)
	if !bytes.Equal(got, []byte{0, 0, 1, 2}) {
		t.Fatalf("got %v, want [0 0 1 2]", got)
	}

	got = LeftPadTo([]byte{1, 2, 3}, 2, 0)
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("got %v, want [1 2 3] (no truncation)", got)
	}
}

func TestStripLeadingZeros(t *testing.T) {
	got := StripLeadingZeros([]byte{0, 0, 1, 2})
	if !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("got %v, want [1 2]", got)
	}

	got = StripLeadingZeros([]byte{0, 0, 0})
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestFirstByteAndFirstTwoBytes(t *testing.T) {
	if got := FirstByte([]byte{0x42}); got != 0x42 {
		t.Fatalf("got %d, want 0x42", got)
	}
	if got := FirstTwoBytes([]byte{0x12, 0x34}); got != 0x1234 {
		t.Fatalf("got %#x, want 0x1234", got)
	}
}
