// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("COAP_GATEWAY_UDP_ADDRESS", ":5683")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UDPAddress != ":5683" {
		t.Fatalf("got %q, want :5683", cfg.UDPAddress)
	}
	if cfg.DedupWindow != 145*time.Second {
		t.Fatalf("got %v, want 145s", cfg.DedupWindow)
	}
	if cfg.WorkerPoolSize != 100 {
		t.Fatalf("got %d, want 100", cfg.WorkerPoolSize)
	}
}

func TestLoadRequiresUDPAddress(t *testing.T) {
	if _, err := Load(); err == nil {
		t.Fatal("expected an error when COAP_GATEWAY_UDP_ADDRESS is unset")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("COAP_GATEWAY_UDP_ADDRESS", ":5683")
	t.Setenv("COAP_GATEWAY_DEDUP_WINDOW", "30s")
	t.Setenv("COAP_GATEWAY_WORKER_POOL_SIZE", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DedupWindow != 30*time.Second {
		t.Fatalf("got %v, want 30s", cfg.DedupWindow)
	}
	if cfg.WorkerPoolSize != 4 {
		t.Fatalf("got %d, want 4", cfg.WorkerPoolSize)
	}
}
