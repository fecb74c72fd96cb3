// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import "net"

// Hooks are notification callbacks the pipeline invokes after each
// processing decision, for audit logging and metrics. A connectionless
// CoAP gateway has no connect/auth phase to authorize, so these
// collapse into plain after-the-fact notifications rather than
// authorization gates. Errors from Hooks methods are not surfaced to
// callers; implementations that need to fail loudly should do so via
// their own logging or metrics side effects.
type Hooks interface {
	// OnAck is called after an acknowledgement is sent for a
	// Confirmable message.
	OnAck(peer net.Addr, id uint16)

	// OnReset is called after a reset is sent for a malformed but
	// id-carrying datagram.
	OnReset(peer net.Addr, id uint16)

	// OnPublish is called after a payload has been pushed to the
	// broker for a topic path.
	OnPublish(peer net.Addr, path string, payload []byte)

	// OnDrop is called whenever a datagram does not result in a broker
	// delivery: an unrecoverable parse error (with or without a reset
	// reply), a suppressed duplicate, a malformed topic path, or a full
	// delivery queue.
	OnDrop(peer net.Addr, err error)
}

// NoopHooks implements Hooks with no side effects.
type NoopHooks struct{}

var _ Hooks = NoopHooks{}

func (NoopHooks) OnAck(net.Addr, uint16)             {}
func (NoopHooks) OnReset(net.Addr, uint16)           {}
func (NoopHooks) OnPublish(net.Addr, string, []byte) {}
func (NoopHooks) OnDrop(net.Addr, error)             {}
