// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "net"

// Reply is an outbound datagram the responder decided is owed.
type Reply struct {
	Peer net.Addr
	Data []byte
}

// Respond is a pure function from a decoded datagram to an optional
// reply. It never retries and holds no state; retransmission
// suppression is the duplicate tracker's job.
//
//   - A parse error carrying a recovered id yields a reset addressed to
//     peer.
//   - A successfully decoded Confirmable message yields an
//     acknowledgement addressed to peer.
//   - Anything else yields no reply.
func Respond(peer net.Addr, result DecodeResult) (Reply, bool) {
	if result.Err != nil {
		if result.Err.ID != nil {
			return Reply{Peer: peer, Data: Encode(Reset(*result.Err.ID))}, true
		}
		return Reply{}, false
	}

	if result.Message.Header.IsConfirmable() {
		return Reply{Peer: peer, Data: Encode(Ack(result.Message.Header.ID))}, true
	}

	return Reply{}, false
}
