// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package udp implements the CoAP gateway's UDP ingress and egress.
//
// # Overview
//
// Unlike a proxying UDP server, this one terminates every datagram itself:
// there is no backend to dial. A single listening socket both receives
// datagrams from peers and writes reply datagrams (acks, resets) back to
// them.
//
//	┌────────┐  datagram  ┌────────┐  Process()  ┌──────────┐
//	│  Peer  │ ─────────→ │ Server │ ──────────→ │ Pipeline │
//	└────────┘ ←───────── └────────┘ ←────────── └──────────┘
//	              reply                 Reply
//
// # Peer sessions
//
// SessionManager tracks a PeerSession per peer address purely as a
// bookkeeping record (first-seen time, last-activity time, datagram
// count); the rate limiter and metrics do not read it. It is not a connection: CoAP over UDP is
// connectionless, and a peer's "session" here carries no dialed socket.
// Idle sessions are evicted on a timer.
//
// # Datagram flow
//
//  1. The read loop pulls a datagram off the socket and enqueues it on a
//     bounded worker channel, never blocking the socket read.
//  2. A worker calls the rate limiter, then Processor.Process, which
//     decodes the datagram, decides on a reply, and (for successfully
//     decoded messages) hands the message to the broker asynchronously.
//  3. If Process returns a reply, the worker writes it back to the
//     peer's address on the same socket.
//
// # Graceful shutdown
//
// On context cancellation the server closes the listening socket, drains
// in-flight workers up to ShutdownTimeout, and returns ErrShutdownTimeout
// if draining did not finish in time.
package udp
