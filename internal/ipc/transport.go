// Package ipc defines the Transport capability the control plane consumes
// (§6) and a concrete Unix-domain-socket implementation of it.
//
// The core itself is transport-agnostic: datagram sockets, character
// devices, or any other local channel all satisfy Transport as long as one
// Send call delivers exactly one frame and each value received from
// Listen's channel is exactly one frame (§6: "for datagram transports one datagram equals one frame").
package ipc

import "context"

// ListenMode selects blocking or non-blocking receive semantics for
// Transport.Listen.
type ListenMode int

const (
	// Blocking receives wait indefinitely for the next frame.
	Blocking ListenMode = iota
	// NonBlocking makes the transport poll its underlying channel with
	// short read timeouts instead of one indefinite read. The Listen
	// channel still carries only frames; an empty poll sends nothing.
	NonBlocking
)

// Transport is the capability the dispatch loop and control API consume:
// send a frame, and iterate received frames. Implementations must treat
// receive-side closure as terminal (§5, §7).
type Transport interface {
	// Send delivers buf as a single frame. It may block until the
	// transport has accepted the bytes, but does not wait for any
	// datapath-side acknowledgement (§4.4: there is none).
	Send(ctx context.Context, buf []byte) error

	// Listen returns a channel of received frames. The channel is closed
	// when the transport's receive side closes (§4.5: terminal condition).
	// mode selects whether the underlying read blocks or polls; it is a
	// hint some transports (e.g. character devices) may be unable to honor
	// precisely.
	Listen(mode ListenMode) <-chan []byte

	// Close releases the transport's underlying resources.
	Close() error
}
