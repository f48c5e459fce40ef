// Package transport defines the contract L2/L3 consume from the probe's USB
// transport. spec.md treats USB transport as an external collaborator; this
// interface is the narrow surface the core actually calls. Concrete
// implementations (internal/transport/usbhid, internal/transport/usbbulk)
// are wired only by cmd/coredbgd and are never imported by internal/probe,
// internal/target, internal/rangestep, or internal/session.
package transport

import "context"

// Transport is a synchronous request/response channel to a USB-attached
// debug probe, plus a non-blocking poll for out-of-band events.
type Transport interface {
	// SendFrame writes frame and returns the probe's response. It blocks
	// until a response arrives or ctx is done.
	SendFrame(ctx context.Context, frame []byte) ([]byte, error)

	// ReadEvent polls for an out-of-band event (e.g. an AVR8 break event)
	// without blocking for one that hasn't arrived yet. ok is false if no
	// event is currently queued.
	ReadEvent(ctx context.Context) (event []byte, ok bool, err error)

	// MaxFrameSize is the largest payload the transport's underlying
	// report/endpoint size can carry in one SendFrame call, used by L3 to
	// size memory-access chunking.
	MaxFrameSize() int

	// Close releases the underlying USB handle.
	Close() error
}
