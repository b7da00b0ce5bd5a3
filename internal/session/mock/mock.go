// Package mock provides an in-memory [session.Bridge] for tests.
//
// Typical usage:
//
//	b := mock.NewBridge()
//	b.Emit(session.Chat("alice", "general", "!yt http://x"))
//	pkts := b.Packets()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chorale/internal/session"
)

// Bridge is a mock implementation of [session.Bridge]. Set the exported
// fields before use; inspect packets and call counts afterwards.
type Bridge struct {
	// SendAudioErr is returned by SendAudio when non-nil.
	SendAudioErr error

	// FailAfter makes SendAudio return SendAudioErr only once this many
	// packets were accepted. Zero fails immediately.
	FailAfter int

	// DisconnectErr is returned by the first Disconnect call.
	DisconnectErr error

	events chan session.Event

	mu              sync.Mutex
	packets         [][]byte
	err             error
	closed          bool
	disconnectCalls int
	sent            chan struct{}
}

var _ session.Bridge = (*Bridge)(nil)

// NewBridge returns a Bridge with a buffered event stream.
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan session.Event, 64),
		sent:   make(chan struct{}, 1024),
	}
}

// Emit queues ev on the event stream.
func (b *Bridge) Emit(ev session.Event) {
	b.events <- ev
}

// Say queues a chat message with the given text.
func (b *Bridge) Say(text string) {
	b.Emit(session.Chat("tester", "test-channel", text))
}

// Close ends the event stream with err, simulating a dropped session.
func (b *Bridge) Close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.err = err
	close(b.events)
}

// Events implements [session.Bridge].
func (b *Bridge) Events() <-chan session.Event {
	return b.events
}

// Err implements [session.Bridge].
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// SendAudio implements [session.Bridge]. Accepted packets are recorded.
func (b *Bridge) SendAudio(_ context.Context, packet []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendAudioErr != nil && len(b.packets) >= b.FailAfter {
		return b.SendAudioErr
	}
	b.packets = append(b.packets, packet)
	select {
	case b.sent <- struct{}{}:
	default:
	}
	return nil
}

// Sent returns a channel that receives a value for each accepted packet.
func (b *Bridge) Sent() <-chan struct{} {
	return b.sent
}

// Disconnect implements [session.Bridge].
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectCalls++
	if b.disconnectCalls == 1 {
		return b.DisconnectErr
	}
	return nil
}

// Packets returns a copy of all accepted packets in order.
func (b *Bridge) Packets() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.packets))
	copy(out, b.packets)
	return out
}

// DisconnectCalls returns how many times Disconnect was called.
func (b *Bridge) DisconnectCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnectCalls
}
