// Package session defines the contract between the playback core and the
// voice/chat session it plays into.
//
// A [Bridge] delivers chat events and accepts encoded audio packets. The
// concrete transport (handshake, authentication, audio envelope) lives in
// an adapter package such as internal/discord; the core only sees this
// interface.
package session

import (
	"context"
	"errors"
)

// ErrClosed is returned by [Bridge.SendAudio] after the session ended, and
// wrapped by callers that observe the event stream closing.
var ErrClosed = errors.New("session: closed")

// EventType classifies a session [Event].
type EventType int

const (
	// EventChat is a text message posted by a participant.
	EventChat EventType = iota

	// EventPresence is a participant joining or leaving the voice channel.
	// The playback core ignores it.
	EventPresence
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventChat:
		return "CHAT"
	case EventPresence:
		return "PRESENCE"
	default:
		return "UNKNOWN"
	}
}

// ChatMessage is the payload of an [EventChat].
type ChatMessage struct {
	// Sender is the display name of the author.
	Sender string

	// Target is the channel the message was posted in.
	Target string

	// Text is the raw message content.
	Text string
}

// Event is one item of the session's event stream.
type Event struct {
	Type EventType

	// Chat is set when Type is EventChat.
	Chat ChatMessage
}

// Chat builds a chat event.
func Chat(sender, target, text string) Event {
	return Event{Type: EventChat, Chat: ChatMessage{Sender: sender, Target: target, Text: text}}
}

// Bridge is an established session.
//
// Implementations must be safe for concurrent use.
type Bridge interface {
	// Events returns the session's event stream. The channel is closed when
	// the session ends; [Bridge.Err] then reports why.
	Events() <-chan Event

	// Err returns the reason the event stream closed, or nil while it is open
	// or after an orderly [Bridge.Disconnect].
	Err() error

	// SendAudio transmits one encoded audio packet. It returns an error when
	// the packet could not be handed to the transport.
	SendAudio(ctx context.Context, packet []byte) error

	// Disconnect tears the session down. It is safe to call more than once;
	// subsequent calls return nil.
	Disconnect() error
}
