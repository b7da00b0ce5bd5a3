// Package discord connects Chorale to a Discord guild. It implements
// [session.Bridge] on top of a discordgo gateway session and one voice
// connection: guild text messages become chat events and Opus packets are
// written to the voice connection.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorale/internal/config"
	"github.com/MrWong99/chorale/internal/session"
)

const (
	eventBuffer = 64

	// sendTimeout bounds how long a single packet may wait for the voice
	// connection. The connection consumes one packet per 20 ms, so a stuck
	// send means the voice link is gone.
	sendTimeout = time.Second
)

// ErrSendTimeout is returned by [Bridge.SendAudio] when the voice connection
// stopped accepting packets.
var ErrSendTimeout = errors.New("discord: voice send timed out")

// Bridge is a [session.Bridge] backed by Discord.
type Bridge struct {
	guildID       string
	textChannelID string
	selfID        string
	opusSend      chan<- []byte

	// mu guards events against concurrent send and close.
	mu     sync.RWMutex
	events chan session.Event
	err    error

	done      chan struct{}
	closeOnce sync.Once

	speakingOnce sync.Once
	teardownOnce sync.Once
	teardownErr  error

	removeHandlers []func()

	// Overridden in tests; set from the live session by Open.
	speaking     func(bool) error
	disconnectVC func() error
	closeSession func() error
}

var _ session.Bridge = (*Bridge)(nil)

// Open logs in, joins the configured voice channel and starts converting
// guild messages into chat events. The gateway does not reconnect on its
// own: a dropped connection ends the event stream with an error.
func Open(ctx context.Context, cfg config.DiscordConfig) (*Bridge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates
	s.ShouldReconnectOnError = false

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	// Deafened: the bot never listens.
	vc, err := s.ChannelVoiceJoin(cfg.GuildID, cfg.VoiceChannelID, false, true)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("discord: join voice channel %q: %w", cfg.VoiceChannelID, err)
	}

	var selfID string
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	b := newBridge(cfg, selfID, vc.OpusSend)
	b.speaking = vc.Speaking
	b.disconnectVC = vc.Disconnect
	b.closeSession = s.Close
	b.removeHandlers = append(b.removeHandlers,
		s.AddHandler(b.onMessageCreate),
		s.AddHandler(b.onDisconnect),
	)

	if cfg.Nickname != "" {
		if err := s.GuildMemberNickname(cfg.GuildID, "@me", cfg.Nickname); err != nil {
			slog.Warn("discord: failed to set nickname", "nickname", cfg.Nickname, "err", err)
		}
	}

	slog.Info("discord: session ready", "guild_id", cfg.GuildID, "voice_channel_id", cfg.VoiceChannelID, "user_id", selfID)
	return b, nil
}

func newBridge(cfg config.DiscordConfig, selfID string, opusSend chan<- []byte) *Bridge {
	return &Bridge{
		guildID:       cfg.GuildID,
		textChannelID: cfg.TextChannelID,
		selfID:        selfID,
		opusSend:      opusSend,
		events:        make(chan session.Event, eventBuffer),
		done:          make(chan struct{}),
		speaking:      func(bool) error { return nil },
		disconnectVC:  func() error { return nil },
		closeSession:  func() error { return nil },
	}
}

// Events implements [session.Bridge].
func (b *Bridge) Events() <-chan session.Event {
	return b.events
}

// Err implements [session.Bridge].
func (b *Bridge) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// SendAudio implements [session.Bridge]. The first packet switches the
// speaking indicator on.
func (b *Bridge) SendAudio(ctx context.Context, packet []byte) error {
	select {
	case <-b.done:
		return session.ErrClosed
	default:
	}

	b.speakingOnce.Do(func() {
		if err := b.speaking(true); err != nil {
			slog.Warn("discord: speaking notification error", "speaking", true, "err", err)
		}
	})

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case b.opusSend <- packet:
		return nil
	case <-b.done:
		return session.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrSendTimeout
	}
}

// Disconnect implements [session.Bridge]. It ends the event stream, leaves
// the voice channel and closes the gateway session.
func (b *Bridge) Disconnect() error {
	b.closeEvents(nil)
	first := false
	b.teardownOnce.Do(func() {
		first = true
		for _, remove := range b.removeHandlers {
			remove()
		}
		var errs []error
		if err := b.disconnectVC(); err != nil {
			errs = append(errs, fmt.Errorf("discord: leave voice channel: %w", err))
		}
		if err := b.closeSession(); err != nil {
			errs = append(errs, fmt.Errorf("discord: close session: %w", err))
		}
		b.teardownErr = errors.Join(errs...)
		slog.Info("discord: disconnected")
	})
	if !first {
		return nil
	}
	return b.teardownErr
}

func (b *Bridge) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	if m.Author.ID == b.selfID || m.Author.Bot {
		return
	}
	if m.GuildID != b.guildID {
		return
	}
	if b.textChannelID != "" && m.ChannelID != b.textChannelID {
		return
	}
	b.emit(session.Chat(m.Author.Username, m.ChannelID, m.Content))
}

func (b *Bridge) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.closeEvents(errors.New("discord: gateway connection lost"))
}

// emit delivers ev unless the stream has ended.
func (b *Bridge) emit(ev session.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// closeEvents ends the event stream once, recording err as the reason.
func (b *Bridge) closeEvents(err error) {
	b.closeOnce.Do(func() {
		// Wake blocked emitters before taking the write lock.
		close(b.done)
		b.mu.Lock()
		b.err = err
		close(b.events)
		b.mu.Unlock()
		if err != nil {
			slog.Error("discord: session ended", "err", err)
		}
	})
}
