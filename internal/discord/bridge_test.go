package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chorale/internal/config"
	"github.com/MrWong99/chorale/internal/session"
)

type fakeVoice struct {
	mu            sync.Mutex
	speaking      []bool
	disconnects   int
	sessionCloses int
	disconnectErr error
}

func newTestBridge(t *testing.T, textChannel string, opusBuf int) (*Bridge, chan []byte, *fakeVoice) {
	t.Helper()
	send := make(chan []byte, opusBuf)
	fv := &fakeVoice{}
	b := newBridge(config.DiscordConfig{GuildID: "guild-1", TextChannelID: textChannel}, "self", send)
	b.speaking = func(on bool) error {
		fv.mu.Lock()
		defer fv.mu.Unlock()
		fv.speaking = append(fv.speaking, on)
		return nil
	}
	b.disconnectVC = func() error {
		fv.mu.Lock()
		defer fv.mu.Unlock()
		fv.disconnects++
		return fv.disconnectErr
	}
	b.closeSession = func() error {
		fv.mu.Lock()
		defer fv.mu.Unlock()
		fv.sessionCloses++
		return nil
	}
	t.Cleanup(func() { _ = b.Disconnect() })
	return b, send, fv
}

func message(author *discordgo.User, guild, channel, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		Author:    author,
		GuildID:   guild,
		ChannelID: channel,
		Content:   content,
	}}
}

func TestBridge_MessageFilter(t *testing.T) {
	t.Parallel()
	alice := &discordgo.User{ID: "u1", Username: "alice"}

	tests := []struct {
		name        string
		textChannel string
		msg         *discordgo.MessageCreate
		want        bool
	}{
		{"accepted", "", message(alice, "guild-1", "c1", "!yt x"), true},
		{"own message", "", message(&discordgo.User{ID: "self"}, "guild-1", "c1", "!yt x"), false},
		{"other bot", "", message(&discordgo.User{ID: "u2", Bot: true}, "guild-1", "c1", "!yt x"), false},
		{"other guild", "", message(alice, "guild-2", "c1", "!yt x"), false},
		{"restricted channel match", "c1", message(alice, "guild-1", "c1", "!stop"), true},
		{"restricted channel mismatch", "c1", message(alice, "guild-1", "c2", "!stop"), false},
		{"no author", "", message(nil, "guild-1", "c1", "!stop"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, _, _ := newTestBridge(t, tt.textChannel, 1)
			b.onMessageCreate(nil, tt.msg)

			select {
			case ev := <-b.Events():
				if !tt.want {
					t.Fatalf("unexpected event %+v", ev)
				}
				if ev.Type != session.EventChat || ev.Chat.Text != tt.msg.Content || ev.Chat.Target != tt.msg.ChannelID {
					t.Errorf("event = %+v", ev)
				}
				if ev.Chat.Sender != tt.msg.Author.Username {
					t.Errorf("sender = %q, want %q", ev.Chat.Sender, tt.msg.Author.Username)
				}
			default:
				if tt.want {
					t.Fatal("expected a chat event")
				}
			}
		})
	}
}

func TestBridge_SendAudio(t *testing.T) {
	t.Parallel()
	b, send, fv := newTestBridge(t, "", 4)

	for _, p := range [][]byte{{1}, {2}, {3}} {
		if err := b.SendAudio(context.Background(), p); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	for want := byte(1); want <= 3; want++ {
		if got := <-send; got[0] != want {
			t.Errorf("packet = %v, want [%d]", got, want)
		}
	}

	fv.mu.Lock()
	defer fv.mu.Unlock()
	if len(fv.speaking) != 1 || !fv.speaking[0] {
		t.Errorf("speaking calls = %v, want [true]", fv.speaking)
	}
}

func TestBridge_SendAudioHonoursContext(t *testing.T) {
	t.Parallel()
	b, _, _ := newTestBridge(t, "", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.SendAudio(ctx, []byte{1}); !errors.Is(err, context.Canceled) {
		t.Errorf("SendAudio = %v, want context.Canceled", err)
	}
}

func TestBridge_SendAudioTimeout(t *testing.T) {
	t.Parallel()
	b, _, _ := newTestBridge(t, "", 0)

	start := time.Now()
	if err := b.SendAudio(context.Background(), []byte{1}); !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("SendAudio = %v, want ErrSendTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < sendTimeout {
		t.Errorf("gave up after %v, want at least %v", elapsed, sendTimeout)
	}
}

func TestBridge_GatewayLoss(t *testing.T) {
	t.Parallel()
	b, _, _ := newTestBridge(t, "", 1)

	b.onDisconnect(nil, &discordgo.Disconnect{})

	if _, ok := <-b.Events(); ok {
		t.Fatal("event stream still open after gateway loss")
	}
	if b.Err() == nil {
		t.Error("Err() = nil after gateway loss")
	}
	if err := b.SendAudio(context.Background(), []byte{1}); !errors.Is(err, session.ErrClosed) {
		t.Errorf("SendAudio after loss = %v, want session.ErrClosed", err)
	}
	// Late messages are dropped instead of panicking on the closed channel.
	b.onMessageCreate(nil, message(&discordgo.User{ID: "u1"}, "guild-1", "c1", "!stop"))
}

func TestBridge_DisconnectOnce(t *testing.T) {
	t.Parallel()
	b, _, fv := newTestBridge(t, "", 1)
	errLeave := errors.New("already gone")
	fv.disconnectErr = errLeave

	if err := b.Disconnect(); !errors.Is(err, errLeave) {
		t.Errorf("first Disconnect = %v, want %v", err, errLeave)
	}
	if err := b.Disconnect(); err != nil {
		t.Errorf("second Disconnect = %v, want nil", err)
	}
	if _, ok := <-b.Events(); ok {
		t.Error("event stream still open after Disconnect")
	}
	if err := b.Err(); err != nil {
		t.Errorf("Err() after orderly disconnect = %v, want nil", err)
	}

	fv.mu.Lock()
	defer fv.mu.Unlock()
	if fv.disconnects != 1 || fv.sessionCloses != 1 {
		t.Errorf("voice disconnects = %d, session closes = %d, want 1 each", fv.disconnects, fv.sessionCloses)
	}
}

func TestBridge_DisconnectUnblocksEmitter(t *testing.T) {
	t.Parallel()
	b, _, _ := newTestBridge(t, "", 1)
	alice := &discordgo.User{ID: "u1", Username: "alice"}

	// Fill the buffer, then block one more emit.
	for range eventBuffer {
		b.onMessageCreate(nil, message(alice, "guild-1", "c1", "!stop"))
	}
	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		b.onMessageCreate(nil, message(alice, "guild-1", "c1", "!stop"))
	}()

	time.Sleep(10 * time.Millisecond)
	_ = b.Disconnect()

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("emitter still blocked after Disconnect")
	}
}
