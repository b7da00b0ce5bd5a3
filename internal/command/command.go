// Package command turns chat messages into playback intents.
//
// Parsing is a pure function of the message text: link markup is stripped,
// the text is reduced to an allow-listed character set, and the leading
// token selects the intent. Anything not recognised is [KindNoOp], so the
// caller never has to deal with parse errors.
package command

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Built-in command triggers.
const (
	TriggerPlay   = "!yt"
	TriggerStop   = "!stop"
	TriggerVolume = "!volume"
)

// Kind classifies an [Intent].
type Kind int

const (
	// KindNoOp means the message is not a command for the bot.
	KindNoOp Kind = iota

	// KindPlay requests playback of Intent.Source.
	KindPlay

	// KindStop stops the current track.
	KindStop

	// KindVolume sets the playback gain to Intent.Gain.
	KindVolume
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNoOp:
		return "noop"
	case KindPlay:
		return "play"
	case KindStop:
		return "stop"
	case KindVolume:
		return "volume"
	default:
		return "unknown"
	}
}

// Intent is the parsed meaning of one chat message.
type Intent struct {
	Kind Kind

	// Source is the link to play; set for KindPlay only.
	Source string

	// Gain is in [0, 1]; set for KindVolume only.
	Gain float32
}

// NoOp is the intent of every message that is not a command.
var NoOp = Intent{Kind: KindNoOp}

// Play returns a play intent for source.
func Play(source string) Intent { return Intent{Kind: KindPlay, Source: source} }

// Stop returns a stop intent.
func Stop() Intent { return Intent{Kind: KindStop} }

// Volume returns a volume intent with the given gain.
func Volume(gain float32) Intent { return Intent{Kind: KindVolume, Gain: gain} }

// String implements [fmt.Stringer] for logging.
func (i Intent) String() string {
	switch i.Kind {
	case KindPlay:
		return fmt.Sprintf("play(%s)", i.Source)
	case KindVolume:
		return fmt.Sprintf("volume(%.2f)", i.Gain)
	default:
		return i.Kind.String()
	}
}

// Parser parses chat messages. The zero value recognises only the built-in
// triggers. A Parser is immutable and safe for concurrent use.
type Parser struct {
	playTriggers []string
}

// NewParser returns a Parser that accepts each of aliases in addition to
// [TriggerPlay] as a play command.
func NewParser(aliases ...string) *Parser {
	triggers := append([]string{TriggerPlay}, aliases...)
	return &Parser{playTriggers: slices.Compact(triggers)}
}

var defaultParser = NewParser()

// Parse parses raw with the built-in triggers only.
func Parse(raw string) Intent {
	return defaultParser.Parse(raw)
}

// Parse converts raw chat text into an [Intent]. It never fails.
func (p *Parser) Parse(raw string) Intent {
	text := Sanitize(StripMarkup(raw))
	if !strings.HasPrefix(text, "!") {
		return NoOp
	}

	tokens := strings.Split(text, " ")
	if tokens[0] == TriggerStop {
		return Stop()
	}
	if len(tokens) < 2 {
		return NoOp
	}

	switch {
	case tokens[0] == TriggerVolume:
		n, err := strconv.ParseUint(tokens[1], 10, 32)
		if err != nil {
			return NoOp
		}
		return Volume(float32(min(n, 100)) / 100)
	case p.isPlayTrigger(tokens[0]):
		return Play(tokens[1])
	}
	return NoOp
}

func (p *Parser) isPlayTrigger(tok string) bool {
	if p == nil || len(p.playTriggers) == 0 {
		return tok == TriggerPlay
	}
	return slices.Contains(p.playTriggers, tok)
}

// StripMarkup removes the [URL] and [/URL] link markers chat clients wrap
// around links. Opening markers go first, so a closing marker split by an
// opening one is removed too.
func StripMarkup(s string) string {
	s = strings.ReplaceAll(s, "[URL]", "")
	return strings.ReplaceAll(s, "[/URL]", "")
}

// Sanitize keeps letters, digits and the punctuation used by commands and
// links, then trims surrounding whitespace.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if allowed(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func allowed(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', '.', '=', '\t', ',', '?', '!', ':', '&', '/', '-', '_':
		return true
	}
	return false
}
