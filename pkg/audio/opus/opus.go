// Package opus wraps the gopus encoder with the fixed Chorale output format:
// 48 kHz stereo, 20 ms frames, music application profile.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/chorale/pkg/audio"
)

// MaxPacketSize bounds a single encoded packet (three maximum-size Opus
// frames, matching libopus' recommended output buffer).
const MaxPacketSize = 3 * 1276

// Encoder turns PCM frames into Opus packets. An Encoder keeps state between
// frames and must be used by one goroutine at a time.
type Encoder struct {
	enc *gopus.Encoder
}

// NewEncoder creates an Encoder configured for music playback.
func NewEncoder() (*Encoder, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &Encoder{enc: enc}, nil
}

// Encode compresses one frame into a freshly allocated packet.
func (e *Encoder) Encode(f *audio.Frame) ([]byte, error) {
	pkt, err := e.enc.Encode(f.Samples(), audio.FrameSamples, MaxPacketSize)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return pkt, nil
}
