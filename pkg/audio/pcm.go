// Package audio holds the fixed PCM format used throughout Chorale and the
// sample-level helpers applied to it before encoding.
//
// Every decoded stream is normalised by the decoder to interleaved signed
// 16-bit big-endian stereo at 48 kHz. One [Frame] covers 20 ms of audio,
// which is also the frame size of the Opus encoder in [opus].
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Output format of every decoded stream.
const (
	SampleRate = 48000
	Channels   = 2

	// FrameDuration is the audio duration covered by a single frame.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of samples per channel in one frame (960).
	FrameSamples = SampleRate * int(FrameDuration/time.Millisecond) / 1000

	// FrameBytes is the size of one frame of raw s16be stereo PCM (3840).
	FrameBytes = FrameSamples * Channels * 2
)

// Frame is one frame worth of interleaved stereo samples.
type Frame [FrameSamples * Channels]int16

// DecodeS16BE fills f from raw big-endian PCM. src must hold exactly
// [FrameBytes] bytes.
func (f *Frame) DecodeS16BE(src []byte) error {
	if len(src) != FrameBytes {
		return fmt.Errorf("audio: decode frame: got %d bytes, want %d", len(src), FrameBytes)
	}
	for i := range f {
		f[i] = int16(binary.BigEndian.Uint16(src[i*2:]))
	}
	return nil
}

// ApplyGain scales every sample by gain. The product is truncated toward
// zero by the integer conversion; nothing is clipped.
func (f *Frame) ApplyGain(gain float32) {
	if gain == 1 {
		return
	}
	for i, s := range f {
		f[i] = int16(float32(s) * gain)
	}
}

// Samples returns the frame as a slice for encoders that take []int16.
func (f *Frame) Samples() []int16 {
	return f[:]
}

// ClampGain limits g to [0, 1].
func ClampGain(g float32) float32 {
	switch {
	case g < 0:
		return 0
	case g > 1:
		return 1
	}
	return g
}
