// Package mock provides instrumented stand-ins for the playback package:
// a transparent encoder and a spawner that counts pipelines.
package mock

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/MrWong99/chorale/internal/playback"
	"github.com/MrWong99/chorale/pkg/audio"
)

// Encoder "encodes" a frame as its first sample in big-endian byte order, so
// tests can see the gain that was applied to every packet.
type Encoder struct {
	// Err is returned once FailAt frames were encoded.
	Err error

	// FailAt is the number of successful encodes before Err is returned.
	FailAt int

	mu    sync.Mutex
	count int
}

var _ playback.Encoder = (*Encoder)(nil)

// Encode implements [playback.Encoder].
func (e *Encoder) Encode(f *audio.Frame) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil && e.count >= e.FailAt {
		return nil, e.Err
	}
	e.count++
	return binary.BigEndian.AppendUint16(nil, uint16(f[0])), nil
}

// Sample decodes a packet produced by [Encoder.Encode].
func Sample(pkt []byte) int16 {
	if len(pkt) < 2 {
		return 0
	}
	return int16(binary.BigEndian.Uint16(pkt))
}

// Factory returns a NewEncoder function handing out enc.
func Factory(enc playback.Encoder) func() (playback.Encoder, error) {
	return func() (playback.Encoder, error) { return enc, nil }
}

// FailingFactory returns a NewEncoder function that always fails with err.
func FailingFactory(err error) func() (playback.Encoder, error) {
	if err == nil {
		err = errors.New("mock: encoder unavailable")
	}
	return func() (playback.Encoder, error) { return nil, err }
}

// Spawner wraps a [playback.Spawner] and records every pipeline it starts,
// including the highest number of pipelines running at once.
type Spawner struct {
	// Run is the wrapped spawner. It must be set.
	Run playback.Spawner

	mu        sync.Mutex
	sources   []string
	gains     []float32
	active    int
	maxActive int
}

// Spawn implements [playback.Spawner].
func (s *Spawner) Spawn(ctx context.Context, id, source string, frames chan<- playback.OutputFrame, control <-chan playback.ControlSignal, gain float32) {
	s.mu.Lock()
	s.sources = append(s.sources, source)
	s.gains = append(s.gains, gain)
	s.active++
	s.maxActive = max(s.maxActive, s.active)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()
	s.Run(ctx, id, source, frames, control, gain)
}

// Sources returns the sources of all spawned pipelines in spawn order.
func (s *Spawner) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sources...)
}

// Gains returns the initial gains of all spawned pipelines in spawn order.
func (s *Spawner) Gains() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.gains...)
}

// Active returns the number of pipelines currently running.
func (s *Spawner) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// MaxActive returns the highest number of pipelines that ran at once.
func (s *Spawner) MaxActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}
