// Package mock provides deterministic stand-ins for the media resolver and
// decoder so playback can be tested without yt-dlp or ffmpeg.
package mock

import (
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/MrWong99/chorale/internal/media"
	"github.com/MrWong99/chorale/pkg/audio"
)

// Resolver resolves every source to itself unless Err is set.
type Resolver struct {
	// Err is returned by every Resolve call when non-nil.
	Err error

	// Errs maps a source to the error returned for it. Err takes precedence.
	Errs map[string]error

	mu       sync.Mutex
	calls    []string
	released []string
}

var _ media.Resolver = (*Resolver)(nil)

// Resolve implements [media.Resolver].
func (r *Resolver) Resolve(ctx context.Context, source string) (*media.Resolved, error) {
	r.mu.Lock()
	r.calls = append(r.calls, source)
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if err := r.Errs[source]; err != nil {
		return nil, err
	}
	return media.NewResolved(source, func() error {
		r.mu.Lock()
		r.released = append(r.released, source)
		r.mu.Unlock()
		return nil
	}), nil
}

// Calls returns the sources passed to Resolve, in order.
func (r *Resolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Released returns the sources whose resolution has been released.
func (r *Resolver) Released() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

// Decoder produces synthetic s16be PCM. Every sample of the stream opened
// for input equals Values[input], or DefaultValue when input has no entry.
type Decoder struct {
	// Frames is the number of full frames produced before EOF.
	Frames int

	// Values maps an input to its constant sample value.
	Values map[string]int16

	// DefaultValue is used for inputs missing from Values.
	DefaultValue int16

	// Stall keeps the stream open after the last frame until it is closed.
	Stall bool

	// OpenErr is returned by every Open call when non-nil.
	OpenErr error

	mu     sync.Mutex
	opened []string
	closed int
}

var _ media.Decoder = (*Decoder)(nil)

// Open implements [media.Decoder].
func (d *Decoder) Open(_ context.Context, input string) (io.ReadCloser, error) {
	d.mu.Lock()
	d.opened = append(d.opened, input)
	d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	v, ok := d.Values[input]
	if !ok {
		v = d.DefaultValue
	}
	frame := make([]byte, audio.FrameBytes)
	for i := 0; i < len(frame); i += 2 {
		binary.BigEndian.PutUint16(frame[i:], uint16(v))
	}
	return &stream{dec: d, frame: frame, left: d.Frames, stall: d.Stall, done: make(chan struct{})}, nil
}

// Opened returns the inputs passed to Open, in order.
func (d *Decoder) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

// Closed returns how many opened streams have been closed.
func (d *Decoder) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type stream struct {
	dec   *Decoder
	frame []byte
	off   int
	left  int
	stall bool

	closeOnce sync.Once
	done      chan struct{}
}

func (s *stream) Read(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, io.ErrClosedPipe
	default:
	}
	if s.left == 0 {
		if s.stall {
			<-s.done
			return 0, io.ErrClosedPipe
		}
		return 0, io.EOF
	}
	n := copy(p, s.frame[s.off:])
	s.off += n
	if s.off == len(s.frame) {
		s.off = 0
		s.left--
	}
	return n, nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.dec.mu.Lock()
		s.dec.closed++
		s.dec.mu.Unlock()
	})
	return nil
}
