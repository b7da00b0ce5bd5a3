// Package media turns a requested link into raw PCM using external tools.
//
// Acquisition and decoding are split into two capabilities. A [Resolver]
// maps a source reference to something ffmpeg can read (a direct media URL
// or a local file) and a [Decoder] opens that input as a stream of
// interleaved 16-bit big-endian stereo PCM at 48 kHz. Both are narrow
// interfaces so playback can be tested with deterministic fakes.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ErrNoStream is returned when a resolver finishes without producing a
// playable input.
var ErrNoStream = errors.New("media: no playable stream")

// ErrSource is wrapped by resolver errors caused by the requested link, such
// as yt-dlp exiting non-zero for an unsupported or unavailable URL.
var ErrSource = errors.New("media: source rejected")

// IsSourceError reports whether err is a per-link failure ([ErrSource] or
// [ErrNoStream]) rather than a broken tool or environment.
func IsSourceError(err error) bool {
	return errors.Is(err, ErrSource) || errors.Is(err, ErrNoStream)
}

// Resolved is the outcome of a successful resolution. Release must be called
// once the input is no longer read.
type Resolved struct {
	// Input is passed verbatim to the [Decoder].
	Input string

	release func() error
	once    sync.Once
}

// NewResolved returns a Resolved whose Release calls release exactly once.
// release may be nil.
func NewResolved(input string, release func() error) *Resolved {
	return &Resolved{Input: input, release: release}
}

// Release frees resources held for the input, such as a transcoded cache
// file. It is safe to call more than once.
func (r *Resolved) Release() error {
	var err error
	r.once.Do(func() {
		if r.release != nil {
			err = r.release()
		}
	})
	return err
}

// Resolver maps a user supplied source reference to a decodable input.
type Resolver interface {
	Resolve(ctx context.Context, source string) (*Resolved, error)
}

// Decoder opens a resolved input as a raw PCM stream. Closing the stream
// stops reading; the producing process is expected to exit once its output
// pipe is gone.
type Decoder interface {
	Open(ctx context.Context, input string) (io.ReadCloser, error)
}

// CheckTools reports every executable in paths that cannot be found.
func CheckTools(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if _, err := exec.LookPath(p); err != nil {
			errs = append(errs, fmt.Errorf("media: required tool %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// runTool runs a tool to completion and returns its stdout. On failure the
// last line the tool wrote to stderr is included in the error. A tool that
// ran but exited non-zero yields an error wrapping [ErrSource]; failing to
// start it does not.
func runTool(ctx context.Context, path string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w: %w", ErrSource, exitErr)
		}
		if msg := lastLine(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", path, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stdout.Bytes(), nil
}

// firstLine returns the first non-blank line of s.
func firstLine(s string) string {
	for line := range strings.Lines(s) {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
