package media

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/MrWong99/chorale/pkg/audio"
)

// FFmpegDecoder decodes any input ffmpeg understands to s16be PCM at the
// pipeline's sample rate and channel count.
type FFmpegDecoder struct {
	// Path is the ffmpeg executable.
	Path string
}

var _ Decoder = (*FFmpegDecoder)(nil)

// Open starts ffmpeg and returns its stdout. The process is not bound to
// ctx: closing the returned stream closes the pipe, after which ffmpeg fails
// its next write and exits. It is reaped in the background.
func (d *FFmpegDecoder) Open(ctx context.Context, input string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(d.Path,
		"-loglevel", "quiet",
		"-nostdin",
		"-i", input,
		"-af", "aresample="+strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-f", "s16be",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("media: ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("media: start ffmpeg: %w", err)
	}
	return &processStream{cmd: cmd, stdout: stdout}, nil
}

// processStream is the stdout of a running process. A clean EOF is reported
// as an error when the process exited non-zero.
type processStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	waitOnce sync.Once
	waitErr  error
}

func (s *processStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == io.EOF {
		if werr := s.wait(); werr != nil {
			return n, fmt.Errorf("media: ffmpeg: %w", werr)
		}
	}
	return n, err
}

func (s *processStream) Close() error {
	err := s.stdout.Close()
	go s.wait()
	return err
}

func (s *processStream) wait() error {
	s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })
	return s.waitErr
}
