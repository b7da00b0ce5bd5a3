package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// StreamResolver asks yt-dlp for the direct URL of the best audio format.
// Nothing is written to disk; ffmpeg reads the URL itself.
type StreamResolver struct {
	// Path is the yt-dlp executable.
	Path string
}

var _ Resolver = (*StreamResolver)(nil)

// Resolve implements [Resolver].
func (r *StreamResolver) Resolve(ctx context.Context, source string) (*Resolved, error) {
	out, err := runTool(ctx, r.Path,
		"--quiet", "--no-warnings", "--no-playlist",
		"-f", "bestaudio/best",
		"--get-url",
		"--", source,
	)
	if err != nil {
		return nil, fmt.Errorf("media: resolve stream: %w", err)
	}
	url := firstLine(string(out))
	if url == "" {
		return nil, fmt.Errorf("media: resolve stream %q: %w", source, ErrNoStream)
	}
	return NewResolved(url, nil), nil
}

// DownloadResolver has yt-dlp download the source and transcode it to WAV
// inside CacheDir. Release deletes the file.
type DownloadResolver struct {
	// Path is the yt-dlp executable.
	Path string

	// CacheDir receives the transcoded files. A tmpfs such as /dev/shm
	// keeps them off disk.
	CacheDir string
}

var _ Resolver = (*DownloadResolver)(nil)

// Resolve implements [Resolver].
func (r *DownloadResolver) Resolve(ctx context.Context, source string) (*Resolved, error) {
	if err := os.MkdirAll(r.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create cache dir: %w", err)
	}
	out, err := runTool(ctx, r.Path,
		"--quiet", "--no-warnings", "--no-playlist",
		"-x", "--audio-format", "wav",
		"-o", filepath.Join(r.CacheDir, "%(title)s-%(id)s.%(ext)s"),
		"--print", "after_move:filepath",
		"--", source,
	)
	if err != nil {
		return nil, fmt.Errorf("media: download: %w", err)
	}
	file := firstLine(string(out))
	if file == "" {
		return nil, fmt.Errorf("media: download %q: %w", source, ErrNoStream)
	}
	return NewResolved(file, func() error {
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("media: remove %q: %w", file, err)
		}
		return nil
	}), nil
}
