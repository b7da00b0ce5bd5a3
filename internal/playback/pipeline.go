package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/chorale/internal/config"
	"github.com/MrWong99/chorale/internal/media"
	"github.com/MrWong99/chorale/internal/observe"
	"github.com/MrWong99/chorale/pkg/audio"
	"github.com/MrWong99/chorale/pkg/audio/opus"
)

// Encoder compresses one PCM frame into a packet.
type Encoder interface {
	Encode(f *audio.Frame) ([]byte, error)
}

// PlayTask runs the audio pipeline for one source. A PlayTask holds no
// per-run state; a single value serves every pipeline of an orchestrator.
type PlayTask struct {
	Resolver media.Resolver
	Decoder  media.Decoder

	// NewEncoder creates the per-run encoder. Nil uses Opus.
	NewEncoder func() (Encoder, error)

	// Pacing is the pause after each emitted frame. Zero disables pacing.
	Pacing time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewPlayTask returns a PlayTask with Opus encoding and the configured
// frame pacing.
func NewPlayTask(resolver media.Resolver, decoder media.Decoder, cfg config.PlaybackConfig, metrics *observe.Metrics) *PlayTask {
	return &PlayTask{
		Resolver: resolver,
		Decoder:  decoder,
		Pacing:   cfg.FramePacing,
		Metrics:  metrics,
	}
}

// Run plays source until it ends, a [ControlStop] arrives or ctx is
// cancelled. It sends one [OutputFrame] per encoded packet on frames and
// always sends exactly one end-of-stream frame as its last action. Failures
// never escape Run; they are logged and attached to the end-of-stream frame.
//
// Run's signature matches [Spawner].
func (t *PlayTask) Run(ctx context.Context, id, source string, frames chan<- OutputFrame, control <-chan ControlSignal, gain float32) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "playback.pipeline",
		trace.WithAttributes(
			attribute.String("pipeline.id", id),
			attribute.String("pipeline.source", source),
		),
	)
	defer span.End()
	log := observe.Logger(ctx).With("pipeline_id", id, "source", source)
	log.Info("playback: pipeline started", "gain", gain)

	r := t.play(ctx, log, id, source, frames, control, gain)

	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		log.Error("playback: pipeline failed", "frames", r.frames, "err", r.err)
	} else {
		log.Info("playback: pipeline finished", "outcome", r.outcome, "frames", r.frames)
	}
	span.SetAttributes(attribute.Int("pipeline.frames", r.frames), attribute.String("pipeline.outcome", r.outcome))
	t.metrics().RecordPipeline(ctx, r.outcome, time.Since(start).Seconds())

	eos := OutputFrame{PipelineID: id, EndOfStream: true, Err: r.err}
	select {
	case frames <- eos:
	case <-ctx.Done():
		// Nobody may be listening any more; do not block shutdown.
		select {
		case frames <- eos:
		default:
		}
	}
}

type runResult struct {
	outcome string
	frames  int
	err     error
}

func (t *PlayTask) play(ctx context.Context, log *slog.Logger, id, source string, frames chan<- OutputFrame, control <-chan ControlSignal, gain float32) runResult {
	failed := func(err error) runResult { return runResult{outcome: observe.OutcomeFailed, err: err} }

	res, err := t.Resolver.Resolve(ctx, source)
	if err != nil {
		return failed(fmt.Errorf("playback: resolve: %w", err))
	}
	defer func() {
		if err := res.Release(); err != nil {
			log.Warn("playback: release resolved input", "err", err)
		}
	}()

	pcm, err := t.Decoder.Open(ctx, res.Input)
	if err != nil {
		return failed(fmt.Errorf("playback: open decoder: %w", err))
	}
	defer pcm.Close()

	enc, err := t.newEncoder()
	if err != nil {
		return failed(fmt.Errorf("playback: create encoder: %w", err))
	}

	reader := startFrameReader(pcm)
	defer reader.stop()

	var timer *time.Timer
	if t.Pacing > 0 {
		timer = time.NewTimer(t.Pacing)
		defer timer.Stop()
	}

	var (
		f    audio.Frame
		sent int
	)
	for {
		// Signals that are already pending win over the next PCM frame.
		for pending := true; pending; {
			select {
			case sig, ok := <-control:
				if !ok {
					control = nil
					continue
				}
				if applyControl(sig, &gain) {
					log.Debug("playback: stop requested")
					return runResult{outcome: observe.OutcomeStopped, frames: sent}
				}
			default:
				pending = false
			}
		}

		var buf []byte
		for buf == nil {
			select {
			case sig, ok := <-control:
				if !ok {
					control = nil
					continue
				}
				if applyControl(sig, &gain) {
					log.Debug("playback: stop requested")
					return runResult{outcome: observe.OutcomeStopped, frames: sent}
				}
			case b, ok := <-reader.frames:
				if !ok {
					if rerr := reader.err; rerr != nil {
						return runResult{outcome: observe.OutcomeFailed, frames: sent, err: fmt.Errorf("playback: read pcm: %w", rerr)}
					}
					return runResult{outcome: observe.OutcomeCompleted, frames: sent}
				}
				buf = b
			case <-ctx.Done():
				return runResult{outcome: observe.OutcomeStopped, frames: sent}
			}
		}

		if err := f.DecodeS16BE(buf); err != nil {
			return runResult{outcome: observe.OutcomeFailed, frames: sent, err: fmt.Errorf("playback: %w", err)}
		}
		f.ApplyGain(gain)
		pkt, err := enc.Encode(&f)
		if err != nil {
			return runResult{outcome: observe.OutcomeFailed, frames: sent, err: fmt.Errorf("playback: encode frame %d: %w", sent, err)}
		}

		select {
		case frames <- OutputFrame{PipelineID: id, Payload: pkt}:
			sent++
		case <-ctx.Done():
			return runResult{outcome: observe.OutcomeStopped, frames: sent}
		}

		if timer != nil {
			timer.Reset(t.Pacing)
			select {
			case <-timer.C:
			case <-ctx.Done():
				return runResult{outcome: observe.OutcomeStopped, frames: sent}
			}
		}
	}
}

// applyControl applies sig and reports whether the pipeline must stop.
func applyControl(sig ControlSignal, gain *float32) bool {
	switch sig.Kind {
	case ControlStop:
		return true
	case ControlSetVolume:
		*gain = audio.ClampGain(sig.Gain)
	}
	return false
}

func (t *PlayTask) newEncoder() (Encoder, error) {
	if t.NewEncoder != nil {
		return t.NewEncoder()
	}
	return opus.NewEncoder()
}

func (t *PlayTask) metrics() *observe.Metrics {
	if t.Metrics != nil {
		return t.Metrics
	}
	return observe.DefaultMetrics()
}

// frameReader reads whole PCM frames on its own goroutine so the pipeline
// can wait for a frame and a control signal at the same time.
type frameReader struct {
	frames chan []byte
	done   chan struct{}

	// err is the read error that ended the stream, if any. It is written
	// before frames is closed.
	err error
}

func startFrameReader(r io.Reader) *frameReader {
	fr := &frameReader{
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
	go fr.run(r)
	return fr
}

func (fr *frameReader) run(r io.Reader) {
	defer close(fr.frames)
	for {
		buf := make([]byte, audio.FrameBytes)
		if _, err := io.ReadFull(r, buf); err != nil {
			// A trailing partial frame is dropped.
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				fr.err = err
			}
			return
		}
		select {
		case fr.frames <- buf:
		case <-fr.done:
			return
		}
	}
}

// stop releases the reader goroutine once it is not blocked in Read. Closing
// the underlying stream unblocks a pending Read.
func (fr *frameReader) stop() {
	close(fr.done)
}
