package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MrWong99/chorale/internal/command"
	"github.com/MrWong99/chorale/internal/config"
	"github.com/MrWong99/chorale/internal/observe"
	"github.com/MrWong99/chorale/internal/session"
)

// ErrForward is wrapped by [Orchestrator.Run] when an audio packet could not
// be handed to the session.
var ErrForward = errors.New("playback: forward audio")

// Spawner runs one pipeline to completion. It must send exactly one
// end-of-stream frame on frames as its last action and stop early once ctx
// is cancelled. [PlayTask.Run] is the production Spawner.
type Spawner func(ctx context.Context, id, source string, frames chan<- OutputFrame, control <-chan ControlSignal, gain float32)

// Orchestrator routes chat commands to pipelines and pipeline output to the
// session. Its playback state and queue live inside [Orchestrator.Run]; other
// goroutines only see [Orchestrator.Status] snapshots.
type Orchestrator struct {
	bridge      session.Bridge
	spawn       Spawner
	metrics     *observe.Metrics
	defaultGain float32
	newID       func() string

	parser atomic.Pointer[command.Parser]
	status atomic.Pointer[Status]
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithParser sets the command parser. The default knows only "!yt".
func WithParser(p *command.Parser) Option {
	return func(o *Orchestrator) { o.parser.Store(p) }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDefaultGain sets the gain every pipeline starts with. Defaults to
// [config.DefaultVolume].
func WithDefaultGain(g float32) Option {
	return func(o *Orchestrator) { o.defaultGain = g }
}

// NewOrchestrator creates an Orchestrator reading commands from bridge and
// starting pipelines through spawn.
func NewOrchestrator(bridge session.Bridge, spawn Spawner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bridge:      bridge,
		spawn:       spawn,
		defaultGain: config.DefaultVolume,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.parser.Load() == nil {
		o.parser.Store(command.NewParser())
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.status.Store(&Status{State: StateIdle, Gain: o.defaultGain})
	return o
}

// SetParser replaces the command parser. Safe to call while Run is active.
func (o *Orchestrator) SetParser(p *command.Parser) {
	o.parser.Store(p)
}

// Status returns the latest published snapshot.
func (o *Orchestrator) Status() Status {
	return *o.status.Load()
}

// pipeline is the orchestrator's handle on a running pipeline.
type pipeline struct {
	id      string
	source  string
	control chan ControlSignal
	cancel  context.CancelFunc
	done    chan struct{}
	gain    float32
}

// loop is the state owned by one Run invocation.
type loop struct {
	o      *Orchestrator
	frames chan OutputFrame
	active *pipeline // nil while idle
	queue  []string
}

// Run serves the session until ctx is cancelled (returns nil), the session's
// event stream ends (wraps [session.ErrClosed]) or a packet cannot be
// forwarded (wraps [ErrForward]). Any running pipeline is cancelled and
// awaited before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	l := &loop{
		o:      o,
		frames: make(chan OutputFrame, FrameBuffer),
	}
	defer l.shutdown(ctx)

	events := o.bridge.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				if err := o.bridge.Err(); err != nil {
					return fmt.Errorf("playback: %w: %w", session.ErrClosed, err)
				}
				return fmt.Errorf("playback: %w", session.ErrClosed)
			}
			if ev.Type != session.EventChat {
				continue
			}
			l.handle(ctx, ev.Chat, o.parser.Load().Parse(ev.Chat.Text))

		case f := <-l.frames:
			if l.active == nil || f.PipelineID != l.active.id {
				slog.Debug("playback: dropping frame of finished pipeline", "pipeline_id", f.PipelineID)
				continue
			}
			if f.EndOfStream {
				l.finish(ctx, f)
				continue
			}
			if err := o.bridge.SendAudio(ctx, f.Payload); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %w", ErrForward, err)
			}
			o.metrics.FramesSent.Add(ctx, 1)
		}
	}
}

func (l *loop) handle(ctx context.Context, msg session.ChatMessage, in command.Intent) {
	if in.Kind == command.KindNoOp {
		return
	}
	l.o.metrics.RecordCommand(ctx, in.Kind.String())
	log := slog.With("sender", msg.Sender, "command", in.Kind.String())

	switch in.Kind {
	case command.KindPlay:
		if l.active == nil {
			l.start(ctx, in.Source)
			break
		}
		l.queue = append(l.queue, in.Source)
		l.o.metrics.QueueDepth.Add(ctx, 1)
		log.Info("playback: queued", "source", in.Source, "position", len(l.queue))

	case command.KindStop:
		if l.active == nil {
			log.Debug("playback: nothing to stop")
			return
		}
		l.signal(StopSignal())
		log.Info("playback: stop requested", "pipeline_id", l.active.id)

	case command.KindVolume:
		if l.active == nil {
			log.Debug("playback: volume ignored while idle")
			return
		}
		l.active.gain = in.Gain
		l.signal(VolumeSignal(in.Gain))
		log.Info("playback: volume changed", "gain", in.Gain)
	}
	l.publish()
}

// signal hands sig to the active pipeline without blocking. A full control
// channel means the pipeline is not consuming and the signal is dropped.
func (l *loop) signal(sig ControlSignal) {
	select {
	case l.active.control <- sig:
	default:
		slog.Debug("playback: control signal dropped", "pipeline_id", l.active.id, "signal", sig.Kind)
	}
}

// start spawns a pipeline for source at the default gain. A volume set for
// an earlier pipeline does not carry over. The caller guarantees no pipeline
// is active.
func (l *loop) start(ctx context.Context, source string) {
	pctx, cancel := context.WithCancel(ctx)
	p := &pipeline{
		id:      l.o.newID(),
		source:  source,
		control: make(chan ControlSignal, ControlBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
		gain:    l.o.defaultGain,
	}
	l.active = p
	l.o.metrics.ActivePipelines.Add(ctx, 1)

	gain := p.gain
	go func() {
		defer close(p.done)
		l.o.spawn(pctx, p.id, source, l.frames, p.control, gain)
	}()
	slog.Info("playback: playing", "pipeline_id", p.id, "source", source)
}

// finish handles the end-of-stream frame of the active pipeline and
// advances the queue.
func (l *loop) finish(ctx context.Context, f OutputFrame) {
	p := l.active
	// End of stream is the pipeline's last send; it returns right after.
	<-p.done
	p.cancel()
	l.active = nil
	l.o.metrics.ActivePipelines.Add(ctx, -1)

	if f.Err != nil {
		slog.Warn("playback: pipeline ended with error", "pipeline_id", p.id, "source", p.source, "err", f.Err)
	} else {
		slog.Debug("playback: pipeline ended", "pipeline_id", p.id, "source", p.source)
	}

	if len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		l.o.metrics.QueueDepth.Add(ctx, -1)
		l.start(ctx, next)
	}
	l.publish()
}

func (l *loop) shutdown(ctx context.Context) {
	if p := l.active; p != nil {
		p.cancel()
		<-p.done
		l.active = nil
		l.o.metrics.ActivePipelines.Add(context.WithoutCancel(ctx), -1)
	}
	if n := len(l.queue); n > 0 {
		l.o.metrics.QueueDepth.Add(context.WithoutCancel(ctx), int64(-n))
		slog.Info("playback: discarding queue", "pending", n)
		l.queue = nil
	}
	l.publish()
}

func (l *loop) publish() {
	s := &Status{State: StateIdle, Queue: len(l.queue), Gain: l.o.defaultGain}
	if l.active != nil {
		s.State = StatePlaying
		s.Source = l.active.source
		s.Gain = l.active.gain
	}
	l.o.status.Store(s)
}
