// Package playback implements the audio pipeline and the orchestrator that
// keeps at most one pipeline running.
//
// The [Orchestrator] owns the playback state and the pending queue. For every
// source it starts a [PlayTask] that resolves, decodes, gain-adjusts, encodes
// and paces audio frames. The two communicate over exactly two bounded
// channels: [ControlSignal]s towards the pipeline and [OutputFrame]s back.
package playback

import "github.com/MrWong99/chorale/pkg/audio"

// Channel capacities between orchestrator and pipeline.
const (
	ControlBuffer = 4
	FrameBuffer   = 64
)

// ControlKind selects the action of a [ControlSignal].
type ControlKind int

const (
	// ControlStop ends the pipeline at its next control check.
	ControlStop ControlKind = iota + 1

	// ControlSetVolume changes the gain of subsequently encoded frames.
	ControlSetVolume
)

// String returns the name of the control kind.
func (k ControlKind) String() string {
	switch k {
	case ControlStop:
		return "stop"
	case ControlSetVolume:
		return "set_volume"
	default:
		return "unknown"
	}
}

// ControlSignal is sent from the orchestrator to the active pipeline.
type ControlSignal struct {
	Kind ControlKind

	// Gain is set for ControlSetVolume.
	Gain float32
}

// StopSignal returns a ControlStop signal.
func StopSignal() ControlSignal { return ControlSignal{Kind: ControlStop} }

// VolumeSignal returns a ControlSetVolume signal for gain.
func VolumeSignal(gain float32) ControlSignal {
	return ControlSignal{Kind: ControlSetVolume, Gain: audio.ClampGain(gain)}
}

// OutputFrame is sent from a pipeline to the orchestrator. It carries either
// one encoded packet or, as the very last frame of a pipeline, the
// end-of-stream marker.
type OutputFrame struct {
	// PipelineID identifies the emitting pipeline.
	PipelineID string

	// Payload is one encoded Opus packet. Empty when EndOfStream is set.
	Payload []byte

	// EndOfStream marks pipeline completion for any reason.
	EndOfStream bool

	// Err optionally explains why the pipeline ended early. It is
	// diagnostic only: the orchestrator treats every end of stream alike.
	Err error
}

// State is the orchestrator's playback state.
type State int

const (
	StateIdle State = iota
	StatePlaying
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	State State `json:"state"`

	// Source is the source of the active pipeline.
	Source string `json:"source,omitempty"`

	// Queue is the number of pending sources.
	Queue int `json:"queue"`

	// Gain is the gain of the active pipeline, or the default gain while idle.
	Gain float32 `json:"gain"`
}
