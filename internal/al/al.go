// Package al holds the small shared types used across the engine:
// object names, error codes, audio formats and distance models. These
// mirror the OpenAL 1.1 ABI's enum surface without trying to be a
// byte-for-byte binding of it.
package al

import "fmt"

// Name identifies a Buffer or a Source within a device. Zero is the
// reserved "no object" value, matching AL's NULL-name convention.
type Name uint32

// Code is the AL error domain (spec.md §7).
type Code int

const (
	// NoError means the last error slot was empty.
	NoError Code = iota
	InvalidName
	InvalidEnum
	InvalidValue
	InvalidOperation
	InvalidDevice
	InvalidContext
	OutOfMemory
)

func (c Code) String() string {
	switch c {
	case NoError:
		return "no error"
	case InvalidName:
		return "invalid name"
	case InvalidEnum:
		return "invalid enum"
	case InvalidValue:
		return "invalid value"
	case InvalidOperation:
		return "invalid operation"
	case InvalidDevice:
		return "invalid device"
	case InvalidContext:
		return "invalid context"
	case OutOfMemory:
		return "out of memory"
	default:
		return "unknown al error"
	}
}

// Error adapts a Code to the error interface so internal plumbing that
// wants a Go error (as opposed to the sticky per-context error slot)
// can return one directly.
type Error struct {
	Code Code
}

func (e *Error) Error() string { return fmt.Sprintf("al: %s", e.Code) }

// Err wraps a Code as an error.
func Err(c Code) error { return &Error{Code: c} }

// Format describes the encoding of a buffer's PCM payload. Only the
// formats spec.md's Non-goals leave in scope are represented: mono or
// stereo, 8/16-bit integer or 32-bit float samples.
type Format struct {
	Channels   int // 1 or 2
	Encoding   Encoding
	SampleRate int // Hz
}

// Encoding is the per-sample storage type.
type Encoding int

const (
	Int16 Encoding = iota
	Uint8
	Float32
)

// BytesPerSample returns the storage width of one sample in one channel.
func (e Encoding) BytesPerSample() int {
	switch e {
	case Int16:
		return 2
	case Uint8:
		return 1
	case Float32:
		return 4
	default:
		return 0
	}
}

// FrameSize is the number of bytes spanned by one frame (one sample per
// channel) of this format.
func (f Format) FrameSize() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

// DistanceModel selects the distance-attenuation formula (spec.md §6).
type DistanceModel int

const (
	DistanceNone DistanceModel = iota
	InverseDistance
	InverseDistanceClamped
	LinearDistance
	LinearDistanceClamped
	ExponentDistance
	ExponentDistanceClamped
)

// SourceType distinguishes a statically-bound source from a
// buffer-queue-driven streaming source (spec.md §3).
type SourceType int

const (
	Undetermined SourceType = iota
	Static
	Streaming
)

// SourceState is the AL playback state machine (spec.md §4.3).
type SourceState int

const (
	Initial SourceState = iota
	Playing
	Paused
	Stopped
)

func (s SourceState) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case Playing:
		return "PLAYING"
	case Paused:
		return "PAUSED"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// OffsetKind selects the unit for Source offset get/set calls.
type OffsetKind int

const (
	OffsetSeconds OffsetKind = iota
	OffsetSamples
	OffsetBytes
)

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
