// Package stream implements the AudioStream primitive sketched as an
// external collaborator in spec.md §6: something that can be pushed
// raw PCM in a declared input format, pulled as float32 frames in a
// declared output format, flushed/cleared, and have a playback
// frequency ratio applied for pitch/Doppler.
//
// The resampling algorithm is linear interpolation, generalized from
// mono one-shot slices to a stateful multi-channel push/pull stream so
// a Source can feed it buffer-sized chunks and the Mixer can pull
// arbitrary frame counts across chunk boundaries.
package stream

import "github.com/gosoundal/goal/internal/al"

// Stream is the per-source resampling/pitch stream the Mixer reads
// from (spec.md §4.5) and Source.set_offset reseeds.
type Stream interface {
	// Push enqueues PCM samples (already decoded to float32, one
	// sample per channel interleaved) in the given source format.
	// Calling Push again before the previous input is exhausted
	// appends to the pending input.
	Push(samples []float32, channels int)

	// Pull writes up to len(out)/outChannels frames into out
	// (interleaved, outChannels per frame) and returns the number of
	// frames written and the number of *input* bytes that were
	// consumed from the most recent Push to produce them (pre-
	// resampling bytes, per spec.md §9's decided BYTE_OFFSET
	// convention).
	Pull(out []float32, outChannels int) (frames int, inputBytesConsumed int)

	// SetPitch sets the playback frequency ratio (>0; 1.0 = no pitch
	// shift). Nothing in this module calls it: sources play at ratio
	// 1.0, and neither Params.Pitch nor a Doppler shift is applied.
	SetPitch(ratio float32)

	// Clear discards any buffered input and resets resampling state,
	// used by Stop/Rewind/SetOffset/loop-restart.
	Clear()

	// AvailableOutputFrames reports an estimate of how many more
	// output frames can be produced from currently-pushed input
	// without a further Push (0 once input is exhausted).
	AvailableOutputFrames() int
}

// linear is the concrete Stream implementation.
type linear struct {
	srcChannels int
	frameSize   int // bytes per source frame, per srcFormat.FrameSize()
	pitch       float32

	pending []float32 // interleaved source-format samples awaiting consumption
	pos     float64   // fractional read position into pending, in frames
}

// New returns a Stream that resamples from srcFormat at pitch ratio
// 1.0.
func New(srcFormat al.Format) Stream {
	return &linear{
		srcChannels: srcFormat.Channels,
		frameSize:   srcFormat.FrameSize(),
		pitch:       1,
	}
}

func (s *linear) Push(samples []float32, channels int) {
	if channels != s.srcChannels {
		// Channel-count mismatches are rejected upstream (Source
		// enforces queue homogeneity); defensively ignore here.
		return
	}
	s.pending = append(s.pending, samples...)
}

func (s *linear) SetPitch(ratio float32) {
	if ratio <= 0 {
		ratio = 1
	}
	s.pitch = ratio
}

func (s *linear) Clear() {
	s.pending = s.pending[:0]
	s.pos = 0
}

func (s *linear) AvailableOutputFrames() int {
	srcFrames := len(s.pending) / s.srcChannels
	remaining := float64(srcFrames) - s.pos
	if remaining <= 0 {
		return 0
	}
	// Output-rate frames per remaining source frame is 1/pitch when
	// pitch>1 speeds playback up (fewer output frames per source
	// frame consumed is wrong framing; see Pull for the precise
	// stepping). This is an estimate only.
	return int(remaining / float64(s.pitch))
}

// Pull advances s.pos by s.pitch source-frames per output frame,
// linearly interpolating between pending[idx] and pending[idx+1] (a
// sample1/sample2/frac scheme generalized across channels), so the
// very first frame pulled from a freshly-seeded stream is pending's
// actual first frame rather than a held-over zero. Channel count
// conversion (mono source into a stereo accumulator or vice versa) is
// the caller's responsibility via the mix kernels (spec.md §4.5); Pull
// always emits s.srcChannels channels per frame.
func (s *linear) Pull(out []float32, outChannels int) (int, int) {
	if outChannels != s.srcChannels {
		return 0, 0
	}
	srcFrames := len(s.pending) / s.srcChannels
	maxOut := len(out) / outChannels
	framesWritten := 0
	startPos := s.pos

	for framesWritten < maxOut {
		idx := int(s.pos)
		if idx >= srcFrames {
			break
		}
		frac := float32(s.pos - float64(idx))

		for c := 0; c < s.srcChannels; c++ {
			a := s.pending[idx*s.srcChannels+c]
			b := a
			if idx+1 < srcFrames {
				b = s.pending[(idx+1)*s.srcChannels+c]
			}
			out[framesWritten*outChannels+c] = a + (b-a)*frac
		}
		s.pos += float64(s.pitch)
		framesWritten++
	}

	consumedFrames := int(s.pos) - int(startPos)
	if consumedFrames < 0 {
		consumedFrames = 0
	}
	if consumedFrames > 0 {
		// Shift the consumed prefix out of pending; the fractional
		// remainder of s.pos stays aligned with pending[0] onward so a
		// later Push extends the same interpolation window seamlessly.
		if consumedFrames > srcFrames {
			consumedFrames = srcFrames
		}
		s.pending = append(s.pending[:0], s.pending[consumedFrames*s.srcChannels:]...)
		s.pos -= float64(consumedFrames)
	}

	return framesWritten, consumedFrames * s.frameSize
}
