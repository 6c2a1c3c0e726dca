// kernel.go implements the mix kernels (spec.md §4.5): dispatch on
// (source channels, output channels), each accumulating a resampled
// scratch buffer into the shared float32 accumulator with per-channel
// panning gains.
//
// Kernel dispatch reads golang.org/x/sys/cpu once at package init to
// pick, for monoToStereo, between the plain per-frame scalar loop and
// a scalar loop unrolled by 4 (spec.md §9 allows a scalar-only
// implementation where SIMD intrinsics aren't available); the
// *dispatch decision* is grounded on real CPU feature detection rather
// than invented, but this module ships scalar kernels only and none of
// them handles buffer alignment.
package mixer

import "golang.org/x/sys/cpu"

// wideKernels reports whether the unrolled-by-4 scalar fast
// path should be preferred over the simple per-frame loop. On
// platforms with wide SIMD registers available (even though we don't
// emit intrinsics ourselves), unrolling by 4 gives the Go compiler's
// auto-vectorization-adjacent loop optimizer more to work with; on
// narrower targets the plain loop is just as fast and simpler.
var wideKernels = cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD

// monoToMono accumulates a mono scratch buffer into a mono accumulator
// with a single gain.
func monoToMono(acc, scratch []float32, gain float32) {
	if gain == 0 {
		return
	}
	if gain == 1 {
		for i, s := range scratch {
			acc[i] += s
		}
		return
	}
	mulAdd(acc, scratch, gain)
}

// monoToStereo spreads a mono scratch buffer across stereo output
// frames using the two panning gains (spec.md §4.5: "mono→stereo
// kernel").
func monoToStereo(acc, scratch []float32, gainL, gainR float32) {
	if gainL == 0 && gainR == 0 {
		return
	}
	n := len(scratch)
	if wideKernels {
		monoToStereoUnrolled(acc, scratch, gainL, gainR, n)
		return
	}
	for i := 0; i < n; i++ {
		s := scratch[i]
		acc[i*2] += s * gainL
		acc[i*2+1] += s * gainR
	}
}

func monoToStereoUnrolled(acc, scratch []float32, gainL, gainR float32, n int) {
	i := 0
	for ; i+4 <= n; i += 4 {
		for k := 0; k < 4; k++ {
			s := scratch[i+k]
			acc[(i+k)*2] += s * gainL
			acc[(i+k)*2+1] += s * gainR
		}
	}
	for ; i < n; i++ {
		s := scratch[i]
		acc[i*2] += s * gainL
		acc[i*2+1] += s * gainR
	}
}

// stereoToMono downmixes an interleaved stereo scratch buffer into a
// mono accumulator, averaging channels before applying gain.
func stereoToMono(acc, scratch []float32, gain float32) {
	if gain == 0 {
		return
	}
	frames := len(scratch) / 2
	for i := 0; i < frames; i++ {
		avg := (scratch[i*2] + scratch[i*2+1]) * 0.5
		acc[i] += avg * gain
	}
}

// stereoToStereo accumulates an interleaved stereo scratch buffer into
// a stereo accumulator with independent left/right gains (spec.md
// §4.5 "stereo→stereo kernel"). Its only shortcut is skipping the
// multiply when both gains are 1; it has no alignment fast path.
func stereoToStereo(acc, scratch []float32, gainL, gainR float32) {
	if gainL == 0 && gainR == 0 {
		return
	}
	frames := len(scratch) / 2
	if gainL == 1 && gainR == 1 {
		for i := 0; i < frames*2; i++ {
			acc[i] += scratch[i]
		}
		return
	}
	for i := 0; i < frames; i++ {
		acc[i*2] += scratch[i*2] * gainL
		acc[i*2+1] += scratch[i*2+1] * gainR
	}
}

// monoToSurround and stereoToSurround scatter a scratch buffer into
// exactly two speaker channels of a wider output frame, per the VBAP
// speaker-pair result from the Spatialiser (spec.md §4.4 step 10,
// §4.5 "mono→surround, stereo→surround").
func monoToSurround(acc []float32, scratch []float32, outChannels int, speakers [2]int, gains [2]float32) {
	frames := len(scratch)
	for i := 0; i < frames; i++ {
		s := scratch[i]
		base := i * outChannels
		acc[base+speakers[0]] += s * gains[0]
		if speakers[1] != speakers[0] {
			acc[base+speakers[1]] += s * gains[1]
		}
	}
}

func stereoToSurround(acc []float32, scratch []float32, outChannels int, speakers [2]int, gains [2]float32) {
	frames := len(scratch) / 2
	for i := 0; i < frames; i++ {
		s := (scratch[i*2] + scratch[i*2+1]) * 0.5
		base := i * outChannels
		acc[base+speakers[0]] += s * gains[0]
		if speakers[1] != speakers[0] {
			acc[base+speakers[1]] += s * gains[1]
		}
	}
}

func mulAdd(acc, scratch []float32, gain float32) {
	for i, s := range scratch {
		acc[i] += s * gain
	}
}
