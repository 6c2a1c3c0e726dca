// Package spatial implements the Spatialiser (spec.md §4.4): a pure
// function from (listener, source, output channel layout) to a pair
// of speaker indices and gains, covering distance attenuation, cone
// attenuation, constant-power stereo panning and VBAP for surround
// layouts.
//
// The gain-math shape (distance model switch, listener-relative
// projection, clamped gain) is grounded on the listener/source field
// layout of other_examples' Go OpenAL-adjacent bindings
// (0e7aa746_gazed-vu__src-vu-audio-openal.go.go,
// 4f441a01_g3n-engine__audio-al-al.go.go).
package spatial

import (
	"math"

	"github.com/gosoundal/goal/internal/al"
)

// Listener mirrors the Context's listener fields needed here
// (spec.md §3).
type Listener struct {
	Position [3]float32
	At       [3]float32
	Up       [3]float32
	Gain     float32
}

// SourceInput is the subset of source.Params the Spatialiser needs,
// copied out by the caller to avoid a spatial -> source import cycle.
type SourceInput struct {
	Position       [3]float32
	SourceRelative bool
	Gain           float32
	MinGain        float32
	MaxGain        float32
	RefDistance    float32
	MaxDistance    float32
	Rolloff        float32
	ConeInner      float32
	ConeOuter      float32
	ConeOuterGain  float32
	Direction      [3]float32 // zero vector = omnidirectional
	Channels       int        // channel count of the source's bound/queued buffer
}

// Output is the cached (speakers, gains) pair (spec.md §3/§4.4).
type Output struct {
	Speakers [2]int
	Gains    [2]float32
}

// Compute runs the full spec.md §4.4 algorithm.
func Compute(listener Listener, src SourceInput, model al.DistanceModel, outputChannels int) Output {
	if model == al.DistanceNone || src.Channels > 1 || src.Rolloff == 0 {
		g := al.Clamp(src.Gain, src.MinGain, src.MaxGain) * listener.Gain
		return Output{Speakers: [2]int{0, 1}, Gains: [2]float32{g, g}}
	}

	var p [3]float32
	if src.SourceRelative {
		p = src.Position
	} else {
		p = sub(src.Position, listener.Position)
	}
	d := length(p)

	gd := distanceGain(float64(d), float64(src.RefDistance), float64(src.MaxDistance), float64(src.Rolloff), model)
	g := float32(gd) * src.Gain

	g *= coneAttenuation(p, src)

	g = al.Clamp(g, src.MinGain, src.MaxGain)
	g *= listener.Gain

	theta := angle(listener, p)

	if outputChannels == 1 {
		return Output{Speakers: [2]int{0, 0}, Gains: [2]float32{g, g}}
	}

	if outputChannels == 2 || outputChannels == 3 {
		l, r := constantPowerPan(theta)
		return Output{Speakers: [2]int{0, 1}, Gains: [2]float32{l * g, r * g}}
	}

	if table := LayoutFor(outputChannels); table != nil {
		// The layout tables use the same convention as theta (set by
		// angle()): 0 = due front (listener's +at direction), positive
		// to the right, so theta is only wrapped into [0, 2pi).
		spkA, spkB, gA, gB := table.pan(wrap2pi(theta), g)
		return Output{Speakers: [2]int{spkA, spkB}, Gains: [2]float32{gA, gB}}
	}

	// Fallback: unknown channel count, treat as stereo.
	l, r := constantPowerPan(theta)
	return Output{Speakers: [2]int{0, 1}, Gains: [2]float32{l * g, r * g}}
}

func distanceGain(d, dRef, dMax, rolloff float64, model al.DistanceModel) float64 {
	clamp := func(v float64) float64 {
		if v < dRef {
			return dRef
		}
		if v > dMax {
			return dMax
		}
		return v
	}
	switch model {
	case al.InverseDistance:
		return inverseGain(d, dRef, rolloff)
	case al.InverseDistanceClamped:
		return inverseGain(clamp(d), dRef, rolloff)
	case al.LinearDistance:
		return linearGain(d, dRef, dMax, rolloff)
	case al.LinearDistanceClamped:
		// "linear-clamped pre-clamps only on the low side" (spec.md §6).
		dd := d
		if dd < dRef {
			dd = dRef
		}
		return linearGain(dd, dRef, dMax, rolloff)
	case al.ExponentDistance:
		return exponentGain(d, dRef, rolloff)
	case al.ExponentDistanceClamped:
		return exponentGain(clamp(d), dRef, rolloff)
	default:
		return 1
	}
}

func inverseGain(d, dRef, rolloff float64) float64 {
	denom := dRef + rolloff*(d-dRef)
	if denom == 0 {
		return 1
	}
	return dRef / denom
}

func linearGain(d, dRef, dMax, rolloff float64) float64 {
	if dMax == dRef {
		return 1
	}
	dd := d
	if dd > dMax {
		dd = dMax
	}
	g := 1 - rolloff*(dd-dRef)/(dMax-dRef)
	if g < 0 {
		g = 0
	}
	return g
}

func exponentGain(d, dRef, rolloff float64) float64 {
	if dRef <= 0 || d <= 0 {
		return 1
	}
	return math.Pow(d/dRef, -rolloff)
}

// coneAttenuation implements the standard OpenAL 1.1 cone-gain
// formulation (spec.md §4.4 step 5): 1.0 inside the inner cone angle,
// ConeOuterGain outside the outer cone angle, linearly interpolated
// by angle between. relPos is the source's position relative to the
// listener (P from step 2); the cone axis is src.Direction, and the
// angle that matters is between that axis and the vector pointing
// from the source back toward the listener, i.e. -relPos.
func coneAttenuation(relPos [3]float32, src SourceInput) float32 {
	if src.ConeInner >= src.ConeOuter {
		return 1
	}
	dirLen := length(src.Direction)
	toListener := scale(relPos, -1)
	toListenerLen := length(toListener)
	if dirLen == 0 || toListenerLen == 0 {
		return 1
	}
	cosAngle := dot(src.Direction, toListener) / (dirLen * toListenerLen)
	cosAngle = al.Clamp(cosAngle, -1, 1)
	angleDeg := float32(rad2deg(math.Acos(float64(cosAngle))))

	innerHalf := src.ConeInner / 2
	outerHalf := src.ConeOuter / 2

	switch {
	case angleDeg <= innerHalf:
		return 1
	case angleDeg >= outerHalf:
		return src.ConeOuterGain
	default:
		t := (angleDeg - innerHalf) / (outerHalf - innerHalf)
		return 1 + t*(src.ConeOuterGain-1)
	}
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func length(v [3]float32) float32 {
	return float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func scale(v [3]float32, s float32) [3]float32 {
	return [3]float32{v[0] * s, v[1] * s, v[2] * s}
}

// angle computes the signed horizontal angle theta between the
// listener's "at" vector and the source-relative position P projected
// onto the plane perpendicular to "up" (spec.md §4.4 step 7).
func angle(l Listener, p [3]float32) float64 {
	up := l.Up
	at := l.At

	pdotup := dot(p, up)
	v := sub(p, scale(up, pdotup))

	atLen := length(at)
	vLen := length(v)
	if atLen == 0 || vLen == 0 {
		return 0
	}

	cosTheta := float64(dot(at, v)) / (float64(atLen) * float64(vLen))
	cosTheta = al.Clamp(float32(cosTheta), -1, 1)
	theta := math.Acos(float64(cosTheta))

	r := cross(at, up)
	if dot(r, v) < 0 {
		theta = -theta
	}
	return theta
}

// constantPowerPan implements spec.md §4.4 step 9's four-quadrant
// constant-power law. theta is in radians, positive to the right.
func constantPowerPan(theta float64) (l, r float32) {
	deg := rad2deg(theta)
	switch {
	case deg >= -45 && deg <= 45:
		return cpQuadrant(theta)
	case deg > 45 && deg <= 135:
		return 0, 1
	case deg >= -135 && deg < -45:
		return 1, 0
	default:
		// Behind: fold by pi, signed.
		folded := theta
		if theta >= 0 {
			folded = theta - math.Pi
		} else {
			folded = theta + math.Pi
		}
		return cpQuadrant(folded)
	}
}

func cpQuadrant(theta float64) (l, r float32) {
	const s = 0.70710678118 // sqrt(2)/2
	c, sn := math.Cos(theta), math.Sin(theta)
	l = float32((c - sn) * s)
	r = float32((c + sn) * s)
	return
}
