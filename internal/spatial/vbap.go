package spatial

import "math"

// vbapResolution is the number of discrete angle buckets the table is
// precomputed over (spec.md §4.4 step 10: "a resolution, e.g. 36
// divisions of 10 degrees each").
const vbapResolution = 36

type speakerPair struct {
	speakerA, speakerB int // output channel indices
	// inv is the precomputed 2x2 inverse of [[cosA,cosB],[sinA,sinB]]
	// used to solve for (gainA,gainB) from a source direction vector.
	inv [2][2]float64
}

// vbapTable is the precomputed per-layout lookup described in
// spec.md §4.4 step 10: a bucket array mapping each of vbapResolution
// angle divisions to a speaker-pair index, plus per-pair inverse
// matrices.
type vbapTable struct {
	buckets [vbapResolution]int // index into pairs
	pairs   []speakerPair
}

func buildVBAPTable(doc layoutDoc) *vbapTable {
	var speakers []speakerEntry
	for _, sp := range doc.Speakers {
		if !sp.LFE {
			speakers = append(speakers, sp)
		}
	}
	// Sort by angle for a stable ring ordering.
	for i := 1; i < len(speakers); i++ {
		for j := i; j > 0 && speakers[j].AngleDeg < speakers[j-1].AngleDeg; j-- {
			speakers[j], speakers[j-1] = speakers[j-1], speakers[j]
		}
	}

	t := &vbapTable{}
	n := len(speakers)
	if n < 2 {
		return t
	}
	for i := 0; i < n; i++ {
		a := speakers[i]
		b := speakers[(i+1)%n]
		angA := deg2rad(float64(a.AngleDeg))
		angB := deg2rad(float64(b.AngleDeg))
		if i == n-1 {
			angB += 2 * math.Pi
		}
		m := [2][2]float64{
			{math.Cos(angA), math.Cos(angB)},
			{math.Sin(angA), math.Sin(angB)},
		}
		inv, ok := invert2x2(m)
		if !ok {
			inv = [2][2]float64{{1, 0}, {0, 1}}
		}
		t.pairs = append(t.pairs, speakerPair{
			speakerA: a.Channel,
			speakerB: b.Channel,
			inv:      inv,
		})
	}

	step := 2 * math.Pi / vbapResolution
	for bucket := 0; bucket < vbapResolution; bucket++ {
		theta := float64(bucket) * step
		t.buckets[bucket] = t.pairIndexFor(speakers, theta)
	}
	return t
}

// pairIndexFor finds which consecutive speaker pair theta (radians,
// [0,2pi)) falls within.
func (t *vbapTable) pairIndexFor(speakers []speakerEntry, theta float64) int {
	n := len(speakers)
	thetaDeg := rad2deg(theta)
	for i := 0; i < n; i++ {
		a := float64(speakers[i].AngleDeg)
		b := float64(speakers[(i+1)%n].AngleDeg)
		if i == n-1 {
			b += 360
		}
		// Angle of theta measured from speaker a, in [0, 360).
		td := math.Mod(thetaDeg-a, 360)
		if td < 0 {
			td += 360
		}
		if td < b-a {
			return i
		}
	}
	return 0
}

func invert2x2(m [2][2]float64) ([2][2]float64, bool) {
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	if math.Abs(det) < 1e-9 {
		return [2][2]float64{}, false
	}
	inv := [2][2]float64{
		{m[1][1] / det, -m[0][1] / det},
		{-m[1][0] / det, m[0][0] / det},
	}
	return inv, true
}

// pan computes (speakerA, speakerB, gainA, gainB) for a source at
// angle theta (radians, in the layout tables' convention: 0 = due
// front, positive to the right) given the overall gain g.
func (t *vbapTable) pan(theta float64, g float32) (int, int, float32, float32) {
	if len(t.pairs) == 0 {
		return 0, 1, g, g
	}
	theta = wrap2pi(theta)
	bucket := int(theta / (2 * math.Pi) * vbapResolution)
	if bucket < 0 {
		bucket = 0
	}
	if bucket >= vbapResolution {
		bucket = vbapResolution - 1
	}
	pair := t.pairs[t.buckets[bucket]]

	cosT, sinT := math.Cos(theta), math.Sin(theta)
	a := pair.inv[0][0]*cosT + pair.inv[0][1]*sinT
	b := pair.inv[1][0]*cosT + pair.inv[1][1]*sinT
	if a < 0 {
		a = 0
	}
	if b < 0 {
		b = 0
	}
	norm := math.Sqrt(a*a + b*b)
	if norm < 1e-9 {
		a, b = 1, 0
		norm = 1
	}
	a /= norm
	b /= norm
	return pair.speakerA, pair.speakerB, float32(a) * g, float32(b) * g
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

func wrap2pi(theta float64) float64 {
	twoPi := 2 * math.Pi
	theta = math.Mod(theta, twoPi)
	if theta < 0 {
		theta += twoPi
	}
	return theta
}

// LayoutFor returns the VBAP table for an output channel count, or
// nil if no table exists for it (mono/stereo/2.1 use the constant-
// power path instead, spec.md §4.4 steps 8-9).
func LayoutFor(channels int) *vbapTable {
	return surroundLayouts[channels]
}
