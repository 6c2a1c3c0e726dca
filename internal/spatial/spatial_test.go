package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gosoundal/goal/internal/al"
)

func defaultListener() Listener {
	return Listener{Gain: 1, At: [3]float32{0, 0, -1}, Up: [3]float32{0, 1, 0}}
}

func TestComputeMonoSourceToStereoIsOmnidirectionalGainOnly(t *testing.T) {
	src := SourceInput{
		Gain: 1, MinGain: 0, MaxGain: 1,
		RefDistance: 1, MaxDistance: 100, Rolloff: 1,
		ConeInner: 360, ConeOuter: 360,
		Channels: 1,
	}
	out := Compute(defaultListener(), src, al.DistanceNone, 2)
	assert.Equal(t, float32(1), out.Gains[0])
	assert.Equal(t, float32(1), out.Gains[1])
}

func TestComputePansRightWhenSourceIsToTheRight(t *testing.T) {
	src := SourceInput{
		Position: [3]float32{5, 0, 0},
		Gain:     1, MinGain: 0, MaxGain: 1,
		RefDistance: 1, MaxDistance: 100, Rolloff: 1,
		ConeInner: 360, ConeOuter: 360,
		Channels: 1,
	}
	out := Compute(defaultListener(), src, al.InverseDistanceClamped, 2)
	assert.Greater(t, out.Gains[1], out.Gains[0], "a source to the right must favor the right channel")
}

func TestInverseDistanceClampedGain(t *testing.T) {
	g := distanceGain(10, 1, 5, 1, al.InverseDistanceClamped)
	expected := inverseGain(5, 1, 1) // clamped to maxDistance
	assert.InDelta(t, expected, g, 1e-9)
}

func TestLinearDistanceGainReachesZeroAtMax(t *testing.T) {
	g := linearGain(10, 1, 10, 1)
	assert.InDelta(t, 0, g, 1e-6)
}

func TestConeAttenuationInsideInnerConeIsFullGain(t *testing.T) {
	src := SourceInput{
		Direction:     [3]float32{0, 0, 1},
		ConeInner:     90,
		ConeOuter:     180,
		ConeOuterGain: 0.2,
	}
	// Listener sits directly in front of the cone axis.
	relPos := [3]float32{0, 0, -1}
	g := coneAttenuation(relPos, src)
	assert.Equal(t, float32(1), g)
}

func TestConeAttenuationOutsideOuterConeUsesOuterGain(t *testing.T) {
	src := SourceInput{
		Direction:     [3]float32{0, 0, 1},
		ConeInner:     10,
		ConeOuter:     20,
		ConeOuterGain: 0.3,
	}
	relPos := [3]float32{0, 0, 1} // listener is behind the source, opposite the cone axis
	g := coneAttenuation(relPos, src)
	assert.Equal(t, float32(0.3), g)
}

func TestConstantPowerPanSumOfSquaresIsOne(t *testing.T) {
	for _, deg := range []float64{-180, -90, -45, 0, 45, 90, 135, 180} {
		l, r := constantPowerPan(deg * math.Pi / 180)
		sumSq := float64(l)*float64(l) + float64(r)*float64(r)
		assert.InDelta(t, 1, sumSq, 1e-6, "angle %v degrees", deg)
	}
}

func TestVBAPLayoutForKnownChannelCounts(t *testing.T) {
	assert.NotNil(t, LayoutFor(6))
	assert.Nil(t, LayoutFor(3))
}

func TestVBAPPanGainsAreNonNegative(t *testing.T) {
	table := LayoutFor(6)
	for _, deg := range []float64{0, 30, 90, 150, 210, 270, 330} {
		_, _, gA, gB := table.pan(deg*math.Pi/180, 1)
		assert.GreaterOrEqual(t, gA, float32(0))
		assert.GreaterOrEqual(t, gB, float32(0))
	}
}
