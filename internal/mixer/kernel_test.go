package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonoToStereoAppliesPerChannelGain(t *testing.T) {
	acc := make([]float32, 6)
	scratch := []float32{1, 1, 1}
	monoToStereo(acc, scratch, 0.5, 0.25)
	assert.Equal(t, []float32{0.5, 0.25, 0.5, 0.25, 0.5, 0.25}, acc)
}

func TestMonoToMonoZeroGainIsNoOp(t *testing.T) {
	acc := []float32{1, 2, 3}
	monoToMono(acc, []float32{10, 10, 10}, 0)
	assert.Equal(t, []float32{1, 2, 3}, acc)
}

func TestStereoToMonoAverages(t *testing.T) {
	acc := make([]float32, 2)
	scratch := []float32{1, 3, 0, 2}
	stereoToMono(acc, scratch, 1)
	assert.Equal(t, []float32{2, 1}, acc)
}

func TestStereoToStereoUnityGainPassesThrough(t *testing.T) {
	acc := make([]float32, 4)
	scratch := []float32{1, 2, 3, 4}
	stereoToStereo(acc, scratch, 1, 1)
	assert.Equal(t, []float32{1, 2, 3, 4}, acc)
}

func TestMonoToSurroundScattersIntoTwoSpeakers(t *testing.T) {
	acc := make([]float32, 6) // one frame, 6 output channels
	scratch := []float32{2}
	monoToSurround(acc, scratch, 6, [2]int{1, 3}, [2]float32{0.5, 0.25})
	expected := make([]float32, 6)
	expected[1] = 1
	expected[3] = 0.5
	assert.Equal(t, expected, acc)
}

func TestMonoToSurroundSingleSpeakerDoesNotDoubleWrite(t *testing.T) {
	acc := make([]float32, 6)
	scratch := []float32{2}
	monoToSurround(acc, scratch, 6, [2]int{1, 1}, [2]float32{0.5, 0.5})
	assert.Equal(t, float32(1), acc[1])
}
