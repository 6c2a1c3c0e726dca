package al

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, float32(0), Clamp(-1, 0, 1))
	assert.Equal(t, float32(1), Clamp(2, 0, 1))
	assert.Equal(t, float32(0.5), Clamp(0.5, 0, 1))
}

func TestFormatFrameSize(t *testing.T) {
	f := Format{Channels: 2, Encoding: Float32, SampleRate: 48000}
	assert.Equal(t, 8, f.FrameSize())

	f2 := Format{Channels: 1, Encoding: Int16, SampleRate: 16000}
	assert.Equal(t, 2, f2.FrameSize())
}

func TestSourceStateString(t *testing.T) {
	assert.Equal(t, "PLAYING", Playing.String())
	assert.Equal(t, "STOPPED", Stopped.String())
}

func TestErr(t *testing.T) {
	err := Err(InvalidName)
	var alErr *Error
	assert.ErrorAs(t, err, &alErr)
	assert.Equal(t, InvalidName, alErr.Code)
}
