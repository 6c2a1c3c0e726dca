// Package device implements Device and Context (spec.md §3, §4.6): the
// malgo-backed output/capture device wrapper, the per-context listener
// and source-block allocator, and the process-wide "current context"
// pointer with a thread-local override.
//
// The device lifecycle (InitContext -> DefaultDeviceConfig ->
// InitDevice -> Start, torn down via Uninit/Free) follows malgo's usual
// open/bind/start/teardown sequence; the device callback body calls
// into internal/mixer rather than a ring-buffer pop loop.
package device

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/gosoundal/goal/internal/al"
	"github.com/gosoundal/goal/internal/buffer"
	"github.com/gosoundal/goal/internal/mixer"
	"github.com/gosoundal/goal/internal/queue"
	"github.com/gosoundal/goal/internal/source"
	"github.com/gosoundal/goal/internal/spatial"
)

// CaptureRing is a lock-free single-producer/single-consumer ring
// buffer for captured audio frames, holding raw float32 samples (the
// AL capture API hands back raw samples, not pre-chunked slices).
type CaptureRing struct {
	samples []float32
	head    atomic.Uint64
	tail    atomic.Uint64
	size    uint64
}

// NewCaptureRing allocates a ring sized to hold exactly size samples.
// When the ring is full, push keeps the samples already held and drops
// the incoming samples that do not fit.
func NewCaptureRing(size int) *CaptureRing {
	return &CaptureRing{samples: make([]float32, size), size: uint64(size)}
}

func (r *CaptureRing) push(samples []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()
	available := r.size - (head - tail)
	n := uint64(len(samples))
	if n > available {
		n = available
	}
	for i := uint64(0); i < n; i++ {
		r.samples[(head+i)%r.size] = samples[i]
	}
	r.head.Add(n)
	return int(n)
}

// Pop copies len(out) samples into out and returns len(out); if fewer
// than len(out) samples are available it copies nothing and returns 0
// (no partial reads).
func (r *CaptureRing) Pop(out []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()
	available := head - tail
	n := uint64(len(out))
	if n > available {
		return 0
	}
	for i := uint64(0); i < n; i++ {
		out[i] = r.samples[(tail+i)%r.size]
	}
	r.tail.Add(n)
	return int(n)
}

// Available reports how many samples are ready to Pop.
func (r *CaptureRing) Available() int {
	return int(r.head.Load() - r.tail.Load())
}

// Device is one opened host audio endpoint (spec.md §3 "Device"):
// an enumerated name, a BufferStore shared by every Context opened on
// it, and the malgo output stream the Mixer writes into.
type Device struct {
	Name       string
	BufStore   *buffer.Store
	NodePool   *queue.Pool
	connected  atomic.Bool

	malCtx    *malgo.AllocatedContext
	outDevice *malgo.Device
	format    al.Format

	capRing   *CaptureRing
	capDevice *malgo.Device

	mu       sync.Mutex
	errSlot  al.Code
}

// DeviceInfo is one entry of Enumerate's result (spec.md §3 "device
// enumeration pass-through", a supplemented feature: see SPEC_FULL.md).
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// Enumerate lists playback-capable host devices, grounded on malgo's
// Context.Devices call.
func Enumerate() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}
	defer func() {
		ctx.Uninit()
		ctx.Free()
	}()
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, d := range infos {
		out = append(out, DeviceInfo{Name: d.Name(), IsDefault: d.IsDefault != 0})
	}
	return out, nil
}

// Open initialises the host audio context for a device, per spec.md
// §4.6 alcOpenDevice. name is only recorded as Device.Name: BindOutput
// always opens the host's default playback device. format describes
// the mix the Mixer will produce and is fixed for the device's
// lifetime; there is no path that reconfigures the device or rebuilds
// source streams for a later format change.
func Open(name string, format al.Format) (*Device, error) {
	malCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, al.Err(al.InvalidDevice)
	}
	d := &Device{
		Name:     name,
		BufStore: buffer.New(),
		NodePool: &queue.Pool{},
		malCtx:   malCtx,
		format:   format,
	}
	d.connected.Store(true)
	return d, nil
}

// BindOutput starts the playback stream, driving cb (the Context's
// mix-block callback) on malgo's audio thread every period.
func (d *Device) BindOutput(cb func(out []float32, frames int)) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(d.format.Channels)
	cfg.SampleRate = uint32(d.format.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	onSendFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		frames := int(framecount)
		floats := make([]float32, frames*d.format.Channels)
		cb(floats, frames)
		writeFloatsLE(pOutputSample, floats)
	}

	dev, err := malgo.InitDevice(d.malCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: onSendFrames,
		Stop: func() { d.connected.Store(false) },
	})
	if err != nil {
		return fmt.Errorf("device: bind output: %w", err)
	}
	if err := dev.Start(); err != nil {
		return fmt.Errorf("device: start: %w", err)
	}
	d.outDevice = dev
	return nil
}

// BindCapture starts a capture stream into a ring buffer sized for
// ~2 seconds of audio at format's sample rate.
func (d *Device) BindCapture(format al.Format) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.PeriodSizeInMilliseconds = 32

	d.capRing = NewCaptureRing(format.SampleRate * format.Channels * 2)

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		floats := bytesToFloatsLE(pInputSamples)
		d.capRing.push(floats)
	}

	dev, err := malgo.InitDevice(d.malCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return fmt.Errorf("device: bind capture: %w", err)
	}
	if err := dev.Start(); err != nil {
		return fmt.Errorf("device: start capture: %w", err)
	}
	d.capDevice = dev
	return nil
}

// CaptureSamples pulls exactly len(out) captured samples, or none
// (returning 0) if fewer are available (spec.md's alcCaptureSamples
// analogue).
func (d *Device) CaptureSamples(out []float32) int {
	if d.capRing == nil {
		return 0
	}
	return d.capRing.Pop(out)
}

// CaptureAvailable reports captured samples ready to read.
func (d *Device) CaptureAvailable() int {
	if d.capRing == nil {
		return 0
	}
	return d.capRing.Available()
}

// Connected reports whether the device is still attached (spec.md
// §4.6's disconnect extension).
func (d *Device) Connected() bool { return d.connected.Load() }

// Close tears the device down (ctx.Uninit(); ctx.Free()).
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outDevice != nil {
		d.outDevice.Uninit()
	}
	if d.capDevice != nil {
		d.capDevice.Uninit()
	}
	if d.malCtx != nil {
		d.malCtx.Uninit()
		d.malCtx.Free()
	}
	d.connected.Store(false)
	return nil
}

func writeFloatsLE(dst []byte, floats []float32) {
	n := len(dst) / 4
	if n > len(floats) {
		n = len(floats)
	}
	for i := 0; i < n; i++ {
		bits := math.Float32bits(floats[i])
		dst[i*4+0] = byte(bits)
		dst[i*4+1] = byte(bits >> 8)
		dst[i*4+2] = byte(bits >> 16)
		dst[i*4+3] = byte(bits >> 24)
	}
}

func bytesToFloatsLE(src []byte) []float32 {
	n := len(src) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(src[i*4+0]) | uint32(src[i*4+1])<<8 | uint32(src[i*4+2])<<16 | uint32(src[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// --- Context ---

// Context is one alcCreateContext result (spec.md §3): a listener, a
// source-block allocator over the Device's shared buffer store, and a
// Mixer instance driven by the Device's output callback.
type Context struct {
	Dev *Device

	mu       sync.Mutex
	listener spatial.Listener
	model    al.DistanceModel
	perSourceDistanceModel bool

	sourceBlocks [][]*source.Source
	freeNames    []al.Name

	recalc atomic.Bool
	mixer  *mixer.Mixer

	processing atomic.Bool
	errSlot    al.Code
}

const sourceBlockSize = 64

// currentContext is the process-wide default (spec.md §4.6); MakeCurrent
// sets it, thread-local override is out of scope for a pure-Go port
// (spec.md Non-goals: no OS-thread-local storage) and is approximated
// by always consulting currentContext.
var currentContext atomic.Pointer[Context]

// NewContext creates a Context bound to dev, with a default listener
// and distance model (spec.md §3 defaults).
func NewContext(dev *Device) *Context {
	c := &Context{
		Dev: dev,
		listener: spatial.Listener{
			Gain: 1,
			At:   [3]float32{0, 0, -1},
			Up:   [3]float32{0, 1, 0},
		},
		model: al.InverseDistanceClamped,
		mixer: mixer.New(dev.BufStore),
	}
	return c
}

// MakeCurrent installs c as the process-wide current context (nil to
// detach), per spec.md §4.6 alcMakeContextCurrent.
func MakeCurrent(c *Context) bool {
	currentContext.Store(c)
	return true
}

// CurrentContext returns the process-wide current context, or nil.
func CurrentContext() *Context { return currentContext.Load() }

// Start begins driving c.mixer from c.Dev's output callback.
func (c *Context) Start(frameCount int) error {
	return c.Dev.BindOutput(func(out []float32, frames int) {
		c.processing.Store(true)
		in := mixer.Input{
			Listener:       c.Listener(),
			Model:          c.Model(),
			OutputChannels: c.Dev.format.Channels,
			FrameCount:     frames,
			ContextRecalc:  &c.recalc,
			Disconnected:   !c.Dev.Connected(),
		}
		c.mixer.MixBlock(in, out)
	})
}

// Listener returns a copy of the listener state under lock.
func (c *Context) Listener() spatial.Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

// SetListener replaces the listener state and requests a recalc of
// every playing source's panning (spec.md §4.4: listener moves force
// a full recompute next mix pass).
func (c *Context) SetListener(l spatial.Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
	c.recalc.Store(true)
}

// Model returns the context-wide default distance model.
func (c *Context) Model() al.DistanceModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetModel sets the context-wide default distance model and forces a
// recalc (spec.md §4.4).
func (c *Context) SetModel(m al.DistanceModel) {
	c.mu.Lock()
	c.model = m
	c.mu.Unlock()
	c.recalc.Store(true)
}

// GenSources allocates n new sources from the block allocator, growing
// by sourceBlockSize-sized blocks on demand (spec.md §3, mirroring
// buffer.Store's block-growth discipline).
func (c *Context) GenSources(n int) ([]al.Name, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]al.Name, 0, n)
	for i := 0; i < n; i++ {
		if len(c.freeNames) > 0 {
			name := c.freeNames[len(c.freeNames)-1]
			c.freeNames = c.freeNames[:len(c.freeNames)-1]
			c.sourceAt(name).Reset()
			out = append(out, name)
			continue
		}
		if len(c.sourceBlocks) == 0 || len(c.sourceBlocks[len(c.sourceBlocks)-1]) == sourceBlockSize {
			c.sourceBlocks = append(c.sourceBlocks, make([]*source.Source, 0, sourceBlockSize))
		}
		last := len(c.sourceBlocks) - 1
		newSrc := source.New(c.Dev.NodePool, c.Dev.BufStore)
		c.sourceBlocks[last] = append(c.sourceBlocks[last], newSrc)

		total := 0
		for _, b := range c.sourceBlocks {
			total += len(b)
		}
		out = append(out, al.Name(total))
	}
	return out, nil
}

// sourceAt resolves a Name to its Source, or nil if not allocated.
func (c *Context) sourceAt(name al.Name) *source.Source {
	idx := int(name) - 1
	if idx < 0 {
		return nil
	}
	for _, b := range c.sourceBlocks {
		if idx < len(b) {
			return b[idx]
		}
		idx -= len(b)
	}
	return nil
}

// Source resolves name to its *source.Source, or nil/INVALID_NAME.
func (c *Context) Source(name al.Name) (*source.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sourceAt(name)
	if s == nil {
		return nil, al.Err(al.InvalidName)
	}
	return s, nil
}

// DeleteSources frees names back to the allocator. Fails
// INVALID_OPERATION if any named source is currently mixer-accessible
// (spec.md §4.3: a playing source cannot be deleted).
func (c *Context) DeleteSources(names []al.Name) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		s := c.sourceAt(n)
		if s == nil {
			return al.Err(al.InvalidName)
		}
		if s.MixerAccessible.Load() {
			return al.Err(al.InvalidOperation)
		}
	}
	for _, n := range names {
		if s := c.sourceAt(n); s != nil && s.Buffer() != 0 {
			c.Dev.BufStore.Release(s.Buffer())
		}
		c.freeNames = append(c.freeNames, n)
	}
	return nil
}

// Play transitions src to PLAYING and submits it to the mixer's inbox
// (spec.md §4.5 step 2).
func (c *Context) Play(s *source.Source) {
	s.Play()
	c.mixer.Inbox.Submit(s)
}

// SetPerSourceDistanceModel records the context's "use per-source
// distance model" flag (supplemented, see SPEC_FULL.md). The mixer
// does not read this flag: a source's DistanceModelOverride is applied
// whenever it is set, whatever the flag's value.
func (c *Context) SetPerSourceDistanceModel(v bool) {
	c.mu.Lock()
	c.perSourceDistanceModel = v
	c.mu.Unlock()
}
