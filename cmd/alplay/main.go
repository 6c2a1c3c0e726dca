// alplay is a demo binary for the engine: it opens an output device,
// creates a context, generates a short sine-wave STATIC buffer and a
// synthetic multi-chunk STREAMING source, plays both, and exits on
// SIGINT/SIGTERM or once a fixed window (the tone duration plus two
// seconds) has elapsed.
package main

import (
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gosoundal/goal/internal/al"
	"github.com/gosoundal/goal/internal/device"
)

func main() {
	deviceName := flag.String("device", "", "output device name (only reported; the default device is always used)")
	channels := flag.Int("channels", 2, "output channel count (1, 2, 4, 6 or 8)")
	sampleRate := flag.Int("rate", 48000, "output sample rate in Hz")
	durationSec := flag.Float64("duration", 3, "STATIC tone duration in seconds")
	flag.Parse()

	log.SetFlags(0)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Println("🔊 alplay starting...")

	infos, err := device.Enumerate()
	if err != nil {
		log.Fatalf("enumerate devices: %v", err)
	}
	for _, d := range infos {
		marker := ""
		if d.IsDefault {
			marker = " (default)"
		}
		log.Printf("  device: %s%s", d.Name, marker)
	}

	format := al.Format{Channels: *channels, Encoding: al.Float32, SampleRate: *sampleRate}
	dev, err := device.Open(*deviceName, format)
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer dev.Close()
	log.Printf("✅ device open: %q, %d ch @ %d Hz", *deviceName, *channels, *sampleRate)

	ctx := device.NewContext(dev)
	device.MakeCurrent(ctx)

	if err := ctx.Start(960); err != nil {
		log.Fatalf("start context: %v", err)
	}
	log.Println("✅ mixer running")

	toneFormat := al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 24000}
	tone := sineWave(toneFormat.SampleRate, 440, *durationSec)

	names, err := dev.BufStore.Generate(2)
	if err != nil {
		log.Fatalf("generate buffers: %v", err)
	}
	if err := dev.BufStore.Load(names[0], toneFormat, tone); err != nil {
		log.Fatalf("load static buffer: %v", err)
	}

	srcNames, err := ctx.GenSources(2)
	if err != nil {
		log.Fatalf("generate sources: %v", err)
	}
	staticSrc, err := ctx.Source(srcNames[0])
	if err != nil {
		log.Fatalf("lookup static source: %v", err)
	}
	if err := staticSrc.SetBuffer(names[0]); err != nil {
		log.Fatalf("bind static buffer: %v", err)
	}
	p := staticSrc.Params()
	p.Position = [3]float32{2, 0, 0}
	staticSrc.SetParams(p)
	ctx.Play(staticSrc)
	log.Println("▶️  static source playing (panned right, 440Hz tone)")

	streamSrc, err := ctx.Source(srcNames[1])
	if err != nil {
		log.Fatalf("lookup streaming source: %v", err)
	}
	streamFormat := al.Format{Channels: 1, Encoding: al.Float32, SampleRate: 24000}
	chunk1 := sineWave(streamFormat.SampleRate, 330, 1)
	chunk2 := sineWave(streamFormat.SampleRate, 550, 1)
	if err := dev.BufStore.Load(names[1], streamFormat, chunk1); err != nil {
		log.Fatalf("load stream chunk: %v", err)
	}
	extra, err := dev.BufStore.Generate(1)
	if err != nil {
		log.Fatalf("generate extra buffer: %v", err)
	}
	if err := dev.BufStore.Load(extra[0], streamFormat, chunk2); err != nil {
		log.Fatalf("load stream chunk: %v", err)
	}
	if err := streamSrc.QueueBuffers([]al.Name{names[1], extra[0]}); err != nil {
		log.Fatalf("queue stream buffers: %v", err)
	}
	sp := streamSrc.Params()
	sp.Position = [3]float32{-2, 0, 0}
	streamSrc.SetParams(sp)
	ctx.Play(streamSrc)
	log.Println("▶️  streaming source playing (panned left, two chunks)")

	select {
	case <-sigChan:
		log.Println("interrupted, shutting down")
	case <-time.After(time.Duration(*durationSec+2) * time.Second):
		log.Println("playback window elapsed, shutting down")
	}
}

func sineWave(sampleRate int, freq, seconds float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.25 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
