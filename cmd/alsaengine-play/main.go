// Command alsaengine-play drives a single playback engine against a
// real ALSA device, reading raw interleaved frames from stdin and
// submitting them to the engine's buffer pool. Flag handling follows
// cmd/direwolf's "pflag, then validate, then pflag.Usage on error"
// shape.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sidechain-audio/alsaengine/alsahw"
	"github.com/sidechain-audio/alsaengine/bufferpool"
	"github.com/sidechain-audio/alsaengine/clock"
	"github.com/sidechain-audio/alsaengine/config"
	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/dll"
	"github.com/sidechain-audio/alsaengine/engine"
	"github.com/sidechain-audio/alsaengine/session"
	"github.com/sidechain-audio/alsaengine/telemetry"
	"github.com/sidechain-audio/alsaengine/timer"
	"github.com/sidechain-audio/alsaengine/udevresolve"
)

func main() {
	var configFile = pflag.StringP("config-file", "c", "", "YAML configuration file.")
	var deviceName = pflag.StringP("device", "D", "", "Device name or udev product-name substring. Overrides the config file.")
	var rateHz = pflag.IntP("rate", "r", 0, "Sample rate in Hz. 0 keeps the config file's value.")
	var channels = pflag.IntP("channels", "n", 0, "Channel count. 0 keeps the config file's value.")
	var periodSize = pflag.IntP("period-size", "P", 0, "Period size in frames. 0 keeps the config file's value.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: alsaengine-play [options] < raw-audio\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *deviceName != "" {
		cfg.Device = *deviceName
	}
	if *rateHz != 0 {
		cfg.RateHz = *rateHz
	}
	if *channels != 0 {
		cfg.Channels = *channels
	}
	if *periodSize != 0 {
		cfg.PeriodSize = *periodSize
	}
	cfg.Direction = "playback"

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "alsaengine-play:", err)
		os.Exit(1)
	}
}

func run(cfg config.File) error {
	node, err := udevresolve.Resolve(cfg.Device)
	if err != nil {
		return fmt.Errorf("resolve device: %w", err)
	}

	enc, err := config.ParseEncoding(cfg.Format)
	if err != nil {
		return err
	}

	dev := alsahw.New()
	sess := session.New(dev, session.Config{
		DeviceName:        node,
		Direction:         device.Playback,
		PreferredRateHz:   cfg.RateHz,
		PreferredChannels: cfg.Channels,
		PreferredFormat:   enc,
		PeriodSizeFrames:  cfg.PeriodSize,
		BufferSizeFrames:  cfg.BufferSize,
		EnableChannelMapEnumeration: cfg.EnableChannelMapEnumeration,
	})

	if err := sess.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	if _, err := sess.SetFormat(device.Params{
		Encoding: enc, RateHz: cfg.RateHz, Channels: cfg.Channels,
	}, device.SetFormatFlags{Nearest: true}); err != nil {
		return fmt.Errorf("negotiate format: %w", err)
	}

	pool := bufferpool.New()
	descs := make([]*bufferpool.Descriptor, 8)
	for i := range descs {
		descs[i] = &bufferpool.Descriptor{ID: i, Payload: make([]byte, sess.PeriodFrames()*sess.FrameSize())}
		pool.Add(descs[i])
	}

	tm, err := timer.NewTimerFD()
	if err != nil {
		return fmt.Errorf("create timer: %w", err)
	}

	eng := engine.New(sess, pool, dll.New(), &clock.Record{}, tm, engine.Config{
		ThresholdFrames: cfg.ThresholdFrames,
		Safety:          cfg.Safety,
		EnableChannelMapEnumeration: cfg.EnableChannelMapEnumeration,
	})
	eng.Telemetry = telemetry.NewLogger()
	eng.Configure()

	reader := bufio.NewReader(os.Stdin)
	readInto := func(d *bufferpool.Descriptor) bool {
		n, rerr := io.ReadFull(reader, d.Payload)
		if n == 0 {
			return false
		}
		d.Offset = 0
		d.Size = n / sess.FrameSize()
		return rerr == nil || rerr == io.ErrUnexpectedEOF
	}
	// Pool.Reuse fires from ReturnToHost, called inline on the data
	// loop's own goroutine while a tick is in flight (§5) — submitting
	// straight back through the pool, not through Engine.SubmitBuffer,
	// which would try to invoke back onto the loop it's already on.
	pool.Reuse = func(d *bufferpool.Descriptor) {
		if readInto(d) {
			pool.Submit(d, true)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(ctx) }()

	// Start first: it resets the pool for playback (every descriptor
	// starts host-owned), so priming ready before this point would
	// just be discarded by that reset.
	if err := eng.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	for _, d := range descs {
		if readInto(d) {
			_ = eng.SubmitBuffer(d)
		}
	}

	runErr := <-runDone
	if closeErr := eng.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if ctx.Err() != nil {
		return nil
	}
	return runErr
}
