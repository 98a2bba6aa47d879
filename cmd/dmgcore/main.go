package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli"

	dmgcore "github.com/halcyon-systems/dmgcore/core"
	"github.com/halcyon-systems/dmgcore/core/audio"
	"github.com/halcyon-systems/dmgcore/core/render"
	"github.com/halcyon-systems/dmgcore/core/timing"
)

// saveDebounce is how long the save-persistence writer waits after the most
// recent cartridge-RAM change before flushing to disk; repeated changes
// within the window extend it rather than triggering multiple writes.
const saveDebounce = 3 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "dmgcore"
	app.Usage = "a DMG (Game Boy) emulator core"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "rom", Usage: "path to a Game Boy ROM image"},
		cli.StringFlag{Name: "boot-rom", Usage: "path to a 256-byte DMG boot ROM image"},
		cli.BoolFlag{Name: "headless", Usage: "run without the terminal UI, for a fixed number of frames"},
		cli.IntFlag{Name: "frames", Usage: "frame limit for --headless runs", Value: 60},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, or error", Value: "info"},
		cli.BoolFlag{Name: "audio-drop-oldest", Usage: "drop the oldest queued audio buffer under backpressure (default)"},
		cli.BoolFlag{Name: "audio-block", Usage: "block emulation under audio backpressure instead of dropping"},
		cli.BoolFlag{Name: "simple-timing", Usage: "use a plain time.Ticker for frame pacing instead of the adaptive busy-wait limiter"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "dmgcore:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	configureLogging(c.String("log-level"))

	romPath := c.String("rom")
	if romPath == "" {
		return cli.NewExitError("--rom is required", 1)
	}

	var bootROM []byte
	if bootPath := c.String("boot-rom"); bootPath != "" {
		data, err := os.ReadFile(bootPath)
		if err != nil {
			return fmt.Errorf("reading boot ROM: %w", err)
		}
		if len(data) != 256 {
			return cli.NewExitError(fmt.Sprintf("boot ROM must be exactly 256 bytes, got %d", len(data)), 1)
		}
		bootROM = data
	}

	audioPolicy := audio.DropOldest
	if c.Bool("audio-block") {
		audioPolicy = audio.Block
	}

	emu, err := dmgcore.NewWithConfig(romPath, dmgcore.Config{AudioPolicy: audioPolicy, BootROM: bootROM})
	if err != nil {
		return fmt.Errorf("loading ROM: %w", err)
	}
	slog.Info("cartridge loaded", "title", emu.Title())

	savePath := strings.TrimSuffix(romPath, filepath.Ext(romPath)) + ".sav"
	if emu.HasBattery() {
		if data, err := os.ReadFile(savePath); err == nil {
			emu.LoadSaveRAM(data)
			slog.Info("loaded save RAM", "path", savePath)
		}
		go runSavePersistence(emu, savePath)
	}

	if c.Bool("headless") {
		return runHeadless(emu, c.Int("frames"))
	}
	return runInteractive(emu, c.Bool("simple-timing"))
}

func configureLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func runHeadless(emu *dmgcore.Emulator, frames int) error {
	limiter := timing.NewNoOpLimiter()
	for i := 0; i < frames; i++ {
		limiter.WaitForNextFrame()
		emu.RunUntilFrame()
	}
	slog.Info("headless run complete", "frames", emu.GetFrameCount(), "instructions", emu.GetInstructionCount())
	return nil
}

func runInteractive(emu *dmgcore.Emulator, simpleTiming bool) error {
	renderer, err := render.NewTerminalRenderer(emu)
	if err != nil {
		return err
	}
	if simpleTiming {
		renderer.SetLimiter(timing.NewTickerLimiter())
	}
	return renderer.Run()
}

// runSavePersistence drains the emulator's save-RAM dirty signal, debouncing
// bursts of writes into a single flush to savePath once the RAM has been
// quiet for saveDebounce.
func runSavePersistence(emu *dmgcore.Emulator, savePath string) {
	signal := emu.SaveSignal()
	var pending []byte
	var timer *time.Timer

	for {
		select {
		case snapshot, ok := <-signal:
			if !ok {
				return
			}
			pending = snapshot
			if timer == nil {
				timer = time.NewTimer(saveDebounce)
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(saveDebounce)
			}
		case <-timerC(timer):
			if pending == nil {
				continue
			}
			if err := os.WriteFile(savePath, pending, 0o644); err != nil {
				slog.Warn("failed to persist save RAM", "path", savePath, "err", err)
			} else {
				slog.Debug("persisted save RAM", "path", savePath, "bytes", len(pending))
			}
			pending = nil
			timer = nil
		}
	}
}

// timerC returns t.C, or a nil channel (which blocks forever in a select)
// when no debounce timer is currently running.
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
