// Package dmgcore assembles the CPU, MMU, and PPU into a runnable DMG
// emulator and exposes the debugger/host-facing control surface.
package dmgcore

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/halcyon-systems/dmgcore/core/audio"
	"github.com/halcyon-systems/dmgcore/core/memory"
	"github.com/halcyon-systems/dmgcore/core/timing"
	"github.com/halcyon-systems/dmgcore/core/video"
)

// Config configures an Emulator at construction time. It is a plain struct
// rather than a flag set so the core stays embeddable by any host shell, not
// just cmd/dmgcore; the CLI is responsible for turning its flags into one of
// these.
type Config struct {
	// AudioPolicy selects what the audio sink does when its output queue is
	// full. Zero value is audio.DropOldest.
	AudioPolicy audio.BackpressurePolicy
	// Logger receives lifecycle/debug logging. Defaults to slog.Default().
	Logger *slog.Logger
	// BootROM is a 256-byte DMG boot ROM image. When non-empty it is mapped
	// at 0x0000-0x00FF and the CPU starts at PC=0x0000; when empty the CPU
	// starts directly at PC=0x0100, bypassing the boot ROM entirely.
	BootROM []byte
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) audioOption() audio.FrameSinkOption {
	if c.AudioPolicy == audio.Block {
		return audio.WithBlocking()
	}
	return audio.WithDropOldest()
}

// DebuggerState represents the current debugger mode.
type DebuggerState int

const (
	DebuggerRunning DebuggerState = iota
	DebuggerPaused
	DebuggerStep
	DebuggerStepFrame
)

// Emulator is the root struct and entry point for running the emulation.
type Emulator struct {
	bus *Bus

	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64
}

// postBootDIVSeed is the internal divider value the DMG boot ROM leaves
// behind when it hands off to cartridge code, so DIV reads 0xAB at 0x0100.
const postBootDIVSeed = 0xABCC

// New creates a new emulator instance with no cartridge loaded.
func New() *Emulator {
	e, _ := NewWithConfig("", Config{})
	return e
}

// NewWithFile creates a new emulator instance and loads the ROM at path.
func NewWithFile(path string) (*Emulator, error) {
	return NewWithConfig(path, Config{})
}

// NewWithConfig creates an emulator configured by cfg, optionally loading the
// ROM at path (no cartridge is inserted if path is empty).
func NewWithConfig(path string, cfg Config) (*Emulator, error) {
	logger := cfg.logger()

	cart := memory.NewCartridge()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		logger.Debug("loaded ROM data", "size", len(data))

		cart, err = memory.NewCartridgeWithData(data)
		if err != nil {
			return nil, err
		}
	}

	mmu := memory.NewWithCartridge(cart)

	coldBoot := len(cfg.BootROM) > 0
	if coldBoot {
		mmu.SetBootROM(cfg.BootROM)
	} else {
		mmu.SetTimerSeed(postBootDIVSeed)
	}

	return &Emulator{bus: NewBus(mmu, coldBoot, cfg.audioOption())}, nil
}

// RunUntilFrame advances the emulator until a full frame has been produced,
// or performs a single debugger step/step-frame if the debugger requested one.
func (e *Emulator) RunUntilFrame() {
	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	switch state {
	case DebuggerPaused:
		return
	case DebuggerStep:
		e.runDebuggerStep()
		return
	case DebuggerStepFrame:
		e.runDebuggerStepFrame()
		return
	default:
		e.runFrame()
	}
}

func (e *Emulator) runDebuggerStep() {
	e.debuggerMutex.Lock()
	if !e.stepRequested {
		e.debuggerMutex.Unlock()
		return
	}
	e.stepRequested = false
	e.debuggerMutex.Unlock()

	oldPC := e.bus.CPU.PC()
	e.bus.Step()
	e.instructionCount++
	slog.Debug("step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", e.bus.CPU.PC()))
	e.SetDebuggerState(DebuggerPaused)
}

func (e *Emulator) runDebuggerStepFrame() {
	e.debuggerMutex.Lock()
	requested := e.frameRequested
	if requested {
		e.frameRequested = false
	}
	e.debuggerMutex.Unlock()
	if !requested {
		return
	}

	e.advanceOneFrame()
	slog.Debug("frame step completed", "frame", e.frameCount, "instructions", e.instructionCount)
	e.SetDebuggerState(DebuggerPaused)
}

func (e *Emulator) runFrame() {
	e.advanceOneFrame()
	if e.frameCount%60 == 0 {
		slog.Debug("frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.bus.CPU.PC()))
	}
}

func (e *Emulator) advanceOneFrame() {
	total := 0
	for total < timing.CyclesPerFrame {
		total += e.bus.Step()
		e.instructionCount++
	}
	e.frameCount++
}

func (e *Emulator) GetCurrentFrame() *video.FrameBuffer {
	return e.bus.GPU.GetFrameBuffer()
}

func (e *Emulator) HandleKeyPress(key memory.JoypadKey) {
	e.bus.MMU.HandleKeyPress(key)
}

func (e *Emulator) HandleKeyRelease(key memory.JoypadKey) {
	e.bus.MMU.HandleKeyRelease(key)
}

func (e *Emulator) GetBus() *Bus { return e.bus }

func (e *Emulator) GetMMU() *memory.MMU { return e.bus.MMU }

// Joypad exposes the joypad directly for input.Manager to drive via
// action/event routing.
func (e *Emulator) Joypad() *memory.Joypad { return e.bus.MMU.Joypad() }

// SaveSignal returns the channel that emits a cartridge-RAM snapshot
// whenever battery-backed save RAM changes; a host shell (cmd/dmgcore) can
// consume this to debounce-and-persist save data without the core ever
// touching a filesystem itself.
func (e *Emulator) SaveSignal() <-chan []byte { return e.bus.MMU.SaveSignal() }

func (e *Emulator) HasBattery() bool { return e.bus.MMU.HasBattery() }

func (e *Emulator) LoadSaveRAM(data []byte) { e.bus.MMU.LoadSaveRAM(data) }

func (e *Emulator) Title() string { return e.bus.MMU.Title() }

// SetDebugLayersEnabled toggles the PPU's per-layer (background/window/
// sprites) debug capture.
func (e *Emulator) SetDebugLayersEnabled(enabled bool) { e.bus.GPU.SetLayersEnabled(enabled) }

// GetRenderLayers returns the background/window/sprite debug framebuffers
// captured during the most recent frame, when debug layers are enabled.
func (e *Emulator) GetRenderLayers() *video.RenderLayers { return e.bus.GPU.Layers() }

// AudioProvider exposes the APU's mute/solo debug controls to a host shell
// without leaking the concrete audio.APU type.
func (e *Emulator) AudioProvider() audio.Provider { return e.bus.MMU.APU }

// Debugger control methods.

func (e *Emulator) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("debugger state changed", "state", state)
}

func (e *Emulator) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *Emulator) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
	slog.Info("emulator paused")
}

func (e *Emulator) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
	slog.Info("emulator resumed")
}

func (e *Emulator) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
	slog.Info("step instruction requested")
}

func (e *Emulator) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
	slog.Info("step frame requested")
}

func (e *Emulator) GetInstructionCount() uint64 { return e.instructionCount }
func (e *Emulator) GetFrameCount() uint64       { return e.frameCount }
