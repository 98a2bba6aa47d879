package video

import (
	"testing"

	"github.com/halcyon-systems/dmgcore/core/addr"
	"github.com/stretchr/testify/assert"
)

type fakeGPUBus struct {
	memory      [0x10000]byte
	interrupts  []addr.Interrupt
	statMode    uint8
	statLYCHit  bool
}

func newFakeGPUBus() *fakeGPUBus {
	b := &fakeGPUBus{}
	b.memory[addr.LCDC] = 0x80 // LCD enabled
	return b
}

func (b *fakeGPUBus) Read(address uint16) byte        { return b.memory[address] }
func (b *fakeGPUBus) Write(address uint16, value byte) { b.memory[address] = value }
func (b *fakeGPUBus) RequestInterrupt(interrupt addr.Interrupt) {
	b.interrupts = append(b.interrupts, interrupt)
}
func (b *fakeGPUBus) WriteSTATStatus(mode uint8, lycMatch bool) {
	b.statMode = mode
	b.statLYCHit = lycMatch
	cur := b.memory[addr.STAT]
	cur = (cur &^ 0x03) | (mode & 0x03)
	if lycMatch {
		cur |= 0x04
	} else {
		cur &^= 0x04
	}
	b.memory[addr.STAT] = cur
}

// baselineDrawingDots is the Drawing-mode length with SCX%8==0, no window
// engage, and no sprites on the scanline: the fixed pipeline-fill delay plus
// one dot per of the 160 visible pixels, matching the 172-T-cycle floor.
const baselineDrawingDots = pipelineFillDots + FramebufferWidth

func TestGPUModeTimingPerLine(t *testing.T) {
	bus := newFakeGPUBus()
	gpu := NewGpu(bus)

	gpu.Tick(cyclesOAMScan - 4)
	assert.Equal(t, ModeOAMScan, gpu.mode)

	gpu.Tick(4)
	assert.Equal(t, ModeDrawing, gpu.mode)

	gpu.Tick(baselineDrawingDots - 1)
	assert.Equal(t, ModeDrawing, gpu.mode, "drawing isn't done until all 160 columns are emitted")

	gpu.Tick(1)
	assert.Equal(t, ModeHBlank, gpu.mode)

	gpu.Tick(cyclesLine - cyclesOAMScan - baselineDrawingDots)
	assert.Equal(t, ModeOAMScan, gpu.mode, "next line begins in OAM scan")
	assert.Equal(t, 1, gpu.line)
}

// TestGPUDrawingLengthVariesWithSCX covers SPEC_FULL.md's SCX=5 scanline
// delay scenario: each nonzero SCX%8 pixel discarded at the start of the
// line adds one dot to Drawing before HBlank begins.
func TestGPUDrawingLengthVariesWithSCX(t *testing.T) {
	bus := newFakeGPUBus()
	bus.memory[addr.SCX] = 5
	gpu := NewGpu(bus)

	gpu.Tick(cyclesOAMScan)
	assert.Equal(t, ModeDrawing, gpu.mode)

	gpu.Tick(baselineDrawingDots + 5 - 1)
	assert.Equal(t, ModeDrawing, gpu.mode)

	gpu.Tick(1)
	assert.Equal(t, ModeHBlank, gpu.mode, "SCX%%8=5 delays HBlank entry by 5 dots")
}

func TestGPURequestsVBlankAtLine144(t *testing.T) {
	bus := newFakeGPUBus()
	gpu := NewGpu(bus)

	for line := 0; line < visibleLines; line++ {
		gpu.Tick(cyclesLine)
	}

	assert.Equal(t, ModeVBlank, gpu.mode)
	assert.Contains(t, bus.interrupts, addr.VBlankInterrupt)
}

func TestGPUFrameIsOneHundredFiftyFourLines(t *testing.T) {
	bus := newFakeGPUBus()
	gpu := NewGpu(bus)

	gpu.Tick(cyclesLine * linesPerFrame)
	assert.Equal(t, 0, gpu.line, "frame wraps back to line 0")
}

func TestGPUStatInterruptFiresOnModeEdge(t *testing.T) {
	bus := newFakeGPUBus()
	bus.memory[addr.STAT] = 0x08 // enable HBlank STAT source
	gpu := NewGpu(bus)

	gpu.Tick(cyclesOAMScan + baselineDrawingDots) // enter HBlank
	assert.Contains(t, bus.interrupts, addr.LCDSTATInterrupt)

	before := len(bus.interrupts)
	gpu.Tick(1) // still in HBlank: no repeat edge
	assert.Len(t, bus.interrupts, before)
}

func TestGPULYCMatchInterrupt(t *testing.T) {
	bus := newFakeGPUBus()
	bus.memory[addr.STAT] = 0x40 // enable LYC=LY STAT source
	bus.memory[addr.LYC] = 2
	gpu := NewGpu(bus)

	gpu.Tick(cyclesLine * 2) // advance to line 2
	assert.Contains(t, bus.interrupts, addr.LCDSTATInterrupt)
}

func TestGPUDisabledLCDFreezesLine(t *testing.T) {
	bus := newFakeGPUBus()
	bus.memory[addr.LCDC] = 0x00 // LCD disabled
	gpu := NewGpu(bus)

	gpu.Tick(cyclesLine * 10)
	assert.Equal(t, 0, gpu.line)
}
