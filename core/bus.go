package dmgcore

import (
	"github.com/halcyon-systems/dmgcore/core/addr"
	"github.com/halcyon-systems/dmgcore/core/audio"
	"github.com/halcyon-systems/dmgcore/core/cpu"
	"github.com/halcyon-systems/dmgcore/core/memory"
	"github.com/halcyon-systems/dmgcore/core/video"
)

// Bus wires the CPU, MMU, PPU, and audio sink together and provides the
// single memory-access surface each component is given: CPU sees it as
// cpu.Bus, the PPU as video.GPUBus.
type Bus struct {
	CPU   *cpu.CPU
	MMU   *memory.MMU
	GPU   *video.GPU
	Audio *audio.FrameSink
}

// NewBus assembles a Bus around an already-constructed MMU (so the caller
// can choose NewWithCartridge vs. the cartridge-less default). coldBoot
// selects the CPU's reset state: true starts execution at 0x0000 through a
// mapped boot ROM, false starts post-boot at 0x0100.
func NewBus(mmu *memory.MMU, coldBoot bool, audioOpts ...audio.FrameSinkOption) *Bus {
	b := &Bus{MMU: mmu}
	if coldBoot {
		b.CPU = cpu.NewColdBoot()
	} else {
		b.CPU = cpu.New()
	}
	b.GPU = video.NewGpu(b)
	b.Audio = audio.NewFrameSink(mmu.APU, audioOpts...)
	return b
}

func (b *Bus) Read(address uint16) byte        { return b.MMU.Read(address) }
func (b *Bus) Write(address uint16, value byte) { b.MMU.Write(address, value) }

func (b *Bus) RequestInterrupt(interrupt addr.Interrupt) {
	b.MMU.RequestInterrupt(interrupt)
}

func (b *Bus) WriteSTATStatus(mode uint8, lycMatch bool) {
	b.MMU.WriteSTATStatus(mode, lycMatch)
}

func (b *Bus) ReadBit(index uint8, address uint16) bool {
	return b.MMU.ReadBit(index, address)
}

// Step executes exactly one CPU micro-op slot (4 T-cycles) and ticks every
// other component by the same span, keeping them mutually consistent at
// 4-cycle granularity.
func (b *Bus) Step() int {
	cycles := b.CPU.Step(b)
	b.MMU.Tick(cycles)
	b.GPU.Tick(cycles)
	b.Audio.Tick(cycles)
	return cycles
}
