package memory

import (
	"testing"

	"github.com/halcyon-systems/dmgcore/core/addr"
	"github.com/stretchr/testify/assert"
)

func TestDMABlocksBusExceptHRAMAndOAM(t *testing.T) {
	mmu := New()
	mmu.Write(0xC000, 0xAB) // source data for the transfer, in WRAM

	mmu.Write(addr.DMA, 0xC0) // trigger: source = 0xC000

	assert.Equal(t, byte(0x00), mmu.Read(0xC000), "WRAM reads are blacked out mid-DMA")
	mmu.memory[0xFF80] = 0x11
	assert.Equal(t, byte(0x11), mmu.Read(0xFF80), "HRAM stays visible mid-DMA")
	assert.Equal(t, byte(0xC0), mmu.Read(addr.DMA), "the DMA register itself stays visible")

	mmu.Write(0xFF81, 0x22) // HRAM writes still land mid-DMA
	assert.Equal(t, byte(0x22), mmu.Read(0xFF81))

	for cycles := 0; cycles < 640; cycles += 4 {
		mmu.Tick(4)
	}

	assert.Equal(t, byte(0xAB), mmu.Read(0xC000), "DMA finished, WRAM visible again")
	assert.Equal(t, byte(0xAB), mmu.readRaw(0xFE00), "OAM byte 0 copied from source")
}

func TestSTATRegisterWriteMask(t *testing.T) {
	mmu := New()

	mmu.WriteSTATStatus(2, true) // PPU sets mode=2, LYC match
	assert.Equal(t, byte(0x80|0x04|0x02), mmu.Read(addr.STAT), "bit 7 always reads 1")

	mmu.Write(addr.STAT, 0xFF) // CPU write: only bits 3-6 should take
	assert.Equal(t, byte(0x80|0x78|0x04|0x02), mmu.Read(addr.STAT))

	mmu.WriteSTATStatus(0, false)
	assert.Equal(t, byte(0x80|0x78), mmu.Read(addr.STAT), "PPU-owned bits cleared, CPU-written bits untouched")
}

func TestBootROMVisibilityAndDisable(t *testing.T) {
	mmu := New()
	bootROM := make([]byte, 256)
	for i := range bootROM {
		bootROM[i] = byte(i)
	}
	mmu.SetBootROM(bootROM)

	assert.True(t, mmu.BootROMActive())
	assert.Equal(t, byte(0x42), mmu.Read(0x0042), "boot ROM shadows cartridge ROM while active")

	mmu.Write(addr.BootROMDisable, 0x01)
	assert.False(t, mmu.BootROMActive(), "any write to 0xFF50 unmaps the boot ROM")
	assert.Equal(t, byte(0xFF), mmu.Read(0x0042), "cartridge ROM (here, no cartridge) visible again")
}

func TestEchoRAMMirrorsWorkRAM(t *testing.T) {
	mmu := New()
	mmu.Write(0xC010, 0x7A)
	assert.Equal(t, byte(0x7A), mmu.Read(0xE010))

	mmu.Write(0xE020, 0x3C)
	assert.Equal(t, byte(0x3C), mmu.Read(0xC020))
}
