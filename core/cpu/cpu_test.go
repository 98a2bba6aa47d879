package cpu

import (
	"testing"

	"github.com/halcyon-systems/dmgcore/core/addr"
	"github.com/stretchr/testify/assert"
)

// fakeBus is a flat 64KB RAM image, enough to exercise CPU semantics in
// isolation from the real MMU's region decoding.
type fakeBus struct {
	mem [0x10000]byte
}

func (b *fakeBus) Read(address uint16) byte        { return b.mem[address] }
func (b *fakeBus) Write(address uint16, value byte) { b.mem[address] = value }

func newTestCPU() (*CPU, *fakeBus) {
	c := New()
	c.regs.pc = 0xC000
	c.regs.sp = 0xDFFE
	return c, &fakeBus{}
}

func runInstruction(c *CPU, bus Bus) {
	for {
		before := c.queueCount
		c.Step(bus)
		if before == 0 && c.queueCount == 0 {
			return
		}
		if c.queueCount == 0 {
			return
		}
	}
}

func TestLoadRegisterToRegister(t *testing.T) {
	c, bus := newTestCPU()
	bus.mem[0xC000] = 0x41 // LD B,C
	c.regs.setC(0x42)
	runInstruction(c, bus)
	assert.Equal(t, uint8(0x42), c.regs.b())
	assert.Equal(t, uint16(0xC001), c.regs.pc)
}

func TestAddWithCarryAndFlags(t *testing.T) {
	c, bus := newTestCPU()
	bus.mem[0xC000] = 0x80 // ADD A,B
	c.regs.setA(0xFF)
	c.regs.setB(0x01)
	runInstruction(c, bus)
	assert.Equal(t, uint8(0x00), c.regs.a())
	assert.True(t, c.regs.flag(flagZ))
	assert.True(t, c.regs.flag(flagH))
	assert.True(t, c.regs.flag(flagC))
	assert.False(t, c.regs.flag(flagN))
}

func TestDAAAfterBCDAddition(t *testing.T) {
	c, bus := newTestCPU()
	// 0x15 + 0x27 in BCD should read as 0x42 after DAA.
	bus.mem[0xC000] = 0x80 // ADD A,B
	bus.mem[0xC001] = 0x27 // DAA
	c.regs.setA(0x15)
	c.regs.setB(0x27)
	runInstruction(c, bus)
	runInstruction(c, bus)
	assert.Equal(t, uint8(0x42), c.regs.a())
}

func TestPushPopRoundTrip(t *testing.T) {
	c, bus := newTestCPU()
	bus.mem[0xC000] = 0xC5 // PUSH BC
	bus.mem[0xC001] = 0xD1 // POP DE
	c.regs.bc = 0x1234
	runInstruction(c, bus)
	runInstruction(c, bus)
	assert.Equal(t, uint16(0x1234), c.regs.de)
	assert.Equal(t, uint16(0xDFFE), c.regs.sp)
}

func TestJumpRelativeBackward(t *testing.T) {
	c, bus := newTestCPU()
	c.regs.pc = 0xC010
	bus.mem[0xC010] = 0x18 // JR e8
	bus.mem[0xC011] = 0xFE // -2
	runInstruction(c, bus)
	assert.Equal(t, uint16(0xC010), c.regs.pc)
}

func TestCBBitTestSetsZeroFlag(t *testing.T) {
	c, bus := newTestCPU()
	bus.mem[0xC000] = 0xCB
	bus.mem[0xC001] = 0x41 // BIT 0,C
	c.regs.setC(0x00)
	runInstruction(c, bus)
	assert.True(t, c.regs.flag(flagZ))
	assert.True(t, c.regs.flag(flagH))
}

func TestEIDelaysEnableByOneInstruction(t *testing.T) {
	c, bus := newTestCPU()
	bus.mem[0xC000] = 0xFB // EI
	bus.mem[0xC001] = 0x00 // NOP
	bus.mem[0xC002] = 0x00 // NOP

	runInstruction(c, bus) // EI executes; IME still not yet enabled
	assert.Equal(t, IMEWillEnable, c.ime)

	runInstruction(c, bus) // NOP fetched and executed; its own fetch still saw IME pending
	assert.Equal(t, IMEWillEnable, c.ime)

	runInstruction(c, bus) // fetch of the instruction after NOP flips IME on
	assert.Equal(t, IMEEnabled, c.ime)
}

func TestEIThenDILeavesIMEDisabled(t *testing.T) {
	c, bus := newTestCPU()
	bus.mem[0xC000] = 0xFB // EI
	bus.mem[0xC001] = 0xF3 // DI
	bus.mem[0xC002] = 0x00 // NOP

	runInstruction(c, bus)
	runInstruction(c, bus)
	runInstruction(c, bus)
	assert.Equal(t, IMEDisabled, c.ime)
}

func TestInterruptDispatchTakesTwentyCyclesAndPushesPC(t *testing.T) {
	c, bus := newTestCPU()
	c.regs.pc = 0xC100
	c.ime = IMEEnabled
	bus.Write(addr.IE, 0x01) // VBlank enabled
	bus.Write(addr.IF, 0x01) // VBlank requested

	startCycles := c.cycles
	for c.queueCount != 0 || startCycles == c.cycles {
		c.Step(bus)
		if c.cycles-startCycles >= 20 {
			break
		}
	}

	assert.Equal(t, uint16(0x0040), c.regs.pc)
	assert.Equal(t, uint64(20), c.cycles-startCycles)
	assert.Equal(t, uint8(0x00), bus.Read(addr.IF))
	assert.Equal(t, uint16(0xDFFC), c.regs.sp)
	assert.Equal(t, uint8(0xC1), bus.mem[0xDFFD])
	assert.Equal(t, uint8(0x00), bus.mem[0xDFFC])
}

func TestInterruptCancelledWhenSourceClearsMidDispatch(t *testing.T) {
	c, bus := newTestCPU()
	c.regs.pc = 0xC200
	c.ime = IMEEnabled
	bus.Write(addr.IE, 0x01)
	bus.Write(addr.IF, 0x01)

	c.fetchAndDecode(bus) // schedules the dispatch sequence
	// Simulate the source withdrawing its request before the finalizing step.
	bus.Write(addr.IF, 0x00)
	for c.queueCount > 0 {
		c.Step(bus)
	}

	assert.Equal(t, uint16(0x0000), c.regs.pc)
}

func TestHaltBugReExecutesNextOpcode(t *testing.T) {
	c, bus := newTestCPU()
	c.regs.pc = 0xC300
	c.ime = IMEDisabled
	bus.Write(addr.IE, 0x01)
	bus.Write(addr.IF, 0x01) // interrupt pending but IME disabled: triggers HALT bug
	bus.mem[0xC300] = 0x76   // HALT
	bus.mem[0xC301] = 0x3C   // INC A

	runInstruction(c, bus) // HALT: enters ModeHaltBug, PC left at 0xC301
	assert.Equal(t, ModeHaltBug, c.mode)

	runInstruction(c, bus) // INC A fetched and executed once
	firstA := c.regs.a()
	assert.Equal(t, uint8(0x02), firstA) // A started at 0x01 per New()
	assert.Equal(t, uint16(0xC301), c.regs.pc, "PC should not have advanced past the re-executed opcode")
}
