// Package cpu implements the Sharp LR35902 instruction core: registers,
// the micro-op queue that times every instruction in 4-cycle slots, and the
// five-step interrupt dispatch sequence.
package cpu

import "github.com/halcyon-systems/dmgcore/core/addr"

// Bus is the minimal memory interface the CPU needs. core.Bus satisfies it.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
}

// IME models the interrupt master enable flag as a tri-state value rather
// than a bool, since EI's effect is delayed by one instruction.
type IME uint8

const (
	IMEDisabled IME = iota
	IMEWillEnable
	IMEEnabled
)

// Mode tracks the CPU's run state outside of normal fetch/execute.
type Mode uint8

const (
	ModeReady Mode = iota
	ModeHaltBug
	ModeHalted
)

const opQueueCapacity = 16

type microOpFn func(c *CPU, bus Bus)

type microOp struct {
	fn microOpFn
}

// CPU is the Sharp LR35902 core. It owns no memory of its own; all reads and
// writes go through the Bus supplied to Step.
type CPU struct {
	regs registers

	ime         IME
	eiCountdown int // instructions remaining before WillEnable becomes Enabled
	mode        Mode

	queue      [opQueueCapacity]microOp
	queueHead  int
	queueCount int

	haltBugPC uint16

	cycles uint64
}

// New returns a CPU in its post-boot-ROM reset state (matches the values the
// DMG boot ROM leaves behind when it hands off to cartridge code at 0x0100).
func New() *CPU {
	c := &CPU{}
	c.regs.af = 0x01B0
	c.regs.bc = 0x0013
	c.regs.de = 0x00D8
	c.regs.hl = 0x014D
	c.regs.sp = 0xFFFE
	c.regs.pc = 0x0100
	c.ime = IMEDisabled
	c.mode = ModeReady
	return c
}

// NewColdBoot returns a CPU in its true power-on reset state: every register
// zeroed except SP, PC=0x0000, ready to execute a boot ROM mapped at
// 0x0000-0x00FF. Whatever register/flag state New's post-boot defaults
// encode is instead produced by the boot ROM actually running.
func NewColdBoot() *CPU {
	c := &CPU{}
	c.regs.sp = 0xFFFE
	c.ime = IMEDisabled
	c.mode = ModeReady
	return c
}

func (c *CPU) PC() uint16 { return c.regs.pc }
func (c *CPU) SP() uint16 { return c.regs.sp }
func (c *CPU) Cycles() uint64 { return c.cycles }
func (c *CPU) IME() IME { return c.ime }
func (c *CPU) Mode() Mode { return c.mode }

// A exposes the accumulator, mainly for tests and debug tooling.
func (c *CPU) A() uint8 { return c.regs.a() }
func (c *CPU) F() uint8 { return c.regs.f() }
func (c *CPU) B() uint8 { return c.regs.b() }
func (c *CPU) C() uint8 { return c.regs.c() }
func (c *CPU) D() uint8 { return c.regs.d() }
func (c *CPU) E() uint8 { return c.regs.e() }
func (c *CPU) H() uint8 { return c.regs.h() }
func (c *CPU) L() uint8 { return c.regs.l() }
func (c *CPU) BC() uint16 { return c.regs.bc }
func (c *CPU) DE() uint16 { return c.regs.de }
func (c *CPU) HL() uint16 { return c.regs.hl }

// FlagString renders the Z/N/H/C flags as a four-character mask, '-' for
// clear, the flag letter for set, e.g. "Z-HC".
func (c *CPU) FlagString() string {
	letters := [4]struct {
		mask uint8
		ch   byte
	}{{flagZ, 'Z'}, {flagN, 'N'}, {flagH, 'H'}, {flagC, 'C'}}
	buf := make([]byte, 4)
	for i, l := range letters {
		if c.regs.f()&l.mask != 0 {
			buf[i] = l.ch
		} else {
			buf[i] = '-'
		}
	}
	return string(buf)
}

func (c *CPU) push(fn microOpFn) {
	if c.queueCount >= opQueueCapacity {
		panic("cpu: micro-op queue overflow")
	}
	idx := (c.queueHead + c.queueCount) % opQueueCapacity
	c.queue[idx] = microOp{fn: fn}
	c.queueCount++
}

func (c *CPU) pop() (microOp, bool) {
	if c.queueCount == 0 {
		return microOp{}, false
	}
	op := c.queue[c.queueHead]
	c.queueHead = (c.queueHead + 1) % opQueueCapacity
	c.queueCount--
	return op, true
}

// enqueueInstruction queues mCycles micro-op slots for an instruction whose
// full effect (register writes, memory accesses, flag updates) fires on the
// final slot. Earlier slots pad out the real hardware's per-M-cycle timing
// without needing a distinct closure for every intermediate bus access.
func (c *CPU) enqueueInstruction(mCycles int, effect microOpFn) {
	if mCycles < 1 {
		mCycles = 1
	}
	for i := 1; i < mCycles; i++ {
		c.push(func(c *CPU, bus Bus) {})
	}
	c.push(effect)
}

// Step advances the CPU by exactly one 4 T-cycle slot and returns 4. The
// caller (the system loop) is expected to tick the rest of the hardware by
// the same amount after each call.
func (c *CPU) Step(bus Bus) int {
	if c.mode == ModeHalted {
		if c.pendingInterrupts(bus) != 0 {
			c.mode = ModeReady
		}
		c.cycles += 4
		return 4
	}

	if c.queueCount == 0 {
		c.fetchAndDecode(bus)
	}

	if op, ok := c.pop(); ok {
		op.fn(c, bus)
	}
	c.cycles += 4
	return 4
}

func (c *CPU) pendingInterrupts(bus Bus) uint8 {
	ie := bus.Read(addr.IE)
	iflag := bus.Read(addr.IF)
	return ie & iflag & 0x1F
}

func (c *CPU) fetchAndDecode(bus Bus) {
	if c.eiCountdown > 0 {
		c.eiCountdown--
		if c.eiCountdown == 0 {
			c.ime = IMEEnabled
		}
	}

	if c.ime == IMEEnabled && c.pendingInterrupts(bus) != 0 {
		c.enqueueInterruptDispatch()
		return
	}

	var opcode uint8
	if c.mode == ModeHaltBug {
		opcode = bus.Read(c.regs.pc)
		c.mode = ModeReady
	} else {
		opcode = bus.Read(c.regs.pc)
		c.regs.pc++
	}

	if opcode == 0xCB {
		cbOpcode := bus.Read(c.regs.pc)
		c.regs.pc++
		decodeCB(c, bus, cbOpcode)
		return
	}

	decode(c, bus, opcode)
}

// enqueueInterruptDispatch realizes the 5 M-cycle interrupt dispatch
// sequence: two internal delays, then PUSH PC high, PUSH PC low, and a
// finalizing step that reads IE/IF again (so a source that stopped pending
// mid-dispatch cancels the jump to 0x0000 rather than an arbitrary vector).
func (c *CPU) enqueueInterruptDispatch() {
	c.ime = IMEDisabled
	c.push(func(c *CPU, bus Bus) {})
	c.push(func(c *CPU, bus Bus) {})
	c.push(func(c *CPU, bus Bus) {
		c.regs.sp--
		bus.Write(c.regs.sp, hi(c.regs.pc))
	})
	c.push(func(c *CPU, bus Bus) {
		c.regs.sp--
		bus.Write(c.regs.sp, lo(c.regs.pc))
	})
	c.push(func(c *CPU, bus Bus) {
		pending := c.pendingInterrupts(bus)
		if pending == 0 {
			c.regs.pc = 0x0000
			return
		}
		bitIndex := lowestSetBit(pending)
		iflag := bus.Read(addr.IF)
		bus.Write(addr.IF, iflag&^(1<<bitIndex))
		c.regs.pc = interruptVectors[bitIndex]
	})
}

var interruptVectors = [5]uint16{0x0040, 0x0048, 0x0050, 0x0058, 0x0060}

func lowestSetBit(v uint8) uint8 {
	for i := uint8(0); i < 8; i++ {
		if v&(1<<i) != 0 {
			return i
		}
	}
	return 0
}

// halt implements opcode 0x76, including the HALT bug: if IME is disabled
// but an interrupt is already pending, the next byte fetch does not advance
// PC, causing the following opcode to be read (and executed) twice.
func (c *CPU) halt(bus Bus) {
	if c.ime == IMEEnabled {
		c.mode = ModeHalted
		return
	}
	if c.pendingInterrupts(bus) != 0 {
		c.mode = ModeHaltBug
		return
	}
	c.mode = ModeHalted
}

func (c *CPU) ei() {
	c.ime = IMEWillEnable
	c.eiCountdown = 2
}

func (c *CPU) di() {
	c.ime = IMEDisabled
	c.eiCountdown = 0
}
