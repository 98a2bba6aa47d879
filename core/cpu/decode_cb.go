package cpu

// decodeCB dispatches a CB-prefixed opcode. The whole 0x00-0xFF CB space is
// fully regular: bits 7-6 select the operation group, bits 5-3 select the
// bit index (for BIT/RES/SET), and bits 2-0 select the operand register.
func decodeCB(c *CPU, bus Bus, opcode uint8) {
	which := reg8Order[opcode&0x7]
	group := opcode >> 6
	bitIndex := (opcode >> 3) & 0x7

	cycles := 2
	if which == regHLInd {
		cycles = 4
	}

	switch group {
	case 0: // rotate/shift/swap, selected by bits 5-3
		op := (opcode >> 3) & 0x7
		c.enqueueInstruction(cycles, func(c *CPU, bus Bus) {
			v := c.regs.get8(which, bus)
			var r, f uint8
			switch op {
			case 0:
				r, f = rlc(v)
			case 1:
				r, f = rrc(v)
			case 2:
				r, f = rl(v, c.regs.flag(flagC))
			case 3:
				r, f = rr(v, c.regs.flag(flagC))
			case 4:
				r, f = sla(v)
			case 5:
				r, f = sra(v)
			case 6:
				r, f = swap(v)
			default:
				r, f = srl(v)
			}
			c.regs.set8(which, bus, r)
			c.regs.setF(f)
		})
	case 1: // BIT b,r
		readCycles := cycles
		if which == regHLInd {
			readCycles = 3 // BIT n,(HL) does not write back, so one fewer slot
		}
		c.enqueueInstruction(readCycles, func(c *CPU, bus Bus) {
			v := c.regs.get8(which, bus)
			c.regs.setF(bitTest(v, bitIndex, c.regs.flag(flagC)))
		})
	case 2: // RES b,r
		c.enqueueInstruction(cycles, func(c *CPU, bus Bus) {
			v := c.regs.get8(which, bus)
			c.regs.set8(which, bus, v&^(1<<bitIndex))
		})
	default: // SET b,r
		c.enqueueInstruction(cycles, func(c *CPU, bus Bus) {
			v := c.regs.get8(which, bus)
			c.regs.set8(which, bus, v|(1<<bitIndex))
		})
	}
}
