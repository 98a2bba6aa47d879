package memory

import "github.com/halcyon-systems/dmgcore/core/bit"

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	// JoypadNone is the zero value, used by callers as a "no mapping" sentinel.
	JoypadNone JoypadKey = iota
	JoypadRight
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// Joypad owns the P1 register (0xFF00): two active-low button half-states
// (d-pad, buttons) and the selection bits that choose which half is visible.
// A 1->0 transition of the aggregated low nibble requests the JOYPAD interrupt.
type Joypad struct {
	buttons uint8 // low 4 bits: A,B,Select,Start (active-low)
	dpad    uint8 // low 4 bits: Right,Left,Up,Down (active-low)
	select_ uint8 // bits 4-5 of P1, as last written

	InterruptHandler func()
}

// NewJoypad creates a new Joypad instance with no buttons held.
func NewJoypad() *Joypad {
	return &Joypad{
		buttons: 0x0F,
		dpad:    0x0F,
	}
}

// Read returns the current P1 register value: bits 6-7 always read 1,
// bits 4-5 are the selection as last written, bits 0-3 are the
// selection-masked OR of the enabled half-states (low = pressed).
func (j *Joypad) Read() uint8 {
	result := uint8(0xC0) | (j.select_ & 0x30)

	selectDpad := !bit.IsSet(4, j.select_)
	selectButtons := !bit.IsSet(5, j.select_)

	switch {
	case selectButtons && !selectDpad:
		result |= j.buttons & 0x0F
	case selectDpad && !selectButtons:
		result |= j.dpad & 0x0F
	case selectButtons && selectDpad:
		result |= j.buttons & j.dpad & 0x0F
	default:
		result |= 0x0F
	}

	return result
}

// Write sets the selection bits (4-5); all other bits are read-only.
func (j *Joypad) Write(value uint8) {
	j.select_ = value & 0x30
}

func (j *Joypad) requestInterruptIfFalling(before, after uint8) {
	if before&^after != 0 && j.InterruptHandler != nil {
		j.InterruptHandler()
	}
}

// Press updates the joypad state when a key is pressed, requesting the
// JOYPAD interrupt on any 1->0 transition of the aggregated nibble.
func (j *Joypad) Press(key JoypadKey) {
	before := j.buttons & j.dpad
	switch key {
	case JoypadRight:
		j.dpad = bit.Reset(0, j.dpad)
	case JoypadLeft:
		j.dpad = bit.Reset(1, j.dpad)
	case JoypadUp:
		j.dpad = bit.Reset(2, j.dpad)
	case JoypadDown:
		j.dpad = bit.Reset(3, j.dpad)
	case JoypadA:
		j.buttons = bit.Reset(0, j.buttons)
	case JoypadB:
		j.buttons = bit.Reset(1, j.buttons)
	case JoypadSelect:
		j.buttons = bit.Reset(2, j.buttons)
	case JoypadStart:
		j.buttons = bit.Reset(3, j.buttons)
	}
	j.requestInterruptIfFalling(before, j.buttons&j.dpad)
}

// Release updates the joypad state when a key is released.
func (j *Joypad) Release(key JoypadKey) {
	switch key {
	case JoypadRight:
		j.dpad = bit.Set(0, j.dpad)
	case JoypadLeft:
		j.dpad = bit.Set(1, j.dpad)
	case JoypadUp:
		j.dpad = bit.Set(2, j.dpad)
	case JoypadDown:
		j.dpad = bit.Set(3, j.dpad)
	case JoypadA:
		j.buttons = bit.Set(0, j.buttons)
	case JoypadB:
		j.buttons = bit.Set(1, j.buttons)
	case JoypadSelect:
		j.buttons = bit.Set(2, j.buttons)
	case JoypadStart:
		j.buttons = bit.Set(3, j.buttons)
	}
}
