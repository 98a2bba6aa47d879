package memory

import (
	"fmt"
	"log/slog"

	"github.com/halcyon-systems/dmgcore/core/addr"
	"github.com/halcyon-systems/dmgcore/core/audio"
	"github.com/halcyon-systems/dmgcore/core/bit"
	"github.com/halcyon-systems/dmgcore/core/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// dmaState tracks the cycle-spread OAM DMA transfer triggered by writes to 0xFF46.
// One byte moves every 4 T-cycles, for 160 bytes total (640 T-cycles).
type dmaState struct {
	active    bool
	source    uint16
	remaining uint16
	cycleAcc  int
}

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// MMU allows access to all memory mapped I/O and data/registers
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	memory    []byte
	APU       *audio.APU
	regionMap [256]memRegion

	joypad *Joypad
	serial SerialPort
	timer  Timer
	dma    dmaState

	bootROM       []byte
	bootROMActive bool

	saveSignal chan []byte
}

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory:     make([]byte, 0x10000),
		cart:       NewCartridge(),
		APU:        audio.New(),
		joypad:     NewJoypad(),
		saveSignal: make(chan []byte, 1),
	}
	mmu.joypad.InterruptHandler = func() { mmu.RequestInterrupt(addr.JoypadInterrupt) }
	mmu.serial = serial.NewLogSink(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(mmu)
	return mmu
}

// Tick advances the timer, serial port, and any in-flight DMA transfer by cycles T-cycles.
func (m *MMU) Tick(cycles int) {
	m.timer.Tick(cycles)
	if m.serial != nil {
		m.serial.Tick(cycles)
	}
	m.tickDMA(cycles)

	if m.mbc != nil && m.cart.hasBattery && m.mbc.TakeDirty() {
		snapshot := append([]byte(nil), m.mbc.SaveRAM()...)
		select {
		case m.saveSignal <- snapshot:
		default:
			// A snapshot is already queued; cmd/dmgcore's writer will catch
			// up to the latest state on its next drain.
			select {
			case <-m.saveSignal:
			default:
			}
			m.saveSignal <- snapshot
		}
	}
}

// SaveSignal returns the channel the save-persistence goroutine (owned by
// cmd/dmgcore, per the core/host split) should read cartridge-RAM snapshots
// from whenever the battery-backed RAM changes.
func (m *MMU) SaveSignal() <-chan []byte { return m.saveSignal }

// HasBattery reports whether the loaded cartridge has battery-backed RAM
// worth persisting.
func (m *MMU) HasBattery() bool { return m.cart != nil && m.cart.hasBattery }

// LoadSaveRAM restores previously persisted battery-backed RAM into the
// active MBC, e.g. from a save file read at startup.
func (m *MMU) LoadSaveRAM(data []byte) {
	if m.mbc == nil {
		return
	}
	dst := m.mbc.SaveRAM()
	copy(dst, data)
}

func (m *MMU) tickDMA(cycles int) {
	if !m.dma.active {
		return
	}
	m.dma.cycleAcc += cycles
	for m.dma.cycleAcc >= 4 && m.dma.remaining > 0 {
		m.dma.cycleAcc -= 4
		offset := uint16(160) - m.dma.remaining
		m.memory[0xFE00+offset] = m.readRaw(m.dma.source + offset)
		m.dma.remaining--
	}
	if m.dma.remaining == 0 {
		m.dma.active = false
	}
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// SetBootROM maps a 256-byte boot ROM image at 0x0000-0x00FF, shadowing
// cartridge ROM there until a write to addr.BootROMDisable (0xFF50) unmaps
// it. A nil or empty data leaves boot-ROM visibility off.
func (m *MMU) SetBootROM(data []byte) {
	m.bootROM = data
	m.bootROMActive = len(data) > 0
}

// BootROMActive reports whether the boot ROM is still mapped at 0x0000-0x00FF.
func (m *MMU) BootROMActive() bool { return m.bootROMActive }

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart
	mbc, err := newMBC(cart)
	if err != nil {
		panic(err)
	}
	mmu.mbc = mbc
	return mmu
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	// Peripheral requests go straight to IF: the DMA lock-out applies only to
	// CPU-side Read/Write.
	interruptFlags := m.readRaw(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}

	newFlags := bit.Set(bitPos, interruptFlags)

	m.memory[addr.IF] = newFlags | 0xE0
}

// WriteSTATStatus updates the PPU-owned low bits of STAT (mode in bits 0-1,
// LYC=LY in bit 2) directly, bypassing the CPU-facing write mask that only
// allows the interrupt-select bits (3-6) to be set by game code.
func (m *MMU) WriteSTATStatus(mode uint8, lycMatch bool) {
	cur := (m.memory[addr.STAT] &^ 0x03) | (mode & 0x03)
	if lycMatch {
		cur = bit.Set(2, cur)
	} else {
		cur = bit.Clear(2, cur)
	}
	m.memory[addr.STAT] = cur
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

// dmaBlocksAddress reports whether address is cut off from the CPU while a
// DMA transfer is in flight: everything except high RAM, the OAM
// destination range, and the DMA trigger register itself.
func (m *MMU) dmaBlocksAddress(address uint16) bool {
	if !m.dma.active {
		return false
	}
	if address == addr.DMA {
		return false
	}
	if address >= 0xFF80 && address <= 0xFFFE {
		return false
	}
	if address >= 0xFE00 && address <= 0xFE9F {
		return false
	}
	return true
}

// Read returns the byte the CPU (or any external caller) observes at address,
// honoring DMA's blackout of the bus.
func (m *MMU) Read(address uint16) byte {
	if m.dmaBlocksAddress(address) {
		return 0x00
	}
	return m.readRaw(address)
}

// readRaw reads address bypassing DMA blocking; used by the DMA engine itself
// to read from the source range even while the transfer it is running is active.
func (m *MMU) readRaw(address uint16) byte {
	if m.bootROMActive && address < 0x0100 {
		return m.bootROM[address]
	}
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Reading from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM, regionWRAM:
		return m.memory[address]
	case regionEcho:
		return m.memory[address-0x2000]
	case regionOAM:
		return m.memory[address]
	case regionIO:
		if address == addr.P1 {
			return m.joypad.Read()
		}
		if address == addr.SB || address == addr.SC {
			return m.serial.Read(address)
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			return m.timer.Read(address)
		}
		if address >= 0xFF10 && address <= 0xFF3F {
			return m.APU.ReadRegister(address)
		}
		// The upper 3 bits of IF are unused and always read as 1.
		if address == addr.IF {
			return m.memory[address] | 0xE0
		}
		// STAT bit 7 is unused and always reads as 1.
		if address == addr.STAT {
			return m.memory[address] | 0x80
		}
		return m.memory[address]
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) Write(address uint16, value byte) {
	if m.dmaBlocksAddress(address) {
		return
	}

	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		m.memory[address] = value
	case regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Writing to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		m.memory[address] = value
	case regionEcho:
		m.memory[address-0x2000] = value
	case regionOAM:
		m.memory[address] = value
	case regionIO:
		if address == addr.P1 {
			m.joypad.Write(value)
			return
		}
		if address == addr.SB || address == addr.SC {
			m.serial.Write(address, value)
			return
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			m.timer.Write(address, value)
			return
		}
		if address >= 0xFF10 && address <= 0xFF3F {
			m.APU.WriteRegister(address, value)
			return
		}
		if address == addr.IF {
			m.memory[address] = value | 0xE0
			return
		}
		// Only the interrupt-select bits (3-6) are writable; mode (0-1) and
		// the LYC=LY flag (2) are PPU-owned, bit 7 is unused.
		if address == addr.STAT {
			m.memory[address] = (m.memory[address] & 0x87) | (value & 0x78)
			return
		}
		if address == addr.DMA {
			m.memory[address] = value
			m.dma = dmaState{active: true, source: uint16(value) << 8, remaining: 160}
			return
		}
		if address == addr.BootROMDisable {
			m.bootROMActive = false
			m.memory[address] = value
			return
		}
		m.memory[address] = value
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

// Title returns the loaded cartridge's header title.
func (m *MMU) Title() string { return m.cart.Title() }

// HandleKeyPress forwards a button press to the joypad.
func (m *MMU) HandleKeyPress(key JoypadKey) {
	m.joypad.Press(key)
}

// HandleKeyRelease forwards a button release to the joypad.
func (m *MMU) HandleKeyRelease(key JoypadKey) {
	m.joypad.Release(key)
}

// Joypad exposes the P1 register owner directly, for callers (input.Manager)
// that drive it through action/event routing instead of HandleKeyPress.
func (m *MMU) Joypad() *Joypad { return m.joypad }
