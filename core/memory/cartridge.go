package memory

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnsupportedCartridge is returned when a ROM header names an MBC or RAM
// size code this core does not implement (spec §7: "no emulator thread is
// spawned").
var ErrUnsupportedCartridge = errors.New("unsupported cartridge")

const (
	titleAddress          = 0x0134
	titleLength           = 16
	cartridgeTypeAddress  = 0x0147
	romSizeAddress        = 0x0148
	ramSizeAddress        = 0x0149
	headerChecksumAddress = 0x014D
)

type mbcKind uint8

const (
	mbcNone mbcKind = iota
	mbcMBC1
	mbcMBC2
	mbcMBC3
)

var ramBankCountBySizeCode = map[uint8]uint8{
	0x00: 0,
	0x01: 1, // 2KB, treated as one partial bank
	0x02: 1, // 8KB
	0x03: 4, // 32KB
	0x04: 16, // 128KB
	0x05: 8, // 64KB
}

// Cartridge holds the immutable ROM image, mutable external RAM, and the
// header-derived facts (spec §6) that select which MBC variant drives it.
type Cartridge struct {
	data           []byte
	title          string
	headerChecksum uint8
	cartType       uint8
	romSize        uint8
	ramSize        uint8

	mbcKind      mbcKind
	hasBattery   bool
	hasRTC       bool
	ramBankCount uint8
}

// NewCartridge creates an empty cartridge with no ROM loaded, useful for
// booting the core with nothing inserted.
func NewCartridge() *Cartridge {
	return &Cartridge{data: make([]byte, 0x8000), mbcKind: mbcNone}
}

// NewCartridgeWithData parses a Game Boy ROM image's header and returns the
// resulting Cartridge, or ErrUnsupportedCartridge if the MBC or RAM-size code
// is not one this core implements.
func NewCartridgeWithData(bytes []byte) (*Cartridge, error) {
	if len(bytes) < 0x150 {
		return nil, fmt.Errorf("%w: ROM image too short (%d bytes)", ErrUnsupportedCartridge, len(bytes))
	}

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          cleanGameboyTitle(bytes[titleAddress : titleAddress+titleLength]),
		headerChecksum: bytes[headerChecksumAddress],
		cartType:       bytes[cartridgeTypeAddress],
		romSize:        bytes[romSizeAddress],
		ramSize:        bytes[ramSizeAddress],
	}
	copy(cart.data, bytes)

	kind, hasBattery, hasRTC, err := classifyCartType(cart.cartType)
	if err != nil {
		return nil, err
	}
	cart.mbcKind = kind
	cart.hasBattery = hasBattery
	cart.hasRTC = hasRTC

	ramBanks, ok := ramBankCountBySizeCode[cart.ramSize]
	if !ok {
		return nil, fmt.Errorf("%w: RAM size code 0x%02X", ErrUnsupportedCartridge, cart.ramSize)
	}
	if kind == mbcMBC2 {
		ramBanks = 0 // MBC2's RAM is built in, not bank-sized external RAM
	}
	cart.ramBankCount = ramBanks

	return cart, nil
}

// classifyCartType maps the header's cartridge-type byte (0x147) to an MBC
// kind and its battery/RTC facts, per spec §6's MBC code table.
func classifyCartType(cartType uint8) (kind mbcKind, hasBattery bool, hasRTC bool, err error) {
	switch cartType {
	case 0x00:
		return mbcNone, false, false, nil
	case 0x01, 0x02:
		return mbcMBC1, false, false, nil
	case 0x03:
		return mbcMBC1, true, false, nil
	case 0x05:
		return mbcMBC2, false, false, nil
	case 0x06:
		return mbcMBC2, true, false, nil
	case 0x0F, 0x10:
		return mbcMBC3, true, true, nil
	case 0x11, 0x12:
		return mbcMBC3, false, false, nil
	case 0x13:
		return mbcMBC3, true, false, nil
	default:
		return 0, false, false, fmt.Errorf("%w: cartridge type 0x%02X", ErrUnsupportedCartridge, cartType)
	}
}

// cleanGameboyTitle processes a raw Game Boy ROM title by converting NULL
// bytes to spaces, trimming whitespace, and replacing non-printable bytes.
func cleanGameboyTitle(titleBytes []byte) string {
	runes := make([]rune, 0, len(titleBytes))
	for _, b := range titleBytes {
		r := rune(b)
		switch {
		case r == 0:
			r = ' '
		case !unicode.IsPrint(r):
			r = '?'
		}
		runes = append(runes, r)
	}
	title := strings.TrimSpace(string(runes))
	if title == "" {
		return "(Untitled)"
	}
	return title
}

// Title returns the cartridge's cleaned header title.
func (c *Cartridge) Title() string { return c.title }
