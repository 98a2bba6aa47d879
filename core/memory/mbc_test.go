package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMBC1BankSwitchAndRAMRoundTrip(t *testing.T) {
	rom := make([]uint8, 0x4000*4) // 4 ROM banks
	for bank := 0; bank < 4; bank++ {
		rom[bank*0x4000] = byte(bank) // tag each bank's first byte
	}
	mbc := newMBC1(rom, 1)

	mbc.Write(0x2000, 0x03) // select ROM bank 3
	assert.Equal(t, uint8(3), mbc.Read(0x4000))

	mbc.Write(0x2000, 0x00) // bank 0 request aliases to bank 1
	assert.Equal(t, uint8(1), mbc.Read(0x4000))

	assert.False(t, mbc.TakeDirty())
	mbc.Write(0xA000, 0x42) // RAM disabled: write is dropped
	assert.Equal(t, uint8(0xFF), mbc.Read(0xA000))
	assert.False(t, mbc.TakeDirty())

	mbc.Write(0x0000, 0x0A) // enable RAM
	mbc.Write(0xA000, 0x42)
	assert.Equal(t, uint8(0x42), mbc.Read(0xA000))
	assert.True(t, mbc.TakeDirty())
	assert.False(t, mbc.TakeDirty(), "TakeDirty clears the flag on read")
	assert.Equal(t, mbc.SaveRAM()[0], uint8(0x42))
}

func TestMBC2BuiltinRAMMasksUpperNibble(t *testing.T) {
	rom := make([]uint8, 0x4000*2)
	mbc := newMBC2(rom)

	mbc.Write(0x0000, 0x0A) // address bit 8 clear: RAM enable
	mbc.Write(0xA000, 0xFF)
	assert.Equal(t, uint8(0xFF), mbc.Read(0xA000), "low nibble all set, high forced to 1 on read")
	assert.True(t, mbc.TakeDirty())
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func TestMBC3RTCLatchFreezesReadsUntilRelatched(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mbc := newMBC3(make([]uint8, 0x4000*2), 1, true, clock)
	mbc.Write(0x0000, 0x0A) // enable RAM/RTC access

	mbc.ramRTCBank = 0x08 // seconds register
	clock.now = clock.now.Add(30 * time.Second)

	mbc.Write(0x6000, 0x00)
	mbc.Write(0x6000, 0x01) // latch sequence
	latchedSeconds := mbc.Read(0xA000)
	assert.Equal(t, uint8(30), latchedSeconds)

	clock.now = clock.now.Add(20 * time.Second)
	assert.Equal(t, latchedSeconds, mbc.Read(0xA000), "latched read stays frozen until the next latch")

	mbc.Write(0x6000, 0x00)
	mbc.Write(0x6000, 0x01)
	assert.Equal(t, uint8(50), mbc.Read(0xA000))
}

func TestMBC3RTCReadBeforeAnyLatchReturnsZero(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mbc := newMBC3(make([]uint8, 0x4000*2), 1, true, clock)
	mbc.Write(0x0000, 0x0A) // enable RAM/RTC access

	mbc.ramRTCBank = 0x08 // seconds register
	clock.now = clock.now.Add(45 * time.Second)

	assert.Equal(t, uint8(0), mbc.Read(0xA000), "unlatched reads never see the live running clock")
}

func TestMBC3RTCHaltFreezesElapsedTime(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mbc := newMBC3(make([]uint8, 0x4000*2), 1, true, clock)
	mbc.Write(0x0000, 0x0A) // enable RAM/RTC access

	mbc.ramRTCBank = 0x0C // day-high register, bit 6 halts
	mbc.Write(0xA000, 0x40)

	clock.now = clock.now.Add(time.Hour)
	mbc.ramRTCBank = 0x08
	mbc.Write(0x6000, 0x00)
	mbc.Write(0x6000, 0x01) // latch sequence
	assert.Equal(t, uint8(0), mbc.Read(0xA000), "halted RTC does not advance")

	mbc.ramRTCBank = 0x0C
	mbc.Write(0xA000, 0x00) // unhalt
	clock.now = clock.now.Add(5 * time.Second)
	mbc.ramRTCBank = 0x08
	mbc.Write(0x6000, 0x00)
	mbc.Write(0x6000, 0x01)
	assert.Equal(t, uint8(5), mbc.Read(0xA000))
}
