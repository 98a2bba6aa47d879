package audio

// Timing constants
// Reference: https://gbdev.io/pandocs/Audio_details.html
const (
	// cyclesPerStep is the number of CPU cycles per frame sequencer tick.
	// The frame sequencer runs at 512 Hz: 4194304 Hz / 512 Hz = 8192 t-cycles
	cyclesPerStep = 8192
)

// Channel constants
const (
	// waveRAMSize is the size of wave pattern RAM in bytes (16 bytes = 32 nibbles)
	waveRAMSize = 16
)

// Output buffer cadence (spec §4.5, §6).
const (
	// AudioFrameLength is the T-cycle span covered by one emitted sample buffer.
	AudioFrameLength = 17556
	// SystemClockRate is the master clock frequency in Hz.
	SystemClockRate = 4194304
	// SampleRate is the external sink's PCM sample rate in Hz.
	SampleRate = 44100
	// FrameSampleCount is ceil(SampleRate * AudioFrameLength / SystemClockRate).
	FrameSampleCount = (SampleRate*AudioFrameLength + SystemClockRate - 1) / SystemClockRate
	// frameQueueCapacity bounds the sample-buffer channel (spec §5).
	frameQueueCapacity = 16
)
