package audio

import "log/slog"

// BackpressurePolicy selects what the FrameSink does when its bounded output
// queue is full (spec §5, §9 Open Question: "the specification leaves it
// configurable").
type BackpressurePolicy int

const (
	// DropOldest discards the oldest queued buffer to make room for the new
	// one, so the emulator thread is never blocked by a slow consumer.
	DropOldest BackpressurePolicy = iota
	// Block waits for the consumer to drain a buffer before proceeding.
	Block
)

// FrameSink drives an APU and, every AudioFrameLength T-cycles, resolves the
// current mix into one fixed-size mono PCM buffer pushed onto a bounded
// channel (spec §4.5, §6's audio sink interface).
type FrameSink struct {
	apu      *APU
	cyclesIn int
	queue    chan []int16
	policy   BackpressurePolicy
	logger   *slog.Logger
}

// FrameSinkOption configures a FrameSink at construction time.
type FrameSinkOption func(*FrameSink)

// WithDropOldest selects the drop-oldest backpressure policy (the default).
func WithDropOldest() FrameSinkOption { return func(s *FrameSink) { s.policy = DropOldest } }

// WithBlocking selects the blocking backpressure policy.
func WithBlocking() FrameSinkOption { return func(s *FrameSink) { s.policy = Block } }

// NewFrameSink wraps apu with the AudioFrameLength emission cadence.
func NewFrameSink(apu *APU, opts ...FrameSinkOption) *FrameSink {
	s := &FrameSink{
		apu:    apu,
		queue:  make(chan []int16, frameQueueCapacity),
		policy: DropOldest,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick advances the underlying APU and emits a buffer whenever AudioFrameLength
// T-cycles have elapsed since the last one.
func (s *FrameSink) Tick(cycles int) {
	s.apu.Tick(cycles)
	s.cyclesIn += cycles
	for s.cyclesIn >= AudioFrameLength {
		s.cyclesIn -= AudioFrameLength
		s.emit()
	}
}

// emit drains one frame's worth of stereo samples from the APU, downmixes to
// mono, and pushes it to the bounded queue per the configured policy.
func (s *FrameSink) emit() {
	stereo := s.apu.GetSamples(FrameSampleCount)
	mono := make([]int16, FrameSampleCount)
	for i := range mono {
		mono[i] = int16((int32(stereo[2*i]) + int32(stereo[2*i+1])) / 2)
	}

	select {
	case s.queue <- mono:
		return
	default:
	}

	switch s.policy {
	case Block:
		s.queue <- mono
	default:
		select {
		case <-s.queue:
			s.logger.Warn("audio sink backpressure: dropped oldest buffer")
		default:
		}
		select {
		case s.queue <- mono:
		default:
		}
	}
}

// Samples exposes the bounded output queue to the external audio consumer.
func (s *FrameSink) Samples() <-chan []int16 {
	return s.queue
}
