package audio

// Provider is the audio surface a host shell needs: raw PCM output plus the
// per-channel mute/solo/inspect controls bound to debug keys in
// core/render. FrameSink wraps the GetSamples half of this for the
// frame-paced sink; the rest is exposed straight through to input bindings.
type Provider interface {
	// GetSamples retrieves audio samples for playback
	GetSamples(count int) []int16

	// Audio debugging controls

	ToggleChannel(channel int)
	SoloChannel(channel int)
	GetChannelStatus() (ch1, ch2, ch3, ch4 bool)
	GetChannelVolumes() (ch1, ch2, ch3, ch4 uint8)
}

var _ Provider = (*APU)(nil)
