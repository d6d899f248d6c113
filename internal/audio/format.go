package audio

import "fmt"

// Canonical output format for the control/audio stream. Everything the OS
// hands us is converted to this before it goes on the wire.
const (
	OutSampleRate = 48000
	OutChannels   = 2
)

// SampleFormat describes the PCM layout the OS capture subsystem reported
// for a session. It is detected once from the first audio unit and does
// not change for the lifetime of the capture.
type SampleFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	IsFloat       bool
}

// BytesPerSample returns the width of a single sample in bytes.
func (f SampleFormat) BytesPerSample() int {
	return f.BitsPerSample / 8
}

// BytesPerFrame returns the width of one interleaved frame (all channels).
func (f SampleFormat) BytesPerFrame() int {
	return f.BytesPerSample() * f.Channels
}

// Validate reports whether the format is one the normalizer can decode.
func (f SampleFormat) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("audio: unsupported channel count %d", f.Channels)
	}
	switch {
	case f.IsFloat && f.BitsPerSample == 32:
	case !f.IsFloat && f.BitsPerSample == 16:
	case !f.IsFloat && f.BitsPerSample == 24:
	case !f.IsFloat && f.BitsPerSample == 32:
	default:
		return fmt.Errorf("audio: unsupported sample layout %d-bit float=%v", f.BitsPerSample, f.IsFloat)
	}
	return nil
}

func (f SampleFormat) String() string {
	kind := "int"
	if f.IsFloat {
		kind = "float"
	}
	return fmt.Sprintf("%dHz %d-bit %s %dch", f.SampleRate, f.BitsPerSample, kind, f.Channels)
}
