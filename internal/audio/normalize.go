package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/snacka-app/media/internal/logging"
)

var log = logging.L("audio")

// Normalizer converts interleaved PCM in the session's detected format to
// 48kHz 16-bit signed stereo, the only layout audio packets carry on the
// wire. Frame-count mapping is 1:1 when the input is already 48kHz; other
// rates pass through the linear resampler first.
type Normalizer struct {
	format    SampleFormat
	resampler *Resampler
	stereo    []float32 // scratch: stereo float frames before quantization
}

// NewNormalizer validates the detected format and builds a converter for
// it. Non-48kHz input is accepted with a warning since some capture
// backends cannot deliver the engine rate we ask for.
func NewNormalizer(format SampleFormat) (*Normalizer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	n := &Normalizer{format: format}
	if format.SampleRate != OutSampleRate {
		log.Warn("capture rate differs from output rate, resampling",
			"captureRate", format.SampleRate, "outputRate", OutSampleRate)
		n.resampler = NewResampler(format.SampleRate, OutSampleRate)
	}
	return n, nil
}

// Format returns the input format this normalizer was built for.
func (n *Normalizer) Format() SampleFormat { return n.format }

// Normalize converts one capture buffer of interleaved frames. The
// returned slice is interleaved stereo int16 and is only valid until the
// next call.
func (n *Normalizer) Normalize(data []byte) ([]int16, error) {
	bpf := n.format.BytesPerFrame()
	if len(data)%bpf != 0 {
		return nil, fmt.Errorf("audio: buffer length %d not a multiple of frame size %d", len(data), bpf)
	}
	numFrames := len(data) / bpf

	if cap(n.stereo) < numFrames*2 {
		n.stereo = make([]float32, numFrames*2)
	}
	n.stereo = n.stereo[:numFrames*2]

	for i := 0; i < numFrames; i++ {
		left, right := n.downmixFrame(data[i*bpf:])
		n.stereo[i*2] = left
		n.stereo[i*2+1] = right
	}

	frames := n.stereo
	if n.resampler != nil {
		frames = n.resampler.Resample(frames)
	}
	return quantize(frames), nil
}

// Silence produces a normalized silent buffer covering numFrames input
// frames, scaled through the resampler ratio when one is active. Capture
// backends report silent periods as a flag with no sample data.
func (n *Normalizer) Silence(numFrames int) []int16 {
	out := numFrames
	if n.resampler != nil {
		out = n.resampler.OutputFrames(numFrames)
	}
	return make([]int16, out*2)
}

// downmixFrame decodes every channel of one frame and folds them to
// stereo: even channels average into left, odd channels into right. A
// source with no odd channels (mono) duplicates left into right.
func (n *Normalizer) downmixFrame(frame []byte) (left, right float32) {
	bps := n.format.BytesPerSample()
	var sumL, sumR float32
	var nL, nR int
	for ch := 0; ch < n.format.Channels; ch++ {
		s := n.decodeSample(frame[ch*bps:])
		if ch%2 == 0 {
			sumL += s
			nL++
		} else {
			sumR += s
			nR++
		}
	}
	left = sumL / float32(nL)
	if nR > 0 {
		right = sumR / float32(nR)
	} else {
		right = left
	}
	return left, right
}

// decodeSample reads one sample into [-1, 1) float.
func (n *Normalizer) decodeSample(b []byte) float32 {
	switch {
	case n.format.IsFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case n.format.BitsPerSample == 16:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768.0
	case n.format.BitsPerSample == 32:
		return float32(int32(binary.LittleEndian.Uint32(b))) / 2147483648.0
	default:
		// 24-bit packed little-endian, widened to 32 then scaled.
		s := int32(b[2])<<24 | int32(b[1])<<16 | int32(b[0])<<8
		return float32(s) / 2147483648.0
	}
}

// quantize clamps stereo float frames to [-1, 1] and converts to int16.
func quantize(frames []float32) []int16 {
	out := make([]int16, len(frames))
	for i, s := range frames {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * 32767.0)
	}
	return out
}

// PayloadBytes serializes interleaved int16 frames into the little-endian
// byte layout audio packet payloads use.
func PayloadBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
