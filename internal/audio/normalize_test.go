package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func floatFrames(samples ...float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func int16Frames(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestNormalizeMonoFloatFullScale(t *testing.T) {
	n, err := NewNormalizer(SampleFormat{SampleRate: 48000, Channels: 1, BitsPerSample: 32, IsFloat: true})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	out, err := n.Normalize(floatFrames(1.0))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 1 stereo frame, got %d samples", len(out))
	}
	if out[0] != 32767 || out[1] != 32767 {
		t.Fatalf("mono full scale: expected 32767/32767, got %d/%d", out[0], out[1])
	}
}

func TestNormalizeClampsOutOfRangeFloat(t *testing.T) {
	n, err := NewNormalizer(SampleFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 32, IsFloat: true})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	out, err := n.Normalize(floatFrames(2.5, -3.0))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out[0] != 32767 || out[1] != -32767 {
		t.Fatalf("expected clamped 32767/-32767, got %d/%d", out[0], out[1])
	}
}

func TestNormalizeInt16Passthrough(t *testing.T) {
	n, err := NewNormalizer(SampleFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 16})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	out, err := n.Normalize(int16Frames(16384, -16384))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	// 16384/32768 * 32767 truncates toward zero to 16383.
	if out[0] != 16383 || out[1] != -16383 {
		t.Fatalf("expected 16383/-16383, got %d/%d", out[0], out[1])
	}
}

func TestNormalizeInt32(t *testing.T) {
	n, err := NewNormalizer(SampleFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 32})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	half := int32(1 << 30)
	negHalf := int32(-1 << 30)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:], uint32(half))    // 0.5
	binary.LittleEndian.PutUint32(buf[4:], uint32(negHalf)) // -0.5

	out, err := n.Normalize(buf)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out[0] != 16383 || out[1] != -16383 {
		t.Fatalf("expected 16383/-16383, got %d/%d", out[0], out[1])
	}
}

func TestNormalize24BitPacked(t *testing.T) {
	n, err := NewNormalizer(SampleFormat{SampleRate: 48000, Channels: 1, BitsPerSample: 24})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	// 0x400000 widens to 0x40000000, which is half scale.
	out, err := n.Normalize([]byte{0x00, 0x00, 0x40})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out[0] != 16383 || out[1] != 16383 {
		t.Fatalf("expected half scale on both channels, got %d/%d", out[0], out[1])
	}

	// 0x800000 is the most negative 24-bit value.
	out, err = n.Normalize([]byte{0x00, 0x00, 0x80})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out[0] != -32767 {
		t.Fatalf("expected clamped negative full scale, got %d", out[0])
	}
}

func TestNormalizeParityDownmix(t *testing.T) {
	// 4 channels: even (0, 2) average into left, odd (1, 3) into right.
	n, err := NewNormalizer(SampleFormat{SampleRate: 48000, Channels: 4, BitsPerSample: 32, IsFloat: true})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	out, err := n.Normalize(floatFrames(0.2, -0.4, 0.6, -0.8))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	l := (float32(0.2) + float32(0.6)) / 2
	r := (float32(-0.4) + float32(-0.8)) / 2
	wantL := int16(l * 32767)
	wantR := int16(r * 32767)
	if out[0] != wantL || out[1] != wantR {
		t.Fatalf("expected %d/%d, got %d/%d", wantL, wantR, out[0], out[1])
	}
}

func TestNormalizeRejectsPartialFrame(t *testing.T) {
	n, err := NewNormalizer(SampleFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 16})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	if _, err := n.Normalize(make([]byte, 5)); err == nil {
		t.Fatal("expected error for buffer not aligned to frame size")
	}
}

func TestUnsupportedFormatsRejected(t *testing.T) {
	bad := []SampleFormat{
		{SampleRate: 48000, Channels: 2, BitsPerSample: 8},
		{SampleRate: 48000, Channels: 2, BitsPerSample: 24, IsFloat: true},
		{SampleRate: 48000, Channels: 0, BitsPerSample: 16},
		{SampleRate: 48000, Channels: 9, BitsPerSample: 16},
		{SampleRate: 0, Channels: 2, BitsPerSample: 16},
	}
	for _, f := range bad {
		if _, err := NewNormalizer(f); err == nil {
			t.Fatalf("expected rejection of %v", f)
		}
	}
}

func TestNormalizeResamplesNon48k(t *testing.T) {
	n, err := NewNormalizer(SampleFormat{SampleRate: 24000, Channels: 1, BitsPerSample: 32, IsFloat: true})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	in := floatFrames(0.0, 0.5, 1.0, 0.5)
	out, err := n.Normalize(in)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(out) != 8*2 {
		t.Fatalf("expected 8 output frames for 4 at 24kHz, got %d", len(out)/2)
	}
	// Endpoints survive interpolation.
	if out[0] != 0 {
		t.Fatalf("expected first frame 0, got %d", out[0])
	}
	if out[len(out)-2] != 16383 {
		t.Fatalf("expected last frame half scale, got %d", out[len(out)-2])
	}
}

func TestSilenceLength(t *testing.T) {
	n, err := NewNormalizer(SampleFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 16})
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	s := n.Silence(480)
	if len(s) != 960 {
		t.Fatalf("expected 960 samples, got %d", len(s))
	}
	for _, v := range s {
		if v != 0 {
			t.Fatal("silence must be all zeros")
		}
	}

	n, _ = NewNormalizer(SampleFormat{SampleRate: 24000, Channels: 2, BitsPerSample: 16})
	if got := len(n.Silence(240)); got != 480*2 {
		t.Fatalf("expected resampled silence of 480 frames, got %d samples", got)
	}
}

func TestPayloadBytesLittleEndian(t *testing.T) {
	b := PayloadBytes([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xFE, 0xFF}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("byte %d: expected %02X, got %02X", i, want[i], b[i])
		}
	}
}
