package audio

import "testing"

func TestOutputFrames(t *testing.T) {
	cases := []struct {
		in, out, frames, want int
	}{
		{44100, 48000, 441, 480},
		{24000, 48000, 240, 480},
		{96000, 48000, 960, 480},
		{48000, 48000, 480, 480},
	}
	for _, tc := range cases {
		r := NewResampler(tc.in, tc.out)
		if got := r.OutputFrames(tc.frames); got != tc.want {
			t.Fatalf("%d->%d with %d frames: expected %d, got %d", tc.in, tc.out, tc.frames, tc.want, got)
		}
	}
}

func TestResampleInterpolatesMidpoint(t *testing.T) {
	r := NewResampler(24000, 48000)
	// Two input frames, four output frames. step is 1/3, so output 1 sits
	// a third of the way between the inputs.
	out := r.Resample([]float32{0, 0, 0.9, -0.9})
	if len(out) != 8 {
		t.Fatalf("expected 4 stereo frames, got %d samples", len(out))
	}
	if out[0] != 0 || out[1] != 0 {
		t.Fatalf("first frame must match input start, got %v/%v", out[0], out[1])
	}
	if out[6] != 0.9 || out[7] != -0.9 {
		t.Fatalf("last frame must match input end, got %v/%v", out[6], out[7])
	}
	third := float32(0.9) * float32(1.0/3.0)
	if diff := out[2] - third; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("expected ~%v at one third, got %v", third, out[2])
	}
}

func TestResampleSingleFrameHolds(t *testing.T) {
	r := NewResampler(24000, 48000)
	out := r.Resample([]float32{0.25, -0.25})
	if len(out) != 4 {
		t.Fatalf("expected 2 stereo frames, got %d samples", len(out))
	}
	for i := 0; i < 2; i++ {
		if out[i*2] != 0.25 || out[i*2+1] != -0.25 {
			t.Fatalf("held frame mismatch at %d: %v/%v", i, out[i*2], out[i*2+1])
		}
	}
}

func TestResampleDownToSingleFrame(t *testing.T) {
	// Two 96 kHz frames map to one 48 kHz frame. Only one output point
	// exists, so the first input frame is emitted as-is.
	r := NewResampler(96000, 48000)
	out := r.Resample([]float32{0.5, -0.5, 0.1, -0.1})
	if len(out) != 2 {
		t.Fatalf("expected 1 stereo frame, got %d samples", len(out))
	}
	if out[0] != 0.5 || out[1] != -0.5 {
		t.Fatalf("expected first input frame 0.5/-0.5, got %v/%v", out[0], out[1])
	}
	if out[0] != out[0] || out[1] != out[1] {
		t.Fatal("output contains NaN")
	}
}
