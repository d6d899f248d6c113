package video

import (
	"bytes"
	"testing"
)

func TestFrameSize(t *testing.T) {
	if got := FrameSize(1920, 1080); got != 3110400 {
		t.Fatalf("expected 3110400, got %d", got)
	}
	if got := FrameSize(2, 2); got != 6 {
		t.Fatalf("expected 6, got %d", got)
	}
}

func TestPackNV12TightInput(t *testing.T) {
	// 4x2, stride == width: pack is a straight copy.
	src := make([]byte, FrameSize(4, 2))
	for i := range src {
		src[i] = byte(i)
	}
	dst, err := PackNV12(src, 4, 2, 4)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	defer PutFrame(dst)
	if !bytes.Equal(dst, src) {
		t.Fatalf("tight pack must equal input: %v vs %v", dst, src)
	}
}

func TestPackNV12DropsStridePadding(t *testing.T) {
	const (
		width  = 4
		height = 2
		stride = 8
	)
	// Luma rows carry 4 padding bytes of 0xEE, chroma row likewise.
	src := []byte{
		1, 2, 3, 4, 0xEE, 0xEE, 0xEE, 0xEE,
		5, 6, 7, 8, 0xEE, 0xEE, 0xEE, 0xEE,
		9, 10, 11, 12, 0xEE, 0xEE, 0xEE, 0xEE,
	}
	dst, err := PackNV12(src, width, height, stride)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	defer PutFrame(dst)

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if !bytes.Equal(dst, want) {
		t.Fatalf("expected %v, got %v", want, dst)
	}
}

func TestPackNV12RejectsShortBuffer(t *testing.T) {
	if _, err := PackNV12(make([]byte, 5), 4, 2, 4); err == nil {
		t.Fatal("expected error for short source buffer")
	}
	if _, err := PackNV12(make([]byte, 64), 8, 2, 4); err == nil {
		t.Fatal("expected error for stride smaller than width")
	}
}

func TestBGRAToNV12_2x2(t *testing.T) {
	// (0,0)=red (1,0)=green (0,1)=blue (1,1)=white, BGRA byte order.
	bgra := []byte{
		0, 0, 255, 255, 0, 255, 0, 255,
		255, 0, 0, 255, 255, 255, 255, 255,
	}

	nv12 := BGRAToNV12(bgra, 2, 2, 2*4)
	defer PutFrame(nv12)

	if len(nv12) != 6 {
		t.Fatalf("expected nv12 length 6, got %d", len(nv12))
	}

	// Integer BT.601 math: Y plane [red, green, blue, white], UV
	// subsampled from pixel (0,0)=red.
	want := []byte{
		82, 144,
		41, 235,
		90, 240,
	}
	for i := range want {
		if nv12[i] != want[i] {
			t.Fatalf("byte[%d]: expected %d, got %d (nv12=%v)", i, want[i], nv12[i], nv12)
		}
	}
}

func TestBGRAToNV12ShortInputYieldsBlack(t *testing.T) {
	nv12 := BGRAToNV12(make([]byte, 3), 2, 2, 8)
	defer PutFrame(nv12)
	for i, b := range nv12 {
		if b != 0 {
			t.Fatalf("expected zeroed frame, byte %d is %d", i, b)
		}
	}
}

func TestScaleBGRA(t *testing.T) {
	// 2x2 down to 1x1 picks the top-left pixel.
	src := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		9, 10, 11, 12, 13, 14, 15, 16,
	}
	got := ScaleBGRA(src, 2, 2, 8, 1, 1)
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("expected top-left pixel, got %v", got)
	}

	// Identity with tight stride returns the input as-is.
	if same := ScaleBGRA(src, 2, 2, 8, 2, 2); &same[0] != &src[0] {
		t.Fatal("identity scale should not copy")
	}

	// Padding-only repack: same dims, wider stride.
	padded := []byte{
		1, 2, 3, 4, 0xEE, 0xEE, 0xEE, 0xEE,
		5, 6, 7, 8, 0xEE, 0xEE, 0xEE, 0xEE,
	}
	got = ScaleBGRA(padded, 1, 2, 8, 1, 2)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("expected padding dropped, got %v", got)
	}
}

func TestFramePoolReusesMatchingSize(t *testing.T) {
	a := GetFrame(4, 2)
	PutFrame(a)
	b := GetFrame(4, 2)
	if len(b) != FrameSize(4, 2) {
		t.Fatalf("pooled buffer wrong size: %d", len(b))
	}
	PutFrame(b)

	// Resolution change resets the pool; stale sizes are not returned.
	c := GetFrame(8, 4)
	if len(c) != FrameSize(8, 4) {
		t.Fatalf("expected fresh buffer of %d, got %d", FrameSize(8, 4), len(c))
	}
	PutFrame(c)
}
