package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
)

func TestHeaderIsAlways24Bytes(t *testing.T) {
	h := NewAudioPacketHeader(960, 12345)
	b := h.Marshal()
	if len(b) != 24 {
		t.Fatalf("expected 24-byte header, got %d", len(b))
	}
	if got := binary.LittleEndian.Uint32(b[0:4]); got != Magic {
		t.Fatalf("expected magic 0x%08X, got 0x%08X", Magic, got)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := NewAudioPacketHeader(960, 20)
	b := h.Marshal()

	got, err := UnmarshalAudioPacketHeader(b[:])
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: expected %+v, got %+v", h, got)
	}
	if got.BitsPerSample != 16 || got.Channels != 2 || got.IsFloat != 0 || got.SampleRate != 48000 {
		t.Fatalf("normalized header fields wrong: %+v", got)
	}
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b, 0xDEADBEEF)
	if _, err := UnmarshalAudioPacketHeader(b); err == nil {
		t.Fatal("expected error for bad magic")
	}
	if _, err := UnmarshalAudioPacketHeader(b[:10]); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestPayloadLenMatchesSampleCount(t *testing.T) {
	h := NewAudioPacketHeader(960, 0)
	if h.PayloadLen() != 960*OutBytesPerFrame {
		t.Fatalf("expected payload 3840, got %d", h.PayloadLen())
	}
}

func TestPacketWriterTotalSize(t *testing.T) {
	// 960 stereo frames (20ms at 48kHz) must serialize to 24 + 3840 bytes.
	var buf bytes.Buffer
	pw := NewPacketWriter(&buf)

	h := NewAudioPacketHeader(960, 40)
	payload := make([]byte, 960*4)
	if err := pw.WritePacket(h, payload); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	if buf.Len() != 3864 {
		t.Fatalf("expected 3864 bytes on the wire, got %d", buf.Len())
	}
}

func TestPacketWriterRejectsLengthMismatch(t *testing.T) {
	pw := NewPacketWriter(&bytes.Buffer{})
	h := NewAudioPacketHeader(960, 0)
	if err := pw.WritePacket(h, make([]byte, 100)); err == nil {
		t.Fatal("expected error for payload/header mismatch")
	}
}

func TestControlScannerSeparatesTextAndPackets(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("capture started 1920x1080\n")

	pw := NewPacketWriter(&buf)
	payload := make([]byte, 4*4)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := pw.WritePacket(NewAudioPacketHeader(4, 100), payload); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	buf.WriteString("frame 1 emitted\n")

	sc := NewControlScanner(&buf)

	ev, err := sc.Next()
	if err != nil || ev.IsPacket() || ev.Line != "capture started 1920x1080" {
		t.Fatalf("expected first log line, got %+v err=%v", ev, err)
	}

	ev, err = sc.Next()
	if err != nil || !ev.IsPacket() {
		t.Fatalf("expected packet, got %+v err=%v", ev, err)
	}
	if ev.Header.SampleCount != 4 || ev.Header.Timestamp != 100 {
		t.Fatalf("packet header wrong: %+v", ev.Header)
	}
	if !bytes.Equal(ev.Payload, payload) {
		t.Fatalf("payload mismatch: %v", ev.Payload)
	}

	ev, err = sc.Next()
	if err != nil || ev.Line != "frame 1 emitted" {
		t.Fatalf("expected second log line, got %+v err=%v", ev, err)
	}

	if _, err := sc.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestControlScannerPacketInterruptsLine(t *testing.T) {
	// A packet can land mid-line; the partial text must still come out
	// first, in stream order.
	var buf bytes.Buffer
	buf.WriteString("partial diagnostic")
	pw := NewPacketWriter(&buf)
	if err := pw.WritePacket(NewAudioPacketHeader(1, 7), make([]byte, 4)); err != nil {
		t.Fatalf("write packet: %v", err)
	}

	sc := NewControlScanner(&buf)
	ev, err := sc.Next()
	if err != nil || ev.IsPacket() || ev.Line != "partial diagnostic" {
		t.Fatalf("expected interrupted text first, got %+v err=%v", ev, err)
	}
	ev, err = sc.Next()
	if err != nil || !ev.IsPacket() {
		t.Fatalf("expected packet after text, got %+v err=%v", ev, err)
	}
}

func TestControlScannerIgnoresLoneMagicByte(t *testing.T) {
	// 'P' alone (first magic byte) inside text must not trigger packet
	// parsing.
	r := strings.NewReader("PTS jumped\n")
	sc := NewControlScanner(r)
	ev, err := sc.Next()
	if err != nil || ev.IsPacket() || ev.Line != "PTS jumped" {
		t.Fatalf("expected text line, got %+v err=%v", ev, err)
	}
}

func TestControlScannerTruncatedPacket(t *testing.T) {
	h := NewAudioPacketHeader(960, 0)
	b := h.Marshal()
	r := bytes.NewReader(b[:]) // header but no payload
	sc := NewControlScanner(r)
	if _, err := sc.Next(); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestVideoFrameSize(t *testing.T) {
	cases := []struct {
		w, h, want int
	}{
		{1920, 1080, 3110400},
		{1280, 720, 1382400},
		{2, 2, 6},
		{640, 480, 460800},
	}
	for _, tc := range cases {
		if got := VideoFrameSize(tc.w, tc.h); got != tc.want {
			t.Fatalf("VideoFrameSize(%d,%d): expected %d, got %d", tc.w, tc.h, tc.want, got)
		}
	}
}

func TestVideoWriterRejectsWrongLength(t *testing.T) {
	vw := NewVideoWriter(&bytes.Buffer{}, 4, 2)
	if err := vw.WriteFrame(make([]byte, 5)); err == nil {
		t.Fatal("expected error for wrong frame length")
	}
	if err := vw.WriteFrame(make([]byte, 12)); err != nil {
		t.Fatalf("expected 12-byte frame accepted for 4x2, got %v", err)
	}
}

func TestVideoRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	vw := NewVideoWriter(&buf, 4, 2)

	f1 := bytes.Repeat([]byte{0xAA}, VideoFrameSize(4, 2))
	f2 := bytes.Repeat([]byte{0x55}, VideoFrameSize(4, 2))
	if err := vw.WriteFrame(f1); err != nil {
		t.Fatalf("write f1: %v", err)
	}
	if err := vw.WriteFrame(f2); err != nil {
		t.Fatalf("write f2: %v", err)
	}

	vr := NewVideoReader(&buf, 4, 2)
	got1, err := vr.ReadFrame()
	if err != nil || !bytes.Equal(got1, f1) {
		t.Fatalf("frame 1 mismatch, err=%v", err)
	}
	got2, err := vr.ReadFrame()
	if err != nil || !bytes.Equal(got2, f2) {
		t.Fatalf("frame 2 mismatch, err=%v", err)
	}
	if _, err := vr.ReadFrame(); err != io.EOF {
		t.Fatalf("expected EOF at clean boundary, got %v", err)
	}
}

func TestVideoReaderMidFrameEOF(t *testing.T) {
	data := make([]byte, VideoFrameSize(4, 2)-3)
	vr := NewVideoReader(bytes.NewReader(data), 4, 2)
	if _, err := vr.ReadFrame(); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}
