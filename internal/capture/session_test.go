package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/snacka-app/media/internal/audio"
	"github.com/snacka-app/media/internal/config"
	"github.com/snacka-app/media/internal/video"
	"github.com/snacka-app/media/internal/wire"
)

type fakeVideoCapturer struct {
	frames [][]byte
	emit   func(frame []byte, timestampMS uint64)
	mu     sync.Mutex
}

func (f *fakeVideoCapturer) Start(onFrame func(frame []byte, timestampMS uint64)) error {
	f.mu.Lock()
	f.emit = onFrame
	f.mu.Unlock()
	for i, fr := range f.frames {
		onFrame(fr, uint64(i)*33)
	}
	return nil
}

func (f *fakeVideoCapturer) Stop() {}

type fakeAudioCapturer struct {
	format audio.SampleFormat
	units  []AudioUnit
}

func (f *fakeAudioCapturer) Format() audio.SampleFormat { return f.format }

func (f *fakeAudioCapturer) Start(onUnit func(AudioUnit)) error {
	for _, u := range f.units {
		onUnit(u)
	}
	return nil
}

func (f *fakeAudioCapturer) Stop() {}

// lockedBuffer makes bytes.Buffer safe against the delivery workers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func floatSample(v float32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, math.Float32bits(v))
	return out
}

func TestSessionDeliversFramesAndPackets(t *testing.T) {
	cfg := *config.Default()
	cfg.Width, cfg.Height = 4, 2
	cfg.Audio = true

	frameSize := video.FrameSize(4, 2)
	f1 := bytes.Repeat([]byte{0x11}, frameSize)
	f2 := bytes.Repeat([]byte{0x22}, frameSize)

	var videoBuf, controlBuf lockedBuffer
	s := &Session{
		cfg:      cfg,
		videoCap: &fakeVideoCapturer{frames: [][]byte{f1, f2}},
		audioCap: &fakeAudioCapturer{
			format: audio.SampleFormat{SampleRate: 48000, Channels: 1, BitsPerSample: 32, IsFloat: true},
			units: []AudioUnit{
				{Data: floatSample(1.0), Frames: 1, TimestampMS: 20},
				{Frames: 2, Silent: true, TimestampMS: 40},
			},
		},
		videoOut:  wire.NewVideoWriter(&videoBuf, 4, 2),
		packetOut: wire.NewPacketWriter(&controlBuf),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Give the delivery queues a moment, then stop the session.
	deadline := time.After(2 * time.Second)
	for s.FrameCount() < 2 || s.PacketCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out: frames=%d packets=%d", s.FrameCount(), s.PacketCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	vb := videoBuf.Bytes()
	if len(vb) != 2*frameSize {
		t.Fatalf("expected %d video bytes, got %d", 2*frameSize, len(vb))
	}
	if !bytes.Equal(vb[:frameSize], f1) || !bytes.Equal(vb[frameSize:], f2) {
		t.Fatal("video frames corrupted or reordered")
	}

	sc := wire.NewControlScanner(bytes.NewReader(controlBuf.Bytes()))
	ev, err := sc.Next()
	if err != nil || !ev.IsPacket() {
		t.Fatalf("expected first audio packet, got %+v err=%v", ev, err)
	}
	if ev.Header.SampleCount != 1 || ev.Header.Timestamp != 20 {
		t.Fatalf("first packet header wrong: %+v", ev.Header)
	}
	// Mono full scale duplicates into both stereo channels.
	l := int16(binary.LittleEndian.Uint16(ev.Payload[0:]))
	r := int16(binary.LittleEndian.Uint16(ev.Payload[2:]))
	if l != 32767 || r != 32767 {
		t.Fatalf("expected full scale stereo, got %d/%d", l, r)
	}

	ev, err = sc.Next()
	if err != nil || !ev.IsPacket() {
		t.Fatalf("expected silent packet, got %+v err=%v", ev, err)
	}
	if ev.Header.SampleCount != 2 {
		t.Fatalf("silent packet frame count wrong: %+v", ev.Header)
	}
	for _, b := range ev.Payload {
		if b != 0 {
			t.Fatal("silent packet payload must be zeros")
		}
	}
}

func TestSessionVideoWriteFailureIsFatal(t *testing.T) {
	cfg := *config.Default()
	cfg.Width, cfg.Height = 4, 2

	frame := make([]byte, video.FrameSize(4, 2))
	s := &Session{
		cfg:       cfg,
		videoCap:  &fakeVideoCapturer{frames: [][]byte{frame}},
		videoOut:  wire.NewVideoWriter(failWriter{}, 4, 2),
		packetOut: wire.NewPacketWriter(&bytes.Buffer{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Run(ctx)
	if err == nil || err == context.DeadlineExceeded {
		t.Fatalf("expected fatal write error to end the session, got %v", err)
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, bytes.ErrTooLarge
}
