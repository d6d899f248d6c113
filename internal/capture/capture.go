package capture

import (
	"errors"

	"github.com/snacka-app/media/internal/audio"
	"github.com/snacka-app/media/internal/config"
	"github.com/snacka-app/media/internal/logging"
)

var log = logging.L("capture")

// ErrNotSupported is returned when capture is not supported on the platform.
var ErrNotSupported = errors.New("capture not supported on this platform")

// ErrSourceNotFound is returned when the configured source selection does
// not match any live display, window, or application at session start.
var ErrSourceNotFound = errors.New("capture source not found")

// VideoCapturer delivers tightly packed NV12 frames at the configured
// framerate. The callback must not retain the frame slice past its return.
type VideoCapturer interface {
	Start(onFrame func(frame []byte, timestampMS uint64)) error
	Stop()
}

// AudioUnit is one buffer of interleaved PCM as the OS delivered it.
// Silent units carry no data; the consumer substitutes zeros.
type AudioUnit struct {
	Data        []byte
	Frames      int
	Silent      bool
	TimestampMS uint64
}

// AudioCapturer taps system audio output. Format is valid after Start
// returns and fixed for the lifetime of the capture.
type AudioCapturer interface {
	Format() audio.SampleFormat
	Start(onUnit func(AudioUnit)) error
	Stop()
}

// NewVideoCapturer opens the platform capture backend for the resolved
// source.
func NewVideoCapturer(src Source, cfg config.Capture) (VideoCapturer, error) {
	return newVideoCapturer(src, cfg)
}

// NewAudioCapturer opens a system audio loopback capture. Sessions owned
// by a process in the exclusion set are skipped.
func NewAudioCapturer(exclude map[int32]struct{}) (AudioCapturer, error) {
	return newAudioCapturer(exclude)
}
