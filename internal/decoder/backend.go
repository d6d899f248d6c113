package decoder

import (
	"errors"

	"github.com/snacka-app/media/internal/logging"
)

var log = logging.L("decoder")

// surfacePoolSize is the number of hardware surfaces allocated per session:
// the H.264 maximum DPB depth plus headroom.
const surfacePoolSize = 17

var (
	// ErrNotSupported is returned when no hardware decode backend exists
	// on this platform or build.
	ErrNotSupported = errors.New("decoder: not supported on this platform")

	// ErrContextInvalid means the hardware decode context itself is dead
	// and the session must be torn down and recreated.
	ErrContextInvalid = errors.New("decoder: decode context invalid")
)

// backend drives the platform hardware decode API for one session. All
// methods are called from the session's owning OS thread, never
// concurrently.
type backend interface {
	// Init allocates the surface pool and decode context for the given
	// resolution. SPS and PPS are raw NAL data without start codes.
	Init(width, height int, sps, pps []byte) error

	// Decode submits one compressed NAL unit against the surface in the
	// given pool slot and blocks until the hardware signals the surface
	// is ready.
	Decode(slot int, nal []byte) error

	// Display returns the platform decode display handle for the render
	// hand-off, and SurfaceID the hardware surface in a pool slot.
	Display() uintptr
	SurfaceID(slot int) uint32

	// ReadSurface copies a decoded surface back to CPU memory as packed
	// NV12, for the software render fallback.
	ReadSurface(slot int, width, height int) ([]byte, error)

	Close()
}

// IsAvailable reports whether hardware H.264 decoding is usable on this
// machine. Static capability probe, no session required.
func IsAvailable() bool {
	return backendAvailable()
}
