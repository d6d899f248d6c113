// Package render displays decoded video in a borderless click-through
// overlay window. It prefers importing the decoder's hardware surface
// directly as a GPU texture, falls back to a hardware blit, and as a last
// resort accepts CPU-converted RGBA pixels for a plain bitmap upload.
package render

import (
	"errors"

	"github.com/snacka-app/media/internal/logging"
)

var log = logging.L("render")

var (
	// ErrNotSupported is returned when no display output can be created
	// on this platform or build.
	ErrNotSupported = errors.New("render: not supported on this platform")

	// ErrHardwarePath is returned by RenderVASurface when neither the
	// zero-copy import nor the hardware blit could present the surface.
	// The caller should downgrade to software conversion and PresentRGBA.
	ErrHardwarePath = errors.New("render: hardware presentation unavailable")
)

// Output is a live overlay window that frames are presented to. All
// methods must be called from the thread that owns the associated GPU
// context; Output does no locking of its own.
type Output interface {
	// NativeView returns the platform window handle for embedding.
	NativeView() uintptr

	// SetDisplaySize resizes the overlay window.
	SetDisplaySize(width, height int)

	// RenderVASurface presents a decoded hardware surface, preferring a
	// zero-copy GPU import and falling back to a hardware blit. Any
	// exported buffer handles are released before the call returns, on
	// the failure paths too. Returns ErrHardwarePath when the caller
	// must fall back to PresentRGBA.
	RenderVASurface(vaDisplay uintptr, surface uint32) error

	// PresentRGBA uploads a CPU RGBA buffer to the window. The universal
	// fallback when no hardware path works.
	PresentRGBA(pix []byte, width, height int) error

	Close()
}

// NewOutput creates the overlay window and GPU context for a video of the
// given size.
func NewOutput(width, height int) (Output, error) {
	return newOutput(width, height)
}
