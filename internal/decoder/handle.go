package decoder

import "sync"

// Handle is an opaque reference to a decoder session, suitable for passing
// across an FFI boundary. The zero Handle is never valid. The high 32 bits
// carry a generation counter so a handle left over from a destroyed
// session can never resolve to a later one reusing the same arena index.
type Handle uint64

func (h Handle) index() uint32      { return uint32(h) }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

type handleSlot struct {
	gen uint32
	s   *session
}

// registry is the arena mapping handles to sessions. The mutex guards only
// lookup, insert, and remove; it is always released before any blocking
// hardware work.
var registry struct {
	mu    sync.Mutex
	slots []handleSlot
	free  []uint32
}

// Create allocates a new decoder session in the Uninitialized state and
// returns its handle.
func Create() Handle {
	s := newSession()

	registry.mu.Lock()
	var idx uint32
	if n := len(registry.free); n > 0 {
		idx = registry.free[n-1]
		registry.free = registry.free[:n-1]
	} else {
		// Generations start at 1 so no live handle is ever zero.
		registry.slots = append(registry.slots, handleSlot{gen: 1})
		idx = uint32(len(registry.slots) - 1)
	}
	registry.slots[idx].s = s
	h := Handle(uint64(registry.slots[idx].gen)<<32 | uint64(idx))
	registry.mu.Unlock()

	return h
}

// lookup resolves a handle to its live session, or nil if the handle is
// invalid or was destroyed.
func lookup(h Handle) *session {
	idx := h.index()
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if int(idx) >= len(registry.slots) {
		return nil
	}
	slot := &registry.slots[idx]
	if slot.gen != h.generation() {
		return nil
	}
	return slot.s
}

// Destroy tears down the session behind a handle. The handle is retired
// immediately; the session teardown happens on its owning thread. Invalid
// handles are ignored.
func Destroy(h Handle) {
	idx := h.index()

	registry.mu.Lock()
	if int(idx) >= len(registry.slots) {
		registry.mu.Unlock()
		return
	}
	slot := &registry.slots[idx]
	if slot.gen != h.generation() || slot.s == nil {
		registry.mu.Unlock()
		return
	}
	s := slot.s
	slot.s = nil
	slot.gen++
	registry.free = append(registry.free, idx)
	registry.mu.Unlock()

	s.close()
}

// Initialize supplies the target resolution and the stream's SPS/PPS
// parameter sets (raw NAL data, no start codes), allocating the hardware
// surface pool and decode context. Returns false on an invalid handle or
// initialization failure.
func Initialize(h Handle, width, height int, sps, pps []byte) bool {
	s := lookup(h)
	if s == nil {
		return false
	}
	ok := false
	if !s.do(func() { ok = s.initialize(width, height, sps, pps) }) {
		return false
	}
	return ok
}

// DecodeAndRender submits one compressed H.264 NAL unit and presents the
// decoded picture. Blocks until the hardware surface is ready. Returns
// false on an invalid handle, a dropped frame, or a render failure; a
// false return does not invalidate the session.
func DecodeAndRender(h Handle, nal []byte, keyframe bool) bool {
	s := lookup(h)
	if s == nil {
		return false
	}
	ok := false
	if !s.do(func() { ok = s.decodeAndRender(nal, keyframe) }) {
		return false
	}
	return ok
}

// NativeView returns the platform window handle of the session's overlay
// for embedding, or 0 if the handle is invalid or the session is not
// initialized.
func NativeView(h Handle) uintptr {
	s := lookup(h)
	if s == nil {
		return 0
	}
	var view uintptr
	s.do(func() { view = s.nativeView() })
	return view
}

// SetDisplaySize resizes the session's overlay window. Invalid handles
// are ignored.
func SetDisplaySize(h Handle, width, height int) {
	s := lookup(h)
	if s == nil {
		return
	}
	s.do(func() { s.setDisplaySize(width, height) })
}
