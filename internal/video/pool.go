package video

import "sync"

// FrameSize returns the byte length of a tightly packed frame: full
// resolution luma followed by a half-height interleaved chroma plane.
func FrameSize(width, height int) int {
	return width*height + width*height/2
}

// framePool pools packed frame buffers for a fixed resolution. A capture
// session never changes resolution mid-stream, so a single-resolution
// pool is enough; a size mismatch just falls through to allocation.
type framePool struct {
	pool sync.Pool
	w, h int
	mu   sync.Mutex
}

func (p *framePool) Get(w, h int) []byte {
	size := FrameSize(w, h)
	p.mu.Lock()
	if p.w != w || p.h != h {
		p.w, p.h = w, h
		p.pool = sync.Pool{}
	}
	p.mu.Unlock()

	for {
		v := p.pool.Get()
		if v == nil {
			break
		}
		buf := v.([]byte)
		if len(buf) == size {
			return buf
		}
	}
	return make([]byte, size)
}

func (p *framePool) Put(buf []byte) {
	p.mu.Lock()
	w, h := p.w, p.h
	p.mu.Unlock()
	if len(buf) != FrameSize(w, h) {
		return
	}
	p.pool.Put(buf)
}

var frames framePool

// GetFrame returns a packed frame buffer for the given resolution.
func GetFrame(w, h int) []byte { return frames.Get(w, h) }

// PutFrame returns a buffer obtained from GetFrame to the pool.
func PutFrame(buf []byte) { frames.Put(buf) }
