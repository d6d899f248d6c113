package decoder

import (
	"bytes"
	"errors"
	"runtime"
	"sync"

	"github.com/snacka-app/media/internal/render"
)

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateInitialized
	stateDecoding
	stateStopped
)

func (s sessionState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitialized:
		return "initialized"
	case stateDecoding:
		return "decoding"
	case stateStopped:
		return "stopped"
	}
	return "unknown"
}

// session holds the decode context and renderer for one video stream. The
// GPU and decode contexts are thread-affine, so every field below quit is
// owned by the run goroutine, which locks itself to one OS thread; callers
// reach it only through do.
type session struct {
	cmds     chan func()
	quit     chan struct{}
	quitOnce sync.Once

	// Factories, overridable in tests.
	newBackend func() (backend, error)
	newOutput  func(width, height int) (render.Output, error)

	state   sessionState
	backend backend
	output  render.Output
	width   int
	height  int
	sps     []byte
	pps     []byte
	cursor  int
	drops   uint64
}

func newSession() *session {
	s := &session{
		cmds:       make(chan func()),
		quit:       make(chan struct{}),
		newBackend: newBackend,
		newOutput:  render.NewOutput,
	}
	go s.run()
	return s
}

// run executes session commands on a single locked OS thread. The thread
// is never unlocked; it dies with the goroutine so a context created on it
// can never surface on another thread.
func (s *session) run() {
	runtime.LockOSThread()
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			s.teardown()
			return
		}
	}
}

// do runs fn on the owning thread and waits for it. Returns false without
// running fn if the session has been closed.
func (s *session) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
		<-done
		return true
	case <-s.quit:
		return false
	}
}

// close requests teardown. Safe to call more than once.
func (s *session) close() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *session) teardown() {
	if s.state == stateDecoding || s.state == stateInitialized {
		log.Info("session stopped", "width", s.width, "height", s.height, "dropped", s.drops)
	}
	if s.output != nil {
		s.output.Close()
		s.output = nil
	}
	if s.backend != nil {
		s.backend.Close()
		s.backend = nil
	}
	s.state = stateStopped
}

// initialize allocates the surface pool, decode context, and overlay
// output for the given resolution. Resolution changes require destroying
// the session and creating a new one.
func (s *session) initialize(width, height int, sps, pps []byte) bool {
	if s.state != stateUninitialized {
		log.Warn("initialize called in wrong state", "state", s.state.String())
		return false
	}
	if width <= 0 || height <= 0 || len(sps) == 0 || len(pps) == 0 {
		log.Warn("invalid initialize parameters", "width", width, "height", height,
			"sps_len", len(sps), "pps_len", len(pps))
		return false
	}

	if info, err := ParseSPS(sps); err != nil {
		log.Warn("SPS parse failed, trusting declared resolution", "error", err)
	} else if info.Width != width || info.Height != height {
		log.Warn("SPS resolution differs from declared",
			"declared_width", width, "declared_height", height,
			"sps_width", info.Width, "sps_height", info.Height,
			"codec", info.CodecString())
	}

	b, err := s.newBackend()
	if err != nil {
		log.Error("no decode backend", "error", err)
		return false
	}
	if err := b.Init(width, height, sps, pps); err != nil {
		log.Error("decode context init failed", "error", err)
		b.Close()
		return false
	}

	o, err := s.newOutput(width, height)
	if err != nil {
		log.Error("render output init failed", "error", err)
		b.Close()
		return false
	}

	s.backend = b
	s.output = o
	s.width = width
	s.height = height
	s.sps = bytes.Clone(sps)
	s.pps = bytes.Clone(pps)
	s.cursor = 0
	s.state = stateInitialized

	log.Info("session initialized", "width", width, "height", height,
		"surfaces", surfacePoolSize)
	return true
}

// decodeAndRender submits one NAL unit against the next surface in the
// ring and presents the result. The cursor advances modulo the pool size
// whether or not the submission succeeds, so one bad frame cannot pin the
// ring.
func (s *session) decodeAndRender(nal []byte, keyframe bool) bool {
	if s.state != stateInitialized && s.state != stateDecoding {
		return false
	}
	s.state = stateDecoding

	slot := s.cursor
	s.cursor = (s.cursor + 1) % surfacePoolSize

	if err := s.backend.Decode(slot, nal); err != nil {
		if errors.Is(err, ErrContextInvalid) {
			log.Error("decode context died, tearing session down", "error", err)
			s.teardown()
			return false
		}
		s.drops++
		log.Warn("NAL submission failed, frame dropped",
			"error", err, "slot", slot, "keyframe", keyframe, "dropped", s.drops)
		return false
	}

	// The surface is handed to the renderer for the duration of this one
	// call; ownership returns to the ring when it completes.
	err := s.output.RenderVASurface(s.backend.Display(), s.backend.SurfaceID(slot))
	if err == nil {
		return true
	}

	nv12, rerr := s.backend.ReadSurface(slot, s.width, s.height)
	if rerr != nil {
		log.Warn("software fallback readback failed", "error", rerr)
		return false
	}
	rgba, cerr := render.NV12ToRGBA(nv12, s.width, s.height)
	if cerr != nil {
		log.Warn("software conversion failed", "error", cerr)
		return false
	}
	if perr := s.output.PresentRGBA(rgba, s.width, s.height); perr != nil {
		log.Warn("software upload failed", "error", perr)
		return false
	}
	return true
}

func (s *session) nativeView() uintptr {
	if s.output == nil {
		return 0
	}
	return s.output.NativeView()
}

func (s *session) setDisplaySize(width, height int) {
	if s.output == nil {
		return
	}
	s.output.SetDisplaySize(width, height)
}
