package decoder

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/snacka-app/media/internal/render"
)

type fakeBackend struct {
	mu          sync.Mutex
	slots       []int
	failSlots   map[int]bool
	contextDead bool
	readFails   bool
	closed      bool
	width       int
	height      int
}

func (b *fakeBackend) Init(width, height int, sps, pps []byte) error {
	b.width = width
	b.height = height
	return nil
}

func (b *fakeBackend) Decode(slot int, nal []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = append(b.slots, slot)
	if b.contextDead {
		return fmt.Errorf("%w (status 5)", ErrContextInvalid)
	}
	if b.failSlots[slot] {
		return errors.New("submission rejected")
	}
	return nil
}

func (b *fakeBackend) Display() uintptr          { return 0xD15 }
func (b *fakeBackend) SurfaceID(slot int) uint32 { return uint32(100 + slot) }

func (b *fakeBackend) ReadSurface(slot, width, height int) ([]byte, error) {
	if b.readFails {
		return nil, errors.New("readback failed")
	}
	return make([]byte, width*height+width*height/2), nil
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *fakeBackend) decodedSlots() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.slots...)
}

type fakeOutput struct {
	mu        sync.Mutex
	surfaces  []uint32
	rgbaCalls int
	hwFails   bool
	resizedW  int
	resizedH  int
	closed    bool
}

func (o *fakeOutput) NativeView() uintptr { return 0xFE11 }

func (o *fakeOutput) SetDisplaySize(width, height int) {
	o.mu.Lock()
	o.resizedW, o.resizedH = width, height
	o.mu.Unlock()
}

func (o *fakeOutput) RenderVASurface(vaDisplay uintptr, surface uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.hwFails {
		return render.ErrHardwarePath
	}
	o.surfaces = append(o.surfaces, surface)
	return nil
}

func (o *fakeOutput) PresentRGBA(pix []byte, width, height int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(pix) != width*height*4 {
		return errors.New("wrong RGBA length")
	}
	o.rgbaCalls++
	return nil
}

func (o *fakeOutput) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

// testHandle creates a session wired to the given fakes.
func testHandle(t *testing.T, b backend, o render.Output) Handle {
	t.Helper()
	h := Create()
	t.Cleanup(func() { Destroy(h) })
	s := lookup(h)
	if s == nil {
		t.Fatal("fresh handle did not resolve")
	}
	s.do(func() {
		s.newBackend = func() (backend, error) { return b, nil }
		s.newOutput = func(w, hh int) (render.Output, error) { return o, nil }
	})
	return h
}

// testSPS is a hand-built Baseline SPS for a 64x48 stream.
var testSPS = []byte{0x67, 0x42, 0x00, 0x1E, 0xF4, 0x23, 0xC8}

var testPPS = []byte{0x68, 0xCE, 0x38, 0x80}

func TestInitializeAndDecode(t *testing.T) {
	b := &fakeBackend{}
	o := &fakeOutput{}
	h := testHandle(t, b, o)

	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("Initialize failed")
	}
	if !DecodeAndRender(h, []byte{0x65, 0x88, 0x80}, true) {
		t.Fatal("DecodeAndRender failed")
	}
	if got := b.decodedSlots(); len(got) != 1 || got[0] != 0 {
		t.Errorf("decoded slots = %v, want [0]", got)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.surfaces) != 1 || o.surfaces[0] != 100 {
		t.Errorf("rendered surfaces = %v, want [100]", o.surfaces)
	}
}

func TestInitializeRejectsEmptyParameterSets(t *testing.T) {
	h := testHandle(t, &fakeBackend{}, &fakeOutput{})
	if Initialize(h, 64, 48, nil, testPPS) {
		t.Error("Initialize accepted empty SPS")
	}
	if Initialize(h, 64, 48, testSPS, nil) {
		t.Error("Initialize accepted empty PPS")
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	h := testHandle(t, &fakeBackend{}, &fakeOutput{})
	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("first Initialize failed")
	}
	if Initialize(h, 64, 48, testSPS, testPPS) {
		t.Error("second Initialize succeeded, want state machine rejection")
	}
}

func TestDecodeBeforeInitializeFails(t *testing.T) {
	h := testHandle(t, &fakeBackend{}, &fakeOutput{})
	if DecodeAndRender(h, []byte{0x65, 0x88}, true) {
		t.Error("DecodeAndRender succeeded on uninitialized session")
	}
}

func TestCursorAdvancesPastFailedSubmission(t *testing.T) {
	b := &fakeBackend{failSlots: map[int]bool{1: true}}
	o := &fakeOutput{}
	h := testHandle(t, b, o)
	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("Initialize failed")
	}

	nal := []byte{0x61, 0x88}
	results := []bool{
		DecodeAndRender(h, nal, false),
		DecodeAndRender(h, nal, false),
		DecodeAndRender(h, nal, false),
	}
	if results[0] != true || results[1] != false || results[2] != true {
		t.Errorf("results = %v, want [true false true]", results)
	}
	// The failed submission still consumed its slot.
	if got := b.decodedSlots(); len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("decoded slots = %v, want [0 1 2]", got)
	}
}

func TestCursorWrapsAroundPool(t *testing.T) {
	b := &fakeBackend{}
	h := testHandle(t, b, &fakeOutput{})
	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("Initialize failed")
	}
	for i := 0; i < surfacePoolSize+1; i++ {
		DecodeAndRender(h, []byte{0x61, 0x88}, false)
	}
	got := b.decodedSlots()
	if got[len(got)-1] != 0 {
		t.Errorf("slot after full lap = %d, want 0", got[len(got)-1])
	}
}

func TestDeadContextTearsDownSession(t *testing.T) {
	b := &fakeBackend{}
	o := &fakeOutput{}
	h := testHandle(t, b, o)
	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("Initialize failed")
	}
	if !DecodeAndRender(h, []byte{0x65, 0x88}, true) {
		t.Fatal("healthy decode failed")
	}

	b.mu.Lock()
	b.contextDead = true
	b.mu.Unlock()
	if DecodeAndRender(h, []byte{0x61, 0x88}, false) {
		t.Fatal("decode succeeded against a dead context")
	}

	// Context death is session-fatal: resources are released and every
	// later submission fails without touching the backend again.
	b.mu.Lock()
	closed := b.closed
	submissions := len(b.slots)
	b.mu.Unlock()
	if !closed {
		t.Error("backend not closed after context death")
	}
	o.mu.Lock()
	outClosed := o.closed
	o.mu.Unlock()
	if !outClosed {
		t.Error("output not closed after context death")
	}
	if DecodeAndRender(h, []byte{0x61, 0x88}, false) {
		t.Error("decode succeeded on a stopped session")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.slots) != submissions {
		t.Errorf("stopped session still submitted NAL units: %d -> %d", submissions, len(b.slots))
	}
}

func TestSoftwareFallbackWhenHardwarePathFails(t *testing.T) {
	b := &fakeBackend{}
	o := &fakeOutput{hwFails: true}
	h := testHandle(t, b, o)
	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("Initialize failed")
	}
	if !DecodeAndRender(h, []byte{0x65, 0x88}, true) {
		t.Fatal("DecodeAndRender failed, want software fallback to succeed")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rgbaCalls != 1 {
		t.Errorf("PresentRGBA calls = %d, want 1", o.rgbaCalls)
	}
}

func TestFallbackReadbackFailureDropsFrame(t *testing.T) {
	b := &fakeBackend{readFails: true}
	o := &fakeOutput{hwFails: true}
	h := testHandle(t, b, o)
	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("Initialize failed")
	}
	if DecodeAndRender(h, []byte{0x65, 0x88}, true) {
		t.Error("DecodeAndRender succeeded with no working render path")
	}
}

func TestNativeViewAndDisplaySize(t *testing.T) {
	o := &fakeOutput{}
	h := testHandle(t, &fakeBackend{}, o)
	if got := NativeView(h); got != 0 {
		t.Errorf("NativeView before Initialize = %#x, want 0", got)
	}
	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("Initialize failed")
	}
	if got := NativeView(h); got != 0xFE11 {
		t.Errorf("NativeView = %#x, want 0xFE11", got)
	}
	SetDisplaySize(h, 320, 240)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resizedW != 320 || o.resizedH != 240 {
		t.Errorf("resized to %dx%d, want 320x240", o.resizedW, o.resizedH)
	}
}

func TestDestroyedHandleNeverResolves(t *testing.T) {
	h := testHandle(t, &fakeBackend{}, &fakeOutput{})
	Destroy(h)

	if Initialize(h, 64, 48, testSPS, testPPS) {
		t.Error("Initialize succeeded on destroyed handle")
	}
	if DecodeAndRender(h, []byte{0x65}, true) {
		t.Error("DecodeAndRender succeeded on destroyed handle")
	}
	if NativeView(h) != 0 {
		t.Error("NativeView returned a view for a destroyed handle")
	}
	// Destroying again must be harmless.
	Destroy(h)
}

func TestStaleHandleDoesNotResolveToReusedSlot(t *testing.T) {
	h1 := testHandle(t, &fakeBackend{}, &fakeOutput{})
	Destroy(h1)

	// The arena reuses the freed index, bumping its generation.
	h2 := testHandle(t, &fakeBackend{}, &fakeOutput{})
	if h1 == h2 {
		t.Fatal("destroyed handle value was reissued")
	}
	if lookup(h1) != nil {
		t.Error("stale handle resolved to a live session")
	}
	if lookup(h2) == nil {
		t.Error("fresh handle did not resolve")
	}
}

func TestHandleIsNeverZero(t *testing.T) {
	h := testHandle(t, &fakeBackend{}, &fakeOutput{})
	if h == 0 {
		t.Fatal("Create returned zero handle")
	}
	if lookup(0) != nil {
		t.Error("zero handle resolved")
	}
}

func TestDestroyClosesBackendAndOutput(t *testing.T) {
	b := &fakeBackend{}
	o := &fakeOutput{}
	h := Create()
	s := lookup(h)
	s.do(func() {
		s.newBackend = func() (backend, error) { return b, nil }
		s.newOutput = func(w, hh int) (render.Output, error) { return o, nil }
	})
	if !Initialize(h, 64, 48, testSPS, testPPS) {
		t.Fatal("Initialize failed")
	}
	Destroy(h)

	// Teardown runs on the session's own thread; wait for it. The output
	// is closed before the backend, so seeing the backend closed means
	// both are down.
	for {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			break
		}
		time.Sleep(time.Millisecond)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		t.Error("output not closed on destroy")
	}
}
