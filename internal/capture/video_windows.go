//go:build windows

package capture

import (
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/snacka-app/media/internal/config"
	"github.com/snacka-app/media/internal/video"
)

func newVideoCapturer(src Source, cfg config.Capture) (VideoCapturer, error) {
	switch src.Kind {
	case config.SourceDisplay:
		c := &dxgiVideoCapturer{
			displayIndex: src.Display.Index,
			outW:         cfg.Width,
			outH:         cfg.Height,
			framerate:    cfg.Framerate,
			done:         make(chan struct{}),
		}
		if err := c.initDXGI(); err != nil {
			return nil, err
		}
		log.Info("DXGI duplication capture initialized",
			"display", src.Display.Index, "native", fmt.Sprintf("%dx%d", c.width, c.height),
			"output", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
		return c, nil
	case config.SourceWindow:
		return newGDIWindowCapturer(src.Window, cfg)
	default:
		// Pixel capture of a whole application is a macOS concept; on
		// Windows the application selector only drives audio exclusion.
		return nil, fmt.Errorf("application video capture: %w", ErrNotSupported)
	}
}

// dxgiVideoCapturer captures one display via DXGI Desktop Duplication and
// converts frames to packed NV12 at the configured output resolution.
type dxgiVideoCapturer struct {
	displayIndex int
	outW, outH   int
	framerate    int

	mu sync.Mutex

	device      uintptr // ID3D11Device
	context     uintptr // ID3D11DeviceContext
	duplication uintptr // IDXGIOutputDuplication
	staging     uintptr // ID3D11Texture2D (staging, CPU-readable)

	width  int // native duplication dimensions
	height int
	inited bool

	// Last converted frame, re-emitted when the desktop is idle so the
	// stream keeps its constant frame cadence.
	lastBGRA []byte

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

func (c *dxgiVideoCapturer) initDXGI() error {
	var device, context uintptr
	featureLevel := uint32(d3dFeatureLevel11_0)
	var actualLevel uint32

	hr, _, _ := procD3D11CreateDevice.Call(
		0,
		uintptr(d3dDriverTypeHardware),
		0,
		uintptr(d3d11CreateDeviceBGRASupport),
		uintptr(unsafe.Pointer(&featureLevel)),
		1,
		uintptr(d3d11SDKVersion),
		uintptr(unsafe.Pointer(&device)),
		uintptr(unsafe.Pointer(&actualLevel)),
		uintptr(unsafe.Pointer(&context)),
	)
	if int32(hr) < 0 {
		return fmt.Errorf("D3D11CreateDevice failed: 0x%08X", uint32(hr))
	}

	fail := func(err error) error {
		comRelease(context)
		comRelease(device)
		return err
	}

	var dxgiDevice uintptr
	_, err := comCall(device, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIDevice)),
		uintptr(unsafe.Pointer(&dxgiDevice)),
	)
	if err != nil {
		return fail(fmt.Errorf("QueryInterface IDXGIDevice: %w", err))
	}
	defer comRelease(dxgiDevice)

	var adapter uintptr
	_, err = comCall(dxgiDevice, dxgiDeviceGetAdapter, uintptr(unsafe.Pointer(&adapter)))
	if err != nil {
		return fail(fmt.Errorf("IDXGIDevice::GetAdapter: %w", err))
	}
	defer comRelease(adapter)

	var output uintptr
	_, err = comCall(adapter, dxgiAdapterEnumOutputs,
		uintptr(c.displayIndex),
		uintptr(unsafe.Pointer(&output)),
	)
	if err != nil {
		return fail(fmt.Errorf("IDXGIAdapter::EnumOutputs(%d): %w", c.displayIndex, err))
	}

	var output1 uintptr
	_, err = comCall(output, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIOutput1)),
		uintptr(unsafe.Pointer(&output1)),
	)
	comRelease(output)
	if err != nil {
		return fail(fmt.Errorf("QueryInterface IDXGIOutput1: %w", err))
	}
	defer comRelease(output1)

	var duplication uintptr
	_, err = comCall(output1, dxgiOutput1DuplicateOutput,
		device,
		uintptr(unsafe.Pointer(&duplication)),
	)
	if err != nil {
		return fail(fmt.Errorf("IDXGIOutput1::DuplicateOutput: %w", err))
	}

	// Output dimensions come from GetDesc; probing with AcquireNextFrame
	// can time out during init when the desktop is idle.
	var duplDesc dxgiOutDuplDesc
	hrGetDesc, _, _ := syscall.SyscallN(
		comVtblFn(duplication, dxgiDuplGetDesc),
		duplication,
		uintptr(unsafe.Pointer(&duplDesc)),
	)
	if int32(hrGetDesc) < 0 {
		comRelease(duplication)
		return fail(fmt.Errorf("IDXGIOutputDuplication::GetDesc failed: 0x%08X", uint32(hrGetDesc)))
	}
	width := int(duplDesc.ModeDesc.Width)
	height := int(duplDesc.ModeDesc.Height)
	if width <= 0 || height <= 0 {
		comRelease(duplication)
		return fail(fmt.Errorf("invalid duplication dimensions: %dx%d", width, height))
	}

	stagingDesc := d3d11Texture2DDesc{
		Width:          uint32(width),
		Height:         uint32(height),
		MipLevels:      1,
		ArraySize:      1,
		Format:         dxgiFormatB8G8R8A8,
		SampleCount:    1,
		Usage:          d3d11UsageStaging,
		CPUAccessFlags: d3d11CPUAccessRead,
	}
	var staging uintptr
	_, err = comCall(device, d3d11DeviceCreateTexture2D,
		uintptr(unsafe.Pointer(&stagingDesc)),
		0,
		uintptr(unsafe.Pointer(&staging)),
	)
	if err != nil {
		comRelease(duplication)
		return fail(fmt.Errorf("CreateTexture2D staging: %w", err))
	}

	c.device = device
	c.context = context
	c.duplication = duplication
	c.staging = staging
	c.width = width
	c.height = height
	c.inited = true
	return nil
}

func (c *dxgiVideoCapturer) Start(onFrame func(frame []byte, timestampMS uint64)) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("video capturer already started")
	}
	c.started = true
	c.mu.Unlock()

	interval := time.Second / time.Duration(c.framerate)
	start := time.Now()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
			}

			bgra, stride, err := c.acquireBGRA()
			if err != nil {
				log.Warn("frame acquisition failed", "error", err)
				continue
			}
			if bgra == nil {
				// No desktop update since the last frame; repeat the
				// previous image to hold the cadence.
				if c.lastBGRA == nil {
					continue
				}
				bgra, stride = c.lastBGRA, c.width*4
			} else {
				c.lastBGRA = bgra
			}

			scaled := video.ScaleBGRA(bgra, c.width, c.height, stride, c.outW, c.outH)
			nv12 := video.BGRAToNV12(scaled, c.outW, c.outH, c.outW*4)
			ts := uint64(time.Since(start).Milliseconds())
			onFrame(nv12, ts)
			video.PutFrame(nv12)
		}
	}()
	return nil
}

// acquireBGRA grabs the next desktop frame into a tightly packed BGRA
// buffer. Returns nil with no error when the desktop has not changed.
func (c *dxgiVideoCapturer) acquireBGRA() ([]byte, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inited {
		return nil, 0, fmt.Errorf("capturer not initialized")
	}

	var frameInfo dxgiOutDuplFrameInfo
	var resource uintptr

	hr, _, _ := syscall.SyscallN(
		comVtblFn(c.duplication, dxgiDuplAcquireNextFrame),
		c.duplication,
		uintptr(0), // no wait, the ticker paces us
		uintptr(unsafe.Pointer(&frameInfo)),
		uintptr(unsafe.Pointer(&resource)),
	)
	switch uint32(hr) {
	case dxgiErrWaitTimeout:
		return nil, 0, nil
	case dxgiErrAccessLost, dxgiErrDeviceRemoved, dxgiErrDeviceReset:
		log.Warn("DXGI access lost, reinitializing", "hr", fmt.Sprintf("0x%08X", uint32(hr)))
		c.releaseDXGI()
		if err := c.initDXGI(); err != nil {
			return nil, 0, fmt.Errorf("reinit after access lost: %w", err)
		}
		return nil, 0, nil
	}
	if int32(hr) < 0 {
		return nil, 0, fmt.Errorf("AcquireNextFrame: 0x%08X", uint32(hr))
	}

	releaseFrame := func() {
		syscall.SyscallN(comVtblFn(c.duplication, dxgiDuplReleaseFrame), c.duplication)
	}

	if frameInfo.AccumulatedFrames == 0 {
		comRelease(resource)
		releaseFrame()
		return nil, 0, nil
	}

	var texture uintptr
	_, err := comCall(resource, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidID3D11Texture2D)),
		uintptr(unsafe.Pointer(&texture)),
	)
	comRelease(resource)
	if err != nil {
		releaseFrame()
		return nil, 0, fmt.Errorf("QueryInterface ID3D11Texture2D: %w", err)
	}

	syscall.SyscallN(comVtblFn(c.context, d3d11CtxCopyResource), c.context, c.staging, texture)
	comRelease(texture)
	releaseFrame()

	var mapped d3d11MappedSubresource
	hrMap, _, _ := syscall.SyscallN(
		comVtblFn(c.context, d3d11CtxMap),
		c.context,
		c.staging,
		0, // subresource
		uintptr(1), // D3D11_MAP_READ
		0,
		uintptr(unsafe.Pointer(&mapped)),
	)
	if int32(hrMap) < 0 {
		return nil, 0, fmt.Errorf("Map staging: 0x%08X", uint32(hrMap))
	}
	defer syscall.SyscallN(comVtblFn(c.context, d3d11CtxUnmap), c.context, c.staging, 0)

	stride := int(mapped.RowPitch)
	src := unsafe.Slice((*byte)(unsafe.Pointer(mapped.PData)), stride*c.height)

	// Copy out while mapped, packing rows tight.
	out := make([]byte, c.width*4*c.height)
	for y := 0; y < c.height; y++ {
		copy(out[y*c.width*4:(y+1)*c.width*4], src[y*stride:])
	}
	return out, c.width * 4, nil
}

func (c *dxgiVideoCapturer) releaseDXGI() {
	comRelease(c.staging)
	comRelease(c.duplication)
	comRelease(c.context)
	comRelease(c.device)
	c.staging, c.duplication, c.context, c.device = 0, 0, 0, 0
	c.inited = false
}

func (c *dxgiVideoCapturer) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	c.mu.Lock()
	c.releaseDXGI()
	c.mu.Unlock()
}
