//go:build windows

package capture

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/snacka-app/media/internal/config"
	"github.com/snacka-app/media/internal/video"
)

var (
	gdi32DLL = windows.NewLazySystemDLL("gdi32.dll")

	procGetWindowDC            = user32DLL.NewProc("GetWindowDC")
	procReleaseDC              = user32DLL.NewProc("ReleaseDC")
	procGetClientRect          = user32DLL.NewProc("GetClientRect")
	procPrintWindow            = user32DLL.NewProc("PrintWindow")
	procIsWindow               = user32DLL.NewProc("IsWindow")
	procCreateCompatibleDC     = gdi32DLL.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32DLL.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32DLL.NewProc("SelectObject")
	procDeleteDC               = gdi32DLL.NewProc("DeleteDC")
	procDeleteObject           = gdi32DLL.NewProc("DeleteObject")
	procGetDIBits              = gdi32DLL.NewProc("GetDIBits")
)

const (
	pwRenderFullContent = 0x2
	biRGB               = 0
	dibRGBColors        = 0
)

type winRect struct {
	Left, Top, Right, Bottom int32
}

type bitmapInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct {
	BmiHeader bitmapInfoHeader
	BmiColors [1]uint32
}

// gdiWindowCapturer captures a single window via PrintWindow into a DIB.
// GDI handles are created once and reused across frames.
type gdiWindowCapturer struct {
	hwnd       uintptr
	outW, outH int
	framerate  int

	mu        sync.Mutex
	windowDC  uintptr
	memDC     uintptr
	hBitmap   uintptr
	oldBitmap uintptr
	width     int
	height    int
	pixBuf    []byte

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

func newGDIWindowCapturer(w Window, cfg config.Capture) (*gdiWindowCapturer, error) {
	c := &gdiWindowCapturer{
		hwnd:      uintptr(w.ID),
		outW:      cfg.Width,
		outH:      cfg.Height,
		framerate: cfg.Framerate,
		done:      make(chan struct{}),
	}
	if err := c.ensureHandles(); err != nil {
		return nil, err
	}
	log.Info("GDI window capture initialized",
		"window", w.ID, "title", w.Title,
		"native", fmt.Sprintf("%dx%d", c.width, c.height))
	return c, nil
}

func (c *gdiWindowCapturer) ensureHandles() error {
	alive, _, _ := procIsWindow.Call(c.hwnd)
	if alive == 0 {
		return fmt.Errorf("window %#x: %w", c.hwnd, ErrSourceNotFound)
	}

	var rect winRect
	ok, _, _ := procGetClientRect.Call(c.hwnd, uintptr(unsafe.Pointer(&rect)))
	if ok == 0 {
		return fmt.Errorf("GetClientRect failed for window %#x", c.hwnd)
	}
	width := int(rect.Right - rect.Left)
	height := int(rect.Bottom - rect.Top)
	if width <= 0 || height <= 0 {
		return fmt.Errorf("window %#x has empty client area", c.hwnd)
	}

	if c.memDC != 0 && c.width == width && c.height == height {
		return nil
	}
	c.releaseHandles()

	windowDC, _, _ := procGetWindowDC.Call(c.hwnd)
	if windowDC == 0 {
		return fmt.Errorf("GetWindowDC failed for window %#x", c.hwnd)
	}
	memDC, _, _ := procCreateCompatibleDC.Call(windowDC)
	if memDC == 0 {
		procReleaseDC.Call(c.hwnd, windowDC)
		return fmt.Errorf("CreateCompatibleDC failed")
	}
	hBitmap, _, _ := procCreateCompatibleBitmap.Call(windowDC, uintptr(width), uintptr(height))
	if hBitmap == 0 {
		procDeleteDC.Call(memDC)
		procReleaseDC.Call(c.hwnd, windowDC)
		return fmt.Errorf("CreateCompatibleBitmap failed")
	}
	oldBitmap, _, _ := procSelectObject.Call(memDC, hBitmap)

	c.windowDC = windowDC
	c.memDC = memDC
	c.hBitmap = hBitmap
	c.oldBitmap = oldBitmap
	c.width = width
	c.height = height
	c.pixBuf = make([]byte, width*height*4)
	return nil
}

func (c *gdiWindowCapturer) releaseHandles() {
	if c.memDC != 0 {
		if c.oldBitmap != 0 {
			procSelectObject.Call(c.memDC, c.oldBitmap)
		}
		procDeleteObject.Call(c.hBitmap)
		procDeleteDC.Call(c.memDC)
	}
	if c.windowDC != 0 {
		procReleaseDC.Call(c.hwnd, c.windowDC)
	}
	c.windowDC, c.memDC, c.hBitmap, c.oldBitmap = 0, 0, 0, 0
}

func (c *gdiWindowCapturer) Start(onFrame func(frame []byte, timestampMS uint64)) error {
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

			bgra, w, h, err := c.captureBGRA()
			if err != nil {
				log.Warn("window capture failed", "error", err)
				continue
			}

			scaled := video.ScaleBGRA(bgra, w, h, w*4, c.outW, c.outH)
			nv12 := video.BGRAToNV12(scaled, c.outW, c.outH, c.outW*4)
			ts := uint64(time.Since(start).Milliseconds())
			onFrame(nv12, ts)
			video.PutFrame(nv12)
		}
	}()
	return nil
}

func (c *gdiWindowCapturer) captureBGRA() ([]byte, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Window may have been resized or closed between frames.
	if err := c.ensureHandles(); err != nil {
		return nil, 0, 0, err
	}

	ok, _, _ := procPrintWindow.Call(c.hwnd, c.memDC, pwRenderFullContent)
	if ok == 0 {
		return nil, 0, 0, fmt.Errorf("PrintWindow failed for window %#x", c.hwnd)
	}

	bi := bitmapInfo{
		BmiHeader: bitmapInfoHeader{
			BiSize:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
			BiWidth:       int32(c.width),
			BiHeight:      -int32(c.height), // top-down
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: biRGB,
		},
	}
	lines, _, _ := procGetDIBits.Call(
		c.memDC,
		c.hBitmap,
		0,
		uintptr(c.height),
		uintptr(unsafe.Pointer(&c.pixBuf[0])),
		uintptr(unsafe.Pointer(&bi)),
		dibRGBColors,
	)
	if int(lines) != c.height {
		return nil, 0, 0, fmt.Errorf("GetDIBits copied %d of %d lines", lines, c.height)
	}
	return c.pixBuf, c.width, c.height, nil
}

func (c *gdiWindowCapturer) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	c.mu.Lock()
	c.releaseHandles()
	c.mu.Unlock()
}
