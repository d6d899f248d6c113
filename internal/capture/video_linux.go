//go:build linux && cgo

package capture

/*
#cgo LDFLAGS: -lX11 -lXext

#include <X11/Xlib.h>
#include <X11/Xutil.h>
#include <sys/ipc.h>
#include <sys/shm.h>
#include <X11/extensions/XShm.h>
#include <string.h>

typedef struct {
    Display* display;
    Window root;
    int screen;
    int width;
    int height;
    int useShm;
    XShmSegmentInfo shmInfo;
    XImage* shmImage;
} GrabContext;

// grabInit opens the X display and sets up an XShm segment when the
// server supports it. Returns 0 on success.
static int grabInit(GrabContext* ctx, int screenIndex) {
    ctx->display = XOpenDisplay(NULL);
    if (ctx->display == NULL) {
        return 1;
    }

    ctx->screen = screenIndex;
    if (ctx->screen >= ScreenCount(ctx->display)) {
        ctx->screen = DefaultScreen(ctx->display);
    }
    ctx->root = RootWindow(ctx->display, ctx->screen);
    ctx->width = DisplayWidth(ctx->display, ctx->screen);
    ctx->height = DisplayHeight(ctx->display, ctx->screen);

    int major, minor;
    Bool pixmaps;
    if (XShmQueryVersion(ctx->display, &major, &minor, &pixmaps)) {
        ctx->shmImage = XShmCreateImage(
            ctx->display,
            DefaultVisual(ctx->display, ctx->screen),
            DefaultDepth(ctx->display, ctx->screen),
            ZPixmap,
            NULL,
            &ctx->shmInfo,
            ctx->width,
            ctx->height
        );
        if (ctx->shmImage != NULL) {
            ctx->shmInfo.shmid = shmget(
                IPC_PRIVATE,
                ctx->shmImage->bytes_per_line * ctx->shmImage->height,
                IPC_CREAT | 0600
            );
            if (ctx->shmInfo.shmid >= 0) {
                ctx->shmInfo.shmaddr = ctx->shmImage->data = shmat(ctx->shmInfo.shmid, 0, 0);
                ctx->shmInfo.readOnly = False;
                if (XShmAttach(ctx->display, &ctx->shmInfo)) {
                    ctx->useShm = 1;
                    return 0;
                }
            }
            XDestroyImage(ctx->shmImage);
            ctx->shmImage = NULL;
        }
    }
    ctx->useShm = 0;
    return 0;
}

// grabFrame captures the root window. Returns the XImage or NULL.
// Non-SHM images must be destroyed by the caller via XDestroyImage.
static XImage* grabFrame(GrabContext* ctx) {
    if (ctx->useShm) {
        if (!XShmGetImage(ctx->display, ctx->root, ctx->shmImage, 0, 0, AllPlanes)) {
            return NULL;
        }
        return ctx->shmImage;
    }
    return XGetImage(ctx->display, ctx->root, 0, 0, ctx->width, ctx->height, AllPlanes, ZPixmap);
}

static void grabDestroyImage(GrabContext* ctx, XImage* img) {
    if (!ctx->useShm && img != NULL) {
        XDestroyImage(img);
    }
}

static void grabClose(GrabContext* ctx) {
    if (ctx->shmImage != NULL) {
        XShmDetach(ctx->display, &ctx->shmInfo);
        shmdt(ctx->shmInfo.shmaddr);
        shmctl(ctx->shmInfo.shmid, IPC_RMID, 0);
        XDestroyImage(ctx->shmImage);
        ctx->shmImage = NULL;
    }
    if (ctx->display != NULL) {
        XCloseDisplay(ctx->display);
        ctx->display = NULL;
    }
    memset(ctx, 0, sizeof(*ctx));
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/snacka-app/media/internal/config"
	"github.com/snacka-app/media/internal/video"
)

func newVideoCapturer(src Source, cfg config.Capture) (VideoCapturer, error) {
	if src.Kind != config.SourceDisplay {
		return nil, fmt.Errorf("%s video capture: %w", src.Kind, ErrNotSupported)
	}

	c := &x11Capturer{
		screen:    src.Display.Index,
		outW:      cfg.Width,
		outH:      cfg.Height,
		framerate: cfg.Framerate,
		done:      make(chan struct{}),
	}
	if rc := C.grabInit(&c.ctx, C.int(src.Display.Index)); rc != 0 {
		return nil, fmt.Errorf("cannot open X display for screen %d", src.Display.Index)
	}
	log.Info("X11 capture initialized",
		"screen", src.Display.Index,
		"native", fmt.Sprintf("%dx%d", int(c.ctx.width), int(c.ctx.height)),
		"shm", c.ctx.useShm != 0)
	return c, nil
}

// x11Capturer grabs the root window of one X screen, through MIT-SHM when
// available.
type x11Capturer struct {
	screen     int
	outW, outH int
	framerate  int

	mu  sync.Mutex
	ctx C.GrabContext

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

func (c *x11Capturer) Start(onFrame func(frame []byte, timestampMS uint64)) error {
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

			c.mu.Lock()
			img := C.grabFrame(&c.ctx)
			if img == nil {
				c.mu.Unlock()
				log.Warn("X11 frame grab failed")
				continue
			}

			w := int(img.width)
			h := int(img.height)
			stride := int(img.bytes_per_line)
			src := unsafe.Slice((*byte)(unsafe.Pointer(img.data)), stride*h)

			scaled := video.ScaleBGRA(src, w, h, stride, c.outW, c.outH)
			nv12 := video.BGRAToNV12(scaled, c.outW, c.outH, c.outW*4)
			C.grabDestroyImage(&c.ctx, img)
			c.mu.Unlock()

			ts := uint64(time.Since(start).Milliseconds())
			onFrame(nv12, ts)
			video.PutFrame(nv12)
		}
	}()
	return nil
}

func (c *x11Capturer) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	c.mu.Lock()
	C.grabClose(&c.ctx)
	c.mu.Unlock()
}
