//go:build linux && cgo

package decoder

/*
#cgo LDFLAGS: -lva -lva-x11 -lva-drm -lX11
#include <stdlib.h>
#include <string.h>
#include <fcntl.h>
#include <unistd.h>
#include <X11/Xlib.h>
#include <va/va.h>
#include <va/va_x11.h>
#include <va/va_drm.h>

#define SNK_NUM_SURFACES 17

typedef struct SnkDecoder {
    Display*    xdpy;
    int         drmFd;
    VADisplay   vaDpy;
    int         vaInit;
    VAConfigID  cfg;
    VAContextID ctx;
    VASurfaceID surfaces[SNK_NUM_SURFACES];
    int         haveSurfaces;
    int         width;
    int         height;
} SnkDecoder;

static int snkHasH264(VADisplay vaDpy) {
    int num = vaMaxNumProfiles(vaDpy);
    VAProfile* profiles = (VAProfile*)malloc(num * sizeof(VAProfile));
    if (!profiles) return 0;

    int found = 0;
    if (vaQueryConfigProfiles(vaDpy, profiles, &num) == VA_STATUS_SUCCESS) {
        for (int i = 0; i < num; i++) {
            if (profiles[i] == VAProfileH264Main ||
                profiles[i] == VAProfileH264High ||
                profiles[i] == VAProfileH264ConstrainedBaseline) {
                found = 1;
                break;
            }
        }
    }
    free(profiles);
    return found;
}

// Probes for VA-API H.264 decode, trying the X11 display first and the
// DRM render node as a fallback.
static int snkVaAvailable(void) {
    int major, minor;

    Display* xdpy = XOpenDisplay(NULL);
    if (xdpy) {
        VADisplay vaDpy = vaGetDisplay(xdpy);
        if (vaDpy && vaInitialize(vaDpy, &major, &minor) == VA_STATUS_SUCCESS) {
            int ok = snkHasH264(vaDpy);
            vaTerminate(vaDpy);
            XCloseDisplay(xdpy);
            return ok;
        }
        XCloseDisplay(xdpy);
    }

    int drmFd = open("/dev/dri/renderD128", O_RDWR);
    if (drmFd < 0) return 0;
    VADisplay vaDpy = vaGetDisplayDRM(drmFd);
    if (!vaDpy || vaInitialize(vaDpy, &major, &minor) != VA_STATUS_SUCCESS) {
        close(drmFd);
        return 0;
    }
    int ok = snkHasH264(vaDpy);
    vaTerminate(vaDpy);
    close(drmFd);
    return ok;
}

static SnkDecoder* snkDecoderCreate(void) {
    SnkDecoder* d = (SnkDecoder*)calloc(1, sizeof(SnkDecoder));
    if (!d) return NULL;
    d->drmFd = -1;
    d->cfg = VA_INVALID_ID;
    d->ctx = VA_INVALID_ID;
    return d;
}

static void snkDecoderDestroy(SnkDecoder* d) {
    if (!d) return;
    if (d->vaInit) {
        if (d->ctx != VA_INVALID_ID) {
            vaDestroyContext(d->vaDpy, d->ctx);
        }
        if (d->haveSurfaces) {
            vaDestroySurfaces(d->vaDpy, d->surfaces, SNK_NUM_SURFACES);
        }
        if (d->cfg != VA_INVALID_ID) {
            vaDestroyConfig(d->vaDpy, d->cfg);
        }
        vaTerminate(d->vaDpy);
    }
    if (d->xdpy) {
        XCloseDisplay(d->xdpy);
    }
    if (d->drmFd >= 0) {
        close(d->drmFd);
    }
    free(d);
}

// Returns 0 on success, otherwise the failing VAStatus (or -1 for display
// open failures).
static int snkDecoderInit(SnkDecoder* d, int width, int height) {
    d->width = width;
    d->height = height;

    d->xdpy = XOpenDisplay(NULL);
    if (d->xdpy) {
        d->vaDpy = vaGetDisplay(d->xdpy);
    }
    if (!d->vaDpy) {
        d->drmFd = open("/dev/dri/renderD128", O_RDWR);
        if (d->drmFd < 0) return -1;
        d->vaDpy = vaGetDisplayDRM(d->drmFd);
        if (!d->vaDpy) return -1;
    }

    int major, minor;
    VAStatus status = vaInitialize(d->vaDpy, &major, &minor);
    if (status != VA_STATUS_SUCCESS) return status;
    d->vaInit = 1;

    VAProfile profile = VAProfileH264High;
    VAConfigAttrib attrib;
    attrib.type = VAConfigAttribRTFormat;
    status = vaGetConfigAttributes(d->vaDpy, profile, VAEntrypointVLD, &attrib, 1);
    if (status != VA_STATUS_SUCCESS) {
        profile = VAProfileH264Main;
        status = vaGetConfigAttributes(d->vaDpy, profile, VAEntrypointVLD, &attrib, 1);
    }
    if (status != VA_STATUS_SUCCESS) return status;
    if (!(attrib.value & VA_RT_FORMAT_YUV420)) return -1;

    status = vaCreateConfig(d->vaDpy, profile, VAEntrypointVLD, &attrib, 1, &d->cfg);
    if (status != VA_STATUS_SUCCESS) return status;

    status = vaCreateSurfaces(d->vaDpy, VA_RT_FORMAT_YUV420, width, height,
                              d->surfaces, SNK_NUM_SURFACES, NULL, 0);
    if (status != VA_STATUS_SUCCESS) return status;
    d->haveSurfaces = 1;

    status = vaCreateContext(d->vaDpy, d->cfg, width, height, VA_PROGRESSIVE,
                             d->surfaces, SNK_NUM_SURFACES, &d->ctx);
    if (status != VA_STATUS_SUCCESS) return status;

    return 0;
}

// Submits one NAL unit against the surface in the given slot and waits for
// the hardware to finish. Returns 0 on success, the failing VAStatus
// otherwise.
static int snkDecoderDecode(SnkDecoder* d, int slot, const uint8_t* nal, int nalLen) {
    VASurfaceID surface = d->surfaces[slot];

    VAStatus status = vaBeginPicture(d->vaDpy, d->ctx, surface);
    if (status != VA_STATUS_SUCCESS) return status;

    VABufferID sliceBuf;
    status = vaCreateBuffer(d->vaDpy, d->ctx, VASliceDataBufferType,
                            nalLen, 1, (void*)nal, &sliceBuf);
    if (status != VA_STATUS_SUCCESS) {
        vaEndPicture(d->vaDpy, d->ctx);
        return status;
    }

    status = vaRenderPicture(d->vaDpy, d->ctx, &sliceBuf, 1);
    if (status != VA_STATUS_SUCCESS) {
        vaDestroyBuffer(d->vaDpy, sliceBuf);
        vaEndPicture(d->vaDpy, d->ctx);
        return status;
    }

    status = vaEndPicture(d->vaDpy, d->ctx);
    vaDestroyBuffer(d->vaDpy, sliceBuf);
    if (status != VA_STATUS_SUCCESS) return status;

    return vaSyncSurface(d->vaDpy, surface);
}

// Copies a decoded surface to CPU memory as packed NV12. Returns 0 on
// success.
static int snkDecoderReadSurface(SnkDecoder* d, int slot, uint8_t* out, int width, int height) {
    VAImage image;
    VAStatus status = vaDeriveImage(d->vaDpy, d->surfaces[slot], &image);
    if (status != VA_STATUS_SUCCESS) return status;

    if (image.format.fourcc != VA_FOURCC_NV12) {
        vaDestroyImage(d->vaDpy, image.image_id);
        return -1;
    }

    uint8_t* mapped = NULL;
    status = vaMapBuffer(d->vaDpy, image.buf, (void**)&mapped);
    if (status != VA_STATUS_SUCCESS) {
        vaDestroyImage(d->vaDpy, image.image_id);
        return status;
    }

    const uint8_t* luma = mapped + image.offsets[0];
    for (int y = 0; y < height; y++) {
        memcpy(out + y * width, luma + y * image.pitches[0], width);
    }
    const uint8_t* chroma = mapped + image.offsets[1];
    uint8_t* outUV = out + width * height;
    for (int y = 0; y < height / 2; y++) {
        memcpy(outUV + y * width, chroma + y * image.pitches[1], width);
    }

    vaUnmapBuffer(d->vaDpy, image.buf);
    vaDestroyImage(d->vaDpy, image.image_id);
    return 0;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

func backendAvailable() bool {
	return C.snkVaAvailable() != 0
}

type vaapiBackend struct {
	c      *C.SnkDecoder
	width  int
	height int
}

func newBackend() (backend, error) {
	c := C.snkDecoderCreate()
	if c == nil {
		return nil, fmt.Errorf("decoder: allocation failed")
	}
	return &vaapiBackend{c: c}, nil
}

func (b *vaapiBackend) Init(width, height int, sps, pps []byte) error {
	b.width = width
	b.height = height
	if rc := C.snkDecoderInit(b.c, C.int(width), C.int(height)); rc != 0 {
		return fmt.Errorf("decoder: VA-API init failed (status %d)", int(rc))
	}
	return nil
}

func (b *vaapiBackend) Decode(slot int, nal []byte) error {
	if len(nal) == 0 {
		return fmt.Errorf("decoder: empty NAL unit")
	}
	rc := C.snkDecoderDecode(b.c, C.int(slot),
		(*C.uint8_t)(unsafe.Pointer(&nal[0])), C.int(len(nal)))
	switch rc {
	case 0:
		return nil
	case C.VA_STATUS_ERROR_INVALID_CONTEXT, C.VA_STATUS_ERROR_INVALID_DISPLAY:
		return fmt.Errorf("%w (status %d)", ErrContextInvalid, int(rc))
	default:
		return fmt.Errorf("decoder: NAL submission failed (status %d)", int(rc))
	}
}

func (b *vaapiBackend) Display() uintptr {
	return uintptr(unsafe.Pointer(b.c.vaDpy))
}

func (b *vaapiBackend) SurfaceID(slot int) uint32 {
	return uint32(b.c.surfaces[slot])
}

func (b *vaapiBackend) ReadSurface(slot, width, height int) ([]byte, error) {
	out := make([]byte, width*height+width*height/2)
	rc := C.snkDecoderReadSurface(b.c, C.int(slot),
		(*C.uint8_t)(unsafe.Pointer(&out[0])), C.int(width), C.int(height))
	if rc != 0 {
		return nil, fmt.Errorf("decoder: surface readback failed (status %d)", int(rc))
	}
	return out, nil
}

func (b *vaapiBackend) Close() {
	if b.c != nil {
		C.snkDecoderDestroy(b.c)
		b.c = nil
	}
}
