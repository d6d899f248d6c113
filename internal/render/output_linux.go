//go:build linux && cgo

package render

/*
#cgo LDFLAGS: -lX11 -lXfixes -lEGL -lGLESv2 -lva -lva-x11
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <unistd.h>
#include <X11/Xlib.h>
#include <X11/Xutil.h>
#include <X11/extensions/Xfixes.h>
#include <X11/extensions/shape.h>
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <GLES2/gl2.h>
#include <GLES2/gl2ext.h>
#include <va/va.h>
#include <va/va_x11.h>
#include <va/va_drmcommon.h>

#ifndef DRM_FORMAT_R8
#define DRM_FORMAT_R8   0x20203852
#endif
#ifndef DRM_FORMAT_GR88
#define DRM_FORMAT_GR88 0x38385247
#endif

static const char* snkVertexSrc =
    "#version 100\n"
    "attribute vec4 a_position;\n"
    "attribute vec2 a_texCoord;\n"
    "varying vec2 v_texCoord;\n"
    "void main() {\n"
    "    gl_Position = a_position;\n"
    "    v_texCoord = a_texCoord;\n"
    "}\n";

// BT.601 video range conversion, matching the CPU fallback.
static const char* snkFragYUVSrc =
    "#version 100\n"
    "precision mediump float;\n"
    "varying vec2 v_texCoord;\n"
    "uniform sampler2D y_texture;\n"
    "uniform sampler2D uv_texture;\n"
    "void main() {\n"
    "    float y = texture2D(y_texture, v_texCoord).r;\n"
    "    vec2 uv = texture2D(uv_texture, v_texCoord).rg;\n"
    "    y = (y - 0.0625) * 1.164;\n"
    "    float u = uv.r - 0.5;\n"
    "    float v = uv.g - 0.5;\n"
    "    float r = y + 1.596 * v;\n"
    "    float g = y - 0.391 * u - 0.813 * v;\n"
    "    float b = y + 2.018 * u;\n"
    "    gl_FragColor = vec4(clamp(r, 0.0, 1.0), clamp(g, 0.0, 1.0), clamp(b, 0.0, 1.0), 1.0);\n"
    "}\n";

static const char* snkFragRGBASrc =
    "#version 100\n"
    "precision mediump float;\n"
    "varying vec2 v_texCoord;\n"
    "uniform sampler2D rgba_texture;\n"
    "void main() {\n"
    "    gl_FragColor = texture2D(rgba_texture, v_texCoord);\n"
    "}\n";

static const float snkQuad[] = {
    -1.0f, -1.0f,  0.0f, 1.0f,
    -1.0f,  1.0f,  0.0f, 0.0f,
     1.0f, -1.0f,  1.0f, 1.0f,
     1.0f,  1.0f,  1.0f, 0.0f,
};

static PFNEGLCREATEIMAGEKHRPROC snkCreateImage = NULL;
static PFNEGLDESTROYIMAGEKHRPROC snkDestroyImage = NULL;
static PFNGLEGLIMAGETARGETTEXTURE2DOESPROC snkImageTargetTexture = NULL;

typedef struct SnkOutput {
    Display*   xdpy;
    Window     win;
    EGLDisplay edpy;
    EGLConfig  ecfg;
    EGLContext ectx;
    EGLSurface esurf;
    GLuint     progYUV;
    GLuint     progRGBA;
    GLuint     texY;
    GLuint     texUV;
    GLuint     texRGBA;
    GLint      locY;
    GLint      locUV;
    GLint      locRGBA;
    int        width;
    int        height;
} SnkOutput;

static GLuint snkCompileShader(GLenum type, const char* src) {
    GLuint shader = glCreateShader(type);
    glShaderSource(shader, 1, &src, NULL);
    glCompileShader(shader);
    GLint ok = 0;
    glGetShaderiv(shader, GL_COMPILE_STATUS, &ok);
    if (!ok) {
        glDeleteShader(shader);
        return 0;
    }
    return shader;
}

static GLuint snkLinkProgram(const char* vsrc, const char* fsrc) {
    GLuint vs = snkCompileShader(GL_VERTEX_SHADER, vsrc);
    if (!vs) return 0;
    GLuint fs = snkCompileShader(GL_FRAGMENT_SHADER, fsrc);
    if (!fs) { glDeleteShader(vs); return 0; }
    GLuint prog = glCreateProgram();
    glAttachShader(prog, vs);
    glAttachShader(prog, fs);
    glLinkProgram(prog);
    glDeleteShader(vs);
    glDeleteShader(fs);
    GLint ok = 0;
    glGetProgramiv(prog, GL_LINK_STATUS, &ok);
    if (!ok) { glDeleteProgram(prog); return 0; }
    return prog;
}

// Borderless override-redirect window with an empty XFixes input region so
// pointer events pass straight through to whatever is underneath.
static Window snkCreateOverlayWindow(Display* dpy, int width, int height) {
    int screen = DefaultScreen(dpy);
    Window root = RootWindow(dpy, screen);

    XVisualInfo vinfo;
    if (!XMatchVisualInfo(dpy, screen, 24, TrueColor, &vinfo)) {
        return 0;
    }

    Colormap cmap = XCreateColormap(dpy, root, vinfo.visual, AllocNone);

    XSetWindowAttributes attrs;
    attrs.colormap = cmap;
    attrs.border_pixel = 0;
    attrs.background_pixel = 0;
    attrs.override_redirect = True;
    attrs.event_mask = ExposureMask | StructureNotifyMask;
    unsigned long mask = CWColormap | CWBorderPixel | CWBackPixel | CWOverrideRedirect | CWEventMask;

    Window win = XCreateWindow(dpy, root, 0, 0, width, height, 0,
                               vinfo.depth, InputOutput, vinfo.visual, mask, &attrs);
    if (!win) {
        XFreeColormap(dpy, cmap);
        return 0;
    }

    XClassHint hint;
    hint.res_name = "snacka_video";
    hint.res_class = "SnackaVideoOverlay";
    XSetClassHint(dpy, win, &hint);

    int evBase, errBase;
    if (XFixesQueryExtension(dpy, &evBase, &errBase)) {
        XserverRegion region = XFixesCreateRegion(dpy, NULL, 0);
        XFixesSetWindowShapeRegion(dpy, win, ShapeInput, 0, 0, region);
        XFixesDestroyRegion(dpy, region);
    }

    XFlush(dpy);
    return win;
}

static void snkDrawQuad(GLuint prog) {
    GLint posLoc = glGetAttribLocation(prog, "a_position");
    GLint texLoc = glGetAttribLocation(prog, "a_texCoord");
    glVertexAttribPointer(posLoc, 2, GL_FLOAT, GL_FALSE, 4 * sizeof(float), snkQuad);
    glEnableVertexAttribArray(posLoc);
    glVertexAttribPointer(texLoc, 2, GL_FLOAT, GL_FALSE, 4 * sizeof(float), snkQuad + 2);
    glEnableVertexAttribArray(texLoc);
    glDrawArrays(GL_TRIANGLE_STRIP, 0, 4);
}

static void snkSetupTexture(GLuint tex) {
    glBindTexture(GL_TEXTURE_2D, tex);
    glTexParameteri(GL_TEXTURE_2D, GL_TEXTURE_MIN_FILTER, GL_LINEAR);
    glTexParameteri(GL_TEXTURE_2D, GL_TEXTURE_MAG_FILTER, GL_LINEAR);
    glTexParameteri(GL_TEXTURE_2D, GL_TEXTURE_WRAP_S, GL_CLAMP_TO_EDGE);
    glTexParameteri(GL_TEXTURE_2D, GL_TEXTURE_WRAP_T, GL_CLAMP_TO_EDGE);
}

static void snkOutputDestroy(SnkOutput* o) {
    if (!o) return;
    if (o->edpy != EGL_NO_DISPLAY) {
        eglMakeCurrent(o->edpy, o->esurf, o->esurf, o->ectx);
        if (o->progYUV) glDeleteProgram(o->progYUV);
        if (o->progRGBA) glDeleteProgram(o->progRGBA);
        if (o->texY) glDeleteTextures(1, &o->texY);
        if (o->texUV) glDeleteTextures(1, &o->texUV);
        if (o->texRGBA) glDeleteTextures(1, &o->texRGBA);
        eglMakeCurrent(o->edpy, EGL_NO_SURFACE, EGL_NO_SURFACE, EGL_NO_CONTEXT);
        if (o->esurf != EGL_NO_SURFACE) eglDestroySurface(o->edpy, o->esurf);
        if (o->ectx != EGL_NO_CONTEXT) eglDestroyContext(o->edpy, o->ectx);
        eglTerminate(o->edpy);
    }
    if (o->xdpy) {
        if (o->win) {
            XDestroyWindow(o->xdpy, o->win);
            XFlush(o->xdpy);
        }
        XCloseDisplay(o->xdpy);
    }
    free(o);
}

static SnkOutput* snkOutputCreate(int width, int height) {
    SnkOutput* o = (SnkOutput*)calloc(1, sizeof(SnkOutput));
    if (!o) return NULL;
    o->edpy = EGL_NO_DISPLAY;
    o->ectx = EGL_NO_CONTEXT;
    o->esurf = EGL_NO_SURFACE;
    o->width = width;
    o->height = height;

    o->xdpy = XOpenDisplay(NULL);
    if (!o->xdpy) { snkOutputDestroy(o); return NULL; }

    o->win = snkCreateOverlayWindow(o->xdpy, width, height);
    if (!o->win) { snkOutputDestroy(o); return NULL; }

    o->edpy = eglGetDisplay((EGLNativeDisplayType)o->xdpy);
    if (o->edpy == EGL_NO_DISPLAY) { snkOutputDestroy(o); return NULL; }

    EGLint major, minor;
    if (!eglInitialize(o->edpy, &major, &minor)) {
        o->edpy = EGL_NO_DISPLAY;
        snkOutputDestroy(o);
        return NULL;
    }

    EGLint cfgAttribs[] = {
        EGL_SURFACE_TYPE, EGL_WINDOW_BIT,
        EGL_RED_SIZE, 8,
        EGL_GREEN_SIZE, 8,
        EGL_BLUE_SIZE, 8,
        EGL_ALPHA_SIZE, 8,
        EGL_RENDERABLE_TYPE, EGL_OPENGL_ES2_BIT,
        EGL_NONE
    };
    EGLint numCfg = 0;
    if (!eglChooseConfig(o->edpy, cfgAttribs, &o->ecfg, 1, &numCfg) || numCfg == 0) {
        snkOutputDestroy(o);
        return NULL;
    }

    EGLint ctxAttribs[] = { EGL_CONTEXT_CLIENT_VERSION, 2, EGL_NONE };
    o->ectx = eglCreateContext(o->edpy, o->ecfg, EGL_NO_CONTEXT, ctxAttribs);
    if (o->ectx == EGL_NO_CONTEXT) { snkOutputDestroy(o); return NULL; }

    o->esurf = eglCreateWindowSurface(o->edpy, o->ecfg, (EGLNativeWindowType)o->win, NULL);
    if (o->esurf == EGL_NO_SURFACE) { snkOutputDestroy(o); return NULL; }

    if (!eglMakeCurrent(o->edpy, o->esurf, o->esurf, o->ectx)) {
        snkOutputDestroy(o);
        return NULL;
    }

    snkCreateImage = (PFNEGLCREATEIMAGEKHRPROC)eglGetProcAddress("eglCreateImageKHR");
    snkDestroyImage = (PFNEGLDESTROYIMAGEKHRPROC)eglGetProcAddress("eglDestroyImageKHR");
    snkImageTargetTexture = (PFNGLEGLIMAGETARGETTEXTURE2DOESPROC)eglGetProcAddress("glEGLImageTargetTexture2DOES");
    // Missing extensions are tolerated; vaPutSurface still works.

    o->progYUV = snkLinkProgram(snkVertexSrc, snkFragYUVSrc);
    o->progRGBA = snkLinkProgram(snkVertexSrc, snkFragRGBASrc);
    if (!o->progYUV || !o->progRGBA) { snkOutputDestroy(o); return NULL; }

    o->locY = glGetUniformLocation(o->progYUV, "y_texture");
    o->locUV = glGetUniformLocation(o->progYUV, "uv_texture");
    o->locRGBA = glGetUniformLocation(o->progRGBA, "rgba_texture");

    glGenTextures(1, &o->texY);
    glGenTextures(1, &o->texUV);
    glGenTextures(1, &o->texRGBA);
    snkSetupTexture(o->texY);
    snkSetupTexture(o->texUV);
    snkSetupTexture(o->texRGBA);

    XMapWindow(o->xdpy, o->win);
    XRaiseWindow(o->xdpy, o->win);
    XFlush(o->xdpy);
    return o;
}

static void snkOutputResize(SnkOutput* o, int width, int height) {
    if (!o || (o->width == width && o->height == height)) return;
    o->width = width;
    o->height = height;
    XMoveResizeWindow(o->xdpy, o->win, 0, 0, width, height);
    XRaiseWindow(o->xdpy, o->win);
    XFlush(o->xdpy);
}

// Returns 1 on a zero-copy render, 2 on a blit, 0 when neither path worked.
// All exported DMA-BUF fds are closed before returning, on failure too.
static int snkOutputRenderVASurface(SnkOutput* o, VADisplay vaDpy, VASurfaceID surface) {
    if (!o) return 0;
    if (!eglMakeCurrent(o->edpy, o->esurf, o->esurf, o->ectx)) {
        return 0;
    }

    VADRMPRIMESurfaceDescriptor desc;
    VAStatus status = vaExportSurfaceHandle(
        vaDpy, surface,
        VA_SURFACE_ATTRIB_MEM_TYPE_DRM_PRIME_2,
        VA_EXPORT_SURFACE_READ_ONLY | VA_EXPORT_SURFACE_COMPOSED_LAYERS,
        &desc);

    if (status == VA_STATUS_SUCCESS && snkCreateImage && snkImageTargetTexture) {
        int rendered = 0;

        EGLint yAttribs[] = {
            EGL_WIDTH, o->width,
            EGL_HEIGHT, o->height,
            EGL_LINUX_DRM_FOURCC_EXT, DRM_FORMAT_R8,
            EGL_DMA_BUF_PLANE0_FD_EXT, desc.objects[0].fd,
            EGL_DMA_BUF_PLANE0_OFFSET_EXT, (EGLint)desc.layers[0].offset[0],
            EGL_DMA_BUF_PLANE0_PITCH_EXT, (EGLint)desc.layers[0].pitch[0],
            EGL_NONE
        };
        EGLImageKHR yImage = snkCreateImage(o->edpy, EGL_NO_CONTEXT,
                                            EGL_LINUX_DMA_BUF_EXT, NULL, yAttribs);

        EGLint uvAttribs[] = {
            EGL_WIDTH, o->width / 2,
            EGL_HEIGHT, o->height / 2,
            EGL_LINUX_DRM_FOURCC_EXT, DRM_FORMAT_GR88,
            EGL_DMA_BUF_PLANE0_FD_EXT, desc.objects[0].fd,
            EGL_DMA_BUF_PLANE0_OFFSET_EXT, (EGLint)desc.layers[0].offset[1],
            EGL_DMA_BUF_PLANE0_PITCH_EXT, (EGLint)desc.layers[0].pitch[1],
            EGL_NONE
        };
        EGLImageKHR uvImage = snkCreateImage(o->edpy, EGL_NO_CONTEXT,
                                             EGL_LINUX_DMA_BUF_EXT, NULL, uvAttribs);

        if (yImage && uvImage) {
            glActiveTexture(GL_TEXTURE0);
            glBindTexture(GL_TEXTURE_2D, o->texY);
            snkImageTargetTexture(GL_TEXTURE_2D, yImage);

            glActiveTexture(GL_TEXTURE1);
            glBindTexture(GL_TEXTURE_2D, o->texUV);
            snkImageTargetTexture(GL_TEXTURE_2D, uvImage);

            glViewport(0, 0, o->width, o->height);
            glClearColor(0.0f, 0.0f, 0.0f, 1.0f);
            glClear(GL_COLOR_BUFFER_BIT);

            glUseProgram(o->progYUV);
            glUniform1i(o->locY, 0);
            glUniform1i(o->locUV, 1);
            snkDrawQuad(o->progYUV);

            eglSwapBuffers(o->edpy, o->esurf);
            rendered = 1;
        }

        if (yImage) snkDestroyImage(o->edpy, yImage);
        if (uvImage) snkDestroyImage(o->edpy, uvImage);
        for (uint32_t i = 0; i < desc.num_objects; i++) {
            close(desc.objects[i].fd);
        }

        if (rendered) return 1;
    } else if (status == VA_STATUS_SUCCESS) {
        // Exported but no EGL import extensions; release the fds before
        // falling back.
        for (uint32_t i = 0; i < desc.num_objects; i++) {
            close(desc.objects[i].fd);
        }
    }

    status = vaPutSurface(vaDpy, surface, o->win,
                          0, 0, o->width, o->height,
                          0, 0, o->width, o->height,
                          NULL, 0, VA_FRAME_PICTURE);
    return status == VA_STATUS_SUCCESS ? 2 : 0;
}

static int snkOutputPresentRGBA(SnkOutput* o, const uint8_t* pix, int width, int height) {
    if (!o) return 0;
    if (!eglMakeCurrent(o->edpy, o->esurf, o->esurf, o->ectx)) {
        return 0;
    }

    glActiveTexture(GL_TEXTURE0);
    glBindTexture(GL_TEXTURE_2D, o->texRGBA);
    glTexImage2D(GL_TEXTURE_2D, 0, GL_RGBA, width, height, 0,
                 GL_RGBA, GL_UNSIGNED_BYTE, pix);

    glViewport(0, 0, o->width, o->height);
    glClearColor(0.0f, 0.0f, 0.0f, 1.0f);
    glClear(GL_COLOR_BUFFER_BIT);

    glUseProgram(o->progRGBA);
    glUniform1i(o->locRGBA, 0);
    snkDrawQuad(o->progRGBA);

    eglSwapBuffers(o->edpy, o->esurf);
    return 1;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"
)

type x11Output struct {
	c          *C.SnkOutput
	blitLogged bool
}

func newOutput(width, height int) (Output, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", width, height)
	}
	c := C.snkOutputCreate(C.int(width), C.int(height))
	if c == nil {
		return nil, errors.New("render: failed to create overlay window and GL context")
	}
	log.Info("overlay output created", "width", width, "height", height, "window", uintptr(c.win))
	return &x11Output{c: c}, nil
}

func (o *x11Output) NativeView() uintptr {
	if o.c == nil {
		return 0
	}
	return uintptr(o.c.win)
}

func (o *x11Output) SetDisplaySize(width, height int) {
	if o.c == nil || width <= 0 || height <= 0 {
		return
	}
	C.snkOutputResize(o.c, C.int(width), C.int(height))
}

func (o *x11Output) RenderVASurface(vaDisplay uintptr, surface uint32) error {
	if o.c == nil {
		return ErrHardwarePath
	}
	res := C.snkOutputRenderVASurface(o.c, C.VADisplay(unsafe.Pointer(vaDisplay)), C.VASurfaceID(surface))
	switch res {
	case 1:
		return nil
	case 2:
		if !o.blitLogged {
			log.Debug("zero-copy import unavailable, using hardware blit")
			o.blitLogged = true
		}
		return nil
	default:
		return ErrHardwarePath
	}
}

func (o *x11Output) PresentRGBA(pix []byte, width, height int) error {
	if o.c == nil {
		return ErrNotSupported
	}
	if len(pix) < width*height*4 {
		return fmt.Errorf("short RGBA buffer: have %d bytes, need %d", len(pix), width*height*4)
	}
	if C.snkOutputPresentRGBA(o.c, (*C.uint8_t)(unsafe.Pointer(&pix[0])), C.int(width), C.int(height)) == 0 {
		return errors.New("render: RGBA upload failed")
	}
	return nil
}

func (o *x11Output) Close() {
	if o.c != nil {
		C.snkOutputDestroy(o.c)
		o.c = nil
	}
}
