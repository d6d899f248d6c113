package video

import "fmt"

// PackNV12 copies a captured NV12 frame that may carry row padding into
// the canonical tightly packed layout. The luma plane is copied at full
// resolution and the interleaved chroma plane at half height, both
// row-by-row honoring the source stride. The chroma plane is assumed to
// start at stride*height, which is how mapped capture surfaces lay it
// out.
func PackNV12(src []byte, width, height, stride int) ([]byte, error) {
	if stride < width {
		return nil, fmt.Errorf("video: stride %d smaller than width %d", stride, width)
	}
	need := stride*height + stride*height/2
	if len(src) < need {
		return nil, fmt.Errorf("video: source buffer %d bytes, need %d for %dx%d stride %d",
			len(src), need, width, height, stride)
	}

	dst := GetFrame(width, height)
	yDst := dst[:width*height]
	for y := 0; y < height; y++ {
		copy(yDst[y*width:(y+1)*width], src[y*stride:])
	}

	uvSrc := src[stride*height:]
	uvDst := dst[width*height:]
	for y := 0; y < height/2; y++ {
		copy(uvDst[y*width:(y+1)*width], uvSrc[y*stride:])
	}
	return dst, nil
}
