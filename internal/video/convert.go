package video

// ScaleBGRA resizes BGRA pixels to the target dimensions with
// nearest-neighbor sampling, dropping any source row padding. Returns the
// input unchanged when no resize or repack is needed.
func ScaleBGRA(src []byte, srcW, srcH, srcStride, dstW, dstH int) []byte {
	if srcW == dstW && srcH == dstH && srcStride == srcW*4 {
		return src
	}
	dst := make([]byte, dstW*dstH*4)
	xRatio := float64(srcW) / float64(dstW)
	yRatio := float64(srcH) / float64(dstH)
	for y := 0; y < dstH; y++ {
		srcY := int(float64(y) * yRatio)
		srcRow := src[srcY*srcStride:]
		dstRow := dst[y*dstW*4:]
		for x := 0; x < dstW; x++ {
			srcX := int(float64(x)*xRatio) * 4
			copy(dstRow[x*4:x*4+4], srcRow[srcX:srcX+4])
		}
	}
	return dst
}

// BGRAToNV12 converts captured BGRA pixels into a packed NV12 frame.
// This is the software path for capture backends that cannot hand us
// NV12 directly.
//
// Uses BT.601 coefficients with fixed-point integer arithmetic. For
// 0-255 RGB input, Y lands in [16,235] and UV in [16,240], so no
// clamping is needed. Y and UV run as separate passes so the hot luma
// loop carries no subsampling branch.
func BGRAToNV12(bgra []byte, width, height, stride int) []byte {
	nv12 := GetFrame(width, height)
	if len(bgra) < height*stride {
		clear(nv12) // short input, emit black rather than tearing
		return nv12
	}

	yPlane := nv12[:width*height]
	uvPlane := nv12[width*height:]

	for y := 0; y < height; y++ {
		row := bgra[y*stride : y*stride+width*4]
		yRow := yPlane[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			pi := x * 4
			b := int(row[pi])
			g := int(row[pi+1])
			r := int(row[pi+2])
			yRow[x] = byte((66*r+129*g+25*b+128)>>8 + 16)
		}
	}

	// Chroma subsampled 2x2, taken from the top-left pixel of each block.
	for y := 0; y < height; y += 2 {
		row := bgra[y*stride : y*stride+width*4]
		uvRow := uvPlane[(y/2)*width : (y/2)*width+width]
		for x := 0; x < width; x += 2 {
			pi := x * 4
			b := int(row[pi])
			g := int(row[pi+1])
			r := int(row[pi+2])
			uvRow[x] = byte((-38*r-74*g+112*b+128)>>8 + 128)
			uvRow[x+1] = byte((112*r-94*g-18*b+128)>>8 + 128)
		}
	}
	return nv12
}
