package render

import "fmt"

func clamp8(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// NV12ToRGBA converts a packed NV12 frame to RGBA using BT.601 video-range
// coefficients, the same conversion the GPU shader path applies. Integer
// fixed-point math, no floating point in the pixel loop.
func NV12ToRGBA(nv12 []byte, width, height int) ([]byte, error) {
	need := width*height + width*height/2
	if len(nv12) < need {
		return nil, fmt.Errorf("short NV12 frame: have %d bytes, need %d", len(nv12), need)
	}

	lumaSize := width * height
	out := make([]byte, width*height*4)

	for y := 0; y < height; y++ {
		uvRow := lumaSize + (y/2)*width
		for x := 0; x < width; x++ {
			c := int32(nv12[y*width+x]) - 16
			d := int32(nv12[uvRow+(x/2)*2]) - 128
			e := int32(nv12[uvRow+(x/2)*2+1]) - 128

			r := (298*c + 409*e + 128) >> 8
			g := (298*c - 100*d - 208*e + 128) >> 8
			b := (298*c + 516*d + 128) >> 8

			o := (y*width + x) * 4
			out[o] = clamp8(r)
			out[o+1] = clamp8(g)
			out[o+2] = clamp8(b)
			out[o+3] = 255
		}
	}
	return out, nil
}
