//go:build !(linux && cgo)

package render

func newOutput(width, height int) (Output, error) {
	return nil, ErrNotSupported
}
