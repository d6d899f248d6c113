//go:build !windows && !(linux && cgo)

package capture

func listDisplays() ([]Display, error) {
	return nil, ErrNotSupported
}

func listWindows() ([]Window, error) {
	return nil, ErrNotSupported
}
