//go:build !(linux && cgo)

package decoder

func backendAvailable() bool { return false }

func newBackend() (backend, error) {
	return nil, ErrNotSupported
}
