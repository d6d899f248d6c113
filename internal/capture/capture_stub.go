//go:build !windows && !(linux && cgo)

package capture

import "github.com/snacka-app/media/internal/config"

func newVideoCapturer(src Source, cfg config.Capture) (VideoCapturer, error) {
	return nil, ErrNotSupported
}
