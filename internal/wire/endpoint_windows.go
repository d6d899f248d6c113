//go:build windows

package wire

import (
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// SDDL: SYSTEM gets full control, Interactive Users get read/write. The
// streams carry screen contents, so non-interactive logons are kept out.
const pipeSecurity = "D:P(A;;GA;;;SY)(A;;GRGW;;;IU)"

func listenStream(path string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: pipeSecurity,
		InputBufferSize:    256 * 1024,
		OutputBufferSize:   256 * 1024,
	}

	listener, err := winio.ListenPipe(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("listen pipe %s: %w", path, err)
	}

	log.Info("named pipe listener created", "pipe", path)
	return listener, nil
}

func dialStream(path string) (net.Conn, error) {
	timeout := 5 * time.Second
	conn, err := winio.DialPipe(path, &timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to pipe %s: %w", path, err)
	}
	return conn, nil
}
