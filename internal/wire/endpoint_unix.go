//go:build !windows

package wire

import (
	"fmt"
	"net"
	"os"
	"time"
)

func listenStream(path string) (net.Listener, error) {
	// Stale socket from a previous run; the listener recreates it.
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict %s: %w", path, err)
	}

	log.Info("unix socket listener created", "path", path)
	return listener, nil
}

func dialStream(path string) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	return conn, nil
}
