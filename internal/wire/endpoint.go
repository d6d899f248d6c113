package wire

import (
	"net"

	"github.com/snacka-app/media/internal/logging"
)

var log = logging.L("wire")

// Stream endpoints carry the raw byte streams between the capture and
// consumer processes when they are not simply wired up as stdio pipes.
// The consumer listens; the capture process dials. On Windows the path is
// a named pipe name, elsewhere a unix socket path.

// ListenStream opens a listener for one stream at path.
func ListenStream(path string) (net.Listener, error) {
	return listenStream(path)
}

// DialStream connects to a consumer's stream listener at path.
func DialStream(path string) (net.Conn, error) {
	return dialStream(path)
}
