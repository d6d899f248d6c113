package wire

import (
	"fmt"
	"io"
	"sync"
)

// PacketWriter writes magic-prefixed audio packets to the control stream.
// The header and payload go out in a single Write so a concurrent log line
// cannot land between them.
type PacketWriter struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// NewPacketWriter wraps the control stream writer.
func NewPacketWriter(w io.Writer) *PacketWriter {
	return &PacketWriter{w: w}
}

// WritePacket emits header || payload. The payload length must match the
// header's declared sample count.
func (pw *PacketWriter) WritePacket(h AudioPacketHeader, payload []byte) error {
	if want := h.PayloadLen(); len(payload) != want {
		return fmt.Errorf("wire: payload length %d does not match header (%d)", len(payload), want)
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	total := HeaderSize + len(payload)
	if cap(pw.buf) < total {
		pw.buf = make([]byte, total)
	}
	pw.buf = pw.buf[:total]

	hdr := h.Marshal()
	copy(pw.buf, hdr[:])
	copy(pw.buf[HeaderSize:], payload)

	if _, err := pw.w.Write(pw.buf); err != nil {
		return fmt.Errorf("wire: write audio packet: %w", err)
	}
	return nil
}
