package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// MaxPayloadSize bounds a single audio packet payload. A 32 MB packet is
// far beyond anything the capture side produces; larger values mean the
// scanner matched the magic inside garbage and should fail rather than
// swallow the stream.
const MaxPayloadSize = 32 * 1024 * 1024

// ControlEvent is one unit decoded from the control/audio stream: either
// a diagnostic text line or a binary audio packet, never both.
type ControlEvent struct {
	Line    string
	Header  AudioPacketHeader
	Payload []byte
}

// IsPacket reports whether the event carries an audio packet.
func (e ControlEvent) IsPacket() bool {
	return e.Payload != nil || e.Header.SampleRate != 0
}

// ControlScanner splits the control/audio stream back into log lines and
// audio packets. Binary packets carry no length prefix visible to a text
// reader, so the scanner walks byte-by-byte looking for the packet magic;
// everything between packets is treated as UTF-8 text and emitted per line.
type ControlScanner struct {
	r       *bufio.Reader
	pending bytes.Buffer // text bytes seen since the last emitted event
	queued  []ControlEvent
}

// NewControlScanner wraps the control stream reader.
func NewControlScanner(r io.Reader) *ControlScanner {
	return &ControlScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// magicBytes is the little-endian wire form of Magic.
var magicBytes = [4]byte{0x50, 0x41, 0x43, 0x4D}

// Next returns the next event from the stream. At EOF any trailing text is
// flushed as a final line, then io.EOF is returned.
func (s *ControlScanner) Next() (ControlEvent, error) {
	for {
		if len(s.queued) > 0 {
			ev := s.queued[0]
			s.queued = s.queued[1:]
			return ev, nil
		}

		b, err := s.r.ReadByte()
		if err != nil {
			if err == io.EOF && s.pending.Len() > 0 {
				line := s.pending.String()
				s.pending.Reset()
				return ControlEvent{Line: line}, nil
			}
			return ControlEvent{}, err
		}

		if b == magicBytes[0] && s.peekMagic() {
			// Consume the remaining 3 magic bytes plus the rest of the header.
			var hdr [HeaderSize]byte
			hdr[0] = b
			if _, err := io.ReadFull(s.r, hdr[1:]); err != nil {
				return ControlEvent{}, fmt.Errorf("wire: truncated packet header: %w", err)
			}
			h, err := UnmarshalAudioPacketHeader(hdr[:])
			if err != nil {
				return ControlEvent{}, err
			}
			n := h.PayloadLen()
			if n > MaxPayloadSize {
				return ControlEvent{}, fmt.Errorf("wire: packet payload too large: %d bytes", n)
			}
			payload := make([]byte, n)
			if _, err := io.ReadFull(s.r, payload); err != nil {
				return ControlEvent{}, fmt.Errorf("wire: truncated packet payload: %w", err)
			}

			s.flushPendingText()
			s.queued = append(s.queued, ControlEvent{Header: h, Payload: payload})
			continue
		}

		if b == '\n' {
			line := s.pending.String()
			s.pending.Reset()
			return ControlEvent{Line: line}, nil
		}
		s.pending.WriteByte(b)
	}
}

// peekMagic reports whether the next 3 buffered bytes complete the magic.
// The first magic byte has already been consumed by the caller.
func (s *ControlScanner) peekMagic() bool {
	rest, err := s.r.Peek(3)
	if err != nil {
		return false
	}
	return rest[0] == magicBytes[1] && rest[1] == magicBytes[2] && rest[2] == magicBytes[3]
}

// flushPendingText queues any text collected before a packet boundary as
// its own line event, preserving stream order.
func (s *ControlScanner) flushPendingText() {
	if s.pending.Len() == 0 {
		return
	}
	s.queued = append(s.queued, ControlEvent{Line: s.pending.String()})
	s.pending.Reset()
}
