package wire

import (
	"fmt"
	"io"
)

// VideoFrameSize returns the byte length of one tightly packed NV12 frame:
// a full-resolution luma plane followed by a half-resolution interleaved
// chroma plane.
func VideoFrameSize(width, height int) int {
	return width*height + width*height/2
}

// VideoWriter writes whole NV12 frames to the video stream. The stream has
// no framing of its own; the consumer recovers frame boundaries from the
// resolution it was told out of band, so partial writes are never allowed.
type VideoWriter struct {
	w         io.Writer
	frameSize int
}

// NewVideoWriter creates a writer for frames of the given resolution.
func NewVideoWriter(w io.Writer, width, height int) *VideoWriter {
	return &VideoWriter{w: w, frameSize: VideoFrameSize(width, height)}
}

// WriteFrame writes one frame. A short or failed write leaves the stream
// unframeable and is returned as an error for the caller to treat as fatal.
func (vw *VideoWriter) WriteFrame(frame []byte) error {
	if len(frame) != vw.frameSize {
		return fmt.Errorf("wire: frame length %d, stream expects %d", len(frame), vw.frameSize)
	}
	n, err := vw.w.Write(frame)
	if err != nil {
		return fmt.Errorf("wire: write video frame: %w", err)
	}
	if n != vw.frameSize {
		return fmt.Errorf("wire: short video frame write: %d of %d bytes", n, vw.frameSize)
	}
	return nil
}

// VideoReader reads back-to-back NV12 frames from the video stream.
type VideoReader struct {
	r         io.Reader
	frameSize int
}

// NewVideoReader creates a reader for frames of the given resolution.
func NewVideoReader(r io.Reader, width, height int) *VideoReader {
	return &VideoReader{r: r, frameSize: VideoFrameSize(width, height)}
}

// ReadFrame reads exactly one frame into a fresh buffer. io.EOF is
// returned only on a clean boundary; a mid-frame EOF comes back as
// io.ErrUnexpectedEOF.
func (vr *VideoReader) ReadFrame() ([]byte, error) {
	frame := make([]byte, vr.frameSize)
	if _, err := io.ReadFull(vr.r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
