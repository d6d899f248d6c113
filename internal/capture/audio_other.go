//go:build !windows

package capture

// System audio loopback needs the Windows audio engine; other platforms
// route audio through their own capture services out of process.
func newAudioCapturer(exclude map[int32]struct{}) (AudioCapturer, error) {
	return nil, ErrNotSupported
}
