// Package wire defines the byte-exact framing of the two streams the
// capture process emits: a video stream of back-to-back fixed-size NV12
// frames, and a control/audio stream of UTF-8 diagnostic lines interleaved
// with magic-prefixed binary audio packets.
package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic marks the start of a binary audio packet on the control
	// stream ("MCAP" when read as little-endian bytes 'P','A','C','M').
	Magic uint32 = 0x4D434150

	// ProtocolVersion is the current audio packet version.
	ProtocolVersion byte = 1

	// HeaderSize is the fixed size of an audio packet header. It never
	// varies with the payload format.
	HeaderSize = 24
)

// Canonical output format: every packet leaving the normalizer carries
// 48 kHz 16-bit signed stereo PCM regardless of what the OS captured.
const (
	OutSampleRate    = 48000
	OutBitsPerSample = 16
	OutChannels      = 2
	OutBytesPerFrame = OutChannels * OutBitsPerSample / 8
)

// AudioPacketHeader is the fixed 24-byte little-endian header preceding
// every audio payload on the control stream.
type AudioPacketHeader struct {
	Version       byte
	BitsPerSample byte
	Channels      byte
	IsFloat       byte
	SampleCount   uint32 // stereo frames in this packet
	SampleRate    uint32
	Timestamp     uint64 // presentation time, milliseconds
}

// NewAudioPacketHeader builds a header for normalized output audio.
func NewAudioPacketHeader(sampleCount uint32, timestampMS uint64) AudioPacketHeader {
	return AudioPacketHeader{
		Version:       ProtocolVersion,
		BitsPerSample: OutBitsPerSample,
		Channels:      OutChannels,
		IsFloat:       0,
		SampleCount:   sampleCount,
		SampleRate:    OutSampleRate,
		Timestamp:     timestampMS,
	}
}

// PayloadLen returns the number of payload bytes that follow the header.
func (h AudioPacketHeader) PayloadLen() int {
	return int(h.SampleCount) * int(h.Channels) * int(h.BitsPerSample) / 8
}

// Marshal encodes the header into its 24-byte wire form.
func (h AudioPacketHeader) Marshal() [HeaderSize]byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:4], Magic)
	b[4] = h.Version
	b[5] = h.BitsPerSample
	b[6] = h.Channels
	b[7] = h.IsFloat
	binary.LittleEndian.PutUint32(b[8:12], h.SampleCount)
	binary.LittleEndian.PutUint32(b[12:16], h.SampleRate)
	binary.LittleEndian.PutUint64(b[16:24], h.Timestamp)
	return b
}

// UnmarshalAudioPacketHeader decodes a 24-byte header, validating the
// magic constant.
func UnmarshalAudioPacketHeader(b []byte) (AudioPacketHeader, error) {
	if len(b) < HeaderSize {
		return AudioPacketHeader{}, fmt.Errorf("wire: header truncated: %d bytes", len(b))
	}
	if got := binary.LittleEndian.Uint32(b[0:4]); got != Magic {
		return AudioPacketHeader{}, fmt.Errorf("wire: bad magic 0x%08X", got)
	}
	return AudioPacketHeader{
		Version:       b[4],
		BitsPerSample: b[5],
		Channels:      b[6],
		IsFloat:       b[7],
		SampleCount:   binary.LittleEndian.Uint32(b[8:12]),
		SampleRate:    binary.LittleEndian.Uint32(b[12:16]),
		Timestamp:     binary.LittleEndian.Uint64(b[16:24]),
	}, nil
}
