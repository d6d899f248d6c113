package capture

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snacka-app/media/internal/audio"
	"github.com/snacka-app/media/internal/config"
	"github.com/snacka-app/media/internal/video"
	"github.com/snacka-app/media/internal/wire"
	"github.com/snacka-app/media/internal/workerpool"
)

// Session owns one capture run: the resolved source, the platform
// capturers, and the two delivery queues feeding the video and
// control/audio streams. Video and audio are serviced by separate
// single-worker pools so a slow audio conversion never stalls frame
// delivery and vice versa.
type Session struct {
	cfg config.Capture
	src Source

	videoCap VideoCapturer
	audioCap AudioCapturer // nil when audio capture is off

	videoOut  *wire.VideoWriter
	packetOut *wire.PacketWriter

	videoQ *workerpool.Pool
	audioQ *workerpool.Pool

	normOnce sync.Once
	norm     *audio.Normalizer

	frames  atomic.Uint64
	packets atomic.Uint64

	cancel  context.CancelFunc
	errOnce sync.Once
	runErr  error
}

// NewSession resolves the configured source and opens the capture
// backends. Initialization is all-or-nothing: any failure releases
// whatever was already opened.
func NewSession(cfg config.Capture, videoOut, controlOut io.Writer) (*Session, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid capture config: %v", errs[0])
	}

	sources, err := ListSources()
	src, rerr := Resolve(cfg, sources)
	if rerr != nil {
		return nil, rerr
	}
	if err != nil {
		// Enumeration was partial but the requested source resolved.
		log.Warn("source enumeration incomplete", "error", err)
	}

	s := &Session{
		cfg:       cfg,
		src:       src,
		videoOut:  wire.NewVideoWriter(videoOut, cfg.Width, cfg.Height),
		packetOut: wire.NewPacketWriter(controlOut),
	}

	s.videoCap, err = NewVideoCapturer(src, cfg)
	if err != nil {
		return nil, fmt.Errorf("open video capture: %w", err)
	}

	if cfg.Audio {
		var exclude map[int32]struct{}
		if cfg.ExcludeAppAudio != "" {
			exclude, err = ExclusionSet(cfg.ExcludeAppAudio)
			if err != nil {
				s.videoCap.Stop()
				return nil, fmt.Errorf("build audio exclusion set: %w", err)
			}
		}
		s.audioCap, err = NewAudioCapturer(exclude)
		if err != nil {
			s.videoCap.Stop()
			return nil, fmt.Errorf("open audio capture: %w", err)
		}
	}

	return s, nil
}

// Source returns the resolved capture source.
func (s *Session) Source() Source { return s.src }

// FrameCount returns the number of video frames written so far.
func (s *Session) FrameCount() uint64 { return s.frames.Load() }

// PacketCount returns the number of audio packets written so far.
func (s *Session) PacketCount() uint64 { return s.packets.Load() }

// Run starts capture and blocks until ctx is cancelled or a stream write
// fails. Teardown drains both delivery queues before returning.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	s.videoQ = workerpool.New("video", 1, 4)
	s.audioQ = workerpool.New("audio", 1, 16)

	log.Info("capture starting",
		"kind", string(s.cfg.Kind),
		"size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"framerate", s.cfg.Framerate,
		"audio", s.audioCap != nil)

	if err := s.videoCap.Start(s.onFrame); err != nil {
		s.shutdownQueues()
		return fmt.Errorf("start video capture: %w", err)
	}
	if s.audioCap != nil {
		if err := s.audioCap.Start(s.onAudioUnit); err != nil {
			s.videoCap.Stop()
			s.shutdownQueues()
			return fmt.Errorf("start audio capture: %w", err)
		}
	}

	<-runCtx.Done()

	s.videoCap.Stop()
	if s.audioCap != nil {
		s.audioCap.Stop()
	}
	s.shutdownQueues()

	log.Info("capture stopped",
		"frames", s.frames.Load(),
		"audioPackets", s.packets.Load(),
		"videoDropped", s.videoQ.Dropped(),
		"audioDropped", s.audioQ.Dropped())

	if s.runErr != nil {
		return s.runErr
	}
	return ctx.Err()
}

func (s *Session) shutdownQueues() {
	drainCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	s.videoQ.Shutdown(drainCtx)
	s.audioQ.Shutdown(drainCtx)
}

// fail records the first fatal error and stops the session.
func (s *Session) fail(err error) {
	s.errOnce.Do(func() {
		s.runErr = err
		log.Error("capture session failing", "error", err)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// onFrame runs on the capturer's delivery thread; the frame buffer is
// only valid for the duration of the call, so it is copied before being
// queued.
func (s *Session) onFrame(frame []byte, timestampMS uint64) {
	buf := video.GetFrame(s.cfg.Width, s.cfg.Height)
	copy(buf, frame)

	ok := s.videoQ.Submit(func() {
		defer video.PutFrame(buf)
		if err := s.videoOut.WriteFrame(buf); err != nil {
			// Partial frames are not permitted on the video stream; any
			// write failure desynchronizes the frame boundary.
			s.fail(fmt.Errorf("video stream write: %w", err))
			return
		}
		n := s.frames.Add(1)
		if n <= 5 || n%100 == 0 {
			log.Debug("video frame written", "frame", n, "timestampMs", timestampMS)
		}
	})
	if !ok {
		video.PutFrame(buf)
	}
}

// onAudioUnit runs on the audio capture thread.
func (s *Session) onAudioUnit(unit AudioUnit) {
	s.audioQ.Submit(func() {
		s.normOnce.Do(func() {
			n, err := audio.NewNormalizer(s.audioCap.Format())
			if err != nil {
				log.Error("unsupported audio format, audio disabled", "error", err)
				return
			}
			s.norm = n
		})
		if s.norm == nil {
			return
		}

		var samples []int16
		if unit.Silent {
			samples = s.norm.Silence(unit.Frames)
		} else {
			var err error
			samples, err = s.norm.Normalize(unit.Data)
			if err != nil {
				log.Warn("audio unit dropped", "error", err)
				return
			}
		}
		if len(samples) == 0 {
			return
		}

		payload := audio.PayloadBytes(samples)
		hdr := wire.NewAudioPacketHeader(uint32(len(payload)/wire.OutBytesPerFrame), unit.TimestampMS)
		if err := s.packetOut.WritePacket(hdr, payload); err != nil {
			s.fail(fmt.Errorf("audio stream write: %w", err))
			return
		}
		s.packets.Add(1)
	})
}
