package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snacka-app/media/internal/decoder"
	"github.com/snacka-app/media/internal/logging"
	"github.com/snacka-app/media/internal/render"
	"github.com/snacka-app/media/internal/wire"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	flagWidth     int
	flagHeight    int
	flagFPS       int
	flagVideoEP   string
	flagControlEP string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "snacka-view",
	Short: "Snacka video consumer",
	Long:  `Snacka view - consumes capture streams and presents video in a click-through overlay, with hardware H.264 decode for compressed input`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Display a raw NV12 stream from stdin or a pipe endpoint",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runView())
	},
}

var playCmd = &cobra.Command{
	Use:   "play [file.h264]",
	Short: "Hardware-decode and display an H.264 Annex B elementary stream",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(playH264(args[0]))
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether hardware H.264 decoding is available",
	Run: func(cmd *cobra.Command, args []string) {
		if decoder.IsAvailable() {
			fmt.Println("hardware H.264 decode: available")
			return
		}
		fmt.Println("hardware H.264 decode: unavailable")
		os.Exit(1)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("snacka-view v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd.Flags().IntVar(&flagWidth, "width", 1920, "incoming video width")
	runCmd.Flags().IntVar(&flagHeight, "height", 1080, "incoming video height")
	runCmd.Flags().StringVar(&flagVideoEP, "video-endpoint", "", "dial this pipe/socket for video instead of stdin")
	runCmd.Flags().StringVar(&flagControlEP, "control-endpoint", "", "dial this pipe/socket for the control stream")

	playCmd.Flags().IntVar(&flagFPS, "fps", 30, "playback framerate")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runView consumes headerless back-to-back NV12 frames, converts each on
// the CPU, and presents it in the overlay window.
func runView() int {
	logging.Init("text", flagLogLevel, os.Stderr)
	log := logging.L("main")

	if flagWidth <= 0 || flagHeight <= 0 {
		log.Error("invalid video size", "width", flagWidth, "height", flagHeight)
		return 1
	}

	var videoIn io.Reader = os.Stdin
	if flagVideoEP != "" {
		conn, err := wire.DialStream(flagVideoEP)
		if err != nil {
			log.Error("cannot dial video endpoint", "error", err)
			return 1
		}
		defer conn.Close()
		videoIn = conn
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagControlEP != "" {
		conn, err := wire.DialStream(flagControlEP)
		if err != nil {
			log.Error("cannot dial control endpoint", "error", err)
			return 1
		}
		defer conn.Close()
		go drainControl(conn)
	}

	out, err := render.NewOutput(flagWidth, flagHeight)
	if err != nil {
		log.Error("cannot create overlay output", "error", err)
		return 1
	}
	defer out.Close()

	reader := wire.NewVideoReader(videoIn, flagWidth, flagHeight)
	var frames uint64
	for ctx.Err() == nil {
		frame, err := reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.Error("video stream failed", "error", err, "frames", frames)
			return 1
		}
		rgba, err := render.NV12ToRGBA(frame, flagWidth, flagHeight)
		if err != nil {
			log.Error("frame conversion failed", "error", err)
			return 1
		}
		if err := out.PresentRGBA(rgba, flagWidth, flagHeight); err != nil {
			log.Error("present failed", "error", err)
			return 1
		}
		frames++
		if frames%100 == 0 {
			log.Info("frames presented", "count", frames)
		}
	}

	log.Info("stream ended", "frames", frames)
	return 0
}

// drainControl separates interleaved log lines and audio packets on the
// control stream. Audio playback is handed to the host application; here
// the packets are only counted.
func drainControl(r io.Reader) {
	log := logging.L("control")
	scanner := wire.NewControlScanner(r)
	var packets uint64
	for {
		ev, err := scanner.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("control stream failed", "error", err)
			}
			log.Info("control stream ended", "audio_packets", packets)
			return
		}
		if ev.IsPacket() {
			packets++
			continue
		}
		if ev.Line != "" {
			log.Info("remote", "line", ev.Line)
		}
	}
}

// playH264 pushes an Annex B elementary stream through the hardware
// decoder at a fixed cadence.
func playH264(path string) int {
	logging.Init("text", flagLogLevel, os.Stderr)
	log := logging.L("main")

	if flagFPS <= 0 {
		log.Error("invalid framerate", "fps", flagFPS)
		return 1
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("cannot read stream", "error", err)
		return 1
	}

	units := decoder.SplitAnnexB(data)
	var sps, pps []byte
	for _, u := range units {
		switch {
		case decoder.IsSPS(u.Type) && sps == nil:
			sps = u.Data
		case decoder.IsPPS(u.Type) && pps == nil:
			pps = u.Data
		}
	}
	if sps == nil || pps == nil {
		log.Error("stream carries no SPS/PPS, cannot initialize decoder")
		return 1
	}

	info, err := decoder.ParseSPS(sps)
	if err != nil {
		log.Error("cannot parse SPS", "error", err)
		return 1
	}
	log.Info("stream opened", "codec", info.CodecString(),
		"width", info.Width, "height", info.Height, "nal_units", len(units))

	h := decoder.Create()
	defer decoder.Destroy(h)
	if !decoder.Initialize(h, info.Width, info.Height, sps, pps) {
		log.Error("decoder initialization failed")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Second / time.Duration(flagFPS))
	defer ticker.Stop()

	var decoded, dropped uint64
	for _, u := range units {
		if u.Type != decoder.NALTypeSlice && u.Type != decoder.NALTypeIDR {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info("playback interrupted", "decoded", decoded, "dropped", dropped)
			return 0
		case <-ticker.C:
		}
		if decoder.DecodeAndRender(h, u.Data, decoder.IsKeyframe(u.Type)) {
			decoded++
		} else {
			dropped++
		}
	}

	log.Info("playback finished", "decoded", decoded, "dropped", dropped)
	return 0
}
