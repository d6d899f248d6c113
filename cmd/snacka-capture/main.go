package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/snacka-app/media/internal/capture"
	"github.com/snacka-app/media/internal/config"
	"github.com/snacka-app/media/internal/logging"
	"github.com/snacka-app/media/internal/wire"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	cfgFile string

	flagDisplay  int
	flagWindow   uint64
	flagApp      string
	flagWidth    int
	flagHeight   int
	flagFPS      int
	flagAudio    bool
	flagExclude  string
	flagVideoEP  string
	flagListJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "snacka-capture",
	Short: "Snacka screen and audio capture",
	Long:  `Snacka capture - streams raw NV12 video on stdout and normalized audio packets interleaved with diagnostics on stderr`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a capture session",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runCapture(cmd))
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List capturable displays, windows, and applications",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(listSources())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("snacka-capture v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config dir)")

	runCmd.Flags().IntVar(&flagDisplay, "display", -1, "capture the display with this index")
	runCmd.Flags().Uint64Var(&flagWindow, "window", 0, "capture the window with this ID")
	runCmd.Flags().StringVar(&flagApp, "app", "", "capture the application with this ID")
	runCmd.Flags().IntVar(&flagWidth, "width", 0, "output video width")
	runCmd.Flags().IntVar(&flagHeight, "height", 0, "output video height")
	runCmd.Flags().IntVar(&flagFPS, "fps", 0, "output framerate")
	runCmd.Flags().BoolVar(&flagAudio, "audio", false, "capture system audio")
	runCmd.Flags().StringVar(&flagExclude, "exclude-app-audio", "", "application whose audio is excluded from loopback")
	runCmd.Flags().StringVar(&flagVideoEP, "video-endpoint", "", "serve video on this pipe/socket instead of stdout")

	listCmd.Flags().BoolVar(&flagListJSON, "json", false, "print sources as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildConfig layers explicit flags over the file/env config.
func buildConfig(cmd *cobra.Command) (*config.Capture, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	switch {
	case cmd.Flags().Changed("window"):
		cfg.Kind = config.SourceWindow
		cfg.WindowID = flagWindow
	case cmd.Flags().Changed("app"):
		cfg.Kind = config.SourceApplication
		cfg.AppID = flagApp
	case cmd.Flags().Changed("display"):
		cfg.Kind = config.SourceDisplay
		cfg.DisplayIndex = flagDisplay
	}
	if cmd.Flags().Changed("width") {
		cfg.Width = flagWidth
	}
	if cmd.Flags().Changed("height") {
		cfg.Height = flagHeight
	}
	if cmd.Flags().Changed("fps") {
		cfg.Framerate = flagFPS
	}
	if cmd.Flags().Changed("audio") {
		cfg.Audio = flagAudio
	}
	if cmd.Flags().Changed("exclude-app-audio") {
		cfg.ExcludeAppAudio = flagExclude
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "config:", e)
		}
		return nil, errors.New("invalid configuration")
	}
	return cfg, nil
}

func runCapture(cmd *cobra.Command) int {
	cfg, err := buildConfig(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// The control stream doubles as the log destination: UTF-8 log lines
	// interleave with audio packets on stderr.
	var logOut io.Writer = os.Stderr
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, 10, 3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file: %v\n", err)
			return 1
		}
		defer rw.Close()
		logOut = logging.TeeWriter(os.Stderr, rw)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, logOut)
	log := logging.L("main")

	videoOut, cleanup, err := openVideoOutput()
	if err != nil {
		log.Error("cannot open video output", "error", err)
		return 1
	}
	defer cleanup()

	session, err := capture.NewSession(*cfg, videoOut, os.Stderr)
	if err != nil {
		log.Error("cannot start capture session", "error", err)
		return 1
	}

	// Stop signals request a cooperative shutdown; the session drains its
	// queues and the deferred cleanup runs before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("capture starting", "version", version,
		"kind", string(cfg.Kind), "width", cfg.Width, "height", cfg.Height,
		"fps", cfg.Framerate, "audio", cfg.Audio)

	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("capture session failed", "error", err)
		return 1
	}
	return 0
}

// openVideoOutput returns stdout, or a single accepted connection on the
// requested endpoint.
func openVideoOutput() (io.Writer, func(), error) {
	if flagVideoEP == "" {
		return os.Stdout, func() {}, nil
	}
	ln, err := wire.ListenStream(flagVideoEP)
	if err != nil {
		return nil, nil, err
	}
	conn, err := ln.Accept()
	if err != nil {
		ln.Close()
		return nil, nil, err
	}
	return conn, func() {
		conn.Close()
		ln.Close()
	}, nil
}

func listSources() int {
	logging.Init("text", "warn", os.Stderr)

	sources, err := capture.ListSources()
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: partial source list:", err)
	}

	if flagListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sources); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	fmt.Println("Displays:")
	for _, d := range sources.Displays {
		primary := ""
		if d.Primary {
			primary = " (primary)"
		}
		fmt.Printf("  [%d] %s %dx%d at %d,%d%s\n", d.Index, d.Name, d.Width, d.Height, d.X, d.Y, primary)
	}
	fmt.Println("Windows:")
	for _, w := range sources.Windows {
		fmt.Printf("  [%d] %q (%s)\n", w.ID, w.Title, w.AppName)
	}
	fmt.Println("Applications:")
	for _, a := range sources.Applications {
		fmt.Printf("  [%s] %s, %d process(es)\n", a.ID, a.Name, len(a.PIDs))
	}
	return 0
}
