package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// SourceKind selects which kind of capture source a session targets.
type SourceKind string

const (
	SourceDisplay     SourceKind = "display"
	SourceWindow      SourceKind = "window"
	SourceApplication SourceKind = "application"
)

// Capture holds the configuration of one capture session. It is built once
// from flags/config/env and is immutable for the session's lifetime.
type Capture struct {
	// Exactly one of the three source selectors is meaningful; Kind says which.
	Kind         SourceKind `mapstructure:"source_kind"`
	DisplayIndex int        `mapstructure:"display_index"`
	WindowID     uint64     `mapstructure:"window_id"`
	AppID        string     `mapstructure:"application_id"`

	Width     int  `mapstructure:"width"`
	Height    int  `mapstructure:"height"`
	Framerate int  `mapstructure:"framerate"`
	Audio     bool `mapstructure:"audio"`

	// ExcludeAppAudio names the companion application whose own audio
	// should not be looped back into the capture.
	ExcludeAppAudio string `mapstructure:"exclude_app_audio"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// Default returns a capture config for the primary display at 1080p30.
func Default() *Capture {
	return &Capture{
		Kind:      SourceDisplay,
		Width:     1920,
		Height:    1080,
		Framerate: 30,
		Audio:     false,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the capture config from cfgFile (or the platform config dir),
// with SNACKA_* environment overrides.
func Load(cfgFile string) (*Capture, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("capture")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SNACKA")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to the platform config dir.
func Save(cfg *Capture) error {
	viper.Set("source_kind", string(cfg.Kind))
	viper.Set("display_index", cfg.DisplayIndex)
	viper.Set("window_id", cfg.WindowID)
	viper.Set("application_id", cfg.AppID)
	viper.Set("width", cfg.Width)
	viper.Set("height", cfg.Height)
	viper.Set("framerate", cfg.Framerate)
	viper.Set("audio", cfg.Audio)
	viper.Set("exclude_app_audio", cfg.ExcludeAppAudio)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_file", cfg.LogFile)

	cfgPath := filepath.Join(configDir(), "capture.yaml")
	if err := os.MkdirAll(configDir(), 0700); err != nil {
		return err
	}
	return viper.WriteConfigAs(cfgPath)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Snacka")
	case "darwin":
		return "/Library/Application Support/Snacka"
	default:
		return "/etc/snacka"
	}
}
