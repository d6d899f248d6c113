package config

import (
	"fmt"
	"strings"
)

const (
	minDimension = 1
	maxDimension = 4096
	minFramerate = 1
	maxFramerate = 120
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors
// found. Out-of-range dimensions and framerates are hard errors: the
// video stream's framing depends on them being exact, so clamping would
// silently change the wire contract.
func (c *Capture) Validate() []error {
	var errs []error

	switch c.Kind {
	case SourceDisplay:
		if c.DisplayIndex < 0 {
			errs = append(errs, fmt.Errorf("display_index %d is negative", c.DisplayIndex))
		}
	case SourceWindow:
		if c.WindowID == 0 {
			errs = append(errs, fmt.Errorf("source_kind is window but window_id is unset"))
		}
	case SourceApplication:
		if strings.TrimSpace(c.AppID) == "" {
			errs = append(errs, fmt.Errorf("source_kind is application but application_id is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source_kind %q", c.Kind))
	}

	if c.Width < minDimension || c.Width > maxDimension {
		errs = append(errs, fmt.Errorf("width %d outside %d-%d", c.Width, minDimension, maxDimension))
	}
	if c.Height < minDimension || c.Height > maxDimension {
		errs = append(errs, fmt.Errorf("height %d outside %d-%d", c.Height, minDimension, maxDimension))
	}
	// NV12 framing needs even dimensions for the half-resolution chroma plane.
	if c.Width%2 != 0 {
		errs = append(errs, fmt.Errorf("width %d must be even", c.Width))
	}
	if c.Height%2 != 0 {
		errs = append(errs, fmt.Errorf("height %d must be even", c.Height))
	}

	if c.Framerate < minFramerate || c.Framerate > maxFramerate {
		errs = append(errs, fmt.Errorf("framerate %d outside %d-%d", c.Framerate, minFramerate, maxFramerate))
	}

	if c.ExcludeAppAudio != "" && !c.Audio {
		errs = append(errs, fmt.Errorf("exclude_app_audio set but audio capture is disabled"))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	return errs
}
