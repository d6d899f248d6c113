package capture

import (
	"fmt"
	"strings"

	"github.com/snacka-app/media/internal/config"
)

// Display describes a connected display output.
type Display struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Primary bool   `json:"isPrimary"`
}

// Window describes a visible top-level window.
type Window struct {
	ID      uint64 `json:"id"`
	Title   string `json:"title"`
	AppName string `json:"appName"`
}

// Application groups running processes that share an executable name.
type Application struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	PIDs []int32 `json:"pids"`
}

// Sources is the live enumeration of everything capturable right now.
type Sources struct {
	Displays     []Display     `json:"displays"`
	Windows      []Window      `json:"windows"`
	Applications []Application `json:"applications"`
}

// ListSources enumerates displays, windows, and applications. Partial
// results are returned with the first enumeration error; a host with no
// window system still lists applications.
func ListSources() (Sources, error) {
	var s Sources
	var firstErr error

	displays, err := listDisplays()
	if err != nil {
		firstErr = err
	}
	s.Displays = displays

	windows, err := listWindows()
	if err != nil && firstErr == nil {
		firstErr = err
	}
	s.Windows = windows

	apps, err := ListApplications()
	if err != nil && firstErr == nil {
		firstErr = err
	}
	s.Applications = apps

	return s, firstErr
}

// Source is a resolved capture target.
type Source struct {
	Kind    config.SourceKind
	Display Display
	Window  Window
	App     Application
}

// Resolve matches the configured source selection against a live
// enumeration. A selection that no longer exists fails with
// ErrSourceNotFound.
func Resolve(cfg config.Capture, s Sources) (Source, error) {
	switch cfg.Kind {
	case config.SourceDisplay:
		for _, d := range s.Displays {
			if d.Index == cfg.DisplayIndex {
				return Source{Kind: cfg.Kind, Display: d}, nil
			}
		}
		return Source{}, fmt.Errorf("display %d: %w", cfg.DisplayIndex, ErrSourceNotFound)

	case config.SourceWindow:
		for _, w := range s.Windows {
			if w.ID == cfg.WindowID {
				return Source{Kind: cfg.Kind, Window: w}, nil
			}
		}
		return Source{}, fmt.Errorf("window %d: %w", cfg.WindowID, ErrSourceNotFound)

	case config.SourceApplication:
		for _, a := range s.Applications {
			if strings.EqualFold(a.ID, cfg.AppID) {
				return Source{Kind: cfg.Kind, App: a}, nil
			}
		}
		return Source{}, fmt.Errorf("application %q: %w", cfg.AppID, ErrSourceNotFound)

	default:
		return Source{}, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}
