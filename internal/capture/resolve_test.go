package capture

import (
	"errors"
	"testing"

	"github.com/snacka-app/media/internal/config"
)

func testSources() Sources {
	return Sources{
		Displays: []Display{
			{Index: 0, Name: "Display 1", Width: 1920, Height: 1080, Primary: true},
			{Index: 1, Name: "Display 2", Width: 2560, Height: 1440},
		},
		Windows: []Window{
			{ID: 0xA0B0, Title: "Editor", AppName: "editor"},
		},
		Applications: []Application{
			{ID: "snacka", Name: "Snacka", PIDs: []int32{101, 102}},
		},
	}
}

func TestResolveDisplay(t *testing.T) {
	cfg := *config.Default()
	cfg.DisplayIndex = 1

	src, err := Resolve(cfg, testSources())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if src.Kind != config.SourceDisplay || src.Display.Width != 2560 {
		t.Fatalf("wrong source resolved: %+v", src)
	}
}

func TestResolveMissingDisplayFails(t *testing.T) {
	cfg := *config.Default()
	cfg.DisplayIndex = 7

	_, err := Resolve(cfg, testSources())
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestResolveWindow(t *testing.T) {
	cfg := *config.Default()
	cfg.Kind = config.SourceWindow
	cfg.WindowID = 0xA0B0

	src, err := Resolve(cfg, testSources())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if src.Window.Title != "Editor" {
		t.Fatalf("wrong window resolved: %+v", src.Window)
	}

	cfg.WindowID = 0xDEAD
	if _, err := Resolve(cfg, testSources()); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound for stale window id, got %v", err)
	}
}

func TestResolveApplicationCaseInsensitive(t *testing.T) {
	cfg := *config.Default()
	cfg.Kind = config.SourceApplication
	cfg.AppID = "SNACKA"

	src, err := Resolve(cfg, testSources())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(src.App.PIDs) != 2 {
		t.Fatalf("wrong application resolved: %+v", src.App)
	}

	cfg.AppID = "ghost"
	if _, err := Resolve(cfg, testSources()); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound for unknown app, got %v", err)
	}
}
