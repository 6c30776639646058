package geometry

import (
	"errors"
	"testing"

	"github.com/user/telecast/pkg/media"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name                     string
		displayW, displayH       int
		landscape                bool
		profileW, profileH       int
		scale                    int
		wantW, wantH             int
	}{
		{"unknown profile keeps scaled box", 1920, 1080, true, Unknown, Unknown, 100, 1920, 1080},
		{"unknown profile scales", 1920, 1080, true, Unknown, Unknown, 50, 960, 540},
		{"portrait profile bound", 1440, 2560, false, 1920, 1080, 100, 1080, 1920},
		{"landscape profile fits", 1280, 720, true, 1920, 1080, 100, 1280, 720},
		{"landscape profile bound", 2560, 1440, true, 1920, 1080, 100, 1920, 1080},
		{"landscape ratio differs", 2400, 1080, true, 1280, 720, 100, 1600, 720},
		{"scale truncates", 1001, 999, true, Unknown, Unknown, 50, 500, 499},
		{"portrait ratio from truncated box", 101, 199, false, 1000, 40, 50, 40, 79},
		{"landscape ratio from truncated box", 199, 101, true, 1000, 40, 50, 79, 40},
		{"zero display height does not divide", 0, 0, true, 640, 480, 100, 0, 0},
		{"zero display width portrait", 0, 800, false, 640, 480, 100, 0, 800},
		{"only one unknown dimension uses profile", 1920, 1080, true, Unknown, 720, 100, 1280, 720},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.displayW, tt.displayH, 320, tt.landscape, tt.profileW, tt.profileH, tt.scale)
			if got.Width != tt.wantW || got.Height != tt.wantH {
				t.Errorf("Resolve() = %dx%d, want %dx%d", got.Width, got.Height, tt.wantW, tt.wantH)
			}
			if got.Density != 320 {
				t.Errorf("density = %d, want 320", got.Density)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	a := Resolve(1440, 2560, 560, false, 1920, 1080, 75)
	b := Resolve(1440, 2560, 560, false, 1920, 1080, 75)
	if a != b {
		t.Errorf("same inputs gave %v and %v", a, b)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(media.RecordingGeometry{Width: 1280, Height: 720, Density: 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Validate(media.RecordingGeometry{Width: 0, Height: 720}); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry, got %v", err)
	}
}
