// Package ffmpeg implements the encoder ports with an external ffmpeg
// process. Frames are written to ffmpeg as raw RGBA on stdin and encoded
// streams are read from stdout.
package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/user/telecast/pkg/ports"
)

var (
	// ErrFFmpegNotFound is returned when no ffmpeg executable is found.
	ErrFFmpegNotFound = errors.New("ffmpeg: executable not found")

	// ErrNotConfigured is returned when Start is called before Configure or Prepare.
	ErrNotConfigured = errors.New("ffmpeg: not configured")

	// ErrNoHardwareEncoder is returned when no hardware encoder passes the trial.
	ErrNoHardwareEncoder = errors.New("ffmpeg: no usable hardware encoder")
)

// DefaultHardwareEncoders is the order in which hardware H.264 encoders are tried.
var DefaultHardwareEncoders = []string{
	"h264_vaapi",
	"h264_nvenc",
	"h264_qsv",
	"h264_v4l2m2m",
	"h264_videotoolbox",
	"h264_mf",
	"h264_omx",
}

const (
	defaultVAAPIDevice = "/dev/dri/renderD128"
	defaultAudioInput  = "lavfi:sine=frequency=440"
	defaultStopGrace   = 2 * time.Second
)

var customFFmpegPath string

// SetFFmpegPath sets a custom path to the ffmpeg executable.
// Pass an empty string to use the default search behavior.
func SetFFmpegPath(path string) {
	customFFmpegPath = path
}

// IsAvailable reports whether ffmpeg can be found.
func IsAvailable() bool {
	_, err := FindFFmpeg()
	return err == nil
}

// FindFFmpeg searches for ffmpeg in PATH and common locations.
// Priority: 1) SetFFmpegPath, 2) FFMPEG_PATH env, 3) PATH, 4) common locations
func FindFFmpeg() (string, error) {
	if customFFmpegPath != "" {
		if _, err := os.Stat(customFFmpegPath); err == nil {
			return customFFmpegPath, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, customFFmpegPath)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/usr/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// Options are shared by every adapter in this package.
type Options struct {
	// Path overrides FindFFmpeg.
	Path string

	// HardwareEncoders are tried in order by the Discoverer.
	HardwareEncoders []string

	VAAPIDevice string

	// AudioInput is "format:device", for example "alsa:default" or
	// "lavfi:sine=frequency=440".
	AudioInput string

	// StopGrace is how long Stop waits for ffmpeg to exit after its input
	// was closed before killing it.
	StopGrace time.Duration

	Logger ports.Logger
}

func (o Options) withDefaults() Options {
	if len(o.HardwareEncoders) == 0 {
		o.HardwareEncoders = DefaultHardwareEncoders
	}
	if o.VAAPIDevice == "" {
		o.VAAPIDevice = defaultVAAPIDevice
	}
	if o.AudioInput == "" {
		o.AudioInput = defaultAudioInput
	}
	if o.StopGrace <= 0 {
		o.StopGrace = defaultStopGrace
	}
	return o
}

func (o Options) ffmpegPath() (string, error) {
	if o.Path != "" {
		if _, err := os.Stat(o.Path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrFFmpegNotFound, o.Path)
		}
		return o.Path, nil
	}
	return FindFFmpeg()
}

// rawVideoInput returns the arguments reading raw RGBA frames from stdin.
func rawVideoInput(width, height, fps int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprint(fps),
		"-i", "pipe:0",
	}
}

// hardwareArgs returns the global options and the pixel format filter an
// encoder needs.
func hardwareArgs(encoder, vaapiDevice string) (global []string, filter string) {
	switch encoder {
	case "h264_vaapi":
		return []string{"-vaapi_device", vaapiDevice}, "format=nv12,hwupload"
	case "h264_qsv":
		return nil, "format=nv12"
	default:
		return nil, "format=yuv420p"
	}
}

func gopSize(fps int, interval time.Duration) int {
	g := int(float64(fps) * interval.Seconds())
	if g < 1 {
		g = 1
	}
	return g
}
