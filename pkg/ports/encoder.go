package ports

import (
	"context"
	"image"
	"io"
	"time"
)

// Surface is an encoder input that accepts rendered frames.
type Surface interface {
	// WriteFrame pushes one frame. Frames of a different size are scaled.
	WriteFrame(img image.Image) error

	// Size returns the surface dimensions in pixels.
	Size() (width, height int)
}

// EncoderFormat configures a surface encoder.
type EncoderFormat struct {
	EncoderName      string
	Width            int
	Height           int
	FrameRate        int
	BitrateBps       int
	KeyframeInterval time.Duration
}

// SurfaceEncoder is a hardware encoder fed through an input surface that
// emits an Annex-B H.264 elementary stream.
type SurfaceEncoder interface {
	Configure(format EncoderFormat) error
	InputSurface() (Surface, error)
	Start(ctx context.Context) error
	Output() io.ReadCloser
	Stop() error
	Release() error
}

// SurfaceEncoderFactory creates a fresh surface encoder per stream.
type SurfaceEncoderFactory func() SurfaceEncoder

// Discovery is the result of a successful hardware encoder trial.
type Discovery struct {
	EncoderName string
	SPS         []byte
	PPS         []byte
}

// EncoderDiscoverer finds a hardware encoder accepting a resolution and
// reports the parameter sets it produces.
type EncoderDiscoverer interface {
	Discover(ctx context.Context, width, height int) (Discovery, error)
}

// RecorderOptions configures a container recorder.
type RecorderOptions struct {
	Width       int
	Height      int
	FrameRate   int
	BitrateBps  int
	MaxDuration time.Duration

	// OutputPath is the mp4 file to write. When empty the recorder streams
	// a fragmented container through Output.
	OutputPath string
}

// Recorder records frames from its surface into an mp4 container.
type Recorder interface {
	Prepare(opts RecorderOptions) error
	Surface() (Surface, error)
	Start(ctx context.Context) error

	// Done is closed when the recorder finishes on its own, for example
	// after reaching MaxDuration.
	Done() <-chan struct{}

	// Output is the container byte stream when no OutputPath was set.
	Output() io.ReadCloser

	Stop() error
	Reset() error
	Release() error
}

// RecorderFactory creates a fresh recorder per use.
type RecorderFactory func() Recorder

// AudioEncoderOptions configures an audio encoder.
type AudioEncoderOptions struct {
	Codec      string // "aac" or "amrnb"
	SampleRate int
	BitrateBps int
	Channels   int
}

// AudioEncoder captures and encodes audio. AAC output is ADTS framed and
// AMR-NB output uses the AMR storage format.
type AudioEncoder interface {
	Start(ctx context.Context, opts AudioEncoderOptions) error
	Output() io.ReadCloser
	Stop() error
}

// AudioEncoderFactory creates a fresh audio encoder per stream.
type AudioEncoderFactory func() AudioEncoder
