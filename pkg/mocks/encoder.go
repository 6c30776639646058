package mocks

import (
	"bytes"
	"context"
	"image"
	"io"
	"sync"

	"github.com/user/telecast/pkg/ports"
)

// Surface records frames written to it.
type Surface struct {
	mu     sync.Mutex
	Width  int
	Height int
	Frames int

	WriteFrameFunc func(img image.Image) error
}

func (m *Surface) WriteFrame(img image.Image) error {
	m.mu.Lock()
	m.Frames++
	m.mu.Unlock()
	if m.WriteFrameFunc != nil {
		return m.WriteFrameFunc(img)
	}
	return nil
}

func (m *Surface) Size() (int, int) {
	return m.Width, m.Height
}

// FrameCount returns the number of frames written so far.
func (m *Surface) FrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Frames
}

// SurfaceEncoder is a mock implementation of ports.SurfaceEncoder.
type SurfaceEncoder struct {
	ConfigureFunc    func(format ports.EncoderFormat) error
	InputSurfaceFunc func() (ports.Surface, error)
	StartFunc        func(ctx context.Context) error
	StopFunc         func() error
	ReleaseFunc      func() error

	// OutputData is served by Output when set.
	OutputData []byte

	// Recorded calls for verification
	Format        ports.EncoderFormat
	StartCalled   bool
	StopCalled    bool
	ReleaseCalled bool
}

func (m *SurfaceEncoder) Configure(format ports.EncoderFormat) error {
	m.Format = format
	if m.ConfigureFunc != nil {
		return m.ConfigureFunc(format)
	}
	return nil
}

func (m *SurfaceEncoder) InputSurface() (ports.Surface, error) {
	if m.InputSurfaceFunc != nil {
		return m.InputSurfaceFunc()
	}
	return &Surface{Width: m.Format.Width, Height: m.Format.Height}, nil
}

func (m *SurfaceEncoder) Start(ctx context.Context) error {
	m.StartCalled = true
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

func (m *SurfaceEncoder) Output() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(m.OutputData))
}

func (m *SurfaceEncoder) Stop() error {
	m.StopCalled = true
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *SurfaceEncoder) Release() error {
	m.ReleaseCalled = true
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc()
	}
	return nil
}

var _ ports.SurfaceEncoder = (*SurfaceEncoder)(nil)

// EncoderDiscoverer is a mock implementation of ports.EncoderDiscoverer.
type EncoderDiscoverer struct {
	DiscoverFunc func(ctx context.Context, width, height int) (ports.Discovery, error)

	// Recorded calls for verification
	Calls int
}

func (m *EncoderDiscoverer) Discover(ctx context.Context, width, height int) (ports.Discovery, error) {
	m.Calls++
	if m.DiscoverFunc != nil {
		return m.DiscoverFunc(ctx, width, height)
	}
	return ports.Discovery{}, nil
}

var _ ports.EncoderDiscoverer = (*EncoderDiscoverer)(nil)

// AudioEncoder is a mock implementation of ports.AudioEncoder.
type AudioEncoder struct {
	StartFunc func(ctx context.Context, opts ports.AudioEncoderOptions) error
	StopFunc  func() error

	OutputData []byte

	// Recorded calls for verification
	Options     ports.AudioEncoderOptions
	StartCalled bool
	StopCalled  bool
}

func (m *AudioEncoder) Start(ctx context.Context, opts ports.AudioEncoderOptions) error {
	m.StartCalled = true
	m.Options = opts
	if m.StartFunc != nil {
		return m.StartFunc(ctx, opts)
	}
	return nil
}

func (m *AudioEncoder) Output() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(m.OutputData))
}

func (m *AudioEncoder) Stop() error {
	m.StopCalled = true
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

var _ ports.AudioEncoder = (*AudioEncoder)(nil)
