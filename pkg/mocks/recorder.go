package mocks

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/user/telecast/pkg/ports"
)

// Recorder is a mock implementation of ports.Recorder. Unless DoneFunc is
// set, Done is closed by Start after writing FileData to the output path.
type Recorder struct {
	mu   sync.Mutex
	done chan struct{}

	PrepareFunc func(opts ports.RecorderOptions) error
	StartFunc   func(ctx context.Context) error
	StopFunc    func() error
	ResetFunc   func() error
	ReleaseFunc func() error

	// FileData is written to OutputPath on Start in file mode.
	FileData []byte
	// OutputData is served by Output in stream mode.
	OutputData []byte
	// OutputReader overrides OutputData.
	OutputReader io.ReadCloser
	// NeverDone keeps Done open.
	NeverDone bool

	// Recorded calls for verification
	Options       ports.RecorderOptions
	StartCalled   bool
	StopCalled    bool
	ResetCalled   bool
	ReleaseCalled bool
}

func (m *Recorder) Prepare(opts ports.RecorderOptions) error {
	m.mu.Lock()
	m.Options = opts
	m.done = make(chan struct{})
	m.mu.Unlock()
	if m.PrepareFunc != nil {
		return m.PrepareFunc(opts)
	}
	return nil
}

func (m *Recorder) Surface() (ports.Surface, error) {
	return &Surface{Width: m.Options.Width, Height: m.Options.Height}, nil
}

func (m *Recorder) Start(ctx context.Context) error {
	m.mu.Lock()
	m.StartCalled = true
	m.mu.Unlock()
	if m.StartFunc != nil {
		if err := m.StartFunc(ctx); err != nil {
			return err
		}
	}
	if m.Options.OutputPath != "" && m.FileData != nil {
		if err := os.WriteFile(m.Options.OutputPath, m.FileData, 0644); err != nil {
			return err
		}
	}
	if !m.NeverDone {
		close(m.done)
	}
	return nil
}

func (m *Recorder) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		m.done = make(chan struct{})
	}
	return m.done
}

func (m *Recorder) Output() io.ReadCloser {
	if m.OutputReader != nil {
		return m.OutputReader
	}
	return io.NopCloser(bytes.NewReader(m.OutputData))
}

func (m *Recorder) Stop() error {
	m.mu.Lock()
	m.StopCalled = true
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *Recorder) Reset() error {
	m.ResetCalled = true
	if m.ResetFunc != nil {
		return m.ResetFunc()
	}
	return nil
}

func (m *Recorder) Release() error {
	m.mu.Lock()
	m.ReleaseCalled = true
	m.mu.Unlock()
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc()
	}
	return nil
}

// WasStopped reports whether Stop was called.
func (m *Recorder) WasStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopCalled
}

// WasReleased reports whether Release was called.
func (m *Recorder) WasReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ReleaseCalled
}

var _ ports.Recorder = (*Recorder)(nil)
