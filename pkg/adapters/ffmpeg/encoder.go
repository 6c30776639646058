package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/ports"
)

// SurfaceEncoder encodes frames with a named hardware encoder and emits an
// Annex-B H.264 stream.
type SurfaceEncoder struct {
	opts Options

	mu      sync.Mutex
	format  ports.EncoderFormat
	input   *inputPipe
	surface *rawSurface
	proc    *process
}

// NewSurfaceEncoder creates an unconfigured encoder.
func NewSurfaceEncoder(opts Options) *SurfaceEncoder {
	return &SurfaceEncoder{opts: opts.withDefaults()}
}

func (e *SurfaceEncoder) Configure(format ports.EncoderFormat) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if format.Width <= 0 || format.Height <= 0 || format.FrameRate <= 0 {
		return fmt.Errorf("ffmpeg: invalid encoder format %dx%d@%d", format.Width, format.Height, format.FrameRate)
	}
	input, err := newInputPipe()
	if err != nil {
		return err
	}
	e.format = format
	e.input = input
	e.surface = newRawSurface(input.w, format.Width, format.Height)
	return nil
}

func (e *SurfaceEncoder) InputSurface() (ports.Surface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface == nil {
		return nil, ErrNotConfigured
	}
	return e.surface, nil
}

func (e *SurfaceEncoder) args() []string {
	f := e.format
	global, filter := hardwareArgs(f.EncoderName, e.opts.VAAPIDevice)
	args := append(global, rawVideoInput(f.Width, f.Height, f.FrameRate)...)
	args = append(args,
		"-vf", filter,
		"-c:v", f.EncoderName,
		"-g", fmt.Sprint(gopSize(f.FrameRate, f.KeyframeInterval)),
		"-bf", "0",
	)
	if f.BitrateBps > 0 {
		args = append(args, "-b:v", fmt.Sprint(f.BitrateBps))
	}
	return append(args, "-f", "h264", "pipe:1")
}

func (e *SurfaceEncoder) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.input == nil {
		return ErrNotConfigured
	}
	path, err := e.opts.ffmpegPath()
	if err != nil {
		return err
	}
	proc, err := startProcess(ctx, path, e.args(), e.input, true, e.opts.StopGrace)
	if err != nil {
		return err
	}
	e.proc = proc
	if e.opts.Logger != nil {
		e.opts.Logger.Debug(l10n.F("Started %s encoder at %dx%d", e.format.EncoderName, e.format.Width, e.format.Height))
	}
	return nil
}

// Output returns the encoded stream. It is only valid after Start.
func (e *SurfaceEncoder) Output() io.ReadCloser {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil {
		return io.NopCloser(eofReader{})
	}
	return e.proc.stdout
}

func (e *SurfaceEncoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil {
		return nil
	}
	err := e.proc.Stop()
	e.proc.stdout.Close()
	e.proc = nil
	return err
}

func (e *SurfaceEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Closing the pipe first unblocks a frame write in progress.
	if e.input != nil {
		e.input.Close()
		e.input = nil
	}
	if e.surface != nil {
		e.surface.close()
		e.surface = nil
	}
	return nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

var _ ports.SurfaceEncoder = (*SurfaceEncoder)(nil)
