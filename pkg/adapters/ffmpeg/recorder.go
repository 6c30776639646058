package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/ports"
)

// Recorder encodes frames with libx264 into an mp4 container. With an
// OutputPath it writes a regular file; otherwise it streams a fragmented
// mp4 through Output.
type Recorder struct {
	opts Options

	mu       sync.Mutex
	prepared ports.RecorderOptions
	input    *inputPipe
	surface  *rawSurface
	proc     *process
	done     chan struct{}
}

// NewRecorder creates an idle recorder.
func NewRecorder(opts Options) *Recorder {
	return &Recorder{opts: opts.withDefaults(), done: make(chan struct{})}
}

func (r *Recorder) Prepare(opts ports.RecorderOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opts.Width <= 0 || opts.Height <= 0 || opts.FrameRate <= 0 {
		return fmt.Errorf("ffmpeg: invalid recorder size %dx%d@%d", opts.Width, opts.Height, opts.FrameRate)
	}
	if r.input != nil {
		return fmt.Errorf("ffmpeg: recorder already prepared")
	}
	input, err := newInputPipe()
	if err != nil {
		return err
	}
	r.prepared = opts
	r.input = input
	r.surface = newRawSurface(input.w, opts.Width, opts.Height)
	return nil
}

func (r *Recorder) Surface() (ports.Surface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.surface == nil {
		return nil, ErrNotConfigured
	}
	return r.surface, nil
}

func (r *Recorder) args() []string {
	o := r.prepared
	args := rawVideoInput(o.Width, o.Height, o.FrameRate)
	if o.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", o.MaxDuration.Seconds()))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-pix_fmt", "yuv420p",
		"-g", fmt.Sprint(o.FrameRate),
	)
	if o.BitrateBps > 0 {
		args = append(args, "-b:v", fmt.Sprint(o.BitrateBps))
	}
	if o.OutputPath != "" {
		return append(args, "-f", "mp4", o.OutputPath)
	}
	return append(args,
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4", "pipe:1",
	)
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.input == nil {
		return ErrNotConfigured
	}
	path, err := r.opts.ffmpegPath()
	if err != nil {
		return err
	}
	proc, err := startProcess(ctx, path, r.args(), r.input, r.prepared.OutputPath == "", r.opts.StopGrace)
	if err != nil {
		return err
	}
	r.proc = proc

	done := r.done
	go func() {
		<-proc.Done()
		close(done)
	}()

	if r.opts.Logger != nil {
		r.opts.Logger.Debug(l10n.F("Started recorder at %dx%d", r.prepared.Width, r.prepared.Height))
	}
	return nil
}

// Done is closed when the recording process exits.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Recorder) Output() io.ReadCloser {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil || r.proc.stdout == nil {
		return io.NopCloser(eofReader{})
	}
	return r.proc.stdout
}

// Stop ends the recording. It fails when the process exited with an error
// before Stop was called.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil {
		return nil
	}
	exitErr := r.proc.ExitError()
	err := r.proc.Stop()
	if r.proc.stdout != nil {
		r.proc.stdout.Close()
	}
	r.proc = nil
	if exitErr != nil {
		return exitErr
	}
	return err
}

// Reset returns the recorder to the idle state so it can be prepared again.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseInputLocked()
	r.prepared = ports.RecorderOptions{}
	r.done = make(chan struct{})
	return nil
}

func (r *Recorder) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc != nil {
		r.proc.Stop()
		if r.proc.stdout != nil {
			r.proc.stdout.Close()
		}
		r.proc = nil
	}
	r.releaseInputLocked()
	return nil
}

func (r *Recorder) releaseInputLocked() {
	if r.input != nil {
		r.input.Close()
		r.input = nil
	}
	if r.surface != nil {
		r.surface.close()
		r.surface = nil
	}
}

var _ ports.Recorder = (*Recorder)(nil)
