package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/user/telecast/pkg/ports"
)

// AudioEncoder captures AudioInput and encodes it as ADTS AAC or AMR-NB.
type AudioEncoder struct {
	opts Options

	mu   sync.Mutex
	proc *process
}

func NewAudioEncoder(opts Options) *AudioEncoder {
	return &AudioEncoder{opts: opts.withDefaults()}
}

func (a *AudioEncoder) args(o ports.AudioEncoderOptions) ([]string, error) {
	format, device, ok := strings.Cut(a.opts.AudioInput, ":")
	if !ok {
		return nil, fmt.Errorf("ffmpeg: audio input %q is not format:device", a.opts.AudioInput)
	}

	var codec []string
	rate, channels := o.SampleRate, o.Channels
	switch o.Codec {
	case "aac":
		codec = []string{"-c:a", "aac", "-b:a", fmt.Sprint(o.BitrateBps), "-f", "adts"}
	case "amrnb":
		// AMR-NB only runs at 8 kHz mono.
		rate, channels = 8000, 1
		codec = []string{"-c:a", "libopencore_amrnb", "-b:a", "12.2k", "-f", "amr"}
	default:
		return nil, fmt.Errorf("ffmpeg: unsupported audio codec %q", o.Codec)
	}
	if channels <= 0 {
		channels = 1
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if format == "lavfi" {
		args = append(args, "-re")
	}
	args = append(args,
		"-f", format, "-i", device,
		"-ac", fmt.Sprint(channels),
		"-ar", fmt.Sprint(rate),
	)
	args = append(args, codec...)
	return append(args, "pipe:1"), nil
}

func (a *AudioEncoder) Start(ctx context.Context, o ports.AudioEncoderOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.proc != nil {
		return fmt.Errorf("ffmpeg: audio encoder already started")
	}
	args, err := a.args(o)
	if err != nil {
		return err
	}
	path, err := a.opts.ffmpegPath()
	if err != nil {
		return err
	}
	proc, err := startProcess(ctx, path, args, nil, true, a.opts.StopGrace)
	if err != nil {
		return err
	}
	a.proc = proc
	return nil
}

func (a *AudioEncoder) Output() io.ReadCloser {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.proc == nil {
		return io.NopCloser(eofReader{})
	}
	return a.proc.stdout
}

// Stop kills the capture process.
func (a *AudioEncoder) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.proc == nil {
		return nil
	}
	err := a.proc.Stop()
	a.proc.stdout.Close()
	a.proc = nil
	return err
}

var _ ports.AudioEncoder = (*AudioEncoder)(nil)
