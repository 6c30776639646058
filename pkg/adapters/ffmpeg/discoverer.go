package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/hashicorp/go-multierror"
	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/mp4config"
	"github.com/user/telecast/pkg/ports"
)

// Discoverer finds a hardware H.264 encoder by encoding one synthetic
// frame with each candidate and reading the parameter sets it emits.
type Discoverer struct {
	opts Options

	// run executes ffmpeg with args and returns its stdout.
	run func(ctx context.Context, args []string) ([]byte, error)
}

// NewDiscoverer creates a Discoverer trying opts.HardwareEncoders in order.
func NewDiscoverer(opts Options) *Discoverer {
	d := &Discoverer{opts: opts.withDefaults()}
	d.run = d.runFFmpeg
	return d
}

func (d *Discoverer) runFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	path, err := d.opts.ffmpegPath()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// trialArgs encodes a single black frame of the requested size.
func (d *Discoverer) trialArgs(encoder string, width, height int) []string {
	global, filter := hardwareArgs(encoder, d.opts.VAAPIDevice)
	args := append(global,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=1", width, height),
		"-frames:v", "1",
		"-vf", filter,
		"-c:v", encoder,
		"-f", "h264", "pipe:1",
	)
	return args
}

// Discover returns the first encoder whose output matches the requested
// size.
func (d *Discoverer) Discover(ctx context.Context, width, height int) (ports.Discovery, error) {
	var errs *multierror.Error
	for _, encoder := range d.opts.HardwareEncoders {
		if err := ctx.Err(); err != nil {
			return ports.Discovery{}, err
		}
		disc, err := d.try(ctx, encoder, width, height)
		if err == nil {
			d.debug(l10n.F("Hardware encoder %s accepted %dx%d", encoder, width, height))
			return disc, nil
		}
		d.debug(l10n.F("Hardware encoder %s rejected: %s", encoder, err))
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", encoder, err))
	}
	return ports.Discovery{}, fmt.Errorf("%w for %dx%d: %w", ErrNoHardwareEncoder, width, height, errs.ErrorOrNil())
}

func (d *Discoverer) try(ctx context.Context, encoder string, width, height int) (ports.Discovery, error) {
	out, err := d.run(ctx, d.trialArgs(encoder, width, height))
	if err != nil {
		return ports.Discovery{}, err
	}
	sps, pps, err := mp4config.ExtractParameterSets(out)
	if err != nil {
		return ports.Discovery{}, err
	}
	info, err := avc.ParseSPSNALUnit(sps, false)
	if err != nil {
		return ports.Discovery{}, fmt.Errorf("parse SPS: %w", err)
	}
	if int(info.Width) != width || int(info.Height) != height {
		return ports.Discovery{}, fmt.Errorf("encoded %dx%d instead of %dx%d", info.Width, info.Height, width, height)
	}
	return ports.Discovery{EncoderName: encoder, SPS: sps, PPS: pps}, nil
}

func (d *Discoverer) debug(msg string) {
	if d.opts.Logger != nil {
		d.opts.Logger.Debug(msg)
	}
}

var _ ports.EncoderDiscoverer = (*Discoverer)(nil)
