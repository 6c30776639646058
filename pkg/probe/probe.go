// Package probe decides which encoding strategy works for a requested video
// quality and extracts the codec configuration that strategy produces.
//
// The Direct strategy asks a hardware encoder for its parameter sets. When
// that fails the probe moves to the Legacy strategy exactly once: it records
// a short test clip into a throwaway mp4 file and reads the parameter sets
// from the container. Legacy results are cached per quality signature.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/capcache"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/mp4config"
	"github.com/user/telecast/pkg/ports"
)

// Result is the outcome of a successful probe.
type Result struct {
	Strategy media.EncodingStrategy
	Config   media.CodecConfiguration

	// EncoderName is the hardware encoder that passed the Direct trial.
	EncoderName string

	// FallbackUsed is set when Direct failed and Legacy succeeded.
	FallbackUsed bool

	// Cached is set when the Legacy result came from the capability cache.
	Cached bool
}

// Options tunes the Legacy test recording.
type Options struct {
	// ScratchDir holds the throwaway test recording. Defaults to os.TempDir().
	ScratchDir string

	// ProbeDuration is the recorder's maximum duration.
	ProbeDuration time.Duration

	// CompletionTimeout bounds the wait for the recorder to finish.
	CompletionTimeout time.Duration

	// FlushDelay is slept after completion so the container is finalised.
	FlushDelay time.Duration

	// BitrateFactor scales the requested bitrate for the test recording.
	BitrateFactor float64

	// DisplayDensity is passed to the probe's virtual display.
	DisplayDensity int

	// ForceLegacy skips the Direct strategy.
	ForceLegacy bool
}

// DefaultOptions returns the timings used by the recorder based probe.
func DefaultOptions() Options {
	return Options{
		ScratchDir:        os.TempDir(),
		ProbeDuration:     3 * time.Second,
		CompletionTimeout: 6 * time.Second,
		FlushDelay:        400 * time.Millisecond,
		BitrateFactor:     0.8,
		DisplayDensity:    1,
	}
}

// Dependencies are the collaborators of a Prober. Discoverer may be nil, in
// which case every probe uses the Legacy strategy.
type Dependencies struct {
	Discoverer  ports.EncoderDiscoverer
	NewRecorder ports.RecorderFactory
	Projection  ports.Projection
	Cache       *capcache.Cache
	FileSystem  ports.FileSystem
	Logger      ports.Logger
}

var errNoDiscoverer = errors.New("probe: no hardware encoder discoverer")

// Prober runs capability probes. It is safe for concurrent use.
type Prober struct {
	deps   Dependencies
	opts   Options
	logger ports.Logger
}

// New creates a Prober.
func New(deps Dependencies, opts Options) *Prober {
	defaults := DefaultOptions()
	if opts.ScratchDir == "" {
		opts.ScratchDir = defaults.ScratchDir
	}
	if opts.ProbeDuration <= 0 {
		opts.ProbeDuration = defaults.ProbeDuration
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = defaults.CompletionTimeout
	}
	if opts.FlushDelay < 0 {
		opts.FlushDelay = 0
	}
	if opts.BitrateFactor <= 0 {
		opts.BitrateFactor = defaults.BitrateFactor
	}
	if opts.DisplayDensity <= 0 {
		opts.DisplayDensity = defaults.DisplayDensity
	}
	return &Prober{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.WithComponent("probe"),
	}
}

// probeState tracks the strategy of one probe call. It only ever moves from
// Direct to Legacy.
type probeState struct {
	strategy media.EncodingStrategy
	fellBack bool
}

func newProbeState(forceLegacy bool) *probeState {
	if forceLegacy {
		return &probeState{strategy: media.StrategyLegacy}
	}
	return &probeState{strategy: media.StrategyDirect}
}

// fallback moves the state to Legacy and reports whether it changed.
func (s *probeState) fallback() bool {
	if s.strategy == media.StrategyLegacy {
		return false
	}
	s.strategy = media.StrategyLegacy
	s.fellBack = true
	return true
}

// Probe finds a working strategy for q. A Legacy failure is final, even when
// it follows a Direct failure.
func (p *Prober) Probe(ctx context.Context, q media.VideoQuality) (Result, error) {
	state := newProbeState(p.opts.ForceLegacy)

	if state.strategy == media.StrategyDirect {
		res, err := p.probeDirect(ctx, q)
		if err == nil {
			p.logger.Debug(l10n.F("Surface encoder %s accepts %s", res.EncoderName, q))
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		p.logger.Warn(l10n.F("Resolution %dx%d not supported by a surface encoder, using the recorder: %s", q.Width, q.Height, err))
		state.fallback()
	}

	res, err := p.probeLegacy(ctx, q)
	if err != nil {
		return Result{}, err
	}
	res.FallbackUsed = state.fellBack
	return res, nil
}

func (p *Prober) probeDirect(ctx context.Context, q media.VideoQuality) (Result, error) {
	if p.deps.Discoverer == nil {
		return Result{}, errNoDiscoverer
	}
	d, err := p.deps.Discoverer.Discover(ctx, q.Width, q.Height)
	if err != nil {
		return Result{}, fmt.Errorf("discover encoder: %w", err)
	}
	cfg, err := mp4config.FromParameterSets(d.SPS, d.PPS)
	if err != nil {
		return Result{}, fmt.Errorf("encoder %s: %w", d.EncoderName, err)
	}
	return Result{Strategy: media.StrategyDirect, Config: cfg, EncoderName: d.EncoderName}, nil
}
