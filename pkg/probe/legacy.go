package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/mp4config"
	"github.com/user/telecast/pkg/ports"
)

const virtualDisplayName = "telecast-probe"

func (p *Prober) probeLegacy(ctx context.Context, q media.VideoQuality) (Result, error) {
	sig := q.Signature()
	unlock := p.deps.Cache.Lock(media.StrategyLegacy, sig)
	defer unlock()

	if cfg, ok := p.deps.Cache.Get(media.StrategyLegacy, sig); ok {
		p.logger.Debug(l10n.F("Using cached configuration for %s", sig))
		return Result{Strategy: media.StrategyLegacy, Config: cfg, Cached: true}, nil
	}

	fs := p.deps.FileSystem
	if err := fs.CheckWritable(p.opts.ScratchDir); err != nil {
		return Result{}, fmt.Errorf("%w: %w", media.ErrStorageUnavailable, err)
	}
	path, err := fs.CreateTemp(p.opts.ScratchDir, "telecast-probe-*.mp4")
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", media.ErrStorageUnavailable, err)
	}

	if err := p.record(ctx, q, path); err != nil {
		p.removeScratch(path)
		return Result{}, fmt.Errorf("%w: %w", media.ErrConfigurationUnsupported, err)
	}

	cfg, parseErr := mp4config.FromFile(path)
	p.removeScratch(path)
	if parseErr != nil {
		return Result{}, fmt.Errorf("%w: %w", media.ErrConfigurationUnsupported, parseErr)
	}

	if err := p.deps.Cache.Put(media.StrategyLegacy, sig, cfg); err != nil {
		p.logger.Warn(l10n.F("Failed to cache configuration: %s", err))
	}
	p.logger.Debug(l10n.F("Recorder configuration for %s: profile %s", sig, cfg.ProfileLevelID))
	return Result{Strategy: media.StrategyLegacy, Config: cfg}, nil
}

// record runs the test recording into path. Whatever happens, the recorder
// and the virtual display are released before it returns.
func (p *Prober) record(ctx context.Context, q media.VideoQuality, path string) error {
	if p.deps.NewRecorder == nil {
		return fmt.Errorf("probe: no recorder")
	}
	rec := p.deps.NewRecorder()
	var display ports.VirtualDisplay

	defer func() {
		if display != nil {
			if err := display.Release(); err != nil {
				p.logger.Debug(l10n.F("Virtual display release failed: %s", err))
			}
		}
		if err := rec.Stop(); err == nil {
			_ = rec.Reset()
		}
		_ = rec.Release()
	}()

	opts := ports.RecorderOptions{
		Width:       q.Width,
		Height:      q.Height,
		FrameRate:   q.FrameRate,
		BitrateBps:  int(float64(q.BitrateBps) * p.opts.BitrateFactor),
		MaxDuration: p.opts.ProbeDuration,
		OutputPath:  path,
	}
	if err := rec.Prepare(opts); err != nil {
		return fmt.Errorf("prepare recorder: %w", err)
	}

	if p.deps.Projection != nil {
		surface, err := rec.Surface()
		if err != nil {
			return fmt.Errorf("recorder surface: %w", err)
		}
		display, err = p.deps.Projection.CreateVirtualDisplay(virtualDisplayName, q.Width, q.Height, p.opts.DisplayDensity, surface)
		if err != nil {
			return fmt.Errorf("create virtual display: %w", err)
		}
	}

	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}

	p.waitForCompletion(ctx, rec)
	return nil
}

// waitForCompletion waits up to CompletionTimeout for the recorder to
// finish. Neither a timeout nor cancellation is an error here; the caller
// parses whatever was written.
func (p *Prober) waitForCompletion(ctx context.Context, rec ports.Recorder) {
	timer := time.NewTimer(p.opts.CompletionTimeout)
	defer timer.Stop()

	select {
	case <-rec.Done():
		p.logger.Debug(l10n.T("Recorder reached its maximum duration"))
	case <-timer.C:
		p.logger.Debug(l10n.F("Recorder did not finish within %s", p.opts.CompletionTimeout))
		return
	case <-ctx.Done():
		p.logger.Warn(l10n.F("Probe wait interrupted: %s", ctx.Err()))
		return
	}

	if p.opts.FlushDelay <= 0 {
		return
	}
	flush := time.NewTimer(p.opts.FlushDelay)
	defer flush.Stop()
	select {
	case <-flush.C:
	case <-ctx.Done():
		p.logger.Warn(l10n.F("Probe wait interrupted: %s", ctx.Err()))
	}
}

func (p *Prober) removeScratch(path string) {
	if err := p.deps.FileSystem.Remove(path); err != nil {
		p.logger.Warn(l10n.F("Failed to remove test recording %s: %s", path, err))
	}
}
