package track

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ideamans/go-l10n"
	"github.com/pion/sdp/v3"
	"github.com/r3labs/diff"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/mp4config"
	"github.com/user/telecast/pkg/mp4scan"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/probe"
)

const (
	keyframeInterval      = 3 * time.Second
	recorderBitrateFactor = 0.8
	virtualDisplayName    = "telecast-video"
)

var (
	errNoProjection     = errors.New("track: no projection to capture")
	errNoSurfaceEncoder = errors.New("track: no surface encoder")
	errNoRecorder       = errors.New("track: no recorder")
)

// VideoDependencies are the collaborators of a video track.
type VideoDependencies struct {
	Prober            Prober
	NewSurfaceEncoder ports.SurfaceEncoderFactory
	NewRecorder       ports.RecorderFactory
	Projection        ports.Projection
	Packetizer        ports.Packetizer
	Logger            ports.Logger
}

// VideoTrack streams the projected display as H.264.
type VideoTrack struct {
	mu     sync.Mutex
	deps   VideoDependencies
	logger ports.Logger

	requested            media.VideoQuality
	qualityOverride      bool
	geometry             *media.RecordingGeometry
	requestedOrientation int

	applied     media.VideoQuality
	orientation int
	config      *media.CodecConfiguration
	result      probe.Result

	port        int
	destination string
	ttl         int

	streaming         bool
	packetizerStarted bool
	encoder           ports.SurfaceEncoder
	recorder          ports.Recorder
	display           ports.VirtualDisplay
	stream            io.Closer

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// NewVideoTrack creates an unconfigured video track.
func NewVideoTrack(deps VideoDependencies) *VideoTrack {
	return &VideoTrack{
		deps:        deps,
		logger:      deps.Logger.WithComponent("video"),
		requested:   media.DefaultVideoQuality,
		port:        DefaultVideoPort,
		destination: "127.0.0.1",
		ttl:         64,
	}
}

func (v *VideoTrack) Kind() media.TrackKind { return media.KindVideo }

// SetQuality overrides the requested quality. Non-positive fields keep
// their defaults. It takes effect on the next Configure.
func (v *VideoTrack) SetQuality(q media.VideoQuality) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requested = q.Merge(media.DefaultVideoQuality)
	v.qualityOverride = true
}

// SetGeometry supplies the capture resolution used when no quality
// override is set.
func (v *VideoTrack) SetGeometry(g media.RecordingGeometry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.geometry = &g
}

// SetPreviewOrientation sets the capture rotation in degrees. A rotation of
// 90 or 270 swaps the requested width and height on the next Configure.
func (v *VideoTrack) SetPreviewOrientation(degrees int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requestedOrientation = ((degrees % 360) + 360) % 360
}

func (v *VideoTrack) SetDestinationPort(port int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.port = port
}

func (v *VideoTrack) DestinationPort() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.port
}

func (v *VideoTrack) SetDestination(address string, ttl int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.destination = address
	v.ttl = ttl
}

func (v *VideoTrack) Streaming() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.streaming
}

// BitRate returns the packetizer output rate in bits per second.
func (v *VideoTrack) BitRate() int64 { return bitRate(v.deps.Packetizer) }

// Quality returns the applied quality. It is zero before Configure.
func (v *VideoTrack) Quality() media.VideoQuality {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.applied
}

// ProbeResult returns the strategy chosen by the last successful Configure.
func (v *VideoTrack) ProbeResult() (probe.Result, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result, v.config != nil
}

func (v *VideoTrack) requestedQuality() media.VideoQuality {
	q := v.requested
	if !v.qualityOverride && v.geometry != nil {
		q.Width, q.Height = v.geometry.Width, v.geometry.Height
	}
	if v.requestedOrientation == 90 || v.requestedOrientation == 270 {
		q.Width, q.Height = q.Height, q.Width
	}
	return q
}

// Configure probes the requested quality. Calling it again with an
// unchanged request is a no-op. On failure the applied state is untouched.
// Stop cancels a probe in progress.
func (v *VideoTrack) Configure(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.streaming {
		return fmt.Errorf("configure video track: %w: streaming", media.ErrIllegalLifecycleState)
	}

	q := v.requestedQuality()
	if v.config != nil && q == v.applied && v.orientation == v.requestedOrientation {
		return nil
	}
	if v.config != nil {
		if changelog, err := diff.Diff(v.applied, q); err == nil {
			v.logger.Debug(l10n.F("Reconfiguring video: %+v", changelog))
		}
	}

	probeCtx, cancel := context.WithCancel(ctx)
	v.cancelMu.Lock()
	v.cancel = cancel
	v.cancelMu.Unlock()
	res, err := v.deps.Prober.Probe(probeCtx, q)
	v.cancelRun()
	if err != nil {
		return fmt.Errorf("configure video track: %w", err)
	}

	cfg := res.Config
	v.config = &cfg
	v.result = res
	v.applied = q
	v.orientation = v.requestedOrientation
	v.logger.Info(l10n.F("Video configured: %s using the %s strategy", q, res.Strategy))
	return nil
}

// Start begins streaming with the configured strategy.
func (v *VideoTrack) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.streaming {
		return nil
	}
	if v.config == nil {
		return fmt.Errorf("start video track: %w: not configured", media.ErrIllegalLifecycleState)
	}

	runCtx, cancel := context.WithCancel(ctx)
	v.cancelMu.Lock()
	v.cancel = cancel
	v.cancelMu.Unlock()

	var stream io.Reader
	var err error
	switch v.result.Strategy {
	case media.StrategyDirect:
		stream, err = v.openSurfaceEncoder(runCtx)
	default:
		stream, err = v.openRecorder(runCtx)
	}
	if err == nil {
		err = v.startPacketizer(stream)
	}
	if err != nil {
		v.cancelRun()
		v.releaseLocked()
		return fmt.Errorf("start video track: %w", err)
	}

	v.streaming = true
	v.logger.Info(l10n.F("Video streaming to %s:%d", v.destination, v.port))
	return nil
}

func (v *VideoTrack) openSurfaceEncoder(ctx context.Context) (io.Reader, error) {
	if v.deps.NewSurfaceEncoder == nil {
		return nil, errNoSurfaceEncoder
	}
	q := v.applied
	enc := v.deps.NewSurfaceEncoder()
	v.encoder = enc

	err := enc.Configure(ports.EncoderFormat{
		EncoderName:      v.result.EncoderName,
		Width:            q.Width,
		Height:           q.Height,
		FrameRate:        q.FrameRate,
		BitrateBps:       q.BitrateBps,
		KeyframeInterval: keyframeInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("configure encoder: %w", err)
	}
	surface, err := enc.InputSurface()
	if err != nil {
		return nil, fmt.Errorf("encoder surface: %w", err)
	}
	if err := v.project(surface); err != nil {
		return nil, err
	}
	if err := enc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	out := mp4scan.NewCancelableReader(ctx, enc.Output())
	v.stream = out
	return out, nil
}

func (v *VideoTrack) openRecorder(ctx context.Context) (io.Reader, error) {
	if v.deps.NewRecorder == nil {
		return nil, errNoRecorder
	}
	q := v.applied
	rec := v.deps.NewRecorder()
	v.recorder = rec

	err := rec.Prepare(ports.RecorderOptions{
		Width:      q.Width,
		Height:     q.Height,
		FrameRate:  q.FrameRate,
		BitrateBps: int(float64(q.BitrateBps) * recorderBitrateFactor),
	})
	if err != nil {
		return nil, fmt.Errorf("prepare recorder: %w", err)
	}
	surface, err := rec.Surface()
	if err != nil {
		return nil, fmt.Errorf("recorder surface: %w", err)
	}
	if err := v.project(surface); err != nil {
		return nil, err
	}
	if err := rec.Start(ctx); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	out := mp4scan.NewCancelableReader(ctx, rec.Output())
	v.stream = out
	br := bufio.NewReader(out)
	if err := mp4scan.SkipToPayload(ctx, br); err != nil {
		return nil, err
	}
	v.logger.Debug(l10n.T("Recorder payload located"))
	return mp4scan.NewAnnexBReader(br), nil
}

func (v *VideoTrack) project(surface ports.Surface) error {
	if v.deps.Projection == nil {
		return errNoProjection
	}
	density := 1
	if v.geometry != nil && v.geometry.Density > 0 {
		density = v.geometry.Density
	}
	display, err := v.deps.Projection.CreateVirtualDisplay(virtualDisplayName, v.applied.Width, v.applied.Height, density, surface)
	if err != nil {
		return fmt.Errorf("create virtual display: %w", err)
	}
	v.display = display
	return nil
}

func (v *VideoTrack) startPacketizer(stream io.Reader) error {
	sps, pps, err := mp4config.ParameterSets(*v.config)
	if err != nil {
		return err
	}
	if ps, ok := v.deps.Packetizer.(ports.ParameterSetter); ok {
		ps.SetStreamParameters(sps, pps)
	}
	if err := v.deps.Packetizer.SetDestination(v.destination, v.port, v.ttl); err != nil {
		return fmt.Errorf("packetizer destination: %w", err)
	}
	v.deps.Packetizer.SetInputStream(stream)
	if err := v.deps.Packetizer.Start(); err != nil {
		return fmt.Errorf("start packetizer: %w", err)
	}
	v.packetizerStarted = true
	return nil
}

// Stop cancels a running probe, or a running or starting stream, and
// releases its resources.
func (v *VideoTrack) Stop() {
	v.cancelRun()

	v.mu.Lock()
	defer v.mu.Unlock()
	wasStreaming := v.streaming
	v.releaseLocked()
	if wasStreaming {
		v.logger.Info(l10n.T("Video stream stopped"))
	}
}

func (v *VideoTrack) cancelRun() {
	v.cancelMu.Lock()
	defer v.cancelMu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

// releaseLocked tears down everything Start may have created. Failures are
// collected and logged.
func (v *VideoTrack) releaseLocked() {
	var result *multierror.Error

	if v.packetizerStarted {
		if err := v.deps.Packetizer.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop packetizer: %w", err))
		}
		v.packetizerStarted = false
	}
	if v.display != nil {
		if err := v.display.Release(); err != nil {
			result = multierror.Append(result, fmt.Errorf("release virtual display: %w", err))
		}
		v.display = nil
	}
	if v.encoder != nil {
		if err := v.encoder.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop encoder: %w", err))
		}
		if err := v.encoder.Release(); err != nil {
			result = multierror.Append(result, fmt.Errorf("release encoder: %w", err))
		}
		v.encoder = nil
	}
	if v.recorder != nil {
		if err := v.recorder.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop recorder: %w", err))
		} else if err := v.recorder.Reset(); err != nil {
			result = multierror.Append(result, fmt.Errorf("reset recorder: %w", err))
		}
		if err := v.recorder.Release(); err != nil {
			result = multierror.Append(result, fmt.Errorf("release recorder: %w", err))
		}
		v.recorder = nil
	}
	if v.stream != nil {
		v.stream.Close()
		v.stream = nil
	}
	v.streaming = false

	if err := result.ErrorOrNil(); err != nil {
		v.logger.Warn(l10n.F("Failed to release video resources: %s", err))
	}
}

// MediaDescription returns the H.264 media section of the track.
func (v *VideoTrack) MediaDescription() (*sdp.MediaDescription, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mediaDescriptionLocked()
}

func (v *VideoTrack) mediaDescriptionLocked() (*sdp.MediaDescription, error) {
	if v.config == nil {
		return nil, fmt.Errorf("video description: %w: not configured", media.ErrIllegalLifecycleState)
	}
	cfg := v.config
	return &sdp.MediaDescription{
		MediaName: mediaName("video", v.port),
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: payloadType + " H264/90000"},
			{Key: "fmtp", Value: payloadType + " packetization-mode=1;profile-level-id=" + cfg.ProfileLevelID +
				";sprop-parameter-sets=" + cfg.SPS + "," + cfg.PPS + ";"},
		},
	}, nil
}

func (v *VideoTrack) SessionDescription() (string, error) {
	md, err := v.MediaDescription()
	if err != nil {
		return "", err
	}
	return fragment(md), nil
}

var _ Track = (*VideoTrack)(nil)
