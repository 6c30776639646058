package track

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/ideamans/go-l10n"
	"github.com/pion/sdp/v3"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
)

// aacSamplingRates is the MPEG-4 sampling frequency index table.
var aacSamplingRates = []int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

const (
	aacProfileLC = 2
	amrNBRate    = 8000
)

var errNoAudioEncoder = errors.New("track: no audio encoder")

// AudioDependencies are the collaborators of an audio track.
type AudioDependencies struct {
	NewEncoder ports.AudioEncoderFactory
	Packetizer ports.Packetizer
	Logger     ports.Logger
}

// AudioTrack streams AAC or AMR-NB audio.
type AudioTrack struct {
	mu     sync.Mutex
	codec  media.AudioCodec
	deps   AudioDependencies
	logger ports.Logger

	requested  media.AudioQuality
	applied    media.AudioQuality
	configured bool
	aacConfig  int

	port        int
	destination string
	ttl         int

	streaming         bool
	packetizerStarted bool
	encoder           ports.AudioEncoder
	output            io.Closer

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// NewAudioTrack creates an unconfigured audio track for codec.
func NewAudioTrack(codec media.AudioCodec, deps AudioDependencies) *AudioTrack {
	return &AudioTrack{
		codec:       codec,
		deps:        deps,
		logger:      deps.Logger.WithComponent("audio"),
		requested:   media.DefaultAudioQuality,
		port:        DefaultAudioPort,
		destination: "127.0.0.1",
		ttl:         64,
	}
}

func (a *AudioTrack) Kind() media.TrackKind { return media.KindAudio }

// Codec returns the track's audio codec.
func (a *AudioTrack) Codec() media.AudioCodec { return a.codec }

func (a *AudioTrack) SetQuality(q media.AudioQuality) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if q.SampleRate <= 0 {
		q.SampleRate = media.DefaultAudioQuality.SampleRate
	}
	if q.BitrateBps <= 0 {
		q.BitrateBps = media.DefaultAudioQuality.BitrateBps
	}
	a.requested = q
}

func (a *AudioTrack) SetDestinationPort(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.port = port
}

func (a *AudioTrack) DestinationPort() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port
}

func (a *AudioTrack) SetDestination(address string, ttl int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destination = address
	a.ttl = ttl
}

func (a *AudioTrack) Streaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streaming
}

func (a *AudioTrack) BitRate() int64 { return bitRate(a.deps.Packetizer) }

// Quality returns the applied quality.
func (a *AudioTrack) Quality() media.AudioQuality {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applied
}

// Configure validates the requested quality for the codec. AMR-NB always
// samples at 8 kHz.
func (a *AudioTrack) Configure(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.streaming {
		return fmt.Errorf("configure audio track: %w: streaming", media.ErrIllegalLifecycleState)
	}

	q := a.requested
	switch a.codec {
	case media.AudioAMRNB:
		q.SampleRate = amrNBRate
	case media.AudioAAC:
		index := samplingIndex(q.SampleRate)
		if index < 0 {
			return fmt.Errorf("configure audio track: %w: AAC at %d Hz", media.ErrConfigurationUnsupported, q.SampleRate)
		}
		a.aacConfig = (aacProfileLC&0x1F)<<11 | (index&0x0F)<<7 | (1&0x0F)<<3
	default:
		return fmt.Errorf("configure audio track: %w: codec %s", media.ErrConfigurationUnsupported, a.codec)
	}

	a.applied = q
	a.configured = true
	a.logger.Debug(l10n.F("Audio configured: %s %s", a.codec, q))
	return nil
}

func samplingIndex(rate int) int {
	for i, r := range aacSamplingRates {
		if r == rate {
			return i
		}
	}
	return -1
}

// Start begins capturing and streaming audio.
func (a *AudioTrack) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.streaming {
		return nil
	}
	if !a.configured {
		return fmt.Errorf("start audio track: %w: not configured", media.ErrIllegalLifecycleState)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancelMu.Lock()
	a.cancel = cancel
	a.cancelMu.Unlock()

	if err := a.startLocked(runCtx); err != nil {
		a.cancelRun()
		a.releaseLocked()
		return fmt.Errorf("start audio track: %w", err)
	}
	a.streaming = true
	a.logger.Info(l10n.F("Audio streaming to %s:%d", a.destination, a.port))
	return nil
}

func (a *AudioTrack) startLocked(ctx context.Context) error {
	if a.deps.NewEncoder == nil {
		return errNoAudioEncoder
	}
	enc := a.deps.NewEncoder()
	a.encoder = enc

	err := enc.Start(ctx, ports.AudioEncoderOptions{
		Codec:      a.codec.String(),
		SampleRate: a.applied.SampleRate,
		BitrateBps: a.applied.BitrateBps,
		Channels:   1,
	})
	if err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	out := enc.Output()
	a.output = out

	if err := a.deps.Packetizer.SetDestination(a.destination, a.port, a.ttl); err != nil {
		return fmt.Errorf("packetizer destination: %w", err)
	}
	a.deps.Packetizer.SetInputStream(out)
	if err := a.deps.Packetizer.Start(); err != nil {
		return fmt.Errorf("start packetizer: %w", err)
	}
	a.packetizerStarted = true
	return nil
}

// Stop releases the encoder and packetizer. Safe in any state.
func (a *AudioTrack) Stop() {
	a.cancelRun()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
}

func (a *AudioTrack) cancelRun() {
	a.cancelMu.Lock()
	defer a.cancelMu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *AudioTrack) releaseLocked() {
	var result *multierror.Error

	if a.packetizerStarted {
		if err := a.deps.Packetizer.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop packetizer: %w", err))
		}
		a.packetizerStarted = false
	}
	if a.encoder != nil {
		if err := a.encoder.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop encoder: %w", err))
		}
		a.encoder = nil
	}
	if a.output != nil {
		a.output.Close()
		a.output = nil
	}
	a.streaming = false

	if err := result.ErrorOrNil(); err != nil {
		a.logger.Warn(l10n.F("Failed to release audio resources: %s", err))
	}
}

// MediaDescription returns the audio media section of the track.
func (a *AudioTrack) MediaDescription() (*sdp.MediaDescription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.configured {
		return nil, fmt.Errorf("audio description: %w: not configured", media.ErrIllegalLifecycleState)
	}

	md := &sdp.MediaDescription{MediaName: mediaName("audio", a.port)}
	switch a.codec {
	case media.AudioAAC:
		md.Attributes = []sdp.Attribute{
			{Key: "rtpmap", Value: payloadType + " mpeg4-generic/" + strconv.Itoa(a.applied.SampleRate)},
			{Key: "fmtp", Value: payloadType + " streamtype=5; profile-level-id=15; mode=AAC-hbr; config=" +
				strconv.FormatInt(int64(a.aacConfig), 16) + "; SizeLength=13; IndexLength=3; IndexDeltaLength=3;"},
		}
	default:
		md.Attributes = []sdp.Attribute{
			{Key: "rtpmap", Value: payloadType + " AMR/8000"},
			{Key: "fmtp", Value: payloadType + " octet-align=1;"},
		}
	}
	return md, nil
}

func (a *AudioTrack) SessionDescription() (string, error) {
	md, err := a.MediaDescription()
	if err != nil {
		return "", err
	}
	return fragment(md), nil
}

var _ Track = (*AudioTrack)(nil)
