package session

import (
	"errors"
	"fmt"

	"github.com/user/telecast/pkg/adapters/logger"
	"github.com/user/telecast/pkg/adapters/osfilesystem"
	"github.com/user/telecast/pkg/capcache"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/probe"
	"github.com/user/telecast/pkg/track"
)

var (
	ErrNoVideoPacketizer = errors.New("session: no video packetizer")
	ErrNoAudioPacketizer = errors.New("session: no audio packetizer")
	ErrNoProjection      = errors.New("session: video requires a projection")
	ErrNoAudioEncoder    = errors.New("session: no audio encoder")
)

// Dependencies are the platform collaborators shared by every session a
// Builder creates.
type Dependencies struct {
	Logger             ports.Logger
	FileSystem         ports.FileSystem
	Discoverer         ports.EncoderDiscoverer
	NewSurfaceEncoder  ports.SurfaceEncoderFactory
	NewRecorder        ports.RecorderFactory
	NewAudioEncoder    ports.AudioEncoderFactory
	NewVideoPacketizer func() ports.Packetizer
	NewAudioPacketizer func(codec media.AudioCodec) ports.Packetizer
}

// Builder assembles sessions. Settings are applied with the With methods
// and each Build creates an independent session.
type Builder struct {
	deps         Dependencies
	projection   ports.Projection
	cache        *capcache.Cache
	prober       track.Prober
	probeOptions probe.Options

	videoCodec      media.VideoCodec
	audioCodec      media.AudioCodec
	videoQuality    media.VideoQuality
	videoQualitySet bool
	audioQuality    media.AudioQuality
	geometry        *media.RecordingGeometry
	orientation     int

	origin      string
	destination string
	ttl         int
	videoPort   int
	audioPort   int
	callback    Callback
}

// NewBuilder creates a builder with default settings: H.264 video, AMR-NB
// audio, loopback destination.
func NewBuilder(deps Dependencies) *Builder {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoop()
	}
	if deps.FileSystem == nil {
		deps.FileSystem = osfilesystem.New()
	}
	return &Builder{
		deps:         deps,
		cache:        capcache.New(nil, deps.Logger),
		probeOptions: probe.DefaultOptions(),
		videoCodec:   media.VideoH264,
		audioCodec:   media.AudioAMRNB,
		videoQuality: media.DefaultVideoQuality,
		audioQuality: media.DefaultAudioQuality,
		origin:       defaultAddress,
		destination:  defaultAddress,
		ttl:          DefaultTTL,
		videoPort:    track.DefaultVideoPort,
		audioPort:    track.DefaultAudioPort,
	}
}

func (b *Builder) WithProjection(p ports.Projection) *Builder {
	b.projection = p
	return b
}

// WithCapabilityCache replaces the cache shared by the builder and its
// clones. A nil cache is ignored.
func (b *Builder) WithCapabilityCache(c *capcache.Cache) *Builder {
	if c != nil {
		b.cache = c
	}
	return b
}

// WithProber replaces the capability prober of the video track.
func (b *Builder) WithProber(p track.Prober) *Builder {
	b.prober = p
	return b
}

func (b *Builder) WithProbeOptions(opts probe.Options) *Builder {
	b.probeOptions = opts
	return b
}

func (b *Builder) WithVideoEncoder(codec media.VideoCodec) *Builder {
	b.videoCodec = codec
	return b
}

func (b *Builder) WithAudioEncoder(codec media.AudioCodec) *Builder {
	b.audioCodec = codec
	return b
}

// WithVideoQuality overrides the capture size derived from the recording
// geometry.
func (b *Builder) WithVideoQuality(q media.VideoQuality) *Builder {
	b.videoQuality = q
	b.videoQualitySet = true
	return b
}

func (b *Builder) WithAudioQuality(q media.AudioQuality) *Builder {
	b.audioQuality = q
	return b
}

func (b *Builder) WithRecordingGeometry(g media.RecordingGeometry) *Builder {
	b.geometry = &g
	return b
}

func (b *Builder) WithPreviewOrientation(degrees int) *Builder {
	b.orientation = degrees
	return b
}

func (b *Builder) WithOrigin(origin string) *Builder {
	b.origin = origin
	return b
}

func (b *Builder) WithDestination(destination string) *Builder {
	b.destination = destination
	return b
}

func (b *Builder) WithTimeToLive(ttl int) *Builder {
	b.ttl = ttl
	return b
}

func (b *Builder) WithVideoPort(port int) *Builder {
	b.videoPort = port
	return b
}

func (b *Builder) WithAudioPort(port int) *Builder {
	b.audioPort = port
	return b
}

func (b *Builder) WithCallback(cb Callback) *Builder {
	b.callback = cb
	return b
}

func (b *Builder) Destination() string { return b.destination }
func (b *Builder) VideoEncoder() media.VideoCodec { return b.videoCodec }
func (b *Builder) AudioEncoder() media.AudioCodec { return b.audioCodec }
func (b *Builder) VideoQuality() media.VideoQuality { return b.videoQuality }
func (b *Builder) AudioQuality() media.AudioQuality { return b.audioQuality }
func (b *Builder) Callback() Callback { return b.callback }
func (b *Builder) Dependencies() Dependencies { return b.deps }

// Clone returns a copy whose settings can be changed without affecting b.
// Collaborators are shared.
func (b *Builder) Clone() *Builder {
	c := *b
	if b.geometry != nil {
		g := *b.geometry
		c.geometry = &g
	}
	return &c
}

// Build creates a session from the current settings.
func (b *Builder) Build() (*Session, error) {
	if b.videoCodec == media.VideoH264 {
		if b.deps.NewVideoPacketizer == nil {
			return nil, ErrNoVideoPacketizer
		}
		if b.projection == nil {
			return nil, ErrNoProjection
		}
	}
	if b.audioCodec != media.AudioNone {
		if b.deps.NewAudioEncoder == nil {
			return nil, ErrNoAudioEncoder
		}
		if b.deps.NewAudioPacketizer == nil {
			return nil, ErrNoAudioPacketizer
		}
	}

	s := New(b.deps.Logger)
	s.SetOrigin(b.origin)
	s.SetDestination(b.destination)
	s.SetTimeToLive(b.ttl)
	s.SetCallback(b.callback)

	if b.audioCodec != media.AudioNone {
		pkt := b.deps.NewAudioPacketizer(b.audioCodec)
		if pkt == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAudioPacketizer, b.audioCodec)
		}
		at := track.NewAudioTrack(b.audioCodec, track.AudioDependencies{
			NewEncoder: b.deps.NewAudioEncoder,
			Packetizer: pkt,
			Logger:     s.logger,
		})
		at.SetQuality(b.audioQuality)
		at.SetDestinationPort(b.audioPort)
		s.SetAudioTrack(at)
	}

	if b.videoCodec == media.VideoH264 {
		vt := track.NewVideoTrack(track.VideoDependencies{
			Prober:            b.videoProber(),
			NewSurfaceEncoder: b.deps.NewSurfaceEncoder,
			NewRecorder:       b.deps.NewRecorder,
			Projection:        b.projection,
			Packetizer:        b.deps.NewVideoPacketizer(),
			Logger:            s.logger,
		})
		if b.videoQualitySet {
			vt.SetQuality(b.videoQuality)
		}
		if b.geometry != nil {
			vt.SetGeometry(*b.geometry)
		}
		vt.SetPreviewOrientation(b.orientation)
		vt.SetDestinationPort(b.videoPort)
		s.SetVideoTrack(vt)
	}

	return s, nil
}

func (b *Builder) videoProber() track.Prober {
	if b.prober != nil {
		return b.prober
	}
	return probe.New(probe.Dependencies{
		Discoverer:  b.deps.Discoverer,
		NewRecorder: b.deps.NewRecorder,
		Projection:  b.projection,
		Cache:       b.cache,
		FileSystem:  b.deps.FileSystem,
		Logger:      b.deps.Logger,
	}, b.probeOptions)
}
