package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/user/telecast/pkg/adapters/logger"
	"github.com/user/telecast/pkg/capcache"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/mocks"
	"github.com/user/telecast/pkg/mp4config/mp4test"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/track"
)

type builderFixture struct {
	discoverer  *mocks.EncoderDiscoverer
	encoder     *mocks.SurfaceEncoder
	audioEnc    *mocks.AudioEncoder
	projection  *mocks.Projection
	videoPkt    *mocks.Packetizer
	audioPkt    *mocks.Packetizer
	audioCodecs []media.AudioCodec
}

func newBuilderFixture() (*builderFixture, *Builder) {
	f := &builderFixture{
		discoverer: &mocks.EncoderDiscoverer{
			DiscoverFunc: func(ctx context.Context, w, h int) (ports.Discovery, error) {
				return ports.Discovery{EncoderName: "h264_vaapi", SPS: mp4test.SPS, PPS: mp4test.PPS}, nil
			},
		},
		encoder:    &mocks.SurfaceEncoder{},
		audioEnc:   &mocks.AudioEncoder{},
		projection: &mocks.Projection{},
		videoPkt:   &mocks.Packetizer{},
		audioPkt:   &mocks.Packetizer{},
	}
	b := NewBuilder(Dependencies{
		Logger:             logger.NewNoop(),
		FileSystem:         mocks.NewFileSystem(),
		Discoverer:         f.discoverer,
		NewSurfaceEncoder:  func() ports.SurfaceEncoder { return f.encoder },
		NewRecorder:        func() ports.Recorder { return &mocks.Recorder{} },
		NewAudioEncoder:    func() ports.AudioEncoder { return f.audioEnc },
		NewVideoPacketizer: func() ports.Packetizer { return f.videoPkt },
		NewAudioPacketizer: func(codec media.AudioCodec) ports.Packetizer {
			f.audioCodecs = append(f.audioCodecs, codec)
			return f.audioPkt
		},
	}).WithProjection(f.projection)
	return f, b
}

func TestBuilder_Defaults(t *testing.T) {
	_, b := newBuilderFixture()
	if b.VideoEncoder() != media.VideoH264 || b.AudioEncoder() != media.AudioAMRNB {
		t.Errorf("unexpected default codecs: %v %v", b.VideoEncoder(), b.AudioEncoder())
	}
	if b.Destination() != "127.0.0.1" {
		t.Errorf("default destination = %q", b.Destination())
	}

	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !s.HasTrack(media.KindAudio) || !s.HasTrack(media.KindVideo) {
		t.Error("expected both tracks")
	}
	if s.TimeToLive() != DefaultTTL {
		t.Errorf("ttl = %d", s.TimeToLive())
	}
	if at, ok := s.AudioTrack().(*track.AudioTrack); !ok || at.Codec() != media.AudioAMRNB {
		t.Error("expected an AMR-NB audio track")
	}
}

func TestBuilder_NoAudio(t *testing.T) {
	f, b := newBuilderFixture()
	s, err := b.WithAudioEncoder(media.AudioNone).Build()
	if err != nil {
		t.Fatal(err)
	}
	if s.HasTrack(media.KindAudio) {
		t.Error("audio track should be absent")
	}
	if len(f.audioCodecs) != 0 {
		t.Error("no audio packetizer should be created")
	}
}

func TestBuilder_MissingCollaborators(t *testing.T) {
	_, b := newBuilderFixture()
	if _, err := b.Clone().WithProjection(nil).Build(); !errors.Is(err, ErrNoProjection) {
		t.Errorf("expected ErrNoProjection, got %v", err)
	}

	bare := NewBuilder(Dependencies{})
	if _, err := bare.Build(); !errors.Is(err, ErrNoVideoPacketizer) {
		t.Errorf("expected ErrNoVideoPacketizer, got %v", err)
	}
	if _, err := bare.WithVideoEncoder(media.VideoNone).Build(); !errors.Is(err, ErrNoAudioEncoder) {
		t.Errorf("expected ErrNoAudioEncoder, got %v", err)
	}
}

func TestBuilder_CloneIsIndependent(t *testing.T) {
	_, b := newBuilderFixture()
	b.WithRecordingGeometry(media.RecordingGeometry{Width: 640, Height: 360, Density: 1})

	c := b.Clone().
		WithDestination("10.1.1.1").
		WithRecordingGeometry(media.RecordingGeometry{Width: 1280, Height: 720, Density: 2})

	if b.Destination() != "127.0.0.1" {
		t.Errorf("clone leaked destination into original: %q", b.Destination())
	}
	if *b.geometry != (media.RecordingGeometry{Width: 640, Height: 360, Density: 1}) {
		t.Errorf("clone leaked geometry into original: %+v", *b.geometry)
	}
	if c.Destination() != "10.1.1.1" || c.geometry.Width != 1280 {
		t.Error("clone did not keep its own settings")
	}
}

func TestBuilder_ClonesShareCapabilityCache(t *testing.T) {
	_, b := newBuilderFixture()
	if b.cache == nil {
		t.Fatal("NewBuilder should create a capability cache")
	}

	clones := make([]*Builder, 8)
	for i := range clones {
		clones[i] = b.Clone().WithAudioEncoder(media.AudioNone)
	}
	var wg sync.WaitGroup
	for _, c := range clones {
		wg.Add(1)
		go func(c *Builder) {
			defer wg.Done()
			if _, err := c.Build(); err != nil {
				t.Errorf("Build failed: %v", err)
			}
		}(c)
	}
	wg.Wait()

	for i, c := range clones {
		if c.cache != b.cache {
			t.Errorf("clone %d does not share the builder's cache", i)
		}
	}

	shared := capcache.New(nil, logger.NewNoop())
	b.WithCapabilityCache(shared).WithCapabilityCache(nil)
	if b.cache != shared || b.Clone().cache != shared {
		t.Error("WithCapabilityCache should replace the cache and ignore nil")
	}
}

func TestBuilder_StreamsThroughDirectStrategy(t *testing.T) {
	f, b := newBuilderFixture()
	cb := &recordingCallback{}
	s, err := b.
		WithAudioEncoder(media.AudioAAC).
		WithAudioQuality(media.AudioQuality{SampleRate: 44100, BitrateBps: 64000}).
		WithVideoQuality(media.VideoQuality{Width: 320, Height: 240, FrameRate: 15, BitrateBps: 300000}).
		WithDestination("10.0.0.9").
		WithVideoPort(7000).
		WithCallback(cb).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if f.discoverer.Calls != 1 {
		t.Errorf("discoverer called %d times, want 1", f.discoverer.Calls)
	}
	if f.videoPkt.Address != "10.0.0.9" || f.videoPkt.Port != 7000 {
		t.Errorf("video packetizer destination = %s:%d", f.videoPkt.Address, f.videoPkt.Port)
	}
	if f.audioPkt.Port != track.DefaultAudioPort {
		t.Errorf("audio packetizer port = %d", f.audioPkt.Port)
	}
	if len(f.audioCodecs) != 1 || f.audioCodecs[0] != media.AudioAAC {
		t.Errorf("audio packetizer codecs = %v", f.audioCodecs)
	}
	if len(f.projection.Created()) != 1 {
		t.Errorf("expected one virtual display, got %d", len(f.projection.Created()))
	}
	if cb.started != 1 {
		t.Error("OnSessionStarted not delivered")
	}

	desc, err := s.SessionDescription()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"m=audio 5004 RTP/AVP 96\r\n",
		"a=rtpmap:96 mpeg4-generic/44100\r\n",
		"m=video 7000 RTP/AVP 96\r\n",
		"a=rtpmap:96 H264/90000\r\n",
		"profile-level-id=42c01f",
	} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q:\n%s", want, desc)
		}
	}
}
