package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/user/telecast/pkg/adapters/logger"
	"github.com/user/telecast/pkg/media"
)

// fakeTrack records lifecycle calls into a shared event log.
type fakeTrack struct {
	mu     sync.Mutex
	kind   media.TrackKind
	events *[]string

	configureErr error
	startErr     error
	// configureBlock, when set, is closed by Configure, which then waits
	// for ctx to be done.
	configureBlock chan struct{}
	bitrate      int64

	streaming bool
	address   string
	ttl       int
	stops     int
}

func newFakeTrack(kind media.TrackKind, events *[]string) *fakeTrack {
	return &fakeTrack{kind: kind, events: events}
}

func (f *fakeTrack) record(op string) {
	*f.events = append(*f.events, fmt.Sprintf("%s %s", f.kind, op))
}

func (f *fakeTrack) Kind() media.TrackKind { return f.kind }

func (f *fakeTrack) Configure(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("configure")
	if f.configureBlock != nil {
		close(f.configureBlock)
		f.configureBlock = nil
		f.mu.Unlock()
		<-ctx.Done()
		f.mu.Lock()
		return ctx.Err()
	}
	return f.configureErr
}

func (f *fakeTrack) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start")
	if f.startErr != nil {
		return f.startErr
	}
	f.streaming = true
	return nil
}

func (f *fakeTrack) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.streaming = false
}

func (f *fakeTrack) SessionDescription() (string, error) { return "", nil }

func (f *fakeTrack) MediaDescription() (*sdp.MediaDescription, error) {
	name, port := "audio", 5004
	if f.kind == media.KindVideo {
		name, port = "video", 5006
	}
	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   name,
			Port:    sdp.RangedPort{Value: port},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{"96"},
		},
		Attributes: []sdp.Attribute{{Key: "rtpmap", Value: "96 test/8000"}},
	}, nil
}

func (f *fakeTrack) DestinationPort() int { return 0 }

func (f *fakeTrack) SetDestination(address string, ttl int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address, f.ttl = address, ttl
}

func (f *fakeTrack) Streaming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming
}

func (f *fakeTrack) BitRate() int64 { return f.bitrate }

type recordingCallback struct {
	NopCallback
	mu         sync.Mutex
	configured int
	started    int
	stopped    int
	previews   int
	errors     []ErrorReason
	errorKinds []media.TrackKind
}

func (c *recordingCallback) OnSessionConfigured() { c.mu.Lock(); c.configured++; c.mu.Unlock() }
func (c *recordingCallback) OnSessionStarted()    { c.mu.Lock(); c.started++; c.mu.Unlock() }
func (c *recordingCallback) OnSessionStopped()    { c.mu.Lock(); c.stopped++; c.mu.Unlock() }
func (c *recordingCallback) OnPreviewStarted()    { c.mu.Lock(); c.previews++; c.mu.Unlock() }

func (c *recordingCallback) OnSessionError(reason ErrorReason, kind media.TrackKind, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, reason)
	c.errorKinds = append(c.errorKinds, kind)
}

func newTestSession() (*Session, *fakeTrack, *fakeTrack, *recordingCallback, *[]string) {
	events := &[]string{}
	s := New(logger.NewNoop())
	audio := newFakeTrack(media.KindAudio, events)
	video := newFakeTrack(media.KindVideo, events)
	cb := &recordingCallback{}
	s.SetAudioTrack(audio)
	s.SetVideoTrack(video)
	s.SetCallback(cb)
	return s, audio, video, cb, events
}

func TestSession_StartOrder(t *testing.T) {
	s, audio, video, cb, events := newTestSession()
	s.SetDestination("10.0.0.5")
	s.SetTimeToLive(12)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	want := []string{"audio configure", "video configure", "audio start", "video start"}
	if strings.Join(*events, "|") != strings.Join(want, "|") {
		t.Errorf("events = %v, want %v", *events, want)
	}
	if !s.IsStreaming() {
		t.Error("expected session to be streaming")
	}
	if audio.address != "10.0.0.5" || video.ttl != 12 {
		t.Errorf("destination not propagated: %s/%d", audio.address, video.ttl)
	}
	if cb.configured != 1 || cb.started != 1 || cb.previews != 1 {
		t.Errorf("callbacks: configured=%d started=%d previews=%d", cb.configured, cb.started, cb.previews)
	}

	s.Stop()
	if s.IsStreaming() {
		t.Error("expected session to be stopped")
	}
	s.Stop()
	if cb.stopped != 1 {
		t.Errorf("OnSessionStopped called %d times, want 1", cb.stopped)
	}
}

func TestSession_StartFailureStopsStartedTracks(t *testing.T) {
	s, audio, video, cb, _ := newTestSession()
	video.startErr = fmt.Errorf("%w: no encoder", media.ErrConfigurationUnsupported)

	err := s.Start(context.Background())
	if !errors.Is(err, media.ErrConfigurationUnsupported) {
		t.Fatalf("expected ErrConfigurationUnsupported, got %v", err)
	}
	if audio.Streaming() || audio.stops == 0 {
		t.Error("audio track should have been stopped")
	}
	if s.IsStreaming() {
		t.Error("session should not be streaming")
	}
	if len(cb.errors) != 1 || cb.errors[0] != ReasonConfigurationNotSupported || cb.errorKinds[0] != media.KindVideo {
		t.Errorf("unexpected error callbacks: %v %v", cb.errors, cb.errorKinds)
	}
	if cb.started != 0 {
		t.Error("OnSessionStarted should not fire")
	}
}

func TestSession_ConfigureAbortsOnFirstFailure(t *testing.T) {
	s, audio, _, cb, events := newTestSession()
	audio.configureErr = fmt.Errorf("%w: rate", media.ErrConfigurationUnsupported)

	if err := s.Configure(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(*events) != 1 || (*events)[0] != "audio configure" {
		t.Errorf("video should not be configured, events = %v", *events)
	}
	if cb.configured != 0 {
		t.Error("OnSessionConfigured should not fire")
	}
	if len(cb.errors) != 1 || cb.errors[0] != ReasonConfigurationNotSupported || cb.errorKinds[0] != media.KindAudio {
		t.Errorf("unexpected error callbacks: %v %v", cb.errors, cb.errorKinds)
	}
}

func TestSession_StopInterruptsConfiguringStart(t *testing.T) {
	s, _, video, cb, events := newTestSession()
	entered := make(chan struct{})
	video.configureBlock = entered

	result := s.StartAsync(context.Background())
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind a configuring Start")
	}

	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.IsStreaming() {
		t.Error("session should not be streaming")
	}
	for _, e := range *events {
		if strings.HasSuffix(e, " start") {
			t.Errorf("no track should start after Stop, events = %v", *events)
		}
	}
	if cb.started != 0 || cb.stopped != 0 {
		t.Errorf("callbacks: started=%d stopped=%d", cb.started, cb.stopped)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start after Stop failed: %v", err)
	}
	s.Stop()
}

func TestSession_StopBeforeStart(t *testing.T) {
	s, audio, video, cb, events := newTestSession()
	s.Stop()
	s.Stop()

	if len(*events) != 0 {
		t.Errorf("Stop should not configure or start tracks, events = %v", *events)
	}
	if audio.Streaming() || video.Streaming() || s.IsStreaming() {
		t.Error("nothing should be streaming")
	}
	if cb.stopped != 0 {
		t.Errorf("OnSessionStopped called %d times for a session that never started", cb.stopped)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start after Stop failed: %v", err)
	}
	if !s.IsStreaming() {
		t.Error("expected streaming")
	}
	s.Stop()
	if cb.stopped != 1 {
		t.Errorf("OnSessionStopped called %d times, want 1", cb.stopped)
	}
}

func TestSession_StopTwice(t *testing.T) {
	s, audio, video, cb, _ := newTestSession()
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()

	if audio.Streaming() || video.Streaming() || s.IsStreaming() {
		t.Error("nothing should be streaming")
	}
	if cb.stopped != 1 {
		t.Errorf("OnSessionStopped called %d times, want 1", cb.stopped)
	}
	if len(cb.errors) != 0 {
		t.Errorf("unexpected error callbacks: %v", cb.errors)
	}
}

func TestSession_StartTwiceIsNoop(t *testing.T) {
	s, _, _, cb, events := newTestSession()
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	n := len(*events)
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if len(*events) != n {
		t.Errorf("streaming tracks were touched again: %v", (*events)[n:])
	}
	if cb.started != 1 {
		t.Errorf("OnSessionStarted called %d times", cb.started)
	}
	s.Stop()
}

func TestSession_StartAsync(t *testing.T) {
	s, _, _, _, _ := newTestSession()
	if err := <-s.StartAsync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !s.IsStreaming() {
		t.Error("expected streaming")
	}
	s.Stop()
}

func TestSession_BitRate(t *testing.T) {
	s, audio, video, _, _ := newTestSession()
	audio.bitrate = 32000
	video.bitrate = 500000
	if got := s.BitRate(); got != 532000 {
		t.Errorf("BitRate() = %d, want 532000", got)
	}
}

func TestSession_SessionDescription(t *testing.T) {
	s, _, _, _, _ := newTestSession()
	s.SetOrigin("192.168.1.2")
	s.SetDestination("239.1.2.3")
	s.SetTimeToLive(16)

	desc, err := s.SessionDescription()
	if err != nil {
		t.Fatalf("SessionDescription failed: %v", err)
	}
	for _, line := range []string{
		"v=0\r\n",
		" IN IP4 192.168.1.2\r\n",
		"s=Unnamed\r\n",
		"i=N/A\r\n",
		"c=IN IP4 239.1.2.3/16\r\n",
		"t=0 0\r\n",
		"a=recvonly\r\n",
		"m=audio 5004 RTP/AVP 96\r\n",
		"m=video 5006 RTP/AVP 96\r\n",
	} {
		if !strings.Contains(desc, line) {
			t.Errorf("description missing %q:\n%s", line, desc)
		}
	}
	if !strings.HasPrefix(desc, "v=0\r\no="+s.ID()+" ") {
		t.Errorf("unexpected origin line:\n%s", desc)
	}

	audioAt := strings.Index(desc, "m=audio")
	videoAt := strings.Index(desc, "m=video")
	if audioAt > videoAt {
		t.Error("audio section should precede video")
	}
	if c := strings.Index(desc, "a=control:trackID=0"); c < audioAt || c > videoAt {
		t.Error("trackID=0 should belong to the audio section")
	}
	if c := strings.Index(desc, "a=control:trackID=1"); c < videoAt {
		t.Error("trackID=1 should belong to the video section")
	}
}

func TestSession_UnicastHasNoTTL(t *testing.T) {
	s, _, _, _, _ := newTestSession()
	s.SetDestination("10.0.0.1")
	desc, err := s.SessionDescription()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(desc, "c=IN IP4 10.0.0.1\r\n") {
		t.Errorf("unexpected connection line:\n%s", desc)
	}
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorReason
	}{
		{fmt.Errorf("x: %w", media.ErrConfigurationUnsupported), ReasonConfigurationNotSupported},
		{fmt.Errorf("x: %w", media.ErrStorageUnavailable), ReasonStorageNotReady},
		{fmt.Errorf("resolve: %w", &net.DNSError{Name: "nowhere.invalid", IsNotFound: true}), ReasonUnknownHost},
		{errors.New("boom"), ReasonOther},
	}
	for _, tt := range tests {
		if got := ReasonOf(tt.err); got != tt.want {
			t.Errorf("ReasonOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
