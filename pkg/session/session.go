// Package session drives an audio and a video track through configure,
// start and stop, and describes the resulting stream as SDP.
package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ideamans/go-l10n"
	"github.com/pion/sdp/v3"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/track"
)

const (
	// DefaultTTL is the time to live of outgoing packets.
	DefaultTTL = 64

	defaultAddress  = "127.0.0.1"
	bitrateInterval = 500 * time.Millisecond
)

// Session groups at most one audio and one video track sent to one destination.
type Session struct {
	id      string
	created time.Time
	logger  ports.Logger

	// opMu serialises Configure and Start. Stop does not take it until the
	// tracks were told to stop, so it can interrupt a blocked Start.
	opMu sync.Mutex

	mu          sync.Mutex
	origin      string
	destination string
	ttl         int
	audio       track.Track
	video       track.Track
	callback    Callback
	streaming   bool
	tickerStop  chan struct{}
	tickerDone  chan struct{}

	// stopped is closed by Stop and cancels the contexts of operations
	// that began before it.
	stopped chan struct{}
}

// New creates an empty session.
func New(logger ports.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		created:     time.Now(),
		logger:      logger.WithComponent("session " + id[:8]),
		origin:      defaultAddress,
		destination: defaultAddress,
		ttl:         DefaultTTL,
		callback:    NopCallback{},
		stopped:     make(chan struct{}),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) SetOrigin(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = origin
}

func (s *Session) Origin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

// SetDestination sets the address receiving the RTP streams.
func (s *Session) SetDestination(destination string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destination = destination
}

func (s *Session) Destination() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destination
}

func (s *Session) SetTimeToLive(ttl int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

func (s *Session) TimeToLive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl
}

// SetCallback replaces the event receiver. nil restores the no-op callback.
func (s *Session) SetCallback(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb == nil {
		cb = NopCallback{}
	}
	s.callback = cb
}

func (s *Session) SetAudioTrack(t track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = t
}

func (s *Session) SetVideoTrack(t track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = t
}

func (s *Session) AudioTrack() track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

func (s *Session) VideoTrack() track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

// HasTrack reports whether a track of the kind is attached.
func (s *Session) HasTrack(kind media.TrackKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == media.KindVideo {
		return s.video != nil
	}
	return s.audio != nil
}

// tracks returns the attached tracks, audio first.
func (s *Session) tracks() []track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ts []track.Track
	if s.audio != nil {
		ts = append(ts, s.audio)
	}
	if s.video != nil {
		ts = append(ts, s.video)
	}
	return ts
}

func (s *Session) cb() Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callback
}

// IsStreaming reports whether any track is streaming.
func (s *Session) IsStreaming() bool {
	for _, t := range s.tracks() {
		if t.Streaming() {
			return true
		}
	}
	return false
}

// Configure configures every track, stopping at the first failure.
func (s *Session) Configure(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.configureLocked(ctx)
}

// opContext derives a context that the next Stop cancels.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	go func() {
		select {
		case <-stopped:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *Session) configureLocked(ctx context.Context) error {
	for _, t := range s.tracks() {
		if t.Streaming() {
			continue
		}
		if err := t.Configure(ctx); err != nil {
			return s.fail(t.Kind(), err)
		}
	}
	s.cb().OnSessionConfigured()
	return nil
}

// Start configures and starts every track. If a track fails, the tracks
// already started are stopped and no track is left streaming.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.configureLocked(ctx); err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	destination, ttl := s.destination, s.ttl
	s.mu.Unlock()

	var started []track.Track
	for _, t := range s.tracks() {
		if t.Streaming() {
			continue
		}
		t.SetDestination(destination, ttl)
		if err := t.Start(ctx); err != nil {
			for _, st := range started {
				st.Stop()
			}
			cancel()
			return s.fail(t.Kind(), err)
		}
		started = append(started, t)
		if t.Kind() == media.KindVideo {
			s.cb().OnPreviewStarted()
		}
	}

	s.mu.Lock()
	wasStreaming := s.streaming
	s.streaming = true
	s.mu.Unlock()
	if !wasStreaming {
		s.startBitrateTicker()
		s.logger.Info(l10n.F("Session streaming to %s", destination))
		s.cb().OnSessionStarted()
	}
	return nil
}

// StartAsync runs Start in a goroutine and delivers its result.
func (s *Session) StartAsync(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- s.Start(ctx)
	}()
	return result
}

// Stop stops every track. It is idempotent and may interrupt a Configure
// or Start running on another goroutine.
func (s *Session) Stop() {
	s.mu.Lock()
	close(s.stopped)
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	ts := s.tracks()
	for i := len(ts) - 1; i >= 0; i-- {
		ts[i].Stop()
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	// A concurrent Start may have started a later track in the meantime.
	for _, t := range ts {
		t.Stop()
	}
	s.stopBitrateTicker()

	s.mu.Lock()
	wasStreaming := s.streaming
	s.streaming = false
	s.mu.Unlock()
	if wasStreaming {
		s.logger.Info(l10n.T("Session stopped"))
		s.cb().OnSessionStopped()
	}
}

func (s *Session) fail(kind media.TrackKind, err error) error {
	s.logger.Error(l10n.F("Session failed on the %s track: %s", kind, err))
	s.cb().OnSessionError(ReasonOf(err), kind, err)
	return fmt.Errorf("session %s track: %w", kind, err)
}

// BitRate returns the summed output rate of the tracks in bits per second.
func (s *Session) BitRate() int64 {
	var total int64
	for _, t := range s.tracks() {
		if br, ok := t.(ports.BitRater); ok {
			total += br.BitRate()
		}
	}
	return total
}

func (s *Session) startBitrateTicker() {
	stop := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.tickerStop, s.tickerDone = stop, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(bitrateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.cb().OnBitrateUpdate(s.BitRate())
			}
		}
	}()
}

func (s *Session) stopBitrateTicker() {
	s.mu.Lock()
	stop, done := s.tickerStop, s.tickerDone
	s.tickerStop, s.tickerDone = nil, nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// SessionDescription renders the SDP of the session. Every attached track
// must be configured.
func (s *Session) SessionDescription() (string, error) {
	s.mu.Lock()
	origin, destination, ttl := s.origin, s.destination, s.ttl
	audio, video := s.audio, s.video
	s.mu.Unlock()

	version := uint64(s.created.UnixMilli())
	info := sdp.Information("N/A")
	address := &sdp.Address{Address: destination}
	if ip := net.ParseIP(destination); ip != nil && ip.IsMulticast() {
		address.TTL = &ttl
	}

	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       s.id,
			SessionID:      version,
			SessionVersion: version,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: origin,
		},
		SessionName:        "Unnamed",
		SessionInformation: &info,
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     address,
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}},
		Attributes:       []sdp.Attribute{{Key: "recvonly"}},
	}

	for id, t := range []track.Track{audio, video} {
		if t == nil {
			continue
		}
		md, err := t.MediaDescription()
		if err != nil {
			return "", fmt.Errorf("session description: %w", err)
		}
		md.Attributes = append(md.Attributes, sdp.Attribute{Key: "control", Value: "trackID=" + strconv.Itoa(id)})
		desc.MediaDescriptions = append(desc.MediaDescriptions, md)
	}

	out, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal session description: %w", err)
	}
	return string(out), nil
}
