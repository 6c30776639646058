// Package track implements the audio and video tracks of a streaming
// session. A track is configured once per requested quality, then started
// and stopped any number of times.
package track

import (
	"context"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/probe"
)

const (
	// DefaultVideoPort is the RTP destination port of the video track.
	DefaultVideoPort = 5006
	// DefaultAudioPort is the RTP destination port of the audio track.
	DefaultAudioPort = 5004

	payloadType = "96"
)

// Track is one media stream of a session.
type Track interface {
	Kind() media.TrackKind

	// Configure resolves the encoder configuration for the requested quality.
	Configure(ctx context.Context) error

	// Start requires a successful Configure. The stream runs until Stop or
	// until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop releases every resource held by the track. It may be called in
	// any state and from any goroutine.
	Stop()

	// SessionDescription returns the track's SDP media section. It fails
	// with media.ErrIllegalLifecycleState before Configure succeeded.
	SessionDescription() (string, error)
	MediaDescription() (*sdp.MediaDescription, error)

	DestinationPort() int
	SetDestination(address string, ttl int)
	Streaming() bool
}

// Prober resolves an encoding strategy for a video quality.
type Prober interface {
	Probe(ctx context.Context, q media.VideoQuality) (probe.Result, error)
}

func mediaName(kind string, port int) sdp.MediaName {
	return sdp.MediaName{
		Media:   kind,
		Port:    sdp.RangedPort{Value: port},
		Protos:  []string{"RTP", "AVP"},
		Formats: []string{payloadType},
	}
}

// fragment renders a media description as "m=" and "a=" lines.
func fragment(md *sdp.MediaDescription) string {
	var b strings.Builder
	b.WriteString("m=")
	b.WriteString(md.MediaName.String())
	b.WriteString("\r\n")
	for _, a := range md.Attributes {
		b.WriteString("a=")
		b.WriteString(a.String())
		b.WriteString("\r\n")
	}
	return b.String()
}

// bitRate reads the output rate of a packetizer that reports one.
func bitRate(p ports.Packetizer) int64 {
	if br, ok := p.(ports.BitRater); ok {
		return br.BitRate()
	}
	return 0
}
