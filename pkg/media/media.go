// Package media holds the value types shared by the negotiation, track and
// session packages.
package media

import "fmt"

// QualitySignature identifies a capture configuration in the capability cache.
// Two signatures are equal iff width, height and frame rate all match.
type QualitySignature struct {
	Width     int
	Height    int
	FrameRate int
}

func (s QualitySignature) String() string {
	return fmt.Sprintf("%d,%d,%d", s.FrameRate, s.Width, s.Height)
}

// VideoQuality is a requested or applied video capture configuration.
type VideoQuality struct {
	Width      int `diff:"width"`
	Height     int `diff:"height"`
	FrameRate  int `diff:"frame_rate"`
	BitrateBps int `diff:"bitrate"`
}

// DefaultVideoQuality is used when nothing else is requested.
var DefaultVideoQuality = VideoQuality{Width: 176, Height: 144, FrameRate: 20, BitrateBps: 500000}

// Signature returns the cache identity of q.
func (q VideoQuality) Signature() QualitySignature {
	return QualitySignature{Width: q.Width, Height: q.Height, FrameRate: q.FrameRate}
}

func (q VideoQuality) String() string {
	return fmt.Sprintf("%dx%d@%dfps %dbps", q.Width, q.Height, q.FrameRate, q.BitrateBps)
}

// Merge returns q with every non-positive field taken from fallback.
func (q VideoQuality) Merge(fallback VideoQuality) VideoQuality {
	if q.Width <= 0 {
		q.Width = fallback.Width
	}
	if q.Height <= 0 {
		q.Height = fallback.Height
	}
	if q.FrameRate <= 0 {
		q.FrameRate = fallback.FrameRate
	}
	if q.BitrateBps <= 0 {
		q.BitrateBps = fallback.BitrateBps
	}
	return q
}

// AudioQuality is a requested or applied audio capture configuration.
type AudioQuality struct {
	SampleRate int
	BitrateBps int
}

// DefaultAudioQuality is used when nothing else is requested.
var DefaultAudioQuality = AudioQuality{SampleRate: 8000, BitrateBps: 32000}

func (q AudioQuality) String() string {
	return fmt.Sprintf("%dHz %dbps", q.SampleRate, q.BitrateBps)
}

// CodecConfiguration is the out-of-band H.264 configuration needed to describe
// a stream: profile-level-id plus the base64 encoded SPS and PPS.
type CodecConfiguration struct {
	ProfileLevelID string
	SPS            string
	PPS            string
}

// IsZero reports whether c carries no configuration.
func (c CodecConfiguration) IsZero() bool {
	return c == CodecConfiguration{}
}

// RecordingGeometry is the capture resolution and density computed once per
// recording from the display and the upstream profile.
type RecordingGeometry struct {
	Width   int
	Height  int
	Density int
}

func (g RecordingGeometry) String() string {
	return fmt.Sprintf("%dx%d (density %d)", g.Width, g.Height, g.Density)
}

// EncodingStrategy selects how video is captured and encoded.
type EncodingStrategy int

const (
	// StrategyDirect feeds frames into an encoder input surface and reads
	// Annex-B output.
	StrategyDirect EncodingStrategy = iota
	// StrategyLegacy records into an mp4 container and extracts the payload.
	StrategyLegacy
)

func (s EncodingStrategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Tag is the cache key prefix for the strategy.
func (s EncodingStrategy) Tag() string {
	if s == StrategyDirect {
		return "h264-mc"
	}
	return "h264-mr"
}

// TrackKind distinguishes the two tracks of a session.
type TrackKind int

const (
	KindAudio TrackKind = iota
	KindVideo
)

func (k TrackKind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// VideoCodec selects the video encoder of a session.
type VideoCodec int

const (
	VideoNone VideoCodec = iota
	VideoH264
)

// ParseVideoCodec parses a codec name from configuration.
func ParseVideoCodec(s string) (VideoCodec, error) {
	switch s {
	case "", "none":
		return VideoNone, nil
	case "h264":
		return VideoH264, nil
	}
	return VideoNone, fmt.Errorf("unknown video encoder %q", s)
}

func (c VideoCodec) String() string {
	if c == VideoH264 {
		return "h264"
	}
	return "none"
}

// AudioCodec selects the audio encoder of a session.
type AudioCodec int

const (
	AudioNone AudioCodec = iota
	AudioAMRNB
	AudioAAC
)

// ParseAudioCodec parses a codec name from configuration.
func ParseAudioCodec(s string) (AudioCodec, error) {
	switch s {
	case "", "none":
		return AudioNone, nil
	case "amrnb", "amr":
		return AudioAMRNB, nil
	case "aac":
		return AudioAAC, nil
	}
	return AudioNone, fmt.Errorf("unknown audio encoder %q", s)
}

func (c AudioCodec) String() string {
	switch c {
	case AudioAMRNB:
		return "amrnb"
	case AudioAAC:
		return "aac"
	default:
		return "none"
	}
}
