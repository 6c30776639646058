// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/user/telecast/pkg/adapters/ffmpeg"
	"github.com/user/telecast/pkg/adapters/mqttcallback"
	"github.com/user/telecast/pkg/geometry"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/probe"
	"github.com/user/telecast/pkg/recording"
	"github.com/user/telecast/pkg/session"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config represents the full configuration for telecast.
type Config struct {
	Stream  StreamConfig  `yaml:"stream"`
	Video   VideoConfig   `yaml:"video"`
	Audio   AudioConfig   `yaml:"audio"`
	Display DisplayConfig `yaml:"display"`
	Profile ProfileConfig `yaml:"profile"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Cache   CacheConfig   `yaml:"cache"`
	MQTT    MQTTConfig    `yaml:"mqtt"`

	LogLevel string `yaml:"log_level"`
}

// StreamConfig is where the session sends its packets.
type StreamConfig struct {
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
	TTL         int    `yaml:"ttl"`
	VideoPort   int    `yaml:"video_port"`
	AudioPort   int    `yaml:"audio_port"`
	MTU         int    `yaml:"mtu"`

	// SDPPath receives the session description. Empty skips the file.
	SDPPath string `yaml:"sdp"`
}

// VideoConfig selects the video encoder and its quality. Without both
// dimensions the capture follows the recording geometry at the default
// frame rate and bitrate.
type VideoConfig struct {
	Encoder     string `yaml:"encoder"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	FrameRate   int    `yaml:"frame_rate"`
	Bitrate     int    `yaml:"bitrate"`
	Orientation int    `yaml:"orientation"`
	ForceLegacy bool   `yaml:"force_legacy"`

	ProbeDurationMs int `yaml:"probe_duration_ms"`
}

// AudioConfig selects the audio encoder and its quality.
type AudioConfig struct {
	Encoder    string `yaml:"encoder"`
	SampleRate int    `yaml:"sample_rate"`
	Bitrate    int    `yaml:"bitrate"`
}

// DisplayConfig describes the display being projected.
type DisplayConfig struct {
	Width     int  `yaml:"width"`
	Height    int  `yaml:"height"`
	Density   int  `yaml:"density"`
	Landscape bool `yaml:"landscape"`
	Scale     int  `yaml:"scale"`
	FrameRate int  `yaml:"frame_rate"`

	// FontPath is an optional TrueType font for the test card.
	FontPath string `yaml:"font"`
}

// ProfileConfig is the upstream hardware profile. -1 means not reported.
type ProfileConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// FFmpegConfig configures the ffmpeg adapters.
type FFmpegConfig struct {
	Path             string   `yaml:"path"`
	HardwareEncoders []string `yaml:"hardware_encoders"`
	VAAPIDevice      string   `yaml:"vaapi_device"`
	AudioInput       string   `yaml:"audio_input"`
}

// CacheConfig locates the capability cache file.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig enables session event publishing when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Stream: StreamConfig{
			Origin:      "127.0.0.1",
			Destination: "127.0.0.1",
			TTL:         session.DefaultTTL,
			VideoPort:   5006,
			AudioPort:   5004,
			SDPPath:     "telecast.sdp",
		},
		Video: VideoConfig{
			Encoder: "h264",
		},
		Audio: AudioConfig{
			Encoder:    "amrnb",
			SampleRate: media.DefaultAudioQuality.SampleRate,
			Bitrate:    media.DefaultAudioQuality.BitrateBps,
		},
		Display: DisplayConfig{
			Width:     1280,
			Height:    720,
			Density:   1,
			Landscape: true,
			Scale:     50,
			FrameRate: 15,
		},
		Profile: ProfileConfig{
			Width:  geometry.Unknown,
			Height: geometry.Unknown,
		},
		Cache: CacheConfig{
			Path: defaultCachePath(),
		},
		MQTT: MQTTConfig{
			Topic: "telecast/events",
		},
		LogLevel: "info",
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "telecast-capabilities.yaml"
	}
	return dir + string(os.PathSeparator) + "telecast" + string(os.PathSeparator) + "capabilities.yaml"
}

// LoadFromFile loads configuration from a YAML file. Missing keys keep
// their default values.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	if _, err := media.ParseVideoCodec(c.Video.Encoder); err != nil {
		add("%s", err)
	}
	if _, err := media.ParseAudioCodec(c.Audio.Encoder); err != nil {
		add("%s", err)
	}
	if strings.TrimSpace(c.Stream.Destination) == "" {
		add("stream.destination is empty")
	}
	if c.Stream.TTL < 0 || c.Stream.TTL > 255 {
		add("stream.ttl %d out of range", c.Stream.TTL)
	}
	for name, port := range map[string]int{"stream.video_port": c.Stream.VideoPort, "stream.audio_port": c.Stream.AudioPort} {
		if port <= 0 || port > 65535 {
			add("%s %d out of range", name, port)
		}
	}
	if c.Stream.VideoPort == c.Stream.AudioPort {
		add("video and audio ports are both %d", c.Stream.VideoPort)
	}
	if c.Video.Width < 0 || c.Video.Height < 0 || c.Video.FrameRate < 0 || c.Video.Bitrate < 0 {
		add("video quality must not be negative")
	}
	if c.Video.Orientation%90 != 0 {
		add("video.orientation %d is not a multiple of 90", c.Video.Orientation)
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		add("display size %dx%d", c.Display.Width, c.Display.Height)
	}
	if c.Display.Scale < 0 || c.Display.Scale > 100 {
		add("display.scale %d out of range", c.Display.Scale)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		add("mqtt.qos %d out of range", c.MQTT.QoS)
	}

	return result.ErrorOrNil()
}

// Request returns the recording request for the configured display.
func (c Config) Request() recording.Request {
	return recording.Request{
		DisplayWidth:  c.Display.Width,
		DisplayHeight: c.Display.Height,
		Density:       c.Display.Density,
		Landscape:     c.Display.Landscape,
		ProfileWidth:  c.Profile.Width,
		ProfileHeight: c.Profile.Height,
		ScalePercent:  c.Display.Scale,
	}
}

// VideoQuality returns the configured quality. ok is false unless both
// dimensions are set.
func (c Config) VideoQuality() (q media.VideoQuality, ok bool) {
	q = media.VideoQuality{
		Width:      c.Video.Width,
		Height:     c.Video.Height,
		FrameRate:  c.Video.FrameRate,
		BitrateBps: c.Video.Bitrate,
	}
	return q, q.Width > 0 && q.Height > 0
}

// ProbeOptions returns the capability probe tuning.
func (c Config) ProbeOptions() probe.Options {
	opts := probe.DefaultOptions()
	opts.ForceLegacy = c.Video.ForceLegacy
	if c.Video.ProbeDurationMs > 0 {
		opts.ProbeDuration = time.Duration(c.Video.ProbeDurationMs) * time.Millisecond
	}
	if c.Display.Density > 0 {
		opts.DisplayDensity = c.Display.Density
	}
	return opts
}

// FFmpegOptions returns the options shared by the ffmpeg adapters.
func (c Config) FFmpegOptions(logger ports.Logger) ffmpeg.Options {
	return ffmpeg.Options{
		Path:             c.FFmpeg.Path,
		HardwareEncoders: c.FFmpeg.HardwareEncoders,
		VAAPIDevice:      c.FFmpeg.VAAPIDevice,
		AudioInput:       c.FFmpeg.AudioInput,
		Logger:           logger,
	}
}

// MQTTOptions returns the broker options. ok is false when publishing is
// disabled.
func (c Config) MQTTOptions() (opts mqttcallback.Options, ok bool) {
	if c.MQTT.Broker == "" {
		return mqttcallback.Options{}, false
	}
	return mqttcallback.Options{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Username: c.MQTT.Username,
		Password: c.MQTT.Password,
		Topic:    c.MQTT.Topic,
		QoS:      byte(c.MQTT.QoS),
	}, true
}

// ToBuilder converts Config to a session builder over deps. The caller adds
// the projection and the capability cache.
func (c Config) ToBuilder(deps session.Dependencies) (*session.Builder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	videoCodec, _ := media.ParseVideoCodec(c.Video.Encoder)
	audioCodec, _ := media.ParseAudioCodec(c.Audio.Encoder)

	b := session.NewBuilder(deps).
		WithVideoEncoder(videoCodec).
		WithAudioEncoder(audioCodec).
		WithAudioQuality(media.AudioQuality{SampleRate: c.Audio.SampleRate, BitrateBps: c.Audio.Bitrate}).
		WithProbeOptions(c.ProbeOptions()).
		WithPreviewOrientation(c.Video.Orientation).
		WithOrigin(c.Stream.Origin).
		WithDestination(c.Stream.Destination).
		WithTimeToLive(c.Stream.TTL).
		WithVideoPort(c.Stream.VideoPort).
		WithAudioPort(c.Stream.AudioPort)

	if q, ok := c.VideoQuality(); ok {
		b.WithVideoQuality(q)
	}
	return b, nil
}
