package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/telecast/pkg/adapters/ffmpeg"
	"github.com/user/telecast/pkg/adapters/mqttcallback"
	"github.com/user/telecast/pkg/adapters/osfilesystem"
	"github.com/user/telecast/pkg/adapters/patternprojection"
	"github.com/user/telecast/pkg/adapters/prefstore"
	"github.com/user/telecast/pkg/adapters/rtppacketizer"
	"github.com/user/telecast/pkg/adapters/sdpcontroller"
	"github.com/user/telecast/pkg/capcache"
	"github.com/user/telecast/pkg/config"
	"github.com/user/telecast/pkg/geometry"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/probe"
	"github.com/user/telecast/pkg/recording"
	"github.com/user/telecast/pkg/session"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: l10n.T("Stream the projected display until interrupted"),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "destination",
				Aliases:  []string{"d"},
				Usage:    l10n.T("Receiver address, unicast or multicast"),
				Category: l10n.T("Stream"),
			},
			&cli.StringFlag{
				Name:     "sdp",
				Usage:    l10n.T("Write the session description to this file"),
				Category: l10n.T("Stream"),
			},
			&cli.DurationFlag{
				Name:     "duration",
				Usage:    l10n.T("Stop after this long (0 streams until interrupted)"),
				Category: l10n.T("Stream"),
			},
			&cli.BoolFlag{
				Name:     "force-legacy",
				Usage:    l10n.T("Skip the hardware encoder and use the recorder strategy"),
				Category: l10n.T("Video"),
			},
		},
		Action: runStream,
	}
}

func runStream(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("destination") {
		cfg.Stream.Destination = c.String("destination")
	}
	if c.IsSet("sdp") {
		cfg.Stream.SDPPath = c.String("sdp")
	}
	if c.Bool("force-legacy") {
		cfg.Video.ForceLegacy = true
	}
	log := newLogger(c, cfg)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	env, err := newEnvironment(cfg, log)
	if err != nil {
		return err
	}
	defer env.close()

	builder, err := env.builder()
	if err != nil {
		return err
	}

	var events *mqttcallback.Callback
	if opts, ok := cfg.MQTTOptions(); ok {
		client, err := mqttcallback.Connect(opts, log)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		events = mqttcallback.New(client, opts.Topic, opts.QoS, log)
		builder.WithCallback(events)
	}

	rec := recording.New(builder, func(s *session.Session) ports.StreamController {
		ctrl := sdpcontroller.New(s, env.fs, cfg.Stream.SDPPath, log)
		ctrl.RemoveOnStop = true
		return ctrl
	}, log)
	defer rec.Destroy()

	if err := rec.Start(ctx, cfg.Request()); err != nil {
		return err
	}
	s := rec.Session()
	if events != nil {
		events.SetSessionID(s.ID())
	}
	log.Info(l10n.F("Streaming to %s, press Ctrl+C to stop", cfg.Stream.Destination))
	if cfg.Stream.SDPPath != "" {
		log.Info(l10n.F("Play with: ffplay -protocol_whitelist file,udp,rtp %s", cfg.Stream.SDPPath))
	}

	<-ctx.Done()
	if ctx.Err() == context.Canceled {
		log.Warn(l10n.T("Interrupted, shutting down..."))
	}
	return rec.Stop()
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: l10n.T("Negotiate an encoder for a video quality and print its configuration"),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Aliases: []string{"W"}, Value: 640, Usage: l10n.T("Capture width")},
			&cli.IntFlag{Name: "height", Aliases: []string{"H"}, Value: 480, Usage: l10n.T("Capture height")},
			&cli.IntFlag{Name: "fps", Value: media.DefaultVideoQuality.FrameRate, Usage: l10n.T("Frame rate")},
			&cli.IntFlag{Name: "bitrate", Value: media.DefaultVideoQuality.BitrateBps, Usage: l10n.T("Bitrate in bits per second")},
			&cli.BoolFlag{Name: "force-legacy", Usage: l10n.T("Skip the hardware encoder and use the recorder strategy")},
		},
		Action: runProbe,
	}
}

func runProbe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("force-legacy") {
		cfg.Video.ForceLegacy = true
	}
	log := newLogger(c, cfg)

	env, err := newEnvironment(cfg, log)
	if err != nil {
		return err
	}
	defer env.close()

	q := media.VideoQuality{
		Width:      c.Int("width"),
		Height:     c.Int("height"),
		FrameRate:  c.Int("fps"),
		BitrateBps: c.Int("bitrate"),
	}
	prober := probe.New(probe.Dependencies{
		Discoverer:  env.discoverer,
		NewRecorder: env.newRecorder,
		Projection:  env.projection,
		Cache:       env.cache,
		FileSystem:  env.fs,
		Logger:      log,
	}, cfg.ProbeOptions())

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	res, err := prober.Probe(ctx, q)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintln(w, l10n.F("Quality:          %s", q))
	fmt.Fprintln(w, l10n.F("Strategy:         %s", res.Strategy))
	if res.EncoderName != "" {
		fmt.Fprintln(w, l10n.F("Encoder:          %s", res.EncoderName))
	}
	fmt.Fprintln(w, l10n.F("Fallback used:    %t", res.FallbackUsed))
	fmt.Fprintln(w, l10n.F("From cache:       %t", res.Cached))
	fmt.Fprintln(w, l10n.F("profile-level-id: %s", res.Config.ProfileLevelID))
	fmt.Fprintln(w, l10n.F("SPS:              %s", hexOf(res.Config.SPS)))
	fmt.Fprintln(w, l10n.F("PPS:              %s", hexOf(res.Config.PPS)))
	return nil
}

func hexOf(b64 string) string {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return b64
	}
	return hex.EncodeToString(raw)
}

func geometryCommand() *cli.Command {
	return &cli.Command{
		Name:  "geometry",
		Usage: l10n.T("Print the recording geometry for a display and profile"),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "display-width", Usage: l10n.T("Display width in pixels")},
			&cli.IntFlag{Name: "display-height", Usage: l10n.T("Display height in pixels")},
			&cli.IntFlag{Name: "density", Usage: l10n.T("Display density")},
			&cli.BoolFlag{Name: "portrait", Usage: l10n.T("The display is in portrait orientation")},
			&cli.IntFlag{Name: "profile-width", Usage: l10n.T("Profile width (-1 when not reported)")},
			&cli.IntFlag{Name: "profile-height", Usage: l10n.T("Profile height (-1 when not reported)")},
			&cli.IntFlag{Name: "scale", Usage: l10n.T("Scale percentage applied to the display")},
		},
		Action: runGeometry,
	}
}

func runGeometry(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	overrides := map[string]*int{
		"display-width":  &cfg.Display.Width,
		"display-height": &cfg.Display.Height,
		"density":        &cfg.Display.Density,
		"profile-width":  &cfg.Profile.Width,
		"profile-height": &cfg.Profile.Height,
		"scale":          &cfg.Display.Scale,
	}
	for name, field := range overrides {
		if c.IsSet(name) {
			*field = c.Int(name)
		}
	}
	if c.IsSet("portrait") {
		cfg.Display.Landscape = !c.Bool("portrait")
	}

	g := cfg.Request().Geometry()
	fmt.Fprintln(c.App.Writer, g)
	if err := geometry.Validate(g); err != nil {
		return err
	}
	return nil
}

// environment holds the platform adapters shared by the commands.
type environment struct {
	cfg        config.Config
	log        ports.Logger
	fs         *osfilesystem.FileSystem
	ffmpeg     ffmpeg.Options
	projection *patternprojection.Projection
	cache      *capcache.Cache
	discoverer ports.EncoderDiscoverer
}

func newEnvironment(cfg config.Config, log ports.Logger) (*environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := cfg.FFmpegOptions(log)
	if opts.Path != "" {
		ffmpeg.SetFFmpegPath(opts.Path)
	}
	if !ffmpeg.IsAvailable() {
		return nil, ffmpeg.ErrFFmpegNotFound
	}

	fs := osfilesystem.New()
	var store ports.KeyValueStore
	if cfg.Cache.Path != "" {
		s, err := prefstore.Open(fs, cfg.Cache.Path, log)
		if err != nil {
			log.Warn(l10n.F("Capability cache unavailable: %s", err))
		} else {
			store = s
		}
	}

	return &environment{
		cfg:    cfg,
		log:    log,
		fs:     fs,
		ffmpeg: opts,
		projection: patternprojection.New(patternprojection.Options{
			FrameRate: cfg.Display.FrameRate,
			FontPath:  cfg.Display.FontPath,
			Logger:    log,
		}),
		cache:      capcache.New(store, log),
		discoverer: ffmpeg.NewDiscoverer(opts),
	}, nil
}

func (e *environment) newRecorder() ports.Recorder {
	return ffmpeg.NewRecorder(e.ffmpeg)
}

func (e *environment) builder() (*session.Builder, error) {
	pkt := rtppacketizer.Options{MTU: e.cfg.Stream.MTU, Logger: e.log}
	b, err := e.cfg.ToBuilder(session.Dependencies{
		Logger:     e.log,
		FileSystem: e.fs,
		Discoverer: e.discoverer,
		NewSurfaceEncoder: func() ports.SurfaceEncoder {
			return ffmpeg.NewSurfaceEncoder(e.ffmpeg)
		},
		NewRecorder: e.newRecorder,
		NewAudioEncoder: func() ports.AudioEncoder {
			return ffmpeg.NewAudioEncoder(e.ffmpeg)
		},
		NewVideoPacketizer: func() ports.Packetizer {
			return rtppacketizer.NewH264(pkt)
		},
		NewAudioPacketizer: func(codec media.AudioCodec) ports.Packetizer {
			return rtppacketizer.NewAudio(codec, pkt)
		},
	})
	if err != nil {
		return nil, err
	}
	return b.WithProjection(e.projection).WithCapabilityCache(e.cache), nil
}

func (e *environment) close() {
	if err := e.projection.Stop(); err != nil {
		e.log.Warn(l10n.F("Failed to stop projection: %s", err))
	}
}
