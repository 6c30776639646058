package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/user/telecast/pkg/mp4config"
	"github.com/user/telecast/pkg/mp4config/mp4test"
	"github.com/user/telecast/pkg/ports"
)

func hasSequence(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		if slices.Equal(args[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}

func TestFindFFmpeg_CustomPathMissing(t *testing.T) {
	SetFFmpegPath(filepath.Join(t.TempDir(), "ffmpeg"))
	defer SetFFmpegPath("")

	if _, err := FindFFmpeg(); !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound, got %v", err)
	}
}

func TestOptions_PathOverride(t *testing.T) {
	opts := Options{Path: filepath.Join(t.TempDir(), "missing")}
	if _, err := opts.ffmpegPath(); !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound, got %v", err)
	}
}

func TestHardwareArgs(t *testing.T) {
	global, filter := hardwareArgs("h264_vaapi", "/dev/dri/renderD129")
	if !hasSequence(global, "-vaapi_device", "/dev/dri/renderD129") || filter != "format=nv12,hwupload" {
		t.Errorf("vaapi args = %v %q", global, filter)
	}
	if global, filter := hardwareArgs("h264_nvenc", ""); global != nil || filter != "format=yuv420p" {
		t.Errorf("nvenc args = %v %q", global, filter)
	}
}

func TestSurfaceEncoder_Args(t *testing.T) {
	enc := NewSurfaceEncoder(Options{})
	err := enc.Configure(ports.EncoderFormat{
		EncoderName:      "h264_vaapi",
		Width:            1280,
		Height:           720,
		FrameRate:        30,
		BitrateBps:       2000000,
		KeyframeInterval: 3 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Release()

	args := enc.args()
	for _, seq := range [][]string{
		{"-vaapi_device", defaultVAAPIDevice},
		{"-s", "1280x720"},
		{"-i", "pipe:0"},
		{"-c:v", "h264_vaapi"},
		{"-g", "90"},
		{"-b:v", "2000000"},
		{"-f", "h264", "pipe:1"},
	} {
		if !hasSequence(args, seq...) {
			t.Errorf("args missing %v: %v", seq, args)
		}
	}

	surface, err := enc.InputSurface()
	if err != nil {
		t.Fatal(err)
	}
	if w, h := surface.Size(); w != 1280 || h != 720 {
		t.Errorf("surface size = %dx%d", w, h)
	}
}

func TestSurfaceEncoder_StartBeforeConfigure(t *testing.T) {
	enc := NewSurfaceEncoder(Options{})
	if err := enc.Start(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if err := enc.Stop(); err != nil {
		t.Errorf("Stop on idle encoder: %v", err)
	}
}

func TestRecorder_Args(t *testing.T) {
	rec := NewRecorder(Options{})
	if err := rec.Prepare(ports.RecorderOptions{Width: 640, Height: 480, FrameRate: 15, BitrateBps: 400000, MaxDuration: 3 * time.Second, OutputPath: "/tmp/probe.mp4"}); err != nil {
		t.Fatal(err)
	}
	args := rec.args()
	if !hasSequence(args, "-t", "3.000") || !hasSequence(args, "-f", "mp4", "/tmp/probe.mp4") {
		t.Errorf("file args = %v", args)
	}
	if err := rec.Reset(); err != nil {
		t.Fatal(err)
	}

	if err := rec.Prepare(ports.RecorderOptions{Width: 640, Height: 480, FrameRate: 15}); err != nil {
		t.Fatal(err)
	}
	defer rec.Release()
	args = rec.args()
	if !hasSequence(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof") || !hasSequence(args, "pipe:1") {
		t.Errorf("stream args = %v", args)
	}
	if slices.Contains(args, "-t") {
		t.Errorf("stream args should not bound the duration: %v", args)
	}
}

func TestAudioEncoder_Args(t *testing.T) {
	a := NewAudioEncoder(Options{})

	args, err := a.args(ports.AudioEncoderOptions{Codec: "aac", SampleRate: 44100, BitrateBps: 64000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !hasSequence(args, "-re", "-f", "lavfi") || !hasSequence(args, "-ar", "44100") || !hasSequence(args, "-f", "adts", "pipe:1") {
		t.Errorf("aac args = %v", args)
	}

	args, err = a.args(ports.AudioEncoderOptions{Codec: "amrnb", SampleRate: 44100, Channels: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !hasSequence(args, "-ac", "1", "-ar", "8000") || !hasSequence(args, "-c:a", "libopencore_amrnb") {
		t.Errorf("amr args = %v", args)
	}

	if _, err := a.args(ports.AudioEncoderOptions{Codec: "opus"}); err == nil {
		t.Error("expected an error for an unsupported codec")
	}

	alsa := NewAudioEncoder(Options{AudioInput: "alsa:default"})
	args, _ = alsa.args(ports.AudioEncoderOptions{Codec: "aac", SampleRate: 8000})
	if slices.Contains(args, "-re") || !hasSequence(args, "-f", "alsa", "-i", "default") {
		t.Errorf("alsa args = %v", args)
	}
}

func TestDiscoverer_FirstMatchingEncoder(t *testing.T) {
	d := NewDiscoverer(Options{HardwareEncoders: []string{"h264_vaapi", "h264_nvenc"}})
	var tried []string
	d.run = func(ctx context.Context, args []string) ([]byte, error) {
		encoder := args[slices.Index(args, "-c:v")+1]
		tried = append(tried, encoder)
		if encoder == "h264_vaapi" {
			return nil, errors.New("no device")
		}
		if !hasSequence(args, "-i", "color=c=black:s=1280x720:r=1") {
			t.Errorf("unexpected trial args: %v", args)
		}
		return mp4test.AnnexB(mp4test.SPS, mp4test.PPS, mp4test.IDR), nil
	}

	disc, err := d.Discover(context.Background(), 1280, 720)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if disc.EncoderName != "h264_nvenc" {
		t.Errorf("EncoderName = %q", disc.EncoderName)
	}
	if !bytes.Equal(disc.SPS, mp4test.SPS) || !bytes.Equal(disc.PPS, mp4test.PPS) {
		t.Error("parameter sets not extracted")
	}
	if strings.Join(tried, ",") != "h264_vaapi,h264_nvenc" {
		t.Errorf("tried = %v", tried)
	}
}

func TestDiscoverer_SizeMismatch(t *testing.T) {
	d := NewDiscoverer(Options{HardwareEncoders: []string{"h264_nvenc"}})
	d.run = func(ctx context.Context, args []string) ([]byte, error) {
		return mp4test.AnnexB(mp4test.SPS, mp4test.PPS), nil
	}
	if _, err := d.Discover(context.Background(), 640, 480); !errors.Is(err, ErrNoHardwareEncoder) {
		t.Errorf("expected ErrNoHardwareEncoder, got %v", err)
	}
}

func TestDiscoverer_Cancelled(t *testing.T) {
	d := NewDiscoverer(Options{})
	d.run = func(ctx context.Context, args []string) ([]byte, error) {
		t.Error("no trial should run")
		return nil, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Discover(ctx, 1280, 720); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRawSurface_ScalesFrames(t *testing.T) {
	var buf bytes.Buffer
	s := newRawSurface(&buf, 4, 4)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	if err := s.WriteFrame(img); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 4*4*4 {
		t.Errorf("wrote %d bytes, want 64", buf.Len())
	}

	s.close()
	if err := s.WriteFrame(img); !errors.Is(err, errSurfaceClosed) {
		t.Errorf("expected errSurfaceClosed, got %v", err)
	}
}

func TestRecorder_RecordsParseableFile(t *testing.T) {
	if !IsAvailable() {
		t.Skip("ffmpeg not available")
	}

	out := filepath.Join(t.TempDir(), "probe.mp4")
	rec := NewRecorder(Options{})
	defer rec.Release()

	err := rec.Prepare(ports.RecorderOptions{
		Width: 160, Height: 120, FrameRate: 10, BitrateBps: 200000,
		MaxDuration: time.Second, OutputPath: out,
	})
	if err != nil {
		t.Fatal(err)
	}
	surface, err := rec.Surface()
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 160, 120))
	go func() {
		for i := 0; ; i++ {
			for p := 0; p < len(frame.Pix); p += 4 {
				frame.Pix[p] = uint8(i * 10)
			}
			frame.Set(i%160, 60, color.White)
			if err := surface.WriteFrame(frame); err != nil {
				return
			}
		}
	}()

	select {
	case <-rec.Done():
	case <-time.After(20 * time.Second):
		t.Fatal("recorder did not finish")
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	cfg, err := mp4config.FromFile(out)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	if !strings.HasPrefix(cfg.ProfileLevelID, "42") {
		t.Errorf("expected a baseline profile, got %s", cfg.ProfileLevelID)
	}
}
