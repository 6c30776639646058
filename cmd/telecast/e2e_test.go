package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/user/telecast/pkg/adapters/ffmpeg"
)

// TestStreamCommand streams the test card to local UDP sockets through a
// real ffmpeg.
func TestStreamCommand(t *testing.T) {
	if os.Getenv("TELECAST_E2E") != "1" {
		t.Skip("Skipping E2E test (set TELECAST_E2E=1 to run)")
	}
	if !ffmpeg.IsAvailable() {
		t.Skip("ffmpeg not available")
	}

	video := listenUDP(t)
	audio := listenUDP(t)
	dir := t.TempDir()
	sdpPath := filepath.Join(dir, "stream.sdp")
	cfgPath := filepath.Join(dir, "telecast.yaml")
	cfg := fmt.Sprintf(`stream:
  destination: 127.0.0.1
  video_port: %d
  audio_port: %d
  sdp: %s
audio:
  encoder: aac
  sample_rate: 44100
  bitrate: 64000
display:
  width: 640
  height: 360
  scale: 100
cache:
  path: %s
`, port(video), port(audio), sdpPath, filepath.Join(dir, "cache.yaml"))
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := run(t, "--quiet", "--config", cfgPath, "stream", "--duration", "12s")
		done <- err
	}()

	for name, conn := range map[string]*net.UDPConn{"video": video, "audio": audio} {
		pkt, err := readPacket(conn, 20*time.Second)
		if err != nil {
			t.Fatalf("no %s packet: %v", name, err)
		}
		if pkt.PayloadType != 96 {
			t.Errorf("%s payload type = %d", name, pkt.PayloadType)
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("stream command failed: %v", err)
	}
	if _, err := os.Stat(sdpPath); !os.IsNotExist(err) {
		t.Errorf("session description should be removed after the stream, stat: %v", err)
	}
}

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func port(conn *net.UDPConn) int {
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func readPacket(conn *net.UDPConn, timeout time.Duration) (*rtp.Packet, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf[:n]); err != nil {
		return nil, err
	}
	return &pkt, nil
}
