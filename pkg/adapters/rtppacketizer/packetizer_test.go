package rtppacketizer

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/mp4config/mp4test"
)

func listen(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

// receive reads packets until done returns true or the deadline passes.
func receive(t *testing.T, conn *net.UDPConn, done func([]*rtp.Packet) bool) []*rtp.Packet {
	t.Helper()
	var pkts []*rtp.Packet
	buf := make([]byte, 2048)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !done(pkts) {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("receive after %d packets: %v", len(pkts), err)
		}
		p := &rtp.Packet{}
		if err := p.Unmarshal(append([]byte(nil), buf[:n]...)); err != nil {
			t.Fatal(err)
		}
		pkts = append(pkts, p)
	}
	return pkts
}

func count(n int) func([]*rtp.Packet) bool {
	return func(p []*rtp.Packet) bool { return len(p) >= n }
}

func TestH264Packetizer_SendsParameterSetsBeforeIDR(t *testing.T) {
	conn, port := listen(t)
	p := NewH264(Options{})
	p.SetStreamParameters(mp4test.SPS, mp4test.PPS)
	if err := p.SetDestination("127.0.0.1", port, 64); err != nil {
		t.Fatal(err)
	}
	p.SetInputStream(bytes.NewReader(mp4test.AnnexB(mp4test.IDR)))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	pkts := receive(t, conn, func(pkts []*rtp.Packet) bool {
		return len(pkts) > 0 && pkts[len(pkts)-1].Payload[0]&0x1f == 5
	})

	sawParams := false
	for _, pkt := range pkts[:len(pkts)-1] {
		switch pkt.Payload[0] & 0x1f {
		case 7, 24:
			sawParams = true
		}
		if pkt.Marker {
			t.Error("parameter set packets must not carry the marker bit")
		}
	}
	if !sawParams {
		t.Error("expected SPS/PPS ahead of the IDR picture")
	}
	idr := pkts[len(pkts)-1]
	if !idr.Marker || idr.PayloadType != payloadType {
		t.Errorf("IDR packet marker=%v pt=%d", idr.Marker, idr.PayloadType)
	}
	if p.BitRate() <= 0 {
		t.Error("BitRate should count sent bytes")
	}
}

func TestH264Packetizer_MarksLastSliceOfPicture(t *testing.T) {
	conn, port := listen(t)
	p := NewH264(Options{})
	if err := p.SetDestination("127.0.0.1", port, 0); err != nil {
		t.Fatal(err)
	}
	// Non-IDR slices. A leading 1 bit after the header is first_mb_in_slice 0.
	first := []byte{0x41, 0x9a, 0x22, 0x33}
	next := []byte{0x41, 0x40, 0x44, 0x55}
	p.SetInputStream(bytes.NewReader(mp4test.AnnexB(first, next, first, next)))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	pkts := receive(t, conn, count(4))
	want := []bool{false, true, false, true}
	for i, pkt := range pkts {
		if pkt.Marker != want[i] {
			t.Errorf("packet %d marker = %v, want %v", i, pkt.Marker, want[i])
		}
	}
	if pkts[0].Timestamp != pkts[1].Timestamp || pkts[2].Timestamp != pkts[3].Timestamp {
		t.Errorf("slices of one picture must share a timestamp: %d %d %d %d",
			pkts[0].Timestamp, pkts[1].Timestamp, pkts[2].Timestamp, pkts[3].Timestamp)
	}
}

func TestStartsAccessUnit(t *testing.T) {
	tests := []struct {
		name string
		nal  h264reader.NAL
		want bool
	}{
		{"first slice", h264reader.NAL{UnitType: h264reader.NalUnitTypeCodedSliceNonIdr, Data: []byte{0x41, 0x80}}, true},
		{"later slice", h264reader.NAL{UnitType: h264reader.NalUnitTypeCodedSliceIdr, Data: []byte{0x65, 0x40}}, false},
		{"sps", h264reader.NAL{UnitType: h264reader.NalUnitTypeSPS, Data: []byte{0x67}}, true},
		{"delimiter", h264reader.NAL{UnitType: h264reader.NalUnitTypeAUD, Data: []byte{0x09, 0xf0}}, true},
		{"filler", h264reader.NAL{UnitType: h264reader.NalUnitTypeFiller, Data: []byte{0x0c, 0xff}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := startsAccessUnit(&tt.nal); got != tt.want {
				t.Errorf("startsAccessUnit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestH264Packetizer_RequiresInputAndDestination(t *testing.T) {
	p := NewH264(Options{})
	if err := p.Start(); !errors.Is(err, errNoInput) {
		t.Errorf("expected errNoInput, got %v", err)
	}
	p.SetInputStream(bytes.NewReader(nil))
	if err := p.Start(); !errors.Is(err, errNoDestination) {
		t.Errorf("expected errNoDestination, got %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop on idle packetizer: %v", err)
	}
}

func TestH264Packetizer_Restart(t *testing.T) {
	conn, port := listen(t)
	p := NewH264(Options{})
	for i := 0; i < 2; i++ {
		if err := p.SetDestination("127.0.0.1", port, 0); err != nil {
			t.Fatal(err)
		}
		p.SetInputStream(bytes.NewReader(mp4test.AnnexB(mp4test.SPS, mp4test.PPS, mp4test.IDR)))
		if err := p.Start(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		receive(t, conn, func(pkts []*rtp.Packet) bool {
			return len(pkts) > 0 && pkts[len(pkts)-1].Marker
		})
		if err := p.Stop(); err != nil {
			t.Fatal(err)
		}
	}
}

func adtsFrame(payload []byte) []byte {
	flen := 7 + len(payload)
	hdr := []byte{
		0xff, 0xf1,
		(1 << 6) | (4 << 2),
		(1 << 6) | byte(flen>>11)&0x03,
		byte(flen >> 3),
		byte(flen&0x07)<<5 | 0x1f,
		0xfc,
	}
	return append(hdr, payload...)
}

func TestAACPacketizer(t *testing.T) {
	conn, port := listen(t)
	p := NewAAC(Options{})
	if err := p.SetDestination("127.0.0.1", port, 64); err != nil {
		t.Fatal(err)
	}
	au := bytes.Repeat([]byte{0xab}, 300)
	input := append(adtsFrame(au), adtsFrame(au)...)
	p.SetInputStream(bytes.NewReader(input))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	pkts := receive(t, conn, count(2))
	for _, pkt := range pkts {
		if len(pkt.Payload) != 4+300 {
			t.Fatalf("payload length %d", len(pkt.Payload))
		}
		if pkt.Payload[0] != 0x00 || pkt.Payload[1] != 0x10 {
			t.Errorf("AU headers length = % x", pkt.Payload[:2])
		}
		size := int(pkt.Payload[2])<<5 | int(pkt.Payload[3])>>3
		if size != 300 {
			t.Errorf("AU size = %d", size)
		}
		if !pkt.Marker {
			t.Error("every AAC packet ends an access unit")
		}
	}
	if d := pkts[1].Timestamp - pkts[0].Timestamp; d != aacFrameSamples {
		t.Errorf("timestamp step = %d, want 1024", d)
	}
}

func TestReadADTS_Invalid(t *testing.T) {
	if _, _, err := readADTS(bufioReader([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06})); !errors.Is(err, errBadADTS) {
		t.Errorf("expected errBadADTS, got %v", err)
	}
	_, rate, err := readADTS(bufioReader(adtsFrame([]byte{1, 2, 3})))
	if err != nil || rate != 44100 {
		t.Errorf("rate = %d, err = %v", rate, err)
	}
}

func TestAMRPacketizer(t *testing.T) {
	conn, port := listen(t)
	p := NewAMR(Options{})
	if err := p.SetDestination("127.0.0.1", port, 64); err != nil {
		t.Fatal(err)
	}
	frame := append([]byte{0x3c}, bytes.Repeat([]byte{0x11}, 31)...)
	input := append([]byte("#!AMR\n"), frame...)
	input = append(input, frame...)
	p.SetInputStream(bytes.NewReader(input))
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	pkts := receive(t, conn, count(2))
	want := append([]byte{amrNoModeRequest}, frame...)
	if !bytes.Equal(pkts[0].Payload, want) {
		t.Errorf("payload = % x", pkts[0].Payload)
	}
	if d := pkts[1].Timestamp - pkts[0].Timestamp; d != amrFrameSamples {
		t.Errorf("timestamp step = %d, want 160", d)
	}
}

func TestNewAudio(t *testing.T) {
	if _, ok := NewAudio(media.AudioAAC, Options{}).(*AACPacketizer); !ok {
		t.Error("expected an AAC packetizer")
	}
	if _, ok := NewAudio(media.AudioAMRNB, Options{}).(*AMRPacketizer); !ok {
		t.Error("expected an AMR packetizer")
	}
	if NewAudio(media.AudioNone, Options{}) != nil {
		t.Error("expected no packetizer")
	}
}

func TestMeter(t *testing.T) {
	now := time.Unix(100, 0)
	m := newMeter(time.Second)
	m.now = func() time.Time { return now }

	m.add(1000)
	now = now.Add(500 * time.Millisecond)
	m.add(500)
	if got := m.rate(); got != 12000 {
		t.Errorf("rate = %d, want 12000", got)
	}
	now = now.Add(800 * time.Millisecond)
	if got := m.rate(); got != 4000 {
		t.Errorf("rate after window = %d, want 4000", got)
	}
}

func bufioReader(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}
