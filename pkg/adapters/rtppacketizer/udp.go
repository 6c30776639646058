package rtppacketizer

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/rtp"
	"golang.org/x/net/ipv4"
)

// sender writes RTP packets to one UDP destination.
type sender struct {
	conn  *net.UDPConn
	meter *meter
}

func dial(addr string, port, ttl int, m *meter) (*sender, error) {
	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	if ttl > 0 {
		if raddr.IP.IsMulticast() {
			err = ipv4.NewPacketConn(conn).SetMulticastTTL(ttl)
		} else {
			err = ipv4.NewConn(conn).SetTTL(ttl)
		}
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("set ttl %d: %w", ttl, err)
		}
	}
	return &sender{conn: conn, meter: m}, nil
}

func (s *sender) Send(p *rtp.Packet) error {
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	n, err := s.conn.Write(b)
	s.meter.add(n)
	return err
}

func (s *sender) Close() error {
	return s.conn.Close()
}

// meter measures the bytes sent over a sliding window.
type meter struct {
	mu      sync.Mutex
	window  time.Duration
	samples []sample
	now     func() time.Time
}

type sample struct {
	at    time.Time
	bytes int
}

func newMeter(window time.Duration) *meter {
	return &meter{window: window, now: time.Now}
}

func (m *meter) add(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneLocked(now)
	m.samples = append(m.samples, sample{at: now, bytes: n})
}

func (m *meter) rate() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(m.now())
	var total int64
	for _, s := range m.samples {
		total += int64(s.bytes)
	}
	return total * 8 * int64(time.Second) / int64(m.window)
}

func (m *meter) pruneLocked(now time.Time) {
	cut := 0
	for cut < len(m.samples) && now.Sub(m.samples[cut].at) > m.window {
		cut++
	}
	m.samples = m.samples[cut:]
}
