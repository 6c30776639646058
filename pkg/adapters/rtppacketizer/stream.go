// Package rtppacketizer sends H.264, AAC and AMR-NB elementary streams as
// RTP over UDP.
package rtppacketizer

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/pion/rtp"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
)

const (
	// DefaultMTU bounds the RTP payload size.
	DefaultMTU = 1200

	payloadType = 96
)

var (
	errNoInput       = errors.New("rtppacketizer: no input stream")
	errNoDestination = errors.New("rtppacketizer: no destination")
	errRunning       = errors.New("rtppacketizer: already running")
)

// Options configures a packetizer.
type Options struct {
	MTU    int
	Logger ports.Logger
}

func (o Options) mtu() uint16 {
	if o.MTU <= 0 || o.MTU > 65000 {
		return DefaultMTU
	}
	return uint16(o.MTU)
}

// NewAudio returns the packetizer for an audio codec, or nil when the codec
// has none.
func NewAudio(codec media.AudioCodec, opts Options) ports.Packetizer {
	switch codec {
	case media.AudioAAC:
		return NewAAC(opts)
	case media.AudioAMRNB:
		return NewAMR(opts)
	default:
		return nil
	}
}

// loopFunc reads in until EOF or until stop is closed and sends packets
// through out.
type loopFunc func(in io.Reader, out *sender, stop <-chan struct{}) error

// stream holds what every packetizer shares: the input, the UDP sender and
// the run state.
type stream struct {
	name   string
	opts   Options
	logger ports.Logger
	meter  *meter

	mu      sync.Mutex
	input   io.Reader
	out     *sender
	stop    chan struct{}
	running bool
}

func newStream(name string, opts Options) *stream {
	s := &stream{name: name, opts: opts, meter: newMeter(time.Second)}
	if opts.Logger != nil {
		s.logger = opts.Logger.WithComponent("rtp " + name)
	}
	return s
}

func (s *stream) SetInputStream(r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = r
}

// SetDestination resolves and connects to the receiver so lookup failures
// surface before Start.
func (s *stream) SetDestination(addr string, port, ttl int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errRunning
	}
	out, err := dial(addr, port, ttl, s.meter)
	if err != nil {
		return err
	}
	if s.out != nil {
		s.out.Close()
	}
	s.out = out
	return nil
}

func (s *stream) start(loop loopFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errRunning
	}
	if s.input == nil {
		return errNoInput
	}
	if s.out == nil {
		return errNoDestination
	}

	stop := make(chan struct{})
	in, out := s.input, s.out
	s.stop = stop
	s.running = true

	go func() {
		err := loop(in, out, stop)
		select {
		case <-stop:
			return
		default:
		}
		if s.logger == nil {
			return
		}
		if err != nil {
			s.logger.Warn(l10n.F("RTP %s stream failed: %s", s.name, err))
		} else {
			s.logger.Debug(l10n.F("RTP %s input ended", s.name))
		}
	}()
	return nil
}

// Stop ends the stream. A read in progress finishes when the owner closes
// the input.
func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	close(s.stop)
	s.running = false
	s.input = nil
	var err error
	if s.out != nil {
		err = s.out.Close()
		s.out = nil
	}
	return err
}

// BitRate returns the bits per second sent during the last second.
func (s *stream) BitRate() int64 {
	return s.meter.rate()
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func newPacketizer(mtu uint16, payloader rtp.Payloader, clockRate uint32) rtp.Packetizer {
	return rtp.NewPacketizer(mtu, payloadType, rand.Uint32(), payloader, rtp.NewRandomSequencer(), clockRate)
}

// sendAll writes packets in order.
func sendAll(out *sender, pkts []*rtp.Packet) error {
	for _, p := range pkts {
		if err := out.Send(p); err != nil {
			return fmt.Errorf("send RTP packet: %w", err)
		}
	}
	return nil
}
