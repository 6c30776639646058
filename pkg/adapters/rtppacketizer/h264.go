package rtppacketizer

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/user/telecast/pkg/ports"
)

const videoClockRate = 90000

var annexBStartCode = []byte{0, 0, 0, 1}

// H264Packetizer sends an Annex-B H.264 stream as RFC 6184 packets with
// wall clock timestamps. The configured parameter sets are sent ahead of
// every IDR picture the stream does not already precede with its own.
type H264Packetizer struct {
	*stream

	psMu     sync.Mutex
	sps, pps []byte
}

// NewH264 creates an H.264 packetizer.
func NewH264(opts Options) *H264Packetizer {
	return &H264Packetizer{stream: newStream("h264", opts)}
}

func (p *H264Packetizer) SetStreamParameters(sps, pps []byte) {
	p.psMu.Lock()
	defer p.psMu.Unlock()
	p.sps = append([]byte(nil), sps...)
	p.pps = append([]byte(nil), pps...)
}

func (p *H264Packetizer) parameterSets() (sps, pps []byte) {
	p.psMu.Lock()
	defer p.psMu.Unlock()
	return p.sps, p.pps
}

func (p *H264Packetizer) Start() error {
	return p.start(p.loop)
}

func (p *H264Packetizer) loop(in io.Reader, out *sender, stop <-chan struct{}) error {
	reader, err := h264reader.NewReader(in)
	if err != nil {
		return err
	}
	packetizer := newPacketizer(p.opts.mtu(), &codecs.H264Payloader{}, videoClockRate)
	sps, pps := p.parameterSets()
	start := time.Now()
	var sawSPS, sawPPS bool

	// Each NAL is held back until the next one shows whether it closes
	// the access unit. The marker goes on the last NAL of an access unit
	// that carries a picture.
	var pending []byte
	var ts uint32
	var picture, begun bool
	flush := func(last bool) error {
		if pending == nil {
			return nil
		}
		err := p.send(packetizer, out, pending, ts, last && picture)
		pending = nil
		return err
	}

	for !stopped(stop) {
		nal, err := reader.NextNAL()
		if errors.Is(err, io.EOF) {
			return flush(true)
		}
		if err != nil {
			return fmt.Errorf("read NAL: %w", err)
		}

		boundary := picture && startsAccessUnit(nal)
		if err := flush(boundary); err != nil {
			return err
		}
		if boundary || !begun {
			ts = uint32(time.Since(start).Seconds() * videoClockRate)
			picture, begun = false, true
		}

		switch nal.UnitType {
		case h264reader.NalUnitTypeSPS:
			sawSPS = true
		case h264reader.NalUnitTypePPS:
			sawPPS = true
		case h264reader.NalUnitTypeCodedSliceIdr:
			if !(sawSPS && sawPPS) && len(sps) > 0 && len(pps) > 0 {
				for _, ps := range [][]byte{sps, pps} {
					if err := p.send(packetizer, out, ps, ts, false); err != nil {
						return err
					}
				}
			}
			sawSPS, sawPPS = false, false
		}

		if isPicture(nal.UnitType) {
			picture = true
		}
		pending = append([]byte(nil), nal.Data...)
	}
	return flush(true)
}

func isPicture(t h264reader.NalUnitType) bool {
	switch t {
	case h264reader.NalUnitTypeCodedSliceIdr,
		h264reader.NalUnitTypeCodedSliceNonIdr,
		h264reader.NalUnitTypeCodedSliceDataPartitionA:
		return true
	}
	return false
}

// startsAccessUnit reports whether nal, following a picture, opens the
// next access unit. A slice opens one when first_mb_in_slice is zero,
// which is a leading 1 bit in the slice header.
func startsAccessUnit(nal *h264reader.NAL) bool {
	switch nal.UnitType {
	case h264reader.NalUnitTypeCodedSliceIdr,
		h264reader.NalUnitTypeCodedSliceNonIdr,
		h264reader.NalUnitTypeCodedSliceDataPartitionA:
		return len(nal.Data) > 1 && nal.Data[1]&0x80 != 0
	case h264reader.NalUnitTypeSEI,
		h264reader.NalUnitTypeSPS,
		h264reader.NalUnitTypePPS,
		h264reader.NalUnitTypeAUD:
		return true
	}
	return nal.UnitType >= 14 && nal.UnitType <= 18
}

// send packetizes one NAL unit. The marker bit is kept only when marker is set.
func (p *H264Packetizer) send(packetizer rtp.Packetizer, out *sender, nal []byte, ts uint32, marker bool) error {
	annexB := make([]byte, 0, len(annexBStartCode)+len(nal))
	annexB = append(annexB, annexBStartCode...)
	annexB = append(annexB, nal...)

	pkts := packetizer.Packetize(annexB, 0)
	for _, pkt := range pkts {
		pkt.Timestamp = ts
		if !marker {
			pkt.Marker = false
		}
	}
	return sendAll(out, pkts)
}

var (
	_ ports.Packetizer      = (*H264Packetizer)(nil)
	_ ports.ParameterSetter = (*H264Packetizer)(nil)
	_ ports.BitRater        = (*H264Packetizer)(nil)
)
