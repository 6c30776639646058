package rtppacketizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/user/telecast/pkg/ports"
)

const (
	adtsMinHeader   = 7
	aacFrameSamples = 1024
)

var errBadADTS = errors.New("rtppacketizer: invalid ADTS header")

var adtsSampleRates = []uint32{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// AACPacketizer sends ADTS framed AAC as RFC 3640 AAC-hbr packets, one
// access unit per packet.
type AACPacketizer struct {
	*stream
}

func NewAAC(opts Options) *AACPacketizer {
	return &AACPacketizer{stream: newStream("aac", opts)}
}

func (p *AACPacketizer) Start() error {
	return p.start(p.loop)
}

func (p *AACPacketizer) loop(in io.Reader, out *sender, stop <-chan struct{}) error {
	br := bufio.NewReader(in)
	var packetizer rtp.Packetizer
	for !stopped(stop) {
		au, rate, err := readADTS(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if packetizer == nil {
			packetizer = newPacketizer(p.opts.mtu(), aacPayloader{}, rate)
		}
		if err := sendAll(out, packetizer.Packetize(au, aacFrameSamples)); err != nil {
			return err
		}
	}
	return nil
}

// readADTS returns the raw access unit of the next ADTS frame and the
// sample rate announced in its header.
func readADTS(br *bufio.Reader) ([]byte, uint32, error) {
	hdr, err := br.Peek(adtsMinHeader)
	if err != nil {
		if len(hdr) == 0 || errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, err
	}
	if hdr[0] != 0xff || hdr[1]&0xf0 != 0xf0 {
		return nil, 0, errBadADTS
	}
	protectionAbsent := hdr[1]&0x01 == 1
	rateIndex := int(hdr[2]>>2) & 0x0f
	if rateIndex >= len(adtsSampleRates) {
		return nil, 0, fmt.Errorf("%w: sampling index %d", errBadADTS, rateIndex)
	}
	frameLen := int(hdr[3]&0x03)<<11 | int(hdr[4])<<3 | int(hdr[5]>>5)
	hdrLen := adtsMinHeader
	if !protectionAbsent {
		hdrLen += 2
	}
	if frameLen < hdrLen {
		return nil, 0, fmt.Errorf("%w: frame length %d", errBadADTS, frameLen)
	}

	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(br, frame); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, err
	}
	return frame[hdrLen:], adtsSampleRates[rateIndex], nil
}

// aacPayloader prefixes an access unit with its AU header section:
// a 16 bit header length in bits, then a 13 bit size and 3 bit index.
type aacPayloader struct{}

func (aacPayloader) Payload(mtu uint16, au []byte) [][]byte {
	if len(au) == 0 || len(au)+4 > int(mtu) || len(au) >= 1<<13 {
		return nil
	}
	out := make([]byte, 4+len(au))
	out[0], out[1] = 0x00, 0x10
	out[2] = byte(len(au) >> 5)
	out[3] = byte(len(au)<<3) & 0xf8
	copy(out[4:], au)
	return [][]byte{out}
}

var (
	_ ports.Packetizer = (*AACPacketizer)(nil)
	_ ports.BitRater   = (*AACPacketizer)(nil)
)
