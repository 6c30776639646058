package rtppacketizer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/user/telecast/pkg/ports"
)

const (
	amrClockRate    = 8000
	amrFrameSamples = 160
	// amrNoModeRequest is the CMR byte of an octet-aligned payload.
	amrNoModeRequest = 0xf0
)

var amrMagic = []byte("#!AMR\n")

// amrFrameSizes maps the frame type to the speech bytes that follow the
// frame header.
var amrFrameSizes = [16]int{12, 13, 15, 17, 19, 20, 26, 31, 5, -1, -1, -1, -1, -1, -1, 0}

// AMRPacketizer sends AMR-NB in storage format as RFC 4867 octet-aligned
// packets, one frame per packet.
type AMRPacketizer struct {
	*stream
}

func NewAMR(opts Options) *AMRPacketizer {
	return &AMRPacketizer{stream: newStream("amr", opts)}
}

func (p *AMRPacketizer) Start() error {
	return p.start(p.loop)
}

func (p *AMRPacketizer) loop(in io.Reader, out *sender, stop <-chan struct{}) error {
	br := bufio.NewReader(in)
	if err := skipAMRMagic(br); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	packetizer := newPacketizer(p.opts.mtu(), amrPayloader{}, amrClockRate)
	for !stopped(stop) {
		frame, err := readAMRFrame(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := sendAll(out, packetizer.Packetize(frame, amrFrameSamples)); err != nil {
			return err
		}
	}
	return nil
}

func skipAMRMagic(br *bufio.Reader) error {
	head, err := br.Peek(len(amrMagic))
	if err != nil {
		return io.EOF
	}
	if !bytes.Equal(head, amrMagic) {
		return fmt.Errorf("rtppacketizer: missing AMR header")
	}
	_, err = br.Discard(len(amrMagic))
	return err
}

// readAMRFrame returns the frame header byte followed by its speech bytes.
func readAMRFrame(br *bufio.Reader) ([]byte, error) {
	hdr, err := br.ReadByte()
	if err != nil {
		return nil, io.EOF
	}
	ft := int(hdr>>3) & 0x0f
	size := amrFrameSizes[ft]
	if size < 0 {
		return nil, fmt.Errorf("rtppacketizer: invalid AMR frame type %d", ft)
	}
	frame := make([]byte, 1+size)
	// The ToC entry of a single frame payload has F cleared.
	frame[0] = hdr & 0x7c
	if _, err := io.ReadFull(br, frame[1:]); err != nil {
		return nil, io.EOF
	}
	return frame, nil
}

type amrPayloader struct{}

func (amrPayloader) Payload(mtu uint16, frame []byte) [][]byte {
	if len(frame) == 0 || len(frame)+1 > int(mtu) {
		return nil
	}
	out := make([]byte, 1+len(frame))
	out[0] = amrNoModeRequest
	copy(out[1:], frame)
	return [][]byte{out}
}

var (
	_ ports.Packetizer = (*AMRPacketizer)(nil)
	_ ports.BitRater   = (*AMRPacketizer)(nil)
)
