package mp4scan

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxNALSize bounds a single sample read from an untrusted length prefix.
const maxNALSize = 16 << 20

var (
	startCode = []byte{0, 0, 0, 1}

	errOversizedNAL = errors.New("mp4scan: NAL unit exceeds size limit")
)

// AnnexBReader converts the 4-byte length-prefixed samples that follow an
// mdat header into an Annex-B stream. Box headers that a fragmenting muxer
// interleaves with the samples (moof, and the next mdat) are skipped.
type AnnexBReader struct {
	br      *bufio.Reader
	pending []byte
}

// NewAnnexBReader reads samples from br, which must be positioned just past
// an mdat box type, as left by SkipToPayload.
func NewAnnexBReader(br *bufio.Reader) *AnnexBReader {
	return &AnnexBReader{br: br}
}

func (a *AnnexBReader) Read(p []byte) (int, error) {
	for len(a.pending) == 0 {
		if err := a.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, a.pending)
	a.pending = a.pending[n:]
	return n, nil
}

func (a *AnnexBReader) next() error {
	var hdr [4]byte
	if _, err := io.ReadFull(a.br, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	size := binary.BigEndian.Uint32(hdr[:])

	if typ, err := a.br.Peek(4); err == nil && isBoxType(typ) {
		return a.skipBox(string(typ), size)
	}

	if size == 0 {
		return nil
	}
	if size > maxNALSize {
		return fmt.Errorf("%w: %d bytes", errOversizedNAL, size)
	}
	nal := make([]byte, len(startCode)+int(size))
	copy(nal, startCode)
	if _, err := io.ReadFull(a.br, nal[len(startCode):]); err != nil {
		return err
	}
	a.pending = nal
	return nil
}

// skipBox discards a box whose size field has already been consumed.
func (a *AnnexBReader) skipBox(typ string, size uint32) error {
	if _, err := a.br.Discard(4); err != nil {
		return err
	}
	if typ == "mdat" {
		// samples follow directly; a 64-bit size trails the type
		if size == 1 {
			_, err := a.br.Discard(8)
			return err
		}
		return nil
	}
	if size < 8 {
		return fmt.Errorf("mp4scan: %s box with size %d", typ, size)
	}
	_, err := a.br.Discard(int(size) - 8)
	return err
}

func isBoxType(b []byte) bool {
	switch string(b) {
	case "moof", "mdat", "moov", "ftyp", "styp", "sidx", "mfra", "free", "skip":
		return true
	}
	return false
}
