package ffmpeg

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"golang.org/x/image/draw"
)

var errSurfaceClosed = errors.New("ffmpeg: surface closed")

// rawSurface converts frames to RGBA at a fixed size and writes them to
// the ffmpeg input.
type rawSurface struct {
	mu     sync.Mutex
	w      io.Writer
	width  int
	height int
	frame  *image.RGBA
	closed bool
}

func newRawSurface(w io.Writer, width, height int) *rawSurface {
	return &rawSurface{
		w:      w,
		width:  width,
		height: height,
		frame:  image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

func (s *rawSurface) WriteFrame(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSurfaceClosed
	}

	if img.Bounds().Dx() == s.width && img.Bounds().Dy() == s.height {
		draw.Draw(s.frame, s.frame.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(s.frame, s.frame.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	if _, err := s.w.Write(s.frame.Pix); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (s *rawSurface) Size() (int, int) {
	return s.width, s.height
}

func (s *rawSurface) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
