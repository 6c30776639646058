// Package mp4scan locates the sample payload inside an mp4 byte stream that
// is still being written, and turns the payload into an Annex-B stream.
package mp4scan

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/user/telecast/pkg/media"
)

// SkipToPayload consumes r until just past the first "mdat" box type. The
// scan looks for 'm' and then compares the following three bytes to "dat";
// on a mismatch scanning resumes after those three bytes. It never reads
// beyond the tag, so a *bufio.Reader passed in stays positioned on the payload.
//
// Read errors, end of stream and cancellation of ctx are reported as
// media.ErrContainerHeaderNotFound wrapping the cause.
func SkipToPayload(ctx context.Context, r io.Reader) error {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}

	var tag [3]byte
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", media.ErrContainerHeaderNotFound, err)
		}
		b, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: %w", media.ErrContainerHeaderNotFound, err)
		}
		if b != 'm' {
			continue
		}
		if _, err := io.ReadFull(r, tag[:]); err != nil {
			return fmt.Errorf("%w: %w", media.ErrContainerHeaderNotFound, err)
		}
		if tag == [3]byte{'d', 'a', 't'} {
			return nil
		}
	}
}

type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

// CancelableReader closes the wrapped stream when its context ends so that a
// blocked Read returns.
type CancelableReader struct {
	rc   io.ReadCloser
	done chan struct{}
	once sync.Once
	err  error
}

// NewCancelableReader wraps rc. Close must be called to release the watcher.
func NewCancelableReader(ctx context.Context, rc io.ReadCloser) *CancelableReader {
	c := &CancelableReader{rc: rc, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	return c
}

func (c *CancelableReader) Read(p []byte) (int, error) {
	return c.rc.Read(p)
}

// Close closes the underlying stream once.
func (c *CancelableReader) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.err = c.rc.Close()
	})
	return c.err
}
