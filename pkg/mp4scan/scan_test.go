package mp4scan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/user/telecast/pkg/media"
)

func TestSkipToPayload_Positioning(t *testing.T) {
	data := []byte{'m', 'x', 'y', 'z', 0, 0, 'm', 'd', 'a', 't', 0xAA, 0xBB}
	r := bytes.NewReader(data)

	if err := SkipToPayload(context.Background(), r); err != nil {
		t.Fatalf("SkipToPayload failed: %v", err)
	}
	next, err := r.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte failed: %v", err)
	}
	if next != 0xAA {
		t.Errorf("next byte = %#x, want 0xaa", next)
	}
}

func TestSkipToPayload_NonByteReader(t *testing.T) {
	data := append([]byte("ftypisom....moov"), []byte("mdat\x01\x02")...)
	r := io.MultiReader(bytes.NewReader(data))

	if err := SkipToPayload(context.Background(), r); err != nil {
		t.Fatalf("SkipToPayload failed: %v", err)
	}
	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, []byte{0x01, 0x02}) {
		t.Errorf("remaining = %v", rest)
	}
}

func TestSkipToPayload_MismatchConsumesThreeBytes(t *testing.T) {
	// the second 'm' is swallowed with the first candidate tag
	r := bytes.NewReader([]byte("mmdat"))
	err := SkipToPayload(context.Background(), r)
	if !errors.Is(err, media.ErrContainerHeaderNotFound) {
		t.Errorf("expected ErrContainerHeaderNotFound, got %v", err)
	}
}

func TestSkipToPayload_EOF(t *testing.T) {
	r := bytes.NewReader([]byte("ftypisom moov no payload here"))
	err := SkipToPayload(context.Background(), r)
	if !errors.Is(err, media.ErrContainerHeaderNotFound) {
		t.Fatalf("expected ErrContainerHeaderNotFound, got %v", err)
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected cause io.EOF, got %v", err)
	}
}

func TestSkipToPayload_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := SkipToPayload(ctx, bytes.NewReader([]byte("mdat")))
	if !errors.Is(err, media.ErrContainerHeaderNotFound) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected header error wrapping context.Canceled, got %v", err)
	}
}

func TestCancelableReader_UnblocksOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cr := NewCancelableReader(ctx, pr)
	defer cr.Close()

	result := make(chan error, 1)
	go func() {
		result <- SkipToPayload(context.Background(), bufio.NewReader(cr))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, media.ErrContainerHeaderNotFound) {
			t.Errorf("expected ErrContainerHeaderNotFound, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not unblock after cancellation")
	}
}

func TestCancelableReader_CloseIsIdempotent(t *testing.T) {
	pr, _ := io.Pipe()
	cr := NewCancelableReader(context.Background(), pr)
	if err := cr.Close(); err != nil {
		t.Errorf("first Close = %v", err)
	}
	if err := cr.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
