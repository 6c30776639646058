package ports

import (
	"context"
	"io"
)

// Packetizer turns an encoded stream into RTP packets sent to a destination.
type Packetizer interface {
	// SetInputStream is called once per stream, before Start.
	SetInputStream(r io.Reader)
	SetDestination(addr string, port, ttl int) error
	Start() error
	Stop() error
}

// ParameterSetter is implemented by H.264 packetizers that resend SPS and
// PPS ahead of key frames.
type ParameterSetter interface {
	SetStreamParameters(sps, pps []byte)
}

// BitRater is implemented by packetizers that measure their output rate.
type BitRater interface {
	BitRate() int64
}

// StreamController starts and stops a configured session towards receivers.
type StreamController interface {
	StartStream(ctx context.Context) error
	StopStream() error
	IsStreaming() bool
}

// KeyValueStore is durable string storage. It backs the capability cache.
type KeyValueStore interface {
	Get(key string) (string, bool)
	Put(key, value string) error
}
