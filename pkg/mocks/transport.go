package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/user/telecast/pkg/ports"
)

// Packetizer is a mock implementation of ports.Packetizer. When DrainInput
// is set, Start copies the input stream into Received in the background.
type Packetizer struct {
	mu sync.Mutex

	SetDestinationFunc func(addr string, port, ttl int) error
	StartFunc          func() error
	StopFunc           func() error

	DrainInput bool

	// Recorded calls for verification
	Input        io.Reader
	InputSets    int
	Address      string
	Port         int
	TTL          int
	SPS, PPS     []byte
	StartCalls   int
	StopCalls    int
	Received     []byte
	drained      chan struct{}
	BitRateValue int64
}

func (m *Packetizer) SetInputStream(r io.Reader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Input = r
	m.InputSets++
}

func (m *Packetizer) SetDestination(addr string, port, ttl int) error {
	m.mu.Lock()
	m.Address, m.Port, m.TTL = addr, port, ttl
	m.mu.Unlock()
	if m.SetDestinationFunc != nil {
		return m.SetDestinationFunc(addr, port, ttl)
	}
	return nil
}

func (m *Packetizer) SetStreamParameters(sps, pps []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SPS, m.PPS = sps, pps
}

func (m *Packetizer) Start() error {
	m.mu.Lock()
	m.StartCalls++
	input := m.Input
	m.mu.Unlock()
	if m.StartFunc != nil {
		if err := m.StartFunc(); err != nil {
			return err
		}
	}
	if m.DrainInput && input != nil {
		done := make(chan struct{})
		m.mu.Lock()
		m.drained = done
		m.mu.Unlock()
		go func() {
			defer close(done)
			data, _ := io.ReadAll(input)
			m.mu.Lock()
			m.Received = append(m.Received, data...)
			m.mu.Unlock()
		}()
	}
	return nil
}

func (m *Packetizer) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *Packetizer) BitRate() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BitRateValue
}

// WaitDrained blocks until the background drain started by Start finishes
// and returns the received bytes.
func (m *Packetizer) WaitDrained() []byte {
	m.mu.Lock()
	done := m.drained
	m.mu.Unlock()
	if done != nil {
		<-done
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.Received...)
}

var (
	_ ports.Packetizer      = (*Packetizer)(nil)
	_ ports.ParameterSetter = (*Packetizer)(nil)
	_ ports.BitRater        = (*Packetizer)(nil)
)

// StreamController is a mock implementation of ports.StreamController.
type StreamController struct {
	mu        sync.Mutex
	streaming bool

	StartStreamFunc func(ctx context.Context) error
	StopStreamFunc  func() error

	// Recorded calls for verification
	StartCalls int
	StopCalls  int
}

func (m *StreamController) StartStream(ctx context.Context) error {
	m.mu.Lock()
	m.StartCalls++
	m.mu.Unlock()
	if m.StartStreamFunc != nil {
		if err := m.StartStreamFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.streaming = true
	m.mu.Unlock()
	return nil
}

func (m *StreamController) StopStream() error {
	m.mu.Lock()
	m.StopCalls++
	m.streaming = false
	m.mu.Unlock()
	if m.StopStreamFunc != nil {
		return m.StopStreamFunc()
	}
	return nil
}

func (m *StreamController) IsStreaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

var _ ports.StreamController = (*StreamController)(nil)
