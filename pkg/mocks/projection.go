package mocks

import (
	"sync"

	"github.com/user/telecast/pkg/ports"
)

// Projection is a mock implementation of ports.Projection.
type Projection struct {
	mu sync.Mutex

	CreateVirtualDisplayFunc func(name string, width, height, density int, surface ports.Surface) (ports.VirtualDisplay, error)
	StopFunc                 func() error

	// Recorded calls for verification
	Displays   []*VirtualDisplay
	StopCalled  bool
}

func (m *Projection) CreateVirtualDisplay(name string, width, height, density int, surface ports.Surface) (ports.VirtualDisplay, error) {
	if m.CreateVirtualDisplayFunc != nil {
		return m.CreateVirtualDisplayFunc(name, width, height, density, surface)
	}
	d := &VirtualDisplay{Name: name, Width: width, Height: height, Density: density, Surface: surface}
	m.mu.Lock()
	m.Displays = append(m.Displays, d)
	m.mu.Unlock()
	return d, nil
}

func (m *Projection) Stop() error {
	m.mu.Lock()
	m.StopCalled = true
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

// Created returns the displays created so far.
func (m *Projection) Created() []*VirtualDisplay {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*VirtualDisplay(nil), m.Displays...)
}

var _ ports.Projection = (*Projection)(nil)

// VirtualDisplay records its creation parameters and release.
type VirtualDisplay struct {
	mu       sync.Mutex
	Name     string
	Width    int
	Height   int
	Density  int
	Surface  ports.Surface
	released bool
}

func (d *VirtualDisplay) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	return nil
}

// Released reports whether Release was called.
func (d *VirtualDisplay) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}
