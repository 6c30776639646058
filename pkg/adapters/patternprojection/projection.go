// Package patternprojection is a synthetic screen projection. Each virtual
// display renders a moving test card and pushes it into its surface at a
// fixed frame rate.
package patternprojection

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/ports"
)

// ErrStopped is returned when a display is requested after Stop.
var ErrStopped = errors.New("patternprojection: projection stopped")

const defaultFrameRate = 15

// Options configures the projection.
type Options struct {
	FrameRate int
	// FontPath is an optional TrueType font for the card text.
	FontPath string
	Logger   ports.Logger
}

// Projection creates virtual displays backed by test cards.
type Projection struct {
	opts Options

	mu       sync.Mutex
	displays map[*display]struct{}
	stopped  bool
}

// New creates a projection.
func New(opts Options) *Projection {
	if opts.FrameRate <= 0 {
		opts.FrameRate = defaultFrameRate
	}
	return &Projection{opts: opts, displays: make(map[*display]struct{})}
}

func (p *Projection) CreateVirtualDisplay(name string, width, height, density int, surface ports.Surface) (ports.VirtualDisplay, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("patternprojection: invalid display size %dx%d", width, height)
	}
	if surface == nil {
		return nil, errors.New("patternprojection: nil surface")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil, ErrStopped
	}

	d := &display{
		owner:   p,
		name:    name,
		card:    newCard(width, height, density, name, p.opts.FontPath),
		surface: surface,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.displays[d] = struct{}{}
	go d.run(time.Second/time.Duration(p.opts.FrameRate), p.opts.Logger)
	return d, nil
}

// Stop releases every display. Later CreateVirtualDisplay calls fail.
func (p *Projection) Stop() error {
	p.mu.Lock()
	p.stopped = true
	displays := make([]*display, 0, len(p.displays))
	for d := range p.displays {
		displays = append(displays, d)
	}
	p.mu.Unlock()

	for _, d := range displays {
		d.Release()
	}
	return nil
}

// Active returns the number of displays not yet released.
func (p *Projection) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.displays)
}

func (p *Projection) forget(d *display) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.displays, d)
}

type display struct {
	owner   *Projection
	name    string
	card    *card
	surface ports.Surface
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (d *display) run(interval time.Duration, logger ports.Logger) {
	defer close(d.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sw, sh := d.surface.Size()
	for n := 0; ; n++ {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			frame := fit(d.card.render(n, now), sw, sh)
			if err := d.surface.WriteFrame(frame); err != nil {
				if logger != nil {
					logger.Debug(l10n.F("Display %s stopped rendering: %s", d.name, err))
				}
				return
			}
		}
	}
}

// Release stops rendering. It does not wait for a frame write in progress,
// which may be blocked until the encoder is stopped.
func (d *display) Release() error {
	d.once.Do(func() {
		close(d.stop)
		d.owner.forget(d)
	})
	return nil
}

var _ ports.Projection = (*Projection)(nil)
