// Package recording records the device display: it sizes the capture from
// the display metrics, builds a session for that size and hands it to a
// stream controller.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/geometry"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
	"github.com/user/telecast/pkg/session"
)

var (
	ErrAlreadyRunning = errors.New("recording: already running")
	ErrNotRunning     = errors.New("recording: not running")
	ErrStopped        = errors.New("recording: stopped while starting")
)

// Request describes the display to record.
type Request struct {
	DisplayWidth  int
	DisplayHeight int
	Density       int
	Landscape     bool

	// ProfileWidth and ProfileHeight cap the capture size. Use
	// geometry.Unknown when there is no profile.
	ProfileWidth  int
	ProfileHeight int

	// ScalePercent scales the display before the profile cap. Zero means 100.
	ScalePercent int
}

// Geometry resolves the recording geometry of the request.
func (r Request) Geometry() media.RecordingGeometry {
	scale := r.ScalePercent
	if scale <= 0 {
		scale = 100
	}
	return geometry.Resolve(r.DisplayWidth, r.DisplayHeight, r.Density, r.Landscape,
		r.ProfileWidth, r.ProfileHeight, scale)
}

// Listener observes the recording lifecycle.
type Listener interface {
	OnStart()
	OnStop()
	OnEnd()
}

type nopListener struct{}

func (nopListener) OnStart() {}
func (nopListener) OnStop()  {}
func (nopListener) OnEnd()   {}

// ControllerFactory wraps a freshly built session in a stream controller.
type ControllerFactory func(*session.Session) ports.StreamController

// Controller runs at most one recording at a time.
type Controller struct {
	mu            sync.Mutex
	builder       *session.Builder
	newController ControllerFactory
	listener      Listener
	logger        ports.Logger

	session  *session.Session
	stream   ports.StreamController
	cancel   context.CancelFunc
	geometry media.RecordingGeometry

	// pending is the stream whose StartStream is still running.
	pending       ports.StreamController
	pendingCancel context.CancelFunc
}

// New creates a controller. builder is cloned for every recording and is
// never modified.
func New(builder *session.Builder, newController ControllerFactory, logger ports.Logger) *Controller {
	return &Controller{
		builder:       builder,
		newController: newController,
		listener:      nopListener{},
		logger:        logger.WithComponent("recording"),
	}
}

// SetListener replaces the lifecycle listener. nil removes it.
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l == nil {
		l = nopListener{}
	}
	c.listener = l
}

// Start records the display described by req. The lock is not held while
// the stream starts, so Stop can cancel a recording that is still starting.
func (c *Controller) Start(ctx context.Context, req Request) error {
	c.mu.Lock()
	if c.stream != nil || c.pending != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	g := req.Geometry()
	if err := geometry.Validate(g); err != nil {
		c.mu.Unlock()
		return err
	}
	c.logger.Info(l10n.F("Recording at %dx%d (density %d)", g.Width, g.Height, g.Density))

	s, err := c.builder.Clone().WithRecordingGeometry(g).Build()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("build session: %w", err)
	}
	stream := c.newController(s)
	runCtx, cancel := context.WithCancel(ctx)
	c.pending, c.pendingCancel = stream, cancel
	c.mu.Unlock()

	startErr := stream.StartStream(runCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	stopped := c.pending != stream
	if !stopped {
		c.pending, c.pendingCancel = nil, nil
	}
	if startErr != nil {
		cancel()
		if stopped {
			return fmt.Errorf("%w: %v", ErrStopped, startErr)
		}
		c.logger.Error(l10n.F("Recording failed to start: %s", startErr))
		return fmt.Errorf("start stream: %w", startErr)
	}
	if stopped {
		// Stop ran before StartStream returned and found nothing to stop.
		if err := stream.StopStream(); err != nil {
			c.logger.Warn(l10n.F("Failed to stop recording: %s", err))
		}
		cancel()
		return ErrStopped
	}

	c.session, c.stream, c.cancel, c.geometry = s, stream, cancel, g
	c.listener.OnStart()
	return nil
}

// Stop ends the current recording, or cancels one that is still starting.
// It fails with ErrNotRunning when neither is the case.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.pending != nil {
		err := c.cancelPendingLocked()
		c.mu.Unlock()
		return err
	}
	defer c.mu.Unlock()
	return c.stopLocked()
}

// cancelPendingLocked cancels the starting stream and stops it without
// holding the lock, since StartStream needs the lock to return.
func (c *Controller) cancelPendingLocked() error {
	stream, cancel := c.pending, c.pendingCancel
	c.pending, c.pendingCancel = nil, nil
	listener := c.listener
	cancel()

	c.mu.Unlock()
	err := stream.StopStream()
	c.mu.Lock()

	c.logger.Info(l10n.T("Recording stopped"))
	listener.OnStop()
	if err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	return nil
}

func (c *Controller) stopLocked() error {
	if c.stream == nil {
		return ErrNotRunning
	}
	err := c.stream.StopStream()
	c.cancel()
	c.session, c.stream, c.cancel = nil, nil, nil
	c.logger.Info(l10n.T("Recording stopped"))
	c.listener.OnStop()
	if err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	return nil
}

// Destroy stops any active recording and notifies the listener that the
// controller is done.
func (c *Controller) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	switch {
	case c.pending != nil:
		err = c.cancelPendingLocked()
	case c.stream != nil:
		err = c.stopLocked()
	}
	if err != nil {
		c.logger.Warn(l10n.F("Failed to stop recording: %s", err))
	}
	c.listener.OnEnd()
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Session returns the active session, or nil.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Geometry returns the geometry of the active recording.
func (c *Controller) Geometry() (media.RecordingGeometry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.geometry, c.stream != nil
}
