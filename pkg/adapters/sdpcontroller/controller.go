// Package sdpcontroller streams a session to receivers that learn about it
// from an SDP file, for example `ffplay -protocol_whitelist file,udp,rtp x.sdp`.
package sdpcontroller

import (
	"context"
	"fmt"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/ports"
)

// Session is the part of a session the controller drives.
type Session interface {
	Configure(ctx context.Context) error
	Start(ctx context.Context) error
	Stop()
	IsStreaming() bool
	SessionDescription() (string, error)
}

// Controller configures a session, publishes its description and starts it.
type Controller struct {
	session Session
	fs      ports.FileSystem
	path    string
	logger  ports.Logger

	// RemoveOnStop deletes the description file when the stream stops.
	RemoveOnStop bool

	mu      sync.Mutex
	written bool
}

// New creates a controller writing the description to path. An empty path
// skips the file.
func New(s Session, fs ports.FileSystem, path string, logger ports.Logger) *Controller {
	return &Controller{
		session: s,
		fs:      fs,
		path:    path,
		logger:  logger.WithComponent("sdp"),
	}
}

// StartStream writes the description before any packet is sent so a
// receiver opened on the file does not miss the first picture.
func (c *Controller) StartStream(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.Configure(ctx); err != nil {
		return err
	}
	desc, err := c.session.SessionDescription()
	if err != nil {
		return err
	}
	if c.path != "" {
		if err := c.fs.WriteFile(c.path, []byte(desc)); err != nil {
			return fmt.Errorf("write session description: %w", err)
		}
		c.written = true
		c.logger.Info(l10n.F("Session description written to %s", c.path))
	}
	return c.session.Start(ctx)
}

func (c *Controller) StopStream() error {
	c.session.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RemoveOnStop && c.written {
		c.written = false
		if err := c.fs.Remove(c.path); err != nil {
			return fmt.Errorf("remove session description: %w", err)
		}
	}
	return nil
}

func (c *Controller) IsStreaming() bool {
	return c.session.IsStreaming()
}

// Path returns the description file path.
func (c *Controller) Path() string { return c.path }

var _ ports.StreamController = (*Controller)(nil)
