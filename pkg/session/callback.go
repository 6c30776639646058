package session

import (
	"errors"
	"net"

	"github.com/user/telecast/pkg/media"
)

// ErrorReason classifies a session failure for callbacks.
type ErrorReason int

const (
	ReasonOther ErrorReason = iota
	ReasonConfigurationNotSupported
	ReasonStorageNotReady
	ReasonUnknownHost
)

func (r ErrorReason) String() string {
	switch r {
	case ReasonConfigurationNotSupported:
		return "configuration_not_supported"
	case ReasonStorageNotReady:
		return "storage_not_ready"
	case ReasonUnknownHost:
		return "unknown_host"
	default:
		return "other"
	}
}

// ReasonOf maps an error to its reason.
func ReasonOf(err error) ErrorReason {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, media.ErrConfigurationUnsupported):
		return ReasonConfigurationNotSupported
	case errors.Is(err, media.ErrStorageUnavailable):
		return ReasonStorageNotReady
	case errors.As(err, &dnsErr):
		return ReasonUnknownHost
	default:
		return ReasonOther
	}
}

// Callback receives session events. Methods are called synchronously from
// the goroutine driving the session, except OnBitrateUpdate which is called
// from the session's bitrate ticker.
type Callback interface {
	OnBitrateUpdate(bitrate int64)
	OnSessionError(reason ErrorReason, kind media.TrackKind, err error)
	OnPreviewStarted()
	OnSessionConfigured()
	OnSessionStarted()
	OnSessionStopped()
}

// NopCallback ignores every event. Embed it to implement a subset.
type NopCallback struct{}

func (NopCallback) OnBitrateUpdate(int64)                              {}
func (NopCallback) OnSessionError(ErrorReason, media.TrackKind, error) {}
func (NopCallback) OnPreviewStarted()                                  {}
func (NopCallback) OnSessionConfigured()                               {}
func (NopCallback) OnSessionStarted()                                  {}
func (NopCallback) OnSessionStopped()                                  {}
