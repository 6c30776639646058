package media

import "errors"

var (
	// ErrConfigurationUnsupported means no encoding strategy works for the
	// requested quality.
	ErrConfigurationUnsupported = errors.New("media: configuration not supported")

	// ErrStorageUnavailable means the scratch area for probe recordings is not writable.
	ErrStorageUnavailable = errors.New("media: storage unavailable")

	// ErrIllegalLifecycleState means an operation was called out of order.
	ErrIllegalLifecycleState = errors.New("media: illegal lifecycle state")

	// ErrContainerHeaderNotFound means the recorder output ended before the
	// payload box was found.
	ErrContainerHeaderNotFound = errors.New("media: container header not found")
)
