package ports

// VirtualDisplay mirrors the projected source onto a surface until released.
type VirtualDisplay interface {
	Release() error
}

// Projection is the captured video source.
type Projection interface {
	// CreateVirtualDisplay starts rendering into surface at the given size and density.
	CreateVirtualDisplay(name string, width, height, density int, surface Surface) (VirtualDisplay, error)

	// Stop ends the projection and releases every display created from it.
	Stop() error
}
