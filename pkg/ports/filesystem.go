package ports

// FileSystem abstracts file system operations.
type FileSystem interface {
	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating parent directories.
	WriteFile(path string, data []byte) error

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error

	// Exists checks if a file or directory exists.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory.
	Remove(path string) error

	// CheckWritable creates dir if needed and verifies files can be created in it.
	CheckWritable(dir string) error

	// CreateTemp creates an empty file in dir and returns its path.
	CreateTemp(dir, pattern string) (string, error)
}
