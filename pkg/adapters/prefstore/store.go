// Package prefstore is a durable key-value store kept in a YAML file. It
// backs the capability cache across runs.
package prefstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/ports"
	"gopkg.in/yaml.v3"
)

const fileVersion = 1

type document struct {
	Version int               `yaml:"version"`
	Values  map[string]string `yaml:"values"`
}

// Store keeps every value in memory and rewrites the file on each Put.
type Store struct {
	fs     ports.FileSystem
	path   string
	logger ports.Logger

	mu     sync.Mutex
	values map[string]string
}

// Open loads the store at path. A missing file gives an empty store. An
// unreadable or corrupt file is logged and replaced on the next Put.
func Open(fs ports.FileSystem, path string, logger ports.Logger) (*Store, error) {
	s := &Store{
		fs:     fs,
		path:   path,
		logger: logger.WithComponent("prefstore"),
		values: make(map[string]string),
	}

	exists, err := fs.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", path, err)
	}
	if !exists {
		return s, nil
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		s.logger.Warn(l10n.F("Ignoring unreadable preferences %s: %s", path, err))
		return s, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.logger.Warn(l10n.F("Ignoring corrupt preferences %s: %s", path, err))
		return s, nil
	}
	for k, v := range doc.Values {
		s.values[k] = v
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Put stores value and persists the store.
func (s *Store) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.saveLocked()
}

// Delete removes key and persists the store.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.saveLocked()
}

// Keys returns the stored keys in order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(document{Version: fileVersion, Values: s.values})
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	if err := s.fs.WriteFile(s.path, data); err != nil {
		return fmt.Errorf("write preferences %s: %w", s.path, err)
	}
	return nil
}

var _ ports.KeyValueStore = (*Store)(nil)
