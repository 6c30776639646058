// Package capcache persists the codec configuration discovered for a quality
// signature so that later probes can skip the test recording.
package capcache

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/user/telecast/pkg/media"
	"github.com/user/telecast/pkg/ports"
)

// KeyPrefix namespaces cache entries inside a shared store.
const KeyPrefix = "telecast-"

var errMalformedRecord = errors.New("capcache: malformed record")

// Cache maps (strategy, signature) to a codec configuration. A Cache without
// a store never hits and silently drops writes.
type Cache struct {
	store  ports.KeyValueStore
	logger ports.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a cache over store. store may be nil.
func New(store ports.KeyValueStore, logger ports.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Key returns the store key for a strategy and signature,
// e.g. "telecast-h264-mr-30,1280,720".
func Key(strategy media.EncodingStrategy, sig media.QualitySignature) string {
	return fmt.Sprintf("%s%s-%d,%d,%d", KeyPrefix, strategy.Tag(), sig.FrameRate, sig.Width, sig.Height)
}

// Get returns the cached configuration. Missing and malformed records are misses.
func (c *Cache) Get(strategy media.EncodingStrategy, sig media.QualitySignature) (media.CodecConfiguration, bool) {
	if c == nil || c.store == nil {
		return media.CodecConfiguration{}, false
	}
	key := Key(strategy, sig)
	value, ok := c.store.Get(key)
	if !ok {
		return media.CodecConfiguration{}, false
	}
	cfg, err := Decode(value)
	if err != nil {
		c.logger.Warn(l10n.F("Ignoring cached configuration %s: %s", key, err))
		return media.CodecConfiguration{}, false
	}
	return cfg, true
}

// Put stores cfg for the signature. It is a no-op without a store.
func (c *Cache) Put(strategy media.EncodingStrategy, sig media.QualitySignature, cfg media.CodecConfiguration) error {
	if c == nil || c.store == nil {
		return nil
	}
	if err := c.store.Put(Key(strategy, sig), Encode(cfg)); err != nil {
		return fmt.Errorf("capcache: write %s: %w", Key(strategy, sig), err)
	}
	return nil
}

// Lock serialises read-then-write sequences for one signature and returns
// the matching unlock function.
func (c *Cache) Lock(strategy media.EncodingStrategy, sig media.QualitySignature) func() {
	if c == nil {
		return func() {}
	}
	key := Key(strategy, sig)

	c.mu.Lock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Encode renders cfg as "profile,sps,pps".
func Encode(cfg media.CodecConfiguration) string {
	return cfg.ProfileLevelID + "," + cfg.SPS + "," + cfg.PPS
}

// Decode parses a record written by Encode.
func Decode(value string) (media.CodecConfiguration, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return media.CodecConfiguration{}, fmt.Errorf("%w: %d fields", errMalformedRecord, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return media.CodecConfiguration{}, fmt.Errorf("%w: empty field", errMalformedRecord)
		}
	}
	return media.CodecConfiguration{ProfileLevelID: parts[0], SPS: parts[1], PPS: parts[2]}, nil
}
