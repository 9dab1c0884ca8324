// Package digconfig defines a minimal read-only configuration view (spec
// §6). digstore's core never reads a config file itself: callers wire in
// a Store backed by whatever they like (TOML, INI, env vars, a map in
// tests) and the typed accessors below interpret its string values.
package digconfig

import (
	"encoding/hex"
	"fmt"

	"github.com/DIG-Network/digstore-sub002/pkg/chunker"
)

// Store is a read-only key/value configuration source.
type Store interface {
	Get(key string) (string, bool)
}

const (
	keyUserName         = "user.name"
	keyPublicKey        = "publisher.public_key"
	keyChunkingProfile  = "chunking.profile"
	keyEncryptedStorage = "storage.encrypted"
)

// UserName returns the configured commit author name, if set.
func UserName(s Store) (string, bool) {
	return s.Get(keyUserName)
}

// PublicKey returns the configured 32-byte publisher public key used for
// the zero-knowledge address transform (spec §4.10), hex-decoded.
func PublicKey(s Store) ([32]byte, bool, error) {
	var out [32]byte
	v, ok := s.Get(keyPublicKey)
	if !ok {
		return out, false, nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return out, true, fmt.Errorf("digconfig: invalid publisher.public_key: %w", err)
	}
	if len(b) != 32 {
		return out, true, fmt.Errorf("digconfig: publisher.public_key must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, true, nil
}

// ChunkingProfile returns the configured chunking profile, defaulting to
// chunker.DefaultProfile when unset or set to anything but "large".
func ChunkingProfile(s Store) chunker.Profile {
	v, ok := s.Get(keyChunkingProfile)
	if ok && v == "large" {
		return chunker.LargeProfile
	}
	return chunker.DefaultProfile
}

// EncryptedStorage reports whether storage.encrypted is set to "true" or
// "1", defaulting to false when unset. pkg/store does not read it: a store
// runs in zero-knowledge mode (spec §4.10) whenever PublicKey returns a
// key, whatever this value is.
func EncryptedStorage(s Store) bool {
	v, ok := s.Get(keyEncryptedStorage)
	return ok && (v == "true" || v == "1")
}

// MapStore is a Store backed by an in-memory map, for tests and simple
// programmatic configuration.
type MapStore map[string]string

// Get implements Store.
func (m MapStore) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}
