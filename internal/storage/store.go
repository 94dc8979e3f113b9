// Package storage provides the persistent object store behind the artifact cache.
package storage

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ObjectStore persists objects by key. Keys are lowercase hex strings,
// normally build hashes; objects stored without a key are addressed by the
// BLAKE2b-256 digest of their content.
type ObjectStore interface {
	// Put stores an object and returns its key.
	// If the object already exists, it returns the existing key without writing.
	Put(ctx context.Context, obj *Object) (hash string, err error)

	// Get retrieves an object by key.
	// Returns ErrNotFound if the object doesn't exist.
	Get(ctx context.Context, hash string) (*Object, error)

	// Prune removes objects not accessed since olderThan and returns how
	// many were removed.
	Prune(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Object represents a stored artifact with its metadata.
type Object struct {
	Hash     string
	Type     ObjectType
	Size     int64
	Data     []byte
	Metadata Metadata
}

// Metadata stores object metadata.
type Metadata struct {
	CreatedAt    time.Time
	LastAccessed time.Time
	Custom       map[string]string
}

// ObjectType identifies the kind of stored object.
type ObjectType string

const (
	// ObjectTypeBundle is a compressed bundle keyed by its build hash.
	ObjectTypeBundle ObjectType = "bundle"
)

// ErrNotFound is returned when an object doesn't exist.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Hash
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}

// ContentHash returns the key used for objects stored without one.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// validKey reports whether hash is safe to use as a path component.
func validKey(hash string) bool {
	if len(hash) < 3 {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
