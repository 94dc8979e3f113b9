package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FSStore is a filesystem-based implementation of ObjectStore.
// It stores objects in a two-level layout:
//
//	<base>/
//	  objects/
//	    ab/
//	      cd1234...            (first 2 chars = subdir, rest = filename)
//	      cd1234....meta.json
type FSStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFSStore creates a new filesystem-based object store.
func NewFSStore(basePath string) (*FSStore, error) {
	dir := filepath.Join(basePath, "objects")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	return &FSStore{basePath: basePath}, nil
}

// Put stores an object and returns its key.
func (fs *FSStore) Put(_ context.Context, obj *Object) (string, error) {
	hash := obj.Hash
	if hash == "" {
		hash = ContentHash(obj.Data)
	}
	if !validKey(hash) {
		return "", fmt.Errorf("invalid object key %q", hash)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	objectPath := fs.objectPath(hash)
	if _, err := os.Stat(objectPath); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	now := time.Now()
	metadata := Metadata{
		CreatedAt:    now,
		LastAccessed: now,
		Custom:       make(map[string]string, len(obj.Metadata.Custom)+1),
	}
	maps.Copy(metadata.Custom, obj.Metadata.Custom)
	metadata.Custom["object_type"] = string(obj.Type)

	// Metadata first: an object file without a sidecar is still readable,
	// the reverse would be listed but unreadable.
	if err := fs.writeMetadata(hash, metadata); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	if err := writeFileAtomic(objectPath, obj.Data); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return hash, nil
}

// Get retrieves an object by key and records the access.
func (fs *FSStore) Get(_ context.Context, hash string) (*Object, error) {
	if !validKey(hash) {
		return nil, ErrNotFound{Hash: hash}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	// #nosec G304 - objectPath is internal, constructed from a validated key
	data, err := os.ReadFile(fs.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Hash: hash}
		}
		return nil, fmt.Errorf("read object: %w", err)
	}

	metadata, err := fs.readMetadata(hash)
	if err != nil {
		metadata = Metadata{CreatedAt: time.Now(), Custom: make(map[string]string)}
	}
	metadata.LastAccessed = time.Now()
	if err := fs.writeMetadata(hash, metadata); err != nil {
		slog.Warn("Failed to update object metadata", slog.String("hash", hash), slog.String("error", err.Error()))
	}

	return &Object{
		Hash:     hash,
		Type:     ObjectType(metadata.Custom["object_type"]),
		Size:     int64(len(data)),
		Data:     data,
		Metadata: metadata,
	}, nil
}

// Prune removes objects whose last access is before olderThan.
func (fs *FSStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	all, err := fs.listUnlocked()
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}

	removed := 0
	for _, hash := range all {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		metadata, err := fs.readMetadata(hash)
		if err == nil && !metadata.LastAccessed.Before(olderThan) {
			continue
		}
		if err != nil {
			// No sidecar: fall back to the object's mtime.
			info, statErr := os.Stat(fs.objectPath(hash))
			if statErr != nil || !info.ModTime().Before(olderThan) {
				continue
			}
		}
		if err := fs.deleteUnlocked(hash); err != nil && !IsNotFound(err) {
			return removed, fmt.Errorf("delete object %s: %w", hash, err)
		}
		removed++
	}
	return removed, nil
}

// Close releases resources.
func (fs *FSStore) Close() error {
	return nil
}

func (fs *FSStore) listUnlocked() ([]string, error) {
	var hashes []string
	objectsDir := filepath.Join(fs.basePath, "objects")

	err := filepath.WalkDir(objectsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".meta.json") || strings.HasSuffix(path, ".tmp") {
			return nil
		}

		relPath, err := filepath.Rel(objectsDir, path)
		if err != nil {
			return nil
		}
		hash := strings.ReplaceAll(relPath, string(filepath.Separator), "")
		if !validKey(hash) {
			return nil
		}

		hashes = append(hashes, hash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk objects: %w", err)
	}
	return hashes, nil
}

func (fs *FSStore) deleteUnlocked(hash string) error {
	objectPath := fs.objectPath(hash)
	if err := os.Remove(objectPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound{Hash: hash}
		}
		return fmt.Errorf("delete object: %w", err)
	}

	_ = os.Remove(fs.metadataPath(hash))
	_ = os.Remove(filepath.Dir(objectPath)) // only succeeds when empty
	return nil
}

// objectPath returns the filesystem path for an object.
func (fs *FSStore) objectPath(hash string) string {
	return filepath.Join(fs.basePath, "objects", hash[:2], hash[2:])
}

// metadataPath returns the filesystem path for object metadata.
func (fs *FSStore) metadataPath(hash string) string {
	return fs.objectPath(hash) + ".meta.json"
}

func (fs *FSStore) readMetadata(hash string) (Metadata, error) {
	// #nosec G304 - metadataPath is internal, constructed from a validated key
	data, err := os.ReadFile(fs.metadataPath(hash))
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if metadata.Custom == nil {
		metadata.Custom = make(map[string]string)
	}
	return metadata, nil
}

func (fs *FSStore) writeMetadata(hash string, metadata Metadata) error {
	metadataPath := fs.metadataPath(hash)
	if err := os.MkdirAll(filepath.Dir(metadataPath), 0o750); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return writeFileAtomic(metadataPath, data)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
