// Package artifact turns built code into the compressed, integrity-tagged
// payload served to clients.
package artifact

import (
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

// Artifact is an immutable compressed bundle.
type Artifact struct {
	Name      string    `json:"name"`
	Hash      string    `json:"hash"`
	Body      []byte    `json:"-"` // gzip
	Integrity string    `json:"integrity"`
	RawSize   int       `json:"raw_size"`
	Degraded  bool      `json:"degraded,omitempty"` // served unminified
	CreatedAt time.Time `json:"created_at"`
}

// New compresses code and computes its integrity tag.
func New(name, hash string, code []byte) (*Artifact, error) {
	body, err := Compress(code)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Name:      name,
		Hash:      hash,
		Body:      body,
		Integrity: Integrity(body),
		RawSize:   len(code),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Size returns the compressed size.
func (a *Artifact) Size() int { return len(a.Body) }

// ETag returns the strong entity tag for the artifact.
func (a *Artifact) ETag() string { return `"` + a.Integrity + `"` }

// Compress gzips code at best compression. The header carries no name or
// timestamp so equal input yields equal output.
func Compress(code []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "compression failed").Build()
	}
	zw.ModTime = time.Time{}
	if _, err := zw.Write(code); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "compression failed").Build()
	}
	if err := zw.Close(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "compression failed").Build()
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}

// Integrity returns the Subresource Integrity tag ("sha384-<base64>") of b.
func Integrity(b []byte) string {
	sum := sha512.Sum384(b)
	return "sha384-" + base64.StdEncoding.EncodeToString(sum[:])
}
