// Package build defines resolved build requests and their content hash.
package build

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"git.home.luguber.info/inful/packd/internal/pkgspec"
	"git.home.luguber.info/inful/packd/internal/registry"
)

// Package is a token resolved against the registry.
type Package struct {
	Name     string `json:"name"` // canonical qualified name reported by the registry
	Version  string `json:"version"`
	DeepPath string `json:"deep,omitempty"`

	Token    pkgspec.Token      `json:"-"`
	Metadata *registry.Metadata `json:"-"`
}

// Fragment returns the canonical "name@version[/deep]" form.
func (p Package) Fragment() string {
	f := p.Name + "@" + p.Version
	if p.DeepPath != "" {
		f += "/" + p.DeepPath
	}
	return f
}

// ImportPath returns "name[/deep]", the specifier the entry module imports.
func (p Package) ImportPath() string {
	if p.DeepPath == "" {
		return p.Name
	}
	return p.Name + "/" + p.DeepPath
}

// InstallArg returns the "name@version" argument for the package manager.
func (p Package) InstallArg() string {
	return p.Name + "@" + p.Version
}

// Request is an ordered set of resolved packages. Order is significant:
// it is part of the hash and of the generated entry module.
type Request struct {
	Packages []Package `json:"packages"`
	Name     string    `json:"name"`
	Hash     string    `json:"hash"`
}

// NewRequest builds a Request, deriving its display name and hash.
func NewRequest(pkgs []Package) Request {
	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = p.ImportPath()
	}
	r := Request{
		Packages: pkgs,
		Name:     strings.Join(names, ","),
	}
	r.Hash = Hash(r.Fragments())
	return r
}

// Fragments returns the canonical fragments in request order.
func (r Request) Fragments() []string {
	out := make([]string, len(r.Packages))
	for i, p := range r.Packages {
		out[i] = p.Fragment()
	}
	return out
}

// CanonicalPath returns "/" followed by the fragments joined by ",".
func (r Request) CanonicalPath() string {
	return "/" + strings.Join(r.Fragments(), ",")
}

// Hash returns the hex BLAKE2b-256 digest of the fragments joined by "#".
func Hash(fragments []string) string {
	sum := blake2b.Sum256([]byte(strings.Join(fragments, "#")))
	return hex.EncodeToString(sum[:])
}

// Output is the uncompressed result of a build.
type Output struct {
	Code     []byte           `json:"code"`
	Minified bool             `json:"minified"`
	Stages   map[string]int64 `json:"stages_ms,omitempty"` // stage name -> duration in milliseconds
}
