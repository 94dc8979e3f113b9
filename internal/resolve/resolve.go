// Package resolve turns parsed package tokens into a canonical build request.
package resolve

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/logfields"
	"git.home.luguber.info/inful/packd/internal/pkgspec"
	"git.home.luguber.info/inful/packd/internal/registry"
)

var (
	// ErrUnknownPackage is returned when the registry has no version listing
	// for a requested package.
	ErrUnknownPackage = errors.ValidationError("invalid module").Build()
	// ErrUnresolvableVersion is returned when no listed version satisfies the
	// requested spec.
	ErrUnresolvableVersion = errors.ValidationError("invalid tag").Build()
)

// Fetcher retrieves registry metadata for a qualified package name.
type Fetcher interface {
	Fetch(ctx context.Context, qualified string) (*registry.Metadata, error)
}

// Resolution is the outcome of resolving a request. When Redirect is set the
// request was not spelled canonically and callers should send the client to
// Location instead of building.
type Resolution struct {
	Request  build.Request
	Redirect bool
}

// Location is the canonical path for the resolved request.
func (r Resolution) Location() string {
	return r.Request.CanonicalPath()
}

// Resolver resolves tokens against a registry.
type Resolver struct {
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithConcurrency bounds parallel metadata fetches within one request.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver.
func New(fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{fetcher: fetcher, concurrency: 4, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveRequest parses raw and resolves it. Malformed requests fail before
// the registry is contacted.
func (r *Resolver) ResolveRequest(ctx context.Context, raw string) (Resolution, error) {
	tokens, err := pkgspec.Parse(raw)
	if err != nil {
		return Resolution{}, err
	}
	return r.Resolve(ctx, tokens)
}

// Resolve resolves every token, preserving request order. Metadata for
// distinct package names is fetched in parallel; when several tokens fail
// the error of the first one in request order is returned.
func (r *Resolver) Resolve(ctx context.Context, tokens []pkgspec.Token) (Resolution, error) {
	fetched := r.fetchAll(ctx, tokens)

	pkgs := make([]build.Package, len(tokens))
	redirect := false
	for i, tok := range tokens {
		f := fetched[tok.QualifiedName()]
		if f.err != nil {
			if errors.HasCategory(f.err, errors.CategoryNotFound) {
				return Resolution{}, ErrUnknownPackage.WithCause(f.err).WithContext("package", tok.QualifiedName())
			}
			return Resolution{}, f.err
		}
		pkg, changed, err := resolveToken(tok, f.meta)
		if err != nil {
			return Resolution{}, err
		}
		if changed {
			redirect = true
		}
		pkgs[i] = pkg
	}

	res := Resolution{Request: build.NewRequest(pkgs), Redirect: redirect}
	if redirect {
		r.logger.Debug("Request is not canonical",
			logfields.Bundle(res.Request.Name),
			logfields.Path(res.Location()))
	}
	return res, nil
}

type fetchResult struct {
	meta *registry.Metadata
	err  error
}

// fetchAll fetches metadata once per distinct qualified name.
func (r *Resolver) fetchAll(ctx context.Context, tokens []pkgspec.Token) map[string]*fetchResult {
	byName := make(map[string]*fetchResult, len(tokens))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, tok := range tokens {
		name := tok.QualifiedName()
		if _, ok := byName[name]; ok {
			continue
		}
		res := &fetchResult{}
		byName[name] = res
		g.Go(func() error {
			res.meta, res.err = r.fetcher.Fetch(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
	return byName
}

// resolveToken picks the version for tok and reports whether the canonical
// fragment differs from what was requested.
func resolveToken(tok pkgspec.Token, meta *registry.Metadata) (build.Package, bool, error) {
	qualified := tok.QualifiedName()
	if !meta.HasVersions() {
		return build.Package{}, false, ErrUnknownPackage.WithContext("package", qualified)
	}
	version, ok := registry.FindVersion(meta, tok.Spec)
	if !ok {
		return build.Package{}, false, ErrUnresolvableVersion.
			WithContext("package", qualified).
			WithContext("spec", tok.VersionSpec())
	}

	name := meta.Name
	if name == "" {
		name = qualified
	}
	pkg := build.Package{
		Name:     name,
		Version:  version,
		DeepPath: tok.DeepPath,
		Token:    tok,
		Metadata: meta,
	}
	changed := version != tok.Spec || name != qualified
	return pkg, changed, nil
}
