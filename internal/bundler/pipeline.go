package bundler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/logfields"
	"git.home.luguber.info/inful/packd/internal/workspace"
)

// Stage names reported in build.Output.Stages.
const (
	StageManifest = "manifest"
	StageInstall  = "install"
	StageBundle   = "bundle"
	StageMinify   = "minify"
)

// Pipeline runs the full build inside a scratch workspace.
type Pipeline struct {
	workspaces *workspace.Manager
	installer  Installer
	bundler    Bundler
	minifier   Minifier
	logger     *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

func WithBundler(b Bundler) Option   { return func(p *Pipeline) { p.bundler = b } }
func WithMinifier(m Minifier) Option { return func(p *Pipeline) { p.minifier = m } }
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline that installs with installer and bundles
// and minifies with esbuild unless overridden.
func NewPipeline(workspaces *workspace.Manager, installer Installer, opts ...Option) *Pipeline {
	p := &Pipeline{
		workspaces: workspaces,
		installer:  installer,
		bundler:    ESBuild{},
		minifier:   ESBuild{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Build produces the bundle for req. info receives progress lines prefixed
// with the bundle name. The scratch workspace is always removed.
func (p *Pipeline) Build(ctx context.Context, req build.Request, info func(string)) (*build.Output, error) {
	say := func(msg string) { info(fmt.Sprintf("[%s] %s", req.Name, msg)) }
	out := &build.Output{Stages: make(map[string]int64, 4)}
	timed := func(stage string, fn func() error) error {
		start := time.Now()
		err := fn()
		out.Stages[stage] = time.Since(start).Milliseconds()
		return err
	}

	ws, err := p.workspaces.Create(req.Hash)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create workspace").Build()
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			p.logger.Warn("Workspace cleanup failed", logfields.BuildHash(req.Hash), logfields.Error(err))
		}
	}()

	dir, err := ws.CreateSubdir("package")
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create workspace").Build()
	}

	if err := timed(StageManifest, func() error { return WriteManifest(dir, req.Packages) }); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to write manifest").Build()
	}

	if err := timed(StageInstall, func() error { return p.installer.Install(ctx, dir, req.Packages, say) }); err != nil {
		return nil, err
	}

	var code []byte
	if err := timed(StageBundle, func() error {
		var err error
		code, err = p.bundler.Bundle(ctx, dir, EntryFile)
		return err
	}); err != nil {
		if errors.IsClassified(err) {
			return nil, err
		}
		return nil, errors.WrapError(err, errors.CategoryBuild, "bundle failed").Build()
	}
	say("bundled")

	say("minifying")
	_ = timed(StageMinify, func() error {
		minified, err := p.minifier.Minify(code)
		if err != nil {
			say("minification failed: " + describe(err))
			out.Code = code
			return err
		}
		out.Code = minified
		out.Minified = true
		return nil
	})
	return out, nil
}

// describe returns the most useful single-line description of err.
func describe(err error) string {
	if c, ok := errors.AsClassified(err); ok {
		if d, ok := c.Context().GetString("diagnostics"); ok && d != "" {
			return d
		}
		return c.Message()
	}
	return err.Error()
}
