package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"git.home.luguber.info/inful/packd/internal/config"
	"git.home.luguber.info/inful/packd/internal/registry"
	"git.home.luguber.info/inful/packd/internal/resolve"
	"git.home.luguber.info/inful/packd/internal/retry"
)

// ResolveCmd implements the 'resolve' command.
type ResolveCmd struct {
	Request  string `arg:"" help:"Bundle request, e.g. 'react@^18,react-dom'"`
	Registry string `help:"Registry URL (overrides config)"`
}

func (r *ResolveCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.LoadOrDefault(root.Config)
	if err != nil {
		return err
	}
	if r.Registry != "" {
		cfg.Registry.URL = r.Registry
	}
	return r.resolve(context.Background(), cfg, os.Stdout)
}

func (r *ResolveCmd) resolve(ctx context.Context, cfg *config.Config, out io.Writer) error {
	rc := cfg.Registry
	client := registry.NewClient(rc.URL,
		registry.WithHTTPClient(&http.Client{Timeout: rc.TimeoutDuration()}),
		registry.WithRetryPolicy(retry.FromConfig(rc.Retry)))
	resolver := resolve.New(client, resolve.WithConcurrency(rc.Concurrency))

	res, err := resolver.ResolveRequest(ctx, r.Request)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "canonical: %s\n", res.Request.CanonicalPath())
	_, _ = fmt.Fprintf(out, "redirect:  %t\n", res.Redirect)
	_, _ = fmt.Fprintf(out, "hash:      %s\n", res.Request.Hash)
	return nil
}
