package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/packd/internal/config"
	"git.home.luguber.info/inful/packd/internal/daemon"
	"git.home.luguber.info/inful/packd/internal/version"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Port      int `help:"Bundle port (overrides config)" env:"PORT"`
	AdminPort int `help:"Admin port (overrides config)" env:"ADMIN_PORT"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := s.loadConfig(root.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := g.Logger
	logger.Info("Starting packd",
		slog.String("version", version.Version),
		slog.String("config", root.Config),
		slog.Int("port", cfg.Server.Port),
		slog.Int("admin_port", cfg.Server.AdminPort))

	d, err := daemon.New(ctx, cfg, root.Config, daemon.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Run(ctx); err != nil {
		return err
	}
	logger.Info("packd stopped")
	return nil
}

// loadConfig reads the configuration, tolerating a missing file, and
// applies the port overrides.
func (s *ServeCmd) loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}
	if s.AdminPort != 0 {
		cfg.Server.AdminPort = s.AdminPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
