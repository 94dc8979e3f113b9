package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/packd/internal/bundler"
	"git.home.luguber.info/inful/packd/internal/worker"
	"git.home.luguber.info/inful/packd/internal/workspace"
)

// WorkerCmd implements the hidden 'worker' command. It reads one build
// request from stdin, reports progress and the result on stdout and exits.
type WorkerCmd struct {
	TmpDir         string   `name:"tmp-dir" help:"Directory for scratch workspaces" required:""`
	InstallCommand string   `name:"install-command" help:"Package manager command line" required:""`
	InstallEnv     []string `name:"install-env" help:"KEY=VALUE environment for the install command" sep:"none"`
}

func (w *WorkerCmd) Run(_ *Global, _ *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return w.serve(ctx, os.Stdin, os.Stdout)
}

func (w *WorkerCmd) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	pipeline := bundler.NewPipeline(
		workspace.NewManager(w.TmpDir),
		bundler.CommandInstaller{Command: w.InstallCommand, Env: w.InstallEnv},
	)
	return worker.Serve(ctx, in, out, pipeline)
}
