package worker

import (
	"bufio"
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/logfields"
)

// Executor runs one build in isolation.
type Executor interface {
	Execute(ctx context.Context, req build.Request, onInfo func(string)) (*build.Output, error)
}

// waitDelay bounds how long Wait blocks on inherited pipes after the worker
// has been killed.
const waitDelay = 5 * time.Second

// ProcessExecutor runs each build in a fresh child process speaking the
// worker protocol on stdin/stdout. Cancelling ctx kills the child and every
// process it started.
type ProcessExecutor struct {
	command []string
	env     []string
	logger  *slog.Logger
}

// NewProcessExecutor returns an executor that starts command for each build.
// An empty command re-executes the running binary as "packd worker".
func NewProcessExecutor(command []string, logger *slog.Logger) (*ProcessExecutor, error) {
	if len(command) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryRuntime, "cannot locate packd executable").Build()
		}
		command = []string{self, "worker"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessExecutor{command: command, env: os.Environ(), logger: logger}, nil
}

// Command returns the argv used to start workers.
func (e *ProcessExecutor) Command() []string { return e.command }

func (e *ProcessExecutor) Execute(ctx context.Context, req build.Request, onInfo func(string)) (*build.Output, error) {
	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Env = e.env
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to open worker stdin").Build()
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to open worker stdout").Build()
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to open worker stderr").Build()
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to start worker").
			WithContext("command", e.command[0]).
			Build()
	}
	log := e.logger.With(logfields.Worker(cmd.Process.Pid), logfields.Bundle(req.Name))
	log.Debug("Worker started")

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		forwardStderr(stderr, log)
	}()

	out, runErr := Drive(stdout, stdin, req, onInfo)
	_ = stdin.Close()
	if runErr != nil {
		// Stop a worker that broke protocol; a finished one exits by itself.
		_ = killProcessGroup(cmd)
	}
	// Drain stdout so a misbehaving worker cannot block on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)
	<-stderrDone
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if runErr != nil {
		if waitErr != nil && stdErrors.Is(runErr, ErrNoTerminalMessage) {
			return nil, ErrNoTerminalMessage.WithCause(waitErr)
		}
		return nil, runErr
	}
	if waitErr != nil {
		log.Warn("Worker exited with error after result", logfields.Error(waitErr))
	}
	return out, nil
}

func forwardStderr(r io.Reader, log *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		log.Debug("worker: " + sc.Text())
	}
}
