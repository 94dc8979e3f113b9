package daemon

import (
	"os"

	"git.home.luguber.info/inful/packd/internal/config"
)

// WorkerCommand returns the argv used to start build workers. Unless the
// configuration overrides it, the running binary is re-executed with the
// hidden worker command and the build settings passed as flags, so workers
// never read the configuration file themselves.
func WorkerCommand(cfg *config.Config) []string {
	if len(cfg.Build.WorkerCommand) > 0 {
		return cfg.Build.WorkerCommand
	}
	self, err := os.Executable()
	if err != nil {
		// Let the executor report the failure.
		return nil
	}
	return append([]string{self}, WorkerArgs(cfg.Build)...)
}

// WorkerArgs returns the worker subcommand and its flags for b.
func WorkerArgs(b config.BuildConfig) []string {
	args := []string{"worker", "--tmp-dir=" + b.TmpDir, "--install-command=" + b.InstallCommand}
	for _, kv := range b.InstallEnv {
		args = append(args, "--install-env="+kv)
	}
	return args
}
