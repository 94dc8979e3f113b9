package bundler

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/shell"

	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

// Installer installs resolved packages into dir as production dependencies.
type Installer interface {
	Install(ctx context.Context, dir string, pkgs []build.Package, info func(string)) error
}

// CommandInstaller runs a package manager command line. The command is
// parsed with shell quoting rules and the "name@version" arguments are
// appended. Env entries are KEY=VALUE with shell-style expansion applied to
// the value.
type CommandInstaller struct {
	Command string
	Env     []string
}

// Install runs the install command in dir. Output lines are forwarded to
// info; a non-zero exit becomes a build error carrying the output.
func (c CommandInstaller) Install(ctx context.Context, dir string, pkgs []build.Package, info func(string)) error {
	argv, err := shell.Fields(c.Command, os.Getenv)
	if err != nil || len(argv) == 0 {
		return errors.BuildError("invalid install command").
			WithCause(err).
			WithContext("command", c.Command).
			Build()
	}
	for _, p := range pkgs {
		argv = append(argv, p.InstallArg())
	}

	env, err := ExpandEnv(c.Env)
	if err != nil {
		return errors.BuildError("invalid install environment").WithCause(err).Build()
	}

	info("running " + strings.Join(argv, " "))

	// #nosec G204 - the command comes from operator configuration and the
	// appended arguments are registry-canonical name@version pairs.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	forwardLines(out.Bytes(), info)
	if runErr != nil {
		return errors.BuildError("install failed").
			WithCause(runErr).
			WithContext("command", strings.Join(argv, " ")).
			WithContext("output", tail(out.String(), 4096)).
			Build()
	}
	return nil
}

// ExpandEnv expands $VAR, ${VAR} and a leading ~ in the value of each
// KEY=VALUE entry.
func ExpandEnv(entries []string) ([]string, error) {
	out := make([]string, 0, len(entries))
	for _, kv := range entries {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.ConfigError("install env entry must be KEY=VALUE").
				WithContext("entry", kv).
				Build()
		}
		if value == "~" || strings.HasPrefix(value, "~/") {
			value = "$HOME" + value[1:]
		}
		expanded, err := shell.Expand(value, os.Getenv)
		if err != nil {
			return nil, err
		}
		out = append(out, key+"="+expanded)
	}
	return out, nil
}

func forwardLines(b []byte, info func(string)) {
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), " \r"); line != "" {
			info(line)
		}
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
