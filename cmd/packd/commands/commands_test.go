package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/packd/internal/config"
	"git.home.luguber.info/inful/packd/internal/daemon"
	"git.home.luguber.info/inful/packd/internal/registry"
	"git.home.luguber.info/inful/packd/internal/resolve"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli)
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, ctx
}

func TestServeIsTheDefaultCommand(t *testing.T) {
	_, ctx := parse(t)
	assert.Equal(t, "serve", ctx.Command())
}

func TestWorkerFlagsRoundTrip(t *testing.T) {
	b := config.BuildConfig{
		TmpDir:         "/var/tmp/packd",
		InstallCommand: "npm install --no-save --omit=dev",
		InstallEnv:     []string{"NPM_CONFIG_CACHE=~/.npm", "LIST=a,b,c"},
	}
	cli, ctx := parse(t, daemon.WorkerArgs(b)...)

	assert.Equal(t, "worker", ctx.Command())
	assert.Equal(t, b.TmpDir, cli.Worker.TmpDir)
	assert.Equal(t, b.InstallCommand, cli.Worker.InstallCommand)
	assert.Equal(t, b.InstallEnv, cli.Worker.InstallEnv)
}

func TestWorkerIsHidden(t *testing.T) {
	cli := &CLI{}
	var out bytes.Buffer
	parser, err := kong.New(cli, kong.Writers(&out, &out), kong.Exit(func(int) {}))
	require.NoError(t, err)
	_, _ = parser.Parse([]string{"--help"})
	assert.Contains(t, out.String(), "serve")
	assert.NotContains(t, out.String(), "worker")
}

func TestServeLoadConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "packd.yaml")

	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := (&ServeCmd{}).loadConfig(missing)
		require.NoError(t, err)
		assert.Equal(t, config.Default().Server.Port, cfg.Server.Port)
	})

	t.Run("flags override ports", func(t *testing.T) {
		cfg, err := (&ServeCmd{Port: 9100, AdminPort: 9101}).loadConfig(missing)
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, 9101, cfg.Server.AdminPort)
	})

	t.Run("overrides are validated", func(t *testing.T) {
		_, err := (&ServeCmd{Port: 70000}).loadConfig(missing)
		require.Error(t, err)
	})
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packd.yaml")

	require.NoError(t, RunInit(path, false))
	_, err := config.Load(path)
	require.NoError(t, err)

	require.Error(t, RunInit(path, false), "existing file must not be overwritten")
	require.NoError(t, RunInit(path, true))
}

func TestResolvePrintsCanonicalRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/") != "lodash" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(registry.Metadata{
			Name:     "lodash",
			DistTags: map[string]string{"latest": "4.17.21"},
			Versions: map[string]registry.VersionManifest{"4.17.20": {}, "4.17.21": {}},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Registry.URL = srv.URL
	cfg.Registry.Retry.MaxRetries = -1

	var out bytes.Buffer
	require.NoError(t, (&ResolveCmd{Request: "lodash@^4.17.0"}).resolve(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "canonical: /lodash@4.17.21\n")
	assert.Contains(t, out.String(), "redirect:  true\n")

	out.Reset()
	err := (&ResolveCmd{Request: "no-such-package"}).resolve(context.Background(), cfg, &out)
	require.ErrorIs(t, err, resolve.ErrUnknownPackage)
	assert.Empty(t, out.String())
}

func TestMain(m *testing.M) {
	// Keep PORT from the environment from leaking into ServeCmd parsing.
	_ = os.Unsetenv("PORT")
	_ = os.Unsetenv("ADMIN_PORT")
	os.Exit(m.Run())
}
