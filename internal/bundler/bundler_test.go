package bundler

import (
	"context"
	stdErrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/packd/internal/build"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/worker"
	"git.home.luguber.info/inful/packd/internal/workspace"
)

func TestRenderEntry(t *testing.T) {
	entry, err := RenderEntry([]build.Package{
		{Name: "lodash-es", Version: "4.17.21", DeepPath: "debounce.js"},
		{Name: "@scope/pkg", Version: "1.0.0"},
		{Name: "it's", Version: "1.0.0"},
	})
	require.NoError(t, err)

	want := `import * as packd_export_0 from 'lodash-es/debounce.js';
import * as packd_export_1 from '@scope/pkg';
import * as packd_export_2 from 'it\'s';
export { packd_export_0, packd_export_1, packd_export_2 };
`
	assert.Equal(t, want, string(entry))
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteManifest(dir, []build.Package{{Name: "a", Version: "1.0.0"}}))

	manifest, err := os.ReadFile(filepath.Join(dir, "package.json"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), `"module": "index.js"`)

	entry, err := os.ReadFile(filepath.Join(dir, EntryFile))
	require.NoError(t, err)
	assert.Contains(t, string(entry), "from 'a'")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("HOME", "/home/packd")
	t.Setenv("PACKD_REGISTRY", "https://npm.example.com")

	got, err := ExpandEnv([]string{
		"npm_config_cache=~/.npm",
		"npm_config_registry=${PACKD_REGISTRY}",
		"PLAIN=value",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"npm_config_cache=/home/packd/.npm",
		"npm_config_registry=https://npm.example.com",
		"PLAIN=value",
	}, got)

	_, err = ExpandEnv([]string{"MISSING_EQUALS"})
	assert.Error(t, err)
}

func TestCommandInstaller(t *testing.T) {
	var lines []string
	info := func(s string) { lines = append(lines, s) }
	pkgs := []build.Package{{Name: "left-pad", Version: "1.3.0"}, {Name: "@s/x", Version: "2.0.0"}}

	err := CommandInstaller{Command: `echo "installed:"`}.Install(context.Background(), t.TempDir(), pkgs, info)
	require.NoError(t, err)
	assert.Contains(t, lines, "running echo installed: left-pad@1.3.0 @s/x@2.0.0")
	assert.Contains(t, lines, "installed: left-pad@1.3.0 @s/x@2.0.0")

	err = CommandInstaller{Command: "sh -c 'echo boom >&2; exit 3' --"}.Install(context.Background(), t.TempDir(), pkgs, info)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))
	c, _ := errors.AsClassified(err)
	out, _ := c.Context().GetString("output")
	assert.Contains(t, out, "boom")
}

func TestCommandInstaller_MisconfigurationIsServerError(t *testing.T) {
	pkgs := []build.Package{{Name: "left-pad", Version: "1.3.0"}}
	adapter := errors.NewHTTPErrorAdapter(nil)

	tests := []struct {
		name      string
		installer CommandInstaller
	}{
		{"empty command", CommandInstaller{Command: ""}},
		{"unterminated quote", CommandInstaller{Command: `npm install "--omit=dev`}},
		{"env without equals", CommandInstaller{Command: "true", Env: []string{"NPM_CONFIG_CACHE"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.installer.Install(context.Background(), t.TempDir(), pkgs, func(string) {})
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryBuild), "got %v", err)

			// The category survives the trip back from the worker process.
			relayed := worker.FailureFrom(err).Err()
			assert.Equal(t, 500, adapter.StatusCodeFor(relayed))
		})
	}
}

func writeModule(t *testing.T, dir, name, pkgJSON, index string) {
	t.Helper()
	modDir := filepath.Join(dir, "node_modules", name)
	require.NoError(t, os.MkdirAll(modDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "package.json"), []byte(pkgJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "index.js"), []byte(index), 0o600))
}

func TestESBuild_BundleESModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "esm-only", `{"name":"esm-only","module":"index.js"}`, "export const answer = 42;\n")
	require.NoError(t, WriteManifest(dir, []build.Package{{Name: "esm-only", Version: "1.0.0"}}))

	code, err := ESBuild{}.Bundle(context.Background(), dir, EntryFile)
	require.NoError(t, err)
	assert.Contains(t, string(code), "answer")
	assert.Contains(t, string(code), "packd_export_0")

	minified, err := ESBuild{}.Minify(code)
	require.NoError(t, err)
	assert.Less(t, len(minified), len(code))
}

func TestESBuild_MultipleChunks(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "lazy", `{"name":"lazy","module":"index.js"}`,
		"export const load = () => import('./heavy.js');\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "lazy", "heavy.js"),
		[]byte("export default 'heavy';\n"), 0o600))
	require.NoError(t, WriteManifest(dir, []build.Package{{Name: "lazy", Version: "1.0.0"}}))

	_, err := ESBuild{}.Bundle(context.Background(), dir, EntryFile)
	require.ErrorIs(t, err, ErrMultiChunkOutput)
}

func TestESBuild_RejectsCommonJSDependency(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "cjs-only", `{"name":"cjs-only","main":"lib.js"}`, "module.exports = { a: 2 };\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "cjs-only", "lib.js"),
		[]byte("exports.a = 1;\n"), 0o600))
	require.NoError(t, WriteManifest(dir, []build.Package{{Name: "cjs-only", Version: "1.0.0"}}))

	code, err := ESBuild{}.Bundle(context.Background(), dir, EntryFile)
	require.ErrorIs(t, err, ErrNonModuleDependency)
	assert.Nil(t, code)
	assert.True(t, errors.HasCategory(err, errors.CategoryBuild))

	c, _ := errors.AsClassified(err)
	files, _ := c.Context().GetString("files")
	assert.Contains(t, files, "node_modules/cjs-only/index.js")
}

func TestRejectCommonJS(t *testing.T) {
	tests := []struct {
		name    string
		meta    string
		wantErr bool
	}{
		{"esm dependency", `{"inputs":{"node_modules/a/index.js":{"format":"esm"}}}`, false},
		{"no module syntax", `{"inputs":{"node_modules/a/index.js":{}}}`, false},
		{"cjs outside node_modules", `{"inputs":{"index.js":{"format":"cjs"}}}`, false},
		{"cjs dependency", `{"inputs":{"node_modules/a/index.js":{"format":"cjs"}}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rejectCommonJS(tt.meta)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNonModuleDependency)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestESBuild_MinifyInvalid(t *testing.T) {
	_, err := ESBuild{}.Minify([]byte("export const = ;"))
	assert.Error(t, err)
}

type fakeInstaller struct {
	dir string
	err error
}

func (f *fakeInstaller) Install(_ context.Context, dir string, _ []build.Package, info func(string)) error {
	f.dir = dir
	info("added 1 package")
	return f.err
}

type fakeBundler struct {
	code []byte
	err  error
}

func (f fakeBundler) Bundle(context.Context, string, string) ([]byte, error) { return f.code, f.err }

type fakeMinifier struct{ err error }

func (f fakeMinifier) Minify(code []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(strings.ReplaceAll(string(code), " ", "")), nil
}

func testRequest() build.Request {
	return build.NewRequest([]build.Package{{Name: "left-pad", Version: "1.3.0"}})
}

func TestPipeline_Success(t *testing.T) {
	base := t.TempDir()
	inst := &fakeInstaller{}
	p := NewPipeline(workspace.NewManager(base), inst,
		WithBundler(fakeBundler{code: []byte("export { a };")}),
		WithMinifier(fakeMinifier{}))

	var lines []string
	out, err := p.Build(context.Background(), testRequest(), func(s string) { lines = append(lines, s) })
	require.NoError(t, err)
	assert.Equal(t, "export{a};", string(out.Code))
	assert.True(t, out.Minified)
	assert.Contains(t, out.Stages, StageInstall)
	assert.Contains(t, lines, "[left-pad] added 1 package")
	assert.Contains(t, lines, "[left-pad] minifying")

	assert.True(t, strings.HasPrefix(inst.dir, filepath.Join(base, "packd-")))
	_, statErr := os.Stat(inst.dir)
	assert.True(t, os.IsNotExist(statErr), "workspace must be removed")
}

func TestPipeline_MinifyFailureFallsBack(t *testing.T) {
	p := NewPipeline(workspace.NewManager(t.TempDir()), &fakeInstaller{},
		WithBundler(fakeBundler{code: []byte("export { a };")}),
		WithMinifier(fakeMinifier{err: stdErrors.New("unexpected token")}))

	var lines []string
	out, err := p.Build(context.Background(), testRequest(), func(s string) { lines = append(lines, s) })
	require.NoError(t, err)
	assert.Equal(t, "export { a };", string(out.Code))
	assert.False(t, out.Minified)
	assert.Contains(t, lines, "[left-pad] minification failed: unexpected token")
}

func TestPipeline_Failures(t *testing.T) {
	installErr := errors.BuildError("install failed").Build()
	tests := []struct {
		name      string
		installer *fakeInstaller
		bundler   fakeBundler
		want      error
	}{
		{"install", &fakeInstaller{err: installErr}, fakeBundler{}, installErr},
		{"multi chunk", &fakeInstaller{}, fakeBundler{err: ErrMultiChunkOutput}, ErrMultiChunkOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			p := NewPipeline(workspace.NewManager(base), tt.installer, WithBundler(tt.bundler), WithMinifier(fakeMinifier{}))
			_, err := p.Build(context.Background(), testRequest(), func(string) {})
			require.ErrorIs(t, err, tt.want)

			entries, _ := os.ReadDir(base)
			assert.Empty(t, entries, "workspace must be removed on failure")
		})
	}
}
