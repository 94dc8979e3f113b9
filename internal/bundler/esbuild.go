package bundler

import (
	"context"
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/packd/internal/foundation/errors"
)

// ErrMultiChunkOutput is returned when bundling yields more than one chunk,
// e.g. because a dependency uses dynamic imports.
var ErrMultiChunkOutput = errors.BuildError("generated multiple chunks").Build()

// ErrNonModuleDependency is returned when a dependency resolves to a
// CommonJS file instead of an ES module.
var ErrNonModuleDependency = errors.BuildError("dependency is not an ES module").Build()

// Bundler bundles the entry module in dir into a single ES module.
type Bundler interface {
	Bundle(ctx context.Context, dir, entry string) ([]byte, error)
}

// Minifier minifies JavaScript. Errors are not fatal to a build.
type Minifier interface {
	Minify(code []byte) ([]byte, error)
}

// ESBuild implements Bundler and Minifier with esbuild. Package entry points
// are taken from the "module" and "jsnext:main" fields only; the "main" field
// is ignored. Builds that pull in any CommonJS file from node_modules fail
// with ErrNonModuleDependency.
type ESBuild struct{}

var (
	_ Bundler  = ESBuild{}
	_ Minifier = ESBuild{}
)

func (ESBuild) Bundle(ctx context.Context, dir, entry string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := api.Build(api.BuildOptions{
		EntryPoints:   []string{filepath.Join(dir, entry)},
		AbsWorkingDir: dir,
		Outdir:        filepath.Join(dir, "dist"),
		Bundle:        true,
		Splitting:     true,
		Write:         false,
		Format:        api.FormatESModule,
		Platform:      api.PlatformBrowser,
		MainFields:    []string{"module", "jsnext:main"},
		Target:        api.ES2020,
		Metafile:      true,
		LogLevel:      api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, errors.BuildError("bundle failed").
			WithContext("diagnostics", formatMessages(result.Errors)).
			Build()
	}
	if err := rejectCommonJS(result.Metafile); err != nil {
		return nil, err
	}

	var chunks []api.OutputFile
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".js") {
			chunks = append(chunks, f)
		}
	}
	switch len(chunks) {
	case 0:
		return nil, errors.BuildError("bundle produced no output").Build()
	case 1:
		return chunks[0].Contents, nil
	default:
		names := make([]string, len(chunks))
		for i, c := range chunks {
			names[i] = filepath.Base(c.Path)
		}
		return nil, ErrMultiChunkOutput.WithContext("chunks", strings.Join(names, ", "))
	}
}

// metafile is the subset of esbuild's metafile describing bundle inputs.
type metafile struct {
	Inputs map[string]struct {
		Format string `json:"format"`
	} `json:"inputs"`
}

// rejectCommonJS fails when any dependency input was detected as CommonJS.
// Inputs with no module syntax at all carry no format and are accepted.
func rejectCommonJS(raw string) error {
	var meta metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "unreadable bundle metafile").Build()
	}
	var offenders []string
	for path, in := range meta.Inputs {
		if in.Format == "cjs" && strings.Contains(filepath.ToSlash(path), "node_modules/") {
			offenders = append(offenders, path)
		}
	}
	if len(offenders) == 0 {
		return nil
	}
	slices.Sort(offenders)
	return ErrNonModuleDependency.WithContext("files", strings.Join(offenders, ", "))
}

func (ESBuild) Minify(code []byte) ([]byte, error) {
	result := api.Transform(string(code), api.TransformOptions{
		Loader:            api.LoaderJS,
		Format:            api.FormatESModule,
		Target:            api.ES2020,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, errors.BuildError("minification failed").
			WithContext("diagnostics", formatMessages(result.Errors)).
			Build()
	}
	return result.Code, nil
}

func formatMessages(msgs []api.Message) string {
	return strings.Join(api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage}), "")
}
