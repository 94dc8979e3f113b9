package bundler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"git.home.luguber.info/inful/packd/internal/build"
)

const (
	EntryFile    = "index.js"
	manifestFile = "package.json"
)

var entryTemplate = template.Must(template.New("entry").Parse(
	`{{range $i, $p := .}}import * as packd_export_{{$i}} from '{{js $p.ImportPath}}';
{{end}}export { {{range $i, $p := .}}{{if $i}}, {{end}}packd_export_{{$i}}{{end}} };
`))

const manifestJSON = `{
  "name": "packd-bundle",
  "private": true,
  "version": "0.0.0",
  "module": "` + EntryFile + `"
}
`

// RenderEntry returns the entry module for pkgs. Export i re-exports the
// namespace of pkgs[i].
func RenderEntry(pkgs []build.Package) ([]byte, error) {
	var buf bytes.Buffer
	if err := entryTemplate.Execute(&buf, pkgs); err != nil {
		return nil, fmt.Errorf("render entry: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteManifest writes package.json and the entry module into dir.
func WriteManifest(dir string, pkgs []build.Package) error {
	entry, err := RenderEntry(pkgs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), []byte(manifestJSON), 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, EntryFile), entry, 0o600); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}
