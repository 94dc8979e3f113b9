package handlers

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/packd/internal/version"
)

//go:embed usage.md
var usageMarkdown []byte

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>packd</title>
<style>body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;line-height:1.5}pre{background:#f4f4f4;padding:.75rem;overflow-x:auto}footer{color:#888;font-size:.85rem}</style>
</head>
<body>
{{.Body}}
<footer>packd {{.Version}}</footer>
</body>
</html>
`))

// LandingHandler serves the usage page rendered once from embedded markdown.
type LandingHandler struct {
	page []byte
}

// NewLandingHandler renders the landing page.
func NewLandingHandler() (*LandingHandler, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	if err := md.Convert(usageMarkdown, &body); err != nil {
		return nil, err
	}

	var page bytes.Buffer
	err := landingTemplate.Execute(&page, struct {
		Body    template.HTML
		Version string
	}{
		// #nosec G203 -- generated from the embedded markdown above
		Body:    template.HTML(body.String()),
		Version: version.Version,
	})
	if err != nil {
		return nil, err
	}
	return &LandingHandler{page: page.Bytes()}, nil
}

func (h *LandingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(h.page)
}
