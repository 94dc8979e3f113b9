package handlers

import (
	"cmp"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/packd/internal/cache"
)

// Summarizer lists cached bundles.
type Summarizer interface {
	Summaries() []cache.Summary
}

// CacheHandlers renders the /_cache report.
type CacheHandlers struct {
	cache Summarizer
}

func NewCacheHandlers(c Summarizer) *CacheHandlers {
	return &CacheHandlers{cache: c}
}

// HandleCacheReport writes a plain-text table of cached bundles. Rows are
// sorted by name, or by compressed size descending with ?sort=size.
func (h *CacheHandlers) HandleCacheReport(w http.ResponseWriter, r *http.Request) {
	entries := h.cache.Summaries()
	if r.URL.Query().Get("sort") == "size" {
		slices.SortStableFunc(entries, func(a, b cache.Summary) int {
			return cmp.Or(cmp.Compare(b.Size, a.Size), cmp.Compare(a.Name, b.Name))
		})
	} else {
		slices.SortStableFunc(entries, func(a, b cache.Summary) int { return cmp.Compare(a.Name, b.Name) })
	}
	writeText(w, http.StatusOK, RenderCacheReport(entries))
}

// RenderCacheReport formats entries as a header line and a box table.
func RenderCacheReport(entries []cache.Summary) string {
	var total uint64
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		total += uint64(e.Size)
		flag := ""
		if e.Degraded {
			flag = "unminified"
		}
		rows = append(rows, []string{e.Name, humanize.Bytes(uint64(e.Size)), humanize.Bytes(uint64(e.RawSize)), flag})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total cached bundles: %d (%s)\n\n", len(entries), humanize.Bytes(total))
	if len(rows) == 0 {
		return b.String()
	}
	writeBoxTable(&b, []string{"package", "size", "raw", "note"}, rows)
	return b.String()
}

func writeBoxTable(b *strings.Builder, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	rule := func(left, mid, right string) {
		b.WriteString(left)
		for i, w := range widths {
			if i > 0 {
				b.WriteString(mid)
			}
			b.WriteString(strings.Repeat("─", w+2))
		}
		b.WriteString(right + "\n")
	}
	line := func(cells []string) {
		b.WriteString("│")
		for i, cell := range cells {
			pad := widths[i] - utf8.RuneCountInString(cell)
			b.WriteString(" " + cell + strings.Repeat(" ", pad) + " │")
		}
		b.WriteString("\n")
	}

	rule("┌", "┬", "┐")
	line(header)
	rule("├", "┼", "┤")
	for _, row := range rows {
		line(row)
	}
	rule("└", "┴", "┘")
}
