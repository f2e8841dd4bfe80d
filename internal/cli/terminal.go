package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/rank"
	"github.com/bastiangx/docserve/pkg/shards"
	"github.com/charmbracelet/lipgloss"
)

var (
	nameStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"})
	exactStyle = nameStyle.Underline(true)
	scopeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#797593", Dark: "#908caa"})
	signatureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#ea9d34", Dark: "#f6c177"})
	kindStyle = lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#907aa9", Dark: "#c4a7e7"})
	anchorStyle = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	errorStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#b4637a", Dark: "#eb6f92"})
)

// Renderer prints ranked results grouped by overload.
type Renderer struct {
	w             io.Writer
	showSignature bool
}

// NewRenderer creates a Renderer writing to w.
func NewRenderer(w io.Writer, showSignature bool) *Renderer {
	return &Renderer{w: w, showSignature: showSignature}
}

// Results prints one completion.
func (r *Renderer) Results(query string, results []rank.Result, elapsed time.Duration) {
	if len(results) == 0 {
		fmt.Fprintln(r.w, headerStyle.Render(fmt.Sprintf("No symbols found for '%s'", query)))
		return
	}

	groups := rank.GroupBy(results)
	fmt.Fprintln(r.w, headerStyle.Render(fmt.Sprintf("Found %d symbols for '%s' in %v:", len(results), query, elapsed.Round(time.Microsecond))))
	for i, g := range groups {
		style := nameStyle
		if g.Results[0].Exact {
			style = exactStyle
		}
		line := fmt.Sprintf("%2d. %s", i+1, style.Render(g.DisplayName))
		if g.Scope != "" {
			line += " " + scopeStyle.Render("in "+g.Scope)
		}
		line += " " + kindStyle.Render(g.Results[0].Kind.String())
		if n := len(g.Results); n > 1 {
			line += scopeStyle.Render(fmt.Sprintf(" (%d overloads)", n))
		}
		fmt.Fprintln(r.w, line)

		for _, res := range g.Results {
			var parts []string
			if r.showSignature && res.Signature != "" {
				parts = append(parts, signatureStyle.Render(res.Signature))
			}
			parts = append(parts, anchorStyle.Render(res.Anchor))
			fmt.Fprintln(r.w, "      "+strings.Join(parts, "  "))
		}
	}
}

// Error prints a failed query.
func (r *Renderer) Error(query string, err error) {
	fmt.Fprintln(r.w, errorStyle.Render(fmt.Sprintf("Query '%s' failed: %v", query, err)))
}

// Stats prints shard store counters.
func (r *Renderer) Stats(stats shards.Stats) {
	keys := make([]string, len(stats.Keys))
	for i, k := range stats.Keys {
		keys[i] = string(k)
	}
	fmt.Fprintln(r.w, headerStyle.Render("shard cache"))
	fmt.Fprintf(r.w, "  hits:     %s\n", utils.FormatWithCommas(stats.Hits))
	fmt.Fprintf(r.w, "  misses:   %s\n", utils.FormatWithCommas(stats.Misses))
	fmt.Fprintf(r.w, "  loads:    %s\n", utils.FormatWithCommas(stats.Loads))
	fmt.Fprintf(r.w, "  failures: %s\n", utils.FormatWithCommas(stats.Failures))
	fmt.Fprintf(r.w, "  cached:   %d %s\n", stats.Cached, scopeStyle.Render(strings.Join(keys, " ")))
}
