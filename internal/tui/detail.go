package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/hylla/tavla/internal/app"
)

// minDetailWrap is the narrowest wrap width used for the detail pane.
const minDetailWrap = 32

// detailRenderer styles the task detail pane through glamour, rebuilding the renderer on width changes.
type detailRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// render converts markdown to styled terminal text. Renderer failures fall back to the raw text.
func (r *detailRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	wrap := max(width, minDetailWrap)
	if r.renderer == nil || r.width != wrap {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrap),
			glamour.WithPreservedNewLines(),
		)
		if err != nil {
			return markdown
		}
		r.renderer, r.width = renderer, wrap
	}
	if rendered, err := r.renderer.Render(markdown); err == nil {
		return strings.Trim(rendered, "\n")
	}
	return markdown
}

// taskMarkdown describes one task for the detail pane.
func taskMarkdown(card app.CardView, registry *app.CardRegistry) string {
	status := card.Task.StatusName
	if column, ok := registry.Column(card.ColumnID); ok {
		status = column.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", card.Task.Subject)
	fmt.Fprintf(&b, "- **Status:** %s\n", fallbackText(status))
	fmt.Fprintf(&b, "- **Project:** %s\n", fallbackText(card.Task.ProjectName))
	fmt.Fprintf(&b, "- **Priority:** %s\n", fallbackText(card.Task.PriorityLabel))
	if !card.Task.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Updated:** %s\n", card.Task.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	if card.Pending {
		b.WriteString("\n_status change pending_\n")
	}
	return b.String()
}

// fallbackText renders blank values as a dash.
func fallbackText(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
