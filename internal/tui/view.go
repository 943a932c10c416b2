package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/lattice-prompts/internal/variables"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("#5B8DEF"))
)

// View renders the current state.
func (a *App) View() string {
	listBox, detailBox := boxStyle, boxStyle
	switch a.focus {
	case focusList:
		listBox = focusedBoxStyle
	case focusDetail, focusArg:
		detailBox = focusedBoxStyle
	}

	right := a.detail.View()
	if a.focus == focusArg {
		right = lipgloss.JoinVertical(lipgloss.Left, a.arg.View(), "", right)
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		listBox.Render(a.list.View()),
		detailBox.Render(right),
	)

	footer := "enter resolve · a argument · r refresh · tab switch pane · / filter · q quit"
	if a.statusMsg != "" {
		footer = a.statusMsg + " · " + footer
	}
	return strings.Join([]string{
		headerStyle.Render("⬡ LATTICE PROMPTS · inspector"),
		body,
		mutedStyle.Render(footer),
	}, "\n")
}

func (a *App) renderDetail() string {
	if a.current.Name == "" {
		return mutedStyle.Render("Select a variable and press enter to resolve it.")
	}
	title := titleStyle.Render(fmt.Sprintf("{{%s}}", a.current))
	switch {
	case a.resolving:
		return lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("resolving…"))
	case a.err != nil:
		return lipgloss.JoinVertical(lipgloss.Left, title, errorStyle.Render("⚠ "+a.err.Error()))
	case a.result == nil:
		return lipgloss.JoinVertical(lipgloss.Left, title,
			mutedStyle.Render("unresolved: no resolver is eligible, or the reference was cut by a cycle"))
	}
	lines := []string{title, "", a.result.Value, ""}
	lines = append(lines, titleStyle.Render(fmt.Sprintf("Dependencies (%d)", len(a.result.Dependencies))))
	if len(a.result.Dependencies) == 0 {
		lines = append(lines, mutedStyle.Render("none"))
	}
	for _, dep := range a.result.Dependencies {
		lines = append(lines, fmt.Sprintf("• %s = %s", dep.Ref(), summarize(dep)))
	}
	return strings.Join(lines, "\n")
}

func summarize(rv *variables.ResolvedVariable) string {
	value := strings.ReplaceAll(rv.Value, "\n", " ⏎ ")
	const limit = 60
	if runes := []rune(value); len(runes) > limit {
		return string(runes[:limit-1]) + "…"
	}
	return value
}
