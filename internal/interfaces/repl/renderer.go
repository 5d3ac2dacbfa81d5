package repl

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorCyan   = lipgloss.Color("#00D7FF")
	colorGray   = lipgloss.Color("#6C6C6C")
	colorGreen  = lipgloss.Color("#00FF87")
	colorYellow = lipgloss.Color("#FFD75F")
	colorRed    = lipgloss.Color("#FF5F5F")
)

// Renderer 终端输出渲染: Markdown 回复和状态行
type Renderer struct {
	glamour *glamour.TermRenderer
	width   int
}

// NewRenderer creates a renderer for the given terminal width.
func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return &Renderer{glamour: r, width: width}
}

// Reply renders a model reply as Markdown. Falls back to the raw text.
func (r *Renderer) Reply(md string) string {
	if r.glamour == nil {
		return md
	}
	out, err := r.glamour.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func (r *Renderer) Banner(userID string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorCyan).
		Padding(0, 2)
	title := lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Render("Assistant")
	hint := lipgloss.NewStyle().Foreground(colorGray).Render("signed in as " + userID + " · /help for commands")
	return box.Render(title + "\n" + hint)
}

func (r *Renderer) Prompt(userID string) string {
	return lipgloss.NewStyle().Foreground(colorGreen).Bold(true).Render(userID+">") + " "
}

func (r *Renderer) Info(msg string) string {
	return lipgloss.NewStyle().Foreground(colorCyan).Render("✓ " + msg)
}

func (r *Renderer) Error(msg string) string {
	return lipgloss.NewStyle().Foreground(colorRed).Render("✗ " + msg)
}

// Footer 显示模型、意图和耗时
func (r *Renderer) Footer(model, intent string, elapsed time.Duration) string {
	parts := []string{intent}
	if model != "" {
		parts = append(parts, model)
	}
	parts = append(parts, elapsed.Round(time.Millisecond).String())
	return lipgloss.NewStyle().Foreground(colorGray).Italic(true).Render(strings.Join(parts, " · "))
}

func (r *Renderer) Status(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	label := lipgloss.NewStyle().Foreground(colorGray).Width(9)
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(colorYellow).Bold(true).Render("Status"))
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s %s", label.Render(k), fields[k])
	}
	return b.String()
}

func (r *Renderer) Help() string {
	cmd := lipgloss.NewStyle().Foreground(colorGreen).Width(16)
	desc := lipgloss.NewStyle().Foreground(colorGray)
	rows := [][2]string{
		{"/new", "Start a new chat"},
		{"/model [name]", "Show or switch the chat model"},
		{"/persona [id]", "Show or switch persona (starts a new chat)"},
		{"/memory <mode>", "Set memory mode: auto, on, off"},
		{"/status", "Show session state"},
		{"/exit", "Quit"},
	}
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Render("Commands"))
	for _, row := range rows {
		fmt.Fprintf(&b, "\n  %s %s", cmd.Render(row[0]), desc.Render(row[1]))
	}
	b.WriteString("\n\n" + desc.Render("Ask for an image or a video in plain words to generate media."))
	return b.String()
}
