package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"dailyaed/internal/core"
)

var (
	primaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8C00"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00CFCF"))
	silentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

// palette styles text only when the destination is a terminal.
type palette struct{ color bool }

func paletteFor(w io.Writer) palette {
	f, ok := w.(*os.File)
	if !ok {
		return palette{}
	}
	return palette{color: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())}
}

func (p palette) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p palette) Primary(text string) string { return p.render(primaryStyle, text) }
func (p palette) Error(text string) string   { return p.render(errorStyle, text) }
func (p palette) Warning(text string) string { return p.render(warningStyle, text) }
func (p palette) Label(text string) string   { return p.render(labelStyle, text) }
func (p palette) Silent(text string) string  { return p.render(silentStyle, text) }

// Amount renders text for m, in the error style when m is negative.
func (p palette) Amount(m core.Money, text string) string {
	if m.Fils < 0 {
		return p.Error(text)
	}
	return text
}
