package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// palette holds the colours used for terminal output.
var palette = struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Muted     lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}{
	Primary:   lipgloss.Color("#7C3AED"),
	Secondary: lipgloss.Color("#06B6D4"),
	Muted:     lipgloss.Color("#6C7086"),
	Success:   lipgloss.Color("#A6E3A1"),
	Warning:   lipgloss.Color("#F9E2AF"),
	Error:     lipgloss.Color("#F38BA8"),
}

// styles renders command output. When the output is not a terminal every
// style is a no-op, so piped output and tests see plain text.
type styles struct {
	plain bool

	title   lipgloss.Style
	heading lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	answer  lipgloss.Style
}

func newStyles(w io.Writer) *styles {
	f, ok := w.(*os.File)
	plain := !ok || !term.IsTerminal(int(f.Fd()))

	return &styles{
		plain:   plain,
		title:   lipgloss.NewStyle().Bold(true).Foreground(palette.Primary),
		heading: lipgloss.NewStyle().Bold(true).Foreground(palette.Secondary),
		muted:   lipgloss.NewStyle().Foreground(palette.Muted),
		success: lipgloss.NewStyle().Foreground(palette.Success),
		warning: lipgloss.NewStyle().Foreground(palette.Warning),
		failure: lipgloss.NewStyle().Foreground(palette.Error),
		answer: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(palette.Primary).
			Padding(0, 1),
	}
}

func (s *styles) render(st lipgloss.Style, text string) string {
	if s.plain {
		return text
	}
	return st.Render(text)
}

func (s *styles) Title(text string) string   { return s.render(s.title, text) }
func (s *styles) Heading(text string) string { return s.render(s.heading, text) }
func (s *styles) Muted(text string) string   { return s.render(s.muted, text) }
func (s *styles) Success(text string) string { return s.render(s.success, text) }
func (s *styles) Warning(text string) string { return s.render(s.warning, text) }
func (s *styles) Failure(text string) string { return s.render(s.failure, text) }

// Answer frames a generated answer on terminals that are wide enough.
func (s *styles) Answer(text string) string {
	if s.plain {
		return text
	}
	if width := terminalWidth(); width > 20 {
		return s.answer.Width(width - 4).Render(text)
	}
	return s.answer.Render(text)
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}
