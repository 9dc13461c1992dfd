package present

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Renderer writes Feedback to w.
type Renderer interface {
	Render(w io.Writer, fb Feedback) error
}

// JSONRenderer writes the script-filter JSON document.
type JSONRenderer struct {
	Indent bool
}

// Render implements Renderer.
func (r JSONRenderer) Render(w io.Writer, fb Feedback) error {
	if fb.Items == nil {
		fb.Items = []Item{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if r.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(fb); err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	return nil
}

// Styles for the text renderer.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Arg      lipgloss.Style
	Invalid  lipgloss.Style
	Note     lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		Subtitle: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Arg:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true),
		Invalid:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("220")),
		Note:     lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

// PlainStyles returns unstyled output.
func PlainStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle(),
		Subtitle: lipgloss.NewStyle(),
		Arg:      lipgloss.NewStyle(),
		Invalid:  lipgloss.NewStyle(),
		Note:     lipgloss.NewStyle(),
	}
}

// TextRenderer prints one block per item for humans.
type TextRenderer struct {
	Styles Styles
}

// Render implements Renderer.
func (r TextRenderer) Render(w io.Writer, fb Feedback) error {
	s := r.Styles
	var b strings.Builder
	for i, it := range fb.Items {
		title := s.Title.Render(it.Title)
		if !it.Valid {
			title = s.Invalid.Render(it.Title)
		}
		fmt.Fprintf(&b, "%2d. %s\n", i+1, title)
		if it.Subtitle != "" {
			fmt.Fprintf(&b, "    %s\n", s.Subtitle.Render(it.Subtitle))
		}
		if it.Arg != "" {
			fmt.Fprintf(&b, "    %s\n", s.Arg.Render(it.Arg))
		}
	}
	if fb.Rerun > 0 {
		fmt.Fprintf(&b, "%s\n", s.Note.Render(fmt.Sprintf("(updating in the background, rerun in %.1fs)", fb.Rerun)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Select picks a renderer for mode ("json", "text" or "auto"). Auto uses
// text when w is a terminal and JSON otherwise.
func Select(mode string, w io.Writer) Renderer {
	switch mode {
	case "json":
		return JSONRenderer{}
	case "text":
		return TextRenderer{Styles: stylesFor(w)}
	}
	if IsTTY(w) {
		return TextRenderer{Styles: stylesFor(w)}
	}
	return JSONRenderer{}
}

func stylesFor(w io.Writer) Styles {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor || !IsTTY(w) {
		return PlainStyles()
	}
	return DefaultStyles()
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
