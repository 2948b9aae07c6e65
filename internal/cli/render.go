package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWrapWidth = 100

// terminalWidth reports the width of w when it is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWrapWidth, true
	}
	return width, true
}

// renderMarkdown renders insight text for a terminal. Output that is not a
// terminal, or raw, gets the text unchanged.
func renderMarkdown(w io.Writer, text string, raw bool) string {
	width, isTTY := terminalWidth(w)
	if raw || !isTTY {
		return text
	}
	if width > defaultWrapWidth+20 {
		width = defaultWrapWidth + 20
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return text
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}
