package runtime

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#FF6B6B")).
			Padding(0, 1)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	runStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// report writes err to w, styled when w is a terminal.
func report(w io.Writer, runID string, err error) {
	if w == nil {
		return
	}
	if !isTerminal(w) {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "%s %s\n%s\n",
		labelStyle.Render("ERROR"),
		messageStyle.Render(err.Error()),
		runStyle.Render("run "+runID))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
