package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	columnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)
)

// table writes aligned rows under a styled header.
type table struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer, columns ...string) *table {
	t := &table{w: tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)}
	styled := make([]string, len(columns))
	for i, c := range columns {
		styled[i] = columnStyle.Render(c)
	}
	_, _ = fmt.Fprintln(t.w, strings.Join(styled, "\t"))
	return t
}

func (t *table) row(cells ...string) {
	_, _ = fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *table) flush() error {
	return t.w.Flush()
}

func printHeader(out io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf(format, args...)))
}

func printDone(out io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(out, okStyle.Render("✓")+" "+fmt.Sprintf(format, args...))
}
