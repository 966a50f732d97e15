package logger

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

type Table struct {
	headers     []string
	rows        [][]string
	columnWidth []int
	out         io.Writer
}

func NewTable(headers []string, out io.Writer) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}

	return &Table{
		headers:     headers,
		columnWidth: widths,
		out:         out,
	}
}

// AddRow pads or truncates cells to the header count.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)

	for i, cell := range row {
		t.columnWidth[i] = max(t.columnWidth[i], utf8.RuneCountInString(cell))
	}
	t.rows = append(t.rows, row)
}

func (t *Table) border(left, mid, right string) string {
	parts := make([]string, len(t.columnWidth))
	for i, w := range t.columnWidth {
		parts[i] = strings.Repeat("─", w+2)
	}
	return left + strings.Join(parts, mid) + right
}

func (t *Table) line(cells []string) string {
	var sb strings.Builder
	sb.WriteString("│")
	for i, cell := range cells {
		pad := t.columnWidth[i] - utf8.RuneCountInString(cell)
		sb.WriteString(" " + cell + strings.Repeat(" ", pad) + " │")
	}
	return sb.String()
}

func (t *Table) Render() string {
	lines := []string{
		t.border("┌", "┬", "┐"),
		t.line(t.headers),
		t.border("├", "┼", "┤"),
	}
	for _, row := range t.rows {
		lines = append(lines, t.line(row))
	}
	lines = append(lines, t.border("└", "┴", "┘"))
	return strings.Join(lines, "\n")
}

func (t *Table) Print() {
	fmt.Fprintln(t.out, t.Render())
}
