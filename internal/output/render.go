package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool

	Summary   lipgloss.Style
	Muted     lipgloss.Style
	Data      lipgloss.Style
	Error     lipgloss.Style
	Hint      lipgloss.Style
	Header    lipgloss.Style
	Cell      lipgloss.Style
	CellMuted lipgloss.Style
}

// NewRenderer creates a renderer. Styling is enabled when writing to a TTY,
// or when forceStyled is true, unless NO_COLOR is set.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	width, tty := terminalInfo(w)
	styled := (tty || forceStyled) && os.Getenv("NO_COLOR") == ""

	r := &Renderer{width: width, styled: styled}
	if !styled {
		plain := lipgloss.NewStyle()
		r.Summary, r.Muted, r.Data, r.Error = plain, plain, plain, plain
		r.Hint, r.Header, r.Cell, r.CellMuted = plain, plain, plain, plain
		return r
	}

	r.Summary = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	r.Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	r.Data = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	r.Error = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	r.Hint = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	r.Header = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	r.Cell = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	r.CellMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	return r
}

// terminalInfo returns the terminal width and whether the writer is a TTY.
func terminalInfo(w io.Writer) (width int, isTTY bool) {
	width = 80
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(f.Fd()); err == nil && cols >= 40 {
			width = cols
		}
		isTTY = term.IsTerminal(f.Fd())
	}
	return width, isTTY
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		b.WriteString("\n\n")
	}

	r.renderData(&b, NormalizeData(resp.Data))

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n")
		for _, bc := range resp.Breadcrumbs {
			b.WriteString(r.Muted.Render(fmt.Sprintf("  %s: %s", bc.Description, bc.Cmd)))
			b.WriteString("\n")
		}
	}

	if stats, ok := resp.Meta["stats"].(string); ok && stats != "" {
		b.WriteString("\n")
		b.WriteString(r.Muted.Render("Stats: " + stats))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	b.WriteString(r.Error.Render("Error: " + resp.Error))
	b.WriteString("\n")

	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		r.renderTable(b, d)

	case map[string]any:
		r.renderObject(b, d)

	case []any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + formatCell(item)))
			b.WriteString("\n")
		}

	case nil:
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")

	default:
		b.WriteString(r.Data.Render(formatCell(data)))
		b.WriteString("\n")
	}
}

// Column priority for table rendering (lower = higher priority).
var columnPriority = map[string]int{
	"id":              1,
	"title":           2,
	"username":        2,
	"state":           3,
	"priority":        4,
	"category":        5,
	"due_date":        6,
	"author_username": 3,
	"content":         4,
	"message":         3,
	"read":            5,
	"owner":           7,
	"created_at":      8,
}

var mutedColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

var skipColumns = map[string]bool{
	"description": true,
	"updated_at":  true,
}

const maxColumns = 7

func (r *Renderer) renderTable(b *strings.Builder, data []map[string]any) {
	keys := detectColumns(data[0])
	if len(keys) == 0 {
		return
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Width(r.width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.Header
			}
			if col < len(keys) && mutedColumns[keys[col]] {
				return r.CellMuted
			}
			return r.Cell
		})

	headers := make([]string, len(keys))
	for i, k := range keys {
		headers[i] = strings.ToUpper(strings.ReplaceAll(k, "_", " "))
	}
	t.Headers(headers...)

	for _, item := range data {
		row := make([]string, len(keys))
		for i, k := range keys {
			row[i] = formatCell(item[k])
		}
		t.Row(row...)
	}

	b.WriteString(t.String())
	b.WriteString("\n")
}

// detectColumns picks scalar columns from a row, ordered by priority then name.
func detectColumns(first map[string]any) []string {
	var keys []string
	for k, v := range first {
		if skipColumns[k] {
			continue
		}
		switch v.(type) {
		case map[string]any, []any, []map[string]any:
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := priorityOf(keys[i]), priorityOf(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
	if len(keys) > maxColumns {
		keys = keys[:maxColumns]
	}
	return keys
}

func priorityOf(key string) int {
	if p, ok := columnPriority[key]; ok {
		return p
	}
	return 50
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	keys := make([]string, 0, len(data))
	width := 0
	for k := range data {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := priorityOf(keys[i]), priorityOf(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		label := fmt.Sprintf("%-*s", width, k)
		b.WriteString(r.Muted.Render(label))
		b.WriteString("  ")
		b.WriteString(r.Data.Render(formatCell(data[k])))
		b.WriteString("\n")
	}
}

// formatCell renders a scalar JSON value for display.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case map[string]any:
		if name, ok := val["username"].(string); ok {
			return name
		}
		return fmt.Sprintf("{%d fields}", len(val))
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatCell(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", val)
	}
}
