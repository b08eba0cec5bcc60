// Package vtscreen wraps a VT/ANSI terminal emulator, feeding it the bytes a
// PTY produces and exposing the resulting screen as text and HTML snapshots.
package vtscreen

import (
	"fmt"
	"image/color"
	"strings"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

// Screen wraps the charmbracelet/x/vt terminal emulator.
type Screen struct {
	mu sync.Mutex

	term vt.Terminal

	rows, cols int
}

// New creates a new screen model with the given dimensions.
func New(rows, cols int) *Screen {
	return &Screen{
		term: vt.NewSafeEmulator(cols, rows),
		rows: rows,
		cols: cols,
	}
}

// Feed advances the screen model by the given bytes. Feed is idempotent only
// up to the byte stream: callers must never replay bytes already fed.
func (s *Screen) Feed(data []byte) {
	s.term.Write(data)
}

// Resize reshapes the screen to cols x rows. Resizing to the current
// dimensions is a no-op.
func (s *Screen) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cols == s.cols && rows == s.rows {
		return
	}
	s.cols = cols
	s.rows = rows
	s.term.Resize(cols, rows)
}

// Size returns the current dimensions as cols, rows.
func (s *Screen) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Cursor returns the cursor's column and row. visible is always true: the
// emulator's cursor-visibility mode is not consulted.
func (s *Screen) Cursor() (col, row int, visible bool) {
	pos := s.term.CursorPosition()
	return pos.X, pos.Y, true
}

// cellView is the subset of a VT cell's state this package cares about,
// extracted at the call site so the vt package's own cell type never has to
// be named here.
type cellView struct {
	rune  rune
	fg    color.Color
	bg    color.Color
	bold  bool
	faint bool
}

func (s *Screen) viewAt(x, y int) cellView {
	cell := s.term.CellAt(x, y)
	v := cellView{rune: ' '}
	if cell == nil {
		return v
	}
	if cell.Content != "" {
		if runes := []rune(cell.Content); len(runes) > 0 {
			v.rune = runes[0]
		}
	}
	v.fg = cell.Style.Fg
	v.bg = cell.Style.Bg
	v.bold = cell.Style.Attrs&uv.AttrBold != 0
	v.faint = cell.Style.Attrs&uv.AttrFaint != 0
	return v
}

// SnapshotText renders the visible screen as plain text: one line per row,
// short rows padded with spaces, no trailing newline after the last row.
func (s *Screen) SnapshotText() string {
	s.mu.Lock()
	cols, rows := s.cols, s.rows
	s.mu.Unlock()

	var b strings.Builder
	for y := 0; y < rows; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < cols; x++ {
			b.WriteRune(s.viewAt(x, y).rune)
		}
	}
	return b.String()
}

// SnapshotHTML renders the visible screen as HTML: one <div> per row, runs
// of cells sharing style collapsed into a single <span>.
func (s *Screen) SnapshotHTML() string {
	s.mu.Lock()
	cols, rows := s.cols, s.rows
	s.mu.Unlock()

	var b strings.Builder
	b.WriteString("<pre class=\"ht-screen\">")
	for y := 0; y < rows; y++ {
		b.WriteString("<div class=\"ht-row\">")
		var runClass string
		var run strings.Builder
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if runClass == "" {
				b.WriteString(htmlEscape(run.String()))
			} else {
				fmt.Fprintf(&b, "<span class=\"%s\">%s</span>", runClass, htmlEscape(run.String()))
			}
			run.Reset()
		}
		for x := 0; x < cols; x++ {
			cell := s.viewAt(x, y)
			class := cellClass(cell)
			if class != runClass && run.Len() > 0 {
				flush()
			}
			runClass = class
			run.WriteRune(cell.rune)
		}
		flush()
		b.WriteString("</div>")
	}
	b.WriteString("</pre>")
	return b.String()
}

func cellClass(cell cellView) string {
	var classes []string
	if cell.bold {
		classes = append(classes, "bold")
	}
	if cell.faint {
		classes = append(classes, "dim")
	}
	if fg := colorClass("fg", cell.fg); fg != "" {
		classes = append(classes, fg)
	}
	if bg := colorClass("bg", cell.bg); bg != "" {
		classes = append(classes, bg)
	}
	return strings.Join(classes, " ")
}

func colorClass(prefix string, c color.Color) string {
	if c == nil {
		return ""
	}
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("ht-%s-%02x%02x%02x", prefix, r>>8, g>>8, b>>8)
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
