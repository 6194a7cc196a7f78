package termui

import (
	"bytes"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/ActiveState/vt10x"

	"pkt.systems/ait/core"
	"pkt.systems/ait/schema"
)

// Surface shadows one tab's screen in a vt10x emulator. The active surface
// also passes output through to the real terminal and paints the overlay on
// top; inactive surfaces only update their emulator. Methods run on the
// dispatcher thread.
type Surface struct {
	id     schema.TabID
	out    io.Writer
	state  *vt10x.State
	vt     *vt10x.VT
	size   schema.Dimensions
	active bool

	view    core.OverlayView
	painted []int
	partial []byte
}

func newSurface(id schema.TabID, out io.Writer, size schema.Dimensions) *Surface {
	state := &vt10x.State{}
	vt, _ := vt10x.New(state, bytes.NewReader(nil), io.Discard)
	s := &Surface{id: id, out: out, state: state, vt: vt}
	s.Resize(size)
	return s
}

// Write feeds remote output to the emulator and, when active, to the
// terminal.
func (s *Surface) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	if s.active {
		s.erase()
	}
	feed := data
	if len(s.partial) > 0 {
		feed = append(s.partial, data...)
		s.partial = nil
	}
	cut := completeRunes(feed)
	if cut < len(feed) {
		s.partial = append([]byte(nil), feed[cut:]...)
	}
	_, _ = s.vt.Write(feed[:cut])
	if s.active {
		_, _ = s.out.Write(data)
		s.paint()
	}
}

// Cursor returns the emulator's cursor cell.
func (s *Surface) Cursor() (row, col int) {
	s.state.Lock()
	defer s.state.Unlock()
	x, y := s.state.Cursor()
	return y, x
}

// OverlayChanged repaints the overlay.
func (s *Surface) OverlayChanged(view core.OverlayView) {
	s.view = view
	if !s.active {
		return
	}
	s.erase()
	s.paint()
}

// Resize refits the emulator grid. Call it before the session is told about
// the new size.
func (s *Surface) Resize(size schema.Dimensions) {
	if !size.Valid() {
		return
	}
	s.size = size
	s.vt.Resize(size.Cols, size.Rows)
	s.painted = nil
}

// activate marks the surface visible and repaints the whole screen from
// the emulator.
func (s *Surface) activate() {
	s.active = true
	s.painted = nil
	var buf bytes.Buffer
	buf.WriteString("\x1b[?25l\x1b[0m\x1b[2J")
	rows := make([]int, s.size.Rows)
	for i := range rows {
		rows[i] = i
	}
	s.writeRows(&buf, rows)
	_, _ = s.out.Write(buf.Bytes())
	s.paint()
}

func (s *Surface) deactivate() {
	s.active = false
	s.painted = nil
}

// erase restores the rows under the last painted overlay.
func (s *Surface) erase() {
	if len(s.painted) == 0 {
		return
	}
	var buf bytes.Buffer
	buf.WriteString("\x1b[?25l")
	s.writeRows(&buf, s.painted)
	s.painted = nil
	_, _ = s.out.Write(buf.Bytes())
}

// paint draws the current overlay view and parks the cursor.
func (s *Surface) paint() {
	row, col := s.Cursor()
	l := layoutOverlay(s.view, s.size, cursorPos{Row: row, Col: col})
	var buf bytes.Buffer
	if !l.empty() {
		buf.WriteString("\x1b[?25l")
		for _, b := range l.Blocks {
			for i, line := range b.Lines {
				moveTo(&buf, b.Top+i, b.Left)
				buf.WriteString(line)
				buf.WriteString("\x1b[0m")
			}
		}
		s.painted = l.rows()
	}
	if l.Cursor != nil {
		moveTo(&buf, l.Cursor.Row, l.Cursor.Col)
	} else {
		moveTo(&buf, row, col)
	}
	if s.cursorVisible() {
		buf.WriteString("\x1b[?25h")
	}
	_, _ = s.out.Write(buf.Bytes())
}

func (s *Surface) cursorVisible() bool {
	s.state.Lock()
	defer s.state.Unlock()
	return s.state.CursorVisible()
}

// writeRows repaints rows from the emulator and returns the cursor to the
// emulator's cursor cell.
func (s *Surface) writeRows(buf *bytes.Buffer, rows []int) {
	s.state.Lock()
	defer s.state.Unlock()
	height, width := s.state.Size()
	for _, y := range rows {
		if y < 0 || y >= height {
			continue
		}
		moveTo(buf, y, 0)
		fg, bg := vt10x.DefaultFG, vt10x.DefaultBG
		buf.WriteString("\x1b[0m")
		for x := 0; x < width; x++ {
			ch, cfg, cbg := s.state.Cell(x, y)
			if cfg != fg || cbg != bg {
				writeSGR(buf, cfg, cbg)
				fg, bg = cfg, cbg
			}
			if ch == 0 {
				ch = ' '
			}
			buf.WriteRune(ch)
		}
		buf.WriteString("\x1b[0m")
	}
	x, y := s.state.Cursor()
	moveTo(buf, y, x)
}

// completeRunes returns the length of p without a trailing partial rune.
func completeRunes(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i]) {
			if utf8.FullRune(p[i:]) {
				return len(p)
			}
			return i
		}
	}
	return len(p)
}

func moveTo(buf *bytes.Buffer, row, col int) {
	buf.WriteString("\x1b[")
	buf.WriteString(strconv.Itoa(row + 1))
	buf.WriteByte(';')
	buf.WriteString(strconv.Itoa(col + 1))
	buf.WriteByte('H')
}

func writeSGR(buf *bytes.Buffer, fg, bg vt10x.Color) {
	buf.WriteString("\x1b[0")
	switch {
	case fg == vt10x.DefaultFG:
	case fg < 8:
		buf.WriteString(";" + strconv.Itoa(30+int(fg)))
	case fg < 16:
		buf.WriteString(";" + strconv.Itoa(90+int(fg)-8))
	case fg < 256:
		buf.WriteString(";38;5;" + strconv.Itoa(int(fg)))
	}
	switch {
	case bg == vt10x.DefaultBG:
	case bg < 8:
		buf.WriteString(";" + strconv.Itoa(40+int(bg)))
	case bg < 16:
		buf.WriteString(";" + strconv.Itoa(100+int(bg)-8))
	case bg < 256:
		buf.WriteString(";48;5;" + strconv.Itoa(int(bg)))
	}
	buf.WriteByte('m')
}
