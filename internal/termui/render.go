package termui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"pkt.systems/ait/core"
	"pkt.systems/ait/schema"
)

var (
	ghostStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Faint(true)
	itemStyle     = lipgloss.NewStyle().Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Padding(0, 1).Reverse(true).Bold(true)
	dropdownBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("6"))
	panelBox      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("5"))
	panelHeader   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	commandStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true)
	promptStyle   = lipgloss.NewStyle().Bold(true)
)

// block is a rendered overlay element placed at a screen cell.
type block struct {
	Top   int
	Left  int
	Lines []string
}

// rows returns the screen rows the block covers.
func (b block) rows() []int {
	out := make([]int, 0, len(b.Lines))
	for i := range b.Lines {
		out = append(out, b.Top+i)
	}
	return out
}

// cursorPos is a zero-based screen cell.
type cursorPos struct {
	Row int
	Col int
}

// layout is everything the overlay paints over the shell output.
type layout struct {
	Blocks []block
	// Cursor, when set, moves the visible cursor off the shell prompt.
	Cursor *cursorPos
}

func (l layout) empty() bool {
	return len(l.Blocks) == 0
}

func (l layout) rows() []int {
	seen := map[int]bool{}
	var out []int
	for _, b := range l.Blocks {
		for _, row := range b.rows() {
			if !seen[row] {
				seen[row] = true
				out = append(out, row)
			}
		}
	}
	return out
}

// layoutOverlay positions the overlay for a screen of size with the shell
// cursor at cursor.
func layoutOverlay(view core.OverlayView, size schema.Dimensions, cursor cursorPos) layout {
	var l layout
	if !size.Valid() {
		return l
	}
	if view.InlineRemainder != "" && !view.DropdownOpen && !view.AssistantOpen {
		if room := size.Cols - cursor.Col; room > 0 {
			text := truncate(firstLine(view.InlineRemainder), room)
			l.Blocks = append(l.Blocks, block{Top: cursor.Row, Left: cursor.Col, Lines: []string{ghostStyle.Render(text)}})
		}
	}
	if view.DropdownOpen && len(view.Dropdown) > 0 {
		l.Blocks = append(l.Blocks, layoutDropdown(view, size))
	}
	if view.AssistantOpen {
		panel, input := layoutPanel(view.Panel, size)
		l.Blocks = append(l.Blocks, panel)
		l.Cursor = &input
	}
	return l
}

func layoutDropdown(view core.OverlayView, size schema.Dimensions) block {
	inner := size.Cols - 4
	if inner < 1 {
		inner = 1
	}
	width := 0
	for _, item := range view.Dropdown {
		if w := utf8.RuneCountInString(firstLine(item.Cmd)); w > width {
			width = w
		}
	}
	if width > inner {
		width = inner
	}
	items := make([]string, 0, len(view.Dropdown))
	for i, item := range view.Dropdown {
		text := padRight(truncate(firstLine(item.Cmd), width), width)
		style := itemStyle
		if i == view.Selected {
			style = selectedStyle
		}
		items = append(items, style.Render(text))
	}
	lines := strings.Split(dropdownBox.Render(strings.Join(items, "\n")), "\n")
	height := len(lines)
	boxWidth := lipgloss.Width(lines[0])

	top := view.Anchor.Row + 1
	if top+height > size.Rows {
		top = view.Anchor.Row - height
		if top < 0 {
			top = 0
		}
	}
	left := view.Anchor.Col
	if left+boxWidth > size.Cols {
		left = size.Cols - boxWidth
	}
	if left < 0 {
		left = 0
	}
	if len(lines) > size.Rows {
		lines = lines[:size.Rows]
	}
	return block{Top: top, Left: left, Lines: lines}
}

// layoutPanel renders the assistant panel across the bottom of the screen
// and returns where the question cursor sits.
func layoutPanel(view core.PanelView, size schema.Dimensions) (block, cursorPos) {
	inner := size.Cols - 4
	if inner < 1 {
		inner = 1
	}
	content := []string{panelHeader.Render(truncate("Assistant  enter ask · alt+1..9 insert · pgup/pgdn scroll · esc close", inner))}
	for _, line := range view.Lines {
		content = append(content, truncate(line, inner))
	}
	for i, cmd := range view.Commands {
		if i >= 9 {
			break
		}
		label := fmt.Sprintf("[%d] %s", i+1, strings.ReplaceAll(cmd, "\n", " && "))
		content = append(content, commandStyle.Render(truncate(label, inner)))
	}
	if view.Busy {
		content = append(content, busyStyle.Render("thinking…"))
	}
	question, col := scrollInput(view.Question, view.Cursor, inner-2)
	content = append(content, promptStyle.Render("> ")+question)

	maxContent := size.Rows - 2
	if maxContent < 1 {
		maxContent = 1
	}
	if len(content) > maxContent {
		// Keep the header and the input line; drop the oldest transcript.
		content = append(content[:1], content[len(content)-maxContent+1:]...)
		if maxContent == 1 {
			content = content[len(content)-1:]
		}
	}
	lines := strings.Split(panelBox.Width(size.Cols-2).Render(strings.Join(content, "\n")), "\n")
	top := size.Rows - len(lines)
	if top < 0 {
		lines = lines[-top:]
		top = 0
	}
	inputRow := top + len(lines) - 2
	return block{Top: top, Left: 0, Lines: lines}, cursorPos{Row: inputRow, Col: 1 + 2 + col}
}

// scrollInput returns the visible window of the question line and the
// cursor column inside it.
func scrollInput(text string, cursor, width int) (string, int) {
	runes := []rune(text)
	if width < 1 {
		width = 1
	}
	if cursor > len(runes) {
		cursor = len(runes)
	}
	start := 0
	if cursor >= width {
		start = cursor - width + 1
	}
	end := start + width
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end]), cursor - start
}

// titleFor is the terminal window title listing the tabs, active one
// bracketed.
func titleFor(snaps []schema.TabSnapshot) string {
	if len(snaps) == 0 {
		return "ait"
	}
	parts := make([]string, 0, len(snaps))
	for i, snap := range snaps {
		label := fmt.Sprintf("%d %s", i+1, snap.Title)
		switch snap.State {
		case schema.StateConnecting:
			label += " …"
		case schema.StateFailed, schema.StateClosed:
			label += " ✕"
		}
		if snap.Active {
			label = "[" + label + "]"
		}
		parts = append(parts, label)
	}
	return "ait: " + strings.Join(parts, " | ")
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width == 1 {
		return string(runes[:1])
	}
	return string(runes[:width-1]) + "…"
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
