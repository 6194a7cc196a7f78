package keyinput

// LineEditor is a single line text editor driven by decoded keys.
type LineEditor struct {
	buf    []rune
	cursor int
}

func (e *LineEditor) String() string {
	return string(e.buf)
}

// Cursor returns the cursor position in runes.
func (e *LineEditor) Cursor() int {
	return e.cursor
}

func (e *LineEditor) Len() int {
	return len(e.buf)
}

func (e *LineEditor) Clear() {
	e.buf = nil
	e.cursor = 0
}

func (e *LineEditor) SetString(value string) {
	if value == "" {
		e.Clear()
		return
	}
	e.buf = []rune(value)
	e.cursor = len(e.buf)
}

// Apply edits the line with k and reports whether k was an editing key.
func (e *LineEditor) Apply(k Key) bool {
	switch k.Kind {
	case KindRune:
		switch {
		case k.Mod == 0 || k.Mod == ModShift:
			e.InsertRune(k.Rune)
		case k.IsRune('a', ModCtrl):
			e.cursor = 0
		case k.IsRune('e', ModCtrl):
			e.cursor = len(e.buf)
		case k.IsRune('u', ModCtrl):
			e.KillLineStart()
		case k.IsRune('k', ModCtrl):
			e.KillLineEnd()
		case k.IsRune('w', ModCtrl):
			e.DeleteWordBackward()
		case k.IsRune('b', ModAlt):
			e.MoveWordLeft()
		case k.IsRune('f', ModAlt):
			e.MoveWordRight()
		default:
			return false
		}
	case KindPaste:
		for _, r := range stripPaste(string(k.Raw)) {
			if r >= ' ' {
				e.InsertRune(r)
			}
		}
	case KindBackspace:
		e.Backspace()
	case KindDelete:
		e.Delete()
	case KindLeft:
		if e.cursor > 0 {
			e.cursor--
		}
	case KindRight:
		if e.cursor < len(e.buf) {
			e.cursor++
		}
	case KindHome:
		e.cursor = 0
	case KindEnd:
		e.cursor = len(e.buf)
	default:
		return false
	}
	return true
}

func (e *LineEditor) InsertRune(r rune) {
	if e.cursor < 0 {
		e.cursor = 0
	}
	if e.cursor > len(e.buf) {
		e.cursor = len(e.buf)
	}
	e.buf = append(e.buf[:e.cursor], append([]rune{r}, e.buf[e.cursor:]...)...)
	e.cursor++
}

func (e *LineEditor) Backspace() {
	if e.cursor <= 0 {
		return
	}
	e.buf = append(e.buf[:e.cursor-1], e.buf[e.cursor:]...)
	e.cursor--
}

func (e *LineEditor) Delete() {
	if e.cursor < 0 || e.cursor >= len(e.buf) {
		return
	}
	e.buf = append(e.buf[:e.cursor], e.buf[e.cursor+1:]...)
}

func (e *LineEditor) MoveWordLeft() {
	i := e.cursor
	for i > 0 && isSpace(e.buf[i-1]) {
		i--
	}
	for i > 0 && !isSpace(e.buf[i-1]) {
		i--
	}
	e.cursor = i
}

func (e *LineEditor) MoveWordRight() {
	i := e.cursor
	for i < len(e.buf) && isSpace(e.buf[i]) {
		i++
	}
	for i < len(e.buf) && !isSpace(e.buf[i]) {
		i++
	}
	e.cursor = i
}

func (e *LineEditor) DeleteWordBackward() {
	start := e.cursor
	e.MoveWordLeft()
	e.buf = append(e.buf[:e.cursor], e.buf[start:]...)
}

func (e *LineEditor) KillLineStart() {
	e.buf = append([]rune(nil), e.buf[e.cursor:]...)
	e.cursor = 0
}

func (e *LineEditor) KillLineEnd() {
	e.buf = e.buf[:e.cursor]
}

func stripPaste(s string) string {
	if len(s) >= len(pasteStart) && s[:len(pasteStart)] == pasteStart {
		s = s[len(pasteStart):]
	}
	if len(s) >= len(pasteEnd) && s[len(s)-len(pasteEnd):] == pasteEnd {
		s = s[:len(s)-len(pasteEnd)]
	}
	return s
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
