package core

import "strings"

type escState int

const (
	escNone escState = iota
	escStart
	escCSI
	escSS3
)

// InputBuffer mirrors the command line being typed into a remote shell from
// the bytes sent to it. The mirror is a heuristic: it does not see shell-side
// editing such as history recall or completion and may drift until the next
// submit or clear resynchronizes it. The cursor is always at the end.
type InputBuffer struct {
	text []byte
	esc  escState

	// OnCommandExecuted receives the trimmed line on every non-empty submit.
	OnCommandExecuted func(cmd string)
	// OnChange receives the new text after a Feed that changed it.
	OnChange func(text string)
}

// Text returns the current line.
func (b *InputBuffer) Text() string {
	return string(b.text)
}

// Len returns the line length in bytes.
func (b *InputBuffer) Len() int {
	return len(b.text)
}

// Reset clears the line without submitting it.
func (b *InputBuffer) Reset() {
	changed := len(b.text) > 0
	b.text = b.text[:0]
	b.esc = escNone
	if changed && b.OnChange != nil {
		b.OnChange("")
	}
}

// Feed applies outbound bytes to the mirror.
func (b *InputBuffer) Feed(data []byte) {
	changed := false
	for _, c := range data {
		if b.skipEscape(c) {
			continue
		}
		switch {
		case c == '\r':
			cmd := strings.TrimSpace(string(b.text))
			if len(b.text) > 0 {
				changed = true
			}
			b.text = b.text[:0]
			if cmd != "" && b.OnCommandExecuted != nil {
				b.OnCommandExecuted(cmd)
			}
		case c == 0x7f || c == 0x08:
			if len(b.text) > 0 {
				b.text = b.text[:len(b.text)-1]
				changed = true
			}
		case c == 0x03 || c == 0x15 || c == '\t':
			if len(b.text) > 0 {
				b.text = b.text[:0]
				changed = true
			}
		case c >= 32 && c <= 126:
			b.text = append(b.text, c)
			changed = true
		}
	}
	// ESC ending a chunk is the Escape key, not the start of a sequence.
	if b.esc == escStart {
		b.esc = escNone
	}
	if changed && b.OnChange != nil {
		b.OnChange(string(b.text))
	}
}

// skipEscape consumes escape sequences so cursor keys and bracketed paste
// markers never reach the line.
func (b *InputBuffer) skipEscape(c byte) bool {
	switch b.esc {
	case escStart:
		switch c {
		case '[':
			b.esc = escCSI
		case 'O':
			b.esc = escSS3
		case 0x1b:
			b.esc = escStart
		default:
			b.esc = escNone
		}
		return true
	case escCSI:
		if c >= 0x40 && c <= 0x7e {
			b.esc = escNone
		}
		return true
	case escSS3:
		b.esc = escNone
		return true
	}
	if c == 0x1b {
		b.esc = escStart
		return true
	}
	return false
}
