// Package keyinput decodes local terminal input into key events while
// keeping the raw bytes of each key for pass-through to the remote shell.
package keyinput

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind classifies a decoded key.
type Kind int

const (
	KindRune Kind = iota
	KindEnter
	KindBackspace
	KindDelete
	KindTab
	KindShiftTab
	KindEscape
	KindUp
	KindDown
	KindLeft
	KindRight
	KindHome
	KindEnd
	KindPageUp
	KindPageDown
	KindPaste
	KindCursorReport
	KindUnknown
)

// Mod is a modifier bit set.
type Mod uint8

const (
	ModShift Mod = 1 << iota
	ModAlt
	ModCtrl
)

// Key is one decoded key press.
type Key struct {
	Kind Kind
	Rune rune
	Mod  Mod
	// Raw is what the key sends to a shell that does not understand the
	// enhanced keyboard protocols.
	Raw []byte
	// Row and Col are set on KindCursorReport (1-based).
	Row int
	Col int
}

// Has reports whether m is set.
func (k Key) Has(m Mod) bool {
	return k.Mod&m != 0
}

// IsRune reports whether k is the unmodified or modified rune r with exactly
// mods set.
func (k Key) IsRune(r rune, mods Mod) bool {
	return k.Kind == KindRune && k.Rune == r && k.Mod == mods
}

// String is a short human readable name used in logs.
func (k Key) String() string {
	var b strings.Builder
	if k.Has(ModCtrl) {
		b.WriteString("ctrl+")
	}
	if k.Has(ModAlt) {
		b.WriteString("alt+")
	}
	if k.Has(ModShift) {
		b.WriteString("shift+")
	}
	switch k.Kind {
	case KindRune:
		if k.Rune == ' ' {
			b.WriteString("space")
		} else {
			b.WriteRune(k.Rune)
		}
	default:
		b.WriteString(kindNames[k.Kind])
	}
	return b.String()
}

var kindNames = map[Kind]string{
	KindEnter:        "enter",
	KindBackspace:    "backspace",
	KindDelete:       "delete",
	KindTab:          "tab",
	KindShiftTab:     "shift+tab",
	KindEscape:       "esc",
	KindUp:           "up",
	KindDown:         "down",
	KindLeft:         "left",
	KindRight:        "right",
	KindHome:         "home",
	KindEnd:          "end",
	KindPageUp:       "pgup",
	KindPageDown:     "pgdown",
	KindPaste:        "paste",
	KindCursorReport: "cpr",
	KindUnknown:      "unknown",
}

const (
	pasteStart = "\x1b[200~"
	pasteEnd   = "\x1b[201~"
)

// Decode splits one read from the terminal into keys. An ESC that ends the
// chunk is the Escape key: terminals deliver a whole sequence in one write.
func Decode(chunk []byte) []Key {
	var keys []Key
	for i := 0; i < len(chunk); {
		k, n := decodeOne(chunk[i:])
		if n <= 0 {
			n = 1
		}
		keys = append(keys, k)
		i += n
	}
	return keys
}

func decodeOne(b []byte) (Key, int) {
	c := b[0]
	raw := func(n int) []byte { return append([]byte(nil), b[:n]...) }
	switch c {
	case 0x1b:
		return decodeEscape(b)
	case '\r':
		n := 1
		if len(b) > 1 && b[1] == '\n' {
			n = 2
		}
		return Key{Kind: KindEnter, Raw: []byte{'\r'}}, n
	case 0x7f, 0x08:
		return Key{Kind: KindBackspace, Raw: raw(1)}, 1
	case 0x09:
		return Key{Kind: KindTab, Raw: raw(1)}, 1
	case 0x00:
		return Key{Kind: KindRune, Rune: ' ', Mod: ModCtrl, Raw: raw(1)}, 1
	}
	if c <= 26 {
		// Ctrl+letter: 0x01 is Ctrl+A.
		return Key{Kind: KindRune, Rune: rune('a' + c - 1), Mod: ModCtrl, Raw: raw(1)}, 1
	}
	if c < 0x20 {
		return Key{Kind: KindRune, Rune: rune(c + 0x40), Mod: ModCtrl, Raw: raw(1)}, 1
	}
	if c < utf8.RuneSelf {
		return Key{Kind: KindRune, Rune: rune(c), Raw: raw(1)}, 1
	}
	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError && size <= 1 {
		return Key{Kind: KindUnknown, Raw: raw(1)}, 1
	}
	return Key{Kind: KindRune, Rune: r, Raw: raw(size)}, size
}

func decodeEscape(b []byte) (Key, int) {
	if len(b) == 1 {
		return Key{Kind: KindEscape, Raw: []byte{0x1b}}, 1
	}
	switch b[1] {
	case '[':
		return decodeCSI(b)
	case 'O':
		return decodeSS3(b)
	case 0x1b:
		return Key{Kind: KindEscape, Raw: []byte{0x1b}}, 1
	}
	inner, n := decodeOne(b[1:])
	inner.Mod |= ModAlt
	inner.Raw = append([]byte{0x1b}, inner.Raw...)
	return inner, n + 1
}

func decodeSS3(b []byte) (Key, int) {
	if len(b) < 3 {
		return Key{Kind: KindRune, Rune: 'O', Mod: ModAlt, Raw: append([]byte(nil), b[:2]...)}, 2
	}
	raw := append([]byte(nil), b[:3]...)
	switch b[2] {
	case 'A':
		return Key{Kind: KindUp, Raw: raw}, 3
	case 'B':
		return Key{Kind: KindDown, Raw: raw}, 3
	case 'C':
		return Key{Kind: KindRight, Raw: raw}, 3
	case 'D':
		return Key{Kind: KindLeft, Raw: raw}, 3
	case 'H':
		return Key{Kind: KindHome, Raw: raw}, 3
	case 'F':
		return Key{Kind: KindEnd, Raw: raw}, 3
	}
	return Key{Kind: KindUnknown, Raw: raw}, 3
}

func decodeCSI(b []byte) (Key, int) {
	if strings.HasPrefix(string(b), pasteStart) {
		end := strings.Index(string(b), pasteEnd)
		n := len(b)
		if end >= 0 {
			n = end + len(pasteEnd)
		}
		return Key{Kind: KindPaste, Raw: append([]byte(nil), b[:n]...)}, n
	}
	// ESC [ params final
	i := 2
	for i < len(b) && (b[i] < 0x40 || b[i] > 0x7e) {
		i++
	}
	if i >= len(b) {
		if len(b) == 2 {
			return Key{Kind: KindRune, Rune: '[', Mod: ModAlt, Raw: append([]byte(nil), b...)}, 2
		}
		return Key{Kind: KindUnknown, Raw: append([]byte(nil), b...)}, len(b)
	}
	n := i + 1
	raw := append([]byte(nil), b[:n]...)
	params := string(b[2:i])
	final := b[i]
	fields := strings.Split(params, ";")
	mods := Mod(0)
	if len(fields) >= 2 {
		mods = decodeModifier(fields[1])
	}

	switch final {
	case 'A', 'B', 'C', 'D', 'H', 'F':
		kind := map[byte]Kind{'A': KindUp, 'B': KindDown, 'C': KindRight, 'D': KindLeft, 'H': KindHome, 'F': KindEnd}[final]
		if mods != 0 {
			// Keep the modified form; shells understand xterm modifiers.
			return Key{Kind: kind, Mod: mods, Raw: raw}, n
		}
		return Key{Kind: kind, Raw: raw}, n
	case 'Z':
		return Key{Kind: KindShiftTab, Raw: raw}, n
	case 'R':
		if len(fields) == 2 {
			row, errRow := strconv.Atoi(fields[0])
			col, errCol := strconv.Atoi(fields[1])
			if errRow == nil && errCol == nil {
				return Key{Kind: KindCursorReport, Row: row, Col: col, Raw: raw}, n
			}
		}
	case 'u':
		if k, ok := decodeCSIu(fields); ok {
			return k, n
		}
	case '~':
		switch fields[0] {
		case "3":
			return Key{Kind: KindDelete, Mod: mods, Raw: raw}, n
		case "5":
			return Key{Kind: KindPageUp, Mod: mods, Raw: raw}, n
		case "6":
			return Key{Kind: KindPageDown, Mod: mods, Raw: raw}, n
		case "1", "7":
			return Key{Kind: KindHome, Mod: mods, Raw: raw}, n
		case "4", "8":
			return Key{Kind: KindEnd, Mod: mods, Raw: raw}, n
		case "27":
			// modifyOtherKeys: ESC [ 27 ; mod ; code ~
			if len(fields) == 3 {
				if k, ok := decodeCSIu([]string{fields[2], fields[1]}); ok {
					return k, n
				}
			}
		}
	}
	return Key{Kind: KindUnknown, Raw: raw}, n
}

// decodeCSIu handles ESC [ code ; mod u. The key is rewritten to the bytes a
// legacy terminal would have sent so pass-through stays readable by shells.
func decodeCSIu(fields []string) (Key, bool) {
	code, err := strconv.Atoi(strings.SplitN(fields[0], ":", 2)[0])
	if err != nil || code < 0 {
		return Key{}, false
	}
	mods := Mod(0)
	if len(fields) >= 2 {
		mods = decodeModifier(fields[1])
	}
	r := rune(code)
	switch r {
	case 13:
		return Key{Kind: KindEnter, Mod: mods, Raw: []byte{'\r'}}, true
	case 9:
		if mods&ModShift != 0 {
			return Key{Kind: KindShiftTab, Raw: []byte("\x1b[Z")}, true
		}
		return Key{Kind: KindTab, Mod: mods, Raw: []byte{'\t'}}, true
	case 27:
		return Key{Kind: KindEscape, Mod: mods, Raw: []byte{0x1b}}, true
	case 127, 8:
		return Key{Kind: KindBackspace, Mod: mods, Raw: []byte{0x7f}}, true
	}
	if !utf8.ValidRune(r) {
		return Key{}, false
	}
	legacy := legacyBytes(r, mods)
	return Key{Kind: KindRune, Rune: r, Mod: mods, Raw: legacy}, true
}

func legacyBytes(r rune, mods Mod) []byte {
	var out []byte
	if mods&ModAlt != 0 {
		out = append(out, 0x1b)
	}
	if mods&ModCtrl != 0 {
		switch {
		case r >= 'a' && r <= 'z':
			return append(out, byte(r-'a'+1))
		case r >= 'A' && r <= 'Z':
			return append(out, byte(r-'A'+1))
		case r == ' ' || r == '@' || r == '2':
			return append(out, 0x00)
		}
	}
	if mods&ModShift != 0 && r >= 'a' && r <= 'z' {
		r = r - 'a' + 'A'
	}
	return utf8.AppendRune(out, r)
}

// decodeModifier parses the xterm modifier parameter (1 + bitmask).
func decodeModifier(field string) Mod {
	value, err := strconv.Atoi(strings.SplitN(field, ":", 2)[0])
	if err != nil || value <= 1 {
		return 0
	}
	bits := value - 1
	var m Mod
	if bits&1 != 0 {
		m |= ModShift
	}
	if bits&2 != 0 {
		m |= ModAlt
	}
	if bits&4 != 0 {
		m |= ModCtrl
	}
	return m
}
