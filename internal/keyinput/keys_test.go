package keyinput

import (
	"bytes"
	"testing"
)

func decodeSingle(t *testing.T, input string) Key {
	t.Helper()
	keys := Decode([]byte(input))
	if len(keys) != 1 {
		t.Fatalf("input %q: expected 1 key, got %d (%v)", input, len(keys), keys)
	}
	return keys[0]
}

func TestDecodeArrows(t *testing.T) {
	cases := map[string]Kind{
		"\x1b[A": KindUp,
		"\x1b[B": KindDown,
		"\x1b[C": KindRight,
		"\x1b[D": KindLeft,
		"\x1bOA": KindUp,
		"\x1bOC": KindRight,
		"\x1b[H": KindHome,
		"\x1b[F": KindEnd,
		"\x1b[3~": KindDelete,
	}
	for input, want := range cases {
		k := decodeSingle(t, input)
		if k.Kind != want {
			t.Fatalf("input %q: expected kind %v, got %v", input, want, k.Kind)
		}
		if !bytes.Equal(k.Raw, []byte(input)) {
			t.Fatalf("input %q: expected raw passthrough, got %q", input, k.Raw)
		}
	}
}

func TestDecodeLoneEscapeAtChunkEnd(t *testing.T) {
	keys := Decode([]byte("a\x1b"))
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[1].Kind != KindEscape {
		t.Fatalf("expected escape, got %v", keys[1])
	}
}

func TestDecodeCtrlSpace(t *testing.T) {
	k := decodeSingle(t, "\x00")
	if !k.IsRune(' ', ModCtrl) {
		t.Fatalf("expected ctrl+space, got %s", k)
	}
}

func TestDecodeShiftSpaceEnhanced(t *testing.T) {
	for _, input := range []string{"\x1b[32;2u", "\x1b[27;2;32~"} {
		k := decodeSingle(t, input)
		if !k.IsRune(' ', ModShift) {
			t.Fatalf("input %q: expected shift+space, got %s", input, k)
		}
		if string(k.Raw) != " " {
			t.Fatalf("input %q: expected legacy raw space, got %q", input, k.Raw)
		}
	}
}

func TestDecodeCSIuCtrlDigitAndLetter(t *testing.T) {
	k := decodeSingle(t, "\x1b[49;5u")
	if !k.IsRune('1', ModCtrl) {
		t.Fatalf("expected ctrl+1, got %s", k)
	}
	k = decodeSingle(t, "\x1b[99;5u")
	if !k.IsRune('c', ModCtrl) || !bytes.Equal(k.Raw, []byte{0x03}) {
		t.Fatalf("expected ctrl+c with legacy ETX, got %s raw %q", k, k.Raw)
	}
	k = decodeSingle(t, "\x1b[13u")
	if k.Kind != KindEnter || string(k.Raw) != "\r" {
		t.Fatalf("expected enter, got %s raw %q", k, k.Raw)
	}
}

func TestDecodeAltKeys(t *testing.T) {
	k := decodeSingle(t, "\x1bw")
	if !k.IsRune('w', ModAlt) {
		t.Fatalf("expected alt+w, got %s", k)
	}
	k = decodeSingle(t, "\x1b]")
	if !k.IsRune(']', ModAlt) {
		t.Fatalf("expected alt+], got %s", k)
	}
	k = decodeSingle(t, "\x1b[")
	if !k.IsRune('[', ModAlt) {
		t.Fatalf("expected alt+[, got %s", k)
	}
	k = decodeSingle(t, "\x1b3")
	if !k.IsRune('3', ModAlt) {
		t.Fatalf("expected alt+3, got %s", k)
	}
}

func TestDecodeControlBytes(t *testing.T) {
	keys := Decode([]byte("ls\r\x7f\t\x03\x15"))
	want := []Kind{KindRune, KindRune, KindEnter, KindBackspace, KindTab, KindRune, KindRune}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i, k := range keys {
		if k.Kind != want[i] {
			t.Fatalf("key %d: expected %v, got %v", i, want[i], k.Kind)
		}
	}
	if !keys[5].IsRune('c', ModCtrl) || !keys[6].IsRune('u', ModCtrl) {
		t.Fatalf("expected ctrl+c and ctrl+u, got %s %s", keys[5], keys[6])
	}
}

func TestDecodeCRLFIsSingleEnter(t *testing.T) {
	keys := Decode([]byte("\r\n"))
	if len(keys) != 1 || keys[0].Kind != KindEnter {
		t.Fatalf("expected a single enter, got %v", keys)
	}
}

func TestDecodeUTF8(t *testing.T) {
	k := decodeSingle(t, "é")
	if k.Kind != KindRune || k.Rune != 'é' || string(k.Raw) != "é" {
		t.Fatalf("expected é, got %s raw %q", k, k.Raw)
	}
}

func TestDecodePaste(t *testing.T) {
	input := "\x1b[200~echo hi\x1b[201~x"
	keys := Decode([]byte(input))
	if len(keys) != 2 {
		t.Fatalf("expected paste and rune, got %d keys", len(keys))
	}
	if keys[0].Kind != KindPaste || string(keys[0].Raw) != "\x1b[200~echo hi\x1b[201~" {
		t.Fatalf("unexpected paste key %v raw %q", keys[0].Kind, keys[0].Raw)
	}
}

func TestDecodeCursorReport(t *testing.T) {
	k := decodeSingle(t, "\x1b[12;40R")
	if k.Kind != KindCursorReport || k.Row != 12 || k.Col != 40 {
		t.Fatalf("expected cpr 12;40, got %v %d;%d", k.Kind, k.Row, k.Col)
	}
}

func TestDecodeModifiedArrow(t *testing.T) {
	k := decodeSingle(t, "\x1b[1;5C")
	if k.Kind != KindRight || !k.Has(ModCtrl) {
		t.Fatalf("expected ctrl+right, got %s", k)
	}
}

func TestLineEditorApply(t *testing.T) {
	var e LineEditor
	for _, k := range Decode([]byte("hello world")) {
		e.Apply(k)
	}
	e.Apply(Key{Kind: KindRune, Rune: 'w', Mod: ModCtrl})
	if e.String() != "hello " {
		t.Fatalf("expected word deleted, got %q", e.String())
	}
	e.Apply(Key{Kind: KindHome})
	e.Apply(Key{Kind: KindRune, Rune: '>'})
	if e.String() != ">hello " || e.Cursor() != 1 {
		t.Fatalf("unexpected editor state %q cursor %d", e.String(), e.Cursor())
	}
	if e.Apply(Key{Kind: KindEnter}) {
		t.Fatalf("enter must not be consumed by the editor")
	}
	e.Apply(Key{Kind: KindPaste, Raw: []byte("\x1b[200~x y\x1b[201~")})
	if e.String() != ">x yhello " {
		t.Fatalf("unexpected paste result %q", e.String())
	}
	e.Apply(Key{Kind: KindRune, Rune: 'k', Mod: ModCtrl})
	if e.String() != ">x y" {
		t.Fatalf("expected kill to end, got %q", e.String())
	}
}
