package core

import "strings"

const defaultHistoryMax = 200

// historyBuffer keeps recent assistant questions for Up/Down recall.
type historyBuffer struct {
	entries []string
	max     int
	// pos is the recall cursor; len(entries) means "not recalling".
	pos   int
	draft string
}

func newHistory(max int) *historyBuffer {
	if max <= 0 {
		max = defaultHistoryMax
	}
	return &historyBuffer{max: max}
}

func (h *historyBuffer) Append(entry string) bool {
	defer h.resetRecall()
	if strings.TrimSpace(entry) == "" {
		return false
	}
	if len(h.entries) > 0 && h.entries[len(h.entries)-1] == entry {
		return false
	}
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return true
}

func (h *historyBuffer) resetRecall() {
	h.pos = len(h.entries)
	h.draft = ""
}

// Prev moves the recall cursor back and returns the entry to show. current is
// remembered as the draft when recall starts.
func (h *historyBuffer) Prev(current string) (string, bool) {
	if len(h.entries) == 0 || h.pos == 0 {
		return "", false
	}
	if h.pos >= len(h.entries) {
		h.pos = len(h.entries)
		h.draft = current
	}
	h.pos--
	return h.entries[h.pos], true
}

// Next moves the recall cursor forward; past the newest entry it returns the
// draft.
func (h *historyBuffer) Next() (string, bool) {
	if h.pos >= len(h.entries) {
		return "", false
	}
	h.pos++
	if h.pos == len(h.entries) {
		return h.draft, true
	}
	return h.entries[h.pos], true
}

func (h *historyBuffer) Entries() []string {
	return append([]string(nil), h.entries...)
}
