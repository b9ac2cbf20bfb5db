package repl

// DefaultHistorySize is the number of lines kept by default.
const DefaultHistorySize = 500

// History keeps the lines entered in one shell session. It is never
// written to disk: lines carry labels and usernames.
type History struct {
	entries []string
	maxSize int
}

// NewHistory creates a History holding at most maxSize lines.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = DefaultHistorySize
	}
	return &History{maxSize: maxSize}
}

// Add appends a line. A repeat of the previous line is dropped.
func (h *History) Add(line string) {
	if n := len(h.entries); n > 0 && h.entries[n-1] == line {
		return
	}
	h.entries = append(h.entries, line)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[len(h.entries)-h.maxSize:]
	}
}

// Get returns the entry at index, 0 being the most recent.
func (h *History) Get(index int) string {
	if index < 0 || index >= len(h.entries) {
		return ""
	}
	return h.entries[len(h.entries)-1-index]
}

// Entries returns the lines oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Len returns the number of lines kept.
func (h *History) Len() int {
	return len(h.entries)
}
