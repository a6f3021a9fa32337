// Package livelog tails the orchestrator's log event stream for the live log viewer.
package livelog

import "sync"

// DefaultLimit is the number of lines a Buffer keeps by default.
const DefaultLimit = 500

// Buffer keeps the most recent lines in arrival order, evicting the oldest
// once the limit is reached. Every appended line gets a sequence number so
// readers can ask for what they have not seen yet.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	start int
	size  int
	total uint64
}

// NewBuffer creates a buffer holding at most limit lines.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Buffer{lines: make([]string, limit)}
}

// Append adds a line, evicting the oldest one when full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	limit := len(b.lines)
	if b.size < limit {
		b.lines[(b.start+b.size)%limit] = line
		b.size++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % limit
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.lines[(b.start+i)%len(b.lines)]
	}
	return out
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Limit returns the buffer capacity.
func (b *Buffer) Limit() int {
	return len(b.lines)
}

// Since returns the lines appended after the first seq lines, and the
// sequence number to ask for next time. complete is false when some of
// those lines were already evicted; lines then holds everything still
// buffered.
func (b *Buffer) Since(seq uint64) (lines []string, next uint64, complete bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := b.total - uint64(b.size)
	skip := 0
	complete = seq >= oldest
	if complete {
		if seq > b.total {
			seq = b.total
		}
		skip = int(seq - oldest)
	}

	lines = make([]string, 0, b.size-skip)
	for i := skip; i < b.size; i++ {
		lines = append(lines, b.lines[(b.start+i)%len(b.lines)])
	}
	return lines, b.total, complete
}
