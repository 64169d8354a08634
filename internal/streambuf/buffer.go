// Package streambuf implements the single-producer, single-consumer
// streaming dedup buffer: it collapses the
// overlapping, repeating, and prefix-extending chunks LLM CLIs emit while
// refining a response into one clean delta stream, and throttles how often
// the accumulated buffer is flushed to the channel.
package streambuf

import (
	"strings"
	"sync"
	"time"
)

// maxOverlapScan bounds how many trailing characters of the previous chunk
// are scanned for a prefix-of-incoming overlap.
const maxOverlapScan = 280

// defaultHistoryLimit is the default bound on full_content, in characters.
const defaultHistoryLimit = 200_000

// Buffer accumulates provider output chunks, deduping exact repeats,
// prefix/suffix overlaps, and prefix extensions, and throttles flushes.
type Buffer struct {
	mu sync.Mutex

	now func() time.Time

	historyLimit int
	previous     string // last raw chunk appended, for overlap detection
	pending      string // unflushed delta since the last Flush
	full         string // bounded full history across the buffer's lifetime

	lastFlushAt time.Time
	flushCount  int
	lastEmitted string // normalized dedup key of the last Flush's content
	hasFlushed  bool
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithNow overrides the buffer's clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

// WithHistoryLimit overrides the bound on full_content, in characters.
func WithHistoryLimit(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.historyLimit = n
		}
	}
}

// New returns an empty Buffer.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		now:          time.Now,
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append derives the delta between raw and the previously appended chunk
// per the four-way rule, and appends that delta to both the
// pending buffer and the bounded full history:
//
//  1. raw == previous: no delta, ignore.
//  2. raw starts with previous: delta is the trailing remainder.
//  3. previous starts with raw: raw is a truncation, ignore.
//  4. otherwise, find the longest suffix of previous that is a prefix of
//     raw (scanning at most maxOverlapScan characters) and keep raw minus
//     that overlap.
func (b *Buffer) Append(raw string) {
	if raw == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	delta := b.delta(raw)
	b.previous = raw
	if delta == "" {
		return
	}
	b.pending += delta
	b.full += delta
	if b.historyLimit > 0 && len(b.full) > b.historyLimit {
		b.full = b.full[len(b.full)-b.historyLimit:]
	}
}

func (b *Buffer) delta(raw string) string {
	if raw == b.previous {
		return ""
	}
	if strings.HasPrefix(raw, b.previous) {
		return raw[len(b.previous):]
	}
	if strings.HasPrefix(b.previous, raw) {
		return ""
	}

	prev := b.previous
	if len(prev) > maxOverlapScan {
		prev = prev[len(prev)-maxOverlapScan:]
	}
	maxN := minInt(len(prev), len(raw))
	for n := maxN; n > 0; n-- {
		if prev[len(prev)-n:] == raw[:n] {
			return raw[n:]
		}
	}
	return raw
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ShouldFlush reports whether the pending buffer is non-empty, at least
// minChars long, and at least interval has elapsed since the last flush
// (or nothing has been flushed yet).
func (b *Buffer) ShouldFlush(interval time.Duration, minChars int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 || len(b.pending) < minChars {
		return false
	}
	if !b.hasFlushed {
		return true
	}
	return b.now().Sub(b.lastFlushAt) >= interval
}

// normalizeKey is the dedup key: whitespace-normalized, lowercased.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Flush returns the pending content and clears it, unless doing so would
// emit the same normalized content as the previous flush, in which case it
// returns "" without clearing the pending buffer's flush bookkeeping state
// (callers should treat an empty return as "nothing new to emit").
func (b *Buffer) Flush() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == "" {
		return ""
	}
	key := normalizeKey(b.pending)
	if b.hasFlushed && key == b.lastEmitted {
		b.pending = ""
		return ""
	}
	out := b.pending
	b.pending = ""
	b.lastEmitted = key
	b.lastFlushAt = b.now()
	b.hasFlushed = true
	b.flushCount++
	return out
}

// FullContent returns the bounded full history accumulated so far.
func (b *Buffer) FullContent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.full
}

// FlushCount returns how many times Flush has returned non-empty content.
func (b *Buffer) FlushCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushCount
}
