package rag

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// Strategy names a chunking mode selectable per upload.
type Strategy string

const (
	StrategyWindowed Strategy = "windowed"
	StrategySentence Strategy = "sentence"
)

// ParseStrategy maps a user supplied name to a Strategy; empty means windowed.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyWindowed:
		return StrategyWindowed, nil
	case StrategySentence:
		return StrategySentence, nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidChunking, name)
	}
}

// Chunker splits a document into ordered chunks. Implementations are pure.
type Chunker interface {
	Chunk(text string) []Chunk
}

// NewChunker builds the chunker for a strategy. size and overlap only apply to windowed.
func NewChunker(strategy Strategy, size, overlap int) (Chunker, error) {
	switch strategy {
	case StrategyWindowed, "":
		return NewWindowedChunker(size, overlap)
	case StrategySentence:
		return SentenceChunker{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidChunking, strategy)
	}
}

// WindowedChunker cuts windows of at most size runes, snapped back to the last
// sentence end inside the window, with up to overlap runes repeated between windows.
type WindowedChunker struct {
	size    int
	overlap int
}

func NewWindowedChunker(size, overlap int) (*WindowedChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidChunking, size, overlap)
	}
	return &WindowedChunker{size: size, overlap: overlap}, nil
}

func (c *WindowedChunker) Chunk(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	var chunks []Chunk

	start := 0
	for start < n {
		ws, end := c.window(runes, start)
		if ws == n {
			break
		}

		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    strings.TrimSpace(string(runes[start:end])),
			Start:   start,
			End:     end,
		})
		if end == n {
			break
		}
		start = c.nextStart(runes, start, end)
	}
	return chunks
}

// window returns the first non-space offset at or after start and the end of
// the window beginning there, snapped back to a sentence end when one exists.
func (c *WindowedChunker) window(runes []rune, start int) (ws, end int) {
	n := len(runes)
	ws = start
	for ws < n && unicode.IsSpace(runes[ws]) {
		ws++
	}
	if ws == n {
		return n, n
	}
	end = ws + c.size
	if end >= n {
		return ws, n
	}
	if p := lastSentenceEnd(runes, ws+1, end); p >= 0 {
		end = p + 1
	}
	return ws, end
}

// nextStart backs off by overlap. When the window starting there would snap
// back to end or earlier, it restarts at end instead so every chunk moves forward.
func (c *WindowedChunker) nextStart(runes []rune, prev, end int) int {
	next := end - c.overlap
	if c.overlap == 0 || next <= prev {
		return end
	}
	if _, nextEnd := c.window(runes, next); nextEnd <= end {
		return end
	}
	return next
}

// lastSentenceEnd returns the rightmost p in [lo, hi] where runes[p] is a
// terminal mark followed by whitespace, or -1.
func lastSentenceEnd(runes []rune, lo, hi int) int {
	for p := hi; p >= lo; p-- {
		if p+1 >= len(runes) {
			continue
		}
		if isTerminal(runes[p]) && unicode.IsSpace(runes[p+1]) {
			return p
		}
	}
	return -1
}

func isTerminal(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// SentenceChunker emits one chunk per sentence with no size window.
type SentenceChunker struct{}

func (SentenceChunker) Chunk(text string) []Chunk {
	var chunks []Chunk
	emit := func(from, to int) {
		piece := strings.TrimSpace(text[from:to])
		if piece == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    piece,
			Start:   utf8.RuneCountInString(text[:from]),
			End:     utf8.RuneCountInString(text[:to]),
		})
	}

	prev := 0
	for _, m := range sentenceBoundary.FindAllStringIndex(text, -1) {
		// keep the punctuation with its sentence
		emit(prev, m[0]+1)
		prev = m[1]
	}
	emit(prev, len(text))
	return chunks
}
