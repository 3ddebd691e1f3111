package chunker

import (
	"fmt"
	"strings"

	"github.com/lessonlens/lessonlens/internal/domain/entities"
	"github.com/lessonlens/lessonlens/pkg/config"
)

// Options control chunk boundaries
type Options struct {
	MinWords                   int
	MaxWords                   int
	OverlapWords               int
	PreserveSentenceBoundaries bool
}

// OptionsFromConfig maps the chunking configuration onto chunker options
func OptionsFromConfig(cfg config.ChunkingConfig) Options {
	return Options{
		MinWords:                   cfg.MinWords,
		MaxWords:                   cfg.MaxWords,
		OverlapWords:               cfg.OverlapWords,
		PreserveSentenceBoundaries: cfg.PreserveSentenceBoundaries,
	}
}

func (o Options) validate() error {
	if o.MinWords < 1 {
		return fmt.Errorf("min words must be at least 1, got %d", o.MinWords)
	}
	if o.MaxWords < o.MinWords {
		return fmt.Errorf("max words (%d) must not be below min words (%d)", o.MaxWords, o.MinWords)
	}
	if o.OverlapWords < 0 || o.OverlapWords >= o.MaxWords {
		return fmt.Errorf("overlap words (%d) must be in [0, max words)", o.OverlapWords)
	}
	return nil
}

// timedWord carries a word together with the time range of the segment it
// came from, so chunk boundaries can land mid-segment without losing
// timestamps.
type timedWord struct {
	text  string
	start float64
	end   float64
	seg   int
}

// Chunk splits timestamped transcript segments into ordered, overlapping
// chunks. Pure and deterministic: identical input and options always
// produce identical boundaries.
//
// A chunk closes once it reaches MaxWords; with sentence preservation the
// close point is pulled back to the nearest sentence terminator, provided
// that keeps at least MinWords. Each following chunk starts with the last
// OverlapWords words of its predecessor. A single segment longer than
// MaxWords is emitted as its own chunk rather than split or dropped, and a
// transcript shorter than MinWords produces exactly one chunk.
func Chunk(segments []entities.TranscriptSegment, opts Options) ([]*entities.Chunk, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var chunkSets [][]timedWord
	oversized := make(map[int]bool)
	var current []timedWord
	overlapLen := 0

	emit := func() {
		chunkSets = append(chunkSets, current)
		tail := overlapTail(current, opts.OverlapWords)
		current = append([]timedWord{}, tail...)
		overlapLen = len(current)
	}

	for si, seg := range segments {
		fields := strings.Fields(seg.Text)
		if len(fields) == 0 {
			continue
		}
		words := make([]timedWord, len(fields))
		for i, f := range fields {
			words[i] = timedWord{text: f, start: seg.StartTime, end: seg.EndTime, seg: si}
		}

		if len(words) > opts.MaxWords {
			// Oversized segment: close whatever is pending, then emit
			// the segment whole.
			if len(current) > overlapLen {
				emit()
			}
			current = append(current, words...)
			oversized[len(chunkSets)] = true
			emit()
			continue
		}

		for _, w := range words {
			current = append(current, w)
			if len(current) >= opts.MaxWords {
				closed, remainder := splitAtSentence(current, opts)
				current = closed
				emit()
				current = append(current, remainder...)
			}
		}
	}

	if len(current) > overlapLen {
		chunkSets = append(chunkSets, current)
	}

	if len(chunkSets) == 0 {
		return nil, fmt.Errorf("transcript contains no words")
	}

	chunks := make([]*entities.Chunk, len(chunkSets))
	for i, words := range chunkSets {
		chunks[i] = assemble(i, words)
	}

	if err := validateChunks(chunks, opts, oversized); err != nil {
		return nil, err
	}
	return chunks, nil
}

// overlapTail returns the last n words of a closed chunk, never the whole
// chunk, so the next chunk always carries new content.
func overlapTail(words []timedWord, n int) []timedWord {
	if n <= 0 || len(words) <= 1 {
		return nil
	}
	if n >= len(words) {
		n = len(words) - 1
	}
	return words[len(words)-n:]
}

// splitAtSentence pulls the close point back to the nearest sentence
// terminator when that keeps the chunk at or above MinWords. The cut-off
// words are returned as a remainder for the next chunk.
func splitAtSentence(words []timedWord, opts Options) (closed, remainder []timedWord) {
	if !opts.PreserveSentenceBoundaries {
		return words, nil
	}
	for i := len(words) - 1; i >= opts.MinWords-1; i-- {
		if endsSentence(words[i].text) {
			return words[:i+1], words[i+1:]
		}
	}
	return words, nil
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"')]`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func assemble(index int, words []timedWord) *entities.Chunk {
	texts := make([]string, len(words))
	start := words[0].start
	end := words[0].end
	for i, w := range words {
		texts[i] = w.text
		if w.start < start {
			start = w.start
		}
		if w.end > end {
			end = w.end
		}
	}
	return &entities.Chunk{
		ChunkIndex: index,
		Text:       strings.Join(texts, " "),
		StartTime:  start,
		EndTime:    end,
		WordCount:  len(words),
	}
}

// validateChunks asserts the structural invariants. The chunker is pure,
// so a violation here is a bug, not a recoverable input condition.
func validateChunks(chunks []*entities.Chunk, opts Options, oversized map[int]bool) error {
	bound := opts.MaxWords + opts.OverlapWords
	prevStart := -1.0
	for i, c := range chunks {
		if c.ChunkIndex != i {
			return fmt.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if c.WordCount < 1 {
			return fmt.Errorf("chunk %d is empty", i)
		}
		if !oversized[i] && c.WordCount > bound {
			return fmt.Errorf("chunk %d has %d words, bound is %d", i, c.WordCount, bound)
		}
		if c.StartTime < prevStart {
			return fmt.Errorf("chunk %d starts at %.2f before its predecessor at %.2f", i, c.StartTime, prevStart)
		}
		if c.EndTime < c.StartTime {
			return fmt.Errorf("chunk %d ends at %.2f before it starts at %.2f", i, c.EndTime, c.StartTime)
		}
		prevStart = c.StartTime
	}
	return nil
}
