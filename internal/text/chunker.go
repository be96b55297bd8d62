package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	StrategyFixedSize     = "fixed_size"
	StrategySentenceAware = "sentence_aware"
)

var (
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
	ErrInvalidChunking = errors.New("invalid chunking parameters")
)

// Chunk is one contiguous slice of a document's content. Offsets and
// sizes count characters (runes), not bytes, so multibyte text is never
// split mid-rune.
type Chunk struct {
	Text      string
	StartChar int
	EndChar   int
	Size      int
}

// Strategy splits raw text into ordered chunks. Output is deterministic
// for identical input.
type Strategy interface {
	Chunk(text string) []Chunk
}

// NewStrategy resolves a strategy by name. Unknown names and an overlap
// that is not strictly smaller than the chunk size are configuration
// errors, not retryable failures.
func NewStrategy(name string, chunkSize, overlap int) (Strategy, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < chunk_size, got overlap=%d chunk_size=%d", ErrInvalidChunking, overlap, chunkSize)
	}

	switch name {
	case StrategyFixedSize:
		return &FixedSize{chunkSize: chunkSize, overlap: overlap}, nil
	case StrategySentenceAware:
		return &SentenceAware{chunkSize: chunkSize, overlap: overlap}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// FixedSize slides a window of chunkSize characters over the text,
// stepping chunkSize-overlap each time. The last window may be shorter.
type FixedSize struct {
	chunkSize int
	overlap   int
}

func (s *FixedSize) Chunk(text string) []Chunk {
	runes := []rune(text)
	var chunks []Chunk
	step := s.chunkSize - s.overlap

	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Text:      string(runes[start:end]),
			StartChar: start,
			EndChar:   end,
			Size:      end - start,
		})
	}

	return chunks
}

// SentenceAware greedily packs whole sentences into a buffer until adding
// the next sentence would exceed chunkSize, then flushes the buffer and
// seeds the next one with the trailing overlap characters of the flushed
// chunk.
type SentenceAware struct {
	chunkSize int
	overlap   int
}

func (s *SentenceAware) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)

	var chunks []Chunk
	var current []rune
	currentStart := 0

	flush := func() {
		chunks = append(chunks, Chunk{
			Text:      strings.TrimSpace(string(current)),
			StartChar: currentStart,
			EndChar:   currentStart + len(current),
			Size:      len(current),
		})
	}

	for _, sentence := range sentences {
		sent := []rune(sentence)
		if len(current) > 0 && len(current)+len(sent) > s.chunkSize {
			flush()

			var overlapText []rune
			if s.overlap > 0 {
				if s.overlap < len(current) {
					overlapText = current[len(current)-s.overlap:]
				} else {
					overlapText = current
				}
			}
			currentStart = currentStart + len(current) - len(overlapText)
			next := make([]rune, 0, len(overlapText)+1+len(sent))
			next = append(next, overlapText...)
			next = append(next, ' ')
			current = append(next, sent...)
			continue
		}

		if len(current) > 0 {
			current = append(current, ' ')
			current = append(current, sent...)
		} else {
			current = sent
		}
	}

	if len(current) > 0 {
		flush()
	}

	return chunks
}

// Terminal punctuation followed by whitespace ends a sentence; a trailing
// run without punctuation is kept as a final sentence.
var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+(?:\s+|$)|[^.!?]+$`)

func splitSentences(text string) []string {
	matches := sentenceRe.FindAllString(text, -1)
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
