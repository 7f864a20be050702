package chunk

import (
	"strings"
	"unicode/utf8"
)

type sentenceStrategy struct {
	name    string
	enabled bool
	split   func(string) ([]string, error)

	size, overlap, minSize int
}

func (s *sentenceStrategy) Name() string    { return s.name }
func (s *sentenceStrategy) Available() bool { return s.enabled }

func (s *sentenceStrategy) Chunk(text string) ([]string, error) {
	sentences, err := s.split(text)
	if err != nil {
		return nil, err
	}
	return assemble(sentences, s.size, s.overlap, s.minSize), nil
}

// assemble packs sentences into chunks of at most size characters, not
// counting the joining spaces. A closed chunk seeds the next one with its
// last overlap characters. Sentences are never split, so a sentence longer
// than size becomes an oversized chunk of its own. Chunks shorter than
// minSize are dropped.
func assemble(sentences []string, size, overlap, minSize int) []string {
	var (
		chunks  []string
		current []string
		curSize int
	)
	flush := func() string {
		text := strings.Join(current, " ")
		if utf8.RuneCountInString(text) >= minSize {
			chunks = append(chunks, text)
		}
		return text
	}

	for _, sent := range sentences {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		n := utf8.RuneCountInString(sent)
		if curSize+n > size && len(current) > 0 {
			closed := flush()
			if overlap > 0 {
				tail := lastRunes(closed, overlap)
				current = []string{tail, sent}
				curSize = utf8.RuneCountInString(tail) + n
			} else {
				current = []string{sent}
				curSize = n
			}
			continue
		}
		current = append(current, sent)
		curSize += n
	}
	if len(current) > 0 {
		flush()
	}
	return chunks
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// windowStrategy cuts fixed-width character windows. It is the final
// fallback and ignores sentence boundaries.
type windowStrategy struct {
	size, overlap, minSize int
}

func (w *windowStrategy) Name() string    { return "fixed" }
func (w *windowStrategy) Available() bool { return true }

func (w *windowStrategy) Chunk(text string) ([]string, error) {
	return windows(text, w.size, w.overlap, w.minSize), nil
}

// windows advances by size-overlap and stops once a window reaches the end
// of the text. A non-positive step yields a single window.
func windows(text string, size, overlap, minSize int) []string {
	runes := []rune(text)
	if size <= 0 {
		size = len(runes)
	}
	step := size - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" && utf8.RuneCountInString(piece) >= minSize {
			out = append(out, piece)
		}
		if end >= len(runes) || step <= 0 {
			break
		}
	}
	return out
}
