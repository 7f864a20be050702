// Package chunk splits normalized text into overlapping, sentence-aligned
// chunks sized for embedding.
//
// Sentence boundaries come from a ladder of strategies tried in priority
// order: a structural analyzer, a statistical (Punkt) tokenizer, a regular
// expression splitter and finally fixed-width windows. The ladder is resolved
// once from Options.Mode; a tier that is unavailable or fails hands over to
// the next one.
package chunk

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Mode selects the highest tier of the ladder.
type Mode int

const (
	ModeBest Mode = iota
	ModeStatistical
	ModeRegex
	ModeFixed
)

var modeNames = [...]string{"best", "statistical", "regex", "fixed"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
	return modeNames[m]
}

// ParseMode parses a configured mode name.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(s, n) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("chunk: unknown mode %q", s)
}

// Options configures a Chunker. Sizes are counted in characters (runes).
type Options struct {
	Size            int
	Overlap         int
	MinSize         int
	RespectSentence bool
	Mode            Mode
	// Language is "auto", "zh" or "en".
	Language       string
	UseStructural  bool
	UseStatistical bool
	// CJKThreshold is the share of CJK characters in the first 1000
	// characters above which text is treated as CJK.
	CJKThreshold float64
	Logger       *slog.Logger
}

// Chunk is one piece of a document.
type Chunk struct {
	ID    string
	Text  string
	Index int
	Total int
}

// Strategy produces chunk texts from normalized text.
type Strategy interface {
	Name() string
	// Available reports whether the strategy can run in this process.
	Available() bool
	Chunk(text string) ([]string, error)
}

// Chunker applies the resolved strategy ladder.
type Chunker struct {
	opts   Options
	ladder []Strategy
	log    *slog.Logger
}

// New resolves the strategy ladder for opts.
func New(opts Options) *Chunker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CJKThreshold <= 0 {
		opts.CJKThreshold = 0.05
	}
	c := &Chunker{opts: opts, log: opts.Logger}
	if o := sentenceOverlap(opts.Size, opts.Overlap); o != opts.Overlap {
		c.log.Warn("chunk: overlap must be smaller than chunk size, clamped", "size", opts.Size, "overlap", opts.Overlap, "using", o)
	}

	fixed := &windowStrategy{size: opts.Size, overlap: opts.Overlap, minSize: opts.MinSize}
	if !opts.RespectSentence {
		c.ladder = []Strategy{fixed}
		return c
	}

	all := []Strategy{
		c.sentences("structural", opts.UseStructural, structuralSplitter(opts.Language, opts.CJKThreshold)),
		c.sentences("statistical", opts.UseStatistical, statisticalSplit),
		c.sentences("regex", true, regexSplit),
		fixed,
	}
	c.ladder = all[min(int(opts.Mode), len(all)-1):]
	return c
}

func (c *Chunker) sentences(name string, enabled bool, split func(string) ([]string, error)) Strategy {
	return &sentenceStrategy{
		name:    name,
		enabled: enabled,
		split:   split,
		size:    c.opts.Size,
		overlap: sentenceOverlap(c.opts.Size, c.opts.Overlap),
		minSize: c.opts.MinSize,
	}
}

// sentenceOverlap bounds the tail carried into the next chunk. An overlap of
// size or more would re-seed every chunk with the whole previous one.
func sentenceOverlap(size, overlap int) int {
	if overlap < 0 {
		return 0
	}
	if size > 0 && overlap >= size {
		return size / 2
	}
	return overlap
}

// Ladder returns the names of the strategies in the order they are tried.
func (c *Chunker) Ladder() []string {
	names := make([]string, len(c.ladder))
	for i, s := range c.ladder {
		names[i] = s.Name()
	}
	return names
}

// Split returns the chunk texts for text. Text shorter than MinSize yields
// no chunks.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || utf8.RuneCountInString(trimmed) < c.opts.MinSize {
		return nil
	}
	for _, s := range c.ladder {
		if !s.Available() {
			c.log.Debug("chunk: strategy unavailable", "strategy", s.Name())
			continue
		}
		out, err := safeChunk(s, text)
		if err != nil {
			c.log.Warn("chunk: strategy failed, falling back", "strategy", s.Name(), "error", err)
			continue
		}
		return out
	}
	return nil
}

// Chunk splits text and numbers the pieces for document docID.
func (c *Chunker) Chunk(docID, text string) []Chunk {
	texts := c.Split(text)
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{
			ID:    docID + "_" + strconv.Itoa(i),
			Text:  t,
			Index: i,
			Total: len(texts),
		}
	}
	return chunks
}

// safeChunk turns a panic inside a third-party analyzer into an error.
func safeChunk(s Strategy, text string) (out []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chunk: %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Chunk(text)
}
