package chunk

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/clipperhouse/uax29/v2/sentences"
	"github.com/jdkato/prose/v2"
	punkt "github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// structuralBatch bounds the text handed to the structural analyzer at once.
const structuralBatch = 100_000

// cjkSample is the number of leading characters inspected by IsCJK.
const cjkSample = 1000

// IsCJK reports whether the share of CJK characters among the first 1000
// characters of text exceeds threshold.
func IsCJK(text string, threshold float64) bool {
	total, cjk := 0, 0
	for _, r := range text {
		if total == cjkSample {
			break
		}
		total++
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		}
	}
	if total == 0 {
		return false
	}
	return float64(cjk)/float64(total) > threshold
}

// structuralSplitter picks the CJK or general analyzer per document.
func structuralSplitter(language string, threshold float64) func(string) ([]string, error) {
	return func(text string) ([]string, error) {
		cjk := IsCJK(text, threshold)
		switch strings.ToLower(language) {
		case "zh", "ja", "ko", "cjk":
			cjk = true
		case "en":
			cjk = false
		}
		var out []string
		for _, batch := range runeBatches(text, structuralBatch) {
			var (
				sents []string
				err   error
			)
			if cjk {
				sents = uaxSentences(batch)
			} else {
				sents, err = proseSentences(batch)
			}
			if err != nil {
				return nil, err
			}
			out = append(out, sents...)
		}
		return out, nil
	}
}

func runeBatches(text string, n int) []string {
	runes := []rune(text)
	if len(runes) <= n {
		return []string{text}
	}
	var out []string
	for i := 0; i < len(runes); i += n {
		out = append(out, string(runes[i:min(i+n, len(runes))]))
	}
	return out
}

func proseSentences(text string) ([]string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil, err
	}
	sents := doc.Sentences()
	out := make([]string, len(sents))
	for i, s := range sents {
		out[i] = s.Text
	}
	return out, nil
}

// uaxSentences applies Unicode sentence boundaries, which handle CJK
// terminators without relying on whitespace.
func uaxSentences(text string) []string {
	var out []string
	seg := sentences.FromString(text)
	for seg.Next() {
		out = append(out, seg.Value())
	}
	return out
}

var (
	punktOnce      sync.Once
	punktTokenizer *punkt.DefaultSentenceTokenizer
	punktErr       error
)

// statisticalSplit uses the pretrained English Punkt model.
func statisticalSplit(text string) ([]string, error) {
	punktOnce.Do(func() {
		punktTokenizer, punktErr = english.NewSentenceTokenizer(nil)
	})
	if punktErr != nil {
		return nil, punktErr
	}
	sents := punktTokenizer.Tokenize(text)
	out := make([]string, len(sents))
	for i, s := range sents {
		out[i] = s.Text
	}
	return out, nil
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+|[。！？]\s*`)

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "fig": true,
	"no": true, "e.g": true, "i.e": true, "inc": true, "ltd": true,
}

var dottedAcronym = regexp.MustCompile(`^(\pL\.){2,}$`)

// regexSplit cuts after terminal punctuation followed by whitespace, or after
// a CJK terminator, unless the text before the cut ends in an abbreviation.
func regexSplit(text string) ([]string, error) {
	var out []string
	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if endsWithAbbreviation(text[start:m[1]]) {
			continue
		}
		out = append(out, text[start:m[1]])
		start = m[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out, nil
}

func endsWithAbbreviation(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, ".") {
		return false
	}
	word := s
	if i := strings.LastIndexFunc(s, unicode.IsSpace); i >= 0 {
		word = s[i+1:]
	}
	word = strings.TrimLeft(word, "(\"'")
	if dottedAcronym.MatchString(word) {
		return true
	}
	bare := strings.ToLower(strings.TrimSuffix(word, "."))
	if abbreviations[bare] {
		return true
	}
	// Initials such as "J." in "J. Smith".
	r := []rune(bare)
	return len(r) == 1 && unicode.IsLetter(r[0])
}
