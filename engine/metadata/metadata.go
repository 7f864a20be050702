// Package metadata derives document-level fields from normalized text.
package metadata

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/munehide1933/rag-system/engine/chunk"
	"github.com/munehide1933/rag-system/pkg/fn"
)

const (
	titleScanLines = 10
	summaryLength  = 200
	analyzeLimit   = 5000
	entityCap      = 5
	keywordCap     = 10
)

// Metadata describes one document.
type Metadata struct {
	Source    string
	WordCount int
	CharCount int
	Title     string
	Summary   string
	Entities  *Entities
	Keywords  []string
}

// Entities groups named entities by kind, at most five each.
type Entities struct {
	Persons       []string `json:"persons,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Products      []string `json:"products,omitempty"`
	Other         []string `json:"other,omitempty"`
}

// Empty reports whether no entity was found.
func (e *Entities) Empty() bool {
	return e == nil || len(e.Persons)+len(e.Organizations)+len(e.Locations)+len(e.Products)+len(e.Other) == 0
}

// Payload flattens m into vector store payload fields.
func (m Metadata) Payload() map[string]any {
	p := map[string]any{
		"source":     m.Source,
		"word_count": m.WordCount,
		"char_count": m.CharCount,
		"summary":    m.Summary,
	}
	if m.Title != "" {
		p["title"] = m.Title
	}
	if !m.Entities.Empty() {
		ents := map[string]any{}
		add := func(k string, v []string) {
			if len(v) > 0 {
				ents[k] = v
			}
		}
		add("persons", m.Entities.Persons)
		add("organizations", m.Entities.Organizations)
		add("locations", m.Entities.Locations)
		add("products", m.Entities.Products)
		add("other", m.Entities.Other)
		p["entities"] = ents
	}
	if len(m.Keywords) > 0 {
		p["keywords"] = m.Keywords
	}
	return p
}

// Entity is a named entity with its analyzer label.
type Entity struct {
	Text  string
	Label string
}

// Token is a word with its part-of-speech tag.
type Token struct {
	Text string
	Tag  string
}

// Analysis is the output of a language analyzer.
type Analysis struct {
	Entities []Entity
	Tokens   []Token
}

// Analyzer runs language analysis. Implementations may fail or panic; the
// extractor treats both as "no enrichment".
type Analyzer interface {
	Analyze(text string) (Analysis, error)
}

// Extractor computes Metadata. A nil analyzer disables enrichment.
type Extractor struct {
	analyzer     Analyzer
	cjkThreshold float64
	log          *slog.Logger
}

// New returns an Extractor.
func New(analyzer Analyzer, cjkThreshold float64, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	if cjkThreshold <= 0 {
		cjkThreshold = 0.05
	}
	return &Extractor{analyzer: analyzer, cjkThreshold: cjkThreshold, log: log}
}

// Extract never fails: enrichment errors leave only the base fields.
func (e *Extractor) Extract(text, source string) Metadata {
	m := Metadata{
		Source:    source,
		WordCount: len(strings.Fields(text)),
		CharCount: utf8.RuneCountInString(text),
		Title:     Title(text),
		Summary:   Summary(text),
	}
	if e.analyzer == nil || chunk.IsCJK(text, e.cjkThreshold) {
		return m
	}
	a, err := e.analyze(firstRunes(text, analyzeLimit))
	if err != nil {
		e.log.Warn("metadata: enrichment skipped", "source", source, "error", err)
		return m
	}
	m.Entities = bucketEntities(a.Entities)
	m.Keywords = keywords(a.Tokens)
	return m
}

func (e *Extractor) analyze(text string) (a Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("metadata: analyzer panicked: %v", r)
		}
	}()
	return e.analyzer.Analyze(text)
}

// Title returns the first of the first ten lines that is longer than 10 and
// shorter than 200 characters and does not start with a digit.
func Title(text string) string {
	lines := strings.SplitN(text, "\n", titleScanLines+1)
	for i, line := range lines {
		if i == titleScanLines {
			break
		}
		line = strings.TrimSpace(line)
		n := utf8.RuneCountInString(line)
		if n <= 10 || n >= 200 {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(line); unicode.IsDigit(r) {
			continue
		}
		return line
	}
	return ""
}

// Summary collapses whitespace and keeps the first 200 characters.
func Summary(text string) string {
	clean := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(clean) <= summaryLength {
		return clean
	}
	return firstRunes(clean, summaryLength) + "..."
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func bucketEntities(ents []Entity) *Entities {
	var out Entities
	for _, e := range ents {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		switch strings.ToUpper(e.Label) {
		case "PERSON", "PER":
			out.Persons = append(out.Persons, text)
		case "ORG", "ORGANIZATION":
			out.Organizations = append(out.Organizations, text)
		case "GPE", "LOC", "LOCATION":
			out.Locations = append(out.Locations, text)
		case "PRODUCT", "WORK_OF_ART":
			out.Products = append(out.Products, text)
		default:
			out.Other = append(out.Other, text)
		}
	}
	capped := func(v []string) []string {
		v = fn.Unique(v)
		if len(v) > entityCap {
			v = v[:entityCap]
		}
		return v
	}
	out.Persons = capped(out.Persons)
	out.Organizations = capped(out.Organizations)
	out.Locations = capped(out.Locations)
	out.Products = capped(out.Products)
	out.Other = capped(out.Other)
	if out.Empty() {
		return nil
	}
	return &out
}

var nounTags = map[string]bool{"NN": true, "NNS": true, "NNP": true, "NNPS": true}

// keywords ranks nouns longer than two characters by frequency; ties keep
// first-occurrence order.
func keywords(tokens []Token) []string {
	counts := map[string]int{}
	var order []string
	for _, t := range tokens {
		if !nounTags[t.Tag] || utf8.RuneCountInString(t.Text) <= 2 {
			continue
		}
		if counts[t.Text] == 0 {
			order = append(order, t.Text)
		}
		counts[t.Text]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > keywordCap {
		order = order[:keywordCap]
	}
	return order
}
