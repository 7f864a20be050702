// Package normalize turns raw document bytes into clean UTF-8 text.
package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrDecode is returned when no decoding produces text.
	ErrDecode = errors.New("normalize: decode failed")
	// ErrExtract is returned when a binary PDF has no extractable text layer.
	ErrExtract = errors.New("normalize: pdf extraction failed")
)

// Type is the declared document type, derived from the file extension.
type Type string

const (
	TypeText     Type = "txt"
	TypeMarkdown Type = "md"
	TypeHTML     Type = "html"
	TypePDF      Type = "pdf"
)

// TypeOf maps a path to its document type. Unknown extensions are text.
func TypeOf(path string) Type {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return TypeMarkdown
	case ".html", ".htm":
		return TypeHTML
	case ".pdf":
		return TypePDF
	default:
		return TypeText
	}
}

// Document is a raw input file.
type Document struct {
	Source string
	Type   Type
	Raw    []byte
}

// Options configures a Normalizer.
type Options struct {
	DefaultEncoding string
	MinLineLength   int
	CustomPatterns  []string
	Logger          *slog.Logger
}

// Normalizer decodes and cleans documents. Safe for concurrent use.
type Normalizer struct {
	defaultEncoding string
	minLineLength   int
	patterns        []*regexp.Regexp
	extractPDF      func([]byte) (string, error)
	detect          func([]byte) (charset string, confidence int, err error)
	log             *slog.Logger
}

// New compiles the custom patterns and returns a Normalizer.
func New(opts Options) (*Normalizer, error) {
	n := &Normalizer{
		defaultEncoding: opts.DefaultEncoding,
		minLineLength:   opts.MinLineLength,
		extractPDF:      extractPDFText,
		detect:          detectCharset,
		log:             opts.Logger,
	}
	if n.defaultEncoding == "" {
		n.defaultEncoding = "utf-8"
	}
	if n.log == nil {
		n.log = slog.Default()
	}
	for _, p := range opts.CustomPatterns {
		re, err := regexp.Compile("(?im)" + p)
		if err != nil {
			return nil, fmt.Errorf("normalize: compile pattern %q: %w", p, err)
		}
		n.patterns = append(n.patterns, re)
	}
	return n, nil
}

var pdfMagic = []byte("%PDF-")

// Text returns the decoded text of doc before any cleaning. Binary PDFs are
// run through text extraction; everything else is decoded.
func (n *Normalizer) Text(doc Document) (string, error) {
	if doc.Type == TypePDF && bytes.HasPrefix(doc.Raw, pdfMagic) {
		text, err := n.extractPDF(doc.Raw)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrExtract, doc.Source, err)
		}
		return text, nil
	}
	return n.Decode(doc.Raw)
}

// Clean applies type-specific cleaning followed by the general pass.
func (n *Normalizer) Clean(text string, typ Type) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	switch typ {
	case TypeHTML:
		text = n.cleanHTML(text)
	case TypePDF:
		text = n.cleanPDF(text)
	}
	return strings.TrimSpace(n.generalClean(text))
}

// Normalize decodes and cleans doc.
func (n *Normalizer) Normalize(doc Document) (string, error) {
	text, err := n.Text(doc)
	if err != nil {
		return "", err
	}
	return n.Clean(text, doc.Type), nil
}

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	blankRuns    = regexp.MustCompile(`[ \t]+`)
	newlineRuns  = regexp.MustCompile(`\n{3,}`)
)

// StripControl removes ASCII control characters other than tab and newlines.
func StripControl(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

func (n *Normalizer) generalClean(text string) string {
	text = StripControl(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	for _, re := range n.patterns {
		text = re.ReplaceAllString(text, "")
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}
