package normalize

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
)

var (
	pageNumberLine = regexp.MustCompile(`^[-\s]*\d+[-\s]*$`)
	pageOfLine     = regexp.MustCompile(`(?i)^Page\s+\d+\s+of\s+\d+$`)
	copyrightLine  = regexp.MustCompile(`(?i)^Copyright`)
)

// extractPDFText reads the text layer. It needs pdftotext on PATH.
func extractPDFText(raw []byte) (string, error) {
	text, _, err := docconv.ConvertPDF(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	return text, nil
}

// cleanPDF drops layout noise: page numbers, running footers and short lines.
func (n *Normalizer) cleanPDF(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "",
			pageNumberLine.MatchString(line),
			pageOfLine.MatchString(line),
			copyrightLine.MatchString(line),
			strings.HasPrefix(line, "©"),
			strings.Contains(strings.ToLower(line), "all rights reserved"),
			utf8.RuneCountInString(line) < n.minLineLength:
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
