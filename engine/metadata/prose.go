package metadata

import "github.com/jdkato/prose/v2"

// ProseAnalyzer extracts entities and part-of-speech tags with prose.
type ProseAnalyzer struct{}

// Analyze implements Analyzer.
func (ProseAnalyzer) Analyze(text string) (Analysis, error) {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return Analysis{}, err
	}
	var a Analysis
	for _, e := range doc.Entities() {
		a.Entities = append(a.Entities, Entity{Text: e.Text, Label: e.Label})
	}
	for _, t := range doc.Tokens() {
		a.Tokens = append(a.Tokens, Token{Text: t.Text, Tag: t.Tag})
	}
	return a, nil
}
