package config

import "strings"

// GeneralCategory is the fallback category name.
const GeneralCategory = "general"

// Category is a named keyword set used to auto-categorize documents.
type Category struct {
	Name        string   `yaml:"name"`
	Keywords    []string `yaml:"keywords"`
	Description string   `yaml:"description"`
}

// MatchScore is the fraction of keywords found in text, case-insensitively.
func (c Category) MatchScore(text string) float64 {
	if len(c.Keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range c.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches++
		}
	}
	return float64(matches) / float64(len(c.Keywords))
}

// CategoryByName returns the named category.
func (c Config) CategoryByName(name string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.Name == name {
			return cat, true
		}
	}
	return Category{}, false
}

// Categorize returns the best scoring category if its score reaches the
// threshold, otherwise the general category (or the first configured one).
func (c Config) Categorize(text string) Category {
	var best Category
	bestScore := 0.0
	for _, cat := range c.Categories {
		if s := cat.MatchScore(text); s > bestScore {
			best, bestScore = cat, s
		}
	}
	if bestScore > 0 && bestScore >= c.Processing.CategoryThreshold {
		return best
	}
	if g, ok := c.CategoryByName(GeneralCategory); ok {
		return g
	}
	if len(c.Categories) > 0 {
		return c.Categories[0]
	}
	return Category{Name: GeneralCategory}
}
