// Package graph records ingested documents and the entities they mention in
// Neo4j.
package graph

import (
	"strings"

	"github.com/munehide1933/rag-system/engine/metadata"
)

// Document is a Document node. ID is the source path.
type Document struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	Category  string   `json:"category"`
	FileType  string   `json:"file_type"`
	Chunks    int64    `json:"chunks"`
	WordCount int64    `json:"word_count"`
	Keywords  []string `json:"keywords,omitempty"`
}

// Mention is an Entity node a document links to with MENTIONS.
type Mention struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // person, organization, location, product, other
}

// FromMetadata builds the document node and its mentions from extracted
// metadata.
func FromMetadata(meta metadata.Metadata, category, fileType string, chunks int) (Document, []Mention) {
	doc := Document{
		ID:        meta.Source,
		Title:     meta.Title,
		Category:  category,
		FileType:  fileType,
		Chunks:    int64(chunks),
		WordCount: int64(meta.WordCount),
		Keywords:  meta.Keywords,
	}
	if meta.Entities.Empty() {
		return doc, nil
	}

	var mentions []Mention
	seen := map[Mention]bool{}
	add := func(kind string, names []string) {
		for _, n := range names {
			m := Mention{Name: strings.TrimSpace(n), Kind: kind}
			if m.Name == "" || seen[m] {
				continue
			}
			seen[m] = true
			mentions = append(mentions, m)
		}
	}
	e := meta.Entities
	add("person", e.Persons)
	add("organization", e.Organizations)
	add("location", e.Locations)
	add("product", e.Products)
	add("other", e.Other)
	return doc, mentions
}

func documentToMap(d Document) map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"category":   d.Category,
		"file_type":  d.FileType,
		"chunks":     d.Chunks,
		"word_count": d.WordCount,
	}
	if d.Title != "" {
		m["title"] = d.Title
	}
	if len(d.Keywords) > 0 {
		m["keywords"] = d.Keywords
	}
	return m
}

func documentFromProps(props map[string]any) Document {
	d := Document{
		ID:        strProp(props, "id"),
		Title:     strProp(props, "title"),
		Category:  strProp(props, "category"),
		FileType:  strProp(props, "file_type"),
		Chunks:    intProp(props, "chunks"),
		WordCount: intProp(props, "word_count"),
	}
	if kws, ok := props["keywords"].([]any); ok {
		for _, k := range kws {
			if s, ok := k.(string); ok {
				d.Keywords = append(d.Keywords, s)
			}
		}
	}
	return d
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func intProp(props map[string]any, key string) int64 {
	if n, ok := props[key].(int64); ok {
		return n
	}
	return 0
}
