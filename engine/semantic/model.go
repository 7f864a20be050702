package semantic

// VectorRecord is one point to upsert.
type VectorRecord struct {
	ID      string
	Vector  []float32
	Payload map[string]any // text, metadata
}

// Point is a stored point read back from the collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Text returns the chunk text stored in the payload.
func (p Point) Text() string {
	s, _ := p.Payload["text"].(string)
	return s
}

// Metadata returns the nested metadata payload.
func (p Point) Metadata() map[string]any {
	m, _ := p.Payload["metadata"].(map[string]any)
	return m
}

// ScoredPoint is a point ranked against a query vector.
type ScoredPoint struct {
	Point
	Score float32
}
