package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/munehide1933/rag-system/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// GraphStore writes and queries the document graph.
type GraphStore struct {
	opener repo.Opener
	docs   *repo.Neo4jRepo[Document, string]
	log    *slog.Logger
}

// New creates a GraphStore on a driver.
func New(driver neo4j.DriverWithContext, log *slog.Logger) *GraphStore {
	return NewWithOpener(repo.DriverOpener{Driver: driver}, log)
}

// NewWithOpener creates a GraphStore on any session opener.
func NewWithOpener(opener repo.Opener, log *slog.Logger) *GraphStore {
	if log == nil {
		log = slog.Default()
	}
	return &GraphStore{
		opener: opener,
		docs:   repo.NewNeo4jRepo[Document, string](opener, "Document", documentToMap, documentFromRecord),
		log:    log,
	}
}

// Connect opens a driver and verifies connectivity.
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("graph: connect %s: %w", uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify %s: %w", uri, err)
	}
	return driver, nil
}

// SaveDocument merges the document node, its category and the entities it
// mentions. Re-saving a document is idempotent.
func (g *GraphStore) SaveDocument(ctx context.Context, doc Document, mentions []Mention) error {
	if err := g.docs.Merge(ctx, doc); err != nil {
		return fmt.Errorf("graph: save document %s: %w", doc.ID, err)
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	if doc.Category != "" {
		cypher := `MATCH (d:Document {id: $id})
			MERGE (c:Category {name: $category})
			MERGE (d)-[:IN_CATEGORY]->(c)`
		if _, err := sess.Run(ctx, cypher, map[string]any{"id": doc.ID, "category": doc.Category}); err != nil {
			return fmt.Errorf("graph: link category %s: %w", doc.Category, err)
		}
	}

	if len(mentions) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(mentions))
	for i, m := range mentions {
		rows[i] = map[string]any{"name": m.Name, "kind": m.Kind}
	}
	cypher := `MATCH (d:Document {id: $id})
		UNWIND $mentions AS m
		MERGE (e:Entity {name: m.name, kind: m.kind})
		MERGE (d)-[:MENTIONS]->(e)`
	if _, err := sess.Run(ctx, cypher, map[string]any{"id": doc.ID, "mentions": rows}); err != nil {
		return fmt.Errorf("graph: link %d mentions: %w", len(mentions), err)
	}
	g.log.Debug("graph: document saved", "id", doc.ID, "mentions", len(mentions))
	return nil
}

// GetDocument returns a document by source path.
func (g *GraphStore) GetDocument(ctx context.Context, id string) (Document, error) {
	return g.docs.Get(ctx, id)
}

// ListDocuments pages through document nodes ordered by ID.
func (g *GraphStore) ListDocuments(ctx context.Context, offset, limit int) ([]Document, error) {
	return g.docs.List(ctx, repo.ListOpts{Offset: offset, Limit: limit})
}

// Mentioning returns the documents that mention an entity, case-insensitive.
func (g *GraphStore) Mentioning(ctx context.Context, entity string) ([]Document, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (n:Document)-[:MENTIONS]->(e:Entity)
		WHERE toLower(e.name) = toLower($name)
		RETURN DISTINCT n ORDER BY n.id`
	result, err := sess.Run(ctx, cypher, map[string]any{"name": entity})
	if err != nil {
		return nil, fmt.Errorf("graph: mentioning %q: %w", entity, err)
	}
	var docs []Document
	for result.Next(ctx) {
		d, err := documentFromRecord(result.Record())
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// NodeCounts returns node counts grouped by label.
func (g *GraphStore) NodeCounts(ctx context.Context) (map[string]int64, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`
	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: node counts: %w", err)
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[t] = c
			}
		}
	}
	return counts, nil
}

func documentFromRecord(rec *neo4j.Record) (Document, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Document{}, fmt.Errorf("graph: read document: %w", err)
	}
	return documentFromProps(node.Props), nil
}
