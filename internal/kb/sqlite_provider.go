package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"annopipe/internal/pipelineerrors"
)

// SQLiteProvider looks up entities in a local SQLite-backed knowledge base
// with a fixed schema: entities(normalized_text, entity_type, kb_entity_id,
// canonical_name, definition, semantic_types, relationships).
type SQLiteProvider struct {
	name string
	db   *sql.DB
}

// NewSQLiteProvider opens (or reuses) a SQLite database at path and wraps
// it as a named KB provider.
func NewSQLiteProvider(name, path string) (*SQLiteProvider, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening KB database %s: %w", path, err)
	}
	return &SQLiteProvider{name: name, db: db}, nil
}

func (p *SQLiteProvider) Name() string { return p.name }

func (p *SQLiteProvider) Close() error { return p.db.Close() }

const lookupQuery = `
SELECT kb_entity_id, canonical_name, definition, semantic_types, relationships
FROM entities
WHERE normalized_text = ? AND entity_type = ?
LIMIT 1
`

// Lookup resolves normalizedText+entityType against the entities table.
// semantic_types is stored as a comma-joined string; relationships is
// stored as a JSON object mapping relation label to a list of target
// names (e.g. {"treats":["Headache","Fever"]}), since it needs to carry
// the label dimension a flat CSV can't express.
func (p *SQLiteProvider) Lookup(ctx context.Context, normalizedText, entityType string) (Entry, error) {
	row := p.db.QueryRowContext(ctx, lookupQuery, normalizedText, entityType)

	var (
		kbEntityID, canonicalName, definition string
		semanticTypesRaw, relationshipsRaw    string
	)
	if err := row.Scan(&kbEntityID, &canonicalName, &definition, &semanticTypesRaw, &relationshipsRaw); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, pipelineerrors.ErrComponentNotFound
		}
		return Entry{}, fmt.Errorf("KB lookup query failed: %w", err)
	}

	relationships, err := parseRelationships(relationshipsRaw)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing relationships for %s/%s: %w", normalizedText, entityType, err)
	}

	return Entry{
		KBID:          p.name,
		KBEntityID:    kbEntityID,
		CanonicalName: canonicalName,
		Definition:    definition,
		SemanticTypes: splitCSV(semanticTypesRaw),
		Relationships: relationships,
	}, nil
}

// parseRelationships decodes the JSON-encoded relationships column. An
// empty string (no relationships recorded) is not an error.
func parseRelationships(raw string) (map[string][]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string][]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	out := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
