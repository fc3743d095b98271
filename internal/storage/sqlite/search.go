package sqlite

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/liminalcommons/chora-cvm/internal/types"
)

// ftsTypes are the entity types whose saves refresh the full-text index.
// Everything else is reachable through IndexEntity explicitly.
var ftsTypes = map[string]bool{
	"story":     true,
	"pattern":   true,
	"principle": true,
	"learning":  true,
	"focus":     true,
	"protocol":  true,
	"primitive": true,
}

// IndexEntity replaces the FTS row for an entity. A no-op when the build
// lacks FTS5.
func (s *Store) IndexEntity(ctx context.Context, id, entityType, title, body string) error {
	if !s.ftsEnabled {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entity_fts WHERE id = ?`, id); err != nil {
		return storageErr("clear fts row", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_fts (id, type, title, body) VALUES (?, ?, ?, ?)
	`, id, entityType, title, body); err != nil {
		return storageErr("index entity", err)
	}
	return nil
}

// SearchEntities queries the FTS surface, or degrades to LIKE scans over
// the live entities when FTS5 is unavailable. Results are capped by limit
// (0 means 50).
func (s *Store) SearchEntities(ctx context.Context, query string, limit int) ([]*types.SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}

	if s.ftsEnabled {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, type, title, body FROM entity_fts
			WHERE entity_fts MATCH ? LIMIT ?`, query, limit)
		if err == nil {
			defer func() { _ = rows.Close() }()
			var hits []*types.SearchHit
			for rows.Next() {
				var hit types.SearchHit
				if err := rows.Scan(&hit.ID, &hit.Type, &hit.Title, &hit.Body); err != nil {
					return nil, storageErr("scan search hit", err)
				}
				hits = append(hits, &hit)
			}
			return hits, rows.Err()
		}
		// Malformed MATCH syntax falls through to the LIKE scan rather
		// than failing the search.
	}

	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, data_json FROM entities
		WHERE id LIKE ? OR data_json LIKE ? LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, storageErr("search entities", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []*types.SearchHit
	for rows.Next() {
		var id, typ, dataJSON string
		if err := rows.Scan(&id, &typ, &dataJSON); err != nil {
			return nil, storageErr("scan search hit", err)
		}
		entity, err := decodeEntity(id, typ, dataJSON)
		if err != nil {
			return nil, err
		}
		title, _ := entityTitleBody(entity.Data)
		hits = append(hits, &types.SearchHit{ID: id, Type: typ, Title: title})
	}
	return hits, rows.Err()
}

// indexEntityOpportunistic refreshes the FTS row after a save for the
// narrative types. Index failures are reported but never fail the save.
func (s *Store) indexEntityOpportunistic(ctx context.Context, id, entityType string, data map[string]any) {
	if !s.ftsEnabled || !ftsTypes[entityType] {
		return
	}
	title, body := entityTitleBody(data)
	if err := s.IndexEntity(ctx, id, entityType, title, body); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to index %s: %v\n", id, err)
	}
}

// entityTitleBody extracts the searchable text of an entity payload.
func entityTitleBody(data map[string]any) (title, body string) {
	for _, key := range []string{"title", "name"} {
		if v, ok := data[key].(string); ok && v != "" {
			title = v
			break
		}
	}
	var parts []string
	for _, key := range []string{"description", "body", "content", "narrative"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return title, strings.Join(parts, "\n")
}
