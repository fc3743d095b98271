package std

import (
	"strings"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// FTSIndexEntity (re)indexes one entity into the full-text surface.
func FTSIndexEntity(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entityID, err := strArg(args, "entity_id")
	if err != nil {
		return nil, err
	}

	entity, err := ec.Store.LoadEntity(ec.Context(), entityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, types.NewError(types.ErrStorage, "entity not found: %s", entityID)
	}

	title, _ := entity.Data["title"].(string)
	if title == "" {
		title, _ = entity.Data["name"].(string)
	}
	var parts []string
	for _, key := range []string{"description", "body", "content", "narrative"} {
		if v, ok := entity.Data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}

	if err := ec.Store.IndexEntity(ec.Context(), entity.ID, entity.Type, title, strings.Join(parts, "\n")); err != nil {
		return nil, err
	}
	return map[string]any{"indexed": true, "id": entityID, "fts": ec.Store.FTSEnabled()}, nil
}

// FTSSearch queries the full-text surface (degrading to LIKE scans when
// FTS5 is absent).
func FTSSearch(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	query, err := strArg(args, "query")
	if err != nil {
		return nil, err
	}
	limit := optIntArg(args, "limit", 0)

	hits, err := ec.Store.SearchEntities(ec.Context(), query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]any, 0, len(hits))
	for _, hit := range hits {
		results = append(results, map[string]any{
			"id":    hit.ID,
			"type":  hit.Type,
			"title": hit.Title,
		})
	}
	return map[string]any{"results": results, "count": float64(len(results))}, nil
}
