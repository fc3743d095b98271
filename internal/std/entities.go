package std

import (
	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// ManifestEntity saves one entity to the graph.
func ManifestEntity(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entityID, err := strArg(args, "entity_id")
	if err != nil {
		return nil, err
	}
	entityType, err := strArg(args, "entity_type")
	if err != nil {
		return nil, err
	}
	data, err := mapArg(args, "data")
	if err != nil {
		return nil, err
	}
	if err := ec.Store.SaveEntity(ec.Context(), entityID, entityType, data); err != nil {
		return nil, err
	}
	return map[string]any{"id": entityID, "type": entityType, "status": "manifested"}, nil
}

// ManifestEntities saves a batch of entities. Each item carries id, type,
// and data keys.
func ManifestEntities(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	items, err := listArg(args, "entities")
	if err != nil {
		return nil, err
	}

	var ids []any
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, types.NewError(types.ErrMapping, "each entity must be an object")
		}
		id, err := strArg(entry, "id")
		if err != nil {
			return nil, err
		}
		entityType, err := strArg(entry, "type")
		if err != nil {
			return nil, err
		}
		data := optMapArg(entry, "data")
		if data == nil {
			data = map[string]any{}
		}
		if err := ec.Store.SaveEntity(ec.Context(), id, entityType, data); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return map[string]any{"ids": ids, "count": float64(len(ids))}, nil
}

// EntityGet loads one entity. Missing entities report found:false rather
// than failing, so protocols can branch on the result.
func EntityGet(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entityID, err := strArg(args, "entity_id")
	if err != nil {
		return nil, err
	}
	entity, err := ec.Store.LoadEntity(ec.Context(), entityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return map[string]any{"found": false, "id": entityID}, nil
	}
	return map[string]any{
		"found": true,
		"id":    entity.ID,
		"type":  entity.Type,
		"data":  entity.Data,
	}, nil
}

// EntityUpdate merges the given fields into an existing entity's data.
func EntityUpdate(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entityID, err := strArg(args, "entity_id")
	if err != nil {
		return nil, err
	}
	updates, err := mapArg(args, "updates")
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

	for k, v := range updates {
		entity.Data[k] = v
	}
	if err := ec.Store.SaveEntity(ec.Context(), entity.ID, entity.Type, entity.Data); err != nil {
		return nil, err
	}
	return map[string]any{"id": entity.ID, "updated": true, "data": entity.Data}, nil
}

// EntitiesQuery lists entities by type tag.
func EntitiesQuery(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entityType, err := strArg(args, "entity_type")
	if err != nil {
		return nil, err
	}
	entities, err := ec.Store.ListEntitiesByType(ec.Context(), entityType)
	if err != nil {
		return nil, err
	}

	limit := optIntArg(args, "limit", 0)
	if limit > 0 && len(entities) > limit {
		entities = entities[:limit]
	}

	items := make([]any, 0, len(entities))
	for _, e := range entities {
		items = append(items, map[string]any{"id": e.ID, "type": e.Type, "data": e.Data})
	}
	return map[string]any{"entities": items, "count": float64(len(items))}, nil
}

// EntitiesCountByType tallies live entities per type tag.
func EntitiesCountByType(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	counts, err := ec.Store.CountEntitiesByType(ec.Context())
	if err != nil {
		return nil, err
	}
	byType := make(map[string]any, len(counts))
	total := 0
	for typ, n := range counts {
		byType[typ] = float64(n)
		total += n
	}
	return map[string]any{"counts": byType, "total": float64(total)}, nil
}

// ArchiveEntity composts an entity into the archive table.
func ArchiveEntity(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entityID, err := strArg(args, "entity_id")
	if err != nil {
		return nil, err
	}
	reason := optStrArg(args, "reason", "archived")
	learningID := optStrArg(args, "learning_id", "")

	rec, err := ec.Store.ArchiveEntity(ec.Context(), entityID, reason, ec.PersonaID, learningID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return map[string]any{"archived": false, "id": entityID}, nil
	}
	return map[string]any{"archived": true, "archive_id": rec.ID, "id": entityID}, nil
}

// ResurrectEntity reverses an archive move by archive record id.
func ResurrectEntity(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	archiveID, err := strArg(args, "archive_id")
	if err != nil {
		return nil, err
	}
	entity, err := ec.Store.ResurrectEntity(ec.Context(), archiveID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return map[string]any{"resurrected": false, "archive_id": archiveID}, nil
	}
	return map[string]any{"resurrected": true, "id": entity.ID, "type": entity.Type}, nil
}
