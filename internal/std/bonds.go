package std

import (
	"fmt"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// ManageBond projects a bond between two existing entities. The bond id is
// deterministic over (type, from, to), so re-declaring a bond updates it
// in place. Tentative bonds (confidence below 1) emit an epistemic signal.
func ManageBond(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	bondType, err := strArg(args, "bond_type")
	if err != nil {
		return nil, err
	}
	fromID, err := strArg(args, "from_id")
	if err != nil {
		return nil, err
	}
	toID, err := strArg(args, "to_id")
	if err != nil {
		return nil, err
	}

	from, err := ec.Store.LoadEntity(ec.Context(), fromID)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, types.NewError(types.ErrStorage, "entity not found: %s", fromID)
	}
	to, err := ec.Store.LoadEntity(ec.Context(), toID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, types.NewError(types.ErrStorage, "entity not found: %s", toID)
	}

	confidence := optFloatArg(args, "confidence", 1.0)
	bond := &types.Bond{
		ID:         fmt.Sprintf("rel-%s-%s-%s", bondType, slugify(fromID), slugify(toID)),
		Type:       bondType,
		FromID:     fromID,
		ToID:       toID,
		Status:     optStrArg(args, "status", types.BondStatusActive),
		Confidence: confidence,
		Data:       optMapArg(args, "data"),
	}
	if err := ec.Store.SaveBond(ec.Context(), bond); err != nil {
		return nil, err
	}

	var signalID any
	if confidence < 1.0 {
		urgency := "normal"
		if confidence >= 0.5 {
			urgency = "low"
		}
		result, err := EmitSignal(ec, map[string]any{
			"title":       fmt.Sprintf("Tentative bond created (confidence=%g)", bond.Confidence),
			"source_id":   bond.ID,
			"signal_type": "epistemic",
			"urgency":     urgency,
			"description": fmt.Sprintf("Bond %s: %s -> %s with confidence %g", bondType, fromID, toID, bond.Confidence),
		})
		if err != nil {
			return nil, err
		}
		signalID = result["id"]
	}

	return map[string]any{
		"id":         bond.ID,
		"type":       bond.Type,
		"from":       bond.FromID,
		"to":         bond.ToID,
		"status":     bond.Status,
		"confidence": bond.Confidence,
		"signal_id":  signalID,
	}, nil
}

// UpdateBondConfidence adjusts a bond's confidence, signalling when it
// drops.
func UpdateBondConfidence(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	bondID, err := strArg(args, "bond_id")
	if err != nil {
		return nil, err
	}
	confidence, err := floatArg(args, "confidence")
	if err != nil {
		return nil, err
	}

	update, err := ec.Store.UpdateBondConfidence(ec.Context(), bondID, confidence)
	if err != nil {
		return nil, err
	}
	if update == nil {
		return nil, types.NewError(types.ErrStorage, "bond not found: %s", bondID)
	}

	var signalID any
	if update.New < update.Previous {
		drop := update.Previous - update.New
		urgency := "low"
		switch {
		case drop > 0.3:
			urgency = "high"
		case drop > 0.1:
			urgency = "normal"
		}
		result, err := EmitSignal(ec, map[string]any{
			"title":       fmt.Sprintf("Bond confidence dropped (%.2f -> %.2f)", update.Previous, update.New),
			"source_id":   bondID,
			"signal_type": "epistemic",
			"urgency":     urgency,
		})
		if err != nil {
			return nil, err
		}
		signalID = result["id"]
	}

	return map[string]any{
		"id":        bondID,
		"previous":  update.Previous,
		"new":       update.New,
		"signal_id": signalID,
	}, nil
}

// GetConstellation returns the bonds around an entity in both directions.
func GetConstellation(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entityID, err := strArg(args, "entity_id")
	if err != nil {
		return nil, err
	}
	con, err := ec.Store.GetConstellation(ec.Context(), entityID)
	if err != nil {
		return nil, err
	}

	render := func(bonds []*types.Bond) []any {
		out := make([]any, 0, len(bonds))
		for _, b := range bonds {
			out = append(out, map[string]any{
				"id":         b.ID,
				"type":       b.Type,
				"from":       b.FromID,
				"to":         b.ToID,
				"status":     b.Status,
				"confidence": b.Confidence,
			})
		}
		return out
	}

	return map[string]any{
		"entity_id": entityID,
		"outgoing":  render(con.Outgoing),
		"incoming":  render(con.Incoming),
	}, nil
}

// BondsCount tallies bonds per type.
func BondsCount(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	entities, err := ec.Store.ListEntitiesByType(ec.Context(), types.TypeRelationship)
	if err != nil {
		return nil, err
	}

	byType := map[string]any{}
	for _, e := range entities {
		if bondType, ok := e.Data["bond_type"].(string); ok {
			n, _ := byType[bondType].(float64)
			byType[bondType] = n + 1
		}
	}
	return map[string]any{"counts": byType, "total": float64(len(entities))}, nil
}
