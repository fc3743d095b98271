package std

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/liminalcommons/chora-cvm/internal/storage"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// CreateFocus declares what the system is attending to. Focus ids derive
// from the title slug so re-declaring the same attention is idempotent.
func CreateFocus(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	title, err := strArg(args, "title")
	if err != nil {
		return nil, err
	}

	focusID := "focus-" + slugify(title)
	persona := optStrArg(args, "persona_id", ec.PersonaID)
	if persona == "" {
		persona = "persona-resident-architect"
	}

	data := map[string]any{
		"title":       title,
		"description": optStrArg(args, "description", "Attention on: "+title),
		"status":      "active",
		"engaged_at":  time.Now().UTC().Format(time.RFC3339),
		"persona_id":  persona,
	}
	if signalID := optStrArg(args, "signal_id", ""); signalID != "" {
		data["triggered_by"] = signalID
	}
	for k, v := range optMapArg(args, "data") {
		data[k] = v
	}

	if err := ec.Store.SaveEntity(ec.Context(), focusID, "focus", data); err != nil {
		return nil, err
	}
	return map[string]any{"id": focusID, "status": "active"}, nil
}

// ResolveFocus closes an attention loop, optionally yielding a learning
// entity that captures the insight.
func ResolveFocus(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	focusID, err := strArg(args, "focus_id")
	if err != nil {
		return nil, err
	}

	focus, err := ec.Store.LoadEntity(ec.Context(), focusID)
	if err != nil {
		return nil, err
	}
	if focus == nil {
		return map[string]any{"id": focusID, "status": "not_found", "learning_id": nil}, nil
	}

	focus.Data["status"] = "resolved"
	focus.Data["resolved_at"] = time.Now().UTC().Format(time.RFC3339)
	focus.Data["outcome"] = optStrArg(args, "outcome", "completed")
	if err := ec.Store.SaveEntity(ec.Context(), focus.ID, focus.Type, focus.Data); err != nil {
		return nil, err
	}

	var learningID any
	if learningTitle := optStrArg(args, "learning_title", ""); learningTitle != "" {
		id := "learning-" + slugify(learningTitle)
		learningData := map[string]any{
			"title":         learningTitle,
			"insight":       optStrArg(args, "learning_insight", learningTitle),
			"surfaced_from": focusID,
			"surfaced_at":   time.Now().UTC().Format(time.RFC3339),
		}
		if err := ec.Store.SaveEntity(ec.Context(), id, "learning", learningData); err != nil {
			return nil, err
		}
		learningID = id
	}

	return map[string]any{"id": focusID, "status": "resolved", "learning_id": learningID}, nil
}

// ListActiveFocuses returns unresolved focus entities, optionally filtered
// by persona.
func ListActiveFocuses(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	persona := optStrArg(args, "persona_id", "")

	entities, err := ec.Store.ListEntitiesByType(ec.Context(), "focus")
	if err != nil {
		return nil, err
	}

	focuses := []any{}
	for _, e := range entities {
		if e.Data["status"] != "active" {
			continue
		}
		if persona != "" && e.Data["persona_id"] != persona {
			continue
		}
		focuses = append(focuses, map[string]any{
			"id":           e.ID,
			"title":        e.Data["title"],
			"engaged_at":   e.Data["engaged_at"],
			"triggered_by": e.Data["triggered_by"],
		})
	}
	return map[string]any{"focuses": focuses}, nil
}

// EmitSignal raises a signal entity: something demands attention.
func EmitSignal(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	title, err := strArg(args, "title")
	if err != nil {
		return nil, err
	}

	signalID := "signal-" + slugify(title)
	signalType := optStrArg(args, "signal_type", "attention")
	urgency := optStrArg(args, "urgency", "normal")

	data := map[string]any{
		"title":       title,
		"description": optStrArg(args, "description", title),
		"status":      "active",
		"signal_type": signalType,
		"urgency":     urgency,
		"emitted_at":  time.Now().UTC().Format(time.RFC3339),
	}
	if sourceID := optStrArg(args, "source_id", ""); sourceID != "" {
		data["source_id"] = sourceID
	}
	if extra := optMapArg(args, "data"); extra != nil {
		data["data"] = extra
	}

	if err := ec.Store.SaveEntity(ec.Context(), signalID, "signal", data); err != nil {
		return nil, err
	}

	if urgency == "high" || urgency == "critical" {
		ec.Emit(fmt.Sprintf("signal %s (%s): %s", signalID, urgency, title))
	}

	return map[string]any{"id": signalID, "status": "active", "signal_type": signalType}, nil
}
