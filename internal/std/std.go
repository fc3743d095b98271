// Package std is the builtin primitive library. Every handler here is
// addressable from primitive entities through its symbol table ref
// (e.g. handler_ref "std.sys_log").
package std

import (
	"fmt"
	"strings"

	"github.com/liminalcommons/chora-cvm/internal/registry"
	"github.com/liminalcommons/chora-cvm/internal/storage"
)

// Symbols returns the handler table primitives resolve against.
func Symbols() map[string]registry.Handler {
	return map[string]registry.Handler{
		"std.sys_log":   SysLog,
		"std.ui_render": UIRender,
		"std.identity":  Identity,

		"std.manifest_entity":        ManifestEntity,
		"std.manifest_entities":      ManifestEntities,
		"std.entity_get":             EntityGet,
		"std.entity_update":          EntityUpdate,
		"std.entities_query":         EntitiesQuery,
		"std.entities_count_by_type": EntitiesCountByType,

		"std.create_focus":        CreateFocus,
		"std.resolve_focus":       ResolveFocus,
		"std.list_active_focuses": ListActiveFocuses,
		"std.emit_signal":         EmitSignal,

		"std.manage_bond":            ManageBond,
		"std.update_bond_confidence": UpdateBondConfidence,
		"std.get_constellation":      GetConstellation,
		"std.bonds_count":            BondsCount,

		"std.archive_entity":   ArchiveEntity,
		"std.resurrect_entity": ResurrectEntity,

		"std.fts_index_entity": FTSIndexEntity,
		"std.fts_search":       FTSSearch,

		"std.json_get":         JSONGet,
		"std.uuid_short":       UUIDShort,
		"std.timestamp_now":    TimestampNow,
		"std.timestamp_offset": TimestampOffset,
		"std.string_format":    StringFormat,
		"std.string_join":      StringJoin,
		"std.list_length":      ListLength,
		"std.list_sum":         ListSum,
		"std.list_slice":       ListSlice,
		"std.list_map":         ListMap,
		"std.list_sort_by":     ListSortBy,

		"std.vector_pack":              VectorPack,
		"std.vector_unpack":            VectorUnpack,
		"std.vector_cosine_similarity": VectorCosineSimilarity,
		"std.vector_mean":              VectorMean,
		"std.embedding_get":            EmbeddingGet,
	}
}

// SysLog writes a log line through the output membrane.
func SysLog(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	message, err := strArg(args, "message")
	if err != nil {
		return nil, err
	}
	level := optStrArg(args, "level", "info")
	ec.Emit(fmt.Sprintf("[CVM %s] %s", level, message))
	return map[string]any{"logged": true}, nil
}

// UIRender sends user-facing output through the membrane sink. Protocols
// route all presentation here so the CLI can print and the API can buffer
// the same lines. Styles: plain, box, heading, success, warning, error.
func UIRender(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	content, err := strArg(args, "content")
	if err != nil {
		return nil, err
	}
	style := optStrArg(args, "style", "plain")
	title := optStrArg(args, "title", "")

	switch style {
	case "box":
		const width = 60
		bar := strings.Repeat("─", width-2)
		ec.Emit("╭" + bar + "╮")
		if title != "" {
			ec.Emit(fmt.Sprintf("│  %-*s│", width-5, title))
			ec.Emit("╰" + bar + "╯")
		}
		ec.Emit("")
		for _, line := range strings.Split(content, "\n") {
			ec.Emit("  " + line)
		}
		ec.Emit("")
	case "heading":
		ec.Emit("")
		ec.Emit("## " + content)
		ec.Emit("")
	case "success":
		ec.Emit("✓ " + content)
	case "warning":
		ec.Emit("⚠ " + content)
	case "error":
		ec.Emit("✗ " + content)
	default:
		ec.Emit(content)
	}

	return map[string]any{"status": "success", "rendered": true}, nil
}

// Identity returns its input unchanged. Useful as a pass-through node and
// for routing values into memory ahead of a conditional edge.
func Identity(ec *storage.ExecutionContext, args map[string]any) (map[string]any, error) {
	if value, ok := args["value"]; ok {
		return map[string]any{"value": value}, nil
	}
	return args, nil
}
