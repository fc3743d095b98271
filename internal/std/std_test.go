package std

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/storage/sqlite"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

func setupContext(t *testing.T) (*storage.ExecutionContext, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "cvm-std-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	store, err := sqlite.New(context.Background(), filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	ec := &storage.ExecutionContext{
		DBPath: store.Path(),
		Store:  store,
	}
	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return ec, cleanup
}

func TestSysLogRoutesThroughSink(t *testing.T) {
	var lines []string
	ec := &storage.ExecutionContext{Sink: func(s string) { lines = append(lines, s) }}

	result, err := SysLog(ec, map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("SysLog failed: %v", err)
	}
	if result["logged"] != true {
		t.Errorf("result = %v", result)
	}
	if len(lines) != 1 || lines[0] != "[CVM info] hello" {
		t.Errorf("sink = %v", lines)
	}
}

func TestSysLogMissingMessage(t *testing.T) {
	_, err := SysLog(&storage.ExecutionContext{}, map[string]any{})
	if types.KindOf(err, "") != types.ErrMapping {
		t.Errorf("error = %v, want mapping_error", err)
	}
}

func TestManifestAndGetEntity(t *testing.T) {
	ec, cleanup := setupContext(t)
	defer cleanup()

	result, err := ManifestEntity(ec, map[string]any{
		"entity_id":   "story-1",
		"entity_type": "story",
		"data":        map[string]any{"title": "T"},
	})
	if err != nil {
		t.Fatalf("ManifestEntity failed: %v", err)
	}
	if result["status"] != "manifested" {
		t.Errorf("result = %v", result)
	}

	got, err := EntityGet(ec, map[string]any{"entity_id": "story-1"})
	if err != nil {
		t.Fatalf("EntityGet failed: %v", err)
	}
	if got["found"] != true || got["type"] != "story" {
		t.Errorf("got = %v", got)
	}

	missing, err := EntityGet(ec, map[string]any{"entity_id": "nope"})
	if err != nil {
		t.Fatalf("EntityGet failed: %v", err)
	}
	if missing["found"] != false {
		t.Errorf("missing = %v", missing)
	}
}

func TestEntityUpdateMerges(t *testing.T) {
	ec, cleanup := setupContext(t)
	defer cleanup()

	if _, err := ManifestEntity(ec, map[string]any{
		"entity_id": "e1", "entity_type": "story",
		"data": map[string]any{"title": "T", "points": float64(1)},
	}); err != nil {
		t.Fatalf("ManifestEntity failed: %v", err)
	}

	result, err := EntityUpdate(ec, map[string]any{
		"entity_id": "e1",
		"updates":   map[string]any{"points": float64(3)},
	})
	if err != nil {
		t.Fatalf("EntityUpdate failed: %v", err)
	}
	data := result["data"].(map[string]any)
	if data["points"] != float64(3) || data["title"] != "T" {
		t.Errorf("data = %v", data)
	}
}

func TestCreateAndResolveFocus(t *testing.T) {
	ec, cleanup := setupContext(t)
	defer cleanup()

	created, err := CreateFocus(ec, map[string]any{"title": "Ship the VM"})
	if err != nil {
		t.Fatalf("CreateFocus failed: %v", err)
	}
	if created["id"] != "focus-ship-the-vm" {
		t.Errorf("id = %v, want slugged title", created["id"])
	}

	active, err := ListActiveFocuses(ec, map[string]any{})
	if err != nil {
		t.Fatalf("ListActiveFocuses failed: %v", err)
	}
	if n := len(active["focuses"].([]any)); n != 1 {
		t.Errorf("active = %d, want 1", n)
	}

	resolved, err := ResolveFocus(ec, map[string]any{
		"focus_id":       "focus-ship-the-vm",
		"outcome":        "completed",
		"learning_title": "Graphs beat pipelines",
	})
	if err != nil {
		t.Fatalf("ResolveFocus failed: %v", err)
	}
	if resolved["status"] != "resolved" {
		t.Errorf("resolved = %v", resolved)
	}
	if resolved["learning_id"] != "learning-graphs-beat-pipelines" {
		t.Errorf("learning_id = %v", resolved["learning_id"])
	}

	active, _ = ListActiveFocuses(ec, map[string]any{})
	if n := len(active["focuses"].([]any)); n != 0 {
		t.Errorf("active after resolve = %d, want 0", n)
	}
}

func TestManageBondRequiresEndpoints(t *testing.T) {
	ec, cleanup := setupContext(t)
	defer cleanup()

	_, err := ManageBond(ec, map[string]any{
		"bond_type": "serves", "from_id": "a", "to_id": "b",
	})
	if types.KindOf(err, "") != types.ErrStorage {
		t.Errorf("error = %v, want storage_error for missing endpoints", err)
	}
}

func TestManageBondTentativeEmitsSignal(t *testing.T) {
	ec, cleanup := setupContext(t)
	defer cleanup()

	for _, id := range []string{"a", "b"} {
		if err := ec.Store.SaveEntity(ec.Context(), id, "story", map[string]any{}); err != nil {
			t.Fatalf("SaveEntity failed: %v", err)
		}
	}

	result, err := ManageBond(ec, map[string]any{
		"bond_type": "serves", "from_id": "a", "to_id": "b",
		"confidence": 0.4,
	})
	if err != nil {
		t.Fatalf("ManageBond failed: %v", err)
	}
	if result["signal_id"] == nil {
		t.Error("tentative bond did not emit a signal")
	}

	// Full-confidence bonds stay quiet.
	quiet, err := ManageBond(ec, map[string]any{
		"bond_type": "blocks", "from_id": "a", "to_id": "b",
	})
	if err != nil {
		t.Fatalf("ManageBond failed: %v", err)
	}
	if quiet["signal_id"] != nil {
		t.Errorf("confident bond emitted signal %v", quiet["signal_id"])
	}
}

func TestUpdateBondConfidenceDropSignals(t *testing.T) {
	ec, cleanup := setupContext(t)
	defer cleanup()

	for _, id := range []string{"a", "b"} {
		if err := ec.Store.SaveEntity(ec.Context(), id, "story", map[string]any{}); err != nil {
			t.Fatalf("SaveEntity failed: %v", err)
		}
	}
	created, err := ManageBond(ec, map[string]any{
		"bond_type": "serves", "from_id": "a", "to_id": "b",
	})
	if err != nil {
		t.Fatalf("ManageBond failed: %v", err)
	}

	result, err := UpdateBondConfidence(ec, map[string]any{
		"bond_id": created["id"], "confidence": 0.2,
	})
	if err != nil {
		t.Fatalf("UpdateBondConfidence failed: %v", err)
	}
	if result["previous"] != float64(1) || result["new"] != 0.2 {
		t.Errorf("result = %v", result)
	}
	if result["signal_id"] == nil {
		t.Error("large confidence drop did not signal")
	}
}

func TestJSONGet(t *testing.T) {
	data := map[string]any{"user": map[string]any{"name": "Alice"}}

	result, err := JSONGet(nil, map[string]any{"data": data, "path": "user.name"})
	if err != nil {
		t.Fatalf("JSONGet failed: %v", err)
	}
	if result["value"] != "Alice" || result["found"] != true {
		t.Errorf("result = %v", result)
	}

	result, _ = JSONGet(nil, map[string]any{"data": data, "path": "user.age", "default": float64(0)})
	if result["found"] != false || result["value"] != float64(0) {
		t.Errorf("default result = %v", result)
	}
}

func TestStringFormat(t *testing.T) {
	result, err := StringFormat(nil, map[string]any{
		"template": "Hello {name}, {missing}!",
		"values":   map[string]any{"name": "World"},
	})
	if err != nil {
		t.Fatalf("StringFormat failed: %v", err)
	}
	if result["result"] != "Hello World, {missing}!" {
		t.Errorf("result = %v", result["result"])
	}
	if result["missing"] == nil {
		t.Error("missing placeholders not reported")
	}
}

func TestListPrimitives(t *testing.T) {
	items := []any{float64(1), float64(2), float64(3), "x"}

	length, _ := ListLength(nil, map[string]any{"items": items})
	if length["length"] != float64(4) {
		t.Errorf("length = %v", length)
	}

	sum, _ := ListSum(nil, map[string]any{"items": items})
	if sum["sum"] != float64(6) {
		t.Errorf("sum = %v", sum)
	}

	sliced, _ := ListSlice(nil, map[string]any{"items": items, "start": float64(1), "end": float64(3)})
	if sliced["length"] != float64(2) {
		t.Errorf("slice = %v", sliced)
	}

	joined, _ := StringJoin(nil, map[string]any{"items": []any{"a", "b"}, "separator": "-"})
	if joined["result"] != "a-b" {
		t.Errorf("join = %v", joined)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	packed, err := VectorPack(nil, map[string]any{
		"vector_list": []any{float64(1), float64(0), float64(0)},
	})
	if err != nil {
		t.Fatalf("VectorPack failed: %v", err)
	}
	raw := packed["vector"].([]byte)
	if len(raw) != 12 {
		t.Fatalf("packed %d bytes, want 12", len(raw))
	}

	unpacked, err := VectorUnpack(nil, map[string]any{"vector": raw, "dimension": float64(3)})
	if err != nil {
		t.Fatalf("VectorUnpack failed: %v", err)
	}
	list := unpacked["vector_list"].([]any)
	if list[0] != float64(1) || list[1] != float64(0) {
		t.Errorf("unpacked = %v", list)
	}
}

func TestVectorCosineSimilarity(t *testing.T) {
	a := packVector([]float64{1, 0})
	b := packVector([]float64{1, 0})
	c := packVector([]float64{0, 1})

	same, err := VectorCosineSimilarity(nil, map[string]any{
		"vector_a": a, "vector_b": b, "dimension": float64(2),
	})
	if err != nil {
		t.Fatalf("VectorCosineSimilarity failed: %v", err)
	}
	if same["similarity"] != float64(1) {
		t.Errorf("identical similarity = %v, want 1", same["similarity"])
	}

	orthogonal, _ := VectorCosineSimilarity(nil, map[string]any{
		"vector_a": a, "vector_b": c, "dimension": float64(2),
	})
	if orthogonal["similarity"] != float64(0) {
		t.Errorf("orthogonal similarity = %v, want 0", orthogonal["similarity"])
	}
}

func TestVectorMean(t *testing.T) {
	vectors := []any{packVector([]float64{0, 2}), packVector([]float64{2, 0})}

	result, err := VectorMean(nil, map[string]any{"vectors": vectors, "dimension": float64(2)})
	if err != nil {
		t.Fatalf("VectorMean failed: %v", err)
	}
	mean, err := unpackVector(result["vector"].([]byte), 2)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if mean[0] != 1 || mean[1] != 1 {
		t.Errorf("mean = %v, want [1 1]", mean)
	}
}

func TestEmbeddingGet(t *testing.T) {
	ec, cleanup := setupContext(t)
	defer cleanup()

	if err := ec.Store.SaveEntity(ec.Context(), "e1", "story", map[string]any{}); err != nil {
		t.Fatalf("SaveEntity failed: %v", err)
	}
	if err := ec.Store.SaveEmbedding(ec.Context(), "e1", "m", packVector([]float64{1}), 1); err != nil {
		t.Fatalf("SaveEmbedding failed: %v", err)
	}

	result, err := EmbeddingGet(ec, map[string]any{"entity_id": "e1"})
	if err != nil {
		t.Fatalf("EmbeddingGet failed: %v", err)
	}
	if result["found"] != true || result["model_name"] != "m" {
		t.Errorf("result = %v", result)
	}

	missing, _ := EmbeddingGet(ec, map[string]any{"entity_id": "ghost"})
	if missing["found"] != false {
		t.Errorf("missing = %v", missing)
	}
}

func TestTimestampOffset(t *testing.T) {
	result, err := TimestampOffset(nil, map[string]any{"days": float64(-1)})
	if err != nil {
		t.Fatalf("TimestampOffset failed: %v", err)
	}
	if result["timestamp"] == "" {
		t.Error("empty timestamp")
	}

	expr, err := TimestampOffset(nil, map[string]any{"expression": "in 2 days"})
	if err != nil {
		t.Fatalf("TimestampOffset expression failed: %v", err)
	}
	if expr["timestamp"] == "" {
		t.Error("empty timestamp from expression")
	}

	if _, err := TimestampOffset(nil, map[string]any{"expression": "gibberish xyzzy"}); err == nil {
		t.Error("expected error for unparseable expression")
	}
}

func TestUIRenderStyles(t *testing.T) {
	var lines []string
	ec := &storage.ExecutionContext{Sink: func(s string) { lines = append(lines, s) }}

	result, err := UIRender(ec, map[string]any{"content": "done", "style": "success"})
	if err != nil {
		t.Fatalf("UIRender failed: %v", err)
	}
	if result["rendered"] != true || result["status"] != "success" {
		t.Errorf("result = %v", result)
	}
	if len(lines) != 1 || lines[0] != "✓ done" {
		t.Errorf("sink = %v", lines)
	}

	lines = nil
	if _, err := UIRender(ec, map[string]any{"content": "hi", "style": "box", "title": "Greeting"}); err != nil {
		t.Fatalf("UIRender box failed: %v", err)
	}
	if len(lines) != 6 {
		t.Fatalf("box emitted %d lines: %v", len(lines), lines)
	}
	if !strings.Contains(lines[1], "Greeting") {
		t.Errorf("title line = %q", lines[1])
	}
	if lines[4] != "  hi" {
		t.Errorf("content line = %q", lines[4])
	}

	lines = nil
	if _, err := UIRender(ec, map[string]any{"content": "plain text"}); err != nil {
		t.Fatalf("UIRender plain failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "plain text" {
		t.Errorf("sink = %v", lines)
	}

	if _, err := UIRender(ec, map[string]any{}); types.KindOf(err, "") != types.ErrMapping {
		t.Errorf("error = %v, want mapping_error", err)
	}
}

func TestListMap(t *testing.T) {
	items := []any{
		map[string]any{"name": "alice", "data": map[string]any{"domain": "x"}},
		map[string]any{"name": "bob", "data": map[string]any{"domain": "y"}},
		map[string]any{"name": "eve"},
	}

	flat, err := ListMap(nil, map[string]any{"items": items, "key": "name"})
	if err != nil {
		t.Fatalf("ListMap failed: %v", err)
	}
	if !reflect.DeepEqual(flat["values"], []any{"alice", "bob", "eve"}) {
		t.Errorf("values = %v", flat["values"])
	}

	nested, _ := ListMap(nil, map[string]any{"items": items, "key": "data.domain"})
	if !reflect.DeepEqual(nested["values"], []any{"x", "y", nil}) {
		t.Errorf("nested values = %v", nested["values"])
	}
}

func TestListSortBy(t *testing.T) {
	items := []any{
		map[string]any{"x": float64(3)},
		map[string]any{"x": float64(1)},
		map[string]any{"x": float64(2)},
	}

	asc, err := ListSortBy(nil, map[string]any{"items": items, "key": "x"})
	if err != nil {
		t.Fatalf("ListSortBy failed: %v", err)
	}
	got := asc["items"].([]any)
	if got[0].(map[string]any)["x"] != float64(1) || got[2].(map[string]any)["x"] != float64(3) {
		t.Errorf("ascending = %v", got)
	}

	desc, _ := ListSortBy(nil, map[string]any{"items": items, "key": "x", "reverse": true})
	got = desc["items"].([]any)
	if got[0].(map[string]any)["x"] != float64(3) {
		t.Errorf("descending = %v", got)
	}

	// Items missing the key sort first and the input order between them holds.
	mixed := []any{
		map[string]any{"name": "b"},
		map[string]any{},
		map[string]any{"name": "a"},
	}
	sorted, _ := ListSortBy(nil, map[string]any{"items": mixed, "key": "name"})
	got = sorted["items"].([]any)
	if len(got[0].(map[string]any)) != 0 {
		t.Errorf("missing-key item not first: %v", got)
	}
	if got[1].(map[string]any)["name"] != "a" || got[2].(map[string]any)["name"] != "b" {
		t.Errorf("sorted = %v", got)
	}
}

func TestSymbolsTableComplete(t *testing.T) {
	symbols := Symbols()
	for _, ref := range []string{
		"std.sys_log", "std.ui_render", "std.manifest_entity", "std.manage_bond",
		"std.fts_search", "std.vector_pack", "std.timestamp_offset",
		"std.list_map", "std.list_sort_by",
	} {
		if symbols[ref] == nil {
			t.Errorf("symbol %q missing", ref)
		}
	}
}
