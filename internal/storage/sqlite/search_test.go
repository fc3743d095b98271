package sqlite

import (
	"context"
	"testing"
)

func TestSearchIndexedOnSave(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if !store.FTSEnabled() {
		t.Skip("FTS5 not available in this build")
	}

	if err := store.SaveEntity(ctx, "story-1", "story", map[string]any{
		"title":       "Refactor the dispatch loop",
		"description": "Collapse the three entry points into one",
	}); err != nil {
		t.Fatalf("SaveEntity failed: %v", err)
	}

	hits, err := store.SearchEntities(ctx, "dispatch", 0)
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "story-1" {
		t.Errorf("hits = %+v, want story-1", hits)
	}
}

func TestSearchReindexOnUpdate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if !store.FTSEnabled() {
		t.Skip("FTS5 not available in this build")
	}

	if err := store.SaveEntity(ctx, "story-1", "story", map[string]any{"title": "alpha work"}); err != nil {
		t.Fatalf("SaveEntity failed: %v", err)
	}
	if err := store.SaveEntity(ctx, "story-1", "story", map[string]any{"title": "beta work"}); err != nil {
		t.Fatalf("SaveEntity failed: %v", err)
	}

	hits, err := store.SearchEntities(ctx, "alpha", 0)
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale index: found %d hits for old title", len(hits))
	}

	hits, err = store.SearchEntities(ctx, "beta", 0)
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("hits for new title = %d, want 1", len(hits))
	}
}

func TestSearchSkipsUnindexedTypes(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if !store.FTSEnabled() {
		t.Skip("FTS5 not available in this build")
	}

	// State-like payloads never reach the index automatically.
	if err := store.SaveEntity(ctx, "scratch-1", "scratch", map[string]any{"title": "ephemeral note"}); err != nil {
		t.Fatalf("SaveEntity failed: %v", err)
	}

	hits, err := store.SearchEntities(ctx, "ephemeral", 0)
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("unindexed type showed up in FTS: %+v", hits)
	}
}

func TestSearchLikeFallbackOnBadSyntax(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SaveEntity(ctx, "story-1", "story", map[string]any{"title": `odd "quoted`}); err != nil {
		t.Fatalf("SaveEntity failed: %v", err)
	}

	// Unbalanced quotes break FTS MATCH; the LIKE scan still answers.
	hits, err := store.SearchEntities(ctx, `"quoted`, 0)
	if err != nil {
		t.Fatalf("SearchEntities failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("fallback hits = %d, want 1", len(hits))
	}
}

func TestEntityTitleBody(t *testing.T) {
	tests := []struct {
		name      string
		data      map[string]any
		wantTitle string
		wantBody  string
	}{
		{
			name:      "title and description",
			data:      map[string]any{"title": "T", "description": "D"},
			wantTitle: "T",
			wantBody:  "D",
		},
		{
			name:      "name fallback",
			data:      map[string]any{"name": "N", "body": "B"},
			wantTitle: "N",
			wantBody:  "B",
		},
		{
			name:      "multiple body parts",
			data:      map[string]any{"description": "D", "narrative": "N"},
			wantTitle: "",
			wantBody:  "D\nN",
		},
		{
			name:      "non-string values ignored",
			data:      map[string]any{"title": float64(3), "description": "D"},
			wantTitle: "",
			wantBody:  "D",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := entityTitleBody(tt.data)
			if title != tt.wantTitle || body != tt.wantBody {
				t.Errorf("entityTitleBody = (%q, %q), want (%q, %q)", title, body, tt.wantTitle, tt.wantBody)
			}
		})
	}
}
