// Package genesis loads YAML seed documents and manifests their entities
// and bonds through the store. Seeding is how a fresh database receives
// its first inhabitants (personas, protocols, primitives).
package genesis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/liminalcommons/chora-cvm/internal/storage"
	"github.com/liminalcommons/chora-cvm/internal/types"
)

// SeedEntity is one entity declaration in a seed document.
type SeedEntity struct {
	ID   string         `yaml:"id"`
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data"`
}

// SeedBond is one bond declaration in a seed document. From/To must name
// entities that exist after the document's entities are applied.
type SeedBond struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	From       string         `yaml:"from"`
	To         string         `yaml:"to"`
	Status     string         `yaml:"status"`
	Confidence *float64       `yaml:"confidence"`
	Data       map[string]any `yaml:"data"`
}

// Document is a parsed seed file.
type Document struct {
	Entities []SeedEntity `yaml:"entities"`
	Bonds    []SeedBond   `yaml:"bonds"`
}

// Result reports what a seed application wrote.
type Result struct {
	Entities int
	Bonds    int
	Files    []string
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.NewError(types.ErrMapping, "failed to parse seed document: %v", err)
	}

	for i, e := range doc.Entities {
		if e.ID == "" {
			return nil, types.NewError(types.ErrMapping, "entity %d missing id", i)
		}
		if e.Type == "" {
			return nil, types.NewError(types.ErrMapping, "entity %q missing type", e.ID)
		}
	}
	for i, b := range doc.Bonds {
		if b.Type == "" {
			return nil, types.NewError(types.ErrMapping, "bond %d missing type", i)
		}
		if b.From == "" || b.To == "" {
			return nil, types.NewError(types.ErrMapping, "bond %d (%s) missing from/to", i, b.Type)
		}
	}
	return &doc, nil
}

// ParseFile reads and parses one seed file.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to read seed file %s: %v", path, err)
	}
	return Parse(data)
}

// Apply manifests a document into the store: entities first, then bonds,
// so bonds can reference entities declared in the same file. Re-applying
// a seed is idempotent at the data level (saves overwrite).
func Apply(ctx context.Context, store storage.Store, doc *Document) (*Result, error) {
	res := &Result{}

	for _, e := range doc.Entities {
		data := e.Data
		if data == nil {
			data = map[string]any{}
		}
		if err := store.SaveEntity(ctx, e.ID, e.Type, data); err != nil {
			return res, fmt.Errorf("failed to seed entity %s: %w", e.ID, err)
		}
		res.Entities++
	}

	for _, b := range doc.Bonds {
		bond := &types.Bond{
			ID:     b.ID,
			Type:   b.Type,
			FromID: b.From,
			ToID:   b.To,
			Status: b.Status,
			Data:   b.Data,
		}
		if bond.ID == "" {
			bond.ID = fmt.Sprintf("rel-%s-%s-%s", b.Type, slug(b.From), slug(b.To))
		}
		if b.Confidence != nil {
			bond.Confidence = *b.Confidence
		} else {
			bond.Confidence = 1.0
		}
		if err := store.SaveBond(ctx, bond); err != nil {
			return res, fmt.Errorf("failed to seed bond %s: %w", bond.ID, err)
		}
		res.Bonds++
	}

	return res, nil
}

// ApplyFile parses and applies one seed file.
func ApplyFile(ctx context.Context, store storage.Store, path string) (*Result, error) {
	doc, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	res, err := Apply(ctx, store, doc)
	if res != nil {
		res.Files = []string{path}
	}
	return res, err
}

// ApplyDir applies every .yaml/.yml file directly under dir, in lexical
// order so seed authors can sequence files by prefix (00-personas.yaml,
// 10-protocols.yaml, ...).
func ApplyDir(ctx context.Context, store storage.Store, dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to read seed directory %s: %v", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	total := &Result{}
	for _, path := range files {
		res, err := ApplyFile(ctx, store, path)
		if res != nil {
			total.Entities += res.Entities
			total.Bonds += res.Bonds
		}
		if err != nil {
			return total, fmt.Errorf("seed file %s: %w", path, err)
		}
		total.Files = append(total.Files, path)
	}
	return total, nil
}

func slug(s string) string {
	out := strings.ToLower(s)
	out = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return '-'
	}, out)
	return strings.Trim(out, "-")
}
