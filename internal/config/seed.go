package config

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/revittco/mutacache/internal/record"
)

// defaultResources seeds the memory provider when the config file names no
// resources, so a fresh `serve` has something to mutate.
var defaultResources = map[string][]record.Record{
	"posts": {
		{"id": 1, "title": "Hello, world", "author_id": 1, "views": 0},
		{"id": 2, "title": "Second post", "author_id": 1, "views": 0},
		{"id": 3, "title": "Guest post", "author_id": 2, "views": 0},
	},
	"authors": {
		{"id": 1, "name": "Ann"},
		{"id": 2, "name": "Bob"},
	},
	"comments": {
		{"id": 1, "post_id": 1, "body": "First!"},
		{"id": 2, "post_id": 1, "body": "Nice post"},
	},
}

// SeedResources returns the records the memory provider starts with. Rows
// are copied so the provider never aliases the config.
func SeedResources(cfg *FileConfig) map[string][]record.Record {
	src := cfg.Resources
	if len(src) == 0 {
		out := make(map[string][]record.Record, len(defaultResources))
		for name, rows := range defaultResources {
			out[name] = cloneRows(rows)
		}
		slog.Info("seeded default resources", "resources", slices.Sorted(maps.Keys(out)))
		return out
	}

	out := make(map[string][]record.Record, len(src))
	for name, rows := range src {
		recs := make([]record.Record, len(rows))
		for i, row := range rows {
			recs[i] = record.Record(maps.Clone(row))
		}
		out[name] = recs
		slog.Info("seeded resource from config", "resource", name, "records", len(recs))
	}
	return out
}

func cloneRows(rows []record.Record) []record.Record {
	out := make([]record.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
