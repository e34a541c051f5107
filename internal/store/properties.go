package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/uri"
)

// VariantsProperty is the property key whose value lists an entity's
// custom variants, comma-separated. The default variant is implicit and
// never stored.
const VariantsProperty = "variants"

// SetProperties upserts properties on one URI. All keys land in a single
// transaction; an existing key's value is replaced.
func (s *Store) SetProperties(ctx context.Context, u uri.URI, props map[string]string) error {
	if len(props) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set properties: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO properties (uri, key, value)
			VALUES (?, ?, ?)
			ON CONFLICT(uri, key) DO UPDATE SET value = excluded.value
		`, u.String(), k, props[k])
		if err != nil {
			return fmt.Errorf("set properties: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set properties: commit: %w", err)
	}
	return nil
}

// OwnProperties returns the properties stored directly on one URI,
// without the hierarchical merge.
func (s *Store) OwnProperties(ctx context.Context, u uri.URI) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM properties
		WHERE uri = ?
		ORDER BY key ASC
	`, u.String())
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		props[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return props, nil
}

// GetProperties returns the hierarchical merge along the URI's ancestor
// chain: root properties first, each deeper level overriding per key.
// "entity:/assets" properties apply to every asset unless an asset sets
// the same key itself.
func (s *Store) GetProperties(ctx context.Context, u uri.URI) (map[string]string, error) {
	merged := make(map[string]string)
	for _, ancestor := range u.Ancestors() {
		own, err := s.OwnProperties(ctx, ancestor)
		if err != nil {
			return nil, err
		}
		for k, v := range own {
			merged[k] = v
		}
	}
	return merged, nil
}

// ListVariants returns the variants an entity publishes under: the
// implicit default variant first, then the merged "variants" property's
// entries sorted and de-duplicated.
func (s *Store) ListVariants(ctx context.Context, e entity.Entity) ([]string, error) {
	props, err := s.GetProperties(ctx, e.URI())
	if err != nil {
		return nil, err
	}
	out := []string{entity.DefaultVariant}
	seen := map[string]bool{entity.DefaultVariant: true}
	for _, v := range strings.Split(props[VariantsProperty], ",") {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out[1:])
	return out, nil
}
