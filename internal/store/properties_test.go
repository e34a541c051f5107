package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/uri"
)

func TestSetProperties_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	hero := uri.MustParse("entity:/assets/char/hero")

	props := map[string]string{"fps": "24", "colorspace": "acescg"}
	if err := s.SetProperties(ctx, hero, props); err != nil {
		t.Fatalf("SetProperties() failed: %v", err)
	}

	got, err := s.OwnProperties(ctx, hero)
	if err != nil {
		t.Fatalf("OwnProperties() failed: %v", err)
	}
	if !reflect.DeepEqual(got, props) {
		t.Errorf("properties = %v, expected %v", got, props)
	}
}

func TestSetProperties_Overwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	hero := uri.MustParse("entity:/assets/char/hero")

	if err := s.SetProperties(ctx, hero, map[string]string{"fps": "24"}); err != nil {
		t.Fatalf("first SetProperties() failed: %v", err)
	}
	if err := s.SetProperties(ctx, hero, map[string]string{"fps": "25"}); err != nil {
		t.Fatalf("second SetProperties() failed: %v", err)
	}

	got, err := s.OwnProperties(ctx, hero)
	if err != nil {
		t.Fatalf("OwnProperties() failed: %v", err)
	}
	if got["fps"] != "25" {
		t.Errorf("fps = %q, expected %q", got["fps"], "25")
	}
}

func TestSetProperties_EmptyMap(t *testing.T) {
	s := createTestStore(t)

	if err := s.SetProperties(context.Background(), uri.MustParse("entity:/assets"), nil); err != nil {
		t.Errorf("SetProperties() with no keys should be a no-op: %v", err)
	}
}

func TestGetProperties_HierarchicalMerge(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Root applies everywhere, the category narrows it, the leaf wins.
	seed := map[string]map[string]string{
		"entity:/":                 {"fps": "24", "colorspace": "acescg"},
		"entity:/assets":           {"fps": "25"},
		"entity:/assets/char/hero": {"fps": "30", "lod": "high"},
	}
	for raw, props := range seed {
		if err := s.SetProperties(ctx, uri.MustParse(raw), props); err != nil {
			t.Fatalf("SetProperties(%s) failed: %v", raw, err)
		}
	}

	got, err := s.GetProperties(ctx, uri.MustParse("entity:/assets/char/hero"))
	if err != nil {
		t.Fatalf("GetProperties() failed: %v", err)
	}
	want := map[string]string{"fps": "30", "colorspace": "acescg", "lod": "high"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("merged = %v, expected %v", got, want)
	}

	// A sibling without own properties inherits the category level
	got, err = s.GetProperties(ctx, uri.MustParse("entity:/assets/char/villain"))
	if err != nil {
		t.Fatalf("GetProperties() failed: %v", err)
	}
	want = map[string]string{"fps": "25", "colorspace": "acescg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("merged = %v, expected %v", got, want)
	}
}

func TestGetProperties_Unset(t *testing.T) {
	s := createTestStore(t)

	got, err := s.GetProperties(context.Background(), uri.MustParse("entity:/shots/010/0020"))
	if err != nil {
		t.Fatalf("GetProperties() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no properties, got %v", got)
	}
}

func TestListVariants(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	hero := entity.Asset{Category: "char", Name: "hero"}

	// No property set: just the implicit default
	variants, err := s.ListVariants(ctx, hero)
	if err != nil {
		t.Fatalf("ListVariants() failed: %v", err)
	}
	if !reflect.DeepEqual(variants, []string{"default"}) {
		t.Errorf("variants = %v, expected [default]", variants)
	}

	err = s.SetProperties(ctx, hero.URI(), map[string]string{
		VariantsProperty: "smoke, fire, default, fire",
	})
	if err != nil {
		t.Fatalf("SetProperties() failed: %v", err)
	}

	variants, err = s.ListVariants(ctx, hero)
	if err != nil {
		t.Fatalf("ListVariants() failed: %v", err)
	}
	want := []string{"default", "fire", "smoke"}
	if !reflect.DeepEqual(variants, want) {
		t.Errorf("variants = %v, expected %v", variants, want)
	}
}

func TestListVariants_InheritedFromCategory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.SetProperties(ctx, uri.MustParse("entity:/assets"), map[string]string{
		VariantsProperty: "damaged",
	})
	if err != nil {
		t.Fatalf("SetProperties() failed: %v", err)
	}

	variants, err := s.ListVariants(ctx, entity.Asset{Category: "char", Name: "hero"})
	if err != nil {
		t.Fatalf("ListVariants() failed: %v", err)
	}
	want := []string{"default", "damaged"}
	if !reflect.DeepEqual(variants, want) {
		t.Errorf("variants = %v, expected %v", variants, want)
	}
}
