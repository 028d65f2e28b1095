package template

import (
	"fmt"
	"reflect"
	"sort"
	"testing"
)

func ExampleFlattenSettings() {
	flat := FlattenSettings(map[string]interface{}{
		"title": "Summer Sale",
		"colors": map[string]interface{}{
			"background": "#fff",
		},
	})
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s=%v\n", k, flat[k])
	}
	// Output:
	// colors.background=#fff
	// title=Summer Sale
}

func TestFlattenSettings(t *testing.T) {
	nested := map[string]interface{}{
		"text": "hello",
		"colors": map[string]interface{}{
			"background": "#fff",
			"border": map[string]interface{}{
				"width": 2,
			},
		},
	}

	flat := FlattenSettings(nested)
	want := map[string]interface{}{
		"text":                "hello",
		"colors.background":   "#fff",
		"colors.border.width": 2,
	}
	if !reflect.DeepEqual(flat, want) {
		t.Fatalf("flatten mismatch: got %v want %v", flat, want)
	}
}

func TestUnflattenSettings(t *testing.T) {
	flat := map[string]interface{}{
		"text":              "hi",
		"colors.background": "#000",
		"colors.text":       "#fff",
	}

	nested := UnflattenSettings(flat)
	colors, ok := nested["colors"].(map[string]interface{})
	if !ok {
		t.Fatalf("colors not nested: %v", nested)
	}
	if colors["background"] != "#000" || colors["text"] != "#fff" {
		t.Fatalf("unexpected colors: %v", colors)
	}
	if nested["text"] != "hi" {
		t.Fatalf("unexpected text: %v", nested["text"])
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	nested := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{"c": "deep"},
		},
		"top": true,
	}
	got := UnflattenSettings(FlattenSettings(nested))
	if !reflect.DeepEqual(got, nested) {
		t.Fatalf("round trip mismatch: got %v want %v", got, nested)
	}
}

func TestMergeSettingsOverridesWin(t *testing.T) {
	defaults := map[string]interface{}{
		"text":              "default text",
		"colors.background": "#1a1a2e",
		"dismissible":       true,
	}
	overrides := map[string]interface{}{
		"text": "50% off everything",
	}

	merged := MergeSettings(defaults, overrides)

	if merged["text"] != "50% off everything" {
		t.Fatalf("override lost: %v", merged["text"])
	}
	colors, ok := merged["colors"].(map[string]interface{})
	if !ok || colors["background"] != "#1a1a2e" {
		t.Fatalf("default colors.background lost: %v", merged)
	}
	if merged["dismissible"] != true {
		t.Fatalf("default dismissible lost: %v", merged)
	}
}

func TestMergeSettingsNestedOverride(t *testing.T) {
	defaults := map[string]interface{}{
		"colors.background": "#fff",
		"colors.text":       "#000",
	}
	overrides := map[string]interface{}{
		"colors": map[string]interface{}{
			"background": "#f95d6a",
		},
	}

	merged := MergeSettings(defaults, overrides)
	colors := merged["colors"].(map[string]interface{})
	if colors["background"] != "#f95d6a" {
		t.Fatalf("nested override lost: %v", colors)
	}
	if colors["text"] != "#000" {
		t.Fatalf("sibling default lost: %v", colors)
	}
}

func TestMergeSettingsScalarOverrideShadowsNestedDefault(t *testing.T) {
	defaults := map[string]interface{}{
		"colors": map[string]interface{}{
			"primary":   "#000",
			"secondary": "#111",
		},
	}
	overrides := map[string]interface{}{"colors": "blue"}

	want := map[string]interface{}{"colors": "blue"}
	for i := 0; i < 100; i++ {
		got := MergeSettings(defaults, overrides)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("iteration %d: got %v, want %v", i, got, want)
		}
	}
}

func TestMergeSettingsNestedOverrideShadowsScalarDefault(t *testing.T) {
	defaults := map[string]interface{}{"colors": "#000"}
	overrides := map[string]interface{}{
		"colors": map[string]interface{}{"primary": "#fff"},
	}

	want := map[string]interface{}{
		"colors": map[string]interface{}{"primary": "#fff"},
	}
	for i := 0; i < 100; i++ {
		got := MergeSettings(defaults, overrides)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("iteration %d: got %v, want %v", i, got, want)
		}
	}
}

func TestUnflattenSettingsPrefixCollision(t *testing.T) {
	flat := map[string]interface{}{
		"colors":         "blue",
		"colors.primary": "#000",
	}

	want := map[string]interface{}{
		"colors": map[string]interface{}{"primary": "#000"},
	}
	for i := 0; i < 100; i++ {
		got := UnflattenSettings(flat)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("iteration %d: got %v, want %v", i, got, want)
		}
	}
}

func TestMergeSettingsNilInputs(t *testing.T) {
	if got := MergeSettings(nil, nil); len(got) != 0 {
		t.Fatalf("expected empty merge, got %v", got)
	}
	merged := MergeSettings(nil, map[string]interface{}{"k": "v"})
	if merged["k"] != "v" {
		t.Fatalf("override-only merge lost value: %v", merged)
	}
}

func TestCloneSettingsIsDeep(t *testing.T) {
	original := map[string]interface{}{
		"colors": map[string]interface{}{"background": "#fff"},
		"items":  []interface{}{"a", "b"},
	}
	clone := CloneSettings(original)

	clone["colors"].(map[string]interface{})["background"] = "#000"
	clone["items"].([]interface{})[0] = "z"

	if original["colors"].(map[string]interface{})["background"] != "#fff" {
		t.Fatal("clone shares nested map with original")
	}
	if original["items"].([]interface{})[0] != "a" {
		t.Fatal("clone shares slice with original")
	}
}

func TestSectionInstanceCloneIsDeep(t *testing.T) {
	sec := SectionInstance{
		ID:          "s1",
		SectionType: "hero",
		Settings:    map[string]interface{}{"heading": "hi"},
		Blocks: []BlockInstance{
			{ID: "b1", BlockType: "text", Settings: map[string]interface{}{"content": "x"}},
		},
	}
	clone := sec.Clone()
	clone.Settings["heading"] = "changed"
	clone.Blocks[0].Settings["content"] = "changed"

	if sec.Settings["heading"] != "hi" {
		t.Fatal("section settings shared")
	}
	if sec.Blocks[0].Settings["content"] != "x" {
		t.Fatal("block settings shared")
	}
}
