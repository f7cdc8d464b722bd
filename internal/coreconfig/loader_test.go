package coreconfig

import (
	"reflect"
	"testing"
)

func TestMergeMaps_DeepMergesNestedMaps(t *testing.T) {
	dst := map[string]any{
		"server": map[string]any{"host": "0.0.0.0", "port": 8787},
	}
	src := map[string]any{
		"server": map[string]any{"port": 9000},
		"auth":   map[string]any{"api_key": "x"},
	}

	got := mergeMaps(dst, src)

	want := map[string]any{
		"server": map[string]any{"host": "0.0.0.0", "port": 9000},
		"auth":   map[string]any{"api_key": "x"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mergeMaps = %#v, want %#v", got, want)
	}
}

func TestMergeMaps_SrcScalarOverwritesDstMap(t *testing.T) {
	dst := map[string]any{"routing": map[string]any{"providers": []any{}}}
	src := map[string]any{"routing": "disabled"}

	got := mergeMaps(dst, src)
	if got["routing"] != "disabled" {
		t.Fatalf("routing = %#v, want \"disabled\"", got["routing"])
	}
}

func TestExtractIncludes_SingleStringForm(t *testing.T) {
	raw := map[string]any{"$include": "base.yaml", "server": map[string]any{}}

	includes, err := extractIncludes(raw)
	if err != nil {
		t.Fatalf("extractIncludes: %v", err)
	}
	if !reflect.DeepEqual(includes, []string{"base.yaml"}) {
		t.Fatalf("includes = %v", includes)
	}
	if _, ok := raw["$include"]; ok {
		t.Fatalf("$include key should be removed from raw map")
	}
}

func TestExtractIncludes_ListForm(t *testing.T) {
	raw := map[string]any{"$include": []any{"a.yaml", "b.yaml"}}

	includes, err := extractIncludes(raw)
	if err != nil {
		t.Fatalf("extractIncludes: %v", err)
	}
	if !reflect.DeepEqual(includes, []string{"a.yaml", "b.yaml"}) {
		t.Fatalf("includes = %v", includes)
	}
}

func TestExtractIncludes_RejectsNonStringEntries(t *testing.T) {
	raw := map[string]any{"$include": []any{"a.yaml", 5}}

	if _, err := extractIncludes(raw); err == nil {
		t.Fatalf("expected error for non-string include entry")
	}
}

func TestExtractIncludes_NoIncludeKeyReturnsNil(t *testing.T) {
	raw := map[string]any{"server": map[string]any{}}

	includes, err := extractIncludes(raw)
	if err != nil {
		t.Fatalf("extractIncludes: %v", err)
	}
	if includes != nil {
		t.Fatalf("includes = %v, want nil", includes)
	}
}

func TestParseRawBytes_EmptyDocumentReturnsEmptyMap(t *testing.T) {
	raw, err := parseRawBytes([]byte(""))
	if err != nil {
		t.Fatalf("parseRawBytes: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("raw = %#v, want empty", raw)
	}
}

func TestParseRawBytes_RejectsMultipleDocuments(t *testing.T) {
	_, err := parseRawBytes([]byte("a: 1\n---\nb: 2\n"))
	if err == nil {
		t.Fatalf("expected error for multiple YAML documents")
	}
}
