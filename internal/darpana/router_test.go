package darpana

import "testing"

func testConfig() RoutingConfig {
	return RoutingConfig{
		Providers: []ProviderConfig{
			{Name: "openai", Type: ProviderOpenAI, Models: []string{"gpt-4.1-mini", "gpt-4o"}},
			{Name: "gemini", Type: ProviderGemini, Models: []string{"gemini-2.0-flash"}},
			{Name: "anthropic", Type: ProviderPassthrough, Models: nil},
			{Name: "fallback", Type: ProviderOpenAI, Models: nil},
		},
		Aliases: map[string]string{
			"sonnet": "openai/gpt-4.1-mini",
			"flash":  "gemini/gemini-2.0-flash",
		},
	}
}

func TestResolve_ExactAlias(t *testing.T) {
	route, err := Resolve(testConfig(), "sonnet")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider.Name != "openai" || route.Model != "gpt-4.1-mini" {
		t.Fatalf("route = %+v", route)
	}
}

func TestResolve_StripsAnthropicPrefix(t *testing.T) {
	route, err := Resolve(testConfig(), "anthropic/sonnet")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider.Name != "openai" || route.Model != "gpt-4.1-mini" {
		t.Fatalf("route = %+v", route)
	}
}

func TestResolve_FuzzyAlias(t *testing.T) {
	route, err := Resolve(testConfig(), "claude-3-5-sonnet-latest")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider.Name != "openai" {
		t.Fatalf("route = %+v", route)
	}
}

func TestResolve_ExplicitProviderModel(t *testing.T) {
	route, err := Resolve(testConfig(), "gemini/gemini-2.0-flash")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider.Name != "gemini" || route.Model != "gemini-2.0-flash" {
		t.Fatalf("route = %+v", route)
	}
}

func TestResolve_ProviderModelListSearch(t *testing.T) {
	route, err := Resolve(testConfig(), "gpt-4o")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider.Name != "openai" {
		t.Fatalf("route = %+v", route)
	}
}

func TestResolve_WildcardProviderSkipsPassthrough(t *testing.T) {
	route, err := Resolve(testConfig(), "some-unknown-model")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.Provider.Name != "fallback" {
		t.Fatalf("route = %+v, want wildcard fallback (not the passthrough provider)", route)
	}
}

func TestResolve_NoProvider(t *testing.T) {
	cfg := RoutingConfig{Providers: []ProviderConfig{
		{Name: "anthropic", Type: ProviderPassthrough, Models: nil},
	}}
	if _, err := Resolve(cfg, "whatever"); err == nil {
		t.Fatal("expected ErrNoProvider")
	}
}
