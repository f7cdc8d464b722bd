package coreconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "core.yaml", `
server:
  port: 9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Policy.Preset != "standard" {
		t.Fatalf("Policy.Preset = %q, want standard", cfg.Policy.Preset)
	}
	if cfg.Bus.HistoryCapacity != 1000 {
		t.Fatalf("Bus.HistoryCapacity = %d, want 1000", cfg.Bus.HistoryCapacity)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "core.yaml", `
server:
  port: 9000
  bogus_field: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoad_RejectsUnknownPreset(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "core.yaml", `
policy:
  preset: nonsense
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
}

func TestLoad_RejectsUnknownProviderType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "core.yaml", `
routing:
  providers:
    - name: foo
      type: carrier-pigeon
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown provider type")
	}
}

func TestLoad_EnvOverridesAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "core.yaml", `
auth:
  api_key: from-file
`)

	t.Setenv("DARPANA_API_KEY", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.APIKey != "from-env" {
		t.Fatalf("Auth.APIKey = %q, want from-env", cfg.Auth.APIKey)
	}
}

func TestLoad_EnvOverridesProviderAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "core.yaml", `
routing:
  providers:
    - name: openai-default
      type: openai
      api_key: from-file
`)

	t.Setenv("DARPANA_PROVIDER_OPENAI-DEFAULT_API_KEY", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Routing.Providers[0].APIKey; got != "from-env" {
		t.Fatalf("provider APIKey = %q, want from-env", got)
	}
}

func TestLoad_ExpandsEnvVarsInYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "core.yaml", `
auth:
  api_key: ${TEST_API_KEY}
`)

	t.Setenv("TEST_API_KEY", "expanded-value")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.APIKey != "expanded-value" {
		t.Fatalf("Auth.APIKey = %q, want expanded-value", cfg.Auth.APIKey)
	}
}

func TestLoad_ResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "providers.yaml", `
routing:
  providers:
    - name: openai-default
      type: openai
      models: ["gpt-4.1-mini"]
`)
	path := writeFile(t, dir, "core.yaml", `
$include: providers.yaml
server:
  port: 9001
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Routing.Providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(cfg.Routing.Providers))
	}
	if cfg.Server.Port != 9001 {
		t.Fatalf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
}

func TestLoadRaw_DetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `$include: b.yaml`)
	bPath := writeFile(t, dir, "b.yaml", `$include: a.yaml`)

	if _, err := LoadRaw(bPath); err == nil {
		t.Fatalf("expected include-cycle error")
	}
}

func TestDharmaPreset_OverridesBudgetAndPaths(t *testing.T) {
	cfg := &Config{
		Policy: PolicyConfig{
			Preset:        "standard",
			ReadOnlyPaths: []string{"/etc"},
			CostBudgetUSD: 5,
		},
	}
	preset, err := cfg.DharmaPreset()
	if err != nil {
		t.Fatalf("DharmaPreset: %v", err)
	}
	if preset.DefaultCostBudgetUSD != 5 {
		t.Fatalf("DefaultCostBudgetUSD = %v, want 5", preset.DefaultCostBudgetUSD)
	}
	if len(preset.DefaultReadOnlyPaths) != 1 || preset.DefaultReadOnlyPaths[0] != "/etc" {
		t.Fatalf("DefaultReadOnlyPaths = %v", preset.DefaultReadOnlyPaths)
	}
}

func TestDarpanaRouting_ConvertsProvidersAndAliases(t *testing.T) {
	cfg := &Config{
		Routing: RoutingConfig{
			Providers: []ProviderConfig{{Name: "p1", Type: "openai", Models: []string{"m1"}}},
			Aliases:   map[string]string{"fast": "p1/m1"},
		},
	}
	routing := cfg.DarpanaRouting()
	if len(routing.Providers) != 1 || routing.Providers[0].Name != "p1" {
		t.Fatalf("Providers = %+v", routing.Providers)
	}
	if routing.Aliases["fast"] != "p1/m1" {
		t.Fatalf("Aliases[fast] = %q", routing.Aliases["fast"])
	}
}

func TestAddr_FormatsHostPort(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8787}
	if got := s.Addr(); got != "127.0.0.1:8787" {
		t.Fatalf("Addr = %q", got)
	}
}
