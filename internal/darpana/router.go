package darpana

import (
	"fmt"
	"sort"
	"strings"
)

// ProviderType names the wire dialect a provider speaks upstream.
type ProviderType string

const (
	ProviderOpenAI      ProviderType = "openai"
	ProviderGemini      ProviderType = "gemini"
	ProviderPassthrough ProviderType = "passthrough"
)

// ProviderConfig describes one configured upstream provider.
type ProviderConfig struct {
	Name    string
	Type    ProviderType
	BaseURL string
	APIKey  string
	// Models is the provider's explicit model list. An empty list marks a
	// wildcard provider: it accepts any model name not claimed elsewhere,
	// but only when Type != passthrough (spec §4.6 step 6).
	Models []string
}

// RoutingConfig is the full set of providers and aliases the router
// resolves against.
type RoutingConfig struct {
	Providers []ProviderConfig
	// Aliases maps a short name to "provider/model".
	Aliases map[string]string
}

// Route is the resolved target of a routing decision.
type Route struct {
	Provider ProviderConfig
	Model    string
}

// ErrNoProvider is returned when no step of the routing algorithm resolves
// a model to a provider.
var ErrNoProvider = fmt.Errorf("darpana: no provider for model")

// Resolve implements the routing algorithm of spec §4.6, in order:
//  1. strip a leading "anthropic/" prefix
//  2. exact alias match
//  3. fuzzy alias: substring match of any alias key within the lowercased model
//  4. explicit "provider/model" syntax in the request
//  5. search every provider's explicit model list for an exact name
//  6. first provider whose model list is empty (wildcard) and type != passthrough
//  7. otherwise fail
func Resolve(cfg RoutingConfig, requestedModel string) (Route, error) {
	model := strings.TrimPrefix(requestedModel, "anthropic/")

	if target, ok := cfg.Aliases[model]; ok {
		if route, ok := splitProviderModel(cfg, target); ok {
			return route, nil
		}
	}

	lower := strings.ToLower(model)
	aliasKeys := make([]string, 0, len(cfg.Aliases))
	for alias := range cfg.Aliases {
		aliasKeys = append(aliasKeys, alias)
	}
	sort.Strings(aliasKeys)
	for _, alias := range aliasKeys {
		if strings.Contains(lower, strings.ToLower(alias)) {
			if route, ok := splitProviderModel(cfg, cfg.Aliases[alias]); ok {
				return route, nil
			}
		}
	}

	if provider, upstreamModel, ok := strings.Cut(model, "/"); ok {
		if p, found := findProvider(cfg, provider); found {
			return Route{Provider: p, Model: upstreamModel}, nil
		}
	}

	for _, p := range cfg.Providers {
		for _, m := range p.Models {
			if m == model {
				return Route{Provider: p, Model: model}, nil
			}
		}
	}

	for _, p := range cfg.Providers {
		if len(p.Models) == 0 && p.Type != ProviderPassthrough {
			return Route{Provider: p, Model: model}, nil
		}
	}

	return Route{}, fmt.Errorf("%w: %s", ErrNoProvider, requestedModel)
}

func splitProviderModel(cfg RoutingConfig, target string) (Route, bool) {
	provider, model, ok := strings.Cut(target, "/")
	if !ok {
		return Route{}, false
	}
	p, found := findProvider(cfg, provider)
	if !found {
		return Route{}, false
	}
	return Route{Provider: p, Model: model}, true
}

func findProvider(cfg RoutingConfig, name string) (ProviderConfig, bool) {
	for _, p := range cfg.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
