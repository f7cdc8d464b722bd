package darpana

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// ToPassthroughBody rewrites only the model field of a raw Anthropic-native
// request body to the resolved upstream model name, forwarding everything
// else unchanged. Before rewriting, the body is validated against the real
// Anthropic request schema so a malformed client body fails fast with a
// clear error instead of reaching the upstream as an opaque 400.
func ToPassthroughBody(body []byte, upstreamModel string) ([]byte, error) {
	var params anthropic.MessageNewParams
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, fmt.Errorf("darpana: body does not match the Anthropic Messages schema: %w", err)
	}
	if len(params.Messages) == 0 {
		return nil, fmt.Errorf("darpana: passthrough request has no messages")
	}

	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, err
	}
	generic["model"] = upstreamModel
	return json.Marshal(generic)
}
