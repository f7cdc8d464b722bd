package darpana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// HTTPUpstream is the default Upstream: it dials the real provider over
// HTTP, converting the normalized request/response on the way in and out.
type HTTPUpstream struct {
	client *http.Client
}

// NewHTTPUpstream builds an HTTPUpstream with the given per-request timeout.
func NewHTTPUpstream(timeout time.Duration) *HTTPUpstream {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPUpstream{client: &http.Client{Timeout: timeout}}
}

func (u *HTTPUpstream) Complete(ctx context.Context, route Route, req CompletionRequest) (CompletionResponse, error) {
	switch route.Provider.Type {
	case ProviderOpenAI:
		return u.completeOpenAI(ctx, route, req)
	case ProviderGemini:
		return u.completeGemini(ctx, route, req)
	case ProviderPassthrough:
		return u.completePassthrough(ctx, route, req)
	default:
		return CompletionResponse{}, fmt.Errorf("darpana: unsupported provider type %q", route.Provider.Type)
	}
}

func (u *HTTPUpstream) Stream(ctx context.Context, route Route, req CompletionRequest, ew *EventWriter) error {
	switch route.Provider.Type {
	case ProviderOpenAI:
		return u.streamOpenAI(ctx, route, req, ew)
	case ProviderGemini:
		return u.streamGemini(ctx, route, req, ew)
	case ProviderPassthrough:
		return u.streamPassthrough(ctx, route, req, ew)
	default:
		return fmt.Errorf("darpana: unsupported provider type %q", route.Provider.Type)
	}
}

func (u *HTTPUpstream) completeOpenAI(ctx context.Context, route Route, req CompletionRequest) (CompletionResponse, error) {
	body := ToOpenAIRequest(req, route.Model)
	body.Stream = false

	resp, err := u.doJSON(ctx, http.MethodPost, route.Provider.BaseURL+"/chat/completions", route.Provider.APIKey, body)
	if err != nil {
		return CompletionResponse{}, err
	}
	defer resp.Body.Close()

	var parsed openai.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResponse{}, fmt.Errorf("darpana: decode openai response: %w", err)
	}
	return FromOpenAIResponse(parsed), nil
}

func (u *HTTPUpstream) streamOpenAI(ctx context.Context, route Route, req CompletionRequest, ew *EventWriter) error {
	body := ToOpenAIRequest(req, route.Model)
	body.Stream = true

	resp, err := u.doJSON(ctx, http.MethodPost, route.Provider.BaseURL+"/chat/completions", route.Provider.APIKey, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return TranslateOpenAIStream(resp.Body, ew, newMessageID(), route.Model)
}

func (u *HTTPUpstream) completeGemini(ctx context.Context, route Route, req CompletionRequest) (CompletionResponse, error) {
	_, contents := ToGeminiRequest(req)
	url := GeminiUpstreamURL(route.Provider.BaseURL, route.Model, route.Provider.APIKey, false)

	resp, err := u.doJSON(ctx, http.MethodPost, url, "", map[string]any{"contents": contents})
	if err != nil {
		return CompletionResponse{}, err
	}
	defer resp.Body.Close()

	var parsed genai.GenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResponse{}, fmt.Errorf("darpana: decode gemini response: %w", err)
	}
	return FromGeminiResponse(&parsed), nil
}

func (u *HTTPUpstream) streamGemini(ctx context.Context, route Route, req CompletionRequest, ew *EventWriter) error {
	_, contents := ToGeminiRequest(req)
	url := GeminiUpstreamURL(route.Provider.BaseURL, route.Model, route.Provider.APIKey, true)

	resp, err := u.doJSON(ctx, http.MethodPost, url, "", map[string]any{"contents": contents})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return TranslateGeminiStream(resp.Body, ew, newMessageID(), route.Model)
}

func (u *HTTPUpstream) completePassthrough(ctx context.Context, route Route, req CompletionRequest) (CompletionResponse, error) {
	rawReq, err := json.Marshal(req)
	if err != nil {
		return CompletionResponse{}, err
	}
	rewritten, err := ToPassthroughBody(rawReq, route.Model)
	if err != nil {
		return CompletionResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, route.Provider.BaseURL+"/v1/messages", bytes.NewReader(rewritten))
	if err != nil {
		return CompletionResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", route.Provider.APIKey)

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("darpana: passthrough request: %w", err)
	}
	defer resp.Body.Close()

	var parsed CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return CompletionResponse{}, fmt.Errorf("darpana: decode passthrough response: %w", err)
	}
	return parsed, nil
}

func (u *HTTPUpstream) streamPassthrough(ctx context.Context, route Route, req CompletionRequest, ew *EventWriter) error {
	rawReq, err := json.Marshal(req)
	if err != nil {
		return err
	}
	rewritten, err := ToPassthroughBody(rawReq, route.Model)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, route.Provider.BaseURL+"/v1/messages", bytes.NewReader(rewritten))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", route.Provider.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("darpana: passthrough stream request: %w", err)
	}
	defer resp.Body.Close()

	// Passthrough: the upstream already speaks the Anthropic SSE dialect, so
	// the bytes are copied through unchanged rather than translated.
	if err := ew.CopyRaw(resp.Body); err != nil {
		return fmt.Errorf("darpana: passthrough stream copy: %w", err)
	}
	return nil
}

func (u *HTTPUpstream) doJSON(ctx context.Context, method, url, apiKey string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("darpana: upstream request to %s: %w", redactURL(url), err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("darpana: upstream returned %d: %s", resp.StatusCode, detail)
	}
	return resp, nil
}

// redactURL keeps error messages free of full URLs, since some providers
// carry their API key in a query parameter.
func redactURL(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[:i]
		}
	}
	return url
}

func newMessageID() string {
	return "msg_" + uuid.NewString()
}
