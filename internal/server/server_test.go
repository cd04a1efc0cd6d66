package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/nimbusgate/ai-gateway/internal/cache"
	"github.com/nimbusgate/ai-gateway/internal/catalog"
	"github.com/nimbusgate/ai-gateway/internal/gateway"
	"github.com/nimbusgate/ai-gateway/internal/providers"
)

var errRateLimit = errors.New("rate limit reached for requests")

// stubClient returns a canned completion or error.
type stubClient struct {
	name    string
	err     error
	content string
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Invoke(_ context.Context, req *providers.Request) (*providers.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	content := s.content
	if content == "" {
		content = "Hello from the stub"
	}
	return &providers.Response{
		ID:      "chatcmpl-test-1",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []providers.Choice{
			{Index: 0, Message: providers.Message{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
		Usage: providers.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
	}, nil
}

func (s *stubClient) HealthCheck(context.Context) error { return nil }

// serveGateway builds a Server over a gateway with the given stub and serves
// it on an in-memory listener.
func serveGateway(t *testing.T, stub *stubClient, cacheEnabled bool) *http.Client {
	t.Helper()

	ctx := context.Background()
	reg := catalog.New(map[string]bool{catalog.ProviderOpenAI: true})

	var c cache.Cache
	if cacheEnabled {
		mem := cache.NewMemoryCache(ctx)
		t.Cleanup(mem.Close)
		c = mem
	}

	gw := gateway.New(reg, map[string]providers.Client{catalog.ProviderOpenAI: stub}, c,
		gateway.Options{CacheEnabled: cacheEnabled})

	srv := New(gw, Options{
		BlogModel:    "gpt-3.5-turbo",
		SupportModel: "gpt-3.5-turbo",
		Version:      "test",
	})

	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = fasthttp.Serve(ln, srv.Handler())
	}()
	t.Cleanup(func() { _ = ln.Close() })

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
}

func postJSON(t *testing.T, client *http.Client, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post("http://gateway"+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
}

func chatBody() map[string]any {
	return map[string]any{
		"model":    "gpt-3.5-turbo",
		"messages": []map[string]string{{"role": "user", "content": "Hello"}},
	}
}

func TestChatCompletionsOK(t *testing.T) {
	client := serveGateway(t, &stubClient{name: catalog.ProviderOpenAI}, false)

	resp := postJSON(t, client, "/v1/chat/completions", chatBody())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache"); got != xCacheMISS {
		t.Errorf("X-Cache = %q, want %q", got, xCacheMISS)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	var out gateway.CompletionResponse
	decodeBody(t, resp, &out)
	if out.Object != "chat.completion" {
		t.Errorf("object = %q, want chat.completion", out.Object)
	}
	if out.Usage.TotalTokens != 12 {
		t.Errorf("total_tokens = %d, want 12", out.Usage.TotalTokens)
	}
}

func TestChatCompletionsCacheHitHeader(t *testing.T) {
	client := serveGateway(t, &stubClient{name: catalog.ProviderOpenAI}, true)

	first := postJSON(t, client, "/v1/chat/completions", chatBody())
	first.Body.Close()
	if got := first.Header.Get("X-Cache"); got != xCacheMISS {
		t.Fatalf("first X-Cache = %q, want %q", got, xCacheMISS)
	}

	second := postJSON(t, client, "/v1/chat/completions", chatBody())
	defer second.Body.Close()
	if got := second.Header.Get("X-Cache"); got != xCacheHIT {
		t.Fatalf("second X-Cache = %q, want %q", got, xCacheHIT)
	}
}

func TestChatCompletionsInvalidJSON(t *testing.T) {
	client := serveGateway(t, &stubClient{name: catalog.ProviderOpenAI}, false)

	resp, err := client.Post("http://gateway/v1/chat/completions", "application/json",
		bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatCompletionsValidation(t *testing.T) {
	client := serveGateway(t, &stubClient{name: catalog.ProviderOpenAI}, false)

	body := chatBody()
	body["temperature"] = 3.5

	resp := postJSON(t, client, "/v1/chat/completions", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var out struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, resp, &out)
	if out.Error.Type != "invalid_request_error" {
		t.Errorf("error.type = %q, want invalid_request_error", out.Error.Type)
	}
}

func TestChatCompletionsUnknownModel(t *testing.T) {
	client := serveGateway(t, &stubClient{name: catalog.ProviderOpenAI}, false)

	body := chatBody()
	body["model"] = "gpt-9000"

	resp := postJSON(t, client, "/v1/chat/completions", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var out struct {
		Error struct {
			Type string `json:"type"`
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &out)
	if out.Error.Code != "model_not_found" {
		t.Errorf("error.code = %q, want model_not_found", out.Error.Code)
	}
}

func TestChatCompletionsRateLimited(t *testing.T) {
	stub := &stubClient{name: catalog.ProviderOpenAI, err: errRateLimit}
	client := serveGateway(t, stub, false)

	resp := postJSON(t, client, "/v1/chat/completions", chatBody())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}
}

func TestModelsList(t *testing.T) {
	client := serveGateway(t, &stubClient{name: catalog.ProviderOpenAI}, false)

	resp, err := client.Get("http://gateway/v1/models")
	if err != nil {
		t.Fatalf("GET /v1/models: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Object string `json:"object"`
		Data   []struct {
			ID       string `json:"id"`
			Provider string `json:"provider"`
		} `json:"data"`
	}
	decodeBody(t, resp, &out)
	if out.Object != "list" {
		t.Errorf("object = %q, want list", out.Object)
	}
	if len(out.Data) != 4 {
		t.Fatalf("got %d models, want 4 (openai only)", len(out.Data))
	}
	if out.Data[0].ID != "gpt-4" {
		t.Errorf("first model = %q, want gpt-4 (declaration order)", out.Data[0].ID)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	client := serveGateway(t, &stubClient{name: catalog.ProviderOpenAI}, false)

	for _, path := range []string{"/health", "/readiness"} {
		resp, err := client.Get("http://gateway" + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestBlogGenerate(t *testing.T) {
	stub := &stubClient{name: catalog.ProviderOpenAI, content: "# My Post\n\nBody text."}
	client := serveGateway(t, stub, false)

	resp := postJSON(t, client, "/v1/blog/generate", map[string]any{
		"topic":    "Caching LLM responses",
		"keywords": []string{"cache", "latency"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out blogResponse
	decodeBody(t, resp, &out)
	if out.Content != "# My Post\n\nBody text." {
		t.Errorf("content = %q", out.Content)
	}
	if out.Title != "My Post" {
		t.Errorf("title = %q, want My Post (extracted from H1)", out.Title)
	}
	if out.WordCount != 5 {
		t.Errorf("word_count = %d, want 5", out.WordCount)
	}
	if out.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q, want gpt-3.5-turbo", out.Model)
	}
}

func TestBlogGenerateTitleFallback(t *testing.T) {
	stub := &stubClient{name: catalog.ProviderOpenAI, content: "No heading here."}
	client := serveGateway(t, stub, false)

	resp := postJSON(t, client, "/v1/blog/generate", map[string]any{"topic": "Go testing"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out blogResponse
	decodeBody(t, resp, &out)
	if out.Title != "Go testing" {
		t.Errorf("title = %q, want topic fallback", out.Title)
	}
}

func TestBlogGenerateRequiresTopic(t *testing.T) {
	client := serveGateway(t, &stubClient{name: catalog.ProviderOpenAI}, false)

	resp := postJSON(t, client, "/v1/blog/generate", map[string]any{"tone": "casual"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSupportTriageParsesModelJSON(t *testing.T) {
	stub := &stubClient{
		name:    catalog.ProviderOpenAI,
		content: `{"category":"billing","priority":"high","suggested_response":"We will refund you."}`,
	}
	client := serveGateway(t, stub, false)

	resp := postJSON(t, client, "/v1/support/triage", map[string]any{
		"subject": "Charged twice",
		"body":    "I was charged twice this month.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out triageResponse
	decodeBody(t, resp, &out)
	if out.Category != "billing" || out.Priority != "high" {
		t.Errorf("triage = %+v, want billing/high", out)
	}
}

func TestSupportTriageFallsBackOnFreeText(t *testing.T) {
	stub := &stubClient{name: catalog.ProviderOpenAI, content: "This looks like a billing issue."}
	client := serveGateway(t, stub, false)

	resp := postJSON(t, client, "/v1/support/triage", map[string]any{
		"body": "Please help",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out triageResponse
	decodeBody(t, resp, &out)
	if out.Category != "other" || out.Priority != "medium" {
		t.Errorf("fallback triage = %+v, want other/medium", out)
	}
	if out.SuggestedResponse != "This looks like a billing issue." {
		t.Errorf("suggested_response = %q", out.SuggestedResponse)
	}
}
