package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/ports"
	"juris-rag/internal/infrastructure/resilience"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type Client struct {
	baseURL    string
	apiKey     string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey, embedModel string, executor *resilience.Executor) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Configured reports whether API credentials are present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if !e.client.Configured() {
		return nil, domain.WrapError(domain.ErrEmbeddingNotConfigured, "gemini.EmbedQuery",
			fmt.Errorf("no api key"))
	}

	request := map[string]any{
		"content": map[string]any{
			"parts": []map[string]any{{"text": text}},
		},
	}
	var response struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}

	path := fmt.Sprintf("/models/%s:embedContent", e.client.embedModel)
	err := e.client.executor.Execute(ctx, "gemini.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, path, request, &response, "embed")
	}, classifyGeminiError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "gemini.EmbedQuery", err)
	}
	if len(response.Embedding.Values) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "gemini.EmbedQuery",
			fmt.Errorf("empty embedding result"))
	}
	return response.Embedding.Values, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Generate calls generateContent for one prompt and returns the first
// candidate's text.
func (g *Generator) Generate(ctx context.Context, req ports.GenerationRequest) (string, error) {
	if !g.client.Configured() {
		return "", fmt.Errorf("gemini.Generate: no api key")
	}

	request := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]any{{"text": req.UserPrompt}},
			},
		},
		"generationConfig": map[string]any{
			"temperature":     req.Temperature,
			"maxOutputTokens": req.MaxOutputTokens,
		},
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		request["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": req.SystemPrompt}},
		}
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	path := fmt.Sprintf("/models/%s:generateContent", req.Model)
	err := g.client.executor.Execute(ctx, "gemini.generate", func(ctx context.Context) error {
		return g.client.postJSON(ctx, path, request, &response, "generate")
	}, classifyGeminiError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("gemini.Generate", err)
	}

	var b strings.Builder
	for _, cand := range response.Candidates {
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
		break
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("gemini.Generate: empty candidate text")
	}
	return text, nil
}
