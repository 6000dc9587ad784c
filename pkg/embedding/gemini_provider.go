package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const geminiDefaultModel = "text-embedding-004"

type geminiContentPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiContentPart `json:"parts"`
}

type geminiRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"task_type,omitempty"`
}

// GeminiProvider uses the embedContent endpoint, which honours RETRIEVAL_DOCUMENT / RETRIEVAL_QUERY.
type GeminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	endpoint := fmt.Sprintf("%s/models/%s:embedContent", p.baseURL, p.model)
	body, err := PostJSON(ctx, p.client, "gemini", endpoint, map[string]string{"x-goog-api-key": p.apiKey}, geminiRequest{
		Model:    "models/" + p.model,
		Content:  geminiContent{Parts: []geminiContentPart{{Text: text}}},
		TaskType: taskType,
	})
	if err != nil {
		return nil, err
	}

	var out EmbeddingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	out.Embedding.Values = normalizeVector(out.Embedding.Values)
	return &out, nil
}
