package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const huggingFaceInferenceURL = "https://router.huggingface.co/hf-inference/models"

// HuggingFaceProvider calls the hosted feature-extraction pipeline
// (sentence-transformers/all-MiniLM-L6-v2 by default, 384 dimensions).
type HuggingFaceProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewHuggingFaceProvider(apiKey, baseURL, model string) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = huggingFaceInferenceURL
	}
	if model == "" {
		model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	return &HuggingFaceProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type featureExtractionRequest struct {
	Inputs string `json:"inputs"`
}

func (p *HuggingFaceProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	url := fmt.Sprintf("%s/%s/pipeline/feature-extraction", p.baseURL, p.model)
	body, err := PostJSON(ctx, p.client, "huggingface", url, map[string]string{"Authorization": bearer(p.apiKey)}, featureExtractionRequest{Inputs: text})
	if err != nil {
		return nil, err
	}

	values, err := decodeFeatures(body)
	if err != nil {
		return nil, err
	}

	return &EmbeddingResponse{
		Embedding: EmbeddingResponseEmbedding{Values: normalizeVector(values)},
	}, nil
}

// decodeFeatures accepts a pooled sentence vector or per-token vectors, which are mean-pooled.
func decodeFeatures(body []byte) ([]float32, error) {
	var pooled []float32
	if err := json.Unmarshal(body, &pooled); err == nil {
		if len(pooled) == 0 {
			return nil, fmt.Errorf("empty embedding from huggingface api")
		}
		return pooled, nil
	}

	var tokens [][]float32
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("empty embedding from huggingface api")
	}

	mean := make([]float32, len(tokens[0]))
	for _, tok := range tokens {
		for i := range mean {
			if i < len(tok) {
				mean[i] += tok[i]
			}
		}
	}
	for i := range mean {
		mean[i] /= float32(len(tokens))
	}
	return mean, nil
}
