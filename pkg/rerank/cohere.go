package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docfoundry/docfoundry/pkg/config"
)

// CohereClient calls a Cohere-compatible rerank API.
type CohereClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
	model   string
}

type cohereRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

// RankedDocument is one provider result, in provider-descending order.
type RankedDocument struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type cohereRerankResponse struct {
	Results []RankedDocument `json:"results"`
}

// NewCohereClient creates the rerank client. A missing API key returns nil
// so callers fall back to the heuristic.
func NewCohereClient(cfg config.RerankerConfig) *CohereClient {
	if cfg.APIKey == "" {
		return nil
	}

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.cohere.com/v1"
	}
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &CohereClient{
		client:  &http.Client{Timeout: timeout},
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
	}
}

// Rerank scores documents against the query and returns the top topN in
// provider order.
func (c *CohereClient) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error) {
	reqBody, err := json.Marshal(cohereRerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/rerank", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response cohereRerankResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	return response.Results, nil
}
