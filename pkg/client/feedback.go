package client

import (
	"context"
	"net/http"
	"net/url"
)

// SubmitFeedback submits a single interaction for quality scoring.
func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error) {
	var out FeedbackResult
	if err := c.do(ctx, http.MethodPost, "/feedback/customer", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitFeedbackBatch submits a batch of interactions in one exchange.
// Results are returned in submission order.
func (c *Client) SubmitFeedbackBatch(ctx context.Context, reqs []FeedbackRequest) ([]FeedbackResult, error) {
	payload := struct {
		Interactions []FeedbackRequest `json:"interactions"`
	}{Interactions: reqs}

	var out struct {
		Results []FeedbackResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/feedback/customer/batch", nil, payload, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetHealth fetches the backend's health view of an agent.
func (c *Client) GetHealth(ctx context.Context, agentID string) (*AgentHealth, error) {
	q := url.Values{"agent_id": {agentID}}
	var out AgentHealth
	if err := c.do(ctx, http.MethodGet, "/agent/external/health", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInsights fetches summarized feedback insights for an agent.
func (c *Client) GetInsights(ctx context.Context, agentID string) (*Insights, error) {
	q := url.Values{"agent_id": {agentID}}
	var out Insights
	if err := c.do(ctx, http.MethodGet, "/agent/feedback/insights", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAnalytics fetches detailed analytics for an agent. The optional tool
// and useCase filters narrow the result; empty strings match everything.
func (c *Client) GetAnalytics(ctx context.Context, agentID, tool, useCase string) (map[string]any, error) {
	q := url.Values{"agent_id": {agentID}}
	if tool != "" {
		q.Set("tool", tool)
	}
	if useCase != "" {
		q.Set("use_case", useCase)
	}
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/feedback/agent/analytics", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
