package client

import (
	"context"
	"net/http"
)

// RegisterAgentRequest carries the fields for agent registration.
type RegisterAgentRequest struct {
	Name         string `json:"agent_name"`
	AgentType    string `json:"agent_type"`
	LLM          string `json:"llm"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// RegisterAgent registers a new agent on the platform.
func (c *Client) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodPost, "/agent/register", nil, req, &out); err != nil {
		return nil, err
	}
	if out.Name == "" {
		out.Name = req.Name
	}
	if out.AgentType == "" {
		out.AgentType = req.AgentType
	}
	return &out, nil
}

// ListAgents lists all agents visible to the credential.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var out []Agent
	if err := c.do(ctx, http.MethodGet, "/user/agents", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAgent updates mutable agent fields. Only non-zero fields in update
// are sent.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, update map[string]any) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodPut, "/agent/"+agentID, nil, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAgent removes an agent.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	return c.do(ctx, http.MethodDelete, "/agent/"+agentID, nil, nil, nil)
}

// GetPromptHistory fetches the prompt revision history for an agent,
// including revisions written by auto healing.
func (c *Client) GetPromptHistory(ctx context.Context, agentID string) ([]PromptRevision, error) {
	var out []PromptRevision
	if err := c.do(ctx, http.MethodGet, "/agent/"+agentID+"/prompt/history", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
