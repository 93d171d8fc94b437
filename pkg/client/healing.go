package client

import (
	"context"
	"net/http"
)

// Healing strategies accepted by HealAgent.
const (
	// StrategyAuto applies an improved prompt directly, mutating the
	// agent's configuration server-side.
	StrategyAuto = "auto"
	// StrategySuggest returns a recommendation only, with no mutation.
	StrategySuggest = "suggest"
)

// TriggerScan asks the backend to evaluate agents and flag underperformers.
func (c *Client) TriggerScan(ctx context.Context) (*ScanResult, error) {
	var out ScanResult
	if err := c.do(ctx, http.MethodPost, "/self-healing/scan", nil, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetHealingStatus fetches the backend's flag state for an agent. The
// orchestrator uses this to refresh a stale local flag before healing.
func (c *Client) GetHealingStatus(ctx context.Context, agentID string) (*HealingStatus, error) {
	var out HealingStatus
	if err := c.do(ctx, http.MethodGet, "/self-healing/agent/"+agentID+"/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealAgent triggers healing for a flagged agent using the given strategy.
func (c *Client) HealAgent(ctx context.Context, agentID, strategy string) (*HealResult, error) {
	payload := struct {
		AgentID  string `json:"agent_id"`
		Strategy string `json:"strategy"`
	}{AgentID: agentID, Strategy: strategy}

	var out HealResult
	if err := c.do(ctx, http.MethodPost, "/agent/self_heal", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
