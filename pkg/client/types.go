package client

// FeedbackRequest carries a single interaction to the scoring backend.
type FeedbackRequest struct {
	Prompt         string `json:"prompt"`
	Response       string `json:"response"`
	Tool           string `json:"tool"`
	UseCase        string `json:"use_case"`
	AgentID        string `json:"agent_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// FeedbackResult is the backend's quality evaluation of one interaction.
type FeedbackResult struct {
	Score      float64 `json:"score"`
	Issue      string  `json:"issue"`
	FeedbackID string  `json:"feedback_log_id"`
	Timestamp  string  `json:"timestamp"`
}

// AgentHealth is the backend's view of an agent's recent quality.
type AgentHealth struct {
	AgentID           string  `json:"agent_id"`
	Status            string  `json:"status"`
	AverageScore      float64 `json:"average_score"`
	TotalInteractions int     `json:"total_interactions"`
}

// ScanResult reports the outcome of a self-healing scan.
type ScanResult struct {
	TotalAgentsScanned int      `json:"total_agents_scanned"`
	AgentsFlagged      []string `json:"agents_flagged"`
}

// Flagged reports whether the given agent was flagged by the scan.
func (r *ScanResult) Flagged(agentID string) bool {
	for _, id := range r.AgentsFlagged {
		if id == agentID {
			return true
		}
	}
	return false
}

// HealingStatus is the backend's flag state for a single agent.
type HealingStatus struct {
	AgentID            string `json:"agent_id"`
	HealingRecommended bool   `json:"healing_recommended"`
	LastScanAt         string `json:"last_scan_at,omitempty"`
}

// HealResult is the outcome of a heal operation. AppliedPrompt is set when
// strategy "auto" mutated the agent's prompt; Suggestion is set when
// strategy "suggest" returned a recommendation only.
type HealResult struct {
	AppliedPrompt string `json:"applied_prompt,omitempty"`
	Suggestion    string `json:"suggestion,omitempty"`
	PromptUpdated bool   `json:"prompt_updated"`
	Message       string `json:"message,omitempty"`
}

// Agent is a registered agent on the platform.
type Agent struct {
	ID                 string `json:"agent_id"`
	Name               string `json:"agent_name"`
	Description        string `json:"description,omitempty"`
	AgentType          string `json:"agent_type"`
	LLM                string `json:"llm"`
	SystemPrompt       string `json:"system_prompt,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
	HealingRecommended bool   `json:"healing_recommended"`
}

// PromptRevision is one entry in an agent's prompt history.
type PromptRevision struct {
	Revision  int    `json:"revision"`
	Prompt    string `json:"prompt"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Insights summarizes recent feedback for an agent.
type Insights struct {
	AgentID          string   `json:"agent_id"`
	AgentName        string   `json:"agent_name"`
	RecentIssues     []string `json:"recent_issues"`
	ScoreTrend       string   `json:"score_trend"`
	FeedbackCount    int      `json:"feedback_count"`
	AverageScore     float64  `json:"average_score"`
	SuggestedActions []string `json:"suggested_actions"`
	LastUpdated      string   `json:"last_updated"`
}

// Webhook is a registered delivery target for platform events.
type Webhook struct {
	ID         int               `json:"id,omitempty"`
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Events     []string          `json:"events,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	RetryCount int               `json:"retry_count"`
	TimeoutSec int               `json:"timeout"`
	IsActive   bool              `json:"is_active"`
}

// WebhookDelivery is one entry in a webhook's delivery history.
type WebhookDelivery struct {
	ID         int    `json:"id"`
	Event      string `json:"event"`
	StatusCode int    `json:"status_code"`
	Success    bool   `json:"success"`
	CreatedAt  string `json:"created_at"`
}
