// Package domain holds the core data model shared by the monitoring
// components: interactions, health snapshots, and healing states.
// This package must not import any infrastructure packages.
package domain

import "time"

// Interaction is a single wrapped inference call. It is created once by
// the monitor, is immutable after creation, and is owned by the monitor
// until handed to the batch buffer or reporter.
type Interaction struct {
	// ID uniquely identifies this interaction
	ID string
	// AgentID is the monitored agent that served the interaction
	AgentID string
	// Prompt is the user prompt passed to the inference function
	Prompt string
	// Response is the text returned by the inference function
	Response string
	// Latency is how long the inference call took
	Latency time.Duration
	// Timestamp is when the interaction completed
	Timestamp time.Time
	// Sampled reports whether this interaction was selected for quality reporting
	Sampled bool
}

// Status is the categorical health judgment derived from recent quality scores.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// NeedsAttention returns true if the status should trigger a healing cycle.
func (s Status) NeedsAttention() bool {
	return s == StatusWarning || s == StatusCritical
}

// Trend is the direction of recent score movement.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// HealthSnapshot is the rolling health signal recomputed each time new
// scores arrive. It is a value copy and read-only to all consumers.
type HealthSnapshot struct {
	// AverageScore is the mean quality score over the window
	AverageScore float64
	// Trend compares the first half of the window to the second half
	Trend Trend
	// Status is derived from AverageScore
	Status Status
	// RecentIssues holds issue tags from recent scored interactions
	RecentIssues []string
	// SampleCount is the number of scores currently in the window
	SampleCount int
}

// HealingState tracks where an agent is in the scan/heal cycle.
type HealingState string

const (
	// HealingNotFlagged means the agent is not eligible for healing
	HealingNotFlagged HealingState = "not_flagged"
	// HealingFlagged means a scan marked the agent for healing
	HealingFlagged HealingState = "flagged"
	// HealingInProgress means a heal call is in flight
	HealingInProgress HealingState = "healing"
	// HealingHealed means the last heal succeeded
	HealingHealed HealingState = "healed"
	// HealingFailed means the last heal failed; retried only on the
	// next qualifying scan cycle
	HealingFailed HealingState = "failed"
)

// IsValid checks if the healing state value is valid.
func (s HealingState) IsValid() bool {
	switch s {
	case HealingNotFlagged, HealingFlagged, HealingInProgress, HealingHealed, HealingFailed:
		return true
	}
	return false
}
