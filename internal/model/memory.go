package model

import "time"

// InteractionType classifies the interaction a memory chunk records.
type InteractionType string

const (
	InteractionTask     InteractionType = "task"
	InteractionSocial   InteractionType = "social"
	InteractionCampaign InteractionType = "campaign"
	InteractionAIAgent  InteractionType = "ai_agent"
	InteractionProfile  InteractionType = "profile"

	// InteractionGeneral is a session context type only; chunks never carry it.
	InteractionGeneral InteractionType = "general"
)

// ValidInteractionTypes are the allowed interaction types.
var ValidInteractionTypes = map[InteractionType]bool{
	InteractionTask:     true,
	InteractionSocial:   true,
	InteractionCampaign: true,
	InteractionAIAgent:  true,
	InteractionProfile:  true,
}

// ChunkMeta describes when and how a memory chunk was recorded.
type ChunkMeta struct {
	Timestamp       time.Time       `json:"timestamp"`
	InteractionType InteractionType `json:"interaction_type"`
	ContextID       string          `json:"context_id,omitempty"`
	Importance      float64         `json:"importance"`
	Tags            []string        `json:"tags,omitempty"`
}

// MemoryChunk is one stored, timestamped user interaction.
type MemoryChunk struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Content    string    `json:"content"`
	Metadata   ChunkMeta `json:"metadata"`
	Embeddings []float64 `json:"embeddings,omitempty"`
	Compressed bool      `json:"compressed,omitempty"`
	Archived   bool      `json:"archived,omitempty"`
	Flagged    bool      `json:"flagged,omitempty"`
}

// Age returns how long ago the chunk was recorded relative to now.
func (m MemoryChunk) Age(now time.Time) time.Duration {
	return now.Sub(m.Metadata.Timestamp)
}

// MemoryQuery selects memory chunks for retrieval.
type MemoryQuery struct {
	UserID          int64           `json:"user_id"`
	Query           string          `json:"query,omitempty"`
	InteractionType InteractionType `json:"interaction_type,omitempty"`
	ContextID       string          `json:"context_id,omitempty"`
	Since           time.Time       `json:"since,omitempty"`
	Until           time.Time       `json:"until,omitempty"`
	Limit           int             `json:"limit,omitempty"`
}

// RetrievalResult is the outcome of a memory query.
type RetrievalResult struct {
	Chunks          []MemoryChunk `json:"chunks"`
	RelevanceScores []float64     `json:"relevance_scores"`
	TotalFound      int           `json:"total_found"`
	QueryTime       time.Duration `json:"query_time"`
}

// MemoryStats summarizes a user's stored memory.
type MemoryStats struct {
	TotalMemories    int       `json:"total_memories"`
	CompressionLevel int       `json:"compression_level"`
	MemorySize       int64     `json:"memory_size"`
	LastInteraction  time.Time `json:"last_interaction,omitempty"`
}

// SessionContext is the working memory of one user session.
type SessionContext struct {
	SessionID      string          `json:"session_id"`
	UserID         int64           `json:"user_id"`
	StartTime      time.Time       `json:"start_time"`
	LastActivity   time.Time       `json:"last_activity"`
	WindowSize     int             `json:"window_size"`
	ActiveMemories []MemoryChunk   `json:"active_memories"`
	ContextType    InteractionType `json:"context_type"`
	RelevanceScore float64         `json:"relevance_score"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// Window returns the sliding window as a duration.
func (s *SessionContext) Window() time.Duration {
	return time.Duration(s.WindowSize) * time.Minute
}

// Activity is a new event observed within a session.
type Activity struct {
	Content         string          `json:"content,omitempty"`
	InteractionType InteractionType `json:"interaction_type,omitempty"`
	Importance      float64         `json:"importance,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
}

// ScoredMemory pairs a memory with its relevance to a context.
type ScoredMemory struct {
	Memory MemoryChunk `json:"memory"`
	Score  float64     `json:"score"`
}

// ContextMergeResult blends short-term and long-term memory for a session.
type ContextMergeResult struct {
	ShortTerm       []MemoryChunk  `json:"short_term"`
	LongTerm        []MemoryChunk  `json:"long_term"`
	ShortTermWeight float64        `json:"short_term_weight"`
	LongTermWeight  float64        `json:"long_term_weight"`
	Merged          []ScoredMemory `json:"merged"`
	RelevanceScores []float64      `json:"relevance_scores"`
	ContextSwitches int            `json:"context_switches"`
}

// ContextStats summarizes a user's sessions.
type ContextStats struct {
	ActiveContexts         int             `json:"active_contexts"`
	TotalSessions          int             `json:"total_sessions"`
	AverageSessionDuration time.Duration   `json:"average_session_duration"`
	MostUsedContext        InteractionType `json:"most_used_context"`
}

// RuleType is the dimension a pruning rule inspects.
type RuleType string

const (
	RuleAge         RuleType = "age"
	RuleRelevance   RuleType = "relevance"
	RuleSize        RuleType = "size"
	RuleRedundancy  RuleType = "redundancy"
	RuleUserRequest RuleType = "user_request"
)

// Operator compares a memory attribute against a rule value.
type Operator string

const (
	OpGT          Operator = "gt"
	OpLT          Operator = "lt"
	OpEQ          Operator = "eq"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

// Action is what a matching pruning rule does to a memory.
type Action string

const (
	ActionDelete   Action = "delete"
	ActionCompress Action = "compress"
	ActionArchive  Action = "archive"
	ActionFlag     Action = "flag"
)

// RuleCondition is the comparison a rule performs. Value is numeric for
// age (milliseconds), relevance, size (bytes) and redundancy rules.
type RuleCondition struct {
	Operator  Operator `json:"operator" yaml:"operator"`
	Value     float64  `json:"value" yaml:"value"`
	Text      string   `json:"text,omitempty" yaml:"text,omitempty"`
	Threshold float64  `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// PruningRule is one condition and action inside a policy.
type PruningRule struct {
	Type      RuleType      `json:"type" yaml:"type"`
	Condition RuleCondition `json:"condition" yaml:"condition"`
	Action    Action        `json:"action" yaml:"action"`
	Weight    float64       `json:"weight" yaml:"weight"`
}

// PruningSchedule controls how often a policy is meant to run.
type PruningSchedule struct {
	Frequency string `json:"frequency" yaml:"frequency"`
	Time      string `json:"time,omitempty" yaml:"time,omitempty"`
}

// PruningPolicy is a named, prioritized set of rules.
type PruningPolicy struct {
	ID       string           `json:"id" yaml:"id"`
	Name     string           `json:"name" yaml:"name"`
	Rules    []PruningRule    `json:"rules" yaml:"rules"`
	Enabled  bool             `json:"enabled" yaml:"enabled"`
	Priority int              `json:"priority" yaml:"priority"`
	Schedule *PruningSchedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// PruningResult reports one pruning run.
type PruningResult struct {
	Processed      int           `json:"processed"`
	Deleted        int           `json:"deleted"`
	Compressed     int           `json:"compressed"`
	Archived       int           `json:"archived"`
	Flagged        int           `json:"flagged"`
	Errors         []string      `json:"errors,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
	NextSchedule   time.Time     `json:"next_schedule"`
}

// DecayFunction names a relevance decay curve.
type DecayFunction string

const (
	DecayLinear      DecayFunction = "linear"
	DecayExponential DecayFunction = "exponential"
	DecayLogarithmic DecayFunction = "logarithmic"
)

// DecayConfig tunes relevance decay.
type DecayConfig struct {
	BaseDecayRate       float64       `json:"base_decay_rate" yaml:"base_decay_rate"`
	ContextualBoost     float64       `json:"contextual_boost" yaml:"contextual_boost"`
	InteractionBoost    float64       `json:"interaction_boost" yaml:"interaction_boost"`
	ImportanceThreshold float64       `json:"importance_threshold" yaml:"importance_threshold"`
	DecayFunction       DecayFunction `json:"decay_function" yaml:"decay_function"`
}

// DefaultDecayConfig returns the default decay tuning.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		BaseDecayRate:       0.1,
		ContextualBoost:     0.2,
		InteractionBoost:    0.3,
		ImportanceThreshold: 0.3,
		DecayFunction:       DecayExponential,
	}
}
