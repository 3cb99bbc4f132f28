package domain

import "encoding/json"

type QueryContext struct {
	RecentActions []string `json:"recentActions"`
	CurrentAction string   `json:"currentAction"`
}

// GeneratedQuery is one research question produced from an interaction.
type GeneratedQuery struct {
	UserID        string       `json:"userId"`
	Query         string       `json:"query"`
	Context       QueryContext `json:"context"`
	Timestamp     int64        `json:"timestamp"`
	SourceEventID string       `json:"sourceEventId,omitempty"`
	// SourceIndex is the query's position among those generated for
	// SourceEventID.
	SourceIndex int `json:"sourceIndex,omitempty"`
}

// ExecutionOutput is the normalized reasoner reply. ToolResults entries are
// passed through untouched.
type ExecutionOutput struct {
	Text        string            `json:"text"`
	ToolResults []json.RawMessage `json:"toolResults"`
}

// Normalize guarantees a non-nil ToolResults slice.
func (o ExecutionOutput) Normalize() ExecutionOutput {
	if o.ToolResults == nil {
		o.ToolResults = []json.RawMessage{}
	}
	return o
}

type QueryExecutionResult struct {
	UserID    string          `json:"userId"`
	Query     string          `json:"query"`
	Result    ExecutionOutput `json:"result"`
	Timestamp int64           `json:"timestamp"`
}

type VisualizationRecord struct {
	UserID        string            `json:"userId"`
	Query         string            `json:"query"`
	Text          string            `json:"text"`
	ToolResults   []json.RawMessage `json:"toolResults"`
	AdaptiveCards json.RawMessage   `json:"adaptiveCards"`
	Timestamp     int64             `json:"timestamp"`
	IsPartial     bool              `json:"isPartial"`
	StepNumber    int               `json:"stepNumber,omitempty"`
}

// VisualizationJob is the stage 3 payload: a result plus its partial marker.
type VisualizationJob struct {
	Result     QueryExecutionResult `json:"result"`
	IsPartial  bool                 `json:"isPartial"`
	StepNumber int                  `json:"stepNumber,omitempty"`
}
