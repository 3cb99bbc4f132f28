package domain

import "fmt"

// Stage names one pipeline queue. The string value doubles as the queue name.
type Stage string

const (
	StageInteraction   Stage = "interaction-query"
	StageExecution     Stage = "query-execution"
	StageVisualization Stage = "visualization"
)

var Stages = []Stage{StageInteraction, StageExecution, StageVisualization}

func (s Stage) String() string { return string(s) }

func (s Stage) Valid() bool {
	switch s {
	case StageInteraction, StageExecution, StageVisualization:
		return true
	}
	return false
}

func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return s, nil
}
