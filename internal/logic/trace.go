package logic

import "github.com/panelworks/adserve/internal/models"

// TraceStep records the surviving candidates after a resolution stage.
type TraceStep struct {
	Stage   string            `json:"stage"`
	AdIDs   []int             `json:"ad_ids"`
	Details map[string]string `json:"details,omitempty"`
}

// SelectionTrace captures the ordered list of stages a placement resolution
// went through. A nil trace records nothing, so the hot path pays only a nil
// check when tracing is off.
type SelectionTrace struct {
	Steps []TraceStep `json:"steps"`
}

// AddStep appends a trace entry for the given stage.
func (t *SelectionTrace) AddStep(stage string, ads []models.Advertisement) {
	t.AddStepWithDetails(stage, ads, nil)
}

// AddStepWithDetails appends a trace entry with extra stage context.
func (t *SelectionTrace) AddStepWithDetails(stage string, ads []models.Advertisement, details map[string]string) {
	if t == nil {
		return
	}
	step := TraceStep{Stage: stage, Details: details}
	for i := range ads {
		step.AdIDs = append(step.AdIDs, ads[i].ID)
	}
	t.Steps = append(t.Steps, step)
}
