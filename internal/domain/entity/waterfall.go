package entity

// WaterfallStage names one role in the fixed architect→reasoner→executor→
// reviewer chain.
type WaterfallStage string

const (
	StageArchitect WaterfallStage = "architect"
	StageReasoner  WaterfallStage = "reasoner"
	StageExecutor  WaterfallStage = "executor"
	StageReviewer  WaterfallStage = "reviewer"
)

// WaterfallStages is the canonical execution order.
var WaterfallStages = []WaterfallStage{StageArchitect, StageReasoner, StageExecutor, StageReviewer}

// StageBinding pins a stage to a provider/model pair at configuration time.
// Stages are never user-selectable per call.
type StageBinding struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	FallbackModel string `json:"fallback_model,omitempty"`
}

// StageResult is one stage's raw output, tagged with the role that
// produced it and the model that actually answered.
type StageResult struct {
	Stage     WaterfallStage `json:"stage"`
	Output    string         `json:"output"`
	ModelUsed string         `json:"model"`
	Info      string         `json:"info,omitempty"`
}

// WaterfallResult is the pipeline artifact: the ordered stage results
// gathered before any failure, plus which stage halted the chain.
type WaterfallResult struct {
	Stages      []StageResult  `json:"stages"`
	FailedStage WaterfallStage `json:"failed_stage,omitempty"`
	Error       string         `json:"error,omitempty"`
}
