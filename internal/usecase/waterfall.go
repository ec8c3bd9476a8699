package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"relay-core/internal/domain/entity"
)

// Stage prompts frame the prior stage's output for the next role.
const (
	architectPrompt = `You are the Architect. Break the following task into a clear high-level plan with numbered steps. Be concise and concrete.

Task:
%s`

	reasonerPrompt = `You are the Reasoner. Examine the plan below, identify gaps, risks and ordering problems, and produce a refined, fully reasoned plan.

Plan:
%s`

	executorPrompt = `You are the Executor. Carry out the plan below and produce the complete final work product. Output only the result, no commentary about the plan itself.

Plan:
%s`

	reviewerPrompt = `You are the Reviewer. Check the output below against the plan it was built from. Fix mistakes, fill omissions and return the corrected final version.

Plan:
%s

Output:
%s`
)

// WaterfallConfig binds each role to a provider/model pair at
// configuration time.
type WaterfallConfig struct {
	Architect StageBindingRef
	Reasoner  StageBindingRef
	Executor  StageBindingRef
	Reviewer  StageBindingRef
}

// StageBindingRef aliases the entity binding for config wiring.
type StageBindingRef = entity.StageBinding

// WaterfallPipeline chains the four fixed roles, each already
// fault-tolerant internally through the failover router. Any stage
// failure halts the chain; there is no retry across stages.
type WaterfallPipeline struct {
	router *FailoverRouter
	cfg    WaterfallConfig
	log    zerolog.Logger
}

func NewWaterfallPipeline(router *FailoverRouter, cfg WaterfallConfig, log zerolog.Logger) *WaterfallPipeline {
	return &WaterfallPipeline{router: router, cfg: cfg, log: log}
}

// Run executes architect → reasoner → executor → reviewer strictly in
// order. On failure it returns the stage results gathered so far, tagged
// with the stage that halted the chain.
func (w *WaterfallPipeline) Run(ctx context.Context, task string) *entity.WaterfallResult {
	result := &entity.WaterfallResult{}

	plan, ok := w.runStage(ctx, result, entity.StageArchitect, w.cfg.Architect, fmt.Sprintf(architectPrompt, task))
	if !ok {
		return result
	}

	reasoned, ok := w.runStage(ctx, result, entity.StageReasoner, w.cfg.Reasoner, fmt.Sprintf(reasonerPrompt, plan))
	if !ok {
		return result
	}

	executed, ok := w.runStage(ctx, result, entity.StageExecutor, w.cfg.Executor, fmt.Sprintf(executorPrompt, reasoned))
	if !ok {
		return result
	}

	// The reviewer sees both the reasoned plan and the executor's output.
	_, _ = w.runStage(ctx, result, entity.StageReviewer, w.cfg.Reviewer, fmt.Sprintf(reviewerPrompt, reasoned, executed))
	return result
}

func (w *WaterfallPipeline) runStage(ctx context.Context, result *entity.WaterfallResult, stage entity.WaterfallStage, binding entity.StageBinding, prompt string) (string, bool) {
	req := &entity.ChatRequest{
		Messages:      []entity.Message{{Role: entity.RoleUser, Content: prompt}},
		Provider:      binding.Provider,
		Model:         binding.Model,
		FallbackModel: binding.FallbackModel,
		Mode:          entity.ModePlain,
	}

	resp, err := w.router.Execute(ctx, req, RouteOptions{AugmentedText: prompt})
	if err != nil {
		w.log.Warn().Err(err).Str("stage", string(stage)).Msg("waterfall stage failed, halting chain")
		result.FailedStage = stage
		result.Error = err.Error()
		return "", false
	}

	result.Stages = append(result.Stages, entity.StageResult{
		Stage:     stage,
		Output:    resp.Text,
		ModelUsed: resp.ModelUsed,
		Info:      resp.Info,
	})
	return resp.Text, true
}
