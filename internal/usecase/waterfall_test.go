package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-core/internal/domain/entity"
	"relay-core/internal/domain/repository"
)

func waterfallFor(providers map[string]repository.Provider) *WaterfallPipeline {
	aug := NewPromptAugmenter(&stubSearch{}, zerolog.Nop())
	router := NewFailoverRouter(providers, &stubPrefs{}, &stubUsage{}, aug, NewCostEstimator(0), zerolog.Nop())
	cfg := WaterfallConfig{
		Architect: entity.StageBinding{Provider: "architect", Model: "a-model"},
		Reasoner:  entity.StageBinding{Provider: "reasoner", Model: "r-model"},
		Executor:  entity.StageBinding{Provider: "executor", Model: "e-model"},
		Reviewer:  entity.StageBinding{Provider: "reviewer", Model: "v-model"},
	}
	return NewWaterfallPipeline(router, cfg, zerolog.Nop())
}

func TestWaterfallFullRun(t *testing.T) {
	t.Parallel()
	architect := &stubProvider{name: "architect", text: "the plan"}
	reasoner := &stubProvider{name: "reasoner", text: "the refined plan"}
	executor := &stubProvider{name: "executor", text: "the work"}
	reviewer := &stubProvider{name: "reviewer", text: "the final work"}

	w := waterfallFor(map[string]repository.Provider{
		"architect": architect, "reasoner": reasoner, "executor": executor, "reviewer": reviewer,
	})

	result := w.Run(context.Background(), "build a thing")
	require.Empty(t, result.FailedStage)
	require.Len(t, result.Stages, 4)

	assert.Equal(t, entity.StageArchitect, result.Stages[0].Stage)
	assert.Equal(t, entity.StageReasoner, result.Stages[1].Stage)
	assert.Equal(t, entity.StageExecutor, result.Stages[2].Stage)
	assert.Equal(t, entity.StageReviewer, result.Stages[3].Stage)
	assert.Equal(t, "the final work", result.Stages[3].Output)

	// Each stage consumes the previous stage's output.
	assert.Contains(t, reasoner.lastPrompt(), "the plan")
	assert.Contains(t, executor.lastPrompt(), "the refined plan")
	// The reviewer sees both the plan and the executor's output.
	assert.Contains(t, reviewer.lastPrompt(), "the refined plan")
	assert.Contains(t, reviewer.lastPrompt(), "the work")
}

func TestWaterfallExecutorFailureHaltsChain(t *testing.T) {
	t.Parallel()
	architect := &stubProvider{name: "architect", text: "the plan"}
	reasoner := &stubProvider{name: "reasoner", text: "the refined plan"}
	executor := &stubProvider{name: "executor", err: networkErr("executor")}
	reviewer := &stubProvider{name: "reviewer", text: "never"}

	w := waterfallFor(map[string]repository.Provider{
		"architect": architect, "reasoner": reasoner, "executor": executor, "reviewer": reviewer,
	})

	result := w.Run(context.Background(), "build a thing")
	assert.Equal(t, entity.StageExecutor, result.FailedStage)
	assert.NotEmpty(t, result.Error)
	require.Len(t, result.Stages, 2, "only architect and reasoner outputs survive")
	assert.Equal(t, entity.StageArchitect, result.Stages[0].Stage)
	assert.Equal(t, entity.StageReasoner, result.Stages[1].Stage)
	assert.Zero(t, reviewer.calls(), "no stage runs after a halt")
}

func TestWaterfallStageFallbackKeepsChainAlive(t *testing.T) {
	t.Parallel()
	// Executor's primary model is over quota; its configured fallback
	// model answers, so the chain continues.
	architect := &stubProvider{name: "architect", text: "plan"}
	reasoner := &stubProvider{name: "reasoner", text: "reasoned"}
	executor := &flakyProvider{stubProvider: stubProvider{name: "executor", text: "done"}, failFirst: quotaErr("executor")}
	reviewer := &stubProvider{name: "reviewer", text: "approved"}

	aug := NewPromptAugmenter(&stubSearch{}, zerolog.Nop())
	router := NewFailoverRouter(map[string]repository.Provider{
		"architect": architect, "reasoner": reasoner, "executor": executor, "reviewer": reviewer,
	}, &stubPrefs{}, &stubUsage{}, aug, NewCostEstimator(0), zerolog.Nop())

	cfg := WaterfallConfig{
		Architect: entity.StageBinding{Provider: "architect", Model: "a"},
		Reasoner:  entity.StageBinding{Provider: "reasoner", Model: "r"},
		Executor:  entity.StageBinding{Provider: "executor", Model: "e-big", FallbackModel: "e-small"},
		Reviewer:  entity.StageBinding{Provider: "reviewer", Model: "v"},
	}
	w := NewWaterfallPipeline(router, cfg, zerolog.Nop())

	result := w.Run(context.Background(), "task")
	require.Empty(t, result.FailedStage)
	require.Len(t, result.Stages, 4)
	assert.Equal(t, InfoFallbackEngaged, result.Stages[2].Info)
	assert.Equal(t, "e-small", result.Stages[2].ModelUsed)
}

// flakyProvider fails the first chat call, then answers normally.
type flakyProvider struct {
	stubProvider
	failFirst error
}

func (p *flakyProvider) Chat(ctx context.Context, history []entity.Message, model string, opts entity.ChatOptions) (string, int, error) {
	if p.failFirst != nil {
		err := p.failFirst
		p.failFirst = nil
		return "", 0, err
	}
	return p.stubProvider.Chat(ctx, history, model, opts)
}
