package caseflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow-dev/caseflow"
	"github.com/caseflow-dev/caseflow/provider"
	"github.com/caseflow-dev/caseflow/provider/atlas"
	"github.com/caseflow-dev/caseflow/provider/common"
	"github.com/caseflow-dev/caseflow/store"
)

func demoRequest() caseflow.Request {
	return caseflow.Request{
		CustomerName:        "Aisha Jain",
		Email:               "aisha.jain@example.com",
		Query:               "My package arrived damaged and I need a replacement for order #A123 as soon as possible.",
		Priority:            "high",
		TicketID:            "TCK-1001",
		ClarificationAnswer: "Please ship the replacement to the address on file.",
	}
}

func newOrchestrator(t *testing.T, providers map[string]provider.Provider) *caseflow.Orchestrator {
	t.Helper()
	if providers == nil {
		providers = map[string]provider.Provider{
			common.ProviderName: common.New(),
			atlas.ProviderName:  atlas.NewDetached(),
		}
	}
	registry, err := caseflow.NewRegistry(fastConfig(), providers)
	require.NoError(t, err)
	return caseflow.New(registry, caseflow.WithLogger(NewTestLogger(t)))
}

func entriesFor(result *caseflow.RunResult, stage string) []caseflow.LogEntry {
	var out []caseflow.LogEntry
	for _, e := range result.Log {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

func TestRunDemoCompletes(t *testing.T) {
	orch := newOrchestrator(t, nil)

	result := orch.Run(context.Background(), demoRequest())

	require.NotNil(t, result)
	require.NoError(t, result.Err)
	assert.Equal(t, caseflow.StatusCompleted, result.Status)
	assert.NotEmpty(t, result.RunID)

	score, err := store.Get[int](result.State, caseflow.FieldSolutionScore)
	require.NoError(t, err)
	assert.Equal(t, 95, score)

	escalated, err := store.Get[bool](result.State, caseflow.FieldEscalated)
	require.NoError(t, err)
	assert.False(t, escalated)

	// Clarification already answered, so the ASK/WAIT pair is bypassed.
	for _, stage := range []string{caseflow.StageAsk, caseflow.StageWait} {
		entries := entriesFor(result, stage)
		require.Len(t, entries, 1)
		assert.Equal(t, caseflow.OutcomeSkipped, entries[0].Outcome)
	}

	// Non-escalated branch: UPDATE skipped, CREATE and DO executed.
	update := entriesFor(result, caseflow.StageUpdate)
	require.Len(t, update, 1)
	assert.Equal(t, caseflow.OutcomeSkipped, update[0].Outcome)
	assert.NotEmpty(t, entriesFor(result, caseflow.StageCreate))
	assert.True(t, result.State.Has("ai_response"))
	assert.True(t, result.State.Has("output_ready"))
}

func TestRunEscalatesOnLowScore(t *testing.T) {
	providers := map[string]provider.Provider{
		common.ProviderName: &overrideProvider{
			base: common.New(),
			overrides: map[string]func(map[string]any) (map[string]any, error){
				"solution_evaluation": func(map[string]any) (map[string]any, error) {
					return map[string]any{"solution_score": 85}, nil
				},
			},
		},
		atlas.ProviderName: atlas.NewDetached(),
	}
	orch := newOrchestrator(t, providers)

	result := orch.Run(context.Background(), demoRequest())

	require.NoError(t, result.Err)
	assert.Equal(t, caseflow.StatusEscalatedCompleted, result.Status)

	escalated, err := store.Get[bool](result.State, caseflow.FieldEscalated)
	require.NoError(t, err)
	assert.True(t, escalated)

	// Escalated branch: UPDATE runs, CREATE and DO are bypassed.
	update := entriesFor(result, caseflow.StageUpdate)
	require.NotEmpty(t, update)
	assert.NotEqual(t, caseflow.OutcomeSkipped, update[0].Outcome)
	for _, stage := range []string{caseflow.StageCreate, caseflow.StageDo} {
		entries := entriesFor(result, stage)
		require.Len(t, entries, 1)
		assert.Equal(t, caseflow.OutcomeSkipped, entries[0].Outcome)
	}
	assert.False(t, result.State.Has("draft_response"))
	assert.True(t, result.State.Has("ticket_updates"))
	assert.True(t, result.State.Has("output_ready"))
}

func TestEscalatedFlagIsWriteOnce(t *testing.T) {
	orch := newOrchestrator(t, nil)
	result := orch.Run(context.Background(), demoRequest())
	require.NoError(t, result.Err)

	err := result.State.Put(caseflow.FieldEscalated, true)
	assert.ErrorIs(t, err, store.ErrWriteOnce)
}

func TestClarificationPathRuns(t *testing.T) {
	orch := newOrchestrator(t, nil)

	req := demoRequest()
	req.ClarificationAnswer = ""
	result := orch.Run(context.Background(), req)

	require.NoError(t, result.Err)
	assert.Equal(t, caseflow.StatusCompleted, result.Status)

	// A replacement request with no address and no answer triggers the
	// clarification round.
	assert.True(t, result.State.Has("clarification_question"))
	info, err := store.Get[string](result.State, "extracted_info")
	require.NoError(t, err)
	assert.Equal(t, "No answer provided", info)

	score, err := store.Get[int](result.State, caseflow.FieldSolutionScore)
	require.NoError(t, err)
	assert.Equal(t, 90, score)
}

func TestClarificationSkipLeavesStateUntouched(t *testing.T) {
	orch := newOrchestrator(t, nil)

	req := demoRequest()
	req.Query = "Where is my order #A123? I just want a status update."
	req.ClarificationAnswer = ""
	result := orch.Run(context.Background(), req)

	require.NoError(t, result.Err)
	assert.False(t, result.State.Has("clarification_question"))
	assert.False(t, result.State.Has("extracted_info"))
	assert.False(t, result.State.Has("clarification_answer"))
	for _, stage := range []string{caseflow.StageAsk, caseflow.StageWait} {
		entries := entriesFor(result, stage)
		require.Len(t, entries, 1)
		assert.Equal(t, caseflow.OutcomeSkipped, entries[0].Outcome)
		assert.Empty(t, entries[0].Ability)
	}
}

func TestAtlasUnreachableFallsBack(t *testing.T) {
	providers := map[string]provider.Provider{
		common.ProviderName: common.New(),
		atlas.ProviderName: &stubProvider{
			name: atlas.ProviderName,
			invoke: func(context.Context, string, map[string]any, map[string]any) (map[string]any, error) {
				return nil, errors.New("connection refused")
			},
			health: provider.StatusDown,
		},
	}
	orch := newOrchestrator(t, providers)

	result := orch.Run(context.Background(), demoRequest())

	require.NoError(t, result.Err)
	assert.Equal(t, caseflow.StatusCompleted, result.Status)

	var fallbacks int
	for _, e := range result.Log {
		if e.Fallback {
			fallbacks++
			assert.Equal(t, atlas.ProviderName, e.Provider)
		}
	}
	assert.NotZero(t, fallbacks)

	// The fallback knowledge-base hit still feeds the score.
	results, err := store.Get[[]any](result.State, "kb_results")
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	score, err := store.Get[int](result.State, caseflow.FieldSolutionScore)
	require.NoError(t, err)
	assert.Equal(t, 95, score)
}

func TestRunCancelledBetweenStages(t *testing.T) {
	orch := newOrchestrator(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := orch.Run(ctx, demoRequest())

	require.Error(t, result.Err)
	kind, ok := caseflow.KindOf(result.Err)
	require.True(t, ok)
	assert.Equal(t, caseflow.ErrRunCancelled, kind)
	assert.True(t, result.Status.Aborted())
	assert.Equal(t, caseflow.AbortedStatus(caseflow.ErrRunCancelled), result.Status)
}

func TestInvalidRequestAborts(t *testing.T) {
	orch := newOrchestrator(t, nil)

	result := orch.Run(context.Background(), caseflow.Request{Query: "help"})

	require.Error(t, result.Err)
	kind, ok := caseflow.KindOf(result.Err)
	require.True(t, ok)
	assert.Equal(t, caseflow.ErrInvalidRequest, kind)
	assert.Contains(t, result.Err.Error(), "customer_name")
	assert.Contains(t, result.Err.Error(), "ticket_id")
	assert.Empty(t, result.Log)
	assert.Zero(t, result.State.Len())
}

func TestApplicationErrorAbortsRun(t *testing.T) {
	providers := map[string]provider.Provider{
		common.ProviderName: &overrideProvider{
			base: common.New(),
			overrides: map[string]func(map[string]any) (map[string]any, error){
				"solution_evaluation": func(map[string]any) (map[string]any, error) {
					return nil, provider.NewApplicationError("solution_evaluation", "scoring model rejected input")
				},
			},
		},
		atlas.ProviderName: atlas.NewDetached(),
	}
	orch := newOrchestrator(t, providers)

	result := orch.Run(context.Background(), demoRequest())

	require.Error(t, result.Err)
	kind, _ := caseflow.KindOf(result.Err)
	assert.Equal(t, caseflow.ErrProviderApplication, kind)
	// Partial state survives the abort.
	assert.True(t, result.State.Has("kb_results"))
}

func TestConcurrentRuns(t *testing.T) {
	orch := newOrchestrator(t, nil)

	const n = 8
	results := make([]*caseflow.RunResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := demoRequest()
			req.TicketID = fmt.Sprintf("TCK-10%02d", i)
			results[i] = orch.Run(context.Background(), req)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i, result := range results {
		require.NoError(t, result.Err, "run %d", i)
		assert.Equal(t, caseflow.StatusCompleted, result.Status)
		assert.False(t, seen[result.RunID], "duplicate run id")
		seen[result.RunID] = true

		ticket, err := store.Get[string](result.State, "ticket_id")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("TCK-10%02d", i), ticket)
	}
}
