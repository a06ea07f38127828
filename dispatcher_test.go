package caseflow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow-dev/caseflow"
	"github.com/caseflow-dev/caseflow/provider"
	"github.com/caseflow-dev/caseflow/provider/atlas"
	"github.com/caseflow-dev/caseflow/provider/common"
)

func newDispatcher(t *testing.T, commonImpl provider.Provider) *caseflow.Dispatcher {
	t.Helper()
	providers := map[string]provider.Provider{
		common.ProviderName: commonImpl,
		atlas.ProviderName:  atlas.NewDetached(),
	}
	registry, err := caseflow.NewRegistry(fastConfig(), providers)
	require.NoError(t, err)
	return caseflow.NewDispatcher(registry, NewTestLogger(t))
}

func TestDispatcherRetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	stub := &stubProvider{
		name: common.ProviderName,
		invoke: func(context.Context, string, map[string]any, map[string]any) (map[string]any, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("connection reset")
			}
			return map[string]any{"accepted": true}, nil
		},
	}
	d := newDispatcher(t, stub)

	ab := caseflow.Ability{Name: "accept_payload", Provider: common.ProviderName, Outputs: []string{"accepted"}}
	fields, outcome, err := d.Invoke(context.Background(), caseflow.StageIntake, ab, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, caseflow.OutcomeOK, outcome)
	assert.Equal(t, map[string]any{"accepted": true}, fields)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDispatcherFallsBackAfterExhaustion(t *testing.T) {
	var calls atomic.Int32
	stub := &stubProvider{
		name: common.ProviderName,
		invoke: func(context.Context, string, map[string]any, map[string]any) (map[string]any, error) {
			calls.Add(1)
			return nil, errors.New("no route to host")
		},
	}
	d := newDispatcher(t, stub)

	ab := caseflow.Ability{
		Name:     "solution_evaluation",
		Provider: common.ProviderName,
		Fallback: map[string]any{"solution_score": 50},
	}
	fields, outcome, err := d.Invoke(context.Background(), caseflow.StageDecide, ab, map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, caseflow.OutcomeFallback, outcome)
	assert.Equal(t, map[string]any{"solution_score": 50}, fields)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDispatcherFailsWithoutFallback(t *testing.T) {
	stub := &stubProvider{
		name: common.ProviderName,
		invoke: func(context.Context, string, map[string]any, map[string]any) (map[string]any, error) {
			return nil, errors.New("no route to host")
		},
	}
	d := newDispatcher(t, stub)

	ab := caseflow.Ability{Name: "accept_payload", Provider: common.ProviderName}
	_, outcome, err := d.Invoke(context.Background(), caseflow.StageIntake, ab, map[string]any{})

	require.Error(t, err)
	assert.Equal(t, caseflow.OutcomeFailed, outcome)
	kind, ok := caseflow.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, caseflow.ErrProviderTransport, kind)
}

func TestDispatcherDoesNotRetryApplicationErrors(t *testing.T) {
	var calls atomic.Int32
	stub := &stubProvider{
		name: common.ProviderName,
		invoke: func(_ context.Context, ability string, _ map[string]any, _ map[string]any) (map[string]any, error) {
			calls.Add(1)
			return nil, provider.NewApplicationError(ability, "payload rejected")
		},
	}
	d := newDispatcher(t, stub)

	ab := caseflow.Ability{
		Name:     "accept_payload",
		Provider: common.ProviderName,
		Fallback: map[string]any{"accepted": true},
	}
	_, outcome, err := d.Invoke(context.Background(), caseflow.StageIntake, ab, map[string]any{})

	require.Error(t, err)
	assert.Equal(t, caseflow.OutcomeFailed, outcome)
	kind, _ := caseflow.KindOf(err)
	assert.Equal(t, caseflow.ErrProviderApplication, kind)
	// The fallback never masks an application-level rejection.
	assert.EqualValues(t, 1, calls.Load())
}

func TestDispatcherHonorsCancellation(t *testing.T) {
	stub := &stubProvider{
		name: common.ProviderName,
		invoke: func(ctx context.Context, _ string, _ map[string]any, _ map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	d := newDispatcher(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ab := caseflow.Ability{Name: "accept_payload", Provider: common.ProviderName}
	_, _, err := d.Invoke(ctx, caseflow.StageIntake, ab, map[string]any{})

	require.Error(t, err)
	kind, _ := caseflow.KindOf(err)
	assert.Equal(t, caseflow.ErrRunCancelled, kind)
}
