package caseflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/caseflow-dev/caseflow/store"
)

// Orchestrator walks one request through the fixed stage graph. Stages run
// strictly in order; the clarification pair is skipped when the request needs
// no clarification, and the DECIDE score picks exactly one of the UPDATE and
// CREATE branches.
type Orchestrator struct {
	registry   *Registry
	executor   *Executor
	logger     Logger
	middleware []StageMiddleware
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used by the orchestrator and its executor.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMiddleware appends stage middleware. Middleware wraps every stage
// execution in registration order, outermost first.
func WithMiddleware(mw ...StageMiddleware) Option {
	return func(o *Orchestrator) { o.middleware = append(o.middleware, mw...) }
}

// New constructs an orchestrator over a validated registry.
func New(registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		logger:   &DefaultLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.executor = NewExecutor(NewDispatcher(registry, o.logger), o.logger)
	return o
}

// Run executes one request to a terminal status. It never panics and never
// returns a nil result: fatal errors yield an aborted status with the partial
// state and the log accumulated so far.
func (o *Orchestrator) Run(ctx context.Context, req Request) *RunResult {
	start := time.Now()
	result := &RunResult{
		RunID:   uuid.NewString(),
		Request: req,
		State:   store.New(o.registry.Schema()),
	}

	if err := req.Validate(); err != nil {
		return o.finish(result, start, err)
	}
	for key, value := range req.seed() {
		if err := result.State.Put(key, value); err != nil {
			return o.finish(result, start, wrapError(ErrConfig, err, "seed field %s", key))
		}
	}

	o.logger.Info("run %s started for ticket %s", result.RunID, req.TicketID)

	handler := o.executor.RunStage
	for i := len(o.middleware) - 1; i >= 0; i-- {
		handler = o.middleware[i](handler)
	}

	escalated := false
	for _, st := range o.registry.Stages() {
		if err := ctx.Err(); err != nil {
			return o.finish(result, start, wrapError(ErrRunCancelled, err, "cancelled before stage %s", st.Name))
		}

		if reason, skip := o.skipReason(st.Name, result.State, escalated); skip {
			result.Log = append(result.Log, LogEntry{
				Stage:     st.Name,
				Outcome:   OutcomeSkipped,
				Detail:    reason,
				Timestamp: time.Now(),
			})
			o.logger.Debug("run %s stage %s skipped: %s", result.RunID, st.Name, reason)
			continue
		}

		entries, err := handler(ctx, st, result.State)
		result.Log = append(result.Log, entries...)
		if err != nil {
			return o.finish(result, start, err)
		}

		if st.Name == StageDecide {
			var derr error
			escalated, derr = o.decide(result)
			if derr != nil {
				return o.finish(result, start, derr)
			}
		}
	}

	status := StatusCompleted
	if escalated {
		status = StatusEscalatedCompleted
	}
	result.Status = status
	result.ExecutionTime = time.Since(start)
	observeRun(string(status), result.ExecutionTime)
	o.logger.Info("run %s finished: %s in %s", result.RunID, status, result.ExecutionTime)
	return result
}

// skipReason decides whether a stage is bypassed for this run. Skipped stages
// leave the state untouched; only a log entry records the bypass.
func (o *Orchestrator) skipReason(stage string, state *store.State, escalated bool) (string, bool) {
	switch stage {
	case StageAsk, StageWait:
		needs, err := store.GetOrDefault(state, FieldNeedsClarification, false)
		if err == nil && !needs {
			return "no clarification needed", true
		}
	case StageUpdate:
		if !escalated {
			return "not escalated", true
		}
	case StageCreate, StageDo:
		if escalated {
			return "escalated to human agent", true
		}
	}
	return "", false
}

// decide reads the solution score, applies the escalation rule and pins the
// decision into the state. The escalated flag is write-once; nothing after
// DECIDE can flip it.
func (o *Orchestrator) decide(result *RunResult) (bool, error) {
	score, err := store.Get[int](result.State, FieldSolutionScore)
	if err != nil {
		return false, wrapError(ErrProviderApplication, err, "decision stage produced no usable solution score")
	}
	if score < 0 || score > 100 {
		return false, newError(ErrProviderApplication, "solution score %d outside [0,100]", score)
	}

	escalated := o.registry.Escalate(score)
	if err := result.State.PutOnce(StageDecide, FieldEscalated, escalated); err != nil {
		return false, wrapError(ErrProviderApplication, err, "record escalation decision")
	}

	result.Log = append(result.Log, LogEntry{
		Stage:     StageDecide,
		Outcome:   OutcomeOK,
		Detail:    fmt.Sprintf("score=%d threshold=%d escalated=%v", score, o.registry.Threshold(), escalated),
		Timestamp: time.Now(),
	})
	o.logger.Info("run %s scored %d (threshold %d), escalated=%v",
		result.RunID, score, o.registry.Threshold(), escalated)
	return escalated, nil
}

func (o *Orchestrator) finish(result *RunResult, start time.Time, err error) *RunResult {
	kind, ok := KindOf(err)
	if !ok {
		kind = ErrProviderApplication
	}
	result.Err = err
	result.Status = AbortedStatus(kind)
	result.ExecutionTime = time.Since(start)
	observeRun(string(result.Status), result.ExecutionTime)
	o.logger.Error("run %s aborted: %v", result.RunID, err)
	return result
}
