package caseflow

import (
	"context"
	"strings"
	"time"

	"github.com/caseflow-dev/caseflow/store"
)

// Executor runs the abilities of one stage in declaration order against the
// shared state. Only a stage's declared outputs are merged back; anything
// else a provider returns is dropped.
type Executor struct {
	dispatcher *Dispatcher
	logger     Logger
}

// NewExecutor constructs an executor over the dispatcher.
func NewExecutor(dispatcher *Dispatcher, logger Logger) *Executor {
	if logger == nil {
		logger = &DefaultLogger{}
	}
	return &Executor{dispatcher: dispatcher, logger: logger}
}

// RunStage executes every ability of st sequentially. It returns one log
// entry per ability; on a fatal error the entries up to and including the
// failing ability are still returned.
func (e *Executor) RunStage(ctx context.Context, st Stage, state *store.State) ([]LogEntry, error) {
	entries := make([]LogEntry, 0, len(st.Abilities))

	for _, ab := range st.Abilities {
		if missing := missingInputs(ab, state); len(missing) > 0 {
			err := newError(ErrMissingInput, "ability %s in stage %s missing inputs: %s",
				ab.Name, st.Name, strings.Join(missing, ", "))
			entries = append(entries, abilityEntry(st.Name, ab, OutcomeFailed, err.Error()))
			return entries, err
		}

		fields, outcome, err := e.dispatcher.Invoke(ctx, st.Name, ab, state.Snapshot())
		if err != nil {
			entries = append(entries, abilityEntry(st.Name, ab, OutcomeFailed, err.Error()))
			return entries, err
		}

		for _, key := range ab.Outputs {
			value, ok := fields[key]
			if !ok {
				continue
			}
			if err := state.PutFrom(st.Name, ab.Name, key, value); err != nil {
				err = wrapError(ErrProviderApplication, err,
					"ability %s produced invalid value for %s", ab.Name, key)
				entries = append(entries, abilityEntry(st.Name, ab, OutcomeFailed, err.Error()))
				return entries, err
			}
		}

		detail := ""
		if outcome == OutcomeFallback {
			detail = "fallback output substituted"
		}
		entries = append(entries, abilityEntry(st.Name, ab, outcome, detail))
		e.logger.Debug("stage %s ability %s via %s: %s", st.Name, ab.Name, ab.Provider, outcome)
	}
	return entries, nil
}

func missingInputs(ab Ability, state *store.State) []string {
	var missing []string
	for _, key := range ab.Inputs {
		if !state.Has(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

func abilityEntry(stage string, ab Ability, outcome, detail string) LogEntry {
	return LogEntry{
		Stage:     stage,
		Ability:   ab.Name,
		Provider:  ab.Provider,
		Outcome:   outcome,
		Detail:    detail,
		Fallback:  outcome == OutcomeFallback,
		Timestamp: time.Now(),
	}
}
