package caseflow

import (
	"context"
	"time"

	"github.com/caseflow-dev/caseflow/config"
	"github.com/caseflow-dev/caseflow/provider"
	"github.com/caseflow-dev/caseflow/store"
)

// Ability is one resolved ability binding: which provider fulfils it, its
// field contract against the state, and the fallback substituted when the
// provider stays unreachable.
type Ability struct {
	Name     string
	Provider string
	Inputs   []string
	Outputs  []string
	Payload  map[string]any
	Fallback map[string]any
}

// Stage is one resolved node of the stage graph.
type Stage struct {
	Name      string
	Mode      ExecutionMode
	Abilities []Ability
}

// DispatchPolicy is the per-provider call policy applied by the dispatcher.
type DispatchPolicy struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     Backoff
}

// Registry is the validated, immutable routing table built once at startup.
// All per-request code reads it without locking.
type Registry struct {
	stages     []Stage
	providers  map[string]provider.Provider
	policies   map[string]DispatchPolicy
	threshold  int
	comparison string
	schema     map[string]store.Kind
}

var kindNames = map[string]store.Kind{
	"string": store.KindString,
	"int":    store.KindInt,
	"float":  store.KindFloat,
	"bool":   store.KindBool,
	"map":    store.KindMap,
	"list":   store.KindList,
}

// NewRegistry resolves a config against the supplied provider instances.
// Every inconsistency it can detect is fatal here, at build time, so that a
// run can never fail on a malformed routing table.
func NewRegistry(cfg config.Config, providers map[string]provider.Provider) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, wrapError(ErrConfig, err, "invalid config")
	}

	schema := make(map[string]store.Kind, len(cfg.Schema))
	for field, name := range cfg.Schema {
		kind, ok := kindNames[name]
		if !ok {
			return nil, newError(ErrConfig, "schema field %s has unknown kind %q", field, name)
		}
		schema[field] = kind
	}

	policies := make(map[string]DispatchPolicy, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if _, ok := providers[name]; !ok {
			return nil, newError(ErrConfig, "provider %s declared in config but not registered", name)
		}
		policies[name] = DispatchPolicy{
			Timeout:     pc.Timeout.Std(),
			MaxAttempts: pc.MaxAttempts,
			Backoff:     newBackoff(pc.Backoff),
		}
	}

	known := make(map[string]int, len(StageOrder))
	for i, name := range StageOrder {
		known[name] = i
	}

	stages := make([]Stage, 0, len(cfg.Stages))
	prev := -1
	for _, sc := range cfg.Stages {
		pos, ok := known[sc.Name]
		if !ok {
			return nil, newError(ErrConfig, "unknown stage %s", sc.Name)
		}
		if pos <= prev {
			return nil, newError(ErrConfig, "stage %s out of graph order", sc.Name)
		}
		prev = pos

		mode := ExecutionMode(sc.Mode)
		switch mode {
		case ModeDeterministic, ModeNonDeterministic:
		default:
			return nil, newError(ErrConfig, "stage %s has unknown mode %q", sc.Name, sc.Mode)
		}

		st := Stage{Name: sc.Name, Mode: mode}
		claimed := make(map[string]string)
		for _, ac := range sc.Abilities {
			if _, ok := providers[ac.Provider]; !ok {
				return nil, newError(ErrConfig, "ability %s routes to unknown provider %s", ac.Name, ac.Provider)
			}
			for _, out := range ac.Outputs {
				if owner, dup := claimed[out]; dup {
					return nil, newError(ErrConfig,
						"stage %s: abilities %s and %s both declare output %s", sc.Name, owner, ac.Name, out)
				}
				claimed[out] = ac.Name
			}
			st.Abilities = append(st.Abilities, Ability{
				Name:     ac.Name,
				Provider: ac.Provider,
				Inputs:   ac.Inputs,
				Outputs:  ac.Outputs,
				Payload:  ac.Payload,
				Fallback: ac.Fallback,
			})
		}
		stages = append(stages, st)
	}
	if len(stages) != len(StageOrder) {
		return nil, newError(ErrConfig, "config declares %d stages, graph has %d", len(stages), len(StageOrder))
	}

	return &Registry{
		stages:     stages,
		providers:  providers,
		policies:   policies,
		threshold:  cfg.Escalation.Threshold,
		comparison: cfg.Escalation.Comparison,
		schema:     schema,
	}, nil
}

// Stages returns the resolved stage graph in visiting order.
func (r *Registry) Stages() []Stage { return r.stages }

// Provider returns the registered provider instance for name.
func (r *Registry) Provider(name string) (provider.Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Policy returns the dispatch policy for a provider.
func (r *Registry) Policy(name string) DispatchPolicy { return r.policies[name] }

// Schema returns the declared state field kinds.
func (r *Registry) Schema() map[string]store.Kind { return r.schema }

// Threshold returns the escalation threshold.
func (r *Registry) Threshold() int { return r.threshold }

// Escalate applies the configured comparison to a solution score.
func (r *Registry) Escalate(score int) bool {
	if r.comparison == config.CompareLessEqual {
		return score <= r.threshold
	}
	return score < r.threshold
}

// HealthSnapshot probes every registered provider.
func (r *Registry) HealthSnapshot(ctx context.Context) map[string]provider.Status {
	out := make(map[string]provider.Status, len(r.providers))
	for name, p := range r.providers {
		out[name] = p.Health(ctx)
	}
	return out
}
