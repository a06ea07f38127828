package caseflow

import (
	"context"
	"time"

	"github.com/caseflow-dev/caseflow/provider"
)

// Dispatcher mediates every ability call: it applies the provider's timeout,
// retries transport failures with backoff, and substitutes the configured
// fallback when the provider stays unreachable. Application-level rejections
// pass through untouched and are never retried.
type Dispatcher struct {
	registry *Registry
	logger   Logger
}

// NewDispatcher constructs a dispatcher over the registry.
func NewDispatcher(registry *Registry, logger Logger) *Dispatcher {
	if logger == nil {
		logger = &DefaultLogger{}
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Invoke calls one ability and returns the output fields together with the
// outcome recorded in the audit log. Transport exhaustion with a configured
// fallback yields OutcomeFallback and a nil error; all other failures return
// a typed error.
func (d *Dispatcher) Invoke(ctx context.Context, stage string, ab Ability, state map[string]any) (map[string]any, string, error) {
	p, ok := d.registry.Provider(ab.Provider)
	if !ok {
		return nil, OutcomeFailed, newError(ErrConfig, "ability %s routes to unregistered provider %s", ab.Name, ab.Provider)
	}
	policy := d.registry.Policy(ab.Provider)

	start := time.Now()
	defer func() {
		observeInvokeDuration(ab.Provider, time.Since(start))
	}()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			observeInvocation(ab.Provider, OutcomeFailed)
			return nil, OutcomeFailed, wrapError(ErrRunCancelled, err, "ability %s cancelled", ab.Name)
		}

		callCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		fields, err := p.Invoke(callCtx, ab.Name, ab.Payload, state)
		cancel()

		if err == nil {
			observeInvocation(ab.Provider, OutcomeOK)
			return fields, OutcomeOK, nil
		}
		if provider.IsApplication(err) {
			observeInvocation(ab.Provider, OutcomeFailed)
			return nil, OutcomeFailed, wrapError(ErrProviderApplication, err, "ability %s rejected by %s", ab.Name, ab.Provider)
		}

		lastErr = err
		d.logger.Warn("ability %s attempt %d/%d against %s failed: %v",
			ab.Name, attempt, policy.MaxAttempts, ab.Provider, err)
		if attempt < policy.MaxAttempts {
			observeRetry(ab.Provider)
			select {
			case <-time.After(policy.Backoff.Delay(attempt)):
			case <-ctx.Done():
				observeInvocation(ab.Provider, OutcomeFailed)
				return nil, OutcomeFailed, wrapError(ErrRunCancelled, ctx.Err(), "ability %s cancelled", ab.Name)
			}
		}
	}

	if ab.Fallback != nil {
		d.logger.Info("ability %s falling back after %d attempts against %s",
			ab.Name, policy.MaxAttempts, ab.Provider)
		observeInvocation(ab.Provider, OutcomeFallback)
		fields := make(map[string]any, len(ab.Fallback))
		for k, v := range ab.Fallback {
			fields[k] = v
		}
		return fields, OutcomeFallback, nil
	}

	observeInvocation(ab.Provider, OutcomeFailed)
	return nil, OutcomeFailed, wrapError(ErrProviderTransport, lastErr,
		"ability %s exhausted %d attempts against %s with no fallback", ab.Name, policy.MaxAttempts, ab.Provider)
}
