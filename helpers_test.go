package caseflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/caseflow-dev/caseflow/config"
	"github.com/caseflow-dev/caseflow/provider"
)

// TestLogger routes workflow logs through t.Logf so failures carry the
// run's log output.
type TestLogger struct {
	t *testing.T
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t}
}

func (l *TestLogger) Debug(format string, args ...interface{}) {
	l.t.Logf("[DEBUG] "+format, args...)
}

func (l *TestLogger) Info(format string, args ...interface{}) {
	l.t.Logf("[INFO] "+format, args...)
}

func (l *TestLogger) Warn(format string, args ...interface{}) {
	l.t.Logf("[WARN] "+format, args...)
}

func (l *TestLogger) Error(format string, args ...interface{}) {
	l.t.Logf("[ERROR] "+format, args...)
}

// stubProvider is a scriptable provider for tests.
type stubProvider struct {
	name   string
	invoke func(ctx context.Context, ability string, payload map[string]any, state map[string]any) (map[string]any, error)
	health provider.Status
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Invoke(ctx context.Context, ability string, payload map[string]any, state map[string]any) (map[string]any, error) {
	return p.invoke(ctx, ability, payload, state)
}

func (p *stubProvider) Health(context.Context) provider.Status {
	if p.health == "" {
		return provider.StatusOK
	}
	return p.health
}

// overrideProvider delegates to base except for scripted abilities.
type overrideProvider struct {
	base      provider.Provider
	overrides map[string]func(state map[string]any) (map[string]any, error)
}

func (p *overrideProvider) Name() string { return p.base.Name() }

func (p *overrideProvider) Invoke(ctx context.Context, ability string, payload map[string]any, state map[string]any) (map[string]any, error) {
	if fn, ok := p.overrides[ability]; ok {
		return fn(state)
	}
	return p.base.Invoke(ctx, ability, payload, state)
}

func (p *overrideProvider) Health(ctx context.Context) provider.Status {
	return p.base.Health(ctx)
}

// fastConfig is the default routing table with retry delays shrunk so
// transport-failure tests stay fast.
func fastConfig() config.Config {
	cfg := config.Default()
	for name, pc := range cfg.Providers {
		pc.Timeout = config.Duration(200 * time.Millisecond)
		pc.Backoff.Interval = config.Duration(time.Millisecond)
		pc.Backoff.Max = config.Duration(2 * time.Millisecond)
		cfg.Providers[name] = pc
	}
	return cfg
}
