// Package caseflow is a staged workflow runtime for customer-support
// requests. A run walks a fixed graph of eleven stages, from intake through
// triage, optional clarification, knowledge retrieval, an escalation
// decision and response delivery. Each stage invokes a declared set of
// abilities against external capability providers; a shared type-pinned
// state record accumulates their outputs, and an append-only log records
// every invocation, skip and fallback.
//
// The routing table (stage graph, ability bindings, dispatch policies,
// escalation rule) comes from the config package and is resolved once into
// a Registry. Per-request execution never mutates the registry, so one
// Orchestrator serves concurrent runs.
package caseflow
