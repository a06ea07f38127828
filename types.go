package caseflow

import (
	"strings"
	"time"

	"github.com/caseflow-dev/caseflow/store"
)

// Canonical stage names, in graph order. The orchestrator visits these in
// sequence; DECIDE carries the escalation branch and ASK/WAIT carry the
// clarification skip.
const (
	StageIntake     = "INTAKE"
	StageUnderstand = "UNDERSTAND"
	StagePrepare    = "PREPARE"
	StageAsk        = "ASK"
	StageWait       = "WAIT"
	StageRetrieve   = "RETRIEVE"
	StageDecide     = "DECIDE"
	StageUpdate     = "UPDATE"
	StageCreate     = "CREATE"
	StageDo         = "DO"
	StageComplete   = "COMPLETE"
)

// StageOrder is the fixed visiting order of the stage graph.
var StageOrder = []string{
	StageIntake, StageUnderstand, StagePrepare, StageAsk, StageWait,
	StageRetrieve, StageDecide, StageUpdate, StageCreate, StageDo,
	StageComplete,
}

// Well-known state field names the orchestrator itself reads or writes.
const (
	FieldSolutionScore      = "solution_score"
	FieldEscalated          = "escalated"
	FieldNeedsClarification = "needs_clarification"
)

// ExecutionMode classifies how reproducible a stage's output is.
type ExecutionMode string

const (
	// ModeDeterministic means the stage output is fully determined by its
	// declared abilities and input state.
	ModeDeterministic ExecutionMode = "deterministic"
	// ModeNonDeterministic means the stage may consult a generative
	// provider and its output is not reproducible bit-for-bit.
	ModeNonDeterministic ExecutionMode = "non-deterministic"
)

// Request is the immutable input tuple accepted at INTAKE.
type Request struct {
	CustomerName string `json:"customer_name"`
	Email        string `json:"email"`
	Query        string `json:"query"`
	Priority     string `json:"priority"`
	TicketID     string `json:"ticket_id"`

	// ClarificationAnswer is an optional pre-supplied answer to a
	// clarification question, consumed by the WAIT stage.
	ClarificationAnswer string `json:"clarification_answer,omitempty"`
}

// Validate checks the minimal required-field set. A request missing any of
// the five mandatory fields is rejected with ErrInvalidRequest before any
// stage runs.
func (r Request) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"customer_name", r.CustomerName},
		{"email", r.Email},
		{"query", r.Query},
		{"priority", r.Priority},
		{"ticket_id", r.TicketID},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &RunError{
			Kind: ErrInvalidRequest,
			Msg:  "missing required fields: " + strings.Join(missing, ", "),
		}
	}
	return nil
}

// seed returns the initial state fields derived from the request.
func (r Request) seed() map[string]any {
	fields := map[string]any{
		"customer_name": r.CustomerName,
		"email":         r.Email,
		"query":         r.Query,
		"priority":      r.Priority,
		"ticket_id":     r.TicketID,
	}
	if r.ClarificationAnswer != "" {
		fields["clarification_answer"] = r.ClarificationAnswer
	}
	return fields
}

// Outcome values recorded on log entries.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// LogEntry is one append-only audit record. The ordered sequence of entries
// for a run is part of the terminal payload.
type LogEntry struct {
	Stage     string    `json:"stage"`
	Ability   string    `json:"ability,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Fallback  bool      `json:"fallback"`
	Timestamp time.Time `json:"timestamp"`
}

// TerminalStatus is the terminal status of one orchestrator run.
type TerminalStatus string

const (
	StatusCompleted          TerminalStatus = "completed"
	StatusEscalatedCompleted TerminalStatus = "escalated-completed"
)

// AbortedStatus builds the terminal status for a fatally aborted run.
func AbortedStatus(kind ErrorKind) TerminalStatus {
	return TerminalStatus("aborted:" + string(kind))
}

// Aborted reports whether the status marks an aborted run.
func (s TerminalStatus) Aborted() bool {
	return strings.HasPrefix(string(s), "aborted:")
}

// RunResult is the terminal payload of one orchestrator run. Every run,
// including fatal aborts, carries the accumulated state and the full log.
type RunResult struct {
	RunID         string         `json:"run_id"`
	Request       Request        `json:"request"`
	State         *store.State   `json:"state"`
	Log           []LogEntry     `json:"log"`
	Status        TerminalStatus `json:"status"`
	Err           error          `json:"-"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

// Logger provides a simple interface for workflow logging.
type Logger interface {
	// Debug logs a message at debug level
	Debug(format string, args ...interface{})

	// Info logs a message at info level
	Info(format string, args ...interface{})

	// Warn logs a message at warning level
	Warn(format string, args ...interface{})

	// Error logs a message at error level
	Error(format string, args ...interface{})
}
