// Package common implements the COMMON capability provider: deterministic
// text analytics over the request text. All abilities are pure functions of
// the payload and state snapshot, which keeps deterministic stages
// reproducible.
package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/caseflow-dev/caseflow/provider"
)

// ProviderName is the routing identity of this provider.
const ProviderName = "COMMON"

type abilityFunc func(payload map[string]any, state map[string]any) (map[string]any, error)

// Common is the in-process COMMON provider.
type Common struct {
	abilities map[string]abilityFunc
}

var _ provider.Provider = (*Common)(nil)

// New constructs the COMMON provider.
func New() *Common {
	c := &Common{}
	c.abilities = map[string]abilityFunc{
		"accept_payload":         c.acceptPayload,
		"parse_request_text":     c.parseRequestText,
		"extract_intent":         c.extractIntent,
		"sentiment_analysis":     c.sentimentAnalysis,
		"normalize_fields":       c.normalizeFields,
		"add_flags_calculations": c.addFlags,
		"solution_evaluation":    c.solutionEvaluation,
		"update_payload":         c.updatePayload,
		"store_answer":           c.storeAnswer,
		"store_data":             c.storeData,
		"response_generation":    c.responseGeneration,
		"generate_response":      c.generateResponse,
		"output_payload":         c.outputPayload,
	}
	return c
}

// Name implements provider.Provider.
func (c *Common) Name() string { return ProviderName }

// Invoke implements provider.Provider.
func (c *Common) Invoke(ctx context.Context, ability string, payload map[string]any, state map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn, ok := c.abilities[ability]
	if !ok {
		return nil, provider.NewApplicationError(ability, "unknown ability for provider %s", ProviderName)
	}
	return fn(payload, state)
}

// Health implements provider.Provider. The in-process provider has no
// external dependency, so it is always ok.
func (c *Common) Health(ctx context.Context) provider.Status {
	return provider.StatusOK
}

func stringField(state map[string]any, key string) string {
	if v, ok := state[key].(string); ok {
		return v
	}
	return ""
}

func boolField(state map[string]any, key string) bool {
	if v, ok := state[key].(bool); ok {
		return v
	}
	return false
}

func (c *Common) acceptPayload(_ map[string]any, _ map[string]any) (map[string]any, error) {
	return map[string]any{"accepted": true}, nil
}

func (c *Common) parseRequestText(_ map[string]any, state map[string]any) (map[string]any, error) {
	query := stringField(state, "query")
	lower := strings.ToLower(query)

	intent := "general_query"
	if strings.Contains(lower, "damaged") || strings.Contains(lower, "broken") {
		intent = "issue_report"
	}

	var orderIDs []string
	for _, tok := range strings.Fields(query) {
		if strings.HasPrefix(tok, "#") {
			orderIDs = append(orderIDs, strings.TrimRight(tok, ".,!?"))
		}
	}

	return map[string]any{
		"parsed": map[string]any{
			"intent":              intent,
			"mentioned_order_ids": orderIDs,
		},
	}, nil
}

func (c *Common) extractIntent(_ map[string]any, state map[string]any) (map[string]any, error) {
	query := strings.ToLower(stringField(state, "query"))

	intent := "general_inquiry"
	confidence := 0.5
	switch {
	case strings.Contains(query, "refund"):
		intent, confidence = "refund_request", 0.8
	case strings.Contains(query, "replacement") || strings.Contains(query, "replace"):
		intent, confidence = "replacement_request", 0.8
	case strings.Contains(query, "order") && (strings.Contains(query, "status") || strings.Contains(query, "track")):
		intent, confidence = "order_status", 0.8
	}

	return map[string]any{
		"intent":            intent,
		"intent_confidence": confidence,
	}, nil
}

var (
	negativeWords = []string{"angry", "frustrated", "terrible", "awful", "hate", "worst", "useless"}
	positiveWords = []string{"great", "excellent", "love", "amazing", "perfect", "thank", "wonderful"}
)

func (c *Common) sentimentAnalysis(_ map[string]any, state map[string]any) (map[string]any, error) {
	query := strings.ToLower(stringField(state, "query"))

	var negative, positive int
	for _, w := range negativeWords {
		if strings.Contains(query, w) {
			negative++
		}
	}
	for _, w := range positiveWords {
		if strings.Contains(query, w) {
			positive++
		}
	}

	sentiment := "neutral"
	switch {
	case negative > positive:
		sentiment = "negative"
	case positive > negative:
		sentiment = "positive"
	}
	return map[string]any{"sentiment": sentiment}, nil
}

func (c *Common) normalizeFields(_ map[string]any, state map[string]any) (map[string]any, error) {
	priority := stringField(state, "priority")
	if priority == "" {
		priority = "medium"
	}
	return map[string]any{
		"normalized": map[string]any{
			"email":    strings.ToLower(strings.TrimSpace(stringField(state, "email"))),
			"priority": strings.ToLower(priority),
		},
	}, nil
}

// addFlags computes derived flags, including the clarification gate the
// orchestrator evaluates for the ASK/WAIT pair: a replacement-style request
// with no shipping address in sight needs a clarification round.
func (c *Common) addFlags(_ map[string]any, state map[string]any) (map[string]any, error) {
	query := strings.ToLower(stringField(state, "query"))
	priority := strings.ToLower(stringField(state, "priority"))

	slaRisk := 1
	if priority == "high" {
		slaRisk = 2
	}

	wantsReplacement := strings.Contains(query, "replacement") || strings.Contains(query, "replace")
	hasAddress := strings.Contains(query, "address")
	answered := stringField(state, "clarification_answer") != ""
	needsClarification := wantsReplacement && !hasAddress && !answered

	return map[string]any{
		"flags": map[string]any{
			"sla_risk": slaRisk,
		},
		"needs_clarification": needsClarification,
	}, nil
}

func (c *Common) solutionEvaluation(_ map[string]any, state map[string]any) (map[string]any, error) {
	score := 80
	if results, ok := state["kb_results"].([]any); ok && len(results) > 0 {
		score += 10
	} else if results, ok := state["kb_results"].([]map[string]any); ok && len(results) > 0 {
		score += 10
	}
	if stringField(state, "clarification_answer") != "" {
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return map[string]any{"solution_score": score}, nil
}

func (c *Common) updatePayload(_ map[string]any, state map[string]any) (map[string]any, error) {
	return map[string]any{
		"decision_notes": fmt.Sprintf("score=%v; escalated=%v", state["solution_score"], boolField(state, "escalated")),
	}, nil
}

func (c *Common) storeAnswer(_ map[string]any, state map[string]any) (map[string]any, error) {
	answer := stringField(state, "clarification_answer")
	if answer == "" {
		return map[string]any{}, nil
	}
	return map[string]any{"clarification_answer": answer}, nil
}

func (c *Common) storeData(_ map[string]any, state map[string]any) (map[string]any, error) {
	_, cached := state["kb_results"]
	return map[string]any{"kb_stored": cached}, nil
}

func (c *Common) responseGeneration(_ map[string]any, state map[string]any) (map[string]any, error) {
	name := stringField(state, "customer_name")
	if name == "" {
		name = "Customer"
	}

	var msg string
	if boolField(state, "escalated") {
		msg = fmt.Sprintf("Hi %s, we've escalated your issue to a specialist.", name)
	} else {
		msg = fmt.Sprintf("Hi %s, your request is being processed.", name)
	}
	return map[string]any{"draft_response": msg}, nil
}

func (c *Common) generateResponse(payload map[string]any, state map[string]any) (map[string]any, error) {
	name := stringField(state, "customer_name")
	if name == "" {
		name = "Customer"
	}

	greeting := fmt.Sprintf("Hi %s, thank you for reaching out.", name)
	if v, ok := payload["greeting"].(string); ok && v != "" {
		greeting = fmt.Sprintf("%s %s,", v, name)
	}

	var body string
	switch stringField(state, "intent") {
	case "replacement_request":
		body = "We're arranging a replacement for you and will confirm shipment shortly."
	case "refund_request":
		body = "Your refund request is being processed and you'll hear from us within 2 business days."
	default:
		body = "We're processing your request and will get back to you soon."
	}

	return map[string]any{"ai_response": greeting + " " + body}, nil
}

func (c *Common) outputPayload(_ map[string]any, _ map[string]any) (map[string]any, error) {
	return map[string]any{"output_ready": true}, nil
}
