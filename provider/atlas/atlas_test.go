package atlas

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow-dev/caseflow/provider"
)

func newConnected(t *testing.T) *Atlas {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "atlas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestDetachedHealthIsDegraded(t *testing.T) {
	a := NewDetached()
	assert.Equal(t, provider.StatusDegraded, a.Health(context.Background()))
}

func TestConnectedHealthIsOK(t *testing.T) {
	a := newConnected(t)
	assert.Equal(t, provider.StatusOK, a.Health(context.Background()))
}

func TestUnknownAbilityIsApplicationError(t *testing.T) {
	_, err := NewDetached().Invoke(context.Background(), "divine_intervention", nil, nil)

	require.Error(t, err)
	assert.True(t, provider.IsApplication(err))
}

func TestDetachedEnrichRecordsServesCannedData(t *testing.T) {
	fields, err := NewDetached().Invoke(context.Background(), "enrich_records", nil,
		map[string]any{"email": "aisha.jain@example.com"})
	require.NoError(t, err)

	enriched := fields["enriched"].(map[string]any)
	assert.Equal(t, "premium", enriched["customer_tier"])
	assert.Equal(t, 365, enriched["account_age_days"])
}

func TestExtractEntities(t *testing.T) {
	fields, err := NewDetached().Invoke(context.Background(), "extract_entities", nil,
		map[string]any{"query": "My order #A123 is damaged, please fix it asap."})
	require.NoError(t, err)

	entities := fields["entities"].(map[string]any)
	assert.Equal(t, []string{"#A123"}, entities["order_ids"])
	assert.Equal(t, "high", entities["urgency"])
}

func TestClarifyQuestion(t *testing.T) {
	a := NewDetached()

	fields, err := a.Invoke(context.Background(), "clarify_question", nil,
		map[string]any{"query": "I need a replacement for my mug"})
	require.NoError(t, err)
	assert.Contains(t, fields["clarification_question"], "shipping address")

	fields, err = a.Invoke(context.Background(), "clarify_question", nil,
		map[string]any{"query": "I want a refund"})
	require.NoError(t, err)
	assert.Contains(t, fields["clarification_question"], "refund")
}

func TestConnectedKnowledgeBaseSearch(t *testing.T) {
	a := newConnected(t)

	fields, err := a.Invoke(context.Background(), "knowledge_base_search", nil,
		map[string]any{"query": "my package arrived damaged"})
	require.NoError(t, err)

	results := fields["kb_results"].([]any)
	require.NotEmpty(t, results)
	top := results[0].(map[string]any)
	assert.Equal(t, "KB001", top["article_id"])
	assert.Equal(t, "Damaged Package Policy", top["title"])
}

func TestConnectedSearchWithNoMatches(t *testing.T) {
	a := newConnected(t)

	fields, err := a.Invoke(context.Background(), "knowledge_base_search", nil,
		map[string]any{"query": "zzzzzz qqqqqq"})
	require.NoError(t, err)
	assert.Empty(t, fields["kb_results"])
}

func TestEnrichRecordsRegistersNewCustomer(t *testing.T) {
	a := newConnected(t)
	state := map[string]any{
		"email":         "New.Customer@Example.com",
		"customer_name": "New Customer",
	}

	fields, err := a.Invoke(context.Background(), "enrich_records", nil, state)
	require.NoError(t, err)
	enriched := fields["enriched"].(map[string]any)
	assert.Equal(t, true, enriched["is_new_customer"])

	// A second enrichment finds the now-registered customer.
	fields, err = a.Invoke(context.Background(), "enrich_records", nil, state)
	require.NoError(t, err)
	enriched = fields["enriched"].(map[string]any)
	assert.Equal(t, "standard", enriched["customer_tier"])
	_, isNew := enriched["is_new_customer"]
	assert.False(t, isNew)
}

func TestStoreTicketFeedsCustomerHistory(t *testing.T) {
	a := newConnected(t)
	state := map[string]any{
		"ticket_id":     "TCK-1001",
		"email":         "aisha.jain@example.com",
		"customer_name": "Aisha Jain",
		"query":         "damaged package",
		"priority":      "high",
	}

	fields, err := a.Invoke(context.Background(), "store_ticket", nil, state)
	require.NoError(t, err)
	assert.Equal(t, true, fields["stored"])

	fields, err = a.Invoke(context.Background(), "get_customer_history", nil, state)
	require.NoError(t, err)
	history := fields["customer_history"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "TCK-1001", entry["ticket_id"])
	assert.Equal(t, "damaged package", entry["issue"])
}

func TestUpdateTicketReflectsEscalation(t *testing.T) {
	a := newConnected(t)

	fields, err := a.Invoke(context.Background(), "update_ticket", nil,
		map[string]any{"ticket_id": "TCK-2", "escalated": true})
	require.NoError(t, err)
	updates := fields["ticket_updates"].(map[string]any)
	assert.Equal(t, "in_progress", updates["status"])
	assert.Equal(t, "specialist_team", updates["assigned_to"])

	fields, err = a.Invoke(context.Background(), "update_ticket", nil,
		map[string]any{"ticket_id": "TCK-2", "escalated": false})
	require.NoError(t, err)
	updates = fields["ticket_updates"].(map[string]any)
	assert.Equal(t, "resolved", updates["status"])
}

func TestCloseTicket(t *testing.T) {
	a := NewDetached()

	fields, err := a.Invoke(context.Background(), "close_ticket", nil, map[string]any{"escalated": false})
	require.NoError(t, err)
	assert.Equal(t, true, fields["closed"])

	fields, err = a.Invoke(context.Background(), "close_ticket", nil, map[string]any{"escalated": true})
	require.NoError(t, err)
	assert.Equal(t, false, fields["closed"])
	assert.Equal(t, "Escalated to specialist", fields["close_reason"])
}

func TestStoreConversationLog(t *testing.T) {
	a := newConnected(t)

	fields, err := a.Invoke(context.Background(), "store_conversation_log",
		map[string]any{"summary": "resolved via replacement"},
		map[string]any{"ticket_id": "TCK-1001"})
	require.NoError(t, err)
	assert.Equal(t, true, fields["log_stored"])
	assert.Equal(t, "conv_TCK-1001", fields["conversation_id"])
}

func TestExecuteAPICalls(t *testing.T) {
	fields, err := NewDetached().Invoke(context.Background(), "execute_api_calls", nil,
		map[string]any{"intent": "replacement_request", "escalated": false})
	require.NoError(t, err)

	actions := fields["api_actions"].([]any)
	assert.Contains(t, actions, "initiate_replacement_order")
	assert.Contains(t, actions, "send_customer_notification")
	assert.NotContains(t, actions, "notify_specialist_team")
}
