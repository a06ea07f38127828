package config

import "time"

// EndpointInProcess routes a provider to its in-process implementation
// instead of an HTTP endpoint.
const EndpointInProcess = "inprocess"

// Default returns the built-in demo routing table: the full support-triage
// graph with COMMON handling text analytics and ATLAS handling records,
// tickets and knowledge-base search. Both providers run in-process.
func Default() Config {
	cfg := Config{
		Providers: map[string]ProviderConfig{
			"COMMON": {
				Endpoint:    EndpointInProcess,
				Timeout:     Duration(5 * time.Second),
				MaxAttempts: 3,
				Backoff: BackoffConfig{
					Strategy: BackoffConstant,
					Interval: Duration(200 * time.Millisecond),
				},
			},
			"ATLAS": {
				Endpoint:    EndpointInProcess,
				Timeout:     Duration(5 * time.Second),
				MaxAttempts: 3,
				Backoff: BackoffConfig{
					Strategy: BackoffExponential,
					Interval: Duration(100 * time.Millisecond),
					Max:      Duration(2 * time.Second),
				},
			},
		},
		Escalation: EscalationConfig{
			Threshold:  90,
			Comparison: CompareLess,
		},
		Schema: map[string]string{
			"solution_score":      "int",
			"escalated":           "bool",
			"needs_clarification": "bool",
			"accepted":            "bool",
			"kb_stored":           "bool",
			"closed":              "bool",
			"stored":              "bool",
			"log_stored":          "bool",
			"output_ready":        "bool",
			"intent_confidence":   "float",
		},
		Stages: []StageConfig{
			{
				Name: "INTAKE",
				Mode: "deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "accept_payload", Provider: "COMMON",
						Outputs:  []string{"accepted"},
						Fallback: map[string]any{"accepted": true},
					},
				},
			},
			{
				Name: "UNDERSTAND",
				Mode: "non-deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "parse_request_text", Provider: "COMMON",
						Inputs:  []string{"query"},
						Outputs: []string{"parsed"},
						Fallback: map[string]any{
							"parsed": map[string]any{"intent": "general_query"},
						},
					},
					{
						Name: "extract_entities", Provider: "ATLAS",
						Inputs:  []string{"query"},
						Outputs: []string{"entities"},
						Fallback: map[string]any{
							"entities": map[string]any{"urgency": "medium"},
						},
					},
					{
						Name: "extract_intent", Provider: "COMMON",
						Inputs:  []string{"query"},
						Outputs: []string{"intent", "intent_confidence"},
						Fallback: map[string]any{
							"intent":            "general_inquiry",
							"intent_confidence": 0.0,
						},
					},
					{
						Name: "sentiment_analysis", Provider: "COMMON",
						Inputs:   []string{"query"},
						Outputs:  []string{"sentiment"},
						Fallback: map[string]any{"sentiment": "neutral"},
					},
				},
			},
			{
				Name: "PREPARE",
				Mode: "deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "normalize_fields", Provider: "COMMON",
						Inputs:  []string{"email", "priority"},
						Outputs: []string{"normalized"},
						Fallback: map[string]any{
							"normalized": map[string]any{},
						},
					},
					{
						Name: "enrich_records", Provider: "ATLAS",
						Inputs:  []string{"email"},
						Outputs: []string{"enriched"},
						Fallback: map[string]any{
							"enriched": map[string]any{
								"customer_tier":    "standard",
								"account_age_days": 0,
								"total_orders":     0,
							},
						},
					},
					{
						Name: "add_flags_calculations", Provider: "COMMON",
						Inputs:  []string{"query", "priority"},
						Outputs: []string{"flags", "needs_clarification"},
						Fallback: map[string]any{
							"flags":               map[string]any{"sla_risk": 1},
							"needs_clarification": false,
						},
					},
					{
						Name: "get_customer_history", Provider: "ATLAS",
						Inputs:  []string{"email"},
						Outputs: []string{"customer_history"},
						Fallback: map[string]any{
							"customer_history": []any{},
						},
					},
				},
			},
			{
				Name: "ASK",
				Mode: "non-deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "clarify_question", Provider: "ATLAS",
						Inputs:  []string{"query"},
						Outputs: []string{"clarification_question"},
						Fallback: map[string]any{
							"clarification_question": "Could you provide more details about your request?",
						},
					},
				},
			},
			{
				Name: "WAIT",
				Mode: "deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "extract_answer", Provider: "ATLAS",
						Outputs: []string{"extracted_info"},
						Fallback: map[string]any{
							"extracted_info": "No answer provided",
						},
					},
					{
						Name: "store_answer", Provider: "COMMON",
						Outputs:  []string{"clarification_answer"},
						Fallback: map[string]any{},
					},
				},
			},
			{
				Name: "RETRIEVE",
				Mode: "deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "knowledge_base_search", Provider: "ATLAS",
						Inputs:  []string{"query"},
						Outputs: []string{"kb_results"},
						Fallback: map[string]any{
							"kb_results": []any{
								map[string]any{
									"title":           "Damaged Package Policy",
									"snippet":         "We replace damaged items within 30 days of delivery.",
									"relevance_score": 0.9,
								},
							},
						},
					},
					{
						Name: "search_knowledge_base", Provider: "ATLAS",
						Inputs:  []string{"query"},
						Outputs: []string{"kb_articles"},
						Fallback: map[string]any{
							"kb_articles": []any{
								map[string]any{
									"article_id": "KB002",
									"title":      "Return and Exchange Policy",
									"snippet":    "Items can be returned or exchanged within 30 days of delivery.",
								},
							},
						},
					},
					{
						Name: "store_data", Provider: "COMMON",
						Outputs:  []string{"kb_stored"},
						Fallback: map[string]any{"kb_stored": false},
					},
				},
			},
			{
				Name: "DECIDE",
				Mode: "non-deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "solution_evaluation", Provider: "COMMON",
						Inputs:  []string{"query"},
						Outputs: []string{"solution_score"},
						// A degraded scoring provider routes conservatively
						// to the escalation path.
						Fallback: map[string]any{"solution_score": 50},
					},
				},
			},
			{
				Name: "UPDATE",
				Mode: "deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "escalation_decision", Provider: "ATLAS",
						Inputs:  []string{"priority"},
						Outputs: []string{"escalation_reason"},
						Fallback: map[string]any{
							"escalation_reason": "decision service unavailable",
						},
					},
					{
						Name: "update_payload", Provider: "COMMON",
						Inputs:  []string{"solution_score"},
						Outputs: []string{"decision_notes"},
						Fallback: map[string]any{
							"decision_notes": "decision notes unavailable",
						},
					},
					{
						Name: "update_ticket", Provider: "ATLAS",
						Inputs:  []string{"ticket_id"},
						Outputs: []string{"ticket_updates"},
						Fallback: map[string]any{
							"ticket_updates": map[string]any{
								"status":      "pending",
								"assigned_to": "unassigned",
							},
						},
					},
					{
						Name: "close_ticket", Provider: "ATLAS",
						Outputs: []string{"closed", "close_reason"},
						Fallback: map[string]any{
							"closed":       false,
							"close_reason": "ticket service unavailable",
						},
					},
					{
						Name: "update_ticket_status", Provider: "ATLAS",
						Outputs:  []string{"ticket_status"},
						Fallback: map[string]any{"ticket_status": "pending"},
					},
					{
						Name: "store_ticket", Provider: "ATLAS",
						Inputs:   []string{"ticket_id"},
						Outputs:  []string{"stored"},
						Fallback: map[string]any{"stored": false},
					},
				},
			},
			{
				Name: "CREATE",
				Mode: "non-deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "response_generation", Provider: "COMMON",
						Inputs:  []string{"customer_name"},
						Outputs: []string{"draft_response"},
						Fallback: map[string]any{
							"draft_response": "Thank you for contacting support. We'll follow up shortly.",
						},
					},
					{
						Name: "generate_response", Provider: "COMMON",
						Inputs:  []string{"customer_name"},
						Outputs: []string{"ai_response"},
						Payload: map[string]any{"greeting": "Hello"},
						Fallback: map[string]any{
							"ai_response": "Thank you for contacting support. We'll follow up shortly.",
						},
					},
				},
			},
			{
				Name: "DO",
				Mode: "deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "execute_api_calls", Provider: "ATLAS",
						Outputs:  []string{"api_actions"},
						Fallback: map[string]any{"api_actions": []any{}},
					},
					{
						Name: "trigger_notifications", Provider: "ATLAS",
						Inputs:   []string{"customer_name"},
						Outputs:  []string{"notifications"},
						Fallback: map[string]any{"notifications": []any{}},
					},
					{
						Name: "store_conversation_log", Provider: "ATLAS",
						Inputs:  []string{"ticket_id"},
						Outputs: []string{"log_stored", "conversation_id"},
						Fallback: map[string]any{
							"log_stored":      false,
							"conversation_id": "",
						},
					},
				},
			},
			{
				Name: "COMPLETE",
				Mode: "deterministic",
				Abilities: []AbilityConfig{
					{
						Name: "output_payload", Provider: "COMMON",
						Outputs:  []string{"output_ready"},
						Fallback: map[string]any{"output_ready": true},
					},
				},
			},
		},
	}
	return cfg
}
