// Package service contains the application services of the autonomous
// action engine: decision policy, action executor, rollback manager,
// feedback tracker, ticket pipeline, and the follow-up runner.
package service

import (
	"time"

	"github.com/resolveq/helpdesk/internal/config"
	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/domain/kb"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
)

// DecisionPolicy maps a scored ticket to exactly one autonomous action.
// It is pure and deterministic: the same ticket, signal, and clock always
// produce the same decision, and every input produces a decision.
type DecisionPolicy struct {
	cfg       config.Engine
	sensitive map[ticket.Category]bool
}

// NewDecisionPolicy creates a policy from engine configuration.
func NewDecisionPolicy(cfg config.Engine) *DecisionPolicy {
	sensitive := make(map[ticket.Category]bool, len(cfg.SensitiveCategories))
	for _, c := range cfg.SensitiveCategories {
		sensitive[ticket.Category(c)] = true
	}
	return &DecisionPolicy{cfg: cfg, sensitive: sensitive}
}

// TeamFor returns the team a category routes to.
func (p *DecisionPolicy) TeamFor(c ticket.Category) string {
	if team, ok := p.cfg.CategoryTeams[string(c)]; ok {
		return team
	}
	return p.cfg.DefaultTeam
}

// FollowupDelay returns how long after a resolution the verification
// follow-up fires.
func (p *DecisionPolicy) FollowupDelay() time.Duration {
	return p.cfg.FollowupDelay
}

// Decide evaluates the rules in order and returns the first match. The
// final rule escalates, so no ticket ever falls through without an action.
func (p *DecisionPolicy) Decide(t *ticket.Ticket, now time.Time) action.Decision {
	sig := t.AgentResponse

	var confidence *float64
	reasoning := ""
	if sig != nil {
		c := sig.Confidence
		confidence = &c
		reasoning = sig.Explanation
	}

	// Sensitive categories always go to a human, regardless of confidence.
	if p.sensitive[t.Category] {
		return action.Decision{
			Type: action.TypeEscalate,
			Params: action.EscalateParams{
				Reason:   "sensitive category requires human review",
				Priority: "high",
			},
			Confidence: confidence,
			Reasoning:  reasoning,
		}
	}

	if missing := missingFields(t); len(missing) > 0 {
		return action.Decision{
			Type: action.TypeRequestClarification,
			Params: action.ClarificationParams{
				MissingFields: missing,
				Reason:        "ticket is missing required information",
			},
			Confidence: confidence,
			Reasoning:  reasoning,
		}
	}

	switch {
	case sig != nil && sig.Confidence >= p.cfg.HighConfidence && sig.HasSteps():
		if t.Status.IsTerminal() {
			// Already resolved: capture the fix as knowledge instead of
			// re-resolving.
			return action.Decision{
				Type: action.TypeCreateKBArticle,
				Params: action.KBArticleParams{
					Title: kb.DerivedTitle(t.IssueType),
					Steps: sig.ResolutionSteps,
				},
				Confidence: confidence,
				Reasoning:  reasoning,
			}
		}
		return action.Decision{
			Type: action.TypeAutoResolve,
			Params: action.AutoResolveParams{
				Steps:     sig.ResolutionSteps,
				Reasoning: sig.Explanation,
			},
			Confidence: confidence,
			Reasoning:  reasoning,
		}

	case sig != nil && sig.Confidence >= p.cfg.LowConfidence && sig.Confidence < p.cfg.HighConfidence:
		if sig.HasSteps() {
			return action.Decision{
				Type: action.TypeScheduleFollowup,
				Params: action.FollowupParams{
					At:    now.Add(p.cfg.FollowupDelay),
					Steps: sig.ResolutionSteps,
				},
				Confidence: confidence,
				Reasoning:  reasoning,
			}
		}
		return action.Decision{
			Type: action.TypeAssignToTeam,
			Params: action.AssignParams{
				Team: p.TeamFor(t.Category),
			},
			Confidence: confidence,
			Reasoning:  reasoning,
		}

	case sig == nil || sig.Confidence < p.cfg.LowConfidence:
		return action.Decision{
			Type: action.TypeRequestClarification,
			Params: action.ClarificationParams{
				MissingFields: []string{"description"},
				Reason:        "confidence too low to act, more detail needed",
			},
			Confidence: confidence,
			Reasoning:  reasoning,
		}
	}

	// High confidence without steps, or anything the rules above missed.
	return action.Decision{
		Type: action.TypeEscalate,
		Params: action.EscalateParams{
			Reason: "unhandled case",
		},
		Confidence: confidence,
		Reasoning:  reasoning,
	}
}

// missingFields lists the required ticket fields that are absent.
func missingFields(t *ticket.Ticket) []string {
	var missing []string
	if t.Description == "" {
		missing = append(missing, "description")
	}
	if t.Category == "" {
		missing = append(missing, "category")
	}
	return missing
}
