package models

import (
	"encoding/json"
	"strings"
)

// DecisionKind classifies a human decision.
type DecisionKind string

const (
	DecisionApproved     DecisionKind = "approved"
	DecisionRejected     DecisionKind = "rejected"
	DecisionNeedsChanges DecisionKind = "needs_changes"
	DecisionCustom       DecisionKind = "custom"
)

// Decision is the outcome supplied when completing a step.
type Decision struct {
	Kind  DecisionKind
	Label string // Original text for custom decisions
}

// Approved is the canonical approval decision.
var Approved = Decision{Kind: DecisionApproved}

// Rejected is the canonical rejection decision.
var Rejected = Decision{Kind: DecisionRejected}

// NeedsChanges is the canonical request-for-changes decision.
var NeedsChanges = Decision{Kind: DecisionNeedsChanges}

// ParseDecision normalizes a decision or condition label. It returns false for blank input.
func ParseDecision(raw string) (Decision, bool) {
	label := strings.TrimSpace(raw)
	if label == "" {
		return Decision{}, false
	}

	normalized := strings.ToLower(label)
	normalized = strings.TrimPrefix(normalized, "if ")
	normalized = strings.TrimSpace(normalized)

	switch normalized {
	case "approved", "approve":
		return Approved, true
	case "rejected", "reject":
		return Rejected, true
	case "needs_changes", "needs-changes", "needs changes":
		return NeedsChanges, true
	default:
		return Decision{Kind: DecisionCustom, Label: label}, true
	}
}

// Matches reports whether two decisions select the same route.
func (d Decision) Matches(other Decision) bool {
	if d.Kind != other.Kind {
		return false
	}

	if d.Kind == DecisionCustom {
		return strings.EqualFold(strings.TrimSpace(d.Label), strings.TrimSpace(other.Label))
	}

	return true
}

// RouteLabel is the label shown for a route taken because of this decision.
func (d Decision) RouteLabel() string {
	switch d.Kind {
	case DecisionApproved:
		return "If Approved"
	case DecisionRejected:
		return "If Rejected"
	case DecisionNeedsChanges:
		return "If Needs Changes"
	default:
		return "Continue"
	}
}

// String returns the stored form of the decision.
func (d Decision) String() string {
	if d.Kind == DecisionCustom {
		return d.Label
	}

	return string(d.Kind)
}

func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Decision) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, _ := ParseDecision(raw)
	*d = parsed

	return nil
}
