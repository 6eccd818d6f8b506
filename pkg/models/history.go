package models

import "time"

// HistoryEntry is an append-only record of a node-to-node handoff.
type HistoryEntry struct {
	ID                 string    `json:"id"`
	WorkflowInstanceID string    `json:"workflow_instance_id"`
	Sequence           int       `json:"sequence"`
	FromNodeID         string    `json:"from_node_id"`
	ToNodeID           *string   `json:"to_node_id"`
	ApprovalDecision   *Decision `json:"approval_decision"`
	HandedOffAt        time.Time `json:"handed_off_at"`
}

// To returns the target node id, or an empty string for terminal entries.
func (h *HistoryEntry) To() string {
	if h.ToNodeID == nil {
		return ""
	}

	return *h.ToNodeID
}

// Clone returns a deep copy of the entry.
func (h *HistoryEntry) Clone() *HistoryEntry {
	clone := *h
	clone.ToNodeID = cloneString(h.ToNodeID)

	if h.ApprovalDecision != nil {
		decision := *h.ApprovalDecision
		clone.ApprovalDecision = &decision
	}

	return &clone
}
