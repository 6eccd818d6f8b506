package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/registry"
)

// AdvanceResult describes what one call changed on an instance.
type AdvanceResult struct {
	Instance *models.WorkflowInstance
	// NewSteps are the steps created or woken up from a join by this call.
	NewSteps []*models.ActiveStep
	// Waiting are the steps left blocked on a join.
	Waiting []*models.ActiveStep
	// Closed are the steps completed by this call, auto-advanced ones included.
	Closed  []*models.ActiveStep
	History []*models.HistoryEntry
	// Completed is set when the instance reached an end node.
	Completed bool

	activated []*models.ActiveStep
	decisions map[string]*models.Decision
}

// scheduler applies one mutation to an instance aggregate. It is single use.
type scheduler struct {
	ctx      context.Context
	op       string
	graph    *graph
	registry *registry.Registry
	resolver *Resolver
	state    *models.InstanceState
	now      time.Time
	newID    func() string

	result    *AdvanceResult
	autoQueue []*models.ActiveStep
}

func (s *scheduler) fail(nodeID string, err error) error {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return err
	}

	return newError(s.op, s.state.Instance.ID, nodeID, err)
}

// start routes past the start node of a freshly created instance.
func (s *scheduler) start() error {
	startNode, err := s.graph.start()
	if err != nil {
		return s.fail("", err)
	}

	targets, err := s.graph.resolveTargets(startNode.ID, nil)
	if err != nil {
		return s.fail(startNode.ID, err)
	}

	if err := s.route(startNode, nil, nil, targets); err != nil {
		return err
	}

	return s.drain()
}

// advance completes an active step and moves the frontier forward.
func (s *scheduler) advance(stepID string, decision *models.Decision) error {
	if s.state.Instance.Status != models.InstanceStatusActive {
		return s.fail("", fmt.Errorf("%w: status is %s", ErrInstanceNotActive, s.state.Instance.Status))
	}

	step, ok := s.state.StepByID(stepID)
	if !ok || step.Status != models.StepStatusActive {
		return s.fail("", fmt.Errorf("%w: %s", ErrStepNotFound, stepID))
	}

	node, ok := s.graph.node(step.NodeID)
	if !ok {
		return s.fail(step.NodeID, fmt.Errorf("%w: node missing from snapshot", ErrTemplateInvalid))
	}

	required, err := s.requiresDecision(node)
	if err != nil {
		return s.fail(node.ID, err)
	}

	if required && decision == nil {
		return s.fail(node.ID, ErrDecisionRequired)
	}

	if err := s.complete(step, node, decision, required); err != nil {
		return err
	}

	return s.drain()
}

// complete closes step and routes out of node. Only a node that requires a decision filters its
// own outgoing connections by it; otherwise every connection is taken and the decision is just recorded.
func (s *scheduler) complete(step *models.ActiveStep, node *models.WorkflowNode, decision *models.Decision, required bool) error {
	routes := s.graph.outgoing[node.ID]
	if required {
		routes = selectRoutes(routes, decision)
	}

	targets, err := s.graph.traverse(node.ID, routes, decision)
	if err != nil {
		return s.fail(node.ID, err)
	}

	s.closeStep(step, decision)

	return s.route(node, step, decision, targets)
}

// route records the handoffs from a node and places a step on every target.
func (s *scheduler) route(from *models.WorkflowNode, step *models.ActiveStep, decision *models.Decision, targets []target) error {
	for _, t := range targets {
		s.appendHistory(from.ID, &t.node.ID, decision)
	}

	fanOut := len(targets) > 1
	if fanOut {
		s.state.Instance.HasParallelPaths = true
	}

	for _, t := range targets {
		if s.state.Instance.Status != models.InstanceStatusActive {
			break
		}

		branchID := s.newID()
		if !fanOut && step != nil {
			branchID = step.BranchID
		}

		if err := s.place(t, branchID); err != nil {
			return err
		}
	}

	return nil
}

func (s *scheduler) place(t target, branchID string) error {
	if t.node.Type == models.NodeTypeEnd {
		return s.finish(t.node)
	}

	if t.join != nil {
		settings, err := t.join.ParseSettings()
		if err != nil {
			return s.fail(t.join.ID, err)
		}

		if settings.RequireAll {
			return s.placeJoin(t, branchID, settings)
		}

		// Later arrivals merge into the step already open at the target.
		if _, open := s.state.OpenStepAt(t.node.ID); open {
			return nil
		}
	}

	step := s.newStep(t, branchID, models.StepStatusActive)

	return s.activate(step, t.node)
}

func (s *scheduler) placeJoin(t target, branchID string, settings models.NodeSettings) error {
	sources := settings.RequiredSources
	if len(sources) == 0 {
		sources = s.graph.visiblePredecessors(t.join.ID)
	}

	satisfied := s.joinSatisfied(t.node.ID, sources)

	if open, ok := s.state.OpenStepAt(t.node.ID); ok {
		if open.Status != models.StepStatusWaiting {
			return nil
		}

		if !satisfied {
			s.markWaiting(open)

			return nil
		}

		open.Status = models.StepStatusActive
		s.result.NewSteps = append(s.result.NewSteps, open)
		s.unmarkWaiting(open)

		return s.activate(open, t.node)
	}

	if !satisfied {
		step := s.newStep(t, branchID, models.StepStatusWaiting)
		s.markWaiting(step)

		return nil
	}

	step := s.newStep(t, branchID, models.StepStatusActive)

	return s.activate(step, t.node)
}

// joinSatisfied reports whether every source handed off to the target since the target last completed.
func (s *scheduler) joinSatisfied(targetID string, sources []string) bool {
	history := s.state.History

	from := 0
	for i, entry := range history {
		if entry.FromNodeID == targetID {
			from = i + 1
		}
	}

	arrived := make(map[string]bool)
	for _, entry := range history[from:] {
		if entry.To() == targetID {
			arrived[entry.FromNodeID] = true
		}
	}

	for _, source := range sources {
		if !arrived[source] {
			return false
		}
	}

	return true
}

func (s *scheduler) newStep(t target, branchID string, status models.StepStatus) *models.ActiveStep {
	step := &models.ActiveStep{
		ID:                 s.newID(),
		WorkflowInstanceID: s.state.Instance.ID,
		NodeID:             t.node.ID,
		BranchID:           branchID,
		Status:             status,
		RouteLabel:         t.routeLabel,
		CreatedAt:          s.now,
	}

	s.state.Steps = append(s.state.Steps, step)
	s.result.NewSteps = append(s.result.NewSteps, step)

	return step
}

// activate assigns a step that just became active and queues it when it advances on its own.
func (s *scheduler) activate(step *models.ActiveStep, node *models.WorkflowNode) error {
	userID, err := s.resolver.Resolve(s.ctx, node, s.state)
	if err != nil {
		return s.fail(node.ID, err)
	}

	if userID != "" {
		s.assign(step, userID)
	}

	s.result.activated = append(s.result.activated, step)

	auto, err := s.autoAdvances(node)
	if err != nil {
		return s.fail(node.ID, err)
	}

	if auto {
		s.autoQueue = append(s.autoQueue, step)
	}

	return nil
}

func (s *scheduler) assign(step *models.ActiveStep, userID string) {
	step.AssignedUserID = &userID

	if s.state.HasAssignment(step.NodeID, userID) {
		return
	}

	s.state.Assignments = append(s.state.Assignments, &models.NodeAssignment{
		ID:                 s.newID(),
		WorkflowInstanceID: s.state.Instance.ID,
		NodeID:             step.NodeID,
		UserID:             userID,
		AssignedAt:         s.now,
	})
}

// drain completes queued auto-advancing steps until none is left.
func (s *scheduler) drain() error {
	budget := 2*len(s.graph.nodes) + 1

	for len(s.autoQueue) > 0 {
		step := s.autoQueue[0]
		s.autoQueue = s.autoQueue[1:]

		if step.Status != models.StepStatusActive || s.state.Instance.Status != models.InstanceStatusActive {
			continue
		}

		budget--
		if budget < 0 {
			return s.fail(step.NodeID, fmt.Errorf("%w: auto-advance does not settle", ErrCycleDetected))
		}

		node, ok := s.graph.node(step.NodeID)
		if !ok {
			return s.fail(step.NodeID, fmt.Errorf("%w: node missing from snapshot", ErrTemplateInvalid))
		}

		if err := s.complete(step, node, nil, false); err != nil {
			return err
		}
	}

	s.updateCurrentNode()

	return nil
}

// finish completes the instance at an end node and closes every branch still open.
func (s *scheduler) finish(end *models.WorkflowNode) error {
	instance := s.state.Instance
	now := s.now

	instance.Status = models.InstanceStatusCompleted
	instance.CompletedAt = &now
	instance.CurrentNodeID = end.ID

	for _, step := range s.state.OpenSteps() {
		s.closeStep(step, nil)
		s.unmarkWaiting(step)
	}

	s.result.Completed = true

	if err := s.resolver.completeInstance(s.ctx, s.state, s.now); err != nil {
		return s.fail(end.ID, err)
	}

	return nil
}

func (s *scheduler) closeStep(step *models.ActiveStep, decision *models.Decision) {
	now := s.now

	step.Status = models.StepStatusCompleted
	step.CompletedAt = &now

	s.result.Closed = append(s.result.Closed, step)

	if decision != nil {
		if s.result.decisions == nil {
			s.result.decisions = make(map[string]*models.Decision)
		}

		s.result.decisions[step.ID] = decision
	}
}

func (s *scheduler) appendHistory(fromID string, toID *string, decision *models.Decision) {
	entry := &models.HistoryEntry{
		ID:                 s.newID(),
		WorkflowInstanceID: s.state.Instance.ID,
		Sequence:           s.state.NextSequence(),
		FromNodeID:         fromID,
		ApprovalDecision:   decision,
		HandedOffAt:        s.now,
	}

	if toID != nil {
		to := *toID
		entry.ToNodeID = &to
	}

	s.state.History = append(s.state.History, entry)
	s.result.History = append(s.result.History, entry)
}

func (s *scheduler) markWaiting(step *models.ActiveStep) {
	for _, waiting := range s.result.Waiting {
		if waiting.ID == step.ID {
			return
		}
	}

	s.result.Waiting = append(s.result.Waiting, step)
}

func (s *scheduler) unmarkWaiting(step *models.ActiveStep) {
	for i, waiting := range s.result.Waiting {
		if waiting.ID == step.ID {
			s.result.Waiting = append(s.result.Waiting[:i], s.result.Waiting[i+1:]...)

			return
		}
	}
}

// updateCurrentNode points the instance at the latest active step, else the latest waiting one.
func (s *scheduler) updateCurrentNode() {
	if s.state.Instance.Status != models.InstanceStatusActive {
		return
	}

	var active, waiting *models.ActiveStep

	for _, step := range s.state.Steps {
		switch step.Status {
		case models.StepStatusActive:
			active = step
		case models.StepStatusWaiting:
			waiting = step
		}
	}

	switch {
	case active != nil:
		s.state.Instance.CurrentNodeID = active.NodeID
	case waiting != nil:
		s.state.Instance.CurrentNodeID = waiting.NodeID
	}
}

func (s *scheduler) requiresDecision(node *models.WorkflowNode) (bool, error) {
	settings, err := node.ParseSettings()
	if err != nil {
		return false, err
	}

	return requiresDecision(s.registry, node.Type, settings), nil
}

func (s *scheduler) autoAdvances(node *models.WorkflowNode) (bool, error) {
	settings, err := node.ParseSettings()
	if err != nil {
		return false, err
	}

	if !settings.AutoAdvance {
		return false, nil
	}

	descriptor, ok := s.registry.Node(node.Type)
	if !ok || !descriptor.AutoAdvance {
		return false, nil
	}

	required, err := s.requiresDecision(node)
	if err != nil {
		return false, err
	}

	return !required, nil
}
