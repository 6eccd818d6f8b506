package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prismpsa/prism-workflow/pkg/models"
	"github.com/prismpsa/prism-workflow/pkg/persistence"
)

// InstanceRepository stores one json document per instance aggregate under <root>/instances.
type InstanceRepository struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{
		root:  filepath.Join(root, "instances"),
		locks: make(map[string]*sync.Mutex),
	}
}

func (ir *InstanceRepository) path(id string) string {
	return filepath.Join(ir.root, id+".json")
}

func (ir *InstanceRepository) lock(id string) func() {
	ir.mu.Lock()

	l, ok := ir.locks[id]
	if !ok {
		l = &sync.Mutex{}
		ir.locks[id] = l
	}

	ir.mu.Unlock()

	l.Lock()

	return l.Unlock
}

func (ir *InstanceRepository) load(id string) (*models.InstanceState, error) {
	var state models.InstanceState

	found, err := readJSON(ir.path(id), &state)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instance %s: %w", id, err)
	}

	if !found {
		return nil, nil
	}

	return &state, nil
}

func (ir *InstanceRepository) Create(_ context.Context, state *models.InstanceState) error {
	id := state.Instance.ID

	unlock := ir.lock(id)
	defer unlock()

	if _, err := os.Stat(ir.path(id)); err == nil {
		return persistence.NewInstanceError("create", id, persistence.ErrInstanceAlreadyExists)
	}

	if err := writeJSON(ir.path(id), state); err != nil {
		return fmt.Errorf("failed to create instance %s: %w", id, err)
	}

	return nil
}

func (ir *InstanceRepository) GetByID(_ context.Context, id string) (*models.InstanceState, error) {
	return ir.load(id)
}

// Update applies fn to a copy of the stored aggregate and writes it back with a bumped version.
// Nothing is written when fn fails.
func (ir *InstanceRepository) Update(_ context.Context, id string, fn persistence.UpdateFunc) error {
	unlock := ir.lock(id)
	defer unlock()

	current, err := ir.load(id)
	if err != nil {
		return err
	}

	if current == nil {
		return persistence.NewInstanceError("update", id, persistence.ErrInstanceNotFound)
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return err
	}

	if err := persistence.CheckAppendOnly(current, working); err != nil {
		return persistence.NewInstanceError("update", id, err)
	}

	// Another process may share the directory.
	onDisk, err := ir.load(id)
	if err != nil {
		return err
	}

	if onDisk == nil || onDisk.Instance.Version != current.Instance.Version {
		return persistence.NewInstanceError("update", id, persistence.ErrConcurrentUpdate)
	}

	working.Instance.Version = current.Instance.Version + 1

	if err := writeJSON(ir.path(id), working); err != nil {
		return fmt.Errorf("failed to update instance %s: %w", id, err)
	}

	return nil
}

func (ir *InstanceRepository) all() ([]*models.InstanceState, error) {
	ids, err := listIDs(ir.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	states := make([]*models.InstanceState, 0, len(ids))

	for _, id := range ids {
		state, err := ir.load(id)
		if err != nil {
			return nil, err
		}

		if state != nil {
			states = append(states, state)
		}
	}

	return states, nil
}

// ListByProject returns the instances of a project, oldest first.
func (ir *InstanceRepository) ListByProject(_ context.Context, projectID string) ([]*models.WorkflowInstance, error) {
	states, err := ir.all()
	if err != nil {
		return nil, err
	}

	instances := make([]*models.WorkflowInstance, 0)

	for _, state := range states {
		if state.Instance.ProjectID == projectID {
			instances = append(instances, state.Instance)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].StartedAt.Before(instances[j].StartedAt)
	})

	return instances, nil
}

// ListOpenSteps returns the open steps of active instances matching the filter, oldest first.
func (ir *InstanceRepository) ListOpenSteps(_ context.Context, filter persistence.StepFilter) ([]*models.StepView, error) {
	states, err := ir.all()
	if err != nil {
		return nil, err
	}

	views := make([]*models.StepView, 0)

	for _, state := range states {
		instance := state.Instance
		if instance.Status != models.InstanceStatusActive {
			continue
		}

		if filter.ProjectID != "" && instance.ProjectID != filter.ProjectID {
			continue
		}

		for _, step := range state.OpenSteps() {
			if !filter.Matches(step) {
				continue
			}

			views = append(views, persistence.NewStepView(instance, step))
		}
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})

	return views, nil
}
