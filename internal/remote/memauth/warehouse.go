package memauth

import (
	"context"
	"strings"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/warehouse"
)

func (a *Authority) ListWarehouseTasks(ctx context.Context) ([]model.WarehouseTask, error) {
	if err := a.enter(ctx, "ListWarehouseTasks"); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	return a.forest.All(), nil
}

func (a *Authority) CreateWarehouseTask(ctx context.Context, req remote.CreateWarehouseTaskRequest) (model.WarehouseTask, error) {
	if err := a.enter(ctx, "CreateWarehouseTask"); err != nil {
		return model.WarehouseTask{}, err
	}
	defer a.mu.Unlock()
	text := strings.TrimSpace(req.TaskText)
	if text == "" {
		return model.WarehouseTask{}, &apperr.ValidationError{Code: "task_text_required", Message: "task text is required"}
	}
	now := a.now()
	t := model.WarehouseTask{
		ID:            a.newID(),
		UserID:        a.userID,
		TaskText:      text,
		Tags:          req.Tags,
		DisplayStatus: model.DisplayNormal,
		ParentTaskID:  req.ParentTaskID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// A requested priority that collides is treated as "append".
	if req.Priority > 0 && !a.priorityTakenLocked(t.ParentID(), req.Priority) {
		t.Priority = req.Priority
	}
	if err := a.forest.Add(t); err != nil {
		return model.WarehouseTask{}, err
	}
	out, _ := a.forest.Get(t.ID)
	return out, nil
}

func (a *Authority) priorityTakenLocked(parentID string, p int) bool {
	for _, s := range a.forest.Siblings(parentID) {
		if s.Priority == p {
			return true
		}
	}
	return false
}

func (a *Authority) UpdateWarehouseTask(ctx context.Context, taskID string, p remote.WarehousePatch) (model.WarehouseTask, error) {
	if err := a.enter(ctx, "UpdateWarehouseTask"); err != nil {
		return model.WarehouseTask{}, err
	}
	defer a.mu.Unlock()
	t, ok := a.forest.Get(taskID)
	if !ok {
		return model.WarehouseTask{}, apperr.NotFound("warehouse task", taskID)
	}
	if p.TaskText != nil {
		text := strings.TrimSpace(*p.TaskText)
		if text == "" {
			return model.WarehouseTask{}, apperr.Validation("task text cannot be empty")
		}
		t.TaskText = text
	}
	if p.DisplayStatus != nil {
		switch *p.DisplayStatus {
		case model.DisplayNormal, model.DisplayHighlighted, model.DisplayDimmed:
			t.DisplayStatus = *p.DisplayStatus
		default:
			return model.WarehouseTask{}, apperr.Validation("unknown display status %q", *p.DisplayStatus)
		}
	}
	if p.PrimaryTag != nil {
		t.PrimaryTag = *p.PrimaryTag
	}
	if p.SecondaryTag != nil {
		t.SecondaryTag = *p.SecondaryTag
	}
	if p.BusinessType != nil {
		t.BusinessType = *p.BusinessType
	}
	if p.Priority != nil && *p.Priority != t.Priority {
		if a.priorityTakenLocked(t.ParentID(), *p.Priority) {
			return model.WarehouseTask{}, apperr.Conflict("priority %d is taken; use reorder", *p.Priority)
		}
		t.Priority = *p.Priority
	}
	t.UpdatedAt = a.now()
	if err := a.forest.Replace(t); err != nil {
		return model.WarehouseTask{}, err
	}
	out, _ := a.forest.Get(taskID)
	return out, nil
}

func (a *Authority) DeleteWarehouseTask(ctx context.Context, taskID string) error {
	if err := a.enter(ctx, "DeleteWarehouseTask"); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if len(a.forest.RemoveSubtree(taskID)) == 0 {
		return apperr.NotFound("warehouse task", taskID)
	}
	return nil
}

// CompleteWarehouseTask dims the node; it stays in the backlog.
func (a *Authority) CompleteWarehouseTask(ctx context.Context, taskID string) (model.WarehouseTask, error) {
	if err := a.enter(ctx, "CompleteWarehouseTask"); err != nil {
		return model.WarehouseTask{}, err
	}
	defer a.mu.Unlock()
	t, ok := a.forest.Get(taskID)
	if !ok {
		return model.WarehouseTask{}, apperr.NotFound("warehouse task", taskID)
	}
	t.DisplayStatus = model.DisplayDimmed
	t.UpdatedAt = a.now()
	_ = a.forest.Replace(t)
	out, _ := a.forest.Get(taskID)
	return out, nil
}

// ReorderWarehouse applies every entry or none. Entries naming nodes that no
// longer exist mean the client is working from a stale listing.
func (a *Authority) ReorderWarehouse(ctx context.Context, entries []remote.ReorderEntry) error {
	if err := a.enter(ctx, "ReorderWarehouse"); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if len(entries) == 0 {
		return apperr.Validation("no reorder entries")
	}
	assigns := make([]warehouse.Assignment, 0, len(entries))
	seen := map[string]bool{}
	for _, e := range entries {
		if e.NewPriority < 1 {
			return apperr.Validation("priority of %s must be positive", e.TaskID)
		}
		if seen[e.TaskID] {
			return apperr.Validation("task %s listed twice", e.TaskID)
		}
		seen[e.TaskID] = true
		if !a.forest.Has(e.TaskID) {
			return &apperr.ConflictError{Code: "stale_warehouse", Message: "warehouse task " + e.TaskID + " no longer exists"}
		}
		if e.NewParentTaskID != nil && *e.NewParentTaskID != "" && !a.forest.Has(*e.NewParentTaskID) {
			return &apperr.ConflictError{Code: "stale_warehouse", Message: "warehouse task " + *e.NewParentTaskID + " no longer exists"}
		}
		assigns = append(assigns, warehouse.Assignment{
			TaskID:        e.TaskID,
			Priority:      e.NewPriority,
			ParentTaskID:  e.NewParentTaskID,
			ParentChanged: true,
		})
	}
	next := a.forest.Clone()
	if err := next.Apply(assigns); err != nil {
		return err
	}
	a.forest = next
	return nil
}

// ExtractTask turns a backlog node into an active, focused task in
// normal_start. The node's children move up to its parent.
func (a *Authority) ExtractTask(ctx context.Context, taskID string) (model.Task, error) {
	if err := a.enter(ctx, "ExtractTask"); err != nil {
		return model.Task{}, err
	}
	defer a.mu.Unlock()
	n, ok := a.forest.Detach(taskID)
	if !ok {
		return model.Task{}, apperr.NotFound("warehouse task", taskID)
	}
	t := a.newTaskLocked(n.TaskText, model.TaskTypeSingleRow, n.Tags)
	a.setRowLocked(t.ID, model.StateNormalStart, "extracted")
	a.clearFocusLocked()
	a.focus = t.ID
	return *t, nil
}

// SeedWarehouse installs a forest as-is. Used by tests and the development
// server's fixtures.
func (a *Authority) SeedWarehouse(tasks []model.WarehouseTask) error {
	f, err := warehouse.NewForest(tasks)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.forest = f
	return nil
}

// WarehouseSnapshot returns a copy of the authority's forest.
func (a *Authority) WarehouseSnapshot() *warehouse.Forest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.forest.Clone()
}
