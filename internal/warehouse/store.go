package warehouse

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
)

// Store owns the warehouse forest and reconciles it with the remote authority.
//
// The mutex guards local state only and is never held across a remote call.
// At most one state-changing operation runs at a time; a second one fails with
// apperr.ErrBusy.
type Store struct {
	svc remote.WarehouseService
	log *slog.Logger

	mu       sync.Mutex
	forest   *Forest
	selected string
	loading  bool
	busy     bool
	err      error
}

func NewStore(svc remote.WarehouseService, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	f, _ := NewForest(nil)
	return &Store{svc: svc, log: log, forest: f}
}

// Load replaces the forest with the authority's listing. Expansion state of
// nodes that survive the reload is kept.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()

	tasks, err := s.svc.ListWarehouseTasks(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		return s.failLocked("load", err)
	}
	f, err := NewForest(tasks)
	if err != nil {
		return s.failLocked("load", err)
	}
	for _, id := range s.forest.ExpandedIDs() {
		f.SetExpanded(id, true)
	}
	if orphans := f.Orphans(); len(orphans) > 0 {
		s.log.Warn("warehouse tasks with missing parent promoted to top level", "ids", orphans)
	}
	s.forest = f
	if s.selected != "" && !f.Has(s.selected) {
		s.selected = ""
	}
	return nil
}

func (s *Store) Create(ctx context.Context, req remote.CreateWarehouseTaskRequest) (model.WarehouseTask, error) {
	req.TaskText = strings.TrimSpace(req.TaskText)
	if req.TaskText == "" {
		return model.WarehouseTask{}, s.fail("create", apperr.Validation("task text is required"))
	}
	if err := s.begin(); err != nil {
		return model.WarehouseTask{}, err
	}
	t, err := s.svc.CreateWarehouseTask(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()
	if err != nil {
		return model.WarehouseTask{}, s.failLocked("create", err)
	}
	if s.forest.Has(t.ID) {
		_ = s.forest.Replace(t)
	} else if err := s.forest.Add(t); err != nil {
		// The parent vanished locally; keep the node visible at top level.
		t.ParentTaskID = nil
		_ = s.forest.Add(t)
	}
	out, _ := s.forest.Get(t.ID)
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, patch remote.WarehousePatch) (model.WarehouseTask, error) {
	id = strings.TrimSpace(id)
	if patch.TaskText != nil && strings.TrimSpace(*patch.TaskText) == "" {
		return model.WarehouseTask{}, s.fail("update", apperr.Validation("task text cannot be empty"))
	}
	if err := s.begin(); err != nil {
		return model.WarehouseTask{}, err
	}
	t, err := s.svc.UpdateWarehouseTask(ctx, id, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()
	if err != nil {
		if apperr.IsNotFound(err) {
			s.dropStaleLocked(id)
		}
		return model.WarehouseTask{}, s.failLocked("update", err)
	}
	if err := s.forest.Replace(t); err != nil {
		return model.WarehouseTask{}, s.failLocked("update", err)
	}
	out, _ := s.forest.Get(id)
	return out, nil
}

// Delete removes a node and its whole subtree.
func (s *Store) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.begin(); err != nil {
		return err
	}
	err := s.svc.DeleteWarehouseTask(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()
	if err != nil && !apperr.IsNotFound(err) {
		return s.failLocked("delete", err)
	}
	for _, rid := range s.forest.RemoveSubtree(id) {
		if rid == s.selected {
			s.selected = ""
		}
	}
	if err != nil {
		return s.failLocked("delete", err)
	}
	return nil
}

func (s *Store) Complete(ctx context.Context, id string) (model.WarehouseTask, error) {
	id = strings.TrimSpace(id)
	if err := s.begin(); err != nil {
		return model.WarehouseTask{}, err
	}
	t, err := s.svc.CompleteWarehouseTask(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()
	if err != nil {
		if apperr.IsNotFound(err) {
			s.dropStaleLocked(id)
		}
		return model.WarehouseTask{}, s.failLocked("complete", err)
	}
	if err := s.forest.Replace(t); err != nil {
		return model.WarehouseTask{}, s.failLocked("complete", err)
	}
	out, _ := s.forest.Get(id)
	return out, nil
}

// Reorder moves id within its sibling group. The new order is applied locally
// first and rolled back to the pre-drop snapshot if the authority rejects it.
func (s *Store) Reorder(ctx context.Context, id string, dropIndex int) error {
	return s.move(ctx, "reorder", func(f *Forest) ([]Assignment, error) {
		return f.Reorder(id, dropIndex)
	})
}

// Reparent moves id under newParentID ("" for top level) at dropIndex, with
// the same tentative/commit/rollback cycle as Reorder.
func (s *Store) Reparent(ctx context.Context, id, newParentID string, dropIndex int) error {
	return s.move(ctx, "reparent", func(f *Forest) ([]Assignment, error) {
		return f.Reparent(id, newParentID, dropIndex)
	})
}

func (s *Store) move(ctx context.Context, op string, apply func(*Forest) ([]Assignment, error)) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return apperr.ErrBusy
	}
	snapshot := s.forest.Clone()
	assigns, err := apply(s.forest)
	if err != nil {
		s.forest = snapshot
		err = s.failLocked(op, err)
		s.mu.Unlock()
		return err
	}
	if len(assigns) == 0 {
		s.mu.Unlock()
		return nil
	}
	entries := s.entriesLocked(assigns)
	s.busy = true
	s.err = nil
	s.mu.Unlock()

	err = s.svc.ReorderWarehouse(ctx, entries)

	s.mu.Lock()
	s.busy = false
	if err == nil {
		s.mu.Unlock()
		return nil
	}
	s.forest = snapshot
	err = s.failLocked(op, err)
	s.mu.Unlock()

	if apperr.IsConflict(err) {
		s.refresh(ctx, err)
	}
	return err
}

func (s *Store) entriesLocked(assigns []Assignment) []remote.ReorderEntry {
	out := make([]remote.ReorderEntry, 0, len(assigns))
	for _, a := range assigns {
		e := remote.ReorderEntry{TaskID: a.TaskID, NewPriority: a.Priority}
		if n, ok := s.forest.Get(a.TaskID); ok {
			e.NewParentTaskID = model.StrPtr(n.ParentID())
		}
		out = append(out, e)
	}
	return out
}

// Extract activates a backlog node as a flow task. The node leaves the forest
// only after the authority confirms; on failure the forest is untouched.
// Children of the extracted node move up to its parent.
func (s *Store) Extract(ctx context.Context, id string) (model.Task, error) {
	id = strings.TrimSpace(id)
	if err := s.begin(); err != nil {
		return model.Task{}, err
	}
	task, err := s.svc.ExtractTask(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()
	if err != nil {
		if apperr.IsNotFound(err) {
			s.dropStaleLocked(id)
		}
		return model.Task{}, s.failLocked("extract", err)
	}
	s.forest.Detach(id)
	if s.selected == id {
		s.selected = ""
	}
	return task, nil
}

// Select marks id as the selected node. An empty id clears the selection.
func (s *Store) Select(id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && !s.forest.Has(id) {
		return apperr.NotFound("warehouse task", id)
	}
	s.selected = id
	return nil
}

func (s *Store) Selected() (model.WarehouseTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return model.WarehouseTask{}, false
	}
	return s.forest.Get(s.selected)
}

func (s *Store) ToggleExpand(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Toggle(id)
}

func (s *Store) SetExpanded(id string, expanded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forest.SetExpanded(id, expanded)
}

func (s *Store) ExpandAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forest.ExpandAll()
}

func (s *Store) CollapseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forest.CollapseAll()
}

// RestoreExpanded applies a previously saved expansion set. Unknown ids are ignored.
func (s *Store) RestoreExpanded(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.forest.SetExpanded(id, true)
	}
}

func (s *Store) ExpandedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.ExpandedIDs()
}

func (s *Store) TopLevel() []model.WarehouseTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.TopLevel()
}

func (s *Store) Children(id string) []model.WarehouseTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Children(id)
}

func (s *Store) Get(id string) (model.WarehouseTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Get(id)
}

func (s *Store) Flatten() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Flatten()
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Stats()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Len()
}

// Snapshot returns a deep copy of the current forest.
func (s *Store) Snapshot() *Forest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest.Clone()
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forest, _ = NewForest(nil)
	s.selected = ""
	s.loading = false
	s.busy = false
	s.err = nil
}

func (s *Store) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return apperr.ErrBusy
	}
	s.busy = true
	s.err = nil
	return nil
}

// end must be called with mu held.
func (s *Store) end() { s.busy = false }

func (s *Store) fail(op string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(op, err)
}

func (s *Store) failLocked(op string, err error) error {
	err = apperr.From(err)
	s.err = err
	s.log.Debug("warehouse operation failed", "op", op, "kind", apperr.Kind(err), "err", err)
	return err
}

func (s *Store) dropStaleLocked(id string) {
	if _, ok := s.forest.Detach(id); ok {
		s.log.Info("dropped stale warehouse task", "id", id)
	}
	if s.selected == id {
		s.selected = ""
	}
}

// refresh reloads after a conflict. Failures are logged; the original error
// is what the caller sees.
func (s *Store) refresh(ctx context.Context, cause error) {
	tasks, err := s.svc.ListWarehouseTasks(ctx)
	if err != nil {
		s.log.Warn("warehouse refresh after conflict failed", "err", err, "cause", cause)
		return
	}
	f, err := NewForest(tasks)
	if err != nil {
		s.log.Warn("warehouse refresh after conflict failed", "err", err, "cause", cause)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.forest.ExpandedIDs() {
		f.SetExpanded(id, true)
	}
	s.forest = f
	s.err = cause
}
