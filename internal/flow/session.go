package flow

import (
	"context"
	"strings"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/warehouse"
)

type HandleKind int

const (
	ActiveTask HandleKind = iota + 1
	BacklogTask
)

func (k HandleKind) String() string {
	switch k {
	case ActiveTask:
		return "task"
	case BacklogTask:
		return "warehouse"
	}
	return "unknown"
}

// Handle names a task together with the side it lives on. The kind is fixed
// when the handle is made and decides which store an update goes to.
type Handle struct {
	Kind HandleKind
	ID   string
}

func TaskHandle(id string) Handle      { return Handle{Kind: ActiveTask, ID: id} }
func WarehouseHandle(id string) Handle { return Handle{Kind: BacklogTask, ID: id} }

// Edit is the subset of fields both task kinds share.
type Edit struct {
	Text         *string
	Priority     *int
	PrimaryTag   *string
	SecondaryTag *string
	BusinessType *string
}

// Session wires the task store and the warehouse store together for
// operations that span both.
type Session struct {
	Tasks     *Store
	Warehouse *warehouse.Store
}

func NewSession(tasks *Store, wh *warehouse.Store) *Session {
	return &Session{Tasks: tasks, Warehouse: wh}
}

// Load fetches everything a fresh client needs. Only the first failure is
// returned; later steps still run.
func (s *Session) Load(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(s.Tasks.LoadTasks(ctx))
	keep(s.Warehouse.Load(ctx))
	keep(s.Tasks.LoadRecords(ctx))
	keep(s.Tasks.LoadEditRowState(ctx))
	keep(s.Tasks.LoadSpecialRows(ctx))
	return first
}

// Update applies e to the task h names.
func (s *Session) Update(ctx context.Context, h Handle, e Edit) error {
	switch h.Kind {
	case ActiveTask:
		_, err := s.Tasks.UpdateTask(ctx, h.ID, remote.TaskPatch{
			TaskName:     e.Text,
			Priority:     e.Priority,
			PrimaryTag:   e.PrimaryTag,
			SecondaryTag: e.SecondaryTag,
			BusinessType: e.BusinessType,
		})
		return err
	case BacklogTask:
		_, err := s.Warehouse.Update(ctx, h.ID, remote.WarehousePatch{
			TaskText:     e.Text,
			Priority:     e.Priority,
			PrimaryTag:   e.PrimaryTag,
			SecondaryTag: e.SecondaryTag,
			BusinessType: e.BusinessType,
		})
		return err
	}
	return apperr.Validation("unknown task handle kind %d", h.Kind)
}

// Complete completes the task h names.
func (s *Session) Complete(ctx context.Context, h Handle) error {
	switch h.Kind {
	case ActiveTask:
		_, err := s.Tasks.CompleteTask(ctx, h.ID)
		return err
	case BacklogTask:
		_, err := s.Warehouse.Complete(ctx, h.ID)
		return err
	}
	return apperr.Validation("unknown task handle kind %d", h.Kind)
}

// Extract activates a backlog node and makes the new task the focus task in
// normal_start.
func (s *Session) Extract(ctx context.Context, warehouseID string) (Handle, error) {
	t, err := s.Warehouse.Extract(ctx, warehouseID)
	if err != nil {
		return Handle{}, err
	}
	if err := s.Tasks.Adopt(ctx, t); err != nil {
		return TaskHandle(t.ID), err
	}
	return TaskHandle(t.ID), nil
}

// ExtractSelected extracts the selected backlog node.
func (s *Session) ExtractSelected(ctx context.Context) (Handle, error) {
	sel, ok := s.Warehouse.Selected()
	if !ok {
		return Handle{}, apperr.Validation("no warehouse task selected")
	}
	return s.Extract(ctx, sel.ID)
}

// SaveToWarehouse parks text as a new top-level backlog node. Empty text
// falls back to the edit row's buffered text.
func (s *Session) SaveToWarehouse(ctx context.Context, text string, tags model.Tags) (Handle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = strings.TrimSpace(s.Tasks.Machine.CachedText())
	}
	t, err := s.Warehouse.Create(ctx, remote.CreateWarehouseTaskRequest{TaskText: text, Tags: tags})
	if err != nil {
		return Handle{}, err
	}
	return WarehouseHandle(t.ID), nil
}

// CreateTask creates an active task and focuses it.
func (s *Session) CreateTask(ctx context.Context, req remote.CreateTaskRequest) (Handle, error) {
	t, err := s.Tasks.CreateTask(ctx, req)
	if err != nil {
		return Handle{}, err
	}
	return TaskHandle(t.ID), nil
}

// ArchiveFocus and TerminateFocus drive the two-step close of the focus
// task: the first call enters the pending state, the second confirms.
func (s *Session) ArchiveFocus(ctx context.Context) (remote.OperationResult, error) {
	return s.closeFocus(ctx, remote.OpArchive)
}

func (s *Session) TerminateFocus(ctx context.Context) (remote.OperationResult, error) {
	return s.closeFocus(ctx, remote.OpTerminate)
}

func (s *Session) closeFocus(ctx context.Context, kind remote.OperationKind) (remote.OperationResult, error) {
	if s.Tasks.FocusTaskID() == "" {
		return remote.OperationResult{}, apperr.Validation("no focus task")
	}
	return s.Tasks.Submit(ctx, remote.RowA, kind, "", model.Tags{})
}

// Cancel backs out of a pending archive or terminate.
func (s *Session) Cancel(ctx context.Context) (remote.OperationResult, error) {
	switch s.Tasks.CurrentEditState() {
	case model.StateArchive, model.StateTerminate:
		return s.Tasks.Submit(ctx, remote.RowA, remote.OpCancel, "", model.Tags{})
	}
	return remote.OperationResult{}, nil
}

// ViewState is what a client remembers between runs.
type ViewState struct {
	FocusTaskID       string
	Draft             string
	Expanded          []string
	SelectedWarehouse string
}

// ViewState captures the current view state.
func (s *Session) ViewState() ViewState {
	v := ViewState{
		FocusTaskID: s.Tasks.FocusTaskID(),
		Draft:       s.Tasks.Machine.CachedText(),
		Expanded:    s.Warehouse.ExpandedIDs(),
	}
	if sel, ok := s.Warehouse.Selected(); ok {
		v.SelectedWarehouse = sel.ID
	}
	return v
}

// Resume reapplies remembered view state after Load. Entries that no longer
// match the loaded data are ignored.
func (s *Session) Resume(ctx context.Context, v ViewState) {
	s.Warehouse.RestoreExpanded(v.Expanded)
	if v.SelectedWarehouse != "" {
		_ = s.Warehouse.Select(v.SelectedWarehouse)
	}
	if s.Tasks.RestoreFocus(v.FocusTaskID) {
		_ = s.Tasks.LoadEditRowState(ctx)
	}
	if v.Draft != "" && s.Tasks.FocusTaskID() == v.FocusTaskID {
		s.Tasks.TypeText(v.Draft)
	}
}

func (s *Session) Reset() {
	s.Tasks.Reset()
	s.Warehouse.Reset()
}
