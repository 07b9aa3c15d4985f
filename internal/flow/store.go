// Package flow owns the active side of the client: tasks, the focus task,
// the record log, the edit row and the special rows, and keeps them
// reconciled with the remote authority.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/editrow"
	"dcj-cli/internal/model"
	"dcj-cli/internal/records"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/specialrow"
)

const DefaultPageSize = 100

// Store is the task store. The mutex guards local state only and is never
// held across a remote call.
type Store struct {
	svc      remote.TaskService
	log      *slog.Logger
	now      func() time.Time
	pageSize int

	Machine *editrow.Machine
	Special *specialrow.Channel
	Records *records.Log

	mu      sync.Mutex
	tasks   []model.Task
	focusID string
	loading bool
	busy    bool
	err     error
}

type Option func(*Store)

func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func NewStore(svc remote.TaskService, opts ...Option) *Store {
	s := &Store{
		svc:      svc,
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
		pageSize: DefaultPageSize,
	}
	for _, o := range opts {
		o(s)
	}
	s.Machine = editrow.NewMachine(editrow.WithClock(s.now))
	s.Special = specialrow.NewChannel(s.now)
	s.Records = records.NewLog()
	return s
}

func (s *Store) LoadTasks(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)
	var all []model.Task
	for offset := 0; ; {
		page, err := s.svc.ListTasks(ctx, remote.TaskQuery{Limit: s.pageSize, Offset: offset})
		if err != nil {
			return s.fail("load tasks", err)
		}
		all = append(all, page.Items...)
		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.Total {
			break
		}
	}
	s.mu.Lock()
	s.tasks = all
	s.mu.Unlock()
	return nil
}

// LoadRecords fetches the newest page of records and recomputes the focus
// task from the focus record. A log with more than one focus record is
// refetched once before the conflict is reported.
func (s *Store) LoadRecords(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		recs, err := s.fetchTail(ctx)
		if err != nil {
			return s.fail("load records", err)
		}
		s.Records.Replace(recs)
		rec, ok, err := s.Records.Focus()
		if err != nil {
			if attempt == 0 {
				s.log.Warn("record log has several focus records; refetching")
				continue
			}
			return s.fail("load records", err)
		}
		if ok {
			s.mu.Lock()
			s.focusID = rec.TaskID
			s.mu.Unlock()
		}
		return nil
	}
}

func (s *Store) fetchTail(ctx context.Context) ([]model.TaskRecord, error) {
	page, err := s.svc.ListTaskRecords(ctx, remote.RecordQuery{Limit: s.pageSize})
	if err != nil {
		return nil, err
	}
	if page.Total <= len(page.Items) {
		return page.Items, nil
	}
	page, err = s.svc.ListTaskRecords(ctx, remote.RecordQuery{Limit: s.pageSize, Offset: page.Total - s.pageSize})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// CreateTask creates a task and makes it the focus task in creative_start.
func (s *Store) CreateTask(ctx context.Context, req remote.CreateTaskRequest) (model.Task, error) {
	if strings.TrimSpace(req.TaskName) == "" {
		return model.Task{}, s.fail("create task", &apperr.ValidationError{Code: "task_name_required", Message: "task name is required"})
	}
	if err := s.begin(); err != nil {
		return model.Task{}, err
	}
	t, err := s.svc.CreateTask(ctx, req)
	s.end()
	if err != nil {
		return model.Task{}, s.fail("create task", err)
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	if err := s.focus(ctx, t.ID, editrow.OriginCreated); err != nil {
		return t, err
	}
	return t, nil
}

// Adopt registers a task activated elsewhere (extraction) and focuses it in
// normal_start.
func (s *Store) Adopt(ctx context.Context, t model.Task) error {
	s.mu.Lock()
	if i := s.indexLocked(t.ID); i >= 0 {
		s.tasks[i] = t
	} else {
		s.tasks = append(s.tasks, t)
	}
	s.mu.Unlock()
	return s.focus(ctx, t.ID, editrow.OriginExtracted)
}

func (s *Store) UpdateTask(ctx context.Context, id string, patch remote.TaskPatch) (model.Task, error) {
	if patch.TaskName != nil && strings.TrimSpace(*patch.TaskName) == "" {
		return model.Task{}, s.fail("update task", apperr.Validation("task name cannot be empty"))
	}
	t, err := s.svc.UpdateTask(ctx, id, patch)
	if err != nil {
		if apperr.IsNotFound(err) {
			s.dropTask(id)
		}
		return model.Task{}, s.fail("update task", err)
	}
	s.replaceTask(t)
	return t, nil
}

func (s *Store) CompleteTask(ctx context.Context, id string) (model.Task, error) {
	if err := s.begin(); err != nil {
		return model.Task{}, err
	}
	t, err := s.svc.CompleteTask(ctx, id)
	s.end()
	if err != nil {
		if apperr.IsNotFound(err) {
			s.dropTask(id)
		}
		err = s.fail("complete task", err)
		if apperr.IsConflict(err) {
			s.reconcile(ctx)
		}
		return model.Task{}, err
	}
	s.replaceTask(t)
	if s.FocusTaskID() == id {
		s.clearFocus()
	}
	s.reconcile(ctx)
	return t, nil
}

// SetFocusTask moves focus to id. An empty id clears focus, the focus record
// view and the edit row. Local focus is kept when the authority refuses.
func (s *Store) SetFocusTask(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		if err := s.svc.SetFocusTask(ctx, ""); err != nil {
			return s.fail("clear focus", err)
		}
		s.clearFocus()
		return nil
	}
	origin := editrow.OriginServer
	if t, ok := s.Task(id); ok && t.Status == model.TaskStatusArchived {
		origin = editrow.OriginRestored
	}
	return s.focus(ctx, id, origin)
}

func (s *Store) focus(ctx context.Context, id string, origin editrow.Origin) error {
	if err := s.svc.SetFocusTask(ctx, id); err != nil {
		if apperr.IsNotFound(err) {
			s.dropTask(id)
		}
		return s.fail("set focus", err)
	}
	s.mu.Lock()
	s.focusID = id
	if i := s.indexLocked(id); i >= 0 && origin == editrow.OriginRestored {
		s.tasks[i].Status = model.TaskStatusActive
	}
	s.mu.Unlock()
	s.Machine.Clear()
	s.Machine.Init(id, origin)
	s.reconcile(ctx)
	return nil
}

// RestoreFocus seeds the focus pointer from a locally remembered id. It only
// applies when the record log named no focus task, and does not call the
// authority; LoadEditRowState drops it again if the task left the flow.
func (s *Store) RestoreFocus(id string) bool {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" || s.focusID != "" || s.indexLocked(id) < 0 {
		return false
	}
	s.focusID = id
	return true
}

func (s *Store) clearFocus() {
	s.mu.Lock()
	s.focusID = ""
	s.mu.Unlock()
	s.Machine.Clear()
}

// LoadEditRowState installs the authority's edit row for the focus task.
func (s *Store) LoadEditRowState(ctx context.Context) error {
	id := s.FocusTaskID()
	if id == "" {
		s.Machine.Clear()
		return nil
	}
	st, err := s.svc.GetEditRowState(ctx, id)
	if err != nil {
		if apperr.IsNotFound(err) {
			// The task left the flow; its row is gone with it.
			s.clearFocus()
		}
		return apperr.From(err)
	}
	if s.FocusTaskID() != id {
		return nil
	}
	return s.Machine.Load(st)
}

// TypeText buffers keystrokes of the edit row.
func (s *Store) TypeText(text string) bool {
	return s.Machine.Type(text)
}

// Submit operates the edit row. An empty kind lets the row policy choose.
// On success the row, records and special rows are reconciled; on failure
// state and buffered text are untouched.
func (s *Store) Submit(ctx context.Context, row remote.Row, kind remote.OperationKind, text string, tags model.Tags) (remote.OperationResult, error) {
	// The busy check and Begin form one step under s.mu so that begin()
	// cannot slip in between.
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return remote.OperationResult{}, apperr.ErrBusy
	}
	p, err := s.Machine.Begin(row, kind, text, tags)
	s.mu.Unlock()
	var res remote.OperationResult
	if err == nil {
		res, err = s.Machine.Run(ctx, s.svc, p)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrBusy) {
			return res, err
		}
		err = s.fail("submit", err)
		if apperr.IsConflict(err) {
			s.reconcile(ctx)
		}
		return res, err
	}
	if res.Record != nil {
		s.Records.Append(*res.Record)
	}
	if res.Cleared {
		s.clearFocus()
	}
	s.reconcile(ctx)
	return res, nil
}

func (s *Store) LoadSpecialRows(ctx context.Context) error {
	rows, err := s.svc.ListSpecialRows(ctx)
	if err != nil {
		return s.fail("load special rows", err)
	}
	s.Special.Replace(rows)
	return nil
}

// RaiseSpecialRow asks the authority for a new special row and upserts it
// locally.
func (s *Store) RaiseSpecialRow(ctx context.Context, req remote.SpecialRowRequest) (model.SpecialEditRow, error) {
	if req.TaskID == "" {
		req.TaskID = s.FocusTaskID()
	}
	if req.TaskID == "" {
		return model.SpecialEditRow{}, s.fail("raise special row", apperr.Validation("no focus task"))
	}
	row, err := s.svc.CreateSpecialRow(ctx, req)
	if err != nil {
		return model.SpecialEditRow{}, s.fail("raise special row", err)
	}
	if err := s.Special.Upsert(row); err != nil {
		return model.SpecialEditRow{}, s.fail("raise special row", err)
	}
	return row, nil
}

// InvokeSpecialRow operates a special row; a commit is followed by the same
// reconciliation as an edit-row operation. It shares the in-flight guard of
// the edit row.
func (s *Store) InvokeSpecialRow(ctx context.Context, id string) (specialrow.Outcome, error) {
	if err := s.begin(); err != nil {
		return specialrow.Outcome{}, err
	}
	out, err := s.Special.Invoke(ctx, s.svc, id)
	s.end()
	if err != nil {
		if errors.Is(err, apperr.ErrBusy) {
			return out, err
		}
		err = s.fail("special row", err)
		if apperr.IsConflict(err) || apperr.IsNotFound(err) {
			s.reconcile(ctx)
		}
		return out, err
	}
	if !out.Committed {
		return out, nil
	}
	if out.Record != nil {
		s.Records.Append(*out.Record)
	}
	s.reconcile(ctx)
	return out, nil
}

func (s *Store) ArchiveRecord(ctx context.Context, recordID string) error {
	return s.closeRecord(ctx, "archive record", recordID, s.svc.ArchiveRecord)
}

func (s *Store) TerminateRecord(ctx context.Context, recordID string) error {
	return s.closeRecord(ctx, "terminate record", recordID, s.svc.TerminateRecord)
}

func (s *Store) closeRecord(ctx context.Context, op, recordID string, call func(context.Context, string) error) error {
	if err := s.begin(); err != nil {
		return err
	}
	err := call(ctx, recordID)
	s.end()
	if err != nil {
		err = s.fail(op, err)
		if apperr.IsConflict(err) {
			s.reconcile(ctx)
		}
		return err
	}
	if err := s.LoadTasks(ctx); err != nil {
		s.log.Warn("task refresh failed", "op", op, "err", err)
	}
	s.reconcile(ctx)
	return nil
}

// Reconcile refreshes records, focus, the edit row and the special rows, in
// that order. Failures are logged and do not stop later steps.
func (s *Store) Reconcile(ctx context.Context) { s.reconcile(ctx) }

func (s *Store) reconcile(ctx context.Context) {
	if err := s.LoadRecords(ctx); err != nil {
		s.log.Warn("record refresh failed", "err", err)
	}
	if err := s.LoadEditRowState(ctx); err != nil {
		s.log.Warn("edit row refresh failed", "err", err)
	}
	if err := s.LoadSpecialRows(ctx); err != nil {
		s.log.Warn("special row refresh failed", "err", err)
	}
}

func (s *Store) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Task(nil), s.tasks...)
}

func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.tasks[i], true
	}
	return model.Task{}, false
}

func (s *Store) byStatus(st model.TaskStatus) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.Status == st {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) ActiveTasks() []model.Task    { return s.byStatus(model.TaskStatusActive) }
func (s *Store) CompletedTasks() []model.Task { return s.byStatus(model.TaskStatusCompleted) }

func (s *Store) FocusTaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focusID
}

func (s *Store) FocusTask() (model.Task, bool) {
	id := s.FocusTaskID()
	if id == "" {
		return model.Task{}, false
	}
	return s.Task(id)
}

func (s *Store) FocusTaskRecords() []model.TaskRecord {
	return s.Records.FocusRecords(s.FocusTaskID())
}

func (s *Store) CurrentEditState() model.EditState { return s.Machine.Current() }

func (s *Store) SpecialRowByType(t model.SpecialRowType) (model.SpecialEditRow, bool) {
	return s.Special.ByType(t)
}

func (s *Store) HasSpecialRows() bool { return s.Special.HasVisible() }

// Busy reports whether a state-changing operation is in flight.
func (s *Store) Busy() bool {
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	return busy || s.Machine.InFlight()
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
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
	s.tasks = nil
	s.focusID = ""
	s.loading = false
	s.busy = false
	s.err = nil
	s.mu.Unlock()
	s.Machine.Clear()
	s.Special.Reset()
	s.Records.Reset()
}

func (s *Store) indexLocked(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) replaceTask(t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(t.ID); i >= 0 {
		s.tasks[i] = t
		return
	}
	s.tasks = append(s.tasks, t)
}

func (s *Store) dropTask(id string) {
	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		s.log.Info("dropped stale task", "id", id)
	}
	wasFocus := s.focusID == id
	if wasFocus {
		s.focusID = ""
	}
	s.mu.Unlock()
	if wasFocus {
		s.Machine.Clear()
	}
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	if v {
		s.err = nil
	}
	s.mu.Unlock()
}

func (s *Store) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.Machine.InFlight() {
		return apperr.ErrBusy
	}
	s.busy = true
	s.err = nil
	return nil
}

func (s *Store) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Store) fail(op string, err error) error {
	err = apperr.From(err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.log.Debug("flow operation failed", "op", op, "kind", apperr.Kind(err), "err", err)
	return err
}
