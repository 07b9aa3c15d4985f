// Package memauth is an in-memory task authority. It backs the development
// server and the tests of every store that talks to the remote contract.
package memauth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/editrow"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/warehouse"
)

var _ remote.Authority = (*Authority)(nil)

type Authority struct {
	now    func() time.Time
	newID  func() string
	userID string

	mu        sync.Mutex
	tasks     map[string]*model.Task
	taskOrder []string
	records   []model.TaskRecord
	seq       map[string]int
	started   map[string]time.Time
	focus     string
	rows      map[string]*model.EditRowState
	specials  []model.SpecialEditRow
	forest    *warehouse.Forest
	faults    map[string][]error
}

type Option func(*Authority)

func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

func WithIDs(next func() string) Option {
	return func(a *Authority) { a.newID = next }
}

func WithUser(id string) Option {
	return func(a *Authority) { a.userID = id }
}

func New(opts ...Option) *Authority {
	f, _ := warehouse.NewForest(nil)
	a := &Authority{
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		userID:  "local",
		tasks:   map[string]*model.Task{},
		seq:     map[string]int{},
		started: map[string]time.Time{},
		rows:    map[string]*model.EditRowState{},
		forest:  f,
		faults:  map[string][]error{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Fail queues err as the result of the next call to method (e.g.
// "ReorderWarehouse"). Queued faults fire before any state is touched.
func (a *Authority) Fail(method string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.faults[method] = append(a.faults[method], err)
}

func (a *Authority) faultLocked(method string) error {
	q := a.faults[method]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	a.faults[method] = q[1:]
	return err
}

// enter returns with mu held unless it fails.
func (a *Authority) enter(ctx context.Context, method string) error {
	if err := ctx.Err(); err != nil {
		return &apperr.TransportError{Err: err}
	}
	a.mu.Lock()
	if err := a.faultLocked(method); err != nil {
		a.mu.Unlock()
		return err
	}
	return nil
}

func (a *Authority) ListTasks(ctx context.Context, q remote.TaskQuery) (model.Page[model.Task], error) {
	if err := a.enter(ctx, "ListTasks"); err != nil {
		return model.Page[model.Task]{}, err
	}
	defer a.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(q.Search))
	var out []model.Task
	for _, id := range a.taskOrder {
		t := a.tasks[id]
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.TaskName+" "+t.Description), search) {
			continue
		}
		out = append(out, *t)
	}
	return paginate(out, q.Limit, q.Offset), nil
}

func paginate[T any](all []T, limit, offset int) model.Page[T] {
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	p := model.Page[T]{Items: append([]T{}, all[offset:end]...), Total: total, Limit: limit, Page: 1, TotalPages: 1}
	if limit > 0 {
		p.Page = offset/limit + 1
		p.TotalPages = (total + limit - 1) / limit
	}
	return p
}

func (a *Authority) CreateTask(ctx context.Context, req remote.CreateTaskRequest) (model.Task, error) {
	if err := a.enter(ctx, "CreateTask"); err != nil {
		return model.Task{}, err
	}
	defer a.mu.Unlock()
	name := strings.TrimSpace(req.TaskName)
	if name == "" {
		return model.Task{}, &apperr.ValidationError{Code: "task_name_required", Message: "task name is required"}
	}
	typ := req.TaskType
	switch typ {
	case "":
		typ = model.TaskTypeSingleRow
	case model.TaskTypeSingleRow, model.TaskTypeDoubleRow:
	default:
		return model.Task{}, apperr.Validation("unknown task type %q", typ)
	}
	if req.ParentTaskID != nil {
		if _, ok := a.tasks[*req.ParentTaskID]; !ok {
			return model.Task{}, apperr.NotFound("task", *req.ParentTaskID)
		}
	}
	t := a.newTaskLocked(name, typ, req.Tags)
	t.ArchiveID = req.ArchiveID
	t.Description = req.Description
	t.ParentTaskID = req.ParentTaskID
	a.setRowLocked(t.ID, model.StateCreativeStart, "created")
	return *t, nil
}

func (a *Authority) newTaskLocked(name string, typ model.TaskType, tags model.Tags) *model.Task {
	now := a.now()
	t := &model.Task{
		ID:        a.newID(),
		UserID:    a.userID,
		TaskType:  typ,
		TaskName:  name,
		Status:    model.TaskStatusActive,
		Tags:      tags,
		Priority:  len(a.taskOrder) + 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.tasks[t.ID] = t
	a.taskOrder = append(a.taskOrder, t.ID)
	return t
}

func (a *Authority) UpdateTask(ctx context.Context, taskID string, p remote.TaskPatch) (model.Task, error) {
	if err := a.enter(ctx, "UpdateTask"); err != nil {
		return model.Task{}, err
	}
	defer a.mu.Unlock()
	t, ok := a.tasks[taskID]
	if !ok {
		return model.Task{}, apperr.NotFound("task", taskID)
	}
	if p.TaskName != nil {
		name := strings.TrimSpace(*p.TaskName)
		if name == "" {
			return model.Task{}, apperr.Validation("task name cannot be empty")
		}
		t.TaskName = name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		switch *p.Status {
		case model.TaskStatusActive, model.TaskStatusCompleted, model.TaskStatusArchived:
			t.Status = *p.Status
		default:
			return model.Task{}, apperr.Validation("unknown status %q", *p.Status)
		}
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
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
	t.UpdatedAt = a.now()
	return *t, nil
}

func (a *Authority) CompleteTask(ctx context.Context, taskID string) (model.Task, error) {
	if err := a.enter(ctx, "CompleteTask"); err != nil {
		return model.Task{}, err
	}
	defer a.mu.Unlock()
	t, ok := a.tasks[taskID]
	if !ok {
		return model.Task{}, apperr.NotFound("task", taskID)
	}
	if t.Status != model.TaskStatusActive {
		return model.Task{}, apperr.Conflict("task %s is %s", taskID, t.Status)
	}
	a.appendRecordLocked(t, model.RecordComplete, "complete", model.Tags{}, "")
	a.finishLocked(t, model.RecordComplete)
	return *t, nil
}

// finishLocked ends a task's flow: its status follows the record type, the
// edit row and focus are dropped, and a completed task gets a flow row.
func (a *Authority) finishLocked(t *model.Task, rt model.RecordType) {
	now := a.now()
	switch rt {
	case model.RecordComplete:
		t.Status = model.TaskStatusCompleted
		t.IsCompleted = true
		t.CompletedAt = &now
	case model.RecordArchive:
		t.Status = model.TaskStatusArchived
	case model.RecordTerminate:
		t.Status = model.TaskStatusCompleted
	}
	t.UpdatedAt = now
	delete(a.rows, t.ID)
	if a.focus == t.ID {
		a.clearFocusLocked()
	}
	if rt == model.RecordComplete {
		a.upsertSpecialLocked(model.SpecialEditRow{
			Type:             model.SpecialFlow,
			TaskID:           t.ID,
			PrefixText:       t.TaskName,
			BusinessTypeText: t.BusinessType,
			OperationText:    "continue flow",
		})
	}
}

func (a *Authority) clearFocusLocked() {
	a.focus = ""
	for i := range a.records {
		a.records[i].IsFocus = false
	}
}

// SetFocusTask moves focus to taskID; "" clears it. Refocusing an archived
// task reactivates it in restart_start.
func (a *Authority) SetFocusTask(ctx context.Context, taskID string) error {
	if err := a.enter(ctx, "SetFocusTask"); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if taskID == "" {
		a.clearFocusLocked()
		return nil
	}
	t, ok := a.tasks[taskID]
	if !ok {
		return apperr.NotFound("task", taskID)
	}
	switch t.Status {
	case model.TaskStatusCompleted:
		return apperr.Validation("task %s is completed", taskID)
	case model.TaskStatusArchived:
		t.Status = model.TaskStatusActive
		t.UpdatedAt = a.now()
		a.setRowLocked(taskID, model.StateRestartStart, "restored")
	default:
		if _, ok := a.rows[taskID]; !ok {
			a.setRowLocked(taskID, model.StateNormalStart, "focus")
		}
	}
	a.clearFocusLocked()
	a.focus = taskID
	if i := a.lastRecordLocked(taskID); i >= 0 {
		a.records[i].IsFocus = true
	}
	return nil
}

func (a *Authority) lastRecordLocked(taskID string) int {
	for i := len(a.records) - 1; i >= 0; i-- {
		if a.records[i].TaskID == taskID {
			return i
		}
	}
	return -1
}

// FocusTaskID exposes the focus pointer for tests and the development server.
func (a *Authority) FocusTaskID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.focus
}

func (a *Authority) ListTaskRecords(ctx context.Context, q remote.RecordQuery) (model.Page[model.TaskRecord], error) {
	if err := a.enter(ctx, "ListTaskRecords"); err != nil {
		return model.Page[model.TaskRecord]{}, err
	}
	defer a.mu.Unlock()
	var out []model.TaskRecord
	for _, r := range a.records {
		if q.TaskID != "" && r.TaskID != q.TaskID {
			continue
		}
		out = append(out, r)
	}
	return paginate(out, q.Limit, q.Offset), nil
}

func (a *Authority) recordByIDLocked(id string) (model.TaskRecord, bool) {
	for _, r := range a.records {
		if r.ID == id {
			return r, true
		}
	}
	return model.TaskRecord{}, false
}

// ArchiveRecord archives the task the record belongs to.
func (a *Authority) ArchiveRecord(ctx context.Context, recordID string) error {
	return a.closeByRecord(ctx, "ArchiveRecord", recordID, model.RecordArchive)
}

// TerminateRecord terminates the task the record belongs to.
func (a *Authority) TerminateRecord(ctx context.Context, recordID string) error {
	return a.closeByRecord(ctx, "TerminateRecord", recordID, model.RecordTerminate)
}

func (a *Authority) closeByRecord(ctx context.Context, method, recordID string, rt model.RecordType) error {
	if err := a.enter(ctx, method); err != nil {
		return err
	}
	defer a.mu.Unlock()
	r, ok := a.recordByIDLocked(recordID)
	if !ok {
		return apperr.NotFound("task record", recordID)
	}
	t := a.tasks[r.TaskID]
	if t == nil || t.Status != model.TaskStatusActive {
		return apperr.Conflict("task of record %s is no longer active", recordID)
	}
	a.appendRecordLocked(t, rt, string(rt), model.Tags{}, "")
	a.finishLocked(t, rt)
	return nil
}

func (a *Authority) setRowLocked(taskID string, st model.EditState, reason string) *model.EditRowState {
	row := &model.EditRowState{
		TaskID:           taskID,
		CurrentState:     st,
		PrefixText:       a.prefixLocked(taskID),
		Components:       editrow.ComponentsFor(st),
		LastChangeReason: reason,
		LastChangeTime:   a.now(),
	}
	a.rows[taskID] = row
	return row
}

// prefixLocked numbers the next record of the task.
func (a *Authority) prefixLocked(taskID string) string {
	return fmt.Sprintf("#%d", a.seq[taskID]+1)
}

func (a *Authority) GetEditRowState(ctx context.Context, taskID string) (model.EditRowState, error) {
	if err := a.enter(ctx, "GetEditRowState"); err != nil {
		return model.EditRowState{}, err
	}
	defer a.mu.Unlock()
	t, ok := a.tasks[taskID]
	if !ok {
		return model.EditRowState{}, apperr.NotFound("task", taskID)
	}
	if row, ok := a.rows[taskID]; ok {
		return *row, nil
	}
	if t.Status != model.TaskStatusActive {
		return model.EditRowState{}, apperr.NotFound("edit row", taskID)
	}
	return *a.setRowLocked(taskID, model.StateNormalStart, "init"), nil
}

func (a *Authority) SubmitEditRowOperation(ctx context.Context, req remote.OperationRequest) (remote.OperationResult, error) {
	if err := a.enter(ctx, "SubmitEditRowOperation"); err != nil {
		return remote.OperationResult{}, err
	}
	defer a.mu.Unlock()
	t, ok := a.tasks[req.TaskID]
	if !ok {
		return remote.OperationResult{}, apperr.NotFound("task", req.TaskID)
	}
	row, ok := a.rows[req.TaskID]
	if !ok || t.Status != model.TaskStatusActive {
		return remote.OperationResult{}, apperr.Conflict("task %s has no edit row", req.TaskID)
	}
	if req.FromState != "" && req.FromState != row.CurrentState {
		return remote.OperationResult{}, &apperr.ConflictError{
			Code:    "stale_state",
			Message: fmt.Sprintf("edit row is %s, not %s", row.CurrentState, req.FromState),
		}
	}
	if req.Row != remote.RowA && req.Row != remote.RowB {
		return remote.OperationResult{}, apperr.Validation("unknown row %q", req.Row)
	}
	tr, err := editrow.Next(row.CurrentState, req.Kind)
	if err != nil {
		return remote.OperationResult{}, err
	}
	text := strings.TrimSpace(req.Text)
	if editrow.NeedsText(req.Kind) && text == "" {
		return remote.OperationResult{}, &apperr.ValidationError{Code: "empty_text", Message: "record text is required"}
	}

	var res remote.OperationResult
	if tr.Record != "" {
		rec := a.appendRecordLocked(t, tr.Record, text, req.Tags, row.PrefixText)
		res.Record = &rec
	}
	if tr.Cleared {
		a.finishLocked(t, tr.Record)
		res.Cleared = true
		return res, nil
	}
	row.CurrentState = tr.Next
	row.Components = editrow.ComponentsFor(tr.Next)
	row.PrefixText = a.prefixLocked(t.ID)
	row.CachedText = ""
	row.LastChangeReason = string(req.Kind)
	row.LastChangeTime = a.now()
	res.NewState = row.CurrentState
	res.Components = row.Components
	res.PrefixText = row.PrefixText
	return res, nil
}

// appendRecordLocked assigns the next sequence of the task. Terminal records
// carry the seconds elapsed since the task's first start record.
func (a *Authority) appendRecordLocked(t *model.Task, rt model.RecordType, text string, tags model.Tags, prefix string) model.TaskRecord {
	now := a.now()
	a.seq[t.ID]++
	if rt == model.RecordStart {
		if _, ok := a.started[t.ID]; !ok {
			a.started[t.ID] = now
		}
	}
	if tags.IsZero() {
		tags = t.Tags
	}
	if prefix == "" {
		prefix = fmt.Sprintf("#%d", a.seq[t.ID])
	}
	rec := model.TaskRecord{
		ID:             a.newID(),
		TaskID:         t.ID,
		RecordSequence: a.seq[t.ID],
		RecordText:     text,
		RecordType:     rt,
		TimeText:       now.Format("15:04"),
		PrefixText:     prefix,
		Tags:           tags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch rt {
	case model.RecordComplete, model.RecordArchive, model.RecordTerminate:
		if start, ok := a.started[t.ID]; ok {
			d := int(now.Sub(start) / time.Second)
			rec.Duration = &d
		}
	}
	if a.focus == t.ID {
		for i := range a.records {
			a.records[i].IsFocus = false
		}
		rec.IsFocus = true
	}
	a.records = append(a.records, rec)
	return rec
}

func (a *Authority) ListSpecialRows(ctx context.Context) ([]model.SpecialEditRow, error) {
	if err := a.enter(ctx, "ListSpecialRows"); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	out := make([]model.SpecialEditRow, 0, len(a.specials))
	for _, r := range a.specials {
		if r.IsVisible {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (a *Authority) CreateSpecialRow(ctx context.Context, req remote.SpecialRowRequest) (model.SpecialEditRow, error) {
	if err := a.enter(ctx, "CreateSpecialRow"); err != nil {
		return model.SpecialEditRow{}, err
	}
	defer a.mu.Unlock()
	switch req.Type {
	case model.SpecialFlow, model.SpecialInterrupt, model.SpecialError:
	default:
		return model.SpecialEditRow{}, apperr.Validation("unknown special row type %q", req.Type)
	}
	t, ok := a.tasks[req.TaskID]
	if !ok {
		return model.SpecialEditRow{}, apperr.NotFound("task", req.TaskID)
	}
	return a.upsertSpecialLocked(model.SpecialEditRow{
		Type:             req.Type,
		TaskID:           t.ID,
		PrefixText:       t.TaskName,
		BusinessTypeText: t.BusinessType,
		OperationText:    strings.TrimSpace(req.OperationText),
	}), nil
}

// upsertSpecialLocked hides any visible row of the same type for the task
// before adding the new one.
func (a *Authority) upsertSpecialLocked(r model.SpecialEditRow) model.SpecialEditRow {
	for i := range a.specials {
		s := &a.specials[i]
		if s.Type == r.Type && s.TaskID == r.TaskID && s.IsVisible {
			s.IsVisible = false
			s.TimerRunning = false
		}
	}
	r.ID = a.newID()
	r.IsVisible = true
	r.CreatedAt = a.now()
	a.specials = append(a.specials, r)
	return r
}

// SubmitSpecialRowOperation commits a special row: it is hidden and a
// progress record is appended to its task.
func (a *Authority) SubmitSpecialRowOperation(ctx context.Context, rowID string, typ model.SpecialRowType, at time.Time) (remote.SpecialResult, error) {
	if err := a.enter(ctx, "SubmitSpecialRowOperation"); err != nil {
		return remote.SpecialResult{}, err
	}
	defer a.mu.Unlock()
	var row *model.SpecialEditRow
	for i := range a.specials {
		if a.specials[i].ID == rowID {
			row = &a.specials[i]
			break
		}
	}
	if row == nil {
		return remote.SpecialResult{}, apperr.NotFound("special row", rowID)
	}
	if row.Type != typ {
		return remote.SpecialResult{}, apperr.Validation("row %s is %s, not %s", rowID, row.Type, typ)
	}
	if !row.IsVisible {
		return remote.SpecialResult{}, apperr.Conflict("special row %s already handled", rowID)
	}
	row.IsVisible = false
	row.TimerRunning = false
	t := a.tasks[row.TaskID]
	if t == nil {
		return remote.SpecialResult{}, nil
	}
	text := string(row.Type)
	if row.OperationText != "" {
		text += ": " + row.OperationText
	}
	rec := a.appendRecordLocked(t, model.RecordProgress, text, model.Tags{}, "")
	if !at.IsZero() && at.After(row.CreatedAt) {
		d := int(at.Sub(row.CreatedAt) / time.Second)
		rec.Duration = &d
		a.records[len(a.records)-1].Duration = &d
	}
	return remote.SpecialResult{Record: &rec}, nil
}
