// Package remote defines the contract of the remote task authority the client
// consumes. Implementations convert failures into the apperr taxonomy.
package remote

import (
	"context"
	"time"

	"dcj-cli/internal/model"
)

type Row string

const (
	RowA Row = "a"
	RowB Row = "b"
)

type OperationKind string

const (
	OpStart      OperationKind = "start"
	OpProgress   OperationKind = "progress"
	OpSupplement OperationKind = "supplement"
	OpComplete   OperationKind = "complete"
	OpArchive    OperationKind = "archive"
	OpTerminate  OperationKind = "terminate"
	OpCancel     OperationKind = "cancel"
)

// OperationRequest is one edit-row submission. FromState is the state the
// client believes the row is in; the authority answers with a conflict when
// it has moved on.
type OperationRequest struct {
	TaskID    string          `json:"taskId"`
	Row       Row             `json:"rowType"`
	Kind      OperationKind   `json:"operationType"`
	Text      string          `json:"taskText"`
	FromState model.EditState `json:"fromState,omitempty"`
	model.Tags
}

// SpecialRowRequest raises a special row. A visible row of the same type for
// the same task is superseded.
type SpecialRowRequest struct {
	TaskID        string               `json:"taskId"`
	Type          model.SpecialRowType `json:"type"`
	OperationText string               `json:"operationText"`
}

// OperationResult is the authority's answer to a successful submission.
// Cleared means the edit row for the task no longer exists (completed,
// archived or terminated).
type OperationResult struct {
	NewState   model.EditState   `json:"newState"`
	Components model.Components  `json:"components"`
	PrefixText string            `json:"prefixText"`
	Record     *model.TaskRecord `json:"record,omitempty"`
	Cleared    bool              `json:"cleared"`
}

type SpecialResult struct {
	Record *model.TaskRecord `json:"record,omitempty"`
}

// ReorderEntry states the full position of one node after a drop. A nil
// NewParentTaskID places the node at top level.
type ReorderEntry struct {
	TaskID          string  `json:"taskId"`
	NewPriority     int     `json:"newPriority"`
	NewParentTaskID *string `json:"newParentTaskId"`
}

type RecordQuery struct {
	TaskID string
	Limit  int
	Offset int
}

type TaskQuery struct {
	Search string
	Status model.TaskStatus
	Limit  int
	Offset int
}

type CreateTaskRequest struct {
	ArchiveID    string         `json:"archiveId,omitempty"`
	TaskType     model.TaskType `json:"taskType"`
	TaskName     string         `json:"taskName"`
	Description  string         `json:"description,omitempty"`
	ParentTaskID *string        `json:"parentTaskId,omitempty"`
	model.Tags
}

// TaskPatch carries optional updates; nil fields are left unchanged.
type TaskPatch struct {
	TaskName     *string           `json:"taskName,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Status       *model.TaskStatus `json:"status,omitempty"`
	Priority     *int              `json:"priority,omitempty"`
	PrimaryTag   *string           `json:"primaryTag,omitempty"`
	SecondaryTag *string           `json:"secondaryTag,omitempty"`
	BusinessType *string           `json:"businessType,omitempty"`
}

type CreateWarehouseTaskRequest struct {
	TaskText     string  `json:"taskText"`
	Priority     int     `json:"priority,omitempty"`
	ParentTaskID *string `json:"parentTaskId,omitempty"`
	model.Tags
}

type WarehousePatch struct {
	TaskText      *string              `json:"taskText,omitempty"`
	Priority      *int                 `json:"priority,omitempty"`
	DisplayStatus *model.DisplayStatus `json:"displayStatus,omitempty"`
	PrimaryTag    *string              `json:"primaryTag,omitempty"`
	SecondaryTag  *string              `json:"secondaryTag,omitempty"`
	BusinessType  *string              `json:"businessType,omitempty"`
}

// TaskService covers active tasks, their records, the edit row and special rows.
type TaskService interface {
	ListTasks(ctx context.Context, q TaskQuery) (model.Page[model.Task], error)
	CreateTask(ctx context.Context, req CreateTaskRequest) (model.Task, error)
	UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (model.Task, error)
	CompleteTask(ctx context.Context, taskID string) (model.Task, error)
	SetFocusTask(ctx context.Context, taskID string) error

	ListTaskRecords(ctx context.Context, q RecordQuery) (model.Page[model.TaskRecord], error)
	ArchiveRecord(ctx context.Context, recordID string) error
	TerminateRecord(ctx context.Context, recordID string) error

	GetEditRowState(ctx context.Context, taskID string) (model.EditRowState, error)
	SubmitEditRowOperation(ctx context.Context, req OperationRequest) (OperationResult, error)

	ListSpecialRows(ctx context.Context) ([]model.SpecialEditRow, error)
	CreateSpecialRow(ctx context.Context, req SpecialRowRequest) (model.SpecialEditRow, error)
	SubmitSpecialRowOperation(ctx context.Context, rowID string, typ model.SpecialRowType, at time.Time) (SpecialResult, error)
}

// WarehouseService covers the backlog forest.
type WarehouseService interface {
	ListWarehouseTasks(ctx context.Context) ([]model.WarehouseTask, error)
	CreateWarehouseTask(ctx context.Context, req CreateWarehouseTaskRequest) (model.WarehouseTask, error)
	UpdateWarehouseTask(ctx context.Context, taskID string, patch WarehousePatch) (model.WarehouseTask, error)
	DeleteWarehouseTask(ctx context.Context, taskID string) error
	CompleteWarehouseTask(ctx context.Context, taskID string) (model.WarehouseTask, error)
	ReorderWarehouse(ctx context.Context, entries []ReorderEntry) error
	ExtractTask(ctx context.Context, taskID string) (model.Task, error)
}

// Authority is the full remote surface.
type Authority interface {
	TaskService
	WarehouseService
}
