package httpapi

import (
	"encoding/json"
	"time"

	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
)

// Envelope wraps every response body.
type Envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorBody      `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes with a fixed meaning on the wire.
const (
	CodeBusy         = "busy"
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodeValidation   = "validation_error"
	CodeConflict     = "conflict"
	CodeInternal     = "internal_error"
)

// Route paths, relative to the API base.
const (
	PathTasks            = "/tasks"
	PathTaskRecords      = "/task-records"
	PathCreateOperation  = "/operations/create-task"
	PathEditState        = "/operations/edit-state"
	PathEditStateCurrent = "/operations/edit-state/current"
	PathClearFocus       = "/operations/clear-focus"
	PathSpecialRows      = "/special-edit-rows"
	PathWarehouse        = "/warehouse-tasks"
	PathWarehouseReorder = "/warehouse-tasks/reorder"
)

type TaskList struct {
	Tasks      []model.Task `json:"tasks"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"totalPages"`
}

type RecordList struct {
	Records    []model.TaskRecord `json:"records"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"totalPages"`
}

type SpecialRowList struct {
	Rows []model.SpecialEditRow `json:"rows"`
}

type WarehouseList struct {
	Tasks []model.WarehouseTask `json:"tasks"`
}

type ReorderBody struct {
	Tasks []remote.ReorderEntry `json:"tasks"`
}

type SpecialHandleBody struct {
	OperationType model.SpecialRowType `json:"operationType"`
	Timestamp     time.Time            `json:"timestamp"`
}

func (l TaskList) AsPage() model.Page[model.Task] {
	return model.Page[model.Task]{Items: l.Tasks, Total: l.Total, Page: l.Page, Limit: l.Limit, TotalPages: l.TotalPages}
}

func (l RecordList) AsPage() model.Page[model.TaskRecord] {
	return model.Page[model.TaskRecord]{Items: l.Records, Total: l.Total, Page: l.Page, Limit: l.Limit, TotalPages: l.TotalPages}
}
