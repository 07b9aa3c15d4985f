package model

import "time"

type TaskType string

const (
	TaskTypeSingleRow TaskType = "single_row"
	TaskTypeDoubleRow TaskType = "double_row"
)

type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusArchived  TaskStatus = "archived"
)

// Tags is the tag selection carried by tasks, records and operations.
type Tags struct {
	PrimaryTag   string `json:"primaryTag,omitempty" yaml:"primaryTag,omitempty"`
	SecondaryTag string `json:"secondaryTag,omitempty" yaml:"secondaryTag,omitempty"`
	BusinessType string `json:"businessType,omitempty" yaml:"businessType,omitempty"`
}

func (t Tags) IsZero() bool {
	return t.PrimaryTag == "" && t.SecondaryTag == "" && t.BusinessType == ""
}

type Task struct {
	ID           string     `json:"id" yaml:"id"`
	UserID       string     `json:"userId,omitempty" yaml:"userId,omitempty"`
	ArchiveID    string     `json:"archiveId,omitempty" yaml:"archiveId,omitempty"`
	TaskType     TaskType   `json:"taskType" yaml:"taskType"`
	TaskName     string     `json:"taskName" yaml:"taskName"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty"`
	Status       TaskStatus `json:"status" yaml:"status"`
	Tags         `yaml:",inline"`
	ParentTaskID *string    `json:"parentTaskId,omitempty" yaml:"parentTaskId,omitempty"`
	Priority     int        `json:"priority" yaml:"priority"`
	IsCompleted  bool       `json:"isCompleted" yaml:"isCompleted"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" yaml:"updatedAt"`
}

type RecordType string

const (
	RecordStart     RecordType = "start"
	RecordProgress  RecordType = "progress"
	RecordComplete  RecordType = "complete"
	RecordArchive   RecordType = "archive"
	RecordTerminate RecordType = "terminate"
)

// TaskRecord is an immutable log entry. RecordSequence is assigned by the
// remote authority and strictly increases per task.
type TaskRecord struct {
	ID             string     `json:"id" yaml:"id"`
	TaskID         string     `json:"taskId" yaml:"taskId"`
	RecordSequence int        `json:"recordSequence" yaml:"recordSequence"`
	IsFocus        bool       `json:"isFocus,omitempty" yaml:"isFocus,omitempty"`
	RecordText     string     `json:"recordText" yaml:"recordText"`
	RecordType     RecordType `json:"recordType" yaml:"recordType"`
	TimeText       string     `json:"timeText" yaml:"timeText"`
	PrefixText     string     `json:"prefixText" yaml:"prefixText"`
	Tags           `yaml:",inline"`
	Duration       *int      `json:"duration,omitempty" yaml:"duration,omitempty"` // seconds
	CreatedAt      time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" yaml:"updatedAt"`
}

type DisplayStatus string

const (
	DisplayNormal      DisplayStatus = "normal"
	DisplayHighlighted DisplayStatus = "highlighted"
	DisplayDimmed      DisplayStatus = "dimmed"
)

// WarehouseTask is a backlog forest node.
type WarehouseTask struct {
	ID            string `json:"id" yaml:"id"`
	UserID        string `json:"userId,omitempty" yaml:"userId,omitempty"`
	TaskText      string `json:"taskText" yaml:"taskText"`
	Tags          `yaml:",inline"`
	Priority      int           `json:"priority" yaml:"priority"`
	DisplayStatus DisplayStatus `json:"displayStatus" yaml:"displayStatus"`
	ParentTaskID  *string       `json:"parentTaskId,omitempty" yaml:"parentTaskId,omitempty"`
	Depth         int           `json:"depth" yaml:"depth"`
	IsExpanded    bool          `json:"isExpanded" yaml:"isExpanded"`
	CreatedAt     time.Time     `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt" yaml:"updatedAt"`
}

// ParentID returns the parent id or "" for top-level nodes.
func (w WarehouseTask) ParentID() string {
	if w.ParentTaskID == nil {
		return ""
	}
	return *w.ParentTaskID
}

type EditState string

const (
	StateNormalStart   EditState = "normal_start"
	StateCreativeStart EditState = "creative_start"
	StateRestartStart  EditState = "restart_start"
	StateNode          EditState = "node"
	StateSupplement    EditState = "supplement"
	StateArchive       EditState = "archive"
	StateTerminate     EditState = "terminate"
)

// EditStates lists every member of the enumeration in declaration order.
var EditStates = []EditState{
	StateNormalStart,
	StateCreativeStart,
	StateRestartStart,
	StateNode,
	StateSupplement,
	StateArchive,
	StateTerminate,
}

// Components is the capability snapshot that drives which edit-row controls
// are enabled or visible.
type Components struct {
	TextEditEnabled    bool `json:"textEditEnabled" yaml:"textEditEnabled"`
	TagButtonsEnabled  bool `json:"tagButtonsEnabled" yaml:"tagButtonsEnabled"`
	ClockEnabled       bool `json:"clockEnabled" yaml:"clockEnabled"`
	PrefixVisible      bool `json:"prefixVisible" yaml:"prefixVisible"`
	FocusEnabled       bool `json:"focusEnabled" yaml:"focusEnabled"`
	ShowArchiveOptions bool `json:"showArchiveOptions" yaml:"showArchiveOptions"`
	ShowTimeClock      bool `json:"showTimeClock" yaml:"showTimeClock"`
}

type EditRowState struct {
	TaskID           string     `json:"taskId" yaml:"taskId"`
	CurrentState     EditState  `json:"currentState" yaml:"currentState"`
	PrefixText       string     `json:"prefixText" yaml:"prefixText"`
	CachedText       string     `json:"cachedText" yaml:"cachedText"`
	Components       Components `json:"components" yaml:"components"`
	LastChangeReason string     `json:"lastChangeReason" yaml:"lastChangeReason"`
	LastChangeTime   time.Time  `json:"lastChangeTime" yaml:"lastChangeTime"`
}

type SpecialRowType string

const (
	SpecialFlow      SpecialRowType = "flow"
	SpecialInterrupt SpecialRowType = "interrupt"
	SpecialError     SpecialRowType = "error"
)

type SpecialEditRow struct {
	ID               string         `json:"id" yaml:"id"`
	Type             SpecialRowType `json:"type" yaml:"type"`
	TaskID           string         `json:"taskId" yaml:"taskId"`
	PrefixText       string         `json:"prefixText" yaml:"prefixText"`
	BusinessTypeText string         `json:"businessTypeText" yaml:"businessTypeText"`
	OperationText    string         `json:"operationText" yaml:"operationText"`
	IsVisible        bool           `json:"isVisible" yaml:"isVisible"`
	IsSecondState    bool           `json:"isSecondState,omitempty" yaml:"isSecondState,omitempty"`
	TimerStartTime   *time.Time     `json:"timerStartTime,omitempty" yaml:"timerStartTime,omitempty"`
	TimerRunning     bool           `json:"timerRunning,omitempty" yaml:"timerRunning,omitempty"`
	CreatedAt        time.Time      `json:"createdAt" yaml:"createdAt"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T `json:"items" yaml:"items"`
	Total      int `json:"total" yaml:"total"`
	Page       int `json:"page" yaml:"page"`
	Limit      int `json:"limit" yaml:"limit"`
	TotalPages int `json:"totalPages" yaml:"totalPages"`
}

// StrPtr returns nil for an empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
