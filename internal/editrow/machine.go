package editrow

import (
	"context"
	"strings"
	"sync"
	"time"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
)

// Machine holds the edit row of the focus task. Both rows share it.
type Machine struct {
	policy RowPolicy
	now    func() time.Time

	mu       sync.Mutex
	row      model.EditRowState
	present  bool
	inFlight bool
}

type Option func(*Machine)

func WithPolicy(p RowPolicy) Option {
	return func(m *Machine) {
		if p != nil {
			m.policy = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{policy: DefaultPolicy, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Load installs a server snapshot. Components are recomputed from the state.
// Buffered text for the same task survives a reload that carries none.
func (m *Machine) Load(st model.EditRowState) error {
	if !Valid(st.CurrentState) {
		return apperr.Validation("unknown edit state %q", st.CurrentState)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.present && m.row.TaskID == st.TaskID && st.CachedText == "" {
		st.CachedText = m.row.CachedText
	}
	st.Components = ComponentsFor(st.CurrentState)
	m.row = st
	m.present = true
	return nil
}

// Init starts a fresh row for taskID according to how the task became focus.
func (m *Machine) Init(taskID string, origin Origin) bool {
	state, ok := InitialState(origin)
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row = model.EditRowState{
		TaskID:           taskID,
		CurrentState:     state,
		Components:       ComponentsFor(state),
		LastChangeReason: "init",
		LastChangeTime:   m.now(),
	}
	m.present = true
	return true
}

// Clear drops the row. An in-flight submission is left to finish; its result
// is discarded because the task no longer matches.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row = model.EditRowState{}
	m.present = false
}

func (m *Machine) State() (model.EditRowState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.row, m.present
}

func (m *Machine) Current() model.EditState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return ""
	}
	return m.row.CurrentState
}

func (m *Machine) InFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight
}

// Effective is the components view the UI should honor: every input control
// is disabled while a submission is in flight or when there is no row.
func (m *Machine) Effective() model.Components {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return model.Components{}
	}
	c := m.row.Components
	if m.inFlight {
		c.TextEditEnabled = false
		c.TagButtonsEnabled = false
		c.ClockEnabled = false
		c.FocusEnabled = false
		c.ShowArchiveOptions = false
	}
	return c
}

// Type buffers keystrokes. It is ignored while text editing is disabled.
func (m *Machine) Type(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present || m.inFlight || !m.row.Components.TextEditEnabled {
		return false
	}
	m.row.CachedText = text
	return true
}

func (m *Machine) CachedText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.row.CachedText
}

// Pending is a submission accepted by Begin and waiting for the authority.
type Pending struct {
	Request remote.OperationRequest
	taskID  string
}

// Begin validates a submission against the local state and marks it in
// flight. An empty kind is resolved through the row policy; empty text falls
// back to the buffered text.
func (m *Machine) Begin(row remote.Row, kind remote.OperationKind, text string, tags model.Tags) (Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return Pending{}, apperr.Validation("no edit row")
	}
	if m.inFlight {
		return Pending{}, apperr.ErrBusy
	}
	if row != remote.RowA && row != remote.RowB {
		return Pending{}, apperr.Validation("unknown row %q", row)
	}
	if kind == "" {
		kind = m.policy(m.row.CurrentState, row)
	}
	if _, err := Next(m.row.CurrentState, kind); err != nil {
		return Pending{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = strings.TrimSpace(m.row.CachedText)
	}
	if NeedsText(kind) && text == "" {
		return Pending{}, &apperr.ValidationError{Code: "empty_text", Message: "record text is required"}
	}
	m.inFlight = true
	return Pending{
		Request: remote.OperationRequest{
			TaskID:    m.row.TaskID,
			Row:       row,
			Kind:      kind,
			Text:      text,
			FromState: m.row.CurrentState,
			Tags:      tags,
		},
		taskID: m.row.TaskID,
	}, nil
}

// Commit applies the authority's answer in one step and clears the buffer.
func (m *Machine) Commit(p Pending, res remote.OperationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if !m.present || m.row.TaskID != p.taskID {
		return
	}
	if res.Cleared {
		m.row = model.EditRowState{}
		m.present = false
		return
	}
	m.row.CurrentState = res.NewState
	m.row.Components = ComponentsFor(res.NewState)
	m.row.PrefixText = res.PrefixText
	m.row.CachedText = ""
	m.row.LastChangeReason = string(p.Request.Kind)
	m.row.LastChangeTime = m.now()
}

// Abort ends an in-flight submission without touching state or buffer.
func (m *Machine) Abort(Pending) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
}

// Submit runs Begin, the remote call and Commit or Abort. The lock is not
// held during the call.
func (m *Machine) Submit(ctx context.Context, svc remote.TaskService, row remote.Row, kind remote.OperationKind, text string, tags model.Tags) (remote.OperationResult, error) {
	p, err := m.Begin(row, kind, text, tags)
	if err != nil {
		return remote.OperationResult{}, err
	}
	return m.Run(ctx, svc, p)
}

// Run sends a submission accepted by Begin and ends it with Commit or Abort.
func (m *Machine) Run(ctx context.Context, svc remote.TaskService, p Pending) (remote.OperationResult, error) {
	res, err := svc.SubmitEditRowOperation(ctx, p.Request)
	if err != nil {
		m.Abort(p)
		return remote.OperationResult{}, apperr.From(err)
	}
	if !res.Cleared && !Valid(res.NewState) {
		m.Abort(p)
		return remote.OperationResult{}, &apperr.TransportError{Message: "authority returned unknown edit state " + string(res.NewState)}
	}
	m.Commit(p, res)
	return res, nil
}
