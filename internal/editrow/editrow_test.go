package editrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"

	"pgregory.net/rapid"
)

var allKinds = []remote.OperationKind{
	remote.OpStart, remote.OpProgress, remote.OpSupplement, remote.OpComplete,
	remote.OpArchive, remote.OpTerminate, remote.OpCancel,
}

func TestComponentsFor_EveryState(t *testing.T) {
	for _, s := range model.EditStates {
		c := ComponentsFor(s)
		if c == (model.Components{}) {
			t.Fatalf("state %s has no components", s)
		}
		pending := s == model.StateArchive || s == model.StateTerminate
		if pending && (c.TextEditEnabled || c.ClockEnabled || !c.ShowArchiveOptions) {
			t.Fatalf("pending state %s: %+v", s, c)
		}
		if !pending && !c.TextEditEnabled {
			t.Fatalf("state %s should allow text edit", s)
		}
	}
	if ComponentsFor("bogus") != (model.Components{}) {
		t.Fatalf("unknown state should have no components")
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    model.EditState
		kind    remote.OperationKind
		want    Transition
		wantErr bool
	}{
		{from: model.StateNormalStart, kind: remote.OpStart, want: Transition{Next: model.StateNode, Record: model.RecordStart}},
		{from: model.StateCreativeStart, kind: remote.OpStart, want: Transition{Next: model.StateNode, Record: model.RecordStart}},
		{from: model.StateRestartStart, kind: remote.OpStart, want: Transition{Next: model.StateNode, Record: model.RecordStart}},
		{from: model.StateNormalStart, kind: remote.OpProgress, wantErr: true},
		{from: model.StateNode, kind: remote.OpProgress, want: Transition{Next: model.StateNode, Record: model.RecordProgress}},
		{from: model.StateNode, kind: remote.OpSupplement, want: Transition{Next: model.StateSupplement, Record: model.RecordProgress}},
		{from: model.StateSupplement, kind: remote.OpProgress, want: Transition{Next: model.StateNode, Record: model.RecordProgress}},
		{from: model.StateNode, kind: remote.OpComplete, want: Transition{Cleared: true, Record: model.RecordComplete}},
		{from: model.StateNode, kind: remote.OpStart, wantErr: true},
		{from: model.StateNode, kind: remote.OpArchive, want: Transition{Next: model.StateArchive}},
		{from: model.StateArchive, kind: remote.OpArchive, want: Transition{Cleared: true, Record: model.RecordArchive}},
		{from: model.StateArchive, kind: remote.OpTerminate, want: Transition{Next: model.StateTerminate}},
		{from: model.StateArchive, kind: remote.OpCancel, want: Transition{Next: model.StateNode}},
		{from: model.StateArchive, kind: remote.OpProgress, wantErr: true},
		{from: model.StateSupplement, kind: remote.OpTerminate, want: Transition{Next: model.StateTerminate}},
		{from: model.StateTerminate, kind: remote.OpTerminate, want: Transition{Cleared: true, Record: model.RecordTerminate}},
		{from: model.StateTerminate, kind: remote.OpArchive, wantErr: true},
		{from: model.StateTerminate, kind: remote.OpCancel, want: Transition{Next: model.StateNode}},
		{from: model.StateNode, kind: remote.OpCancel, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.from)+"/"+string(tt.kind), func(t *testing.T) {
			t.Parallel()
			got, err := Next(tt.from, tt.kind)
			if tt.wantErr {
				var ve *apperr.ValidationError
				if !errors.As(err, &ve) || ve.Code != "invalid_transition" {
					t.Fatalf("expected invalid_transition; got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestNext_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(model.EditStates).Draw(t, "from")
		kind := rapid.SampledFrom(allKinds).Draw(t, "kind")
		tr, err := Next(from, kind)
		if err != nil {
			return
		}
		if tr.Cleared {
			if tr.Next != "" || tr.Record == "" {
				t.Fatalf("cleared transition %+v", tr)
			}
			return
		}
		if !Valid(tr.Next) {
			t.Fatalf("transition to unknown state %q", tr.Next)
		}
		// Whatever the row policy picks from a reachable state is allowed.
		for _, row := range []remote.Row{remote.RowA, remote.RowB} {
			if _, err := Next(tr.Next, DefaultPolicy(tr.Next, row)); err != nil {
				t.Fatalf("policy for %s row %s: %v", tr.Next, row, err)
			}
		}
	})
}

func TestDefaultPolicy(t *testing.T) {
	cases := []struct {
		state model.EditState
		a, b  remote.OperationKind
	}{
		{model.StateNormalStart, remote.OpStart, remote.OpStart},
		{model.StateNode, remote.OpProgress, remote.OpSupplement},
		{model.StateSupplement, remote.OpProgress, remote.OpSupplement},
		{model.StateArchive, remote.OpArchive, remote.OpCancel},
		{model.StateTerminate, remote.OpTerminate, remote.OpCancel},
	}
	for _, c := range cases {
		if got := DefaultPolicy(c.state, remote.RowA); got != c.a {
			t.Fatalf("%s row A: got %s want %s", c.state, got, c.a)
		}
		if got := DefaultPolicy(c.state, remote.RowB); got != c.b {
			t.Fatalf("%s row B: got %s want %s", c.state, got, c.b)
		}
	}
}

func TestInitialState(t *testing.T) {
	for o, want := range map[Origin]model.EditState{
		OriginCreated:   model.StateCreativeStart,
		OriginExtracted: model.StateNormalStart,
		OriginRestored:  model.StateRestartStart,
	} {
		got, ok := InitialState(o)
		if !ok || got != want {
			t.Fatalf("origin %d: got %s ok=%v", o, got, ok)
		}
	}
	if _, ok := InitialState(OriginServer); ok {
		t.Fatalf("server origin must defer to the stored state")
	}
}

// stubTasks answers edit-row submissions from the transition table.
type stubTasks struct {
	remote.TaskService
	calls []remote.OperationRequest
	err   error
	state model.EditState
}

func (s *stubTasks) SubmitEditRowOperation(_ context.Context, req remote.OperationRequest) (remote.OperationResult, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return remote.OperationResult{}, s.err
	}
	if s.state != "" {
		return remote.OperationResult{NewState: s.state}, nil
	}
	tr, err := Next(req.FromState, req.Kind)
	if err != nil {
		return remote.OperationResult{}, err
	}
	return remote.OperationResult{NewState: tr.Next, Cleared: tr.Cleared, PrefixText: "task"}, nil
}

func newMachine(t *testing.T, state model.EditState) *Machine {
	t.Helper()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMachine(WithClock(func() time.Time { return at }))
	if err := m.Load(model.EditRowState{TaskID: "t1", CurrentState: state}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestMachine_SubmitClearsBuffer(t *testing.T) {
	ctx := context.Background()
	m := newMachine(t, model.StateNormalStart)
	svc := &stubTasks{}

	if !m.Type("write the intro") {
		t.Fatalf("expected typing allowed")
	}
	res, err := m.Submit(ctx, svc, remote.RowA, "", "", model.Tags{PrimaryTag: "writing"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.NewState != model.StateNode || m.Current() != model.StateNode {
		t.Fatalf("expected node; got %s", m.Current())
	}
	req := svc.calls[0]
	if req.Kind != remote.OpStart || req.Text != "write the intro" || req.PrimaryTag != "writing" || req.FromState != model.StateNormalStart {
		t.Fatalf("request: %+v", req)
	}
	if m.CachedText() != "" {
		t.Fatalf("expected buffer cleared; got %q", m.CachedText())
	}
	st, _ := m.State()
	if st.PrefixText != "task" || st.LastChangeReason != "start" || !st.Components.ShowTimeClock {
		t.Fatalf("state after commit: %+v", st)
	}
}

func TestMachine_EmptyTextRejected(t *testing.T) {
	m := newMachine(t, model.StateNode)
	svc := &stubTasks{}

	_, err := m.Submit(context.Background(), svc, remote.RowA, "", "   ", model.Tags{})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) || ve.Code != "empty_text" {
		t.Fatalf("expected empty_text; got %v", err)
	}
	if len(svc.calls) != 0 || m.InFlight() {
		t.Fatalf("rejected submission must not reach the authority")
	}
	// Archive carries no text.
	if _, err := m.Submit(context.Background(), svc, remote.RowA, remote.OpArchive, "", model.Tags{}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if m.Current() != model.StateArchive {
		t.Fatalf("expected archive; got %s", m.Current())
	}
	if m.Type("nope") {
		t.Fatalf("typing must be refused while archive is pending")
	}
}

func TestMachine_FailureKeepsStateAndBuffer(t *testing.T) {
	m := newMachine(t, model.StateNode)
	svc := &stubTasks{err: &apperr.TransportError{Err: errors.New("down")}}
	m.Type("draft")

	if _, err := m.Submit(context.Background(), svc, remote.RowB, "", "", model.Tags{}); !apperr.IsTransport(err) {
		t.Fatalf("expected transport error; got %v", err)
	}
	if m.Current() != model.StateNode || m.CachedText() != "draft" || m.InFlight() {
		t.Fatalf("failure must leave the row as it was")
	}
	if svc.calls[0].Kind != remote.OpSupplement {
		t.Fatalf("row B should supplement; got %s", svc.calls[0].Kind)
	}
}

func TestMachine_UnknownStateFromAuthority(t *testing.T) {
	m := newMachine(t, model.StateNode)
	svc := &stubTasks{state: "limbo"}
	if _, err := m.Submit(context.Background(), svc, remote.RowA, "", "x", model.Tags{}); !apperr.IsTransport(err) {
		t.Fatalf("expected transport error for unknown state; got %v", err)
	}
	if m.Current() != model.StateNode {
		t.Fatalf("expected state kept; got %s", m.Current())
	}
}

func TestMachine_InFlightDisablesInput(t *testing.T) {
	m := newMachine(t, model.StateNode)
	p, err := m.Begin(remote.RowA, "", "one", model.Tags{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if m.Type("two") {
		t.Fatalf("typing must be refused in flight")
	}
	if c := m.Effective(); c.TextEditEnabled || c.ClockEnabled || c.FocusEnabled {
		t.Fatalf("expected every input disabled in flight: %+v", c)
	}
	if _, err := m.Begin(remote.RowA, "", "two", model.Tags{}); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("expected ErrBusy; got %v", err)
	}
	m.Abort(p)
	if !m.Effective().TextEditEnabled {
		t.Fatalf("expected input back after abort")
	}
}

func TestMachine_CommitForOtherTaskIgnored(t *testing.T) {
	m := newMachine(t, model.StateNode)
	p, err := m.Begin(remote.RowA, "", "one", model.Tags{})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Load(model.EditRowState{TaskID: "t2", CurrentState: model.StateNormalStart}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.Commit(p, remote.OperationResult{NewState: model.StateSupplement})
	if m.Current() != model.StateNormalStart || m.InFlight() {
		t.Fatalf("stale commit changed the row: %s", m.Current())
	}
}

func TestMachine_LoadAndInit(t *testing.T) {
	m := NewMachine()
	if err := m.Load(model.EditRowState{TaskID: "t1", CurrentState: "bogus"}); !apperr.IsValidation(err) {
		t.Fatalf("expected unknown state rejected; got %v", err)
	}
	if _, ok := m.State(); ok {
		t.Fatalf("expected no row")
	}
	if _, err := m.Begin(remote.RowA, "", "x", model.Tags{}); !apperr.IsValidation(err) {
		t.Fatalf("expected no-row error; got %v", err)
	}

	if !m.Init("t1", OriginRestored) {
		t.Fatalf("Init failed")
	}
	if !m.Effective().PrefixVisible {
		t.Fatalf("restart start shows the prefix")
	}
	m.Type("kept")
	// A reload for the same task without text keeps the buffer.
	if err := m.Load(model.EditRowState{TaskID: "t1", CurrentState: model.StateNode}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.CachedText() != "kept" {
		t.Fatalf("expected buffer kept across reload; got %q", m.CachedText())
	}
	if m.Init("t1", OriginServer) {
		t.Fatalf("server origin must not init")
	}
	m.Clear()
	if m.Current() != "" {
		t.Fatalf("expected cleared row")
	}
}

func TestMachine_ConfirmArchiveClears(t *testing.T) {
	ctx := context.Background()
	m := newMachine(t, model.StateNode)
	svc := &stubTasks{}
	if _, err := m.Submit(ctx, svc, remote.RowA, remote.OpArchive, "", model.Tags{}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	// Row B cancels a pending archive.
	if _, err := m.Submit(ctx, svc, remote.RowB, "", "", model.Tags{}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if m.Current() != model.StateNode {
		t.Fatalf("expected node after cancel; got %s", m.Current())
	}
	if _, err := m.Submit(ctx, svc, remote.RowA, remote.OpArchive, "", model.Tags{}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	res, err := m.Submit(ctx, svc, remote.RowA, "", "", model.Tags{})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !res.Cleared {
		t.Fatalf("expected the row cleared")
	}
	if _, ok := m.State(); ok {
		t.Fatalf("expected no row after confirm")
	}
}
