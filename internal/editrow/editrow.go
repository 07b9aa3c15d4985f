// Package editrow is the state machine behind the dual-row editing surface of
// the focus task.
package editrow

import (
	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
)

// ComponentsFor derives the capability snapshot of a state. It is the only
// way components are produced.
func ComponentsFor(s model.EditState) model.Components {
	switch s {
	case model.StateNormalStart, model.StateCreativeStart:
		return model.Components{
			TextEditEnabled:   true,
			TagButtonsEnabled: true,
			ClockEnabled:      true,
			FocusEnabled:      true,
		}
	case model.StateRestartStart:
		return model.Components{
			TextEditEnabled:   true,
			TagButtonsEnabled: true,
			ClockEnabled:      true,
			PrefixVisible:     true,
			FocusEnabled:      true,
		}
	case model.StateNode, model.StateSupplement:
		return model.Components{
			TextEditEnabled:   true,
			TagButtonsEnabled: true,
			ClockEnabled:      true,
			PrefixVisible:     true,
			FocusEnabled:      true,
			ShowTimeClock:     true,
		}
	case model.StateArchive, model.StateTerminate:
		return model.Components{
			PrefixVisible:      true,
			ShowArchiveOptions: true,
		}
	default:
		return model.Components{}
	}
}

func Valid(s model.EditState) bool {
	for _, v := range model.EditStates {
		if v == s {
			return true
		}
	}
	return false
}

func isStart(s model.EditState) bool {
	return s == model.StateNormalStart || s == model.StateCreativeStart || s == model.StateRestartStart
}

func isRunning(s model.EditState) bool {
	return s == model.StateNode || s == model.StateSupplement
}

// Transition is the outcome of applying an operation to a state. Record is
// empty when the operation writes no record. Cleared means the edit row ends.
type Transition struct {
	Next    model.EditState
	Record  model.RecordType
	Cleared bool
}

// Next applies kind to from. Archive and terminate are two-step: the first
// submission enters the pending state, a second of the same kind confirms and
// clears the row, cancel returns to node.
func Next(from model.EditState, kind remote.OperationKind) (Transition, error) {
	switch {
	case isStart(from) && kind == remote.OpStart:
		return Transition{Next: model.StateNode, Record: model.RecordStart}, nil

	case isRunning(from) && kind == remote.OpProgress:
		return Transition{Next: model.StateNode, Record: model.RecordProgress}, nil
	case isRunning(from) && kind == remote.OpSupplement:
		return Transition{Next: model.StateSupplement, Record: model.RecordProgress}, nil
	case isRunning(from) && kind == remote.OpComplete:
		return Transition{Cleared: true, Record: model.RecordComplete}, nil
	case isRunning(from) && kind == remote.OpArchive:
		return Transition{Next: model.StateArchive}, nil
	case isRunning(from) && kind == remote.OpTerminate:
		return Transition{Next: model.StateTerminate}, nil

	case from == model.StateArchive && kind == remote.OpArchive:
		return Transition{Cleared: true, Record: model.RecordArchive}, nil
	case from == model.StateArchive && kind == remote.OpTerminate:
		return Transition{Next: model.StateTerminate}, nil
	case from == model.StateTerminate && kind == remote.OpTerminate:
		return Transition{Cleared: true, Record: model.RecordTerminate}, nil
	case (from == model.StateArchive || from == model.StateTerminate) && kind == remote.OpCancel:
		return Transition{Next: model.StateNode}, nil
	}
	return Transition{}, &apperr.ValidationError{
		Code:    "invalid_transition",
		Message: "operation " + string(kind) + " is not allowed in state " + string(from),
	}
}

// NeedsText reports whether kind carries record text that must not be empty.
func NeedsText(kind remote.OperationKind) bool {
	switch kind {
	case remote.OpStart, remote.OpProgress, remote.OpSupplement:
		return true
	}
	return false
}

// RowPolicy picks the operation a row submits when the caller names none.
type RowPolicy func(state model.EditState, row remote.Row) remote.OperationKind

// DefaultPolicy: row A advances the task, row B supplements it. In the
// pending archive/terminate states row A confirms and row B cancels.
func DefaultPolicy(state model.EditState, row remote.Row) remote.OperationKind {
	switch {
	case isStart(state):
		return remote.OpStart
	case isRunning(state) && row == remote.RowB:
		return remote.OpSupplement
	case isRunning(state):
		return remote.OpProgress
	case row == remote.RowB:
		return remote.OpCancel
	case state == model.StateArchive:
		return remote.OpArchive
	case state == model.StateTerminate:
		return remote.OpTerminate
	}
	return ""
}

// Origin is how the focus task was obtained.
type Origin int

const (
	OriginServer Origin = iota
	OriginCreated
	OriginExtracted
	OriginRestored
)

// InitialState returns the start state for a freshly focused task. ok is false
// for OriginServer, where the authority's stored state wins.
func InitialState(o Origin) (model.EditState, bool) {
	switch o {
	case OriginCreated:
		return model.StateCreativeStart, true
	case OriginExtracted:
		return model.StateNormalStart, true
	case OriginRestored:
		return model.StateRestartStart, true
	}
	return "", false
}
