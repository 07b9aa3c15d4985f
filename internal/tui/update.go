package tui

import (
	"context"
	"fmt"
	"strings"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/keys"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"

	tea "github.com/charmbracelet/bubbletea"
)

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = m.inputWidth()
		m.clampCursor()
		return m, nil

	case tickMsg:
		return m, tick()

	case opDoneMsg:
		m.pending--
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
		} else {
			m.err = nil
			m.status = msg.status
		}
		m.syncInput()
		if m.followID != "" {
			if i := m.rowIndex(m.followID); i >= 0 {
				m.cursor = i
			}
			m.followID = ""
		}
		m.clampCursor()
		return m, nil

	case tea.MouseMsg:
		return m.updateMouse(msg)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlQ {
			return m, tea.Quit
		}
		if ev, ok := keys.FromKeyMsg(msg); ok {
			if handled, cmd := m.handleKey(ev); handled {
				return m, cmd
			}
		}
		return m.updateText(msg)

	default:
		// Chords bubbletea cannot name itself (Shift+Enter under the kitty
		// protocol, Option+Arrow on Terminal.app) arrive as unknown CSI.
		if s, ok := any(msg).(fmt.Stringer); ok {
			if ev, ok := keys.FromCSI(s.String()); ok {
				if handled, cmd := m.handleKey(ev); handled {
					return m, cmd
				}
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey runs the registry first, then the pane's own keys.
func (m *appModel) handleKey(ev keys.Event) (bool, tea.Cmd) {
	var cmd tea.Cmd
	handlers := map[keys.Action]func(){
		keys.ActionOperateRowA:      func() { cmd = m.operate(remote.RowA) },
		keys.ActionOperateRowB:      func() { cmd = m.operate(remote.RowB) },
		keys.ActionSaveToWarehouse:  func() { cmd = m.saveToWarehouse() },
		keys.ActionWarehouseExtract: func() { cmd = m.extract() },
		keys.ActionArchiveFocus:     func() { cmd = m.closeFocus(remote.OpArchive) },
		keys.ActionTerminateFocus:   func() { cmd = m.closeFocus(remote.OpTerminate) },
		keys.ActionToggleWarehouse:  m.toggleWarehouse,
		keys.ActionScrollTop:        func() { m.scroll(true) },
		keys.ActionScrollBottom:     func() { m.scroll(false) },
		keys.ActionFocusRowA:        func() { m.focusRow(remote.RowA) },
		keys.ActionFocusRowB:        func() { m.focusRow(remote.RowB) },
		keys.ActionCancel:           func() { cmd = m.cancel() },
	}
	if m.pane == paneWarehouse {
		// Enter operates the selected backlog node rather than the edit row.
		if ev.String() == "enter" {
			return true, m.extract()
		}
	}
	if _, ok := m.keys.Dispatch(ev, handlers); ok {
		return true, cmd
	}
	if ev.String() == "ctrl+k" {
		m.showFullHelp = !m.showFullHelp
		m.help.ShowAll = m.showFullHelp
		return true, nil
	}
	if ev.String() == "ctrl+r" {
		return true, m.invokeFirstSpecial()
	}
	if ev.String() == "tab" {
		m.switchPane()
		return true, nil
	}
	if m.pane == paneWarehouse {
		return m.warehouseKey(ev)
	}
	switch ev.String() {
	case "up":
		m.scrollBy(-1)
		return true, nil
	case "down":
		m.scrollBy(1)
		return true, nil
	}
	return false, nil
}

// updateText feeds the input. With an edit row the text is mirrored into the
// row's buffer and edits are refused while the row does not allow typing.
// Without one the input is a scratch line for new tasks and backlog nodes.
func (m appModel) updateText(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pane != paneRows {
		return m, nil
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	after := m.input.Value()
	if after == before {
		return m, cmd
	}
	if _, ok := m.sess.Tasks.Machine.State(); ok && !m.sess.Tasks.TypeText(after) {
		m.input.SetValue(before)
		m.input.CursorEnd()
	}
	return m, cmd
}

func (m appModel) inputWidth() int {
	w := m.width - 24
	if w < 10 {
		w = 10
	}
	return w
}

// run starts fn off the UI loop; its outcome comes back as opDoneMsg.
func (m *appModel) run(op string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	m.pending++
	m.err = nil
	m.status = op + "..."
	ctx, log := m.ctx, m.log
	return func() tea.Msg {
		status, err := fn(ctx)
		if err != nil {
			log.Warn("operation failed", "op", op, "kind", apperr.Kind(err), "err", err)
		} else {
			log.Debug("operation done", "op", op)
		}
		return opDoneMsg{op: op, status: status, err: err}
	}
}

func (m *appModel) operate(row remote.Row) tea.Cmd {
	sess := m.sess
	if _, ok := sess.Tasks.Machine.State(); !ok {
		// No focus task: Enter starts a single-row task, Shift+Enter a
		// double-row one.
		name := strings.TrimSpace(m.input.Value())
		if name == "" {
			m.err = apperr.Validation("type a task name first")
			return nil
		}
		typ := model.TaskTypeSingleRow
		if row == remote.RowB {
			typ = model.TaskTypeDoubleRow
		}
		m.input.SetValue("")
		return m.run("create task", func(ctx context.Context) (string, error) {
			if _, err := sess.CreateTask(ctx, remote.CreateTaskRequest{TaskType: typ, TaskName: name}); err != nil {
				return "", err
			}
			return "started " + name, nil
		})
	}
	if row == remote.RowB && !m.rowBVisible() {
		row = remote.RowA
	}
	m.row = row
	return m.run("submit", func(ctx context.Context) (string, error) {
		res, err := sess.Tasks.Submit(ctx, row, "", "", model.Tags{})
		if err != nil {
			return "", err
		}
		switch {
		case res.Cleared:
			return "task closed", nil
		case res.NewState == model.StateArchive || res.NewState == model.StateTerminate:
			return string(res.NewState) + " pending: confirm on row A, cancel on row B", nil
		}
		return "now " + string(res.NewState), nil
	})
}

func (m *appModel) saveToWarehouse() tea.Cmd {
	sess := m.sess
	text := m.input.Value()
	if strings.TrimSpace(text) == "" && strings.TrimSpace(sess.Tasks.Machine.CachedText()) == "" {
		m.err = apperr.Validation("nothing to save")
		return nil
	}
	_, hasRow := sess.Tasks.Machine.State()
	if !hasRow {
		m.input.SetValue("")
	}
	return m.run("save to warehouse", func(ctx context.Context) (string, error) {
		if _, err := sess.SaveToWarehouse(ctx, text, model.Tags{}); err != nil {
			return "", err
		}
		if hasRow {
			sess.Tasks.TypeText("")
		}
		return "saved to warehouse", nil
	})
}

func (m *appModel) extract() tea.Cmd {
	sess := m.sess
	if m.showWarehouse {
		if r, ok := m.cursorRow(); ok {
			_ = sess.Warehouse.Select(r.Task.ID)
		}
	}
	if _, ok := sess.Warehouse.Selected(); !ok {
		m.err = apperr.Validation("no warehouse task selected")
		return nil
	}
	m.pane = paneRows
	return m.run("extract", func(ctx context.Context) (string, error) {
		h, err := sess.ExtractSelected(ctx)
		if err != nil {
			return "", err
		}
		if t, ok := sess.Tasks.Task(h.ID); ok {
			return "focus: " + t.TaskName, nil
		}
		return "extracted", nil
	})
}

func (m *appModel) closeFocus(kind remote.OperationKind) tea.Cmd {
	sess := m.sess
	step := sess.ArchiveFocus
	if kind == remote.OpTerminate {
		step = sess.TerminateFocus
	}
	return m.run(string(kind), func(ctx context.Context) (string, error) {
		res, err := step(ctx)
		if err != nil {
			return "", err
		}
		if res.Cleared {
			return string(kind) + "d", nil
		}
		return string(kind) + " pending: press again to confirm, Esc to cancel", nil
	})
}

func (m *appModel) cancel() tea.Cmd {
	if m.drag.Dragging() {
		m.endDrag()
		m.status = "drag cancelled"
		return nil
	}
	switch m.sess.Tasks.CurrentEditState() {
	case model.StateArchive, model.StateTerminate:
		sess := m.sess
		return m.run("cancel", func(ctx context.Context) (string, error) {
			if _, err := sess.Cancel(ctx); err != nil {
				return "", err
			}
			return "cancelled", nil
		})
	}
	if m.pane == paneWarehouse {
		m.pane = paneRows
		return nil
	}
	m.err = nil
	m.status = ""
	m.sess.Tasks.ClearError()
	m.sess.Warehouse.ClearError()
	return nil
}

func (m *appModel) invokeFirstSpecial() tea.Cmd {
	rows := m.sess.Tasks.Special.Visible()
	if len(rows) == 0 {
		return nil
	}
	return m.invokeSpecial(rows[0])
}

func (m *appModel) invokeSpecial(row model.SpecialEditRow) tea.Cmd {
	sess := m.sess
	return m.run("special row", func(ctx context.Context) (string, error) {
		out, err := sess.Tasks.InvokeSpecialRow(ctx, row.ID)
		if err != nil {
			return "", err
		}
		if !out.Committed {
			return string(row.Type) + " started: invoke again to finish", nil
		}
		return string(row.Type) + " recorded", nil
	})
}

func (m *appModel) toggleWarehouse() {
	m.showWarehouse = !m.showWarehouse
	if m.showWarehouse {
		m.pane = paneWarehouse
		m.clampCursor()
	} else {
		m.pane = paneRows
	}
}

func (m *appModel) switchPane() {
	if m.pane == paneWarehouse || !m.showWarehouse {
		m.pane = paneRows
		return
	}
	m.pane = paneWarehouse
	m.clampCursor()
}

func (m *appModel) focusRow(row remote.Row) {
	m.pane = paneRows
	if row == remote.RowB && !m.rowBVisible() {
		return
	}
	m.row = row
}

func (m *appModel) scroll(top bool) {
	if m.pane == paneWarehouse {
		if top {
			m.setCursor(0)
		} else {
			m.setCursor(len(m.warehouseRows()) - 1)
		}
		return
	}
	m.followTail = !top
	m.recOffset = 0
}

func (m *appModel) scrollBy(d int) {
	l := m.layout()
	m.recOffset = l.recordStart + d
	if m.recOffset < 0 {
		m.recOffset = 0
	}
	m.followTail = m.recOffset+l.recordsH >= len(l.records)
}
