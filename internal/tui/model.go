package tui

import (
	"context"
	"log/slog"
	"time"

	"dcj-cli/internal/drag"
	"dcj-cli/internal/flow"
	"dcj-cli/internal/keys"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/reorder"
	"dcj-cli/internal/warehouse"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type pane int

const (
	paneRows pane = iota
	paneWarehouse
)

const (
	indentWidth = 2
	// nestShift is how far right of its start a dragged row must be released
	// to land as the last child of the target instead of beside it.
	nestShift      = 4
	maxRecordLines = 8
	dragItemType   = "warehouse-task"
	targetPrefix   = "row:"
)

// opDoneMsg ends one remote operation started from the UI.
type opDoneMsg struct {
	op     string
	status string
	err    error
}

type tickMsg time.Time

// dragState is the pointer gesture in progress over the warehouse panel.
type dragState struct {
	start   drag.Point
	moved   bool
	nest    bool
	targets []string

	// Written by the drop target's OnDrop.
	plan    movePlan
	planned bool
}

type appModel struct {
	ctx  context.Context
	sess *flow.Session
	log  *slog.Logger
	now  func() time.Time

	keys   *keys.Registry
	keyMap keys.KeyMap
	help   help.Model
	input  textinput.Model

	row           remote.Row
	pane          pane
	showWarehouse bool
	showFullHelp  bool

	cursor     int
	whOffset   int
	followID   string
	recOffset  int
	followTail bool

	drag    *drag.Coordinator[string]
	sorter  *reorder.Sorter
	gesture *dragState

	width, height int

	pending int
	status  string
	err     error
}

func newAppModel(ctx context.Context, sess *flow.Session, log *slog.Logger) appModel {
	reg := keys.Default()

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "type a record"
	in.CharLimit = 500
	in.Focus()
	in.SetValue(sess.Tasks.Machine.CachedText())

	h := help.New()
	h.ShortSeparator = "  "

	m := appModel{
		ctx:           ctx,
		sess:          sess,
		log:           log,
		now:           time.Now,
		keys:          reg,
		keyMap:        reg.KeyMap(),
		help:          h,
		input:         in,
		row:           remote.RowA,
		showWarehouse: true,
		followTail:    true,
		drag:          drag.New[string](),
		sorter:        &reorder.Sorter{},
	}
	if sel, ok := sess.Warehouse.Selected(); ok {
		m.cursor = m.rowIndex(sel.ID)
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m appModel) warehouseRows() []warehouse.Row {
	return m.sess.Warehouse.Flatten()
}

func (m appModel) rowIndex(id string) int {
	for i, r := range m.warehouseRows() {
		if r.Task.ID == id {
			return i
		}
	}
	return -1
}

func (m appModel) cursorRow() (warehouse.Row, bool) {
	rows := m.warehouseRows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return warehouse.Row{}, false
	}
	return rows[m.cursor], true
}

// rowBVisible reports whether row B is shown: always for double-row tasks,
// and for any task while a close is pending (row B cancels).
func (m appModel) rowBVisible() bool {
	st := m.sess.Tasks.CurrentEditState()
	switch st {
	case "":
		return false
	case model.StateArchive, model.StateTerminate:
		return true
	}
	t, ok := m.sess.Tasks.FocusTask()
	return ok && t.TaskType == model.TaskTypeDoubleRow
}

// layout is the line geometry of one frame. View and the mouse handler use
// the same numbers.
type layout struct {
	recordsTop, recordsH int
	recordStart          int
	records              []model.TaskRecord

	specialTop int
	special    []model.SpecialEditRow

	rowATop int
	rowB    bool

	statusTop int

	warehouseTop   int
	whRows         []warehouse.Row
	whStart, whEnd int
}

func (m appModel) layout() layout {
	var l layout
	l.records = m.sess.Tasks.FocusTaskRecords()
	l.special = m.sess.Tasks.Special.Visible()
	l.rowB = m.rowBVisible()

	rowsH := 1
	if l.rowB {
		rowsH = 2
	}
	fixed := 1 + len(l.special) + rowsH + 1 + 1 // header, specials, rows, status, help
	if m.showWarehouse {
		fixed++ // warehouse title
	}

	l.recordsH = len(l.records)
	if l.recordsH > maxRecordLines {
		l.recordsH = maxRecordLines
	}
	if m.height > 0 {
		avail := m.height - fixed
		if m.showWarehouse {
			avail /= 3
		}
		if l.recordsH > avail {
			l.recordsH = avail
		}
	}
	if l.recordsH < 1 {
		l.recordsH = 1
	}

	l.recordStart = m.recOffset
	if m.followTail {
		l.recordStart = len(l.records) - l.recordsH
	}
	if l.recordStart > len(l.records)-l.recordsH {
		l.recordStart = len(l.records) - l.recordsH
	}
	if l.recordStart < 0 {
		l.recordStart = 0
	}

	l.recordsTop = 1
	l.specialTop = l.recordsTop + l.recordsH
	l.rowATop = l.specialTop + len(l.special)
	l.statusTop = l.rowATop + rowsH

	l.warehouseTop = -1
	if !m.showWarehouse {
		return l
	}
	l.warehouseTop = l.statusTop + 2
	l.whRows = m.warehouseRows()
	visible := len(l.whRows)
	if m.height > 0 {
		visible = m.height - l.warehouseTop - 1
	}
	if visible < 1 {
		visible = 1
	}
	start := m.whOffset
	if m.cursor < start {
		start = m.cursor
	}
	if m.cursor >= start+visible {
		start = m.cursor - visible + 1
	}
	if start > len(l.whRows)-visible {
		start = len(l.whRows) - visible
	}
	if start < 0 {
		start = 0
	}
	l.whStart = start
	l.whEnd = start + visible
	if l.whEnd > len(l.whRows) {
		l.whEnd = len(l.whRows)
	}
	return l
}

// warehouseRowAt maps a screen line to a flattened row index.
func (l layout) warehouseRowAt(y int) (int, bool) {
	if l.warehouseTop < 0 || y < l.warehouseTop {
		return 0, false
	}
	i := l.whStart + (y - l.warehouseTop)
	if i >= l.whEnd {
		return 0, false
	}
	return i, true
}

func (l layout) specialRowAt(y int) (model.SpecialEditRow, bool) {
	i := y - l.specialTop
	if i < 0 || i >= len(l.special) {
		return model.SpecialEditRow{}, false
	}
	return l.special[i], true
}

// syncInput reloads the input from the edit row after the row changed
// underneath it (new focus, committed operation).
func (m *appModel) syncInput() {
	m.input.SetValue(m.sess.Tasks.Machine.CachedText())
	m.input.CursorEnd()
	if !m.rowBVisible() && m.row == remote.RowB {
		m.row = remote.RowA
	}
}

func (m *appModel) clampCursor() {
	n := len(m.warehouseRows())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.whOffset = m.layout().whStart
}

func (m *appModel) setCursor(i int) {
	m.cursor = i
	m.clampCursor()
	if r, ok := m.cursorRow(); ok {
		_ = m.sess.Warehouse.Select(r.Task.ID)
	}
}
