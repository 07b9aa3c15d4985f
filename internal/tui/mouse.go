package tui

import (
	"strings"

	"dcj-cli/internal/drag"
	"dcj-cli/internal/remote"

	tea "github.com/charmbracelet/bubbletea"
)

func (m appModel) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	p := drag.Point{X: msg.X, Y: msg.Y}
	l := m.layout()
	_, overWarehouse := l.warehouseRowAt(msg.Y)

	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		if overWarehouse {
			m.setCursor(m.cursor - 1)
		} else {
			m.scrollBy(-1)
		}
	case msg.Button == tea.MouseButtonWheelDown:
		if overWarehouse {
			m.setCursor(m.cursor + 1)
		} else {
			m.scrollBy(1)
		}

	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if row, ok := l.specialRowAt(msg.Y); ok {
			return m, m.invokeSpecial(row)
		}
		if msg.Y == l.rowATop {
			m.focusRow(remote.RowA)
			return m, nil
		}
		if l.rowB && msg.Y == l.rowATop+1 {
			m.focusRow(remote.RowB)
			return m, nil
		}
		i, ok := l.warehouseRowAt(msg.Y)
		if !ok {
			return m, nil
		}
		m.pane = paneWarehouse
		m.setCursor(i)
		r := l.whRows[i]
		if r.HasChildren && msg.X == twistyCol(r.Depth) {
			m.sess.Warehouse.ToggleExpand(r.Task.ID)
			m.clampCursor()
			return m, nil
		}
		m.beginDrag(l, i, p)

	case msg.Action == tea.MouseActionMotion:
		if m.gesture != nil {
			m.dragOver(l, p)
		}

	case msg.Action == tea.MouseActionRelease:
		if m.gesture != nil {
			return m, m.finishDrag(p)
		}
	}
	return m, nil
}

// twistyCol is the column of the expand marker of a row at depth.
func twistyCol(depth int) int {
	return 2 + depth*indentWidth
}

// beginDrag registers every visible warehouse row as a drop target for the
// row under the pointer.
func (m *appModel) beginDrag(l layout, i int, p drag.Point) {
	m.endDrag()
	r := l.whRows[i]
	g := &dragState{start: p}
	m.gesture = g
	m.drag.Start(drag.Item[string]{ID: r.Task.ID, Type: dragItemType, Data: r.Task.ParentID()})
	m.sorter.Start(i)

	width := m.width
	if width <= 0 {
		width = 1 << 16
	}
	snapshot := m.sess.Warehouse.Snapshot()
	for j := l.whStart; j < l.whEnd; j++ {
		id := targetPrefix + l.whRows[j].Task.ID
		err := m.drag.Register(drag.Target[string]{
			ID:      id,
			Bounds:  drag.Rect{X: 0, Y: l.warehouseTop + (j - l.whStart), W: width, H: 1},
			Accepts: []string{dragItemType},
			OnDrop: func(item drag.Item[string], t drag.Target[string]) error {
				plan, ok := planDrop(snapshot, item.ID, strings.TrimPrefix(t.ID, targetPrefix), g.nest)
				g.plan, g.planned = plan, ok
				return nil
			},
		})
		if err != nil {
			m.log.Debug("drop target rejected", "id", id, "err", err)
			continue
		}
		g.targets = append(g.targets, id)
	}
}

func (m *appModel) dragOver(l layout, p drag.Point) {
	g := m.gesture
	if p != g.start {
		g.moved = true
	}
	if cur := m.drag.Current(); cur != "" {
		m.drag.Leave(cur, p)
	}
	id, ok := m.drag.HitTest(p)
	if !ok || id == m.drag.Current() {
		return
	}
	if m.drag.Enter(id) {
		if i, ok := l.warehouseRowAt(p.Y); ok {
			m.sorter.Over(i)
		}
	}
}

func (m *appModel) finishDrag(p drag.Point) tea.Cmd {
	g := m.gesture
	defer m.endDrag()
	if !g.moved {
		return nil
	}
	id, ok := m.drag.HitTest(p)
	if !ok {
		m.status = "drop outside the warehouse"
		return nil
	}
	g.nest = p.X-g.start.X >= nestShift
	if _, err := m.drag.Drop(id); err != nil {
		m.err = err
		return nil
	}
	if !g.planned {
		return nil
	}
	return m.applyPlan(g.plan)
}

// endDrag drops the gesture and its targets.
func (m *appModel) endDrag() {
	m.drag.Abort()
	m.sorter.End()
	if m.gesture == nil {
		return
	}
	for _, id := range m.gesture.targets {
		m.drag.Unregister(id)
	}
	m.gesture = nil
}

// dropHint is the visible warehouse row the dragged row would land on.
func (m appModel) dropHint() (int, bool) {
	if m.gesture == nil || !m.gesture.moved {
		return -1, false
	}
	cur := m.drag.Current()
	if cur == "" || m.drag.Over(cur) != drag.EffectMove {
		return -1, false
	}
	return m.sorter.Target()
}
