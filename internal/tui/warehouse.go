package tui

import (
	"context"

	"dcj-cli/internal/flow"
	"dcj-cli/internal/keys"
	"dcj-cli/internal/model"
	"dcj-cli/internal/reorder"
	"dcj-cli/internal/warehouse"

	tea "github.com/charmbracelet/bubbletea"
)

// movePlan is one reorder or reparent. Index is a drop gap in the sibling
// list as it was before the move.
type movePlan struct {
	ID       string
	ParentID string
	Index    int
	Reparent bool
}

func indexOfTask(ts []model.WarehouseTask, id string) int {
	for i, t := range ts {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// planDrop decides where draggedID lands when released over targetID. With
// nest it becomes the target's last child; otherwise it takes the target's
// place in the target's sibling group.
func planDrop(f *warehouse.Forest, draggedID, targetID string, nest bool) (movePlan, bool) {
	if draggedID == targetID {
		return movePlan{}, false
	}
	dragged, ok := f.Get(draggedID)
	if !ok {
		return movePlan{}, false
	}
	target, ok := f.Get(targetID)
	if !ok {
		return movePlan{}, false
	}
	if nest {
		return movePlan{ID: draggedID, ParentID: targetID, Index: len(f.Children(targetID)), Reparent: true}, true
	}

	parent := target.ParentID()
	sibs := f.Siblings(parent)
	ti := indexOfTask(sibs, targetID)
	if parent != dragged.ParentID() {
		return movePlan{ID: draggedID, ParentID: parent, Index: ti, Reparent: true}, true
	}
	from := indexOfTask(sibs, draggedID)
	drop := ti
	if from < ti {
		drop = ti + 1
	}
	if reorder.IsNoop(from, drop) {
		return movePlan{}, false
	}
	return movePlan{ID: draggedID, ParentID: parent, Index: drop}, true
}

// planShift moves id delta places within its sibling group.
func planShift(f *warehouse.Forest, id string, delta int) (movePlan, bool) {
	t, ok := f.Get(id)
	if !ok || delta == 0 {
		return movePlan{}, false
	}
	sibs := f.Siblings(t.ParentID())
	from := indexOfTask(sibs, id)
	to := from + delta
	if to < 0 || to >= len(sibs) {
		return movePlan{}, false
	}
	drop := to
	if delta > 0 {
		drop = to + 1
	}
	return movePlan{ID: id, ParentID: t.ParentID(), Index: drop}, true
}

// planIndent makes id the last child of its previous sibling.
func planIndent(f *warehouse.Forest, id string) (movePlan, bool) {
	t, ok := f.Get(id)
	if !ok {
		return movePlan{}, false
	}
	sibs := f.Siblings(t.ParentID())
	i := indexOfTask(sibs, id)
	if i <= 0 {
		return movePlan{}, false
	}
	prev := sibs[i-1]
	return movePlan{ID: id, ParentID: prev.ID, Index: len(f.Children(prev.ID)), Reparent: true}, true
}

// planOutdent moves id out of its parent, right after it.
func planOutdent(f *warehouse.Forest, id string) (movePlan, bool) {
	t, ok := f.Get(id)
	if !ok || t.ParentID() == "" {
		return movePlan{}, false
	}
	parent, ok := f.Get(t.ParentID())
	if !ok {
		return movePlan{}, false
	}
	gp := parent.ParentID()
	pi := indexOfTask(f.Siblings(gp), parent.ID)
	return movePlan{ID: id, ParentID: gp, Index: pi + 1, Reparent: true}, true
}

func (m *appModel) applyPlan(p movePlan) tea.Cmd {
	wh := m.sess.Warehouse
	if p.Reparent && p.ParentID != "" {
		wh.SetExpanded(p.ParentID, true)
	}
	m.followID = p.ID
	return m.run("move", func(ctx context.Context) (string, error) {
		var err error
		if p.Reparent {
			err = wh.Reparent(ctx, p.ID, p.ParentID, p.Index)
		} else {
			err = wh.Reorder(ctx, p.ID, p.Index)
		}
		if err != nil {
			return "", err
		}
		return "moved", nil
	})
}

func (m *appModel) planned(plan func(*warehouse.Forest, string) (movePlan, bool)) tea.Cmd {
	r, ok := m.cursorRow()
	if !ok {
		return nil
	}
	p, ok := plan(m.sess.Warehouse.Snapshot(), r.Task.ID)
	if !ok {
		return nil
	}
	return m.applyPlan(p)
}

func (m *appModel) warehouseKey(ev keys.Event) (bool, tea.Cmd) {
	r, hasRow := m.cursorRow()
	switch ev.String() {
	case "up", "k":
		m.setCursor(m.cursor - 1)
	case "down", "j":
		m.setCursor(m.cursor + 1)
	case "right", "l":
		if !hasRow || !r.HasChildren {
			break
		}
		if !r.Expanded {
			m.sess.Warehouse.SetExpanded(r.Task.ID, true)
		} else {
			m.setCursor(m.cursor + 1)
		}
	case "left", "h":
		if !hasRow {
			break
		}
		if r.Expanded {
			m.sess.Warehouse.SetExpanded(r.Task.ID, false)
			m.clampCursor()
		} else if pid := r.Task.ParentID(); pid != "" {
			m.setCursor(m.rowIndex(pid))
		}
	case " ":
		if hasRow && r.HasChildren {
			m.sess.Warehouse.ToggleExpand(r.Task.ID)
			m.clampCursor()
		}
	case "alt+up", "shift+k":
		return true, m.planned(func(f *warehouse.Forest, id string) (movePlan, bool) { return planShift(f, id, -1) })
	case "alt+down", "shift+j":
		return true, m.planned(func(f *warehouse.Forest, id string) (movePlan, bool) { return planShift(f, id, 1) })
	case "alt+right", "shift+l":
		return true, m.planned(planIndent)
	case "alt+left", "shift+h":
		return true, m.planned(planOutdent)
	case "c":
		if !hasRow {
			break
		}
		sess := m.sess
		id, text := r.Task.ID, r.Task.TaskText
		return true, m.run("complete", func(ctx context.Context) (string, error) {
			if err := sess.Complete(ctx, flow.WarehouseHandle(id)); err != nil {
				return "", err
			}
			return "completed " + text, nil
		})
	case "x":
		if !hasRow {
			break
		}
		wh := m.sess.Warehouse
		id, text := r.Task.ID, r.Task.TaskText
		return true, m.run("delete", func(ctx context.Context) (string, error) {
			if err := wh.Delete(ctx, id); err != nil {
				return "", err
			}
			return "deleted " + text, nil
		})
	default:
		return false, nil
	}
	return true, nil
}
