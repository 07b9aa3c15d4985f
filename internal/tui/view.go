package tui

import (
	"fmt"
	"strings"
	"time"

	"dcj-cli/internal/editrow"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
	"dcj-cli/internal/warehouse"

	xansi "github.com/charmbracelet/x/ansi"
)

func (m appModel) View() string {
	l := m.layout()
	var lines []string

	lines = append(lines, m.headerLine())

	shown := 0
	for i := l.recordStart; i < len(l.records) && shown < l.recordsH; i++ {
		lines = append(lines, recordLine(l.records[i]))
		shown++
	}
	if len(l.records) == 0 {
		lines = append(lines, styleMuted().Render("  no records yet"))
		shown++
	}
	for ; shown < l.recordsH; shown++ {
		lines = append(lines, "")
	}

	for _, r := range l.special {
		lines = append(lines, m.specialLine(r))
	}

	lines = append(lines, m.editRowLine(remote.RowA))
	if l.rowB {
		lines = append(lines, m.editRowLine(remote.RowB))
	}
	lines = append(lines, m.statusLine())

	if l.warehouseTop >= 0 {
		title := fmt.Sprintf("%s Warehouse (%d)", glyphHRule(), m.sess.Warehouse.Len())
		st := styleChrome()
		if m.pane == paneWarehouse {
			st = styleHeader()
		}
		lines = append(lines, st.Render(title))
		hint, hinted := m.dropHint()
		lifted := -1
		if m.gesture != nil && m.gesture.moved {
			lifted = m.sorter.Dragging()
		}
		for i := l.whStart; i < l.whEnd; i++ {
			lines = append(lines, m.warehouseLine(l.whRows[i], i == m.cursor, i == lifted, hinted && i == hint))
		}
		if len(l.whRows) == 0 {
			lines = append(lines, styleMuted().Render("  empty: Ctrl+Enter saves the typed text here"))
		}
	}

	if m.height > 0 {
		for len(lines) < m.height-1 {
			lines = append(lines, "")
		}
	}
	lines = append(lines, m.help.View(m.keyMap))

	if m.width > 0 {
		for i, ln := range lines {
			if xansi.StringWidth(ln) > m.width {
				lines[i] = xansi.Truncate(ln, m.width, "…")
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (m appModel) headerLine() string {
	head := styleHeader().Render("dcj")
	t, ok := m.sess.Tasks.FocusTask()
	if !ok {
		return head + styleMuted().Render("  no focus task: type a name and press Enter, or extract from the warehouse")
	}
	state := string(m.sess.Tasks.CurrentEditState())
	out := head + "  " + t.TaskName + styleMuted().Render("  ["+state+"]")
	if tags := tagText(t.Tags); tags != "" {
		out += styleMuted().Render("  " + tags)
	}
	if m.pending > 0 {
		out += styleMuted().Render("  working...")
	}
	return out
}

func recordLine(r model.TaskRecord) string {
	ts := r.TimeText
	if ts == "" && !r.CreatedAt.IsZero() {
		ts = r.CreatedAt.Local().Format("15:04")
	}
	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(styleMuted().Render(fmt.Sprintf("%5s", ts)))
	b.WriteString(" ")
	if r.PrefixText != "" {
		b.WriteString(styleChrome().Render(r.PrefixText))
		b.WriteString(" ")
	}
	b.WriteString(styleMuted().Render(string(r.RecordType)))
	if r.RecordText != "" {
		b.WriteString(" ")
		b.WriteString(r.RecordText)
	}
	if r.Duration != nil {
		b.WriteString(styleMuted().Render(" (" + (time.Duration(*r.Duration) * time.Second).String() + ")"))
	}
	return b.String()
}

func (m appModel) specialLine(r model.SpecialEditRow) string {
	st := styleSpecialRow(r.Type)
	text := r.OperationText
	if text == "" {
		text = string(r.Type)
	}
	out := "  " + st.Render(glyphBullet()+" "+text)
	if r.PrefixText != "" {
		out += " " + styleChrome().Render(r.PrefixText)
	}
	if d, ok := m.sess.Tasks.Special.Elapsed(r.ID, m.now()); ok {
		out += styleMuted().Render("  " + d.Truncate(time.Second).String())
	}
	if r.IsSecondState {
		out += styleMuted().Render("  (click or Ctrl+R to finish)")
	}
	return out
}

func (m appModel) editRowLine(row remote.Row) string {
	active := m.pane == paneRows && m.row == row
	label := "A"
	if row == remote.RowB {
		label = "B"
	}
	marker := " "
	if active {
		marker = glyphTwistyCollapsed()
	}
	head := styleRowLabel(active).Render(marker + label)

	st, ok := m.sess.Tasks.Machine.State()
	if !ok {
		kind := "start"
		if row == remote.RowB {
			kind = "start double"
		}
		line := head + " " + styleMuted().Render(kind+":") + " "
		if row == remote.RowA || active {
			line += m.input.View()
		}
		return line
	}

	op := editrow.DefaultPolicy(st.CurrentState, row)
	c := m.sess.Tasks.Machine.Effective()
	line := head + " "
	if c.PrefixVisible && st.PrefixText != "" {
		line += styleChrome().Render(st.PrefixText) + " "
	}
	line += styleMuted().Render(string(op)+":") + " "
	switch {
	case !c.TextEditEnabled:
		line += styleMuted().Render(glyphArrow() + " Enter")
	case active:
		line += m.input.View()
	default:
		line += st.CachedText
	}
	return line
}

func (m appModel) statusLine() string {
	switch {
	case m.err != nil:
		return styleError().Render("  " + m.err.Error())
	case m.status != "":
		return styleMuted().Render("  " + m.status)
	}
	return ""
}

func (m appModel) warehouseLine(r warehouse.Row, selected, lifted, dropTarget bool) string {
	var b strings.Builder
	switch {
	case lifted:
		b.WriteString(glyphGrip() + " ")
	case selected:
		b.WriteString(glyphTwistyCollapsed() + " ")
	default:
		b.WriteString("  ")
	}
	b.WriteString(strings.Repeat(" ", r.Depth*indentWidth))
	switch {
	case r.HasChildren && r.Expanded:
		b.WriteString(glyphTwistyExpanded())
	case r.HasChildren:
		b.WriteString(glyphTwistyCollapsed())
	default:
		b.WriteString(glyphBullet())
	}
	b.WriteString(" ")
	b.WriteString(styleDisplayStatus(r.Task.DisplayStatus).Render(r.Task.TaskText))
	if tags := tagText(r.Task.Tags); tags != "" {
		b.WriteString(styleMuted().Render("  " + tags))
	}
	line := b.String()
	switch {
	case dropTarget:
		return styleDropTarget().Render(xansi.Strip(line))
	case selected && m.pane == paneWarehouse:
		return styleSelected().Render(xansi.Strip(line))
	}
	return line
}

func tagText(t model.Tags) string {
	var parts []string
	for _, s := range []string{t.PrimaryTag, t.SecondaryTag, t.BusinessType} {
		if s != "" {
			parts = append(parts, "#"+s)
		}
	}
	return strings.Join(parts, " ")
}
