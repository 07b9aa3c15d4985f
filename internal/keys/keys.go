// Package keys routes chorded key events to action ids.
//
// Matching is exact: a binding for Ctrl+S does not fire on Ctrl+Shift+S.
// Bindings are checked in registration order and the first match wins.
package keys

import (
	"sort"
	"strings"
)

type Action string

const (
	ActionOperateRowA      Action = "edit_row.operate_a"
	ActionOperateRowB      Action = "edit_row.operate_b"
	ActionSaveToWarehouse  Action = "warehouse.save"
	ActionWarehouseExtract Action = "warehouse.extract"
	ActionArchiveFocus     Action = "task.archive"
	ActionTerminateFocus   Action = "task.terminate"
	ActionToggleWarehouse  Action = "view.toggle_warehouse"
	ActionScrollTop        Action = "view.scroll_top"
	ActionScrollBottom     Action = "view.scroll_bottom"
	ActionFocusRowA        Action = "edit_row.focus_a"
	ActionFocusRowB        Action = "edit_row.focus_b"
	ActionCancel           Action = "general.cancel"
)

type Category string

const (
	CategoryEditRow    Category = "Edit row"
	CategoryWarehouse  Category = "Warehouse"
	CategoryTask       Category = "Task"
	CategoryNavigation Category = "Navigation"
	CategoryGeneral    Category = "General"
)

// Event is one key press with its modifier state. Key is lower case:
// "enter", "esc", "home", "end", "a", "1".
type Event struct {
	Key   string
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
}

func normKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	switch k {
	case "escape":
		return "esc"
	case "return":
		return "enter"
	}
	return k
}

// String renders the chord the way bubbletea names keys ("ctrl+shift+enter").
func (e Event) String() string {
	var b strings.Builder
	if e.Ctrl {
		b.WriteString("ctrl+")
	}
	if e.Alt {
		b.WriteString("alt+")
	}
	if e.Shift {
		b.WriteString("shift+")
	}
	if e.Meta {
		b.WriteString("meta+")
	}
	b.WriteString(normKey(e.Key))
	return b.String()
}

// Label is the human form used in help ("Ctrl+Enter").
func (e Event) Label() string {
	var parts []string
	if e.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if e.Alt {
		parts = append(parts, "Alt")
	}
	if e.Shift {
		parts = append(parts, "Shift")
	}
	if e.Meta {
		parts = append(parts, "Meta")
	}
	k := normKey(e.Key)
	switch {
	case k == "esc":
		k = "Esc"
	case len(k) > 1:
		k = strings.ToUpper(k[:1]) + k[1:]
	default:
		k = strings.ToUpper(k)
	}
	return strings.Join(append(parts, k), "+")
}

type Binding struct {
	Chord       Event
	Action      Action
	Description string
	Category    Category
}

func (b Binding) Matches(e Event) bool {
	return normKey(b.Chord.Key) == normKey(e.Key) &&
		b.Chord.Ctrl == e.Ctrl &&
		b.Chord.Alt == e.Alt &&
		b.Chord.Shift == e.Shift &&
		b.Chord.Meta == e.Meta
}

type Registry struct {
	bindings []Binding
}

func NewRegistry(bs ...Binding) *Registry {
	r := &Registry{}
	for _, b := range bs {
		r.Register(b)
	}
	return r
}

func (r *Registry) Register(b Binding) {
	b.Chord.Key = normKey(b.Chord.Key)
	r.bindings = append(r.bindings, b)
}

func (r *Registry) Bindings() []Binding {
	return append([]Binding(nil), r.bindings...)
}

// Match returns the first binding matching e.
func (r *Registry) Match(e Event) (Binding, bool) {
	for _, b := range r.bindings {
		if b.Matches(e) {
			return b, true
		}
	}
	return Binding{}, false
}

// Dispatch runs the handler of the first matching binding. It reports the
// matched action and whether a handler ran.
func (r *Registry) Dispatch(e Event, handlers map[Action]func()) (Action, bool) {
	b, ok := r.Match(e)
	if !ok {
		return "", false
	}
	h := handlers[b.Action]
	if h == nil {
		return b.Action, false
	}
	h()
	return b.Action, true
}

func (r *Registry) ForAction(a Action) []Binding {
	var out []Binding
	for _, b := range r.bindings {
		if b.Action == a {
			out = append(out, b)
		}
	}
	return out
}

type HelpEntry struct {
	Keys        string `json:"keys" yaml:"keys"`
	Action      Action `json:"action" yaml:"action"`
	Description string `json:"description" yaml:"description"`
}

type HelpGroup struct {
	Category Category    `json:"category" yaml:"category"`
	Entries  []HelpEntry `json:"entries" yaml:"entries"`
}

var categoryOrder = []Category{
	CategoryEditRow,
	CategoryWarehouse,
	CategoryTask,
	CategoryNavigation,
	CategoryGeneral,
}

// Help groups the registry by category. Known categories come first in a
// fixed order, unknown ones follow sorted by name.
func (r *Registry) Help() []HelpGroup {
	byCat := map[Category][]HelpEntry{}
	for _, b := range r.bindings {
		cat := b.Category
		if cat == "" {
			cat = CategoryGeneral
		}
		byCat[cat] = append(byCat[cat], HelpEntry{
			Keys:        b.Chord.Label(),
			Action:      b.Action,
			Description: b.Description,
		})
	}
	var out []HelpGroup
	for _, c := range categoryOrder {
		if es, ok := byCat[c]; ok {
			out = append(out, HelpGroup{Category: c, Entries: es})
			delete(byCat, c)
		}
	}
	var rest []Category
	for c := range byCat {
		rest = append(rest, c)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, c := range rest {
		out = append(out, HelpGroup{Category: c, Entries: byCat[c]})
	}
	return out
}

// Default returns the shortcut table of the flow client.
func Default() *Registry {
	return NewRegistry(
		Binding{Chord: Event{Key: "enter"}, Action: ActionOperateRowA, Description: "Operate edit row A", Category: CategoryEditRow},
		Binding{Chord: Event{Key: "enter", Shift: true}, Action: ActionOperateRowB, Description: "Operate edit row B", Category: CategoryEditRow},
		Binding{Chord: Event{Key: "enter", Ctrl: true}, Action: ActionSaveToWarehouse, Description: "Save to warehouse", Category: CategoryWarehouse},
		Binding{Chord: Event{Key: "s", Ctrl: true}, Action: ActionWarehouseExtract, Description: "Extract selected warehouse task", Category: CategoryWarehouse},
		Binding{Chord: Event{Key: "a", Ctrl: true}, Action: ActionArchiveFocus, Description: "Archive focus task", Category: CategoryTask},
		Binding{Chord: Event{Key: "t", Ctrl: true}, Action: ActionTerminateFocus, Description: "Terminate focus task", Category: CategoryTask},
		Binding{Chord: Event{Key: "w", Ctrl: true}, Action: ActionToggleWarehouse, Description: "Toggle warehouse panel", Category: CategoryNavigation},
		Binding{Chord: Event{Key: "home"}, Action: ActionScrollTop, Description: "Scroll to top", Category: CategoryNavigation},
		Binding{Chord: Event{Key: "end"}, Action: ActionScrollBottom, Description: "Scroll to bottom", Category: CategoryNavigation},
		Binding{Chord: Event{Key: "1", Alt: true}, Action: ActionFocusRowA, Description: "Focus edit row A", Category: CategoryEditRow},
		Binding{Chord: Event{Key: "2", Alt: true}, Action: ActionFocusRowB, Description: "Focus edit row B", Category: CategoryEditRow},
		Binding{Chord: Event{Key: "esc"}, Action: ActionCancel, Description: "Cancel current operation", Category: CategoryGeneral},
	)
}
