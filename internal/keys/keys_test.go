package keys

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

func TestMatch_IsExact(t *testing.T) {
	r := Default()

	tests := []struct {
		ev   Event
		want Action
		ok   bool
	}{
		{ev: Event{Key: "enter"}, want: ActionOperateRowA, ok: true},
		{ev: Event{Key: "Return", Shift: true}, want: ActionOperateRowB, ok: true},
		{ev: Event{Key: "enter", Ctrl: true}, want: ActionSaveToWarehouse, ok: true},
		{ev: Event{Key: "s", Ctrl: true}, want: ActionWarehouseExtract, ok: true},
		{ev: Event{Key: "s", Ctrl: true, Shift: true}},
		{ev: Event{Key: "enter", Ctrl: true, Shift: true}},
		{ev: Event{Key: "Escape"}, want: ActionCancel, ok: true},
		{ev: Event{Key: "1", Alt: true}, want: ActionFocusRowA, ok: true},
		{ev: Event{Key: "1"}},
	}
	for _, tt := range tests {
		b, ok := r.Match(tt.ev)
		if ok != tt.ok || b.Action != tt.want {
			t.Fatalf("Match(%s): got %q ok=%v; want %q ok=%v", tt.ev, b.Action, ok, tt.want, tt.ok)
		}
	}
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	r := NewRegistry(
		Binding{Chord: Event{Key: "x"}, Action: "first"},
		Binding{Chord: Event{Key: "X"}, Action: "second"},
	)
	if b, _ := r.Match(Event{Key: "x"}); b.Action != "first" {
		t.Fatalf("expected first registration to win; got %s", b.Action)
	}
	if got := r.ForAction("second"); len(got) != 1 || got[0].Chord.Key != "x" {
		t.Fatalf("expected normalized key; got %+v", got)
	}
}

func TestDispatch(t *testing.T) {
	r := Default()
	var ran []Action
	handlers := map[Action]func(){
		ActionArchiveFocus: func() { ran = append(ran, ActionArchiveFocus) },
	}
	if a, ok := r.Dispatch(Event{Key: "a", Ctrl: true}, handlers); !ok || a != ActionArchiveFocus {
		t.Fatalf("Dispatch: got %s ok=%v", a, ok)
	}
	if a, ok := r.Dispatch(Event{Key: "t", Ctrl: true}, handlers); ok || a != ActionTerminateFocus {
		t.Fatalf("expected matched action without handler; got %s ok=%v", a, ok)
	}
	if _, ok := r.Dispatch(Event{Key: "q"}, handlers); ok {
		t.Fatalf("unbound key must not dispatch")
	}
	if len(ran) != 1 {
		t.Fatalf("handlers ran: %v", ran)
	}
}

func TestEventStringAndLabel(t *testing.T) {
	ev := Event{Key: "enter", Ctrl: true, Shift: true}
	if ev.String() != "ctrl+shift+enter" {
		t.Fatalf("String: %q", ev.String())
	}
	if ev.Label() != "Ctrl+Shift+Enter" {
		t.Fatalf("Label: %q", ev.Label())
	}
	if got := (Event{Key: "esc"}).Label(); got != "Esc" {
		t.Fatalf("Label: %q", got)
	}
	if got := (Event{Key: "s", Ctrl: true}).Label(); got != "Ctrl+S" {
		t.Fatalf("Label: %q", got)
	}
}

func TestHelp_CategoryOrder(t *testing.T) {
	r := Default()
	r.Register(Binding{Chord: Event{Key: "z"}, Action: "zzz", Category: "Extras"})
	r.Register(Binding{Chord: Event{Key: "y"}, Action: "yyy"})

	groups := r.Help()
	var cats []Category
	for _, g := range groups {
		cats = append(cats, g.Category)
	}
	want := []Category{CategoryEditRow, CategoryWarehouse, CategoryTask, CategoryNavigation, CategoryGeneral, "Extras"}
	if len(cats) != len(want) {
		t.Fatalf("categories: got %v want %v", cats, want)
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Fatalf("categories: got %v want %v", cats, want)
		}
	}
	general := groups[4].Entries
	if last := general[len(general)-1]; last.Action != "yyy" {
		t.Fatalf("uncategorized binding should land in General; got %+v", general)
	}
}

func TestFromKeyMsg(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want Event
		ok   bool
	}{
		{msg: tea.KeyMsg{Type: tea.KeyEnter}, want: Event{Key: "enter"}, ok: true},
		{msg: tea.KeyMsg{Type: tea.KeyCtrlJ}, want: Event{Key: "enter", Ctrl: true}, ok: true},
		{msg: tea.KeyMsg{Type: tea.KeyCtrlS}, want: Event{Key: "s", Ctrl: true}, ok: true},
		{msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("K")}, want: Event{Key: "k", Shift: true}, ok: true},
		{msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1"), Alt: true}, want: Event{Key: "1", Alt: true}, ok: true},
		{msg: tea.KeyMsg{Type: tea.KeyUp, Alt: true}, want: Event{Key: "up", Alt: true}, ok: true},
		{msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ab")}},
		{msg: tea.KeyMsg{Type: tea.KeyF5}},
	}
	for _, tt := range tests {
		got, ok := FromKeyMsg(tt.msg)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("FromKeyMsg(%v): got %+v ok=%v; want %+v ok=%v", tt.msg, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFromCSI(t *testing.T) {
	tests := []struct {
		raw  string
		want Event
		ok   bool
	}{
		{raw: "?CSI[49 51 59 50 117]?", want: Event{Key: "enter", Shift: true}, ok: true},
		{raw: "?CSI[49 51 59 53 117]?", want: Event{Key: "enter", Ctrl: true}, ok: true},
		{raw: "?CSI[49 59 53 72]?", want: Event{Key: "home", Ctrl: true}, ok: true},
		{raw: "?CSI[50 55 59 50 59 49 51 126]?", want: Event{Key: "enter", Shift: true}, ok: true},
		{raw: "?CSI[49 59 51 65]?", want: Event{Key: "up", Alt: true}, ok: true},
		{raw: "?CSI[57 57 57 113]?"},
		{raw: "?CSI[x]?"},
		{raw: "not a csi"},
	}
	for _, tt := range tests {
		got, ok := FromCSI(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("FromCSI(%q): got %+v ok=%v; want %+v ok=%v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKeyMap(t *testing.T) {
	km := Default().KeyMap()
	if len(km.Full) != len(categoryOrder) {
		t.Fatalf("expected one help column per category; got %d", len(km.Full))
	}
	var short []string
	for _, b := range km.Short {
		short = append(short, b.Help().Key)
	}
	if len(short) != 5 {
		t.Fatalf("short help: %v", short)
	}

	save := KeyBinding(Default().ForAction(ActionSaveToWarehouse)[0])
	if !key.Matches(tea.KeyMsg{Type: tea.KeyCtrlJ}, save) {
		t.Fatalf("Ctrl+Enter binding should also match ctrl+j")
	}
	if save.Help().Key != "ctrl+enter" {
		t.Fatalf("help key: %q", save.Help().Key)
	}
}
