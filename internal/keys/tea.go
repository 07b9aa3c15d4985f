package keys

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

var namedKeys = map[tea.KeyType]Event{
	tea.KeyEnter:         {Key: "enter"},
	tea.KeyEsc:           {Key: "esc"},
	tea.KeyHome:          {Key: "home"},
	tea.KeyEnd:           {Key: "end"},
	tea.KeyCtrlHome:      {Key: "home", Ctrl: true},
	tea.KeyCtrlEnd:       {Key: "end", Ctrl: true},
	tea.KeyShiftHome:     {Key: "home", Shift: true},
	tea.KeyShiftEnd:      {Key: "end", Shift: true},
	tea.KeyCtrlShiftHome: {Key: "home", Ctrl: true, Shift: true},
	tea.KeyCtrlShiftEnd:  {Key: "end", Ctrl: true, Shift: true},
	tea.KeyUp:            {Key: "up"},
	tea.KeyDown:          {Key: "down"},
	tea.KeyLeft:          {Key: "left"},
	tea.KeyRight:         {Key: "right"},
	tea.KeyTab:           {Key: "tab"},
	tea.KeySpace:         {Key: " "},
	tea.KeyBackspace:     {Key: "backspace"},
	// Most terminals send LF for Ctrl+Enter.
	tea.KeyCtrlJ: {Key: "enter", Ctrl: true},
}

// FromKeyMsg converts a bubbletea key message. ok is false for keys the
// dispatch table has no name for.
func FromKeyMsg(msg tea.KeyMsg) (Event, bool) {
	if ev, ok := namedKeys[msg.Type]; ok {
		ev.Alt = msg.Alt
		return ev, true
	}
	if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
		return Event{Key: strings.ToLower(string(msg.Runes[0])), Alt: msg.Alt, Shift: isUpper(msg.Runes[0])}, true
	}
	// Ctrl+A .. Ctrl+Z occupy the control codes 1..26.
	if msg.Type >= tea.KeyCtrlA && msg.Type <= tea.KeyCtrlZ {
		letter := string(rune('a' + int(msg.Type-tea.KeyCtrlA)))
		return Event{Key: letter, Ctrl: true, Alt: msg.Alt}, true
	}
	return Event{}, false
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

// FromCSI decodes the "unknown CSI" strings bubbletea reports for chords it
// does not map itself, e.g. "?CSI[49 51 59 50 117]?" ("13;2u", Shift+Enter)
// or "?CSI[49 59 53 72]?" ("1;5H", Ctrl+Home).
func FromCSI(raw string) (Event, bool) {
	seq, ok := decodeCSI(raw)
	if !ok || seq == "" {
		return Event{}, false
	}
	final := seq[len(seq)-1]
	params := strings.Split(seq[:len(seq)-1], ";")
	nums := make([]int, 0, len(params))
	for _, p := range params {
		if p == "" {
			nums = append(nums, 1)
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Event{}, false
		}
		nums = append(nums, n)
	}

	var (
		name string
		mod  = 1
	)
	switch {
	case final == 'u' && len(nums) >= 1:
		name = codepointKey(nums[0])
		if len(nums) >= 2 {
			mod = nums[1]
		}
	case final == '~' && len(nums) == 3 && nums[0] == 27:
		mod = nums[1]
		name = codepointKey(nums[2])
	case final == 'H' || final == 'F' || (final >= 'A' && final <= 'D'):
		name = map[byte]string{'H': "home", 'F': "end", 'A': "up", 'B': "down", 'C': "right", 'D': "left"}[final]
		if len(nums) >= 2 {
			mod = nums[1]
		}
	}
	if name == "" {
		return Event{}, false
	}
	bits := mod - 1
	if bits < 0 {
		bits = 0
	}
	return Event{
		Key:   name,
		Shift: bits&1 != 0,
		Alt:   bits&2 != 0,
		Ctrl:  bits&4 != 0,
		Meta:  bits&8 != 0,
	}, true
}

func codepointKey(cp int) string {
	switch cp {
	case 13:
		return "enter"
	case 27:
		return "esc"
	case 9:
		return "tab"
	}
	if cp > 32 && cp < 127 {
		return strings.ToLower(string(rune(cp)))
	}
	return ""
}

func decodeCSI(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "?CSI[") || !strings.HasSuffix(raw, "]?") {
		return "", false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(raw, "?CSI["), "]?")
	var b strings.Builder
	for _, f := range strings.Fields(body) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 127 {
			return "", false
		}
		b.WriteByte(byte(n))
	}
	return b.String(), true
}

// teaKeys lists the bubbletea key strings a chord can arrive as.
func teaKeys(e Event) []string {
	out := []string{e.String()}
	if e.Ctrl && !e.Alt && !e.Shift && !e.Meta && normKey(e.Key) == "enter" {
		out = append(out, "ctrl+j")
	}
	return out
}

// KeyMap adapts a registry to bubbles/help.
type KeyMap struct {
	Short []key.Binding
	Full  [][]key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding  { return k.Short }
func (k KeyMap) FullHelp() [][]key.Binding { return k.Full }

// KeyBinding builds the bubbles binding for one registry entry.
func KeyBinding(b Binding) key.Binding {
	return key.NewBinding(
		key.WithKeys(teaKeys(b.Chord)...),
		key.WithHelp(strings.ToLower(b.Chord.Label()), b.Description),
	)
}

// KeyMap builds the help key map: the short help carries one binding per
// edit-row action, the full help one column per category.
func (r *Registry) KeyMap() KeyMap {
	var km KeyMap
	for _, g := range r.Help() {
		var col []key.Binding
		for _, b := range r.bindings {
			cat := b.Category
			if cat == "" {
				cat = CategoryGeneral
			}
			if cat != g.Category {
				continue
			}
			kb := KeyBinding(b)
			col = append(col, kb)
			if cat == CategoryEditRow || b.Action == ActionCancel {
				km.Short = append(km.Short, kb)
			}
		}
		km.Full = append(km.Full, col)
	}
	return km
}
