package reorder

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

type node struct {
	id       string
	priority int
}

func ids(ns []node) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.id)
	}
	return out
}

func TestMove(t *testing.T) {
	t.Parallel()

	base := []string{"A", "B", "C"}
	tests := []struct {
		name string
		from int
		drop int
		want []string
	}{
		{name: "first to gap 2", from: 0, drop: 2, want: []string{"B", "A", "C"}},
		{name: "first to end", from: 0, drop: 3, want: []string{"B", "C", "A"}},
		{name: "last to front", from: 2, drop: 0, want: []string{"C", "A", "B"}},
		{name: "middle up", from: 1, drop: 0, want: []string{"B", "A", "C"}},
		{name: "own gap before", from: 1, drop: 1, want: []string{"A", "B", "C"}},
		{name: "own gap after", from: 1, drop: 2, want: []string{"A", "B", "C"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Move(base, tc.from, tc.drop)
			if err != nil {
				t.Fatalf("Move: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Move(%d,%d) = %v; want %v", tc.from, tc.drop, got, tc.want)
			}
		})
	}
	if !reflect.DeepEqual(base, []string{"A", "B", "C"}) {
		t.Fatalf("input slice was modified: %v", base)
	}
}

func TestMoveOutOfRange(t *testing.T) {
	if _, err := Move([]int{1, 2}, 2, 0); err == nil {
		t.Fatalf("expected error for old index out of range")
	}
	if _, err := Move([]int{1, 2}, 0, 3); err == nil {
		t.Fatalf("expected error for drop index out of range")
	}
}

func TestMoveAndRenumberExample(t *testing.T) {
	sibs := []node{{"A", 1}, {"B", 2}, {"C", 3}}
	got, err := Move(sibs, 0, 2)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	Renumber(got, func(n *node, p int) { n.priority = p })
	want := []node{{"B", 1}, {"A", 2}, {"C", 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v; want %v", got, want)
	}
}

func TestSorter(t *testing.T) {
	var s Sorter
	if s.Dragging() != -1 || s.Hovered() != -1 {
		t.Fatalf("idle sorter reports dragging=%d hovered=%d", s.Dragging(), s.Hovered())
	}
	s.Over(2)
	if _, ok := s.Target(); ok {
		t.Fatalf("hover without a gesture must be ignored")
	}

	s.Start(3)
	if _, ok := s.Target(); ok {
		t.Fatalf("no target before hovering")
	}
	s.Over(3)
	if _, ok := s.Target(); ok {
		t.Fatalf("hovering the dragged index is not a target")
	}
	s.Over(1)
	if i, ok := s.Target(); !ok || i != 1 || s.Dragging() != 3 {
		t.Fatalf("target=%d ok=%v dragging=%d", i, ok, s.Dragging())
	}

	s.End()
	if _, ok := s.Target(); ok || s.Dragging() != -1 || s.Hovered() != -1 {
		t.Fatalf("sorter must reset after End")
	}
}

func genNodes(t *rapid.T) []node {
	n := rapid.IntRange(1, 12).Draw(t, "n")
	out := make([]node, n)
	for i := range out {
		out[i] = node{id: string(rune('a' + i)), priority: rapid.IntRange(-50, 50).Draw(t, "priority")}
	}
	return out
}

func TestMoveRenumberProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sibs := genNodes(t)
		from := rapid.IntRange(0, len(sibs)-1).Draw(t, "from")
		drop := rapid.IntRange(0, len(sibs)).Draw(t, "drop")

		got, err := Move(sibs, from, drop)
		if err != nil {
			t.Fatalf("Move: %v", err)
		}
		Renumber(got, func(n *node, p int) { n.priority = p })

		if len(got) != len(sibs) {
			t.Fatalf("length changed: %d -> %d", len(sibs), len(got))
		}
		if !Contiguous(got, func(n node) int { return n.priority }) {
			t.Fatalf("priorities not contiguous: %v", got)
		}
		if got[InsertIndex(from, drop)].id != sibs[from].id {
			t.Fatalf("moved item not at insertion index")
		}
		if IsNoop(from, drop) && !reflect.DeepEqual(ids(got), ids(sibs)) {
			t.Fatalf("no-op drop changed order: %v -> %v", ids(sibs), ids(got))
		}
	})
}
