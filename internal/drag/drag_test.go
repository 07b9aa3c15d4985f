package drag

import (
	"errors"
	"testing"
)

func newList(t *testing.T, dropped *[]string) *Coordinator[int] {
	t.Helper()
	c := New[int]()
	onDrop := func(item Item[int], tg Target[int]) error {
		*dropped = append(*dropped, item.ID+"->"+tg.ID)
		return nil
	}
	for i, id := range []string{"row1", "row2", "row3"} {
		err := c.Register(Target[int]{ID: id, Bounds: Rect{X: 0, Y: i, W: 40, H: 1}, Accepts: []string{"task"}, OnDrop: onDrop})
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return c
}

func TestCoordinator_Lifecycle(t *testing.T) {
	var dropped []string
	c := newList(t, &dropped)

	if c.Dragging() || c.Enter("row1") {
		t.Fatalf("no target accepts before a drag starts")
	}
	c.Start(Item[int]{ID: "a", Type: "task", Data: 7})
	if it, ok := c.Item(); !ok || it.Data != 7 {
		t.Fatalf("Item: got %+v ok=%v", it, ok)
	}

	id, ok := c.HitTest(Point{X: 5, Y: 1})
	if !ok || id != "row2" {
		t.Fatalf("HitTest: got %q ok=%v", id, ok)
	}
	if !c.Enter(id) || c.Over(id) != EffectMove || c.Over("row1") != EffectNone {
		t.Fatalf("expected row2 hovered with a move effect")
	}

	// A leave with the pointer still inside the bounds is ignored.
	if c.Leave("row2", Point{X: 39, Y: 1}) || c.Current() != "row2" {
		t.Fatalf("leave inside bounds must be ignored")
	}
	if !c.Leave("row2", Point{X: 40, Y: 1}) || c.Current() != "" {
		t.Fatalf("leave outside bounds must clear the target")
	}

	c.Enter("row3")
	ok, err := c.Drop("row3")
	if err != nil || !ok {
		t.Fatalf("Drop: ok=%v err=%v", ok, err)
	}
	if len(dropped) != 1 || dropped[0] != "a->row3" {
		t.Fatalf("dropped: %v", dropped)
	}
	if c.Dragging() || c.Current() != "" {
		t.Fatalf("expected the gesture over after drop")
	}
}

func TestCoordinator_RejectsOtherTypes(t *testing.T) {
	var dropped []string
	c := newList(t, &dropped)
	c.Start(Item[int]{ID: "f", Type: "file"})
	if c.Enter("row1") || c.Over("row1") != EffectNone {
		t.Fatalf("target must not accept a file")
	}
	if ok, _ := c.Drop("row1"); ok || len(dropped) != 0 {
		t.Fatalf("drop of a rejected type must not call OnDrop")
	}
	if c.Dragging() {
		t.Fatalf("drop always ends the gesture")
	}
}

func TestCoordinator_AbortAndUnregister(t *testing.T) {
	var dropped []string
	c := newList(t, &dropped)
	c.Start(Item[int]{ID: "a", Type: "task"})
	c.Enter("row1")
	c.Unregister("row1")
	if c.Current() != "" {
		t.Fatalf("unregistering the current target must clear it")
	}
	if _, ok := c.HitTest(Point{X: 1, Y: 0}); ok {
		t.Fatalf("unregistered target still hit")
	}
	c.Abort()
	if c.Dragging() || len(dropped) != 0 {
		t.Fatalf("abort must not drop")
	}
}

func TestCoordinator_TopmostWinsAndErrors(t *testing.T) {
	c := New[string]()
	boom := errors.New("boom")
	if err := c.Register(Target[string]{}); err == nil {
		t.Fatalf("expected error for target without id")
	}
	_ = c.Register(Target[string]{ID: "under", Bounds: Rect{W: 10, H: 10}, Accepts: []string{"x"}})
	_ = c.Register(Target[string]{ID: "over", Bounds: Rect{X: 2, Y: 2, W: 2, H: 2}, Accepts: []string{"x"},
		OnDrop: func(Item[string], Target[string]) error { return boom }})
	if id, _ := c.HitTest(Point{X: 3, Y: 3}); id != "over" {
		t.Fatalf("expected the later target on top; got %s", id)
	}
	// Re-registering moves a target to the top.
	_ = c.Register(Target[string]{ID: "under", Bounds: Rect{W: 10, H: 10}, Accepts: []string{"x"}})
	if id, _ := c.HitTest(Point{X: 3, Y: 3}); id != "under" {
		t.Fatalf("expected re-registered target on top; got %s", id)
	}

	c.Start(Item[string]{ID: "i", Type: "x"})
	if ok, err := c.Drop("over"); !ok || !errors.Is(err, boom) {
		t.Fatalf("expected OnDrop error; got ok=%v err=%v", ok, err)
	}
	if EffectMove.String() != "move" || EffectNone.String() != "none" {
		t.Fatalf("effect names")
	}
}
