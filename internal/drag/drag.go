// Package drag coordinates one pointer-drag gesture across registered drop
// targets. It has no knowledge of what is being dragged.
package drag

import "fmt"

type Point struct {
	X, Y int
}

// Rect is a cell rectangle; W and H are exclusive extents.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

type Item[T any] struct {
	ID   string
	Type string
	Data T
}

type Target[T any] struct {
	ID      string
	Bounds  Rect
	Accepts []string
	OnDrop  func(item Item[T], target Target[T]) error
}

func (t Target[T]) accepts(typ string) bool {
	for _, a := range t.Accepts {
		if a == typ {
			return true
		}
	}
	return false
}

type Effect int

const (
	EffectNone Effect = iota
	EffectMove
)

func (e Effect) String() string {
	if e == EffectMove {
		return "move"
	}
	return "none"
}

// Coordinator is driven synchronously from the UI loop and is not safe for
// concurrent use.
type Coordinator[T any] struct {
	item    *Item[T]
	targets map[string]Target[T]
	order   []string
	current string
}

func New[T any]() *Coordinator[T] {
	return &Coordinator[T]{targets: map[string]Target[T]{}}
}

func (c *Coordinator[T]) Start(item Item[T]) {
	it := item
	c.item = &it
	c.current = ""
}

func (c *Coordinator[T]) Dragging() bool { return c.item != nil }

func (c *Coordinator[T]) Item() (Item[T], bool) {
	if c.item == nil {
		return Item[T]{}, false
	}
	return *c.item, true
}

// Current is the target the pointer is over, or "".
func (c *Coordinator[T]) Current() string { return c.current }

// Register adds or replaces a target. Later registrations sit on top for
// hit testing.
func (c *Coordinator[T]) Register(t Target[T]) error {
	if t.ID == "" {
		return fmt.Errorf("drop target without id")
	}
	if _, ok := c.targets[t.ID]; ok {
		c.removeOrder(t.ID)
	}
	c.targets[t.ID] = t
	c.order = append(c.order, t.ID)
	return nil
}

func (c *Coordinator[T]) Unregister(id string) {
	if _, ok := c.targets[id]; !ok {
		return
	}
	delete(c.targets, id)
	c.removeOrder(id)
	if c.current == id {
		c.current = ""
	}
}

func (c *Coordinator[T]) removeOrder(id string) {
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Coordinator[T]) canAccept(id string) bool {
	t, ok := c.targets[id]
	return ok && c.item != nil && t.accepts(c.item.Type)
}

// Enter makes id the current target if it accepts the dragged item.
func (c *Coordinator[T]) Enter(id string) bool {
	if !c.canAccept(id) {
		return false
	}
	c.current = id
	return true
}

// Over reports the drop effect for the pointer hovering id.
func (c *Coordinator[T]) Over(id string) Effect {
	if c.current != "" && c.current == id && c.canAccept(id) {
		return EffectMove
	}
	return EffectNone
}

// Leave clears the current target only when p is really outside its bounds;
// leave events fired while crossing a child region are ignored.
func (c *Coordinator[T]) Leave(id string, p Point) bool {
	t, ok := c.targets[id]
	if !ok || c.current != id {
		return false
	}
	if t.Bounds.Contains(p) {
		return false
	}
	c.current = ""
	return true
}

// Drop ends the gesture. The target's OnDrop runs only if it accepts the
// item type.
func (c *Coordinator[T]) Drop(id string) (bool, error) {
	defer c.end()
	if !c.canAccept(id) {
		return false, nil
	}
	t := c.targets[id]
	if t.OnDrop == nil {
		return false, nil
	}
	if err := t.OnDrop(*c.item, t); err != nil {
		return true, err
	}
	return true, nil
}

// HitTest returns the topmost target containing p.
func (c *Coordinator[T]) HitTest(p Point) (string, bool) {
	for i := len(c.order) - 1; i >= 0; i-- {
		id := c.order[i]
		if c.targets[id].Bounds.Contains(p) {
			return id, true
		}
	}
	return "", false
}

// Abort cancels the gesture without calling any OnDrop.
func (c *Coordinator[T]) Abort() { c.end() }

func (c *Coordinator[T]) end() {
	c.item = nil
	c.current = ""
}
