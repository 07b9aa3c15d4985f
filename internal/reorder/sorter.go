package reorder

// Sorter tracks one drag-sort gesture over a flat list: the index picked up
// and the index currently hovered. The final order is left to the caller.
type Sorter struct {
	dragged int
	over    int
	active  bool
}

func (s *Sorter) Start(index int) {
	s.dragged = index
	s.over = -1
	s.active = true
}

// Over records the index currently hovered; it places the drop indicator.
func (s *Sorter) Over(index int) {
	if !s.active {
		return
	}
	s.over = index
}

// Dragging returns the dragged index, or -1 when no gesture is active.
func (s *Sorter) Dragging() int {
	if !s.active {
		return -1
	}
	return s.dragged
}

// Hovered returns the hovered index, or -1.
func (s *Sorter) Hovered() int {
	if !s.active {
		return -1
	}
	return s.over
}

// Target returns the hovered index when it differs from the dragged one.
func (s *Sorter) Target() (int, bool) {
	if !s.active || s.over < 0 || s.over == s.dragged {
		return -1, false
	}
	return s.over, true
}

func (s *Sorter) End() {
	s.active = false
	s.dragged = -1
	s.over = -1
}
