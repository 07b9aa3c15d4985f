// Package warehouse holds the backlog forest and the store that reconciles it
// with the remote authority.
package warehouse

import (
	"fmt"
	"sort"
	"strings"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/reorder"
)

// Forest is the in-memory warehouse: a flat node set linked by ParentTaskID.
//
// Invariants held after every mutation:
//   - every ParentTaskID refers to a node in the forest
//   - Depth == parent.Depth+1, or 0 for top-level nodes
//   - sibling order is (Priority, ID) ascending
type Forest struct {
	nodes    map[string]*model.WarehouseTask
	expanded map[string]bool
	orphans  []string
}

// Assignment is one priority/parent update produced by a reorder.
type Assignment struct {
	TaskID        string
	Priority      int
	ParentTaskID  *string
	ParentChanged bool
}

// Row is one visible line of the flattened forest.
type Row struct {
	Task        model.WarehouseTask `json:"task" yaml:"task"`
	Depth       int                 `json:"depth" yaml:"depth"`
	HasChildren bool                `json:"hasChildren" yaml:"hasChildren"`
	Expanded    bool                `json:"expanded" yaml:"expanded"`
}

func NewForest(tasks []model.WarehouseTask) (*Forest, error) {
	f := &Forest{
		nodes:    map[string]*model.WarehouseTask{},
		expanded: map[string]bool{},
	}
	for i := range tasks {
		t := tasks[i]
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, apperr.Validation("warehouse task without id")
		}
		if _, dup := f.nodes[t.ID]; dup {
			return nil, apperr.Validation("duplicate warehouse task %s", t.ID)
		}
		if t.ParentTaskID != nil && strings.TrimSpace(*t.ParentTaskID) == "" {
			t.ParentTaskID = nil
		}
		if t.DisplayStatus == "" {
			t.DisplayStatus = model.DisplayNormal
		}
		f.nodes[t.ID] = &t
		if t.IsExpanded {
			f.expanded[t.ID] = true
		}
	}

	// Dangling parents become top-level orphans rather than disappearing.
	ids := f.sortedIDs()
	for _, id := range ids {
		n := f.nodes[id]
		if n.ParentTaskID == nil {
			continue
		}
		if _, ok := f.nodes[*n.ParentTaskID]; !ok {
			n.ParentTaskID = nil
			f.orphans = append(f.orphans, id)
		}
	}
	for _, id := range ids {
		if f.hasCycle(id) {
			return nil, apperr.Validation("warehouse task %s is its own ancestor", id)
		}
	}
	for _, id := range ids {
		if f.nodes[id].ParentTaskID == nil {
			f.recomputeDepth(id, 0)
		}
	}
	return f, nil
}

func (f *Forest) sortedIDs() []string {
	ids := make([]string, 0, len(f.nodes))
	for id := range f.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *Forest) hasCycle(id string) bool {
	seen := map[string]bool{}
	cur := f.nodes[id]
	for cur != nil && cur.ParentTaskID != nil {
		if seen[cur.ID] {
			return true
		}
		seen[cur.ID] = true
		cur = f.nodes[*cur.ParentTaskID]
	}
	return false
}

// Orphans lists ids whose parent was missing at load and were promoted to top level.
func (f *Forest) Orphans() []string {
	return append([]string(nil), f.orphans...)
}

func (f *Forest) Len() int { return len(f.nodes) }

func (f *Forest) Get(id string) (model.WarehouseTask, bool) {
	n, ok := f.nodes[strings.TrimSpace(id)]
	if !ok {
		return model.WarehouseTask{}, false
	}
	return *n, true
}

func (f *Forest) Has(id string) bool {
	_, ok := f.nodes[strings.TrimSpace(id)]
	return ok
}

func less(a, b *model.WarehouseTask) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

func (f *Forest) siblingPtrs(parentID string) []*model.WarehouseTask {
	var out []*model.WarehouseTask
	for _, n := range f.nodes {
		if n.ParentID() == parentID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func copyOut(ptrs []*model.WarehouseTask) []model.WarehouseTask {
	out := make([]model.WarehouseTask, 0, len(ptrs))
	for _, p := range ptrs {
		out = append(out, *p)
	}
	return out
}

// TopLevel returns root nodes sorted by ascending priority.
func (f *Forest) TopLevel() []model.WarehouseTask {
	return copyOut(f.siblingPtrs(""))
}

// Children returns the children of id sorted by ascending priority.
func (f *Forest) Children(id string) []model.WarehouseTask {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return copyOut(f.siblingPtrs(id))
}

// Siblings returns the sibling group under parentID ("" for top level).
func (f *Forest) Siblings(parentID string) []model.WarehouseTask {
	return copyOut(f.siblingPtrs(strings.TrimSpace(parentID)))
}

func (f *Forest) hasChildren(id string) bool {
	for _, n := range f.nodes {
		if n.ParentID() == id {
			return true
		}
	}
	return false
}

// All returns every node in depth-first order, ignoring collapse state.
func (f *Forest) All() []model.WarehouseTask {
	out := make([]model.WarehouseTask, 0, len(f.nodes))
	var walk func(parentID string)
	walk = func(parentID string) {
		for _, n := range f.siblingPtrs(parentID) {
			out = append(out, *n)
			walk(n.ID)
		}
	}
	walk("")
	return out
}

// Flatten returns the visible rows depth-first; children of collapsed nodes are skipped.
func (f *Forest) Flatten() []Row {
	var out []Row
	var walk func(parentID string)
	walk = func(parentID string) {
		for _, n := range f.siblingPtrs(parentID) {
			kids := f.hasChildren(n.ID)
			out = append(out, Row{
				Task:        *n,
				Depth:       n.Depth,
				HasChildren: kids,
				Expanded:    f.expanded[n.ID],
			})
			if kids && f.expanded[n.ID] {
				walk(n.ID)
			}
		}
	}
	walk("")
	return out
}

func (f *Forest) IsExpanded(id string) bool { return f.expanded[id] }

func (f *Forest) Toggle(id string) bool {
	if !f.Has(id) {
		return false
	}
	if f.expanded[id] {
		delete(f.expanded, id)
		return false
	}
	f.expanded[id] = true
	return true
}

func (f *Forest) SetExpanded(id string, expanded bool) {
	if !f.Has(id) {
		return
	}
	if expanded {
		f.expanded[id] = true
		return
	}
	delete(f.expanded, id)
}

// ExpandAll expands every node that has children.
func (f *Forest) ExpandAll() {
	for _, n := range f.nodes {
		if n.ParentTaskID != nil {
			f.expanded[*n.ParentTaskID] = true
		}
	}
}

func (f *Forest) CollapseAll() {
	f.expanded = map[string]bool{}
}

// ExpandedIDs returns the expanded node ids sorted.
func (f *Forest) ExpandedIDs() []string {
	out := make([]string, 0, len(f.expanded))
	for id := range f.expanded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (f *Forest) recomputeDepth(id string, depth int) {
	n := f.nodes[id]
	if n == nil {
		return
	}
	n.Depth = depth
	for _, ch := range f.siblingPtrs(id) {
		f.recomputeDepth(ch.ID, depth+1)
	}
}

func (f *Forest) isDescendant(id, ancestorID string) bool {
	cur := f.nodes[id]
	for cur != nil && cur.ParentTaskID != nil {
		if *cur.ParentTaskID == ancestorID {
			return true
		}
		cur = f.nodes[*cur.ParentTaskID]
	}
	return false
}

// Add inserts a node. Priority 0 appends it after its last sibling.
func (f *Forest) Add(t model.WarehouseTask) error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return apperr.Validation("warehouse task without id")
	}
	if f.Has(t.ID) {
		return apperr.Validation("duplicate warehouse task %s", t.ID)
	}
	depth := 0
	if pid := t.ParentID(); pid != "" {
		p, ok := f.nodes[pid]
		if !ok {
			return apperr.NotFound("warehouse task", pid)
		}
		depth = p.Depth + 1
	} else {
		t.ParentTaskID = nil
	}
	if t.Priority == 0 {
		sibs := f.siblingPtrs(t.ParentID())
		t.Priority = 1
		if len(sibs) > 0 {
			t.Priority = sibs[len(sibs)-1].Priority + 1
		}
	}
	if t.DisplayStatus == "" {
		t.DisplayStatus = model.DisplayNormal
	}
	t.Depth = depth
	f.nodes[t.ID] = &t
	return nil
}

// Replace overwrites the content fields of an existing node. Structure
// (parent, depth) stays under forest control.
func (f *Forest) Replace(t model.WarehouseTask) error {
	n, ok := f.nodes[strings.TrimSpace(t.ID)]
	if !ok {
		return apperr.NotFound("warehouse task", t.ID)
	}
	n.TaskText = t.TaskText
	n.Tags = t.Tags
	n.DisplayStatus = t.DisplayStatus
	n.UpdatedAt = t.UpdatedAt
	if t.Priority != 0 {
		n.Priority = t.Priority
	}
	return nil
}

// RemoveSubtree deletes id and all of its descendants. It returns the removed ids.
func (f *Forest) RemoveSubtree(id string) []string {
	id = strings.TrimSpace(id)
	if !f.Has(id) {
		return nil
	}
	var removed []string
	var walk func(id string)
	walk = func(id string) {
		removed = append(removed, id)
		for _, ch := range f.siblingPtrs(id) {
			walk(ch.ID)
		}
	}
	walk(id)
	for _, rid := range removed {
		delete(f.nodes, rid)
		delete(f.expanded, rid)
	}
	return removed
}

// Detach removes a single node and promotes its children into its place
// among its former siblings. Used for extraction, where only the node itself
// leaves the backlog.
func (f *Forest) Detach(id string) (model.WarehouseTask, bool) {
	id = strings.TrimSpace(id)
	n, ok := f.nodes[id]
	if !ok {
		return model.WarehouseTask{}, false
	}
	parentID := n.ParentID()
	sibs := f.siblingPtrs(parentID)
	kids := f.siblingPtrs(id)

	merged := make([]*model.WarehouseTask, 0, len(sibs)+len(kids))
	for _, s := range sibs {
		if s.ID == id {
			merged = append(merged, kids...)
			continue
		}
		merged = append(merged, s)
	}
	for _, k := range kids {
		k.ParentTaskID = model.StrPtr(parentID)
	}
	delete(f.nodes, id)
	delete(f.expanded, id)
	reorder.Renumber(merged, func(p **model.WarehouseTask, prio int) { (*p).Priority = prio })
	for _, k := range kids {
		f.recomputeDepth(k.ID, n.Depth)
	}
	return *n, true
}

func indexOf(sibs []*model.WarehouseTask, id string) int {
	for i, s := range sibs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func assignmentsFor(sibs []*model.WarehouseTask, movedID string, parentChanged bool) []Assignment {
	out := make([]Assignment, 0, len(sibs))
	for _, s := range sibs {
		a := Assignment{TaskID: s.ID, Priority: s.Priority}
		if s.ID == movedID && parentChanged {
			a.ParentChanged = true
			if s.ParentTaskID != nil {
				pid := *s.ParentTaskID
				a.ParentTaskID = &pid
			}
		}
		out = append(out, a)
	}
	return out
}

// Reorder moves movedID within its sibling group to dropIndex and renumbers
// the whole group to 1..k. A drop onto the node's own position changes nothing
// and returns no assignments.
func (f *Forest) Reorder(movedID string, dropIndex int) ([]Assignment, error) {
	movedID = strings.TrimSpace(movedID)
	n, ok := f.nodes[movedID]
	if !ok {
		return nil, apperr.NotFound("warehouse task", movedID)
	}
	sibs := f.siblingPtrs(n.ParentID())
	from := indexOf(sibs, movedID)
	if dropIndex < 0 || dropIndex > len(sibs) {
		return nil, apperr.Validation("drop index %d out of range [0,%d]", dropIndex, len(sibs))
	}
	if reorder.IsNoop(from, dropIndex) {
		return nil, nil
	}
	moved, err := reorder.Move(sibs, from, dropIndex)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	reorder.Renumber(moved, func(p **model.WarehouseTask, prio int) { (*p).Priority = prio })
	return assignmentsFor(moved, movedID, false), nil
}

// Reparent moves movedID under newParentID ("" for top level) at dropIndex of
// the new sibling group. Depth is recomputed for the node and every descendant;
// the old and new sibling groups are both renumbered.
func (f *Forest) Reparent(movedID, newParentID string, dropIndex int) ([]Assignment, error) {
	movedID = strings.TrimSpace(movedID)
	newParentID = strings.TrimSpace(newParentID)
	n, ok := f.nodes[movedID]
	if !ok {
		return nil, apperr.NotFound("warehouse task", movedID)
	}
	if n.ParentID() == newParentID {
		return f.Reorder(movedID, dropIndex)
	}
	depth := 0
	if newParentID != "" {
		p, ok := f.nodes[newParentID]
		if !ok {
			return nil, apperr.NotFound("warehouse task", newParentID)
		}
		if newParentID == movedID || f.isDescendant(newParentID, movedID) {
			return nil, apperr.Validation("cannot move %s into its own subtree", movedID)
		}
		depth = p.Depth + 1
	}
	target := f.siblingPtrs(newParentID)
	if dropIndex < 0 || dropIndex > len(target) {
		return nil, apperr.Validation("drop index %d out of range [0,%d]", dropIndex, len(target))
	}

	oldParentID := n.ParentID()
	n.ParentTaskID = model.StrPtr(newParentID)

	oldSibs := f.siblingPtrs(oldParentID)
	reorder.Renumber(oldSibs, func(p **model.WarehouseTask, prio int) { (*p).Priority = prio })

	newSibs := reorder.Insert(target, dropIndex, n)
	reorder.Renumber(newSibs, func(p **model.WarehouseTask, prio int) { (*p).Priority = prio })
	f.recomputeDepth(movedID, depth)

	out := assignmentsFor(oldSibs, movedID, false)
	out = append(out, assignmentsFor(newSibs, movedID, true)...)
	return out, nil
}

// Apply sets the priority, and the parent where ParentChanged is set, of every
// listed node at once. Either every assignment lands or none does: unknown
// ids, missing parents, cycles and duplicate sibling priorities are rejected.
func (f *Forest) Apply(assigns []Assignment) error {
	byID := make(map[string]Assignment, len(assigns))
	for _, a := range assigns {
		if !f.Has(a.TaskID) {
			return apperr.NotFound("warehouse task", a.TaskID)
		}
		byID[a.TaskID] = a
	}
	next := make([]model.WarehouseTask, 0, len(f.nodes))
	for _, id := range f.sortedIDs() {
		n := *f.nodes[id]
		if a, ok := byID[id]; ok {
			n.Priority = a.Priority
			if a.ParentChanged {
				n.ParentTaskID = nil
				if a.ParentTaskID != nil && *a.ParentTaskID != "" {
					if !f.Has(*a.ParentTaskID) {
						return apperr.NotFound("warehouse task", *a.ParentTaskID)
					}
					pid := *a.ParentTaskID
					n.ParentTaskID = &pid
				}
			}
		}
		next = append(next, n)
	}
	nf, err := NewForest(next)
	if err != nil {
		return err
	}
	if err := nf.Validate(); err != nil {
		return apperr.Validation("%v", err)
	}
	f.nodes = nf.nodes
	return nil
}

// Validate checks the depth invariant and that sibling priorities form a
// strict total order.
func (f *Forest) Validate() error {
	for _, id := range f.sortedIDs() {
		n := f.nodes[id]
		want := 0
		if pid := n.ParentID(); pid != "" {
			p, ok := f.nodes[pid]
			if !ok {
				return fmt.Errorf("node %s: parent %s missing", id, pid)
			}
			want = p.Depth + 1
		}
		if n.Depth != want {
			return fmt.Errorf("node %s: depth %d, want %d", id, n.Depth, want)
		}
	}
	groups := map[string]map[int]string{}
	for _, id := range f.sortedIDs() {
		n := f.nodes[id]
		g := groups[n.ParentID()]
		if g == nil {
			g = map[int]string{}
			groups[n.ParentID()] = g
		}
		if other, dup := g[n.Priority]; dup {
			return fmt.Errorf("nodes %s and %s share priority %d", other, id, n.Priority)
		}
		g[n.Priority] = id
	}
	return nil
}

// Clone returns a deep copy used as a rollback snapshot.
func (f *Forest) Clone() *Forest {
	c := &Forest{
		nodes:    make(map[string]*model.WarehouseTask, len(f.nodes)),
		expanded: make(map[string]bool, len(f.expanded)),
		orphans:  append([]string(nil), f.orphans...),
	}
	for id, n := range f.nodes {
		cp := *n
		if n.ParentTaskID != nil {
			pid := *n.ParentTaskID
			cp.ParentTaskID = &pid
		}
		c.nodes[id] = &cp
	}
	for id, v := range f.expanded {
		c.expanded[id] = v
	}
	return c
}

// Stats summarizes the forest by display status and depth.
type Stats struct {
	TotalTasks    int                         `json:"totalTasks" yaml:"totalTasks"`
	TasksByStatus map[model.DisplayStatus]int `json:"tasksByStatus" yaml:"tasksByStatus"`
	TasksByDepth  map[int]int                 `json:"tasksByDepth" yaml:"tasksByDepth"`
	TasksByTag    map[string]int              `json:"tasksByTag" yaml:"tasksByTag"`
}

func (f *Forest) Stats() Stats {
	st := Stats{
		TotalTasks:    len(f.nodes),
		TasksByStatus: map[model.DisplayStatus]int{},
		TasksByDepth:  map[int]int{},
		TasksByTag:    map[string]int{},
	}
	for _, n := range f.nodes {
		st.TasksByStatus[n.DisplayStatus]++
		st.TasksByDepth[n.Depth]++
		if n.PrimaryTag != "" {
			st.TasksByTag[n.PrimaryTag]++
		}
	}
	return st
}
