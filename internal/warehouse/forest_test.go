package warehouse

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/reorder"

	"pgregory.net/rapid"
)

func wt(id, parent string, prio int) model.WarehouseTask {
	return model.WarehouseTask{ID: id, TaskText: strings.ToUpper(id), Priority: prio, ParentTaskID: model.StrPtr(parent)}
}

func mustForest(t testing.TB, tasks ...model.WarehouseTask) *Forest {
	t.Helper()
	f, err := NewForest(tasks)
	if err != nil {
		t.Fatalf("NewForest: %v", err)
	}
	return f
}

func idsOf(ts []model.WarehouseTask) string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return strings.Join(out, ",")
}

// shape renders every node as id<parent:priority:depth, sorted by id.
func shape(f *Forest) []string {
	var out []string
	for _, n := range f.All() {
		out = append(out, fmt.Sprintf("%s<%s:%d:%d", n.ID, n.ParentID(), n.Priority, n.Depth))
	}
	sort.Strings(out)
	return out
}

func TestNewForest_DepthAndOrder(t *testing.T) {
	f := mustForest(t,
		wt("b", "", 2),
		wt("a", "", 1),
		wt("a2", "a", 2),
		wt("a1", "a", 1),
		wt("a1x", "a1", 1),
	)
	if got := idsOf(f.TopLevel()); got != "a,b" {
		t.Fatalf("top level: got %s", got)
	}
	if got := idsOf(f.Children("a")); got != "a1,a2" {
		t.Fatalf("children of a: got %s", got)
	}
	n, _ := f.Get("a1x")
	if n.Depth != 2 {
		t.Fatalf("expected depth 2 for a1x; got %d", n.Depth)
	}
	if n.DisplayStatus != model.DisplayNormal {
		t.Fatalf("expected default display status; got %q", n.DisplayStatus)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNewForest_OrphansAndCycles(t *testing.T) {
	f := mustForest(t, wt("a", "", 1), wt("x", "ghost", 1))
	if got := f.Orphans(); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("expected x to be an orphan; got %v", got)
	}
	if got := idsOf(f.TopLevel()); got != "a,x" {
		t.Fatalf("expected orphan promoted to top level; got %s", got)
	}

	if _, err := NewForest([]model.WarehouseTask{wt("a", "b", 1), wt("b", "a", 1)}); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for cycle; got %v", err)
	}
	if _, err := NewForest([]model.WarehouseTask{wt("a", "", 1), wt("a", "", 2)}); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for duplicate id; got %v", err)
	}
	if _, err := NewForest([]model.WarehouseTask{wt(" ", "", 1)}); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for blank id; got %v", err)
	}
}

func TestFlattenFollowsExpansion(t *testing.T) {
	f := mustForest(t, wt("a", "", 1), wt("a1", "a", 1), wt("b", "", 2))
	rows := f.Flatten()
	if len(rows) != 2 || !rows[0].HasChildren || rows[0].Expanded {
		t.Fatalf("expected collapsed a with children; got %+v", rows)
	}
	if !f.Toggle("a") {
		t.Fatalf("expected toggle to expand a")
	}
	rows = f.Flatten()
	var got []string
	for _, r := range rows {
		got = append(got, fmt.Sprintf("%s@%d", r.Task.ID, r.Depth))
	}
	if strings.Join(got, " ") != "a@0 a1@1 b@0" {
		t.Fatalf("flatten: got %v", got)
	}
	f.CollapseAll()
	if len(f.ExpandedIDs()) != 0 {
		t.Fatalf("expected nothing expanded")
	}
	f.ExpandAll()
	if !reflect.DeepEqual(f.ExpandedIDs(), []string{"a"}) {
		t.Fatalf("expected only nodes with children expanded; got %v", f.ExpandedIDs())
	}
}

func TestAddAppendsAndChecksParent(t *testing.T) {
	f := mustForest(t, wt("a", "", 1), wt("b", "", 5))
	if err := f.Add(wt("c", "", 0)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	c, _ := f.Get("c")
	if c.Priority != 6 {
		t.Fatalf("expected c appended with priority 6; got %d", c.Priority)
	}
	if err := f.Add(wt("d", "ghost", 0)); !apperr.IsNotFound(err) {
		t.Fatalf("expected not found for missing parent; got %v", err)
	}
	if err := f.Add(wt("a", "", 0)); !apperr.IsValidation(err) {
		t.Fatalf("expected duplicate to be rejected; got %v", err)
	}
	if err := f.Add(wt("a1", "a", 0)); err != nil {
		t.Fatalf("Add child: %v", err)
	}
	if n, _ := f.Get("a1"); n.Depth != 1 || n.Priority != 1 {
		t.Fatalf("expected first child at depth 1 priority 1; got %+v", n)
	}
}

func TestReorder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		drop    int
		want    string
		noop    bool
		wantErr func(error) bool
	}{
		{name: "first to end", id: "a", drop: 3, want: "b,c,a"},
		{name: "first past neighbour", id: "a", drop: 2, want: "b,a,c"},
		{name: "last to front", id: "c", drop: 0, want: "c,a,b"},
		{name: "own gap before", id: "b", drop: 1, want: "a,b,c", noop: true},
		{name: "own gap after", id: "b", drop: 2, want: "a,b,c", noop: true},
		{name: "out of range", id: "a", drop: 4, want: "a,b,c", wantErr: apperr.IsValidation},
		{name: "negative", id: "a", drop: -1, want: "a,b,c", wantErr: apperr.IsValidation},
		{name: "unknown", id: "zz", drop: 0, want: "a,b,c", wantErr: apperr.IsNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// Sparse priorities: a reorder must still renumber to 1..k.
			f := mustForest(t, wt("a", "", 10), wt("b", "", 20), wt("c", "", 30))
			assigns, err := f.Reorder(tt.id, tt.drop)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("unexpected error: %v", err)
				}
			} else if err != nil {
				t.Fatalf("Reorder: %v", err)
			}
			if got := idsOf(f.TopLevel()); got != tt.want {
				t.Fatalf("order: got %s want %s", got, tt.want)
			}
			if tt.noop || tt.wantErr != nil {
				if assigns != nil {
					t.Fatalf("expected no assignments; got %+v", assigns)
				}
				return
			}
			if len(assigns) != 3 {
				t.Fatalf("expected the whole group renumbered; got %+v", assigns)
			}
			for i, a := range assigns {
				if a.Priority != i+1 || a.ParentChanged {
					t.Fatalf("assignment %d: %+v", i, a)
				}
			}
		})
	}
}

func TestReparent(t *testing.T) {
	f := mustForest(t,
		wt("a", "", 1), wt("b", "", 2),
		wt("a1", "a", 1), wt("a2", "a", 2),
		wt("a1x", "a1", 1),
	)

	assigns, err := f.Reparent("a1", "b", 0)
	if err != nil {
		t.Fatalf("Reparent: %v", err)
	}
	if got := idsOf(f.Children("a")); got != "a2" {
		t.Fatalf("old group: got %s", got)
	}
	if got := idsOf(f.Children("b")); got != "a1" {
		t.Fatalf("new group: got %s", got)
	}
	if n, _ := f.Get("a2"); n.Priority != 1 {
		t.Fatalf("expected old group renumbered; a2 priority %d", n.Priority)
	}
	if n, _ := f.Get("a1x"); n.Depth != 2 {
		t.Fatalf("expected descendant depth kept consistent; got %d", n.Depth)
	}
	var moved *Assignment
	for i := range assigns {
		if assigns[i].TaskID == "a1" {
			moved = &assigns[i]
		}
	}
	if moved == nil || !moved.ParentChanged || moved.ParentTaskID == nil || *moved.ParentTaskID != "b" {
		t.Fatalf("expected parent change for a1; got %+v", assigns)
	}

	// To top level.
	if _, err := f.Reparent("a1x", "", 1); err != nil {
		t.Fatalf("Reparent to top: %v", err)
	}
	if got := idsOf(f.TopLevel()); got != "a,a1x,b" {
		t.Fatalf("top level: got %s", got)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestReparent_Rejects(t *testing.T) {
	f := mustForest(t, wt("a", "", 1), wt("a1", "a", 1), wt("a1x", "a1", 1), wt("b", "", 2))
	before := shape(f)

	if _, err := f.Reparent("a", "a1x", 0); !apperr.IsValidation(err) {
		t.Fatalf("expected own-subtree move rejected; got %v", err)
	}
	if _, err := f.Reparent("a", "a", 0); !apperr.IsValidation(err) {
		t.Fatalf("expected self-parent rejected; got %v", err)
	}
	if _, err := f.Reparent("a", "ghost", 0); !apperr.IsNotFound(err) {
		t.Fatalf("expected missing parent rejected; got %v", err)
	}
	if _, err := f.Reparent("b", "a", 5); !apperr.IsValidation(err) {
		t.Fatalf("expected out-of-range drop rejected; got %v", err)
	}
	if got := shape(f); !reflect.DeepEqual(got, before) {
		t.Fatalf("rejected moves changed the forest:\n got: %v\nwant: %v", got, before)
	}
}

func TestDetachPromotesChildren(t *testing.T) {
	f := mustForest(t,
		wt("a", "", 1), wt("b", "", 2), wt("c", "", 3),
		wt("b1", "b", 1), wt("b2", "b", 2), wt("b1x", "b1", 1),
	)
	f.SetExpanded("b", true)
	n, ok := f.Detach("b")
	if !ok || n.ID != "b" {
		t.Fatalf("Detach: got %+v ok=%v", n, ok)
	}
	if got := idsOf(f.TopLevel()); got != "a,b1,b2,c" {
		t.Fatalf("expected children in b's place; got %s", got)
	}
	for i, n := range f.TopLevel() {
		if n.Priority != i+1 {
			t.Fatalf("expected contiguous priorities; %s has %d", n.ID, n.Priority)
		}
	}
	if x, _ := f.Get("b1x"); x.Depth != 1 {
		t.Fatalf("expected grandchild depth 1; got %d", x.Depth)
	}
	if f.IsExpanded("b") {
		t.Fatalf("expected expansion state dropped with the node")
	}
	if _, ok := f.Detach("b"); ok {
		t.Fatalf("expected second detach to fail")
	}
}

func TestRemoveSubtree(t *testing.T) {
	f := mustForest(t, wt("a", "", 1), wt("a1", "a", 1), wt("a1x", "a1", 1), wt("b", "", 2))
	removed := f.RemoveSubtree("a1")
	sort.Strings(removed)
	if !reflect.DeepEqual(removed, []string{"a1", "a1x"}) {
		t.Fatalf("removed: got %v", removed)
	}
	if f.Len() != 2 || f.Has("a1x") {
		t.Fatalf("expected a and b left; got %v", shape(f))
	}
	if f.RemoveSubtree("ghost") != nil {
		t.Fatalf("expected nothing removed for unknown id")
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	f := mustForest(t, wt("a", "", 1), wt("b", "", 2), wt("c", "", 3))
	before := shape(f)

	err := f.Apply([]Assignment{{TaskID: "a", Priority: 3}, {TaskID: "ghost", Priority: 1}})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found; got %v", err)
	}
	err = f.Apply([]Assignment{{TaskID: "a", Priority: 2}})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected duplicate sibling priority rejected; got %v", err)
	}
	err = f.Apply([]Assignment{{TaskID: "a", ParentChanged: true, ParentTaskID: model.StrPtr("ghost")}})
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected missing parent rejected; got %v", err)
	}
	err = f.Apply([]Assignment{
		{TaskID: "a", ParentChanged: true, ParentTaskID: model.StrPtr("b"), Priority: 1},
		{TaskID: "b", ParentChanged: true, ParentTaskID: model.StrPtr("a"), Priority: 1},
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected cycle rejected; got %v", err)
	}
	if got := shape(f); !reflect.DeepEqual(got, before) {
		t.Fatalf("failed Apply changed the forest:\n got: %v\nwant: %v", got, before)
	}

	if err := f.Apply([]Assignment{
		{TaskID: "c", Priority: 1},
		{TaskID: "a", Priority: 2},
		{TaskID: "b", Priority: 3},
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := idsOf(f.TopLevel()); got != "c,a,b" {
		t.Fatalf("order after apply: got %s", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := mustForest(t, wt("a", "", 1), wt("a1", "a", 1), wt("b", "", 2))
	c := f.Clone()
	if _, err := f.Reparent("a1", "b", 0); err != nil {
		t.Fatalf("Reparent: %v", err)
	}
	if got := idsOf(c.Children("a")); got != "a1" {
		t.Fatalf("clone followed the original: %s", got)
	}
}

func TestStats(t *testing.T) {
	a := wt("a", "", 1)
	a.PrimaryTag = "work"
	b := wt("b", "", 2)
	b.DisplayStatus = model.DisplayDimmed
	st := mustForest(t, a, b, wt("a1", "a", 1)).Stats()
	if st.TotalTasks != 3 || st.TasksByDepth[0] != 2 || st.TasksByDepth[1] != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if st.TasksByTag["work"] != 1 || st.TasksByStatus[model.DisplayDimmed] != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

// genForest builds an acyclic forest where node i hangs under an earlier
// node or at top level, with contiguous sibling priorities.
func genForest(t *rapid.T) *Forest {
	n := rapid.IntRange(1, 9).Draw(t, "n")
	next := map[string]int{}
	tasks := make([]model.WarehouseTask, 0, n)
	for i := 0; i < n; i++ {
		parent := ""
		if i > 0 && rapid.Bool().Draw(t, fmt.Sprintf("nested%d", i)) {
			parent = tasks[rapid.IntRange(0, i-1).Draw(t, fmt.Sprintf("parent%d", i))].ID
		}
		next[parent]++
		tasks = append(tasks, wt(fmt.Sprintf("n%d", i), parent, next[parent]))
	}
	f, err := NewForest(tasks)
	if err != nil {
		t.Fatalf("NewForest: %v", err)
	}
	return f
}

func contiguousGroups(t *rapid.T, f *Forest) {
	parents := map[string]bool{"": true}
	for _, n := range f.All() {
		parents[n.ID] = true
	}
	for p := range parents {
		sibs := f.Siblings(p)
		for i, s := range sibs {
			if s.Priority != i+1 {
				t.Fatalf("group %q not contiguous at %s: %d", p, s.ID, s.Priority)
			}
		}
	}
}

func TestMoveProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := genForest(t)
		all := f.All()
		size := f.Len()

		steps := rapid.IntRange(1, 6).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			id := all[rapid.IntRange(0, len(all)-1).Draw(t, "id")].ID
			parent := ""
			if rapid.Bool().Draw(t, "underNode") {
				parent = all[rapid.IntRange(0, len(all)-1).Draw(t, "parent")].ID
			}
			// Gaps of the target group; for a move within the group the node
			// itself is counted, as Reorder expects.
			drop := rapid.IntRange(0, len(f.Siblings(parent))).Draw(t, "drop")

			before := f.Clone()
			assigns, err := f.Reparent(id, parent, drop)
			if err != nil {
				if !apperr.IsValidation(err) {
					t.Fatalf("unexpected error kind: %v", err)
				}
				if !reflect.DeepEqual(shape(f), shape(before)) {
					t.Fatalf("rejected move changed the forest")
				}
				continue
			}
			if err := f.Validate(); err != nil {
				t.Fatalf("Validate after move: %v", err)
			}
			if f.Len() != size {
				t.Fatalf("node count changed: %d -> %d", size, f.Len())
			}
			contiguousGroups(t, f)

			// The assignments alone carry the move.
			if err := before.Apply(assigns); err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if !reflect.DeepEqual(shape(before), shape(f)) {
				t.Fatalf("Apply diverged:\n got: %v\nwant: %v", shape(before), shape(f))
			}
		}
	})
}

func TestDetachProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := genForest(t)
		all := f.All()
		id := all[rapid.IntRange(0, len(all)-1).Draw(t, "id")].ID
		n, _ := f.Get(id)
		kids := f.Children(id)

		if _, ok := f.Detach(id); !ok {
			t.Fatalf("Detach(%s) failed", id)
		}
		if err := f.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		contiguousGroups(t, f)
		for _, k := range kids {
			got, _ := f.Get(k.ID)
			if got.ParentID() != n.ParentID() {
				t.Fatalf("child %s not promoted: parent %q", k.ID, got.ParentID())
			}
		}
		sibs := f.Siblings(n.ParentID())
		if !reorder.Contiguous(sibs, func(w model.WarehouseTask) int { return w.Priority }) {
			t.Fatalf("siblings not contiguous after detach")
		}
	})
}
