package records

import (
	"testing"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
)

func rec(id, task string, seq int) model.TaskRecord {
	return model.TaskRecord{ID: id, TaskID: task, RecordSequence: seq, RecordType: model.RecordProgress}
}

func ids(recs []model.TaskRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestLog_OrdersWithinTask(t *testing.T) {
	l := NewLog()
	l.Replace([]model.TaskRecord{
		rec("b2", "b", 2),
		rec("a3", "a", 3),
		rec("b1", "b", 1),
		rec("a1", "a", 1),
	})
	l.Append(rec("a2", "a", 2))

	got := ids(l.All())
	want := []string{"b1", "a1", "b2", "a2", "a3"}
	if !sameIDs(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if n := len(l.ForTask("a")); n != 3 || l.Len() != 5 {
		t.Fatalf("ForTask(a)=%d Len=%d", n, l.Len())
	}
}

func TestLog_KeepsInterleaving(t *testing.T) {
	tests := []struct {
		name string
		in   []model.TaskRecord
		want []string
	}{
		{
			name: "server order",
			in:   []model.TaskRecord{rec("a1", "a", 1), rec("b1", "b", 1), rec("a2", "a", 2)},
			want: []string{"a1", "b1", "a2"},
		},
		{
			name: "out of sequence within a task",
			in:   []model.TaskRecord{rec("a2", "a", 2), rec("b1", "b", 1), rec("c1", "c", 1), rec("a1", "a", 1)},
			want: []string{"a1", "b1", "c1", "a2"},
		},
	}
	for _, tt := range tests {
		l := NewLog()
		l.Replace(tt.in)
		if got := ids(l.All()); !sameIDs(got, tt.want) {
			t.Fatalf("%s: got %v want %v", tt.name, got, tt.want)
		}
	}
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestLog_NeverDeduplicates(t *testing.T) {
	l := NewLog()
	l.Append(rec("x", "a", 1))
	l.Append(rec("x", "a", 1))
	if l.Len() != 2 {
		t.Fatalf("expected both records kept; got %d", l.Len())
	}
}

func TestLog_Focus(t *testing.T) {
	l := NewLog()
	if _, ok, err := l.Focus(); ok || err != nil {
		t.Fatalf("empty log has no focus; ok=%v err=%v", ok, err)
	}

	f := rec("a1", "a", 1)
	f.IsFocus = true
	l.Replace([]model.TaskRecord{f, rec("b1", "b", 1)})
	got, ok, err := l.Focus()
	if err != nil || !ok || got.ID != "a1" {
		t.Fatalf("Focus: got %+v ok=%v err=%v", got, ok, err)
	}

	g := rec("b2", "b", 2)
	g.IsFocus = true
	l.Append(g)
	if _, _, err := l.Focus(); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict for two focus records; got %v", err)
	}
}

func TestLog_FocusRecords(t *testing.T) {
	l := NewLog()
	l.Replace([]model.TaskRecord{rec("a1", "a", 1), rec("b1", "b", 1)})
	if got := l.FocusRecords(""); got != nil {
		t.Fatalf("no focus task means no records; got %v", got)
	}
	if got := ids(l.FocusRecords("b")); len(got) != 1 || got[0] != "b1" {
		t.Fatalf("FocusRecords(b): %v", got)
	}

	// The returned slice is a copy.
	all := l.All()
	all[0].ID = "mutated"
	if l.All()[0].ID != "a1" {
		t.Fatalf("All must return a copy")
	}
	l.Reset()
	if l.Len() != 0 {
		t.Fatalf("expected empty log after reset")
	}
}
