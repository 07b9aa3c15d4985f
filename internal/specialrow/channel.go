// Package specialrow keeps the flow, interrupt and error rows that run beside
// the edit row.
package specialrow

import (
	"context"
	"strings"
	"sync"
	"time"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote"
)

// Channel holds at most one row per (type, task). Rows that turn invisible
// have their timer stopped.
type Channel struct {
	now func() time.Time

	mu       sync.Mutex
	rows     []model.SpecialEditRow
	inFlight map[string]bool
}

func NewChannel(now func() time.Time) *Channel {
	if now == nil {
		now = time.Now
	}
	return &Channel{now: now, inFlight: map[string]bool{}}
}

func stopTimer(r *model.SpecialEditRow) {
	r.TimerRunning = false
}

func (c *Channel) indexLocked(typ model.SpecialRowType, taskID string) int {
	for i, r := range c.rows {
		if r.Type == typ && r.TaskID == taskID {
			return i
		}
	}
	return -1
}

func (c *Channel) indexByIDLocked(id string) int {
	for i, r := range c.rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Upsert inserts row or supersedes the existing row of the same type for the
// same task.
func (c *Channel) Upsert(row model.SpecialEditRow) error {
	row.ID = strings.TrimSpace(row.ID)
	if row.ID == "" {
		return apperr.Validation("special row without id")
	}
	switch row.Type {
	case model.SpecialFlow, model.SpecialInterrupt, model.SpecialError:
	default:
		return apperr.Validation("unknown special row type %q", row.Type)
	}
	if !row.IsVisible {
		stopTimer(&row)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(row.Type, row.TaskID); i >= 0 {
		c.rows[i] = row
		return nil
	}
	// An id reused under another type or task replaces that entry too.
	if i := c.indexByIDLocked(row.ID); i >= 0 {
		c.rows = append(c.rows[:i], c.rows[i+1:]...)
	}
	c.rows = append(c.rows, row)
	return nil
}

// Replace reconciles from the authority's list. Only visible rows are kept;
// a later row of the same (type, task) wins.
func (c *Channel) Replace(rows []model.SpecialEditRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := map[string]model.SpecialEditRow{}
	for _, r := range c.rows {
		prev[r.ID] = r
	}
	c.rows = nil
	for _, r := range rows {
		if !r.IsVisible {
			continue
		}
		// Keep a locally pending confirmation if the server has not moved on.
		if old, ok := prev[r.ID]; ok && old.IsSecondState && !r.IsSecondState {
			r.IsSecondState = true
			if r.TimerStartTime == nil {
				r.TimerStartTime = old.TimerStartTime
				r.TimerRunning = old.TimerRunning
			}
		}
		if i := c.indexLocked(r.Type, r.TaskID); i >= 0 {
			c.rows[i] = r
			continue
		}
		c.rows = append(c.rows, r)
	}
}

func (c *Channel) Visible() []model.SpecialEditRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.SpecialEditRow, 0, len(c.rows))
	for _, r := range c.rows {
		if r.IsVisible {
			out = append(out, r)
		}
	}
	return out
}

func (c *Channel) HasVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rows {
		if r.IsVisible {
			return true
		}
	}
	return false
}

// ByType returns the first visible row of typ.
func (c *Channel) ByType(typ model.SpecialRowType) (model.SpecialEditRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rows {
		if r.Type == typ && r.IsVisible {
			return r, true
		}
	}
	return model.SpecialEditRow{}, false
}

func (c *Channel) Get(id string) (model.SpecialEditRow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexByIDLocked(id); i >= 0 {
		return c.rows[i], true
	}
	return model.SpecialEditRow{}, false
}

func (c *Channel) Hide(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexByIDLocked(id)
	if i < 0 {
		return false
	}
	c.rows[i].IsVisible = false
	stopTimer(&c.rows[i])
	return true
}

// Elapsed reports how long the row's timer has been running.
func (c *Channel) Elapsed(id string, now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexByIDLocked(id)
	if i < 0 {
		return 0, false
	}
	r := c.rows[i]
	if !r.TimerRunning || r.TimerStartTime == nil {
		return 0, false
	}
	d := now.Sub(*r.TimerStartTime)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Cancel withdraws a pending confirmation.
func (c *Channel) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexByIDLocked(id)
	if i < 0 || !c.rows[i].IsSecondState {
		return false
	}
	c.rows[i].IsSecondState = false
	c.rows[i].TimerStartTime = nil
	stopTimer(&c.rows[i])
	return true
}

func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = nil
	c.inFlight = map[string]bool{}
}

// Outcome reports what an Invoke did.
type Outcome struct {
	Committed bool
	Row       model.SpecialEditRow
	Record    *model.TaskRecord
}

func twoPhase(t model.SpecialRowType) bool {
	return t == model.SpecialInterrupt || t == model.SpecialError
}

// Invoke operates a row. Interrupt and error rows need two invocations: the
// first marks the row pending and starts its timer locally, the second
// commits. Flow rows commit at once. A committed row is hidden; the caller
// reconciles afterwards.
func (c *Channel) Invoke(ctx context.Context, svc remote.TaskService, id string) (Outcome, error) {
	c.mu.Lock()
	i := c.indexByIDLocked(id)
	if i < 0 || !c.rows[i].IsVisible {
		c.mu.Unlock()
		return Outcome{}, apperr.NotFound("special row", id)
	}
	if c.inFlight[id] {
		c.mu.Unlock()
		return Outcome{}, apperr.ErrBusy
	}
	row := c.rows[i]
	if twoPhase(row.Type) && !row.IsSecondState {
		now := c.now()
		c.rows[i].IsSecondState = true
		c.rows[i].TimerStartTime = &now
		c.rows[i].TimerRunning = true
		row = c.rows[i]
		c.mu.Unlock()
		return Outcome{Row: row}, nil
	}
	c.inFlight[id] = true
	at := c.now()
	c.mu.Unlock()

	res, err := svc.SubmitSpecialRowOperation(ctx, id, row.Type, at)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
	if err != nil {
		return Outcome{Row: row}, apperr.From(err)
	}
	if i := c.indexByIDLocked(id); i >= 0 {
		c.rows[i].IsVisible = false
		c.rows[i].IsSecondState = false
		stopTimer(&c.rows[i])
		row = c.rows[i]
	}
	return Outcome{Committed: true, Row: row, Record: res.Record}, nil
}
