package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/minutes/internal/apperr"
	"go.uber.org/goleak"
)

// manualClock is an AfterFunc whose timers fire only when Advance is called.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance fires every live timer and returns how many fired.
func (c *manualClock) Advance() int {
	c.mu.Lock()
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

func (c *manualClock) last() *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []FilterState
	list  func(ctx context.Context, f FilterState) ([]RecordSummary, error)
}

func (e *fakeEngine) ListRecords(ctx context.Context, f FilterState) ([]RecordSummary, error) {
	e.mu.Lock()
	e.calls = append(e.calls, f)
	list := e.list
	e.mu.Unlock()
	if list != nil {
		return list(ctx, f)
	}
	return []RecordSummary{{ID: 1, Title: "Board meeting " + f.Title, Status: f.Status}}, nil
}

func (e *fakeEngine) GetRecord(ctx context.Context, id int64) (*RecordDetail, error) {
	return nil, fmt.Errorf("record %d not found", id)
}

func (e *fakeEngine) Calls() []FilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]FilterState(nil), e.calls...)
}

func (e *fakeEngine) setList(f func(ctx context.Context, f FilterState) ([]RecordSummary, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = f
}

func newTestController(t *testing.T, eng Engine, clock *manualClock) *Controller {
	t.Helper()
	c := NewController(ControllerOptions{Engine: eng, AfterFunc: clock.AfterFunc})
	t.Cleanup(c.Close)
	return c
}

// settle waits for every issued query to complete.
func (c *Controller) settle() {
	c.wg.Wait()
}

func waitUpdate(t *testing.T, c *Controller, pred func(ResultState) bool) ResultState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st, ok := <-c.Updates():
			if !ok {
				t.Fatal("updates channel closed")
			}
			if pred(st) {
				return st
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state; last = %+v", c.State())
		}
	}
}

func TestController_DebounceCoalescesTitleEdits(t *testing.T) {
	eng := &fakeEngine{}
	clock := &manualClock{}
	c := newTestController(t, eng, clock)

	for _, v := range []string{"b", "bu", "bud", "budget"} {
		if err := c.SetFilter(FieldTitle, v); err != nil {
			t.Fatalf("SetFilter: %v", err)
		}
	}
	if n := len(eng.Calls()); n != 0 {
		t.Fatalf("queries before debounce fired = %d, want 0", n)
	}
	if d := clock.last().d; d != DefaultDebounce {
		t.Errorf("debounce delay = %v, want %v", d, DefaultDebounce)
	}

	if fired := clock.Advance(); fired != 1 {
		t.Fatalf("live timers = %d, want exactly 1", fired)
	}
	c.settle()

	want := []FilterState{{Title: "budget"}}
	if diff := cmp.Diff(want, eng.Calls()); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
	st := c.State()
	if st.Loading {
		t.Error("Loading should be false after completion")
	}
	if st.Filter != want[0] {
		t.Errorf("state filter = %+v, want %+v", st.Filter, want[0])
	}
}

func TestController_ImmediateFieldsQueryWithoutTimer(t *testing.T) {
	eng := &fakeEngine{}
	clock := &manualClock{}
	c := newTestController(t, eng, clock)

	if err := c.SetFilter(FieldStatus, "pending"); err != nil {
		t.Fatal(err)
	}
	c.settle()
	if err := c.SetFilter(FieldDate, "2024-05-02"); err != nil {
		t.Fatal(err)
	}
	c.settle()

	want := []FilterState{
		{Status: StatusPending},
		{Status: StatusPending, Date: "2024-05-02"},
	}
	if diff := cmp.Diff(want, eng.Calls()); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
	if clock.last() != nil {
		t.Error("immediate fields should not schedule timers")
	}
}

func TestController_DebounceFireUsesFilterAtFireTime(t *testing.T) {
	eng := &fakeEngine{}
	clock := &manualClock{}
	c := newTestController(t, eng, clock)

	if err := c.SetFilter(FieldStatus, "done"); err != nil {
		t.Fatal(err)
	}
	c.settle()
	if err := c.SetFilter(FieldTitle, "budget"); err != nil {
		t.Fatal(err)
	}
	clock.Advance()
	c.settle()

	calls := eng.Calls()
	if len(calls) != 2 {
		t.Fatalf("queries = %d, want 2", len(calls))
	}
	want := FilterState{Status: StatusDone, Title: "budget"}
	if calls[1] != want {
		t.Errorf("debounced query = %+v, want %+v", calls[1], want)
	}
}

func TestController_RedundantDebounceFireIsNoop(t *testing.T) {
	eng := &fakeEngine{}
	clock := &manualClock{}
	c := newTestController(t, eng, clock)

	if err := c.SetFilter(FieldTitle, "budget"); err != nil {
		t.Fatal(err)
	}
	// The immediate status query already carries the pending title.
	if err := c.SetFilter(FieldStatus, "in_progress"); err != nil {
		t.Fatal(err)
	}
	c.settle()

	if fired := clock.Advance(); fired != 1 {
		t.Fatalf("status change must not cancel the title timer; live timers = %d", fired)
	}
	c.settle()

	want := []FilterState{{Status: StatusInProgress, Title: "budget"}}
	if diff := cmp.Diff(want, eng.Calls()); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
}

func TestController_LastIssuedWins(t *testing.T) {
	tests := []struct {
		name        string
		releaseDone bool // release the later query first
	}{
		{"later query answers first", true},
		{"earlier query answers first", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gates := map[Status]chan struct{}{
				StatusPending: make(chan struct{}),
				StatusDone:    make(chan struct{}),
			}
			eng := &fakeEngine{}
			eng.setList(func(ctx context.Context, f FilterState) ([]RecordSummary, error) {
				select {
				case <-gates[f.Status]:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				return []RecordSummary{{ID: 1, Title: string(f.Status)}}, nil
			})
			c := newTestController(t, eng, &manualClock{})

			if err := c.SetFilter(FieldStatus, "pending"); err != nil {
				t.Fatal(err)
			}
			if err := c.SetFilter(FieldStatus, "done"); err != nil {
				t.Fatal(err)
			}

			if tt.releaseDone {
				close(gates[StatusDone])
				waitUpdate(t, c, func(s ResultState) bool { return !s.Loading })
				close(gates[StatusPending])
			} else {
				close(gates[StatusPending])
				close(gates[StatusDone])
			}
			c.settle()

			st := c.State()
			if st.Loading {
				t.Error("Loading should be false")
			}
			if len(st.Records) != 1 || st.Records[0].Title != "done" {
				t.Errorf("records = %+v, want the result of the done query", st.Records)
			}
			if st.Filter.Status != StatusDone {
				t.Errorf("state filter = %+v, want status done", st.Filter)
			}
			if st.Seq != 2 {
				t.Errorf("Seq = %d, want 2", st.Seq)
			}
		})
	}
}

func TestController_ClearFiltersCancelsPendingTimer(t *testing.T) {
	eng := &fakeEngine{}
	clock := &manualClock{}
	c := newTestController(t, eng, clock)

	if err := c.SetFilter(FieldStatus, "pending"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFilter(FieldDate, "2024-01-31"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFilter(FieldTitle, "abc"); err != nil {
		t.Fatal(err)
	}
	stale := clock.last()

	c.ClearFilters()
	c.settle()

	if got := c.Filter(); got != (FilterState{}) {
		t.Errorf("Filter() = %+v, want empty", got)
	}
	if fired := clock.Advance(); fired != 0 {
		t.Errorf("ClearFilters left %d live timers", fired)
	}
	// A callback that raced with Stop must not issue anything.
	stale.f()
	c.settle()

	calls := eng.Calls()
	if len(calls) != 3 {
		t.Fatalf("queries = %d (%+v), want 3", len(calls), calls)
	}
	if !calls[2].IsZero() {
		t.Errorf("clear query = %+v, want unconstrained", calls[2])
	}
	if len(calls[2].Values()) != 0 {
		t.Errorf("clear query params = %v, want none", calls[2].Values())
	}
}

func TestController_ErrorKeepsLastGoodRecords(t *testing.T) {
	eng := &fakeEngine{}
	c := newTestController(t, eng, &manualClock{})

	c.Refresh()
	c.settle()
	good := c.State().Records
	if len(good) == 0 {
		t.Fatal("expected records from first query")
	}

	eng.setList(func(ctx context.Context, f FilterState) ([]RecordSummary, error) {
		return nil, fmt.Errorf("list records: %w", apperr.ErrConnectivity)
	})
	if err := c.SetFilter(FieldStatus, "done"); err != nil {
		t.Fatal(err)
	}
	c.settle()

	st := c.State()
	if !errors.Is(st.Err, apperr.ErrConnectivity) {
		t.Errorf("Err = %v, want connectivity", st.Err)
	}
	if st.Loading {
		t.Error("Loading should be cleared on error")
	}
	if diff := cmp.Diff(good, st.Records); diff != "" {
		t.Errorf("records should be kept on error (-want +got):\n%s", diff)
	}

	eng.setList(nil)
	c.Refresh()
	c.settle()
	if err := c.State().Err; err != nil {
		t.Errorf("Err after successful query = %v, want nil", err)
	}
}

func TestController_RejectsInvalidFilterValues(t *testing.T) {
	eng := &fakeEngine{}
	c := newTestController(t, eng, &manualClock{})

	if err := c.SetFilter(FieldStatus, "archived"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad status err = %v, want ErrValidation", err)
	}
	if err := c.SetFilter(FieldDate, "2024-13-01"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad date err = %v, want ErrValidation", err)
	}
	if got := c.Filter(); got != (FilterState{}) {
		t.Errorf("Filter() = %+v, want unchanged", got)
	}
	if n := len(eng.Calls()); n != 0 {
		t.Errorf("queries = %d, want 0", n)
	}
}

func TestController_CloseLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	block := make(chan struct{})
	eng := &fakeEngine{}
	c := NewController(ControllerOptions{Engine: eng, Debounce: 5 * time.Millisecond})

	if err := c.SetFilter(FieldTitle, "a"); err != nil {
		t.Fatal(err)
	}
	waitUpdate(t, c, func(s ResultState) bool { return !s.Loading && s.Seq == 1 })

	// One query stuck in flight and one pending timer at close time.
	eng.setList(func(ctx context.Context, f FilterState) ([]RecordSummary, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})
	c.Refresh()
	if err := c.SetFilter(FieldTitle, "ab"); err != nil {
		t.Fatal(err)
	}

	c.Close()
	c.Close()
	close(block)

	if err := c.SetFilter(FieldTitle, "abc"); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("SetFilter after Close = %v, want ErrControllerClosed", err)
	}
	for range c.Updates() {
		// drain until closed
	}
}
