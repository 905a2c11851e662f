package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is the delay between the last title edit and the query it
// triggers.
const DefaultDebounce = 300 * time.Millisecond

// ErrControllerClosed is returned by SetFilter after Close.
var ErrControllerClosed = errors.New("query controller closed")

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d. time.AfterFunc satisfies it
// through StdAfterFunc; tests inject a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

// StdAfterFunc schedules f with time.AfterFunc.
func StdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ResultState is the observable state of the record list.
type ResultState struct {
	Loading bool
	Records []RecordSummary
	Err     error

	// Filter is the snapshot that produced Records.
	Filter FilterState

	// Seq is the sequence number of the latest issued query.
	Seq uint64
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Engine    Engine
	Debounce  time.Duration // 0 means DefaultDebounce
	AfterFunc AfterFunc     // nil means StdAfterFunc
	Logger    *slog.Logger
}

// Controller owns the list filter and keeps the record list in sync with it.
//
// Title edits are debounced: each edit cancels the pending timer and starts
// a new one, and the fire queries with the filter as it is at fire time.
// Status and date edits query immediately. Every query carries a sequence
// number and an immutable filter snapshot; a completion whose sequence is
// not the latest issued is discarded, so the list always reflects the
// last-issued query even when responses arrive out of order.
//
// In-flight queries are never cancelled by newer edits; they run to
// completion and are dropped by the sequence check.
type Controller struct {
	engine    Engine
	debounce  time.Duration
	afterFunc AfterFunc
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	filter     FilterState
	timer      Timer
	timerGen   uint64
	seq        uint64
	lastIssued FilterState
	state      ResultState
	closed     bool
	updates    chan ResultState
}

// NewController creates a controller. No query is issued until Refresh or
// SetFilter is called.
func NewController(opts ControllerOptions) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = StdAfterFunc
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		engine:    opts.Engine,
		debounce:  opts.Debounce,
		afterFunc: opts.AfterFunc,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		updates:   make(chan ResultState, 1),
	}
}

// Updates delivers state changes. The channel holds only the most recent
// state; a slow reader skips intermediate states but never blocks the
// controller. It is closed by Close.
func (c *Controller) Updates() <-chan ResultState {
	return c.updates
}

// State returns the current list state.
func (c *Controller) State() ResultState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Filter returns the current filter, including edits whose query has not
// been issued yet.
func (c *Controller) Filter() FilterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Refresh issues an immediate query with the current filter.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.issueLocked()
}

// SetFilter updates one filter field. A title change schedules a debounced
// query; any other field queries immediately and leaves a pending title
// timer in place.
func (c *Controller) SetFilter(field Field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrControllerClosed
	}

	next, err := c.filter.With(field, value)
	if err != nil {
		return err
	}
	c.filter = next

	if field == FieldTitle {
		c.stopTimerLocked()
		gen := c.timerGen
		c.timer = c.afterFunc(c.debounce, func() { c.debounceFired(gen) })
		return nil
	}
	c.issueLocked()
	return nil
}

// ClearFilters resets every field, cancels a pending title timer and issues
// an unconstrained query.
func (c *Controller) ClearFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopTimerLocked()
	c.filter = FilterState{}
	c.issueLocked()
}

// Close stops the pending timer, cancels in-flight queries and waits for
// their goroutines to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	close(c.updates)
}

func (c *Controller) debounceFired(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A timer that was stopped after its callback started carries an old gen.
	if c.closed || gen != c.timerGen {
		return
	}
	c.timer = nil
	if c.seq > 0 && c.filter == c.lastIssued {
		c.logger.Debug("debounced query skipped; filter already issued", "filter", c.filter.String())
		return
	}
	c.issueLocked()
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) issueLocked() {
	c.seq++
	seq := c.seq
	snapshot := c.filter
	c.lastIssued = snapshot

	c.state.Loading = true
	c.state.Seq = seq
	c.publishLocked()

	c.logger.Debug("issuing record query", "seq", seq, "filter", snapshot.String())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		records, err := c.engine.ListRecords(c.ctx, snapshot)
		c.complete(seq, snapshot, records, err)
	}()
}

func (c *Controller) complete(seq uint64, snapshot FilterState, records []RecordSummary, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if seq != c.seq {
		c.logger.Debug("discarding superseded query result", "seq", seq, "latest", c.seq)
		return
	}

	c.state.Loading = false
	if err != nil {
		// Keep the last good records in place.
		c.state.Err = err
		c.logger.Debug("record query failed", "seq", seq, "err", err)
	} else {
		c.state.Err = nil
		c.state.Records = records
		c.state.Filter = snapshot
	}
	c.publishLocked()
}

// publishLocked replaces any unread state with the current one. Only
// callers holding mu send, so the send never blocks.
func (c *Controller) publishLocked() {
	select {
	case <-c.updates:
	default:
	}
	c.updates <- c.state
}
