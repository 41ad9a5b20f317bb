package command

import (
	"sort"
	"strconv"
	"time"

	"libweave/clock"
	"libweave/runner"
)

const defaultRemovalDelay = 5 * time.Second
const defaultExpiry = time.Hour

// Handler receives a weak reference to a newly-added command so it can
// drive it to completion. componentPath/name routing mirrors registration:
// an exact (path, name) match wins, then (path, ""), then ("", "").
type Handler func(*Instance)

type handlerKey struct {
	path string
	name string
}

// AddedCallback fires for every command added to the queue, regardless of
// whether a handler claims it.
type AddedCallback func(*Instance)

// Queue owns every in-flight Instance by id.
type Queue struct {
	runner runner.TaskRunner
	clock  clock.Clock

	removalDelay time.Duration
	expiry       time.Duration

	byID     map[string]*Instance
	expireAt map[string]time.Time
	handlers map[handlerKey]Handler
	onAdded  []AddedCallback

	sweepPosted bool
}

// New returns an empty Queue. removalDelay and expiry fall back to the
// spec defaults (5s, 1h) when zero.
func New(r runner.TaskRunner, c clock.Clock, removalDelay, expiry time.Duration) *Queue {
	if removalDelay <= 0 {
		removalDelay = defaultRemovalDelay
	}
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &Queue{
		runner:       r,
		clock:        c,
		removalDelay: removalDelay,
		expiry:       expiry,
		byID:         map[string]*Instance{},
		expireAt:     map[string]time.Time{},
		handlers:     map[handlerKey]Handler{},
	}
}

// OnAdded registers cb to run for every command this Queue accepts.
func (q *Queue) OnAdded(cb AddedCallback) { q.onAdded = append(q.onAdded, cb) }

// AddHandler registers a handler for (path, name); path=="" and/or
// name=="" register the fallback tiers described in 4.C.
func (q *Queue) AddHandler(path, name string, h Handler) {
	q.handlers[handlerKey{path, name}] = h
}

// Add stores inst, fires added callbacks, routes it to the best-matching
// handler, and arms its expiry.
func (q *Queue) Add(inst *Instance) {
	inst.onRemovalDue = q.delayedRemove
	q.byID[inst.ID] = inst
	q.expireAt[inst.ID] = q.clock.Now().Add(q.expiry)

	for _, cb := range q.onAdded {
		cb(inst)
	}

	if h, ok := q.handlers[handlerKey{inst.ComponentPath, inst.Name}]; ok {
		h(inst)
	} else if h, ok := q.handlers[handlerKey{inst.ComponentPath, ""}]; ok {
		h(inst)
	} else if h, ok := q.handlers[handlerKey{"", ""}]; ok {
		h(inst)
	}

	q.armSweep()
}

// Get looks up a live instance by id.
func (q *Queue) Get(id string) (*Instance, bool) {
	inst, ok := q.byID[id]
	return inst, ok
}

// delayedRemove posts a task to drop id from the map after removalDelay,
// giving observers a window to read the instance's final state.
func (q *Queue) delayedRemove(id string) {
	q.runner.PostDelayedTask(func() { q.remove(id) }, q.removalDelay)
}

func (q *Queue) remove(id string) {
	inst, ok := q.byID[id]
	if !ok {
		return
	}
	delete(q.byID, id)
	delete(q.expireAt, id)
	inst.NotifyDestroyed()
}

// armSweep schedules the expiry sweep to run at the next due expiry if
// one is not already pending, resetting the timer to that instant rather
// than polling at a fixed cadence.
func (q *Queue) armSweep() {
	if q.sweepPosted {
		return
	}
	delay, ok := q.nextDue()
	if !ok {
		return
	}
	q.sweepPosted = true
	q.runner.PostDelayedTask(q.sweep, delay)
}

// nextDue returns the delay until the earliest pending expiry, or
// ok=false if nothing is pending.
func (q *Queue) nextDue() (time.Duration, bool) {
	var earliest time.Time
	found := false
	for _, at := range q.expireAt {
		if !found || at.Before(earliest) {
			earliest = at
			found = true
		}
	}
	if !found {
		return 0, false
	}
	delay := earliest.Sub(q.clock.Now())
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// sweep transitions every still-pending command whose expiry has passed
// to expired, smaller-id first on ties, then resets the timer to the next
// due expiry if work remains.
func (q *Queue) sweep() {
	q.sweepPosted = false
	now := q.clock.Now()

	type due struct {
		id string
		at time.Time
	}
	var overdue []due
	for id, at := range q.expireAt {
		if !at.After(now) {
			overdue = append(overdue, due{id, at})
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		if overdue[i].at.Equal(overdue[j].at) {
			return idLess(overdue[i].id, overdue[j].id)
		}
		return overdue[i].at.Before(overdue[j].at)
	})
	for _, d := range overdue {
		if inst, ok := q.byID[d.id]; ok {
			inst.expire()
		}
		// Expiry has fired; delayedRemove (scheduled by expire via
		// onRemovalDue) owns removing the instance from byID. Drop the
		// expiry-tracking entry now so armSweep's next-due computation
		// does not keep resetting to this already-handled id.
		delete(q.expireAt, d.id)
	}

	q.armSweep()
}

// idLess orders ids the way "smaller id first" means for the queue's
// auto-assigned "cmd-<seq>" ids: numerically by the trailing sequence
// number when both ids share the same non-numeric prefix, so "cmd-10"
// sorts after "cmd-2" rather than before it. Ids that don't fit that
// shape (or don't share a prefix) fall back to a plain string compare.
func idLess(a, b string) bool {
	aPrefix, aNum, aOK := splitNumericSuffix(a)
	bPrefix, bNum, bOK := splitNumericSuffix(b)
	if aOK && bOK && aPrefix == bPrefix {
		return aNum < bNum
	}
	return a < b
}

func splitNumericSuffix(s string) (prefix string, num uint64, ok bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.ParseUint(s[i:], 10, 64)
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}
