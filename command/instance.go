// Package command implements the command instance state machine and
// queue (4.B, 4.C): every action a trait exposes, whether issued locally
// or by the cloud, is parsed into an Instance and driven through queued,
// inProgress, paused, done, error, and the terminal aborted/cancelled/
// expired states.
package command

import (
	"strings"

	"libweave/errcode"
	"libweave/value"
)

// Origin distinguishes a command issued by a local caller from one
// dispatched by the cloud sync loop.
type Origin int

const (
	OriginLocal Origin = iota
	OriginCloud
)

// State is a command instance's position in the lifecycle state machine.
type State int

const (
	StateQueued State = iota
	StateInProgress
	StatePaused
	StateDone
	StateError
	StateAborted
	StateCancelled
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateInProgress:
		return "inProgress"
	case StatePaused:
		return "paused"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateAborted:
		return "aborted"
	case StateCancelled:
		return "cancelled"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	switch s {
	case StateDone, StateAborted, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// Observer receives synchronous lifecycle notifications. Any field may be
// left nil; Instance tolerates partial observers.
type Observer struct {
	OnStateChanged func(*Instance)
	OnProgress     func(*Instance)
	OnResults      func(*Instance)
	OnError        func(*Instance)
	OnDestroyed    func(id string)
}

// Instance is one in-flight or completed command.
type Instance struct {
	ID            string
	Name          string
	Origin        Origin
	ComponentPath string
	Parameters    value.Value
	Progress      value.Value
	Results       value.Value
	Err           *errcode.E
	State         State

	observers []Observer
	// onRemovalDue is set by the owning Queue when the instance is added,
	// so Complete/Abort/Cancel can schedule their own delayed removal.
	onRemovalDue func(id string)
}

// AddObserver registers o; observers are never removed, only tolerant of
// the instance's eventual destruction via OnDestroyed.
func (c *Instance) AddObserver(o Observer) { c.observers = append(c.observers, o) }

func (c *Instance) notifyState() {
	for _, o := range c.observers {
		if o.OnStateChanged != nil {
			o.OnStateChanged(c)
		}
	}
}

func (c *Instance) notifyProgress() {
	for _, o := range c.observers {
		if o.OnProgress != nil {
			o.OnProgress(c)
		}
	}
}

func (c *Instance) notifyResults() {
	for _, o := range c.observers {
		if o.OnResults != nil {
			o.OnResults(c)
		}
	}
}

func (c *Instance) notifyError() {
	for _, o := range c.observers {
		if o.OnError != nil {
			o.OnError(c)
		}
	}
}

// NotifyDestroyed tells every observer the instance is gone. Called by the
// Queue once it actually drops the instance from its map.
func (c *Instance) NotifyDestroyed() {
	for _, o := range c.observers {
		if o.OnDestroyed != nil {
			o.OnDestroyed(c.ID)
		}
	}
}

func (c *Instance) invalidTransition(op string) error {
	return errcode.New(errcode.InvalidState, op, "command %s cannot make this transition from state %s", c.ID, c.State)
}

// SetProgress merges dict into Progress and transitions to inProgress,
// even when the state is already inProgress or the progress is unchanged:
// the transition itself is the signal subscribers care about.
func (c *Instance) SetProgress(dict map[string]value.Value) error {
	if c.State.terminal() {
		return c.invalidTransition("SetProgress")
	}
	c.Progress = mergeDict(c.Progress, dict)
	c.State = StateInProgress
	c.notifyProgress()
	c.notifyState()
	return nil
}

// Complete merges results, transitions to done, and schedules removal.
func (c *Instance) Complete(results map[string]value.Value) error {
	if c.State.terminal() {
		return c.invalidTransition("Complete")
	}
	c.Results = mergeDict(c.Results, results)
	c.State = StateDone
	c.notifyResults()
	c.notifyState()
	c.scheduleRemoval()
	return nil
}

// SetError stores err and transitions to the non-terminal error state.
func (c *Instance) SetError(err *errcode.E) error {
	if c.State.terminal() {
		return c.invalidTransition("SetError")
	}
	c.Err = err
	c.State = StateError
	c.notifyError()
	c.notifyState()
	return nil
}

// Abort stores err, transitions to aborted, and schedules removal.
func (c *Instance) Abort(err *errcode.E) error {
	if c.State.terminal() {
		return c.invalidTransition("Abort")
	}
	c.Err = err
	c.notifyError()
	c.State = StateAborted
	c.notifyState()
	c.scheduleRemoval()
	return nil
}

// Cancel transitions to cancelled and schedules removal.
func (c *Instance) Cancel() error {
	if c.State.terminal() {
		return c.invalidTransition("Cancel")
	}
	c.State = StateCancelled
	c.notifyState()
	c.scheduleRemoval()
	return nil
}

// Pause transitions an in-progress command to paused.
func (c *Instance) Pause() error {
	if c.State != StateInProgress {
		return c.invalidTransition("Pause")
	}
	c.State = StatePaused
	c.notifyState()
	return nil
}

// Resume transitions a paused command back to inProgress.
func (c *Instance) Resume() error {
	if c.State != StatePaused {
		return c.invalidTransition("Resume")
	}
	c.State = StateInProgress
	c.notifyState()
	return nil
}

// expire transitions a still-pending command to the terminal expired
// state. Called only by the owning Queue's sweep.
func (c *Instance) expire() error {
	if c.State.terminal() {
		return c.invalidTransition("expire")
	}
	c.State = StateExpired
	c.notifyState()
	c.scheduleRemoval()
	return nil
}

func (c *Instance) scheduleRemoval() {
	if c.onRemovalDue != nil {
		c.onRemovalDue(c.ID)
	}
}

func mergeDict(base value.Value, dict map[string]value.Value) value.Value {
	if base.Kind() != value.Map {
		base = value.MapV(nil)
	}
	for k, v := range dict {
		base = base.WithMapEntry(k, v)
	}
	return base
}

// FromJSON parses raw into a new Instance, per 4.B's {id?, name,
// parameters?} shape. On a partial failure where an id was present, the
// returned Instance carries that id so the caller can abort it remotely.
func FromJSON(raw []byte, origin Origin) (*Instance, error) {
	v, err := value.ParseJSON(raw)
	if err != nil {
		return nil, errcode.New(errcode.ObjectExpected, "FromJSON", "malformed command json: %v", err)
	}
	m, ok := v.Map()
	if !ok {
		return nil, errcode.New(errcode.ObjectExpected, "FromJSON", "command body must be an object")
	}

	inst := &Instance{Origin: origin, State: StateQueued}
	if idv, ok := m["id"]; ok {
		if id, ok := idv.Str(); ok {
			inst.ID = id
		} else {
			return inst, errcode.New(errcode.ObjectExpected, "FromJSON", "id must be a string")
		}
	}

	nameV, ok := m["name"]
	if !ok {
		return inst, errcode.New(errcode.PropertyMissing, "FromJSON", "missing required field \"name\"")
	}
	name, ok := nameV.Str()
	if !ok || !strings.Contains(name, ".") {
		return inst, errcode.New(errcode.InvalidCommandName, "FromJSON", "command name %q is not trait.cmd", name)
	}
	inst.Name = name

	if pv, ok := m["parameters"]; ok {
		inst.Parameters = pv
	} else {
		inst.Parameters = value.MapV(nil)
	}
	if cp, ok := m["componentPath"]; ok {
		if s, ok := cp.Str(); ok {
			inst.ComponentPath = s
		}
	}
	return inst, nil
}
