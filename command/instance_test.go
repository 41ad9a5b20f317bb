package command

import (
	"testing"

	"libweave/errcode"
	"libweave/value"
)

func TestFromJSON_MissingName(t *testing.T) {
	_, err := FromJSON([]byte(`{}`), OriginLocal)
	if errcode.Of(err) != errcode.PropertyMissing {
		t.Fatalf("err = %v, want property_missing", err)
	}
}

func TestFromJSON_InvalidCommandNameShape(t *testing.T) {
	_, err := FromJSON([]byte(`{"name":"noDot"}`), OriginLocal)
	if errcode.Of(err) != errcode.InvalidCommandName {
		t.Fatalf("err = %v, want invalid_command_name", err)
	}
}

func TestFromJSON_MalformedBody(t *testing.T) {
	_, err := FromJSON([]byte(`[1,2,3]`), OriginLocal)
	if errcode.Of(err) != errcode.ObjectExpected {
		t.Fatalf("err = %v, want object_expected", err)
	}
}

func TestFromJSON_PartialFailureKeepsID(t *testing.T) {
	inst, err := FromJSON([]byte(`{"id":"abc"}`), OriginLocal)
	if err == nil {
		t.Fatal("expected error for missing name")
	}
	if inst == nil || inst.ID != "abc" {
		t.Fatalf("expected partial instance with id abc, got %v", inst)
	}
}

func TestFromJSON_OK(t *testing.T) {
	inst, err := FromJSON([]byte(`{"name":"light.setPower","parameters":{"on":true}}`), OriginCloud)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if inst.Name != "light.setPower" || inst.Origin != OriginCloud || inst.State != StateQueued {
		t.Fatalf("unexpected instance: %+v", inst)
	}
	m, _ := inst.Parameters.Map()
	if b, _ := m["on"].Bool(); !b {
		t.Fatalf("parameters not parsed: %+v", inst.Parameters)
	}
}

func TestInstance_SetProgressTransitionsToInProgress(t *testing.T) {
	inst := &Instance{State: StateQueued}
	if err := inst.SetProgress(map[string]value.Value{"pct": value.IntV(10)}); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	if inst.State != StateInProgress {
		t.Fatalf("state = %v, want inProgress", inst.State)
	}
}

func TestInstance_CompleteThenMutateFails(t *testing.T) {
	inst := &Instance{State: StateInProgress}
	if err := inst.Complete(map[string]value.Value{"ok": value.BoolV(true)}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inst.State != StateDone {
		t.Fatalf("state = %v, want done", inst.State)
	}
	if err := inst.SetProgress(nil); errcode.Of(err) != errcode.InvalidState {
		t.Fatalf("err = %v, want invalid_state after terminal", err)
	}
}

func TestInstance_PauseResume(t *testing.T) {
	inst := &Instance{State: StateInProgress}
	if err := inst.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if inst.State != StatePaused {
		t.Fatalf("state = %v, want paused", inst.State)
	}
	if err := inst.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if inst.State != StateInProgress {
		t.Fatalf("state = %v, want inProgress", inst.State)
	}
}

func TestInstance_PauseFromQueuedFails(t *testing.T) {
	inst := &Instance{State: StateQueued}
	if err := inst.Pause(); err == nil {
		t.Fatal("expected error pausing a queued command")
	}
}

func TestInstance_AbortSchedulesRemoval(t *testing.T) {
	var removed string
	inst := &Instance{State: StateInProgress, ID: "x"}
	inst.onRemovalDue = func(id string) { removed = id }
	if err := inst.Abort(errcode.New(errcode.TransportError, "test", "boom")); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if inst.State != StateAborted {
		t.Fatalf("state = %v, want aborted", inst.State)
	}
	if removed != "x" {
		t.Fatalf("removal not scheduled")
	}
}

func TestInstance_ObserversNotifiedOnStateChange(t *testing.T) {
	inst := &Instance{State: StateInProgress}
	var seen State
	inst.AddObserver(Observer{OnStateChanged: func(c *Instance) { seen = c.State }})
	_ = inst.Cancel()
	if seen != StateCancelled {
		t.Fatalf("observer saw %v, want cancelled", seen)
	}
}

func TestInstance_DoneIsTerminal(t *testing.T) {
	// done counts as terminal, so SetProgress, Complete, SetError, Abort
	// and Cancel refuse a command in it.
	inst := &Instance{State: StateDone}
	if inst.State.terminal() != true {
		t.Fatal("done must be terminal")
	}
}
