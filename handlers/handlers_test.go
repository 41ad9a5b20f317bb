package handlers

import (
	"testing"
	"time"

	"libweave/auth"
	"libweave/clock"
	"libweave/command"
	"libweave/configstore"
	"libweave/model"
	"libweave/runner"
	"libweave/value"
)

func setup(t *testing.T) (*configstore.Store, *model.Manager, *command.Queue, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(time.Unix(1000, 0))
	r := runner.NewFake(c)
	store, err := configstore.Load(configstore.NewFake())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := model.New(r, c)
	if err := m.LoadTraits(map[string]value.Value{
		"base": value.MapV(map[string]value.Value{
			"commands": value.MapV(map[string]value.Value{
				"updateBaseConfiguration": value.MapV(nil),
				"updateDeviceInfo":        value.MapV(nil),
			}),
			"state": value.MapV(map[string]value.Value{
				"name":                        value.MapV(map[string]value.Value{"type": value.StringV("string")}),
				"description":                 value.MapV(map[string]value.Value{"type": value.StringV("string")}),
				"location":                    value.MapV(map[string]value.Value{"type": value.StringV("string")}),
				"localDiscoveryEnabled":       value.MapV(map[string]value.Value{"type": value.StringV("boolean")}),
				"localAnonymousAccessMaxRole": value.MapV(map[string]value.Value{"type": value.StringV("string")}),
				"localPairingEnabled":         value.MapV(map[string]value.Value{"type": value.StringV("boolean")}),
			}),
		}),
		"_accessRevocationList": value.MapV(map[string]value.Value{
			"commands": value.MapV(map[string]value.Value{
				"revoke": value.MapV(nil),
				"list":   value.MapV(nil),
			}),
			"state": value.MapV(map[string]value.Value{
				"capacity": value.MapV(map[string]value.Value{"type": value.StringV("integer")}),
			}),
		}),
	}); err != nil {
		t.Fatalf("LoadTraits: %v", err)
	}
	if err := m.AddComponent("", "base", []string{"base", "_accessRevocationList"}); err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	q := command.New(r, c, 0, 0)
	return store, m, q, c
}

func TestBaseHandler_UpdateBaseConfigurationMirrorsIntoState(t *testing.T) {
	store, m, q, c := setup(t)
	_ = c
	NewBaseHandler(store, m, q)

	inst := &command.Instance{
		ID:            "cmd-1",
		Name:          "base.updateBaseConfiguration",
		ComponentPath: "base",
		Parameters: value.MapV(map[string]value.Value{
			"localDiscoveryEnabled":       value.BoolV(false),
			"localAnonymousAccessMaxRole": value.StringV("none"),
			"localPairingEnabled":         value.BoolV(false),
		}),
	}
	q.Add(inst)

	if inst.State != command.StateDone {
		t.Fatalf("got state %v, want done", inst.State)
	}
	if store.Current().LocalDiscoveryEnabled {
		t.Fatal("expected localDiscoveryEnabled persisted as false")
	}

	comp, err := m.Component("base")
	if err != nil {
		t.Fatalf("Component: %v", err)
	}
	if got, _ := comp.State["base.localAnonymousAccessMaxRole"].Str(); got != "none" {
		t.Fatalf("got mirrored state %q, want %q", got, "none")
	}
}

func TestBaseHandler_ConfigChangeWithoutCommandUpdatesState(t *testing.T) {
	store, m, q, _ := setup(t)
	NewBaseHandler(store, m, q)

	if err := store.Begin().SetLocalAnonymousAccessRole("viewer").Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	comp, err := m.Component("base")
	if err != nil {
		t.Fatalf("Component: %v", err)
	}
	if got, _ := comp.State["base.localAnonymousAccessMaxRole"].Str(); got != "viewer" {
		t.Fatalf("got %q, want %q", got, "viewer")
	}
}

func TestAccessHandler_RevokeThenListRoundTrips(t *testing.T) {
	_, m, q, c := setup(t)
	rev, err := auth.NewRevocationManager(configstore.NewFake())
	if err != nil {
		t.Fatalf("NewRevocationManager: %v", err)
	}
	NewAccessHandler(rev, m, c, q)

	inst := &command.Instance{
		ID:            "cmd-2",
		Name:          "_accessRevocationList.revoke",
		ComponentPath: "base",
		Parameters: value.MapV(map[string]value.Value{
			"userId":          value.StringV("user-1"),
			"appId":           value.StringV("app-1"),
			"expirationTimeS": value.IntV(c.Now().Add(time.Hour).Unix()),
		}),
	}
	q.Add(inst)
	if inst.State != command.StateDone {
		t.Fatalf("got state %v, want done", inst.State)
	}

	listInst := &command.Instance{ID: "cmd-3", Name: "_accessRevocationList.list", ComponentPath: "base", Parameters: value.MapV(nil)}
	q.Add(listInst)
	entries, _ := listInst.Results.Map()
	items, _ := entries["entries"].List()
	if len(items) != 1 {
		t.Fatalf("got %d entries, want 1", len(items))
	}

	comp, err := m.Component("base")
	if err != nil {
		t.Fatalf("Component: %v", err)
	}
	if got, _ := comp.State["_accessRevocationList.capacity"].Int(); got != int64(rev.GetCapacity()) {
		t.Fatalf("got capacity %d, want %d", got, rev.GetCapacity())
	}
}
