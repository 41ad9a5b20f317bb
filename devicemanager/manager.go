// Package devicemanager composes the component/trait model, command
// queue, config store, local auth manager, and cloud syncer (A-I) behind
// the single façade an embedder's application code is built against
// (§6). It owns construction order and wiring only; every behavior lives
// in the sub-manager that implements it.
package devicemanager

import (
	"libweave/auth"
	"libweave/cloudsync"
	"libweave/command"
	"libweave/configstore"
	"libweave/errcode"
	"libweave/handlers"
	"libweave/logging"
	"libweave/model"
	"libweave/runner"
	"libweave/transport"
	"libweave/value"

	"libweave/clock"
)

// Config carries every provider the device manager is built against.
// Network may be nil, in which case no connectivity transitions are
// watched. Http may be nil only for an embedder that never registers with
// the cloud and has no stored refresh token: the syncer then makes no
// cloud call, and any cloud call made with a nil Http panics.
type Config struct {
	Backend         configstore.ConfigStore
	Http            transport.HttpClient
	Network         transport.Network
	Runner          runner.TaskRunner
	Clock           clock.Clock
	CertFingerprint []byte

	// Log receives lifecycle and error events from the cloud syncer. A
	// nil Log discards everything.
	Log *logging.Logger
}

// Manager is the embedder-facing façade over A-I.
type Manager struct {
	runner runner.TaskRunner
	clock  clock.Clock

	Store      *configstore.Store
	Model      *model.Manager
	Commands   *command.Queue
	Auth       *auth.Manager
	Revocation *auth.RevocationManager
	Sync       *cloudsync.Syncer

	base   *handlers.BaseHandler
	access *handlers.AccessHandler
}

// New constructs every sub-manager in dependency order, registers the
// built-in base/access traits and component, and starts the cloud
// syncer's connectivity watch.
func New(cfg Config) (*Manager, error) {
	store, err := configstore.Load(cfg.Backend)
	if err != nil {
		return nil, err
	}
	revocation, err := auth.NewRevocationManager(cfg.Backend)
	if err != nil {
		return nil, err
	}
	authMgr, err := auth.NewManager(store, revocation, cfg.CertFingerprint, cfg.Clock)
	if err != nil {
		return nil, err
	}

	m := model.New(cfg.Runner, cfg.Clock)
	cmds := command.New(cfg.Runner, cfg.Clock, 0, 0)
	syncer := cloudsync.New(cfg.Http, cfg.Network, store, m, cmds, cfg.Runner, cfg.Clock, cfg.Log)

	if err := m.LoadTraits(builtinTraitDefs()); err != nil {
		return nil, err
	}
	if err := m.AddComponent("", builtinComponentPath, []string{"base", "_accessRevocationList"}); err != nil {
		return nil, err
	}

	dm := &Manager{
		runner:     cfg.Runner,
		clock:      cfg.Clock,
		Store:      store,
		Model:      m,
		Commands:   cmds,
		Auth:       authMgr,
		Revocation: revocation,
		Sync:       syncer,
		base:       handlers.NewBaseHandler(store, m, cmds),
		access:     handlers.NewAccessHandler(revocation, m, cfg.Clock, cmds),
	}
	syncer.Start()
	return dm, nil
}

// AddTraitDefinitions registers one or more trait definitions (4.D).
func (dm *Manager) AddTraitDefinitions(defs map[string]value.Value) error {
	return dm.Model.LoadTraits(defs)
}

// AddComponent inserts a single-valued component.
func (dm *Manager) AddComponent(parentPath, name string, traits []string) error {
	return dm.Model.AddComponent(parentPath, name, traits)
}

// AddComponentArrayItem appends a component to an array slot.
func (dm *Manager) AddComponentArrayItem(parentPath, name string, traits []string) (int, error) {
	return dm.Model.AddComponentArrayItem(parentPath, name, traits)
}

// RemoveComponent deletes a single-valued component.
func (dm *Manager) RemoveComponent(parentPath, name string) error {
	return dm.Model.RemoveComponent(parentPath, name)
}

// SetStateProperties merges dict into the component at path's state.
func (dm *Manager) SetStateProperties(path string, dict map[string]value.Value) error {
	return dm.Model.SetStateProperties(path, dict)
}

// SetStateProperty is the single-key convenience form of
// SetStateProperties.
func (dm *Manager) SetStateProperty(path, key string, v value.Value) error {
	return dm.Model.SetStateProperties(path, map[string]value.Value{key: v})
}

// GetStateProperty reads one trait.prop value off the component at path.
func (dm *Manager) GetStateProperty(path, key string) (value.Value, error) {
	c, err := dm.Model.Component(path)
	if err != nil {
		return value.NullV, err
	}
	v, ok := c.State[key]
	if !ok {
		return value.NullV, errcode.New(errcode.PropertyMissing, "GetStateProperty", "no state property %q at %q", key, path)
	}
	return v, nil
}

// AddCommandHandler registers h for commands named name at component
// path; path=="" and/or name=="" register the fallback tiers (4.C).
func (dm *Manager) AddCommandHandler(path, name string, h command.Handler) {
	dm.Commands.AddHandler(path, name, h)
}

// AddCommand parses and routes a locally-issued command at owner role,
// the privilege level the embedder's own application code runs at, and
// adds it to the queue.
func (dm *Manager) AddCommand(raw []byte) (*command.Instance, error) {
	inst, err := dm.Model.ParseCommandInstance(raw, command.OriginLocal, model.RoleOwner)
	if err != nil {
		return nil, err
	}
	dm.Commands.Add(inst)
	return inst, nil
}

// Register kicks off the ticket→robot-account→OAuth registration flow.
// On success done is called with the cloud-assigned device id.
func (dm *Manager) Register(data cloudsync.RegistrationData, done func(deviceID string, err error)) {
	dm.Sync.RegisterDevice(data, done)
}

// GetSettings returns the live settings snapshot.
func (dm *Manager) GetSettings() configstore.Settings { return dm.Store.Current() }

// OnTraitChanged, OnComponentChanged, OnStateChanged, OnSettingsChanged,
// OnGcdStateChanged, and OnPairingChanged register the embedder's
// change-callbacks (§6), passing straight through to the owning
// sub-manager.
func (dm *Manager) OnTraitChanged(cb model.TraitChangeCallback)     { dm.Model.OnTraitChanged(cb) }
func (dm *Manager) OnComponentChanged(cb model.TreeChangeCallback)  { dm.Model.OnTreeChanged(cb) }
func (dm *Manager) OnStateChanged(cb model.StateChangeCallback)     { dm.Model.OnStateChanged(cb) }
func (dm *Manager) OnSettingsChanged(cb configstore.ChangeCallback) { dm.Store.OnChange(cb) }
func (dm *Manager) OnGcdStateChanged(cb cloudsync.StateChangeCallback) {
	dm.Sync.OnStateChanged(cb)
}
func (dm *Manager) OnPairingChanged(cb cloudsync.PairingChangeCallback) {
	dm.Sync.OnPairingChanged(cb)
}
