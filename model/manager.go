package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"libweave/clock"
	"libweave/command"
	"libweave/errcode"
	"libweave/runner"
	"libweave/schema"
	"libweave/value"
)

// TreeChangeCallback fires whenever a component is added or removed.
type TreeChangeCallback func()

// TraitChangeCallback fires after a LoadTraits call commits one or more
// new trait definitions.
type TraitChangeCallback func(added []string)

// StateChangeCallback fires after SetStateProperties commits a merge.
type StateChangeCallback func(path string, changed map[string]value.Value)

// Manager fuses the trait registry, component tree, and per-component
// state-change queues (4.A, 4.D) into the single object the rest of the
// control layer is built against.
type Manager struct {
	runner runner.TaskRunner
	clock  clock.Clock

	traits *traitRegistry
	tree   *tree
	queues map[string]*stateChangeQueue

	updateID uint64
	cmdSeq   uint64

	onTreeChanged  []TreeChangeCallback
	onTraitChanged []TraitChangeCallback
	onStateChanged []StateChangeCallback
}

// New returns an empty Manager.
func New(r runner.TaskRunner, c clock.Clock) *Manager {
	return &Manager{
		runner: r,
		clock:  c,
		traits: newTraitRegistry(),
		tree:   newTree(),
		queues: map[string]*stateChangeQueue{},
	}
}

func (m *Manager) OnTreeChanged(cb TreeChangeCallback)     { m.onTreeChanged = append(m.onTreeChanged, cb) }
func (m *Manager) OnTraitChanged(cb TraitChangeCallback)   { m.onTraitChanged = append(m.onTraitChanged, cb) }
func (m *Manager) OnStateChanged(cb StateChangeCallback)   { m.onStateChanged = append(m.onStateChanged, cb) }

// LoadTraits validates the whole batch before committing any of it (4.D).
func (m *Manager) LoadTraits(defs map[string]value.Value) error {
	added, err := m.traits.loadTraits(defs)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		return nil
	}
	for _, cb := range m.onTraitChanged {
		cb(added)
	}
	return nil
}

// Trait looks up a registered trait definition.
func (m *Manager) Trait(name string) (*TraitDef, bool) { return m.traits.get(name) }

// AddComponent inserts a new single-valued component at parentPath/name.
func (m *Manager) AddComponent(parentPath, name string, traits []string) error {
	if err := validateTraits(traits, m.traits); err != nil {
		return err
	}
	slots, err := m.tree.slotsFor(parentPath)
	if err != nil {
		return err
	}
	if _, exists := slots[name]; exists {
		return errcode.New(errcode.InvalidPropValue, "AddComponent", "component %q already exists at this path", name)
	}
	slots[name] = &childSlot{single: newComponent(traits)}
	m.fireTreeChanged()
	return nil
}

// AddComponentArrayItem appends a new component to the array slot
// parentPath/name, creating the slot if it does not yet exist.
func (m *Manager) AddComponentArrayItem(parentPath, name string, traits []string) (int, error) {
	if err := validateTraits(traits, m.traits); err != nil {
		return 0, err
	}
	slots, err := m.tree.slotsFor(parentPath)
	if err != nil {
		return 0, err
	}
	slot, exists := slots[name]
	if !exists {
		slot = &childSlot{array: []*Component{}}
		slots[name] = slot
	} else if slot.single != nil {
		return 0, errcode.New(errcode.TypeMismatch, "AddComponentArrayItem", "%q is a single component, not an array", name)
	}
	slot.array = append(slot.array, newComponent(traits))
	m.fireTreeChanged()
	return len(slot.array) - 1, nil
}

// RemoveComponent deletes the single-valued component at path.
func (m *Manager) RemoveComponent(parentPath, name string) error {
	slots, err := m.tree.slotsFor(parentPath)
	if err != nil {
		return err
	}
	slot, ok := slots[name]
	if !ok || slot.single == nil {
		return errcode.New(errcode.PropertyMissing, "RemoveComponent", "no single component %q at this path", name)
	}
	delete(slots, name)
	m.fireTreeChanged()
	return nil
}

// RemoveComponentArrayItem removes index idx from the array slot
// parentPath/name.
func (m *Manager) RemoveComponentArrayItem(parentPath, name string, idx int) error {
	slots, err := m.tree.slotsFor(parentPath)
	if err != nil {
		return err
	}
	slot, ok := slots[name]
	if !ok || slot.array == nil {
		return errcode.New(errcode.PropertyMissing, "RemoveComponentArrayItem", "no array component %q at this path", name)
	}
	if idx < 0 || idx >= len(slot.array) {
		return errcode.New(errcode.InvalidPropValue, "RemoveComponentArrayItem", "index %d out of range for %q", idx, name)
	}
	slot.array = append(slot.array[:idx], slot.array[idx+1:]...)
	m.fireTreeChanged()
	return nil
}

func (m *Manager) fireTreeChanged() {
	for _, cb := range m.onTreeChanged {
		cb()
	}
}

// Component resolves path and returns the component, or an error.
func (m *Manager) Component(path string) (*Component, error) { return m.tree.resolve(path) }

// SetStateProperties merges dict into the component at path's state,
// bumps the global update_id, and records the change (4.D).
func (m *Manager) SetStateProperties(path string, dict map[string]value.Value) error {
	c, err := m.tree.resolve(path)
	if err != nil {
		return err
	}
	for key, v := range dict {
		trait, prop, ok := strings.Cut(key, ".")
		if !ok || prop == "" {
			return errcode.New(errcode.InvalidPropValue, "SetStateProperties", "state key %q is not trait.prop", key)
		}
		if !c.hasTrait(trait) {
			return errcode.New(errcode.TraitNotSupported, "SetStateProperties", "component does not declare trait %q", trait)
		}
		td, ok := m.traits.get(trait)
		if !ok {
			return errcode.New(errcode.TraitNotSupported, "SetStateProperties", "undefined trait %q", trait)
		}
		sp, ok := td.State[prop]
		if !ok {
			return errcode.New(errcode.PropertyMissing, "SetStateProperties", "trait %q has no state property %q", trait, prop)
		}
		if err := schema.ValidateStateType(sp.Type, v); err != nil {
			return err
		}
	}

	changed := make(map[string]value.Value, len(dict))
	for key, v := range dict {
		c.State[key] = v
		changed[key] = v
	}

	m.updateID++
	q, ok := m.queues[path]
	if !ok {
		q = &stateChangeQueue{}
		m.queues[path] = q
	}
	q.notifyPropertiesUpdated(StateChangeRecord{
		Timestamp:         m.clock.Now(),
		ComponentPath:     path,
		ChangedProperties: changed,
	})

	for _, cb := range m.onStateChanged {
		cb(path, changed)
	}
	return nil
}

// UpdateID returns the current global state watermark.
func (m *Manager) UpdateID() uint64 { return m.updateID }

// GetComponentsForUserRole returns a deep copy of the tree with every
// state property whose trait.prop minimalRole exceeds role stripped out.
func (m *Manager) GetComponentsForUserRole(role Role) map[string]any {
	out := make(map[string]any, len(m.tree.roots))
	for name, slot := range m.tree.roots {
		out[name] = m.redactSlot(slot, role)
	}
	return out
}

func (m *Manager) redactSlot(s *childSlot, role Role) any {
	if s.single != nil {
		return m.redactComponent(s.single, role)
	}
	arr := make([]any, len(s.array))
	for i, c := range s.array {
		arr[i] = m.redactComponent(c, role)
	}
	return arr
}

// redactComponent builds the allowed-state subset by patching each
// permitted property onto a raw JSON document via sjson rather than
// assembling a Go map (4.D).
func (m *Manager) redactComponent(c *Component, role Role) map[string]any {
	stateRaw := []byte("{}")
	hasState := false
	for key, v := range c.State {
		trait, prop, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		min := RoleViewer
		if td, ok := m.traits.get(trait); ok {
			if sp, ok := td.State[prop]; ok {
				min = sp.MinimalRole
			}
		}
		if !role.Meets(min) {
			continue
		}
		raw, err := value.SetRawPath(stateRaw, value.EscapeKey(key), v)
		if err != nil {
			continue
		}
		stateRaw = raw
		hasState = true
	}

	children := map[string]any{}
	for name, slot := range c.Children {
		children[name] = m.redactSlot(slot, role)
	}

	out := map[string]any{"traits": append([]string{}, c.Traits...)}
	if hasState {
		var state map[string]any
		if err := json.Unmarshal(stateRaw, &state); err == nil {
			out["state"] = state
		}
	}
	if len(children) > 0 {
		out["components"] = children
	}
	return out
}

// GetAndClearRecordedStateChanges drains every per-component queue into one
// list sorted by timestamp, alongside the update_id watermark at the time
// of the call.
func (m *Manager) GetAndClearRecordedStateChanges() (uint64, []StateChangeRecord) {
	var all []StateChangeRecord
	for _, q := range m.queues {
		all = append(all, q.drain()...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return m.updateID, all
}

// ParseCommandInstance parses raw into a command.Instance, resolves its
// component, role-checks it against the trait's minimalRole, and assigns a
// monotonic id if one was not supplied (4.D.ParseCommandInstance).
func (m *Manager) ParseCommandInstance(raw []byte, origin command.Origin, role Role) (*command.Instance, error) {
	inst, err := command.FromJSON(raw, origin)
	if err != nil {
		return nil, err
	}

	trait, _, ok := strings.Cut(inst.Name, ".")
	if !ok {
		return nil, errcode.New(errcode.InvalidCommandName, "ParseCommandInstance", "command name %q is not trait.cmd", inst.Name)
	}
	td, ok := m.traits.get(trait)
	if !ok {
		return nil, errcode.New(errcode.InvalidCommandName, "ParseCommandInstance", "undefined trait %q", trait)
	}
	cmd, ok := td.Commands[strings.TrimPrefix(inst.Name, trait+".")]
	if !ok {
		return nil, errcode.New(errcode.InvalidCommandName, "ParseCommandInstance", "trait %q has no command %q", trait, inst.Name)
	}
	if !role.Meets(cmd.MinimalRole) {
		return nil, errcode.New(errcode.AccessDenied, "ParseCommandInstance", "role %s below minimal role %s for %q", role, cmd.MinimalRole, inst.Name)
	}
	if err := cmd.ParamsSchema.ValidateAs(inst.Parameters, errcode.CommandFailed); err != nil {
		return nil, err
	}

	if inst.ComponentPath == "" {
		path, ferr := m.firstComponentWithTrait(trait)
		if ferr != nil {
			return nil, ferr
		}
		inst.ComponentPath = path
	}
	c, err := m.tree.resolve(inst.ComponentPath)
	if err != nil {
		return nil, err
	}
	if !c.hasTrait(trait) {
		return nil, errcode.New(errcode.TraitNotSupported, "ParseCommandInstance", "component %q does not declare trait %q", inst.ComponentPath, trait)
	}

	if inst.ID == "" {
		m.cmdSeq++
		inst.ID = formatCommandID(m.cmdSeq)
	}
	return inst, nil
}

// firstComponentWithTrait returns the path of the first component, in
// pre-order, that declares trait.
func (m *Manager) firstComponentWithTrait(trait string) (string, error) {
	names := make([]string, 0, len(m.tree.roots))
	for name := range m.tree.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if path, ok := findTrait(m.tree.roots[name], name, trait); ok {
			return path, nil
		}
	}
	return "", errcode.New(errcode.UnroutedCommand, "ParseCommandInstance", "no component declares trait %q", trait)
}

func findTrait(s *childSlot, path, trait string) (string, bool) {
	if s.single != nil {
		return findTraitComponent(s.single, path, trait)
	}
	for i, c := range s.array {
		p := path + "[" + strconv.Itoa(i) + "]"
		if found, ok := findTraitComponent(c, p, trait); ok {
			return found, true
		}
	}
	return "", false
}

func findTraitComponent(c *Component, path, trait string) (string, bool) {
	if c.hasTrait(trait) {
		return path, true
	}
	names := make([]string, 0, len(c.Children))
	for name := range c.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if found, ok := findTrait(c.Children[name], path+"."+name, trait); ok {
			return found, true
		}
	}
	return "", false
}

func formatCommandID(seq uint64) string {
	return "cmd-" + strconv.FormatUint(seq, 10)
}
