// Package handlers wires the built-in traits every device carries
// regardless of what the embedder adds: base (device identity and local
// access toggles) and _accessRevocationList (the local auth manager's
// revocation list exposed as a trait). Each handler is a thin translator
// between a command.Instance and the sub-manager that actually owns the
// behavior; it never duplicates that manager's logic (4.I).
package handlers

import (
	"libweave/command"
	"libweave/configstore"
	"libweave/model"
	"libweave/value"
)

const baseComponentPath = "base"

// BaseHandler registers the base trait's commands and mirrors config
// changes into the base component's state, in either direction: a
// command updates config, and a config change made elsewhere (e.g. by
// another trait or the embedder) updates the component's state to match.
type BaseHandler struct {
	store *configstore.Store
	model *model.Manager
}

// NewBaseHandler wires h's handlers onto queue and arms the config
// mirror. Call AddComponent/LoadTraits for "base" before this.
func NewBaseHandler(store *configstore.Store, m *model.Manager, queue *command.Queue) *BaseHandler {
	h := &BaseHandler{store: store, model: m}
	queue.AddHandler(baseComponentPath, "base.updateBaseConfiguration", h.updateBaseConfiguration)
	queue.AddHandler(baseComponentPath, "base.updateDeviceInfo", h.updateDeviceInfo)
	store.OnChange(h.mirrorState)
	current := store.Current()
	h.mirrorState(&current)
	return h
}

func (h *BaseHandler) updateBaseConfiguration(inst *command.Instance) {
	params, _ := inst.Parameters.Map()
	tx := h.store.Begin()
	if v, ok := params["localDiscoveryEnabled"]; ok {
		if b, ok := v.Bool(); ok {
			tx.SetLocalDiscoveryEnabled(b)
		}
	}
	if v, ok := params["localAnonymousAccessMaxRole"]; ok {
		if s, ok := v.Str(); ok {
			tx.SetLocalAnonymousAccessRole(s)
		}
	}
	if v, ok := params["localPairingEnabled"]; ok {
		if b, ok := v.Bool(); ok {
			tx.SetLocalPairingEnabled(b)
		}
	}
	h.commit(inst, tx)
}

func (h *BaseHandler) updateDeviceInfo(inst *command.Instance) {
	params, _ := inst.Parameters.Map()
	tx := h.store.Begin()
	if v, ok := params["name"]; ok {
		if s, ok := v.Str(); ok {
			tx.SetName(s)
		}
	}
	if v, ok := params["description"]; ok {
		if s, ok := v.Str(); ok {
			tx.SetDescription(s)
		}
	}
	if v, ok := params["location"]; ok {
		if s, ok := v.Str(); ok {
			tx.SetLocation(s)
		}
	}
	h.commit(inst, tx)
}

func (h *BaseHandler) commit(inst *command.Instance, tx *configstore.Transaction) {
	if err := tx.Commit(); err != nil {
		_ = inst.SetError(asE(err))
		return
	}
	_ = inst.Complete(nil)
}

// mirrorState pushes the settings fields base's state exposes into the
// base component, whether the change came from a command or from
// elsewhere (e.g. a direct Transaction against localAnonymousAccessRole).
func (h *BaseHandler) mirrorState(s *configstore.Settings) {
	_ = h.model.SetStateProperties(baseComponentPath, map[string]value.Value{
		"base.name":                        value.StringV(s.Name),
		"base.description":                 value.StringV(s.Description),
		"base.location":                    value.StringV(s.Location),
		"base.localDiscoveryEnabled":       value.BoolV(s.LocalDiscoveryEnabled),
		"base.localAnonymousAccessMaxRole": value.StringV(s.LocalAnonymousAccessRole),
		"base.localPairingEnabled":         value.BoolV(s.LocalPairingEnabled),
	})
}
