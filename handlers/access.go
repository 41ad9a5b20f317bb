package handlers

import (
	"time"

	"libweave/auth"
	"libweave/clock"
	"libweave/command"
	"libweave/model"
	"libweave/value"
)

// AccessHandler registers the _accessRevocationList trait's revoke/list
// commands, proxying straight through to the auth manager's revocation
// list, and publishes its fixed capacity as state.
type AccessHandler struct {
	revocation *auth.RevocationManager
	model      *model.Manager
	clock      clock.Clock
}

// NewAccessHandler wires h's handlers onto queue and publishes capacity.
// Call AddComponent/LoadTraits for "_accessRevocationList" before this.
func NewAccessHandler(revocation *auth.RevocationManager, m *model.Manager, c clock.Clock, queue *command.Queue) *AccessHandler {
	h := &AccessHandler{revocation: revocation, model: m, clock: c}
	queue.AddHandler(baseComponentPath, "_accessRevocationList.revoke", h.revoke)
	queue.AddHandler(baseComponentPath, "_accessRevocationList.list", h.list)
	_ = m.SetStateProperties(baseComponentPath, map[string]value.Value{
		"_accessRevocationList.capacity": value.IntV(int64(revocation.GetCapacity())),
	})
	return h
}

func (h *AccessHandler) revoke(inst *command.Instance) {
	params, _ := inst.Parameters.Map()
	userID := []byte(paramStr(params, "userId"))
	appID := []byte(paramStr(params, "appId"))
	expirationS, _ := paramInt(params, "expirationTimeS")

	if err := h.revocation.Block(userID, appID, time.Unix(expirationS, 0), h.clock.Now()); err != nil {
		_ = inst.SetError(asE(err))
		return
	}
	_ = inst.Complete(nil)
}

func (h *AccessHandler) list(inst *command.Instance) {
	entries := h.revocation.GetEntries()
	items := make([]value.Value, len(entries))
	for i, e := range entries {
		items[i] = value.MapV(map[string]value.Value{
			"userId":       value.StringV(string(e.UserID)),
			"appId":        value.StringV(string(e.AppID)),
			"issuedBefore": value.IntV(e.IssuedBefore.Unix()),
			"expiration":   value.IntV(e.Expiration.Unix()),
		})
	}
	_ = inst.Complete(map[string]value.Value{"entries": value.ListV(items...)})
}

func paramStr(params map[string]value.Value, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.Str(); ok {
			return s
		}
	}
	return ""
}

func paramInt(params map[string]value.Value, key string) (int64, bool) {
	if v, ok := params[key]; ok {
		return v.Int()
	}
	return 0, false
}
