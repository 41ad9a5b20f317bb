package model

import (
	"libweave/errcode"
	"libweave/schema"
	"libweave/value"
)

// CommandDef describes one command a trait exposes.
type CommandDef struct {
	MinimalRole Role
	Parameters  value.Value // json-schema-shaped document
	Results     value.Value

	// ParamsSchema is Parameters compiled once at LoadTraits time, so
	// ParseCommandInstance can validate every incoming call's parameters
	// without recompiling the schema per command.
	ParamsSchema *schema.Compiled
}

// StatePropDef describes one state property a trait exposes.
type StatePropDef struct {
	Type        string
	IsRequired  bool
	MinimalRole Role
}

// TraitDef is a registered trait: a named schema of commands and state.
type TraitDef struct {
	Name     string
	Commands map[string]CommandDef
	State    map[string]StatePropDef
	raw      value.Value // retained for equality checks on redefinition
}

// traitRegistry holds all registered traits. Traits are append-only: once
// registered, a redefinition with a different body is rejected.
type traitRegistry struct {
	byName map[string]*TraitDef
}

func newTraitRegistry() *traitRegistry {
	return &traitRegistry{byName: map[string]*TraitDef{}}
}

func (r *traitRegistry) get(name string) (*TraitDef, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// loadTraits validates every entry in defs before committing any of them,
// per the "validate first, commit once fully checked" contract. It returns
// the names of traits newly added by this call.
func (r *traitRegistry) loadTraits(defs map[string]value.Value) ([]string, error) {
	parsed := make(map[string]*TraitDef, len(defs))
	for name, raw := range defs {
		if raw.Kind() != value.Map {
			return nil, errcode.New(errcode.ObjectExpected, "LoadTraits", "trait %q must be an object", name)
		}
		td, err := parseTraitDef(name, raw)
		if err != nil {
			return nil, err
		}
		if existing, ok := r.byName[name]; ok {
			if !existing.raw.Equal(raw) {
				return nil, errcode.New(errcode.TypeMismatch, "LoadTraits", "trait %q already registered with a different definition", name)
			}
			continue
		}
		parsed[name] = td
	}

	added := make([]string, 0, len(parsed))
	for name, td := range parsed {
		r.byName[name] = td
		added = append(added, name)
	}
	return added, nil
}

func parseTraitDef(name string, raw value.Value) (*TraitDef, error) {
	m, _ := raw.Map()
	td := &TraitDef{
		Name:     name,
		Commands: map[string]CommandDef{},
		State:    map[string]StatePropDef{},
		raw:      raw,
	}

	if cmds, ok := m["commands"]; ok {
		cm, ok := cmds.Map()
		if !ok {
			return nil, errcode.New(errcode.ObjectExpected, "LoadTraits", "trait %q: commands must be an object", name)
		}
		for cname, cdef := range cm {
			cdm, ok := cdef.Map()
			if !ok {
				return nil, errcode.New(errcode.ObjectExpected, "LoadTraits", "trait %q: command %q must be an object", name, cname)
			}
			role := RoleViewer
			if rv, ok := cdm["minimalRole"]; ok {
				if s, ok := rv.Str(); ok {
					role = ParseRole(s)
				}
			}
			compiled, err := schema.Compile(name+"."+cname, cdm["parameters"])
			if err != nil {
				return nil, err
			}
			td.Commands[cname] = CommandDef{
				MinimalRole:  role,
				Parameters:   cdm["parameters"],
				Results:      cdm["results"],
				ParamsSchema: compiled,
			}
		}
	}

	if st, ok := m["state"]; ok {
		sm, ok := st.Map()
		if !ok {
			return nil, errcode.New(errcode.ObjectExpected, "LoadTraits", "trait %q: state must be an object", name)
		}
		for sname, sdef := range sm {
			sdm, ok := sdef.Map()
			if !ok {
				return nil, errcode.New(errcode.ObjectExpected, "LoadTraits", "trait %q: state property %q must be an object", name, sname)
			}
			typ := ""
			if tv, ok := sdm["type"]; ok {
				typ, _ = tv.Str()
			}
			required := false
			if rv, ok := sdm["isRequired"]; ok {
				required, _ = rv.Bool()
			}
			role := RoleViewer
			if rv, ok := sdm["minimalRole"]; ok {
				if s, ok := rv.Str(); ok {
					role = ParseRole(s)
				}
			}
			td.State[sname] = StatePropDef{Type: typ, IsRequired: required, MinimalRole: role}
		}
	}

	return td, nil
}
