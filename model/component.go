package model

import (
	"strconv"
	"strings"

	"libweave/errcode"
	"libweave/value"
)

// Component is a node in the device's capability tree. Each node carries a
// declared trait list, a flat "trait.prop" state map, and named child
// slots that hold either a single sub-component or an array of them.
type Component struct {
	Traits   []string
	State    map[string]value.Value
	Children map[string]*childSlot
}

// childSlot holds either a single component or an array of components,
// never both: the slot's shape is fixed by whichever Add* call created it.
type childSlot struct {
	single *Component
	array  []*Component
}

func newComponent(traits []string) *Component {
	c := &Component{State: map[string]value.Value{}, Children: map[string]*childSlot{}}
	c.Traits = append(c.Traits, traits...)
	return c
}

func (c *Component) hasTrait(name string) bool {
	for _, t := range c.Traits {
		if t == name {
			return true
		}
	}
	return false
}

// pathSegment is one dot-separated hop, optionally indexed ("cams[2]").
type pathSegment struct {
	name     string
	index    int
	hasIndex bool
}

func parseComponentPath(path string) ([]pathSegment, error) {
	if path == "" {
		return nil, errcode.New(errcode.PropertyMissing, "parseComponentPath", "empty path")
	}
	parts := strings.Split(path, ".")
	segs := make([]pathSegment, 0, len(parts))
	for _, p := range parts {
		seg := pathSegment{name: p}
		if open := strings.IndexByte(p, '['); open >= 0 {
			if !strings.HasSuffix(p, "]") {
				return nil, errcode.New(errcode.InvalidPropValue, "parseComponentPath", "unterminated array index in %q", p)
			}
			idxStr := p[open+1 : len(p)-1]
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 0 {
				return nil, errcode.New(errcode.InvalidPropValue, "parseComponentPath", "invalid array index in %q", p)
			}
			seg.name = p[:open]
			seg.index = idx
			seg.hasIndex = true
		}
		if seg.name == "" {
			return nil, errcode.New(errcode.PropertyMissing, "parseComponentPath", "empty path segment in %q", path)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// tree owns the top-level (root) component slots, keyed by name.
type tree struct {
	roots map[string]*childSlot
}

func newTree() *tree { return &tree{roots: map[string]*childSlot{}} }

// resolve walks path from the root, descending through child slots.
func (t *tree) resolve(path string) (*Component, error) {
	segs, err := parseComponentPath(path)
	if err != nil {
		return nil, err
	}
	slots := t.roots
	var cur *Component
	for i, seg := range segs {
		slot, ok := slots[seg.name]
		if !ok {
			return nil, errcode.New(errcode.PropertyMissing, "resolve", "no component %q in path %q", seg.name, path)
		}
		cur, err = slot.pick(seg)
		if err != nil {
			return nil, err
		}
		if i < len(segs)-1 {
			slots = cur.Children
		}
	}
	return cur, nil
}

func (s *childSlot) pick(seg pathSegment) (*Component, error) {
	if seg.hasIndex {
		if s.array == nil {
			return nil, errcode.New(errcode.TypeMismatch, "resolve", "%q is not an array component", seg.name)
		}
		if seg.index >= len(s.array) {
			return nil, errcode.New(errcode.InvalidPropValue, "resolve", "array index %d out of range for %q", seg.index, seg.name)
		}
		return s.array[seg.index], nil
	}
	if s.single == nil {
		return nil, errcode.New(errcode.TypeMismatch, "resolve", "%q is an array component, index required", seg.name)
	}
	return s.single, nil
}

// slotsFor returns the child-slot map the given path's final component
// owns, for adding/removing a grandchild by name.
func (t *tree) slotsFor(parentPath string) (map[string]*childSlot, error) {
	if parentPath == "" {
		return t.roots, nil
	}
	parent, err := t.resolve(parentPath)
	if err != nil {
		return nil, err
	}
	return parent.Children, nil
}

func validateTraits(traits []string, reg *traitRegistry) error {
	for _, name := range traits {
		if _, ok := reg.get(name); !ok {
			return errcode.New(errcode.TraitNotSupported, "AddComponent", "undefined trait %q", name)
		}
	}
	return nil
}
