package model

import (
	"testing"

	"libweave/errcode"
)

func TestParseComponentPath_Simple(t *testing.T) {
	segs, err := parseComponentPath("sensors.cams[2].lens")
	if err != nil {
		t.Fatalf("parseComponentPath: %v", err)
	}
	want := []pathSegment{{name: "sensors"}, {name: "cams", index: 2, hasIndex: true}, {name: "lens"}}
	if len(segs) != len(want) {
		t.Fatalf("segs = %+v", segs)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Fatalf("segs[%d] = %+v, want %+v", i, segs[i], want[i])
		}
	}
}

func TestParseComponentPath_UnterminatedIndex(t *testing.T) {
	if _, err := parseComponentPath("cams[2"); errcode.Of(err) != errcode.InvalidPropValue {
		t.Fatalf("err = %v, want invalid_prop_value", err)
	}
}

func TestParseComponentPath_Empty(t *testing.T) {
	if _, err := parseComponentPath(""); errcode.Of(err) != errcode.PropertyMissing {
		t.Fatalf("err = %v, want property_missing", err)
	}
}

func TestTree_ResolveArrayWithoutIndexIsTypeMismatch(t *testing.T) {
	tr := newTree()
	tr.roots["cams"] = &childSlot{array: []*Component{newComponent(nil), newComponent(nil)}}
	if _, err := tr.resolve("cams"); errcode.Of(err) != errcode.TypeMismatch {
		t.Fatalf("err = %v, want type_mismatch", err)
	}
}

func TestTree_ResolveSingleWithIndexIsTypeMismatch(t *testing.T) {
	tr := newTree()
	tr.roots["lamp"] = &childSlot{single: newComponent(nil)}
	if _, err := tr.resolve("lamp[0]"); errcode.Of(err) != errcode.TypeMismatch {
		t.Fatalf("err = %v, want type_mismatch", err)
	}
}

func TestTree_ResolveMissingComponent(t *testing.T) {
	tr := newTree()
	if _, err := tr.resolve("missing"); errcode.Of(err) != errcode.PropertyMissing {
		t.Fatalf("err = %v, want property_missing", err)
	}
}
