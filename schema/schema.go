// Package schema validates command parameters against the json-schema
// documents embedded in trait definitions, using santhosh-tekuri/jsonschema
// for the actual schema compilation and checking, and checks state-property
// values against a trait's declared primitive type name. Command results
// are not validated.
package schema

import (
	"bytes"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"libweave/errcode"
	"libweave/value"
)

// Compiled wraps a compiled json-schema document for repeated validation.
type Compiled struct {
	sch *jsonschema.Schema
}

// Compile builds a Compiled schema from a trait's parameters/results/
// state-type document (already parsed into a value.Value). An empty or
// null schema compiles to an always-valid Compiled.
func Compile(name string, doc value.Value) (*Compiled, error) {
	if doc.IsNull() {
		return &Compiled{}, nil
	}
	m, ok := doc.Map()
	if ok && len(m) == 0 {
		return &Compiled{}, nil
	}

	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidPropValue, "schema.Compile", err)
	}

	c := jsonschema.NewCompiler()
	url := "mem://schema/" + name
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, errcode.New(errcode.InvalidPropValue, "schema.Compile", "trait %q: %v", name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, errcode.New(errcode.InvalidPropValue, "schema.Compile", "trait %q: %v", name, err)
	}
	return &Compiled{sch: sch}, nil
}

// Validate checks v against the compiled schema, reporting failures as
// invalid_prop_value. Callers that need another code (command parameters
// report command_failed, per 4.B's FromJson contract) use ValidateAs.
func (c *Compiled) Validate(v value.Value) error {
	return c.ValidateAs(v, errcode.InvalidPropValue)
}

// ValidateAs checks v against the compiled schema, reporting failures
// under the given error code.
func (c *Compiled) ValidateAs(v value.Value, code errcode.Code) error {
	if c == nil || c.sch == nil {
		return nil
	}
	if err := c.sch.Validate(v.ToAny()); err != nil {
		return errcode.New(code, "schema.Validate", "%v", err)
	}
	return nil
}

// ValidateStateType checks that v is assignable to a trait's declared
// state-property primitive type ("boolean", "integer", "number",
// "string", "object", "array"), independent of any json-schema document.
func ValidateStateType(typ string, v value.Value) error {
	ok := false
	switch typ {
	case "boolean":
		_, ok = v.Bool()
	case "integer":
		_, ok = v.Int()
	case "number":
		_, ok = v.Float()
	case "string":
		_, ok = v.Str()
	case "object":
		_, ok = v.Map()
	case "array":
		_, ok = v.List()
	case "":
		ok = true
	default:
		return errcode.New(errcode.InvalidPropValue, "ValidateStateType", "unknown state type %q", typ)
	}
	if !ok {
		return errcode.New(errcode.TypeMismatch, "ValidateStateType", "value does not match declared type %q", typ)
	}
	return nil
}
