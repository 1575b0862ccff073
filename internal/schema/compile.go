package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Type schemas are authored in CUE under a top-level "types" struct:
//
//	types: {
//		User: {
//			attributes: {
//				id:    {kind: "int", primary_key: true}
//				email: {kind: "text", unique: true}
//				name:  {kind: "text"}
//				born:  {kind: "date"}
//			}
//			relationships: {
//				team: {target: "Team"}
//				tags: {target: "Tag", many: true}
//			}
//		}
//	}
//
// CompileRegistry parses such a value into a Registry. Uses the CUE SDK's
// Go API directly (not CLI subprocess).

// CompileError reports a schema definition fault with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileString compiles CUE source text into a Registry.
func CompileString(src string) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	return CompileRegistry(v)
}

// CompileRegistry parses a CUE value holding a top-level "types" struct
// into a Registry of type schemas.
func CompileRegistry(v cue.Value) (*Registry, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	typesVal := v.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		return nil, &CompileError{
			Field:   "types",
			Message: "top-level types struct is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	for iter.Next() {
		ts, err := CompileType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		if err := registry.Register(ts); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// CompileType parses one type definition into a TypeSchema.
func CompileType(name string, v cue.Value) (*TypeSchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	ts := &TypeSchema{
		Name:          name,
		Attributes:    make(map[string]Attribute),
		Relationships: make(map[string]Relationship),
	}

	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if attrsVal.Exists() {
		iter, err := attrsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			attr, err := parseAttribute(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			ts.Attributes[attr.Name] = attr
		}
	}

	relsVal := v.LookupPath(cue.ParsePath("relationships"))
	if relsVal.Exists() {
		iter, err := relsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			rel, err := parseRelationship(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			ts.Relationships[rel.Name] = rel
		}
	}

	if len(ts.Attributes) == 0 && len(ts.Relationships) == 0 {
		return nil, &CompileError{
			Field:   name,
			Message: "type must declare at least one attribute or relationship",
			Pos:     v.Pos(),
		}
	}

	// Attribute and relationship names share one namespace on the
	// persisted object.
	for relName := range ts.Relationships {
		if _, clash := ts.Attributes[relName]; clash {
			return nil, &CompileError{
				Field:   name + "." + relName,
				Message: "declared as both attribute and relationship",
				Pos:     v.Pos(),
			}
		}
	}

	return ts, nil
}

// parseAttribute parses a scalar attribute definition.
// The kind defaults to "text"; primary_key and unique default to false.
func parseAttribute(name string, v cue.Value) (Attribute, error) {
	attr := Attribute{Name: name, Kind: KindText}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if kindVal.Exists() {
		kind, err := kindVal.String()
		if err != nil {
			return attr, formatCUEError(err)
		}
		if !validKinds[Kind(kind)] {
			return attr, &CompileError{
				Field:   name + ".kind",
				Message: fmt.Sprintf("unknown semantic kind %q", kind),
				Pos:     kindVal.Pos(),
			}
		}
		attr.Kind = Kind(kind)
	}

	pkVal := v.LookupPath(cue.ParsePath("primary_key"))
	if pkVal.Exists() {
		pk, err := pkVal.Bool()
		if err != nil {
			return attr, formatCUEError(err)
		}
		attr.PrimaryKey = pk
	}

	uniqueVal := v.LookupPath(cue.ParsePath("unique"))
	if uniqueVal.Exists() {
		unique, err := uniqueVal.Bool()
		if err != nil {
			return attr, formatCUEError(err)
		}
		attr.Unique = unique
	}

	return attr, nil
}

// parseRelationship parses a relationship definition. target is required;
// many defaults to false (to-one).
func parseRelationship(name string, v cue.Value) (Relationship, error) {
	rel := Relationship{Name: name}

	targetVal := v.LookupPath(cue.ParsePath("target"))
	if !targetVal.Exists() {
		return rel, &CompileError{
			Field:   name + ".target",
			Message: "target type is required",
			Pos:     v.Pos(),
		}
	}
	target, err := targetVal.String()
	if err != nil {
		return rel, formatCUEError(err)
	}
	rel.Target = target

	manyVal := v.LookupPath(cue.ParsePath("many"))
	if manyVal.Exists() {
		many, err := manyVal.Bool()
		if err != nil {
			return rel, formatCUEError(err)
		}
		rel.ToMany = many
	}

	return rel, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
