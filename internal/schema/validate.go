package schema

import (
	"fmt"
	"maps"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/record"
)

// Validation error codes (E200-E299)
const (
	ErrNotTyped     = "E201" // record is not a single-key typed record
	ErrUnknownType  = "E202" // type has no schema definition
	ErrSchemaReject = "E203" // record does not satisfy its definition
	ErrEncode       = "E204" // record cannot be rendered as JSON
)

// ValidationError reports one invalid layout entry.
type ValidationError struct {
	ID       string `json:"id"`
	TypeName string `json:"type,omitempty"`
	Message  string `json:"message"`
	Code     string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	subject := e.ID
	switch {
	case subject == "":
		subject = e.TypeName
	case e.TypeName != "":
		subject += " (" + e.TypeName + ")"
	}
	if subject == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, subject, e.Message)
}

// Schema is a compiled set of definitions.
type Schema struct {
	ctx    *cue.Context
	value  cue.Value
	source string
}

// Compile generates and compiles the schema for c.
func Compile(c *codec.Codec) (*Schema, error) {
	src, err := Generate(c)
	if err != nil {
		return nil, err
	}
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("graphsync.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", firstCUEError(err))
	}
	return &Schema{ctx: ctx, value: v, source: src}, nil
}

// Source returns the CUE text the schema was compiled from.
func (s *Schema) Source() string { return s.source }

// Has reports whether typeName has a definition.
func (s *Schema) Has(typeName string) bool {
	return s.value.LookupPath(cue.ParsePath("#" + typeName)).Exists()
}

// ValidateRecord checks one typed record.
func (s *Schema) ValidateRecord(rec record.Object) error {
	typeName, inner, ok := record.Unwrap(rec)
	if !ok {
		return ValidationError{Message: "record must have exactly one type key", Code: ErrNotTyped}
	}

	def := s.value.LookupPath(cue.ParsePath("#" + typeName))
	if !def.Exists() {
		return ValidationError{TypeName: typeName, Message: "no schema for type", Code: ErrUnknownType}
	}

	data, err := record.MarshalCanonical(inner)
	if err != nil {
		return ValidationError{TypeName: typeName, Message: err.Error(), Code: ErrEncode}
	}
	v := s.ctx.CompileBytes(data, cue.Filename(typeName+".json"))
	if err := v.Err(); err != nil {
		return ValidationError{TypeName: typeName, Message: firstCUEError(err).Error(), Code: ErrEncode}
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return ValidationError{TypeName: typeName, Message: firstCUEError(err).Error(), Code: ErrSchemaReject}
	}
	return nil
}

// ValidateLayout checks every entry of a layout, in id order, and returns
// all failures.
func (s *Schema) ValidateLayout(layout map[string]record.Object) []ValidationError {
	var out []ValidationError
	for _, id := range slices.Sorted(maps.Keys(layout)) {
		err := s.ValidateRecord(layout[id])
		if err == nil {
			continue
		}
		verr := err.(ValidationError)
		verr.ID = id
		out = append(out, verr)
	}
	return out
}

// firstCUEError keeps the first of possibly many CUE errors.
func firstCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return errs[0]
}
