// Package schema renders CUE definitions for registered record types and
// validates records against them.
//
// Each type that implements snapshot.Describer becomes one closed
// definition named after its type. A layout entry is valid when its inner
// record unifies with that definition and is concrete.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/graphsync/internal/codec"
	"github.com/roach88/graphsync/internal/record"
	"github.com/roach88/graphsync/internal/snapshot"
)

// PackageName is the CUE package of generated schemas.
const PackageName = "graphsync"

// preamble holds the definitions every schema shares.
const preamble = `// #Ref is a reference record.
#Ref: {idResource: string}

// #Typed is any typed record.
#Typed: {[string]: {...}}
`

// Generate renders the CUE source for every describable type registered
// with c. Types are emitted in name order, so output is stable.
func Generate(c *codec.Codec) (string, error) {
	type described struct {
		name   string
		obj    snapshot.Serializable
		fields []snapshot.Field
	}
	var types []described
	known := make(map[string]bool)
	for _, typeName := range c.TypeNames() {
		obj, err := c.New(typeName)
		if err != nil {
			return "", err
		}
		if d, ok := obj.(snapshot.Describer); ok {
			types = append(types, described{typeName, obj, d.Describe()})
			known[typeName] = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\n", PackageName)
	b.WriteString(preamble)
	for _, t := range types {
		if err := writeDefinition(&b, t.name, t.obj, t.fields, known); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func writeDefinition(b *strings.Builder, typeName string, obj snapshot.Serializable, fields []snapshot.Field, known map[string]bool) error {
	fmt.Fprintf(b, "\n#%s: {\n", typeName)
	if _, isResource := obj.(snapshot.Resource); isResource {
		fmt.Fprintf(b, "\t%s?: string\n", strconv.Quote(record.RefKey))
	}
	for _, f := range fields {
		expr, err := fieldExpr(f.Kind, f.Elem, f.Type, known)
		if err != nil {
			return fmt.Errorf("schema %s.%s: %w", typeName, f.Name, err)
		}
		marker := ""
		if f.Optional {
			marker = "?"
		}
		fmt.Fprintf(b, "\t%s%s: %s\n", strconv.Quote(f.Name), marker, expr)
	}
	b.WriteString("}\n")
	return nil
}

// fieldExpr maps a field kind to a CUE expression. Object fields naming a
// type without a definition fall back to #Typed.
func fieldExpr(kind, elem snapshot.Kind, typeName string, known map[string]bool) (string, error) {
	switch kind {
	case snapshot.KindString:
		return "string", nil
	case snapshot.KindInt:
		return "int", nil
	case snapshot.KindFloat:
		return "number", nil
	case snapshot.KindBool:
		return "bool", nil
	case snapshot.KindRef:
		return "#Ref", nil
	case snapshot.KindObject:
		if !known[typeName] {
			return "#Typed", nil
		}
		return fmt.Sprintf("{%s: #%s}", strconv.Quote(typeName), typeName), nil
	case snapshot.KindList:
		if elem == snapshot.KindList || elem == "" {
			return "[...]", nil
		}
		inner, err := fieldExpr(elem, "", typeName, known)
		if err != nil {
			return "", err
		}
		return "[..." + inner + "]", nil
	case snapshot.KindAny:
		return "_", nil
	}
	return "", fmt.Errorf("unknown field kind %q", kind)
}
