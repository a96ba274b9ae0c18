package codec

import (
	"github.com/roach88/graphsync/internal/record"
)

// Stringify renders a record as indented JSON text.
func Stringify(rec record.Object) (string, error) {
	return record.StringifyIndent(rec)
}

// Parse reads JSON text back into a record. Parse(Stringify(rec)) is
// structurally equal to rec.
func Parse(text string) (record.Object, error) {
	return record.ParseObject(text)
}
