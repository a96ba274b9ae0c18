package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashDeterminism(t *testing.T) {
	a := Object{"name": String("Lamp"), "children": Array{}}
	b := Object{"children": Array{}, "name": String("Lamp")}

	h1, err := ContentHash(a)
	require.NoError(t, err)
	h2, err := ContentHash(b)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "key insertion order must not matter")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func hashOf(t *testing.T, v Value) string {
	t.Helper()
	h, err := ContentHash(v)
	require.NoError(t, err)
	return h
}

func TestContentHashChangesWithInput(t *testing.T) {
	h1 := hashOf(t, Object{"x": Int(1)})
	h2 := hashOf(t, Object{"x": Float(1)})
	h3 := hashOf(t, Object{"x": Int(2)})

	assert.NotEqual(t, h1, h2, "Int and Float hash differently")
	assert.NotEqual(t, h1, h3)
}

func TestContentHashDomainSeparated(t *testing.T) {
	canonical, err := MarshalCanonical(Int(1))
	require.NoError(t, err)
	assert.NotEqual(t, hashWithDomain("other/v1", canonical), hashOf(t, Int(1)))
}

func TestContentHashNormalizesUnicode(t *testing.T) {
	decomposed := Object{"Cafe\u0301": String("e\u0301")}
	composed := Object{"Caf\u00e9": String("\u00e9")}
	assert.Equal(t, hashOf(t, composed), hashOf(t, decomposed))

	_, err := ContentHash(Object{"Cafe\u0301": Int(1), "Caf\u00e9": Int(2)})
	assert.ErrorContains(t, err, "collide under NFC")
}
