package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeStringRoundTrip(t *testing.T) {
	for s := ShapeSingle; s <= ShapeList; s++ {
		parsed, err := ParseShape(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseShape("tree")
	assert.Error(t, err)
}

func TestShapeProperties(t *testing.T) {
	assert.False(t, ShapeSingle.Optional())
	assert.False(t, ShapeUnion3.Optional())
	assert.True(t, ShapeMaybeSingle.Optional())
	assert.True(t, ShapeMaybeUnion2.Optional())
	assert.True(t, ShapeList.Optional())

	assert.Equal(t, 1, ShapeMaybeSingle.Arity())
	assert.Equal(t, 2, ShapeUnion2.Arity())
	assert.Equal(t, 3, ShapeMaybeUnion3.Arity())
	assert.Equal(t, 0, ShapeList.Arity())
}

func TestUnionShape(t *testing.T) {
	s, err := UnionShape(3, true)
	require.NoError(t, err)
	assert.Equal(t, ShapeMaybeUnion3, s)

	_, err = UnionShape(4, false)
	assert.Error(t, err)
}

func TestRecordChildren(t *testing.T) {
	assert.Equal(t, []NodeID{"a"}, Single{ID: "a"}.Children())
	assert.Empty(t, MaybeSingle{}.Children())
	assert.Empty(t, MaybeUnion{Arity: 2}.Children())
	assert.Equal(t, []NodeID{"b"}, Union{Arity: 2, Tag: 1, ID: "b"}.Children())

	list := List{Entries: []ListEntry{{Key: "k1", ID: "x"}, {Key: "k2", ID: "y"}}}
	assert.Equal(t, []NodeID{"x", "y"}, list.Children())
	assert.Equal(t, []string{"k1", "k2"}, list.Keys())
}

func TestMarshalRecordRoundTrip(t *testing.T) {
	records := []Record{
		Single{ID: "a"},
		MaybeSingle{},
		MaybeSingle{ID: "b"},
		Union{Arity: 2, Tag: 1, ID: "c"},
		Union{Arity: 3, Tag: 2, ID: "d"},
		MaybeUnion{Arity: 3},
		MaybeUnion{Arity: 2, Tag: 1, ID: "e"},
		List{Entries: []ListEntry{{Key: "1", ID: "f"}, {Key: "2", ID: "g"}}},
	}

	for _, rec := range records {
		t.Run(rec.Shape().String(), func(t *testing.T) {
			data, err := MarshalRecord(rec)
			require.NoError(t, err)

			got, err := UnmarshalRecord(data)
			require.NoError(t, err)
			assert.Equal(t, rec.Shape(), got.Shape())
			assert.Equal(t, rec.Children(), got.Children())
		})
	}
}

func TestMarshalRecordWireForm(t *testing.T) {
	data, err := MarshalRecord(Union{Arity: 3, Tag: 2, ID: "n7"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"shape":"union3","id":"n7","tag":2}`, string(data))
}

func TestUnmarshalRecordRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown shape":    `{"shape":"tree"}`,
		"single no child":  `{"shape":"single"}`,
		"union tag range":  `{"shape":"union2","id":"a","tag":2}`,
		"list duplicate":   `{"shape":"list","entries":[{"key":"a","id":"x"},{"key":"a","id":"y"}]}`,
		"list empty child": `{"shape":"list","entries":[{"key":"a","id":""}]}`,
		"malformed":        `{"shape":`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalRecord([]byte(input))
			assert.Error(t, err)
		})
	}
}
