package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []any{
		true,
		false,
		int64(42),
		3.14,
		"hello",
		[]byte("raw-bytes"),
		[]any{"a", int64(1), true},
		map[string]any{"name": "balu", "age": int64(30)},
	}

	for _, v := range cases {
		enc, err := Encode(v)
		require.NoError(t, err)

		got, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestEncodeNilIsNullKind(t *testing.T) {
	enc, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, KindNull, enc.Kind)

	v, err := Decode(enc)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEncodeEqualIsByteExact(t *testing.T) {
	a, err := Encode(map[string]any{"x": int64(1), "y": int64(2)})
	require.NoError(t, err)
	b, err := Encode(map[string]any{"y": int64(2), "x": int64(1)})
	require.NoError(t, err)

	// json.Marshal of a map sorts keys, so field order in the Go literal
	// must not affect the canonical encoding.
	assert.True(t, a.Equal(b))
}

func TestPromoteScalars(t *testing.T) {
	assert.Equal(t, true, Promote("true"))
	assert.Equal(t, false, Promote("false"))
	assert.Equal(t, int64(30), Promote("30"))
	assert.Equal(t, "balu", Promote("balu"))
}

func TestPromoteJSONObjectAndArray(t *testing.T) {
	got := Promote(`{"name":"balu","age":30}`)
	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "balu", m["name"])
	assert.Equal(t, float64(30), m["age"])

	arr := Promote(`[1,2,3]`)
	_, ok = arr.([]any)
	require.True(t, ok)
}

func TestPromoteMalformedJSONStaysText(t *testing.T) {
	got := Promote(`{not valid json}`)
	assert.Equal(t, `{not valid json}`, got)
}

func TestGetPathNested(t *testing.T) {
	root := map[string]any{
		"name": "balu",
		"address": map[string]any{
			"city": "blr",
		},
		"tags": []any{"a", "b", "c"},
	}

	v, ok := GetPath(root, []string{"name"})
	require.True(t, ok)
	assert.Equal(t, "balu", v)

	v, ok = GetPath(root, []string{"address", "city"})
	require.True(t, ok)
	assert.Equal(t, "blr", v)

	v, ok = GetPath(root, []string{"tags", "1"})
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = GetPath(root, []string{"missing"})
	assert.False(t, ok)
}

func TestSetPathUpdatesNested(t *testing.T) {
	root := map[string]any{
		"address": map[string]any{"city": "blr"},
	}

	updated, err := SetPath(root, []string{"address", "city"}, "hyd")
	require.NoError(t, err)

	v, ok := GetPath(updated, []string{"address", "city"})
	require.True(t, ok)
	assert.Equal(t, "hyd", v)
}

func TestSetPathMissingIntermediateFails(t *testing.T) {
	root := map[string]any{"name": "balu"}
	_, err := SetPath(root, []string{"address", "city"}, "hyd")
	assert.Error(t, err)
}

func TestSetPathWrongShapeFails(t *testing.T) {
	root := map[string]any{"name": "balu"}
	_, err := SetPath(root, []string{"name", "first"}, "b")
	assert.Error(t, err)
}
