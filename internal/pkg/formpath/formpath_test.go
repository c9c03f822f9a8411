package formpath_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/drafts/internal/pkg/formpath"
)

func fields(pairs ...string) []formpath.Field {
	out := make([]formpath.Field, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, formpath.Field{Name: pairs[i], Value: pairs[i+1]})
	}
	return out
}

func TestParse(t *testing.T) {
	t.Run("sibling keys share a group", func(t *testing.T) {
		got := formpath.Parse(fields("A[x]", "1", "A[y]", "2"))
		assert.Equal(t, map[string]any{
			"A": map[string]any{"x": "1", "y": "2"},
		}, got.ToMap())
	})

	t.Run("nested path", func(t *testing.T) {
		got := formpath.Parse(fields("Group[Field][Sub]", "v"))
		assert.Equal(t, map[string]any{
			"Group": map[string]any{"Field": map[string]any{"Sub": "v"}},
		}, got.ToMap())
	})

	t.Run("plain name", func(t *testing.T) {
		got := formpath.Parse(fields("plain", "v"))
		assert.Equal(t, map[string]any{"plain": "v"}, got.ToMap())
	})

	t.Run("later duplicate path wins", func(t *testing.T) {
		got := formpath.Parse(fields("A[x]", "1", "A[x]", "2"))
		assert.Equal(t, map[string]any{"A": map[string]any{"x": "2"}}, got.ToMap())
		assert.Equal(t, []string{"A"}, got.Keys())
	})

	t.Run("spaces in prefix become underscores", func(t *testing.T) {
		got := formpath.Parse(fields("Tuto Details[Short description]", "hello"))
		v, ok := got.Lookup("Tuto_Details", "Short description")
		require.True(t, ok)
		assert.Equal(t, "hello", v)
	})

	t.Run("malformed brackets stay flat", func(t *testing.T) {
		got := formpath.Parse(fields("A[x", "1", "B]y[", "2", "C[[d]]", "3"))
		assert.Equal(t, map[string]any{"A[x": "1", "B]y[": "2", "C[[d]]": "3"}, got.ToMap())
	})

	t.Run("empty key and empty prefix", func(t *testing.T) {
		got := formpath.Parse(fields("A[]", "1", "[k]", "2"))
		assert.Equal(t, map[string]any{
			"A": map[string]any{"": "1"},
			"":  map[string]any{"k": "2"},
		}, got.ToMap())
	})

	t.Run("trailing text after bracket descends", func(t *testing.T) {
		got := formpath.Parse(fields("A[b]c", "1"))
		assert.Equal(t, map[string]any{"A": map[string]any{"bc": "1"}}, got.ToMap())
	})

	t.Run("group replaces an earlier leaf and vice versa", func(t *testing.T) {
		got := formpath.Parse(fields("A", "flat", "A[x]", "1"))
		assert.Equal(t, map[string]any{"A": map[string]any{"x": "1"}}, got.ToMap())

		got = formpath.Parse(fields("A[x]", "1", "A", "flat"))
		assert.Equal(t, map[string]any{"A": "flat"}, got.ToMap())
	})

	t.Run("deterministic", func(t *testing.T) {
		in := fields("B[z]", "1", "A[y][q]", "2", "wpSave", "x", "A[y][p]", "3")
		first, err := json.Marshal(formpath.Parse(in))
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := json.Marshal(formpath.Parse(in))
			require.NoError(t, err)
			assert.Equal(t, string(first), string(again))
		}
		assert.Equal(t, `{"B":{"z":"1"},"A":{"y":{"q":"2","p":"3"}},"wpSave":"x"}`, string(first))
	})
}

func TestNodeJSON(t *testing.T) {
	t.Run("keeps key order", func(t *testing.T) {
		raw := []byte(`{"z":"1","a":{"m":"2","b":"3"}}`)
		var n formpath.Node
		require.NoError(t, json.Unmarshal(raw, &n))
		assert.Equal(t, []string{"z", "a"}, n.Keys())

		out, err := json.Marshal(&n)
		require.NoError(t, err)
		assert.JSONEq(t, string(raw), string(out))
		assert.Equal(t, string(raw), string(out))
	})

	t.Run("scalars and arrays", func(t *testing.T) {
		var n formpath.Node
		require.NoError(t, json.Unmarshal([]byte(`{"n":12,"b":true,"x":null,"l":["a","b"]}`), &n))
		assert.Equal(t, map[string]any{
			"n": "12",
			"b": "true",
			"x": "",
			"l": map[string]any{"0": "a", "1": "b"},
		}, n.ToMap())
	})

	t.Run("rejects non-object", func(t *testing.T) {
		var n formpath.Node
		assert.Error(t, json.Unmarshal([]byte(`["a"]`), &n))
	})
}

func TestDecodeFields(t *testing.T) {
	got, err := formpath.DecodeFields([]byte(`[{"name":"A[x]","value":"1"},{"name":"wpSave","value":""}]`))
	require.NoError(t, err)
	assert.Equal(t, fields("A[x]", "1", "wpSave", ""), got)

	_, err = formpath.DecodeFields([]byte(`{`))
	assert.Error(t, err)
}

func TestFieldsReparse(t *testing.T) {
	in := fields(
		"Tuto Details[Type]", "Creation",
		"Step[1][Title]", "Cut",
		"Step[2][Title]", "Boil",
		formpath.FreeTextKey, "body",
	)
	tree := formpath.Parse(in)

	flat := tree.Fields()
	assert.Equal(t, fields(
		"Tuto_Details[Type]", "Creation",
		"Step[1][Title]", "Cut",
		"Step[2][Title]", "Boil",
		formpath.FreeTextKey, "body",
	), flat)
	assert.Equal(t, tree.ToMap(), formpath.Parse(flat).ToMap())
	assert.Empty(t, formpath.NewNode().Fields())
}
