package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalChecksum(t *testing.T) {
	t.Run("key order does not matter", func(t *testing.T) {
		a, err := CanonicalChecksum([]byte(`{"default_category":"기타","category_rules":[]}`))
		require.NoError(t, err)
		b, err := CanonicalChecksum([]byte(`{"category_rules":[],"default_category":"기타"}`))
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("whitespace does not matter", func(t *testing.T) {
		a, err := CanonicalChecksum([]byte(`{"x": 1, "y": [1, 2]}`))
		require.NoError(t, err)
		b, err := CanonicalChecksum([]byte("{\n  \"x\": 1,\n  \"y\": [1,2]\n}"))
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("content matters", func(t *testing.T) {
		a, err := CanonicalChecksum([]byte(`{"x":1}`))
		require.NoError(t, err)
		b, err := CanonicalChecksum([]byte(`{"x":2}`))
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("array order matters", func(t *testing.T) {
		a, err := CanonicalChecksum([]byte(`{"x":[1,2]}`))
		require.NoError(t, err)
		b, err := CanonicalChecksum([]byte(`{"x":[2,1]}`))
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("invalid JSON rejected", func(t *testing.T) {
		_, err := CanonicalChecksum([]byte(`{not json`))
		assert.Error(t, err)
	})
}
