package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	sum, size, err := Checksum(strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
	assert.Equal(t, int64(5), size)

	sum, size, err = Checksum(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sum)
	assert.Equal(t, int64(0), size)
}

func TestKey(t *testing.T) {
	sum := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	cases := []struct {
		name      string
		extension string
		want      string
	}{
		{"plain", "pdf", "2c/f2/" + sum + ".pdf"},
		{"dotted", ".PDF", "2c/f2/" + sum + ".pdf"},
		{"empty defaults to bin", "", "2c/f2/" + sum + ".bin"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Key(sum, tc.extension))
		})
	}
}
