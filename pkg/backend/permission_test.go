package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePermission(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		p, err := ParsePermission("default")
		require.NoError(t, err)
		assert.Nil(t, p)

		p, err = ParsePermission("DEFAULT")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("Symbolic", func(t *testing.T) {
		cases := map[string]Permission{
			"-rwxrwxrwx": 0o777,
			"-rwxr-xr-x": 0o755,
			"-rw-r-----": 0o640,
			"----------": 0,
			"-RW-R--R--": 0o644,
		}
		for in, want := range cases {
			p, err := ParsePermission(in)
			require.NoError(t, err, in)
			require.NotNil(t, p, in)
			assert.Equal(t, want, *p, in)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, in := range []string{"rwxrwxrwx", "-rwxrwxrw", "0755", "-xwrxwrxwr", "drwxr-xr-x"} {
			_, err := ParsePermission(in)
			assert.True(t, errors.Is(err, ErrInvalidArgument), in)
		}
	})
}

func TestPermissionString(t *testing.T) {
	assert.Equal(t, "-rwxr-xr-x", Permission(0o755).String())
	assert.Equal(t, "-rw-------", Permission(0o600).String())
	assert.Equal(t, "default", FormatPermission(nil))

	p := NewPermission(0o40750)
	assert.Equal(t, "-rwxr-x---", FormatPermission(&p))
}

func TestPermissionAllows(t *testing.T) {
	p := Permission(0o750)

	assert.True(t, p.Allows(0o2, true, false))
	assert.True(t, p.Allows(0o1, false, true))
	assert.False(t, p.Allows(0o2, false, true))
	assert.False(t, p.Allows(0o4, false, false))
}
