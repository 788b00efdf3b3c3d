package chatclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behavior every SettingsStore shares.
func storeContract(t *testing.T, s SettingsStore) {
	t.Run("missing module is empty", func(t *testing.T) {
		m, err := s.Get("nothing-here")
		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Empty(t, m)
	})

	t.Run("merge keeps other keys", func(t *testing.T) {
		require.NoError(t, s.Set("merge", map[string]any{"a": "1", "b": "2"}, false))
		require.NoError(t, s.Set("merge", map[string]any{"b": "3", "c": "4"}, false))

		m, err := s.Get("merge")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": "1", "b": "3", "c": "4"}, m)
	})

	t.Run("override replaces", func(t *testing.T) {
		require.NoError(t, s.Set("override", map[string]any{"a": "1"}, false))
		require.NoError(t, s.Set("override", map[string]any{"z": "9"}, true))

		m, err := s.Get("override")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"z": "9"}, m)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		require.NoError(t, s.Set("copy", map[string]any{"a": "1"}, true))
		m, err := s.Get("copy")
		require.NoError(t, err)
		m["a"] = "changed"

		m, err = s.Get("copy")
		require.NoError(t, err)
		assert.Equal(t, "1", m["a"])
	})

	t.Run("user record", func(t *testing.T) {
		st := settings{store: s}
		u, err := st.user()
		require.NoError(t, err)
		assert.Nil(t, u)

		require.NoError(t, st.setReferralCode("ref"))
		want := User{ID: "alice", Secret: "pw", Address: aliceAddress, Roles: []string{"admin"}}
		require.NoError(t, st.setUser(want))

		u, err = st.user()
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, want, *u)

		code, err := st.referralCode()
		require.NoError(t, err)
		assert.Equal(t, "ref", code, "setting the user keeps the referral code")
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestLevelDBStore(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLevelDBStore(dir)
	require.NoError(t, err)
	storeContract(t, s)

	mods, err := s.Modules()
	require.NoError(t, err)
	assert.Contains(t, mods, settingsModule)
	assert.Contains(t, mods, "merge")
	require.NoError(t, s.Close())

	reopened, err := OpenLevelDBStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	u, err := settings{store: reopened}.user()
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.ID)
}

func TestUserValid(t *testing.T) {
	var nilUser *User
	assert.False(t, nilUser.Valid())
	assert.False(t, (&User{ID: "a"}).Valid())
	assert.True(t, (&User{ID: "a", Secret: "s"}).Valid())
}
