package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgStoreSaveLoad(t *testing.T) {
	s := ArgStore{Dir: filepath.Join(t.TempDir(), "configs")}

	_, ok, err := s.Load("app")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("app", []string{"--server.port=8081", "--spring.profiles.active=prod"}))
	b, err := os.ReadFile(filepath.Join(s.Dir, "app.config"))
	require.NoError(t, err)
	assert.Equal(t, "--server.port=8081 --spring.profiles.active=prod", string(b))

	args, ok, err := s.Load("app")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"--server.port=8081", "--spring.profiles.active=prod"}, args)
}

func TestArgStoreEmptyArgs(t *testing.T) {
	s := ArgStore{Dir: t.TempDir()}
	require.NoError(t, s.Save("app", nil))
	args, ok, err := s.Load("app")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, args)
}

func TestArgStoreListSkipsGlobalConfig(t *testing.T) {
	l := NewLayout(t.TempDir())
	require.NoError(t, Save(l, Default(l)))
	s := NewArgStore(l)
	require.NoError(t, s.Save("b", []string{"-x"}))
	require.NoError(t, s.Save("a", nil))

	list, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []Saved{{ID: "a", Args: ""}, {ID: "b", Args: "-x"}}, list)
}

func TestArgStoreDelete(t *testing.T) {
	s := ArgStore{Dir: t.TempDir()}
	require.NoError(t, s.Save("app", []string{"x"}))
	require.NoError(t, s.Delete("app"))
	assert.ErrorIs(t, s.Delete("app"), fs.ErrNotExist)
}

func TestArgStoreRejectsBadID(t *testing.T) {
	s := ArgStore{Dir: t.TempDir()}
	assert.Error(t, s.Save("../escape", nil))
}
