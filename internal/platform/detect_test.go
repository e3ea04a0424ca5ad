package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultModelDirForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "/tmp/xdg-data")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-data/voxjson/models", dir)
}

func TestDefaultModelDirForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.local/share/voxjson/models", dir)
}

func TestDefaultModelDirForMacOS(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("darwin", "/Users/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/voxjson/models", dir)
}

func TestDefaultModelDirForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DefaultModelDirFor("windows", "/Users/dev", "")
	require.Error(t, err)
}

func TestDefaultConfigPathForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	path, err := DefaultConfigPathFor("linux", "/home/dev", "/tmp/xdg-config")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-config/voxjson/config.yaml", path)
}

func TestDefaultConfigPathForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	path, err := DefaultConfigPathFor("linux", "/home/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.config/voxjson/config.yaml", path)
}

func TestDefaultConfigPathForMacOS(t *testing.T) {
	t.Parallel()

	path, err := DefaultConfigPathFor("darwin", "/Users/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/voxjson/config.yaml", path)
}

func TestDefaultConfigPathForEmptyHome(t *testing.T) {
	t.Parallel()

	_, err := DefaultConfigPathFor("linux", "", "")
	require.Error(t, err)
}
