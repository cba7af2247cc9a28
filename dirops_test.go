package fat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMkdirRemove(t *testing.T) {
	fs, _ := initTestFAT()

	err := fs.Mkdir("/newdir")
	require.NoError(t, err)

	err = fs.Mkdir("/newdir")
	require.Error(t, err, "creating an already-existing directory must fail")

	var dp Dir
	err = fs.OpenDir(&dp, "/newdir")
	require.NoError(t, err)

	var seen []string
	err = dp.ForEachFile(func(fi *FileInfo) error {
		seen = append(seen, fi.Name())
		return nil
	})
	require.NoError(t, err)
	require.Empty(t, seen, "a freshly created directory must have no visible entries")

	err = fs.Remove("/newdir")
	require.NoError(t, err)

	err = fs.OpenDir(&dp, "/newdir")
	require.Error(t, err, "directory should no longer exist after Remove")
}

func TestRemoveNonEmptyDirFails(t *testing.T) {
	fs, _ := initTestFAT()
	err := fs.Remove("/rootdir")
	require.Error(t, err, "rootdir contains dirfile and must refuse removal")
}

func TestRemoveFile(t *testing.T) {
	fs, _ := initTestFAT()
	err := fs.Remove("/rootfile")
	require.NoError(t, err)

	var fp File
	err = fs.OpenFile(&fp, "/rootfile", ModeRead)
	require.Error(t, err)
}

func TestChdirGetwd(t *testing.T) {
	fs, _ := initTestFAT()

	wd, err := fs.Getwd()
	require.NoError(t, err)
	require.Equal(t, "/", wd)

	err = fs.Chdir("/rootdir")
	require.NoError(t, err)

	wd, err = fs.Getwd()
	require.NoError(t, err)
	require.Equal(t, "/rootdir", wd)

	// Relative path resolution should now be rooted at /rootdir.
	var fp File
	err = fs.OpenFile(&fp, "dirfile", ModeRead)
	require.NoError(t, err)
	fp.Close()

	err = fs.Chdir("/")
	require.NoError(t, err)
	wd, err = fs.Getwd()
	require.NoError(t, err)
	require.Equal(t, "/", wd)
}

func TestChdirRejectsFile(t *testing.T) {
	fs, _ := initTestFAT()
	err := fs.Chdir("/rootfile")
	require.Error(t, err, "cannot chdir into a regular file")
}

func TestFreeClusters(t *testing.T) {
	fs, _ := initTestFAT()
	free, total, err := fs.FreeClusters()
	require.NoError(t, err)
	require.Greater(t, total, uint32(0))
	require.LessOrEqual(t, free, total)
}

func TestVolumeLabel(t *testing.T) {
	fs, _ := initTestFAT()
	label, err := fs.VolumeLabel()
	require.NoError(t, err)
	require.Equal(t, "keylargo", label)
}

func TestClusterSize(t *testing.T) {
	fs, _ := initTestFAT()
	require.Greater(t, fs.ClusterSize(), int64(0))
}
