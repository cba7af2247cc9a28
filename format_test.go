package fat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newBlankBytesBlocks returns an all-zero in-memory block device, as
// opposed to DefaultFATByteBlocks which seeds the keylargo test image.
func newBlankBytesBlocks(numBlocks int) *BytesBlocks {
	blk, err := makeBlockIndexer(512)
	if err != nil {
		panic(err)
	}
	return &BytesBlocks{blk: blk, buf: make([]byte, 512*numBlocks)}
}

// TestFormatAndMount formats a blank device with Formatter and mounts the
// result, exercising the write path (formatFAT and its helpers) that
// init_fat/find_volume otherwise only ever read back.
func TestFormatAndMount(t *testing.T) {
	// A total just above the FAT32 cluster-count floor (clustMaxFAT16)
	// with a 1-sector-per-cluster allocation unit: it yields 65530 clusters.
	const totalSectors = 66586
	dev := newBlankBytesBlocks(totalSectors)

	var fmtr Formatter
	err := fmtr.Format(dev, 512, totalSectors, FormatConfig{
		Label:       "GOFORMAT",
		ClusterSize: 1,
		Format:      FormatFAT32,
	})
	require.NoError(t, err)

	var fsys FS
	attachLogger(&fsys)
	err = fsys.Mount(dev, 512, ModeRead|ModeWrite)
	require.NoError(t, err)

	label, err := fsys.VolumeLabel()
	require.NoError(t, err)
	require.Equal(t, "GOFORMAT", label)

	free, total, err := fsys.FreeClusters()
	require.NoError(t, err)
	require.Greater(t, total, uint32(clustMaxFAT16))
	require.Greater(t, free, uint32(0))
	require.LessOrEqual(t, free, total)

	info, err := fsys.BootSectorInfo()
	require.NoError(t, err)
	require.NotEmpty(t, info)

	err = fsys.Mkdir("/sub")
	require.NoError(t, err)

	var fp File
	err = fsys.OpenFile(&fp, "/sub/hello.txt", ModeRead|ModeWrite|ModeCreateNew)
	require.NoError(t, err)
	const payload = "hello, freshly formatted disk"
	n, err := fp.Write([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, fp.Close())

	freeAfterWrite, _, err := fsys.FreeClusters()
	require.NoError(t, err)
	require.Less(t, freeAfterWrite, free, "writing a file should have consumed at least one cluster")

	var fp2 File
	err = fsys.OpenFile(&fp2, "/sub/hello.txt", ModeRead)
	require.NoError(t, err)
	buf := make([]byte, len(payload))
	n, err = fp2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, payload, string(buf[:n]))
	require.NoError(t, fp2.Close())
}

// TestFormatRejectsUndersizedVolume checks that formatFAT refuses a volume
// too small to hold FAT32's real minimum cluster count, rather than silently
// writing a FAT16-shaped volume with a FAT32 boot sector.
func TestFormatRejectsUndersizedVolume(t *testing.T) {
	dev := newBlankBytesBlocks(4096)
	var fmtr Formatter
	err := fmtr.Format(dev, 512, 4096, FormatConfig{ClusterSize: 1})
	require.Error(t, err)
}

// TestFormatRejectsBadBlockSize checks the fixed 512-byte-sector constraint
// that windowHandler's and FS's own [512]byte windows impose.
func TestFormatRejectsBadBlockSize(t *testing.T) {
	dev := newBlankBytesBlocks(66586)
	var fmtr Formatter
	err := fmtr.Format(dev, 1024, 66586, FormatConfig{ClusterSize: 1})
	require.Error(t, err)
}
