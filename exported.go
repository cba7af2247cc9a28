package fat

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"
)

// SetLogger attaches a structured logger to the filesystem. Passing nil
// disables logging. Call before Mount to capture the mount attempt itself.
func (fsys *FS) SetLogger(l *slog.Logger) {
	fsys.log = l
}

// Mode represents the file access mode used in Open.
type Mode uint8

// File access modes for calling Open.
const (
	ModeRead  Mode = Mode(faRead)
	ModeWrite Mode = Mode(faWrite)
	ModeRW    Mode = ModeRead | ModeWrite

	ModeCreateNew    Mode = Mode(faCreateNew)
	ModeCreateAlways Mode = Mode(faCreateAlways)
	ModeOpenExisting Mode = Mode(faOpenExisting)
	ModeOpenAppend   Mode = Mode(faOpenAppend)

	allowedModes = ModeRead | ModeWrite | ModeCreateNew | ModeCreateAlways | ModeOpenExisting | ModeOpenAppend
)

var (
	errInvalidMode   = errors.New("invalid fat access mode")
	errForbiddenMode = errors.New("forbidden fat access mode")
)

// Dir represents an open FAT directory.
type Dir struct {
	dir
	inlineInfo FileInfo
}

// Mount mounts the FAT file system on the given block device and sector size.
// It immediately invalidates previously open files and directories pointing to the same FS.
// Mode should be ModeRead, ModeWrite, or both.
func (fsys *FS) Mount(bd BlockDevice, blockSize int, mode Mode) error {
	if mode&^(ModeRead|ModeWrite) != 0 {
		return errInvalidMode
	} else if blockSize > math.MaxUint16 {
		return errors.New("sector size too large")
	}
	fr := fsys.mount_volume(bd, uint16(blockSize), uint8(mode))
	if fr != frOK {
		return fr
	}
	return nil
}

// OpenFile opens the named file for reading or writing, depending on the mode.
// A path starting with a slash is resolved from the volume root; any other
// path is resolved from the current working directory set by Chdir.
func (fsys *FS) OpenFile(fp *File, path string, mode Mode) error {
	prohibited := (mode & ModeRW) &^ fsys.perm
	if mode&^allowedModes != 0 {
		return errInvalidMode
	} else if prohibited != 0 {
		return errForbiddenMode
	}
	fr := fsys.f_open(fp, path, accessmode(mode))
	if fr != frOK {
		return fr
	}
	return nil
}

// Read reads up to len(buf) bytes from the File. It implements the [io.Reader] interface.
func (fp *File) Read(buf []byte) (int, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	br, fr := fp.f_read(buf)
	if fr != frOK {
		return br, fr
	} else if br == 0 && fr == frOK {
		return br, io.EOF
	}
	return br, nil
}

// Write writes len(buf) bytes to the File. It implements the [io.Writer] interface.
func (fp *File) Write(buf []byte) (int, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	bw, fr := fp.f_write(buf)
	if fr != frOK {
		return bw, fr
	}
	return bw, nil
}

// Close closes the file and syncs any unwritten data to the underlying device.
func (fp *File) Close() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}

	fr = fp.f_close()
	if fr != frOK {
		return fr
	}
	return nil
}

// Sync commits the current contents of the file to the filesystem immediately.
func (fp *File) Sync() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}

	fr = fp.obj.fs.f_sync(fp)
	if fr != frOK {
		return fr
	}
	return nil
}

// Mode returns the lowest 2 bits of the file's permission (read, write or both).
func (fp *File) Mode() Mode {
	return Mode(fp.flag & 3)
}

// OpenDir opens the named directory for reading.
func (fsys *FS) OpenDir(dp *Dir, path string) error {
	fr := fsys.f_opendir(&dp.dir, path)
	if fr != frOK {
		return fr
	}
	return nil
}

// ForEachFile calls the callback function for each file in the directory.
func (dp *Dir) ForEachFile(callback func(*FileInfo) error) error {
	fr := dp.obj.validate()
	if fr != frOK {
		return fr
	} else if dp.obj.fs.perm&ModeRead == 0 {
		return errForbiddenMode
	}

	fr = dp.sdi(0) // Rewind directory.
	if fr != frOK {
		return fr
	}
	for {
		fr := dp.f_readdir(&dp.inlineInfo)
		if fr != frOK {
			return fr
		} else if dp.inlineInfo.fname[0] == 0 {
			return nil // End of directory.
		}
		err := callback(&dp.inlineInfo)
		if err != nil {
			return err
		}
	}
}

// Mkdir creates a new directory at path. The parent directory must already
// exist.
func (fsys *FS) Mkdir(path string) error {
	fr := fsys.f_mkdir(path)
	if fr != frOK {
		return fr
	}
	return nil
}

// Remove deletes the file or empty directory at path. It returns an error
// if path names a non-empty directory, the current working directory, or
// a read-only entry.
func (fsys *FS) Remove(path string) error {
	fr := fsys.f_unlink(path)
	if fr != frOK {
		return fr
	}
	return nil
}

// Chdir sets the current working directory used to resolve relative paths
// passed to OpenFile, OpenDir, Mkdir, Remove, and Chdir itself.
func (fsys *FS) Chdir(path string) error {
	fr := fsys.f_chdir(path)
	if fr != frOK {
		return fr
	}
	return nil
}

// Getwd returns an absolute path naming the current working directory.
func (fsys *FS) Getwd() (string, error) {
	dir, fr := fsys.f_getcwd()
	if fr != frOK {
		return "", fr
	}
	return dir, nil
}

// FreeClusters returns the number of unallocated clusters and the total
// cluster count of the mounted volume.
func (fsys *FS) FreeClusters() (free, total uint32, err error) {
	free, total, fr := fsys.f_getfree()
	if fr != frOK {
		return 0, 0, fr
	}
	return free, total, nil
}

// ClusterSize returns the size of a single allocation unit, in bytes.
func (fsys *FS) ClusterSize() int64 {
	return int64(fsys.csize) * int64(fsys.ssize)
}

// VolumeLabel returns the volume label stored in the root directory, or
// the empty string if the volume has none.
func (fsys *FS) VolumeLabel() (string, error) {
	label, fr := fsys.f_getlabel()
	if fr != frOK {
		return "", fr
	}
	return label, nil
}

// BootSectorInfo returns a human-readable dump of the mounted volume's BIOS
// Parameter Block and FSInfo sector, read directly off the device.
func (fsys *FS) BootSectorInfo() (string, error) {
	fr := fsys.move_window(fsys.volbase)
	if fr != frOK {
		return "", fr
	}
	bs := biosParamBlock{data: append([]byte(nil), fsys.win[:]...)}
	var b strings.Builder
	b.WriteString(bs.String())

	fr = fsys.move_window(fsys.volbase + 1)
	if fr != frOK {
		return "", fr
	}
	fsi := fsinfoSector{data: append([]byte(nil), fsys.win[:]...)}
	b.WriteByte('\n')
	b.WriteString(fsi.String())
	return b.String(), nil
}

// AlternateName returns the alternate name of the file.
func (finfo *FileInfo) AlternateName() string {
	return str(finfo.altname[:])
}

// Name returns the name of the file.
func (finfo *FileInfo) Name() string {
	return str(finfo.fname[:])
}

// Size returns the size of the file in bytes.
func (finfo *FileInfo) Size() int64 {
	return finfo.fsize
}

// ModTime returns the modification time of the file.
func (finfo *FileInfo) ModTime() time.Time {
	dt := datetime{time: finfo.ftime, date: finfo.fdate}
	return dt.Time()
}

// IsDir returns true if the file is a directory.
func (finfo *FileInfo) IsDir() bool {
	return finfo.fattrib&amDIR != 0
}
