package fat

import (
	"encoding/binary"
	"log/slog"
	"strings"
)

// f_mkdir creates a new empty directory at path, seeding it with "." and
// ".." entries. The parent directory is grown automatically if it has no
// free entry left, same as dir.alloc already does when registering a file.
func (fsys *FS) f_mkdir(path string) fileResult {
	fsys.trace("fs:f_mkdir", slog.String("path", path))
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	} else if fsys.perm&ModeWrite == 0 {
		return frDenied
	}
	path += "\x00"
	var dj dir
	dj.obj.fs = fsys
	fr := dj.follow_path(path)
	if fr == frOK {
		if dj.fn[nsFLAG]&nsNONAME != 0 {
			return frInvalidName // Cannot create the origin directory.
		}
		return frExist
	}
	if fr != frNoFile {
		return fr
	}

	parentClust := dj.obj.sclust
	fr = dj.register()
	if fr != frOK {
		return fr
	}

	dcl := dj.obj.create_chain(0)
	switch dcl {
	case 0:
		return frDenied
	case 1:
		return frIntErr
	case maxu32:
		return frDiskErr
	}
	fr = fsys.dir_clear(dcl)
	if fr != frOK {
		return fr
	}

	// dir_clear leaves the window loaded with the zeroed first sector of
	// the new cluster. Seed "." and ".." directly into it.
	tm := fsys.time()
	var dot, dotdot [11]byte
	for i := range dot {
		dot[i], dotdot[i] = ' ', ' '
	}
	dot[0] = '.'
	dotdot[0], dotdot[1] = '.', '.'

	ent := fsys.win[:sizeDirEntry]
	copy(ent[dirNameOff:], dot[:])
	ent[dirAttrOff] = amDIR
	binary.LittleEndian.PutUint32(ent[dirCrtTimeOff:], tm)
	binary.LittleEndian.PutUint32(ent[dirModTimeOff:], tm)
	fsys.st_clust(ent, dcl)

	ent2 := fsys.win[sizeDirEntry : 2*sizeDirEntry]
	copy(ent2[dirNameOff:], dotdot[:])
	ent2[dirAttrOff] = amDIR
	binary.LittleEndian.PutUint32(ent2[dirCrtTimeOff:], tm)
	binary.LittleEndian.PutUint32(ent2[dirModTimeOff:], tm)
	fsys.st_clust(ent2, parentClust) // 0 when the parent is the root, by convention.
	fsys.wflag = 1
	fr = fsys.sync_window()
	if fr != frOK {
		return fr
	}

	// Point the entry just registered in the parent at the new cluster.
	fr = fsys.move_window(dj.sect)
	if fr != frOK {
		return fr
	}
	dj.dir[dirAttrOff] = amDIR
	binary.LittleEndian.PutUint32(dj.dir[dirCrtTimeOff:], tm)
	binary.LittleEndian.PutUint32(dj.dir[dirModTimeOff:], tm)
	fsys.st_clust(dj.dir, dcl)
	fsys.wflag = 1
	return fsys.sync_window()
}

// f_unlink removes the file or empty directory at path.
func (fsys *FS) f_unlink(path string) fileResult {
	fsys.trace("fs:f_unlink", slog.String("path", path))
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	} else if fsys.perm&ModeWrite == 0 {
		return frDenied
	}
	path += "\x00"
	var dj dir
	dj.obj.fs = fsys
	fr := dj.follow_path(path)
	if fr != frOK {
		if fr == frNoFile {
			fr = frNoPath
		}
		return fr
	}
	if dj.fn[nsFLAG]&nsNONAME != 0 {
		return frInvalidName // Cannot remove the origin directory.
	}
	if dj.obj.attr&amRDO != 0 {
		return frDenied
	}
	dclust := fsys.ld_clust(dj.dir)

	if dj.obj.attr&amDIR != 0 {
		if dclust != 0 && dclust == fsys.cwd_clust {
			return frDenied // Cannot remove the current working directory.
		}
		var sub dir
		sub.obj.fs = fsys
		sub.obj.sclust = dclust
		fr = sub.sdi(2 * sizeDirEntry) // Skip "." and "..".
		if fr != frOK {
			return fr
		}
		for {
			fr = fsys.move_window(sub.sect)
			if fr != frOK {
				return fr
			}
			ds := dirSector{data: sub.dir}
			if ds.isFree() {
				break // End of table: directory is empty.
			}
			if !ds.isDeleted() && ds.attributes()&amMASK != amVOL {
				return frDenied // Directory not empty.
			}
			fr = sub.next(false)
			if fr == frNoFile {
				break
			} else if fr != frOK {
				return fr
			}
		}
	}

	fr = fsys.remove_lfn(&dj)
	if fr != frOK {
		return fr
	}
	fr = fsys.sync_window()
	if fr != frOK {
		return fr
	}
	if dclust != 0 {
		fr = dj.obj.remove_chain(dclust, 0)
	}
	return fr
}

// remove_lfn clears the long name entry run preceding dp's current short
// name entry, as well as the short name entry itself. dir.next already
// crosses sector and cluster boundaries, so a name spanning several of
// either is fully cleaned up by the walk below.
func (fsys *FS) remove_lfn(dp *dir) fileResult {
	if dp.blk_ofs == maxu32 {
		// No LFN run: only the short name entry needs clearing.
		fr := fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		dp.dir[dirNameOff] = mskDDEM
		fsys.wflag = 1
		return frOK
	}
	end := dp.dptr
	fr := dp.sdi(dp.blk_ofs)
	for fr == frOK {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		dp.dir[dirNameOff] = mskDDEM
		fsys.wflag = 1
		if dp.dptr >= end {
			break
		}
		fr = dp.next(false)
	}
	return fr
}

// f_chdir sets the current working directory, used to resolve relative
// paths in subsequent calls.
func (fsys *FS) f_chdir(path string) fileResult {
	fsys.trace("fs:f_chdir", slog.String("path", path))
	if fsys.fstype == fstypeExFAT {
		return frUnsupported
	}
	path += "\x00"
	var dj dir
	dj.obj.fs = fsys
	fr := dj.follow_path(path)
	if fr != frOK {
		if fr == frNoFile {
			fr = frNoPath
		}
		return fr
	}
	if dj.fn[nsFLAG]&nsNONAME != 0 {
		fsys.cwd_clust = dj.obj.sclust
		return frOK
	}
	if dj.obj.attr&amDIR == 0 {
		return frNoPath
	}
	fsys.cwd_clust = fsys.ld_clust(dj.dir)
	return frOK
}

// f_getcwd reconstructs the absolute path of the current working directory
// by walking ".." entries up to the root, locating each directory's own
// name in its parent by matching first cluster along the way.
func (fsys *FS) f_getcwd() (string, fileResult) {
	fsys.trace("fs:f_getcwd")
	if fsys.cwd_clust == 0 {
		return "/", frOK
	}
	var names []string
	cur := fsys.cwd_clust
	const maxDepth = 256 // Guards against a corrupt ".." cycle.
	for i := 0; cur != 0; i++ {
		if i >= maxDepth {
			return "", frIntErr
		}
		var dp dir
		dp.obj.fs = fsys
		dp.obj.sclust = cur
		fr := dp.sdi(sizeDirEntry) // ".." is always the second entry.
		if fr != frOK {
			return "", fr
		}
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			return "", fr
		}
		parent := fsys.ld_clust(dp.dir)

		var pd dir
		pd.obj.fs = fsys
		pd.obj.sclust = parent
		fr = pd.sdi(0)
		if fr != frOK {
			return "", fr
		}
		var name string
		for {
			fr = pd.read(false)
			if fr != frOK {
				return "", frNoPath // Entry for cur vanished from its parent.
			}
			if fsys.ld_clust(pd.dir) == cur && pd.obj.attr&amDIR != 0 {
				var fi FileInfo
				pd.get_fileinfo(&fi)
				name = fi.Name()
				break
			}
			fr = pd.next(false)
			if fr != frOK {
				return "", frNoPath
			}
		}
		names = append(names, name)
		cur = parent
	}
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(names[i])
	}
	return b.String(), frOK
}

// f_getfree reports the number of free clusters and the total cluster
// count. It trusts the FSInfo-derived count kept up to date by
// create_chain/remove_chain, falling back to a full FAT scan if FSInfo
// was missing or invalid at mount time.
func (fsys *FS) f_getfree() (nfree, nclst uint32, fr fileResult) {
	fsys.trace("fs:f_getfree")
	if fsys.fstype == fstypeExFAT {
		return 0, 0, frUnsupported
	}
	nclst = fsys.n_fatent - 2
	if fsys.free_clst <= nclst {
		return fsys.free_clst, nclst, frOK
	}
	var obj objid
	obj.fs = fsys
	var n uint32
	for clst := uint32(2); clst < fsys.n_fatent; clst++ {
		switch obj.clusterstat(clst) {
		case 0:
			n++
		case 1:
			return 0, 0, frIntErr
		case maxu32:
			return 0, 0, frDiskErr
		}
	}
	fsys.free_clst = n
	fsys.fsi_flag |= 1
	return n, nclst, frOK
}

// f_getlabel scans the root directory for a volume label entry, returning
// an empty string if none is set.
func (fsys *FS) f_getlabel() (string, fileResult) {
	fsys.trace("fs:f_getlabel")
	var dp dir
	dp.obj.fs = fsys
	dp.obj.sclust = 0 // Root directory.
	fr := dp.sdi(0)
	for fr == frOK {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			return "", fr
		}
		ds := dirSector{data: dp.dir}
		if ds.isFree() {
			return "", frOK // No label.
		}
		if !ds.isDeleted() && ds.attributes()&amMASK == amVOL {
			return string(clipname(dp.dir[dirNameOff : dirNameOff+11])), frOK
		}
		fr = dp.next(false)
	}
	if fr == frNoFile {
		fr = frOK
	}
	return "", fr
}
