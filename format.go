package fat

import (
	"encoding/binary"
	"errors"
)

type Format uint8

const (
	_FormatUnknown Format = iota
	FormatFAT12
	FormatFAT16
	FormatFAT32
	FormatExFAT
)

// Formatter writes a fresh filesystem onto a BlockDevice. It reuses the
// same single-sector window/mirroring machinery the mounted FS itself
// relies on for disk access.
type Formatter struct {
	wh windowHandler
}

type FormatConfig struct {
	Label string
	// ClusterSize is the size of a FAT cluster in blocks.
	ClusterSize int
	// Format selects the FAT format to use. If not specified will use FAT32.
	Format Format
	// Number of reserved blocks for FAT tables. Either 1 or 2. 0 defaults to 2.
	// NumberOfFATs uint8
}

func (f *Formatter) Format(bd BlockDevice, blocksize, fsSizeInBlocks int, cfg FormatConfig) error {
	if cfg.Format == 0 {
		cfg.Format = FormatFAT32
	}
	if blocksize != 512 || fsSizeInBlocks <= 32 || bd == nil {
		// windowHandler's window, like FS's own, is a fixed 512-byte
		// array: the driver only supports 512-byte sectors.
		return errors.New("invalid Format argument")
	}
	if cfg.Label == "" {
		cfg.Label = "tinygo.unnamed"
	}
	f.wh = windowHandler{sect: -1, bd: bd}

	switch cfg.Format {
	case FormatFAT32:
		return f.formatFAT(blocksize, fsSizeInBlocks, cfg)
	case FormatExFAT:
		return frUnsupported
	default:
		return frUnsupported
	}
}

// formatFAT writes a minimal FAT32 volume: one reserved sector carrying
// the BPB, a second carrying FSInfo, two mirrored FAT copies sized to
// cover the volume, and a single-cluster root directory marked
// end-of-chain.
func (f *Formatter) formatFAT(blocksize, fsSizeInBlocks int, cfg FormatConfig) error {
	const numFATs = 2
	const reserved = 32 // Reserved sectors: BPB + FSInfo + padding.

	ss := uint32(blocksize)
	total := uint32(fsSizeInBlocks)
	spc := uint32(cfg.ClusterSize)
	if spc == 0 {
		spc = 8
	}
	if spc == 0 || spc&(spc-1) != 0 || spc > 128 {
		return errors.New("invalid cluster size: must be a power of two no greater than 128")
	}
	if total <= reserved {
		return errors.New("volume too small to format")
	}

	// Converge on a FAT size (in sectors) that covers cluster_count, which
	// itself shrinks as the FAT grows. A few iterations suffice since the
	// two quantities move in opposite, bounded directions.
	fatSize := (total/spc*4 + ss - 1) / ss
	var clusterCount uint32
	for i := 0; i < 8; i++ {
		dataSectors := total - reserved - numFATs*fatSize
		clusterCount = dataSectors / spc
		newFatSize := (clusterCount*4 + ss - 1) / ss
		if newFatSize == fatSize {
			break
		}
		fatSize = newFatSize
	}
	if clusterCount <= clustMaxFAT16 {
		return errors.New("volume too small for FAT32: would resolve to FAT16")
	}

	database := reserved + numFATs*fatSize

	if err := f.writeBootSector(ss, spc, total, fatSize, cfg.Label); err != nil {
		return err
	}
	if err := f.writeFSInfo(clusterCount); err != nil {
		return err
	}
	if err := f.writeFATs(fatSize, numFATs, reserved); err != nil {
		return err
	}
	return f.writeRootDir(spc, database, cfg.Label)
}

func (f *Formatter) writeSector(sector int64, fill func(win []byte)) fileResult {
	clear(f.wh.win[:])
	fill(f.wh.win[:])
	f.wh.sect = sector
	f.wh.flagAsModified()
	return f.wh.sync()
}

func (f *Formatter) writeBootSector(ss, spc, total, fatSize uint32, label string) error {
	fr := f.writeSector(0, func(win []byte) {
		bs := biosParamBlock{data: win}
		win[0], win[1], win[2] = 0xEB, 0x58, 0x90 // x86 short jump + NOP.
		bs.SetOEMName("MSWIN4.1")
		bs.SetSectorSize(uint16(ss))
		bs.SetSectorsPerCluster(uint16(spc))
		bs.SetReservedSectors(32)
		bs.SetNumberOfFATs(2)
		bs.SetRootDirEntries(0)
		bs.SetTotalSectors(total)
		win[bpbMedia] = 0xF8
		bs.SetSectorsPerFAT(fatSize)
		binary.LittleEndian.PutUint16(win[bpbSecPerTrk:], 0x3F)
		binary.LittleEndian.PutUint16(win[bpbNumHeads:], 0xFF)
		binary.LittleEndian.PutUint32(win[bpbHiddSec:], 0)
		binary.LittleEndian.PutUint16(win[bpbExtFlags32:], 0)
		binary.LittleEndian.PutUint16(win[bpbFSVer32:], 0)
		bs.SetRootCluster(2)
		binary.LittleEndian.PutUint16(win[bpbFSInfo32:], 1)
		binary.LittleEndian.PutUint16(win[bpbBkBootSec32:], 0) // No backup boot sector.
		win[bsDrvNum32] = 0x80
		win[bsBootSig32] = 0x29
		binary.LittleEndian.PutUint32(win[bsVolID32:], 0x1234_5678)
		bs.SetVolumeLabel(label)
		copy(win[bsFilSysType32:], "FAT32   ")
		binary.LittleEndian.PutUint16(win[bs55AA:], 0xAA55)
	})
	if fr != frOK {
		return fr
	}
	return nil
}

func (f *Formatter) writeFSInfo(clusterCount uint32) error {
	fr := f.writeSector(1, func(win []byte) {
		fsi := fsinfoSector{data: win}
		fsi.SetSignatures(0x41615252, 0x61417272, 0xAA550000)
		fsi.SetFreeClusterCount(clusterCount - 1) // Cluster 2 is taken by root.
		fsi.SetLastAllocatedCluster(2)
	})
	if fr != frOK {
		return fr
	}
	return nil
}

func (f *Formatter) writeFATs(fatSize uint32, numFATs, reserved uint32) error {
	f.wh.fatbase = int64(reserved)
	f.wh.fatsize = int64(fatSize)
	f.wh.reduntant = numFATs > 1
	// windowHandler mirrors this sector to reserved+fatSize automatically
	// when reduntant is set, writing both FAT copies' reserved entries
	// in one call.
	fr := f.writeSector(int64(reserved), func(win []byte) {
		fs := fat32Sector{data: win}
		fs.SetEntry(0, entry(0x0FFF_FFF8)) // Media descriptor in low byte.
		fs.SetEntry(1, entry(0x0FFF_FFFF)) // Reserved, EOC.
		fs.SetEntry(2, entry(0x0FFF_FFFF)) // Root directory cluster, EOC.
	})
	f.wh.reduntant = false
	if fr != frOK {
		return fr
	}
	for fatIdx := uint32(0); fatIdx < numFATs; fatIdx++ {
		base := int64(reserved + fatIdx*fatSize)
		if err := f.wh.bd.EraseBlocks(base+1, int64(fatSize-1)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Formatter) writeRootDir(spc, database uint32, label string) error {
	if err := f.wh.bd.EraseBlocks(int64(database), int64(spc)); err != nil {
		return err
	}
	if label == "" {
		return nil
	}
	fr := f.writeSector(int64(database), func(win []byte) {
		ds := dirSector{data: win}
		var vlab [11]byte
		for i := range vlab {
			vlab[i] = ' '
		}
		copy(vlab[:], label)
		copy(ds.data[dirNameOff:], vlab[:])
		ds.data[dirAttrOff] = amVOL
	})
	if fr != frOK {
		return fr
	}
	return nil
}
