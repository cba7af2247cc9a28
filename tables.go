package fat

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	badFilesystemType = "fat: bad filesystem type"
)

const (
	negative1_32        = 0xffff_ffff
	badLBA       lba    = negative1_32
	mask28bits   uint32 = 0x0FFF_FFFF

	offsetMBRTable = 446  // Offset of partition table in the MBR.
	sizePartition  = 16   // Size of a partition table entry.
	mskDDEM        = 0xE5 // Deleted directory entry mark set to DIR_Name[0]
	mskRDDEM       = 0x05 // Replacement of the character collides with DDEM
	mskLLEF        = 0x40 // Last long entry flag in LDIR_Ord

)

const (
	nsFLAG   = 11   // Index of the name status byte
	nsLOSS   = 0x01 // Out of 8.3 format
	nsLFN    = 0x02 // Force to create LFN entry
	nsLAST   = 0x04 // Last segment
	nsBODY   = 0x08 // Lower case flag (body)
	nsEXT    = 0x10 // Lower case flag (ext)
	nsDOT    = 0x20 // Dot entry
	nsNOLFN  = 0x40 // Do not find LFN
	nsNONAME = 0x80 // Not followed

	fsiLeadSig    = 0   // FAT32 FSI: Leading signature (DWORD)
	fsiStrucSig   = 484 // FAT32 FSI: Structure signature (DWORD)
	fsiFree_Count = 488 // FAT32 FSI: Number of free clusters (DWORD)
	fsiNxt_Free   = 492 // FAT32 FSI: Last allocated cluster (DWORD)

	bsJmpBoot     = 0   // x86 jump instruction (3-byte)
	bsOEMName     = 3   // OEM name (8-byte)
	bpbBytsPerSec = 11  // Sector size [byte] (WORD)
	bpbSecPerClus = 13  // Cluster size [sector] (BYTE)
	bpbRsvdSecCnt = 14  // Size of reserved area [sector] (WORD)
	bpbNumFATs    = 16  // Number of FATs (BYTE)
	bpbRootEntCnt = 17  // Size of root directory area for FAT [entry] (WORD)
	bpbTotSec16   = 19  // Volume size (16-bit) [sector] (WORD)
	bpbMedia      = 21  // Media descriptor byte (BYTE)
	bpbFATSz16    = 22  // FAT size (16-bit) [sector] (WORD)
	bpbSecPerTrk  = 24  // Number of sectors per track for int13h [sector] (WORD)
	bpbNumHeads   = 26  // Number of heads for int13h (WORD)
	bpbHiddSec    = 28  // Volume offset from top of the drive (DWORD)
	bpbTotSec32   = 32  // Volume size (32-bit) [sector] (DWORD)
	bsDrvNum      = 36  // Physical drive number for int13h (BYTE)
	bsNTres       = 37  // WindowsNT error flag (BYTE)
	bsBootSig     = 38  // Extended boot signature (BYTE)
	bsVolID       = 39  // Volume serial number (DWORD)
	bsVolLab      = 43  // Volume label string (11-byte)
	bsFilSysType  = 54  // Filesystem type string (8-byte)
	bsBootCode    = 62  // Boot code (448-byte)
	bs55AA        = 510 // Signature word (WORD)

	bpbFATSz32     = 36 // FAT32: FAT size [sector] (DWORD)
	bpbExtFlags32  = 40 // FAT32: Extended flags (WORD)
	bpbFSVer32     = 42 // FAT32: Filesystem version (WORD)
	bpbRootClus32  = 44 // FAT32: Root directory cluster (DWORD)
	bpbFSInfo32    = 48 // FAT32: Offset of FSINFO sector (WORD)
	bpbBkBootSec32 = 50 // FAT32: Offset of backup boot sector (WORD)
	bsDrvNum32     = 64 // FAT32: Physical drive number for int13h (BYTE)
	bsNTres32      = 65 // FAT32: Error flag (BYTE)
	bsBootSig32    = 66 // FAT32: Extended boot signature (BYTE)
	bsVolID32      = 67 // FAT32: Volume serial number (DWORD)
	bsVolLab32     = 71 // FAT32: Volume label string (11-byte)
	bsFilSysType32 = 82 // FAT32: Filesystem type string (8-byte)
	bsBootCode32   = 90 // FAT32: Boot code (420-byte)
)

const (
	sizeDirEntry  = 32         // Size of a directory entry
	maxDIR        = 0x200000   // Max size of FAT directory
	maxDIREx      = 0x10000000 // Max size of exFAT directory (exFAT mounting is unsupported; kept so shared bounds checks compile)
	clustMaxFAT12 = 0xFF5      // Max FAT12 clusters (differs from specs, but right for real DOS/Windows behavior)
	clustMaxFAT16 = 0xFFF5     // Max FAT16 clusters (differs from specs, but right for real DOS/Windows behavior)
	clustMaxFAT32 = 0x0FFFFFF5 // Max FAT32 clusters (not specified, practical limit)
)

// Byte offsets within a 32-byte short-name directory entry.
const (
	dirNameOff       = 0  // Short name (11-byte)
	dirAttrOff       = 11 // File attribute (BYTE)
	dirNTresOff      = 12 // Lower case flag (BYTE)
	dirCrtTime10Off  = 13 // Created time sub-second (BYTE)
	dirCrtTimeOff    = 14 // Created time & date (DWORD)
	dirLstAccDateOff = 18 // Last accessed date (WORD)
	dirFstClusHIOff  = 20 // Higher 16-bit of first cluster (WORD, 0 on FAT12/16)
	dirModTimeOff    = 22 // Modified time & date (DWORD)
	dirFstClusLOOff  = 26 // Lower 16-bit of first cluster (WORD)
	dirFileSizeOff   = 28 // File size (DWORD)

	// xdirType is the exFAT generic directory entry type field offset.
	// exFAT volumes are never mounted, but shared bounds-check code
	// references it so it must exist to compile.
	xdirType = 0
	// exFAT stream-extension entry offsets read by init_alloc_info.
	xdirGenFlags = 33 // General secondary flags (BYTE)
	xdirFstClus  = 52 // First cluster of allocation (DWORD)
	xdirFileSize = 56 // File/directory size (QWORD)
)

// Byte offsets within a 32-byte long-name (LFN) directory entry.
const (
	ldirOrdOff         = 0  // LFN entry order, OR'd with mskLLEF on the last entry (BYTE)
	ldirAttrOff        = 11 // LFN attribute, always amLFN (BYTE)
	ldirTypeOff        = 12 // LFN entry type, always 0 (BYTE)
	ldirChksumOff      = 13 // Checksum of the associated short name (BYTE)
	ldirFstClusLO_Off  = 26 // Always zero (WORD)
)

// File attribute bits stored at dirAttrOff.
const (
	amRDO  = 0x01 // Read only
	amHID  = 0x02 // Hidden
	amSYS  = 0x04 // System
	amVOL  = 0x08 // Volume label
	amLFN  = amRDO | amHID | amSYS | amVOL // LFN entry marker (0x0F)
	amDIR  = 0x10 // Directory
	amARC  = 0x20 // Archive
	amMASK = amRDO | amHID | amSYS | amVOL | amDIR | amARC // Mask of defined bits
)

// accessmode is the internal open-mode flag set passed to f_open. The low
// bits mirror the exported Mode bitmask; the high bits (faSEEKEND,
// faMODIFIED, faDIRTY) are bookkeeping flags private to the driver.
//
// The individual fa* flags below are left as untyped constants (rather than
// typed accessmode values) so they freely combine with both accessmode
// parameters and the plain uint8 flag byte stored on File.
type accessmode uint8

const (
	faRead         = 0x01
	faWrite        = 0x02
	faOpenExisting = 0x00
	faCreateNew    = 0x04
	faCreateAlways = 0x08
	faOpenAlways   = 0x10
	faOpenAppend   = 0x30 // faOpenAlways | faSEEKEND
	faSEEKEND      = 0x20 // internal: seek to end of file on open
	faMODIFIED     = 0x40 // internal: file has been modified since open
	faDIRTY        = 0x80 // internal: file's private sector buffer differs from disk
)

const maxu32 = 0xFFFF_FFFF
const maxu16 = 0xFFFF

// clipname trims trailing spaces and NUL bytes off a fixed-width on-disk
// name field for display.
func clipname(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == ' ' || b[n-1] == 0) {
		n--
	}
	return b[:n]
}

// ff_uni2oem converts a unicode character to an ANSI/OEM character, zero on
// error. Only the ASCII subset is supported; codepage is unused and kept for
// call-site compatibility with the lookup signature.
func ff_uni2oem(uni rune, codepage []byte) uint16 {
	if uni < 0x80 {
		return uint16(uni)
	}
	return 0
}

// ff_oem2uni converts an OEM character to a unicode character, zero on
// error. Only the ASCII subset is supported.
func ff_oem2uni(oem uint16, codepage []byte) uint16 {
	if oem < 0x80 {
		return oem
	}
	return 0
}

// upcaser is the Unicode upper-case folder behind ff_wtoupper. Shared
// across calls instead of allocated per call.
var upcaser = cases.Upper(language.Und)

// ff_wtoupper folds a single rune to its upper case form. cmp_lfn uses it to
// compare long names case-insensitively; 8.3 names are upper-cased by
// create_name with a plain ASCII a-z check instead.
func ff_wtoupper(c rune) rune {
	up := upcaser.String(string(c))
	for _, r := range up {
		return r
	}
	return c
}
