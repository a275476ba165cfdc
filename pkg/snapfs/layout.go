// Package snapfs implements the storage core of a snapshotting block-device
// filesystem: a fixed-layout image, reference-counted copy-on-write blocks,
// and a bounded table of immutable snapshots sharing blocks with the live
// version until a writer diverges from them.
package snapfs

import "encoding/binary"

const (
	// BlockSize is the fixed on-disk block size in bytes.
	BlockSize = 4096

	// Magic identifies a snapfs image at offset 0 of block 0.
	Magic uint32 = 0x48434957

	// MaxSnapshots is the number of slots in the fixed-size snapshot
	// table; slot 0 is always the live snapshot.
	MaxSnapshots = 32

	// InodeDataSize is the on-disk size of one inode-data record.
	InodeDataSize = 80
	// EntriesPerIDBlock is how many inode-data records fit in one block.
	EntriesPerIDBlock = BlockSize / InodeDataSize

	// InodeRecordSize is the on-disk size of one inode record: MaxSnapshots
	// 32-bit inode-data entry indices.
	InodeRecordSize = MaxSnapshots * 4
	// InodesPerBlock is how many inode records fit in one block.
	InodesPerBlock = BlockSize / InodeRecordSize

	// IndexEntries is how many uint32 slots a file-index block holds.
	IndexEntries = BlockSize / 4
	// MaxFileSize is the largest representable file: one level of file
	// index block, no indirection.
	MaxFileSize = IndexEntries * BlockSize

	// FilenameLen is the fixed width of a directory entry's filename
	// field, not including a NUL terminator requirement (names are
	// NUL-padded, compared with a bounded strncmp-style scan).
	FilenameLen = 28
	// DirEntrySize is the on-disk size of one directory entry.
	DirEntrySize = 4 + FilenameLen
	// MaxSubfiles is how many directory entries fit in one directory
	// block.
	MaxSubfiles = BlockSize / DirEntrySize

	// RootIno is the inode number of the filesystem root.
	RootIno = 1

	// SuperblockBlock is the block number of the superblock.
	SuperblockBlock = 0
)

func le32(b []byte) uint32       { return binary.LittleEndian.Uint32(b) }
func putLE32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func le64(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }
func putLE64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
