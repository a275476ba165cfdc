package snapfs

import "fmt"

// FileMode bits, a small subset of the usual Unix set — just enough to
// distinguish regular files from directories (spec §3/§6).
type FileMode uint32

const (
	ModeRegular FileMode = 0
	ModeDir     FileMode = 1 << 16
)

func (m FileMode) IsDir() bool { return m&ModeDir != 0 }

// InodeData is one inode-data entry: everything about a file or directory
// that a snapshot can independently diverge on — size, times, block
// count, and the pointer to its content (a file index block for regular
// files, a single directory block for directories, matching original
// ouichefs's flat one-block directory limit). Grounded on
// original_source/ouichefs.h's struct ouichefs_inode_data and laid out at
// the byte offsets fixed in SPEC_FULL.md §3.
type InodeData struct {
	Mode       FileMode
	UID        uint32
	GID        uint32
	Size       uint64
	ATimeSec   int64
	ATimeNsec  uint32
	MTimeSec   int64
	MTimeNsec  uint32
	CTimeSec   int64
	CTimeNsec  uint32
	NBlocks    uint32
	NLink      uint32
	IndexBlock uint32 // file index block, or directory block, for this entry
	Refcount   uint8  // entries referenced by >1 snapshot slot are shared
}

// DecodeInodeData parses one InodeDataSize-byte record.
func DecodeInodeData(b []byte) InodeData {
	var d InodeData
	d.Mode = FileMode(le32(b[0:4]))
	d.UID = le32(b[4:8])
	d.GID = le32(b[8:12])
	d.Size = le64(b[12:20])
	d.ATimeSec = int64(le64(b[20:28]))
	d.ATimeNsec = le32(b[28:32])
	d.MTimeSec = int64(le64(b[32:40]))
	d.MTimeNsec = le32(b[40:44])
	d.CTimeSec = int64(le64(b[44:52]))
	d.CTimeNsec = le32(b[52:56])
	d.NBlocks = le32(b[56:60])
	d.NLink = le32(b[60:64])
	d.IndexBlock = le32(b[64:68])
	d.Refcount = b[68]
	return d
}

// Encode writes d into b, which must be at least InodeDataSize bytes.
func (d InodeData) Encode(b []byte) {
	putLE32(b[0:4], uint32(d.Mode))
	putLE32(b[4:8], d.UID)
	putLE32(b[8:12], d.GID)
	putLE64(b[12:20], d.Size)
	putLE64(b[20:28], uint64(d.ATimeSec))
	putLE32(b[28:32], d.ATimeNsec)
	putLE64(b[32:40], uint64(d.MTimeSec))
	putLE32(b[40:44], d.MTimeNsec)
	putLE64(b[44:52], uint64(d.CTimeSec))
	putLE32(b[52:56], d.CTimeNsec)
	putLE32(b[56:60], d.NBlocks)
	putLE32(b[60:64], d.NLink)
	putLE32(b[64:68], d.IndexBlock)
	b[68] = d.Refcount
	for i := 69; i < InodeDataSize; i++ {
		b[i] = 0
	}
}

func (fs *FileSystem) inodeData(idx uint32) InodeData {
	return fs.idEntries[idx]
}

func (fs *FileSystem) setInodeData(idx uint32, d InodeData) {
	fs.idEntries[idx] = d
}

// allocInodeData allocates a fresh inode-data entry with refcount 1 and
// returns its index, or (0, ErrNoSpace) if the table is exhausted.
func (fs *FileSystem) allocInodeData() (uint32, error) {
	idx := fs.idBitmap.Alloc()
	if idx == 0 {
		return 0, fmt.Errorf("allocating inode-data entry: %w", ErrNoSpace)
	}
	fs.idEntries[idx] = InodeData{Refcount: 1}
	return idx, nil
}

// getInodeData resolves the inode-data entry for ino under the given
// snapshot slot. allocate creates the entry (and the owning inode slot's
// pointer) if it is missing; cow duplicates the entry — and, if the
// underlying block is shared, the block it points to — when its refcount
// shows it's shared with another snapshot. Grounded on
// original_source/inode_data.c's ouichefs_get_inode_data.
func (fs *FileSystem) getInodeData(ino uint32, snap uint32, allocate, cow bool) (uint32, *InodeData, error) {
	idx := fs.inodeSlot(ino, snap)
	if idx == 0 {
		if !allocate {
			return 0, nil, fmt.Errorf("getting inode data for inode %d: %w", ino, ErrNotFound)
		}
		newIdx, err := fs.allocInodeData()
		if err != nil {
			return 0, nil, err
		}
		fs.setInodeSlot(ino, snap, newIdx)
		d := fs.inodeData(newIdx)
		return newIdx, &d, nil
	}

	if cow && fs.idEntries[idx].Refcount > 1 {
		newIdx, err := fs.allocInodeData()
		if err != nil {
			return 0, nil, err
		}
		cur := fs.idEntries[idx]
		cur.Refcount = 1
		if cur.IndexBlock != 0 {
			newBlock, err := fs.CowBlock(cur.IndexBlock, fs.indexBlockKind(cur))
			if err != nil {
				return 0, nil, err
			}
			cur.IndexBlock = newBlock
		}
		fs.idEntries[newIdx] = cur
		// CowBlock has already dropped the old entry's reference on its
		// index_block, so only the entry's own refcount is released here.
		fs.idEntries[idx].Refcount--
		fs.setInodeSlot(ino, snap, newIdx)
		d := fs.idEntries[newIdx]
		return newIdx, &d, nil
	}

	d := fs.idEntries[idx]
	return idx, &d, nil
}

func (fs *FileSystem) indexBlockKind(d InodeData) BlockKind {
	if d.Mode.IsDir() {
		return KindDir
	}
	return KindIndex
}

// linkInodeData makes slot `to` of ino point at the same inode-data entry
// as slot `from`, bumping its refcount and the refcount of the entry's
// index_block — used when a new snapshot is created and every live
// inode's new slot starts out sharing the old entry. Sharing propagates
// through both layers (spec §4.3/§4.5). Grounded on
// original_source/snapshot.c's snapshot-create loop, which calls
// ouichefs_get_block on the copied entry's index_block right after
// linking it.
func (fs *FileSystem) linkInodeData(ino, from, to uint32) error {
	idx := fs.inodeSlot(ino, from)
	if idx == 0 {
		fs.setInodeSlot(ino, to, 0)
		return nil
	}
	fs.idEntries[idx].Refcount++
	if err := fs.GetBlock(fs.idEntries[idx].IndexBlock); err != nil {
		return fmt.Errorf("linking inode-data entry %d: %w", idx, err)
	}
	fs.setInodeSlot(ino, to, idx)
	return nil
}

// putInodeDataEntry drops the entry's refcount by one and its
// index_block's refcount by one to match — every call here undoes exactly
// one linkInodeData call's increment of both layers, whether or not this
// particular decrement happens to be the one that drives the entry's own
// refcount to zero. Once the entry's refcount does reach zero, its slot is
// returned to the inode-data bitmap.
func (fs *FileSystem) putInodeDataEntry(idx uint32) error {
	if idx == 0 {
		return nil
	}
	d := &fs.idEntries[idx]
	if d.Refcount == 0 {
		panic("snapfs: inode-data refcount underflow")
	}
	indexBlock := d.IndexBlock
	kind := fs.indexBlockKind(*d)

	d.Refcount--
	if d.Refcount == 0 {
		fs.idEntries[idx] = InodeData{}
		fs.idBitmap.Free(idx)
	}

	if indexBlock != 0 {
		if err := fs.PutBlock(indexBlock, kind); err != nil {
			return fmt.Errorf("freeing inode-data entry %d: %w", idx, err)
		}
	}
	return nil
}

// putInodeDataSlot is the snapshot-facing entry point: it clears the
// inode's slot for snap and puts whatever entry it pointed to. Used by
// snapshot Delete and inode free (spec §4.5).
func (fs *FileSystem) putInodeDataSlot(ino, snap uint32) error {
	idx := fs.inodeSlot(ino, snap)
	if idx == 0 {
		return nil
	}
	fs.setInodeSlot(ino, snap, 0)
	return fs.putInodeDataEntry(idx)
}
