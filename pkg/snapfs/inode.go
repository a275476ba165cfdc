package snapfs

import "fmt"

// inodeRecord is one inode's full set of per-snapshot inode-data
// pointers: i_data[0] is always the live snapshot's entry; i_data[s] for
// s > 0 is the entry snapshot slot s recorded when it was created (shared
// with the live slot until a writer diverges the live copy), or 0 if the
// slot is empty or the inode did not exist in that snapshot (spec
// §4.3/§4.5).
type inodeRecord struct {
	data [MaxSnapshots]uint32
}

func decodeInodeRecord(b []byte) inodeRecord {
	var r inodeRecord
	for i := 0; i < MaxSnapshots; i++ {
		r.data[i] = le32(b[i*4 : i*4+4])
	}
	return r
}

func (r inodeRecord) encode(b []byte) {
	for i := 0; i < MaxSnapshots; i++ {
		putLE32(b[i*4:i*4+4], r.data[i])
	}
}

func (fs *FileSystem) inodeSlot(ino, snap uint32) uint32 {
	return fs.inodeTable[ino].data[snap]
}

func (fs *FileSystem) setInodeSlot(ino, snap, idx uint32) {
	fs.inodeTable[ino].data[snap] = idx
}

// allocInode claims a free inode number and zeroes its record.
func (fs *FileSystem) allocInode() (uint32, error) {
	ino := fs.inodeBitmap.Alloc()
	if ino == 0 {
		return 0, fmt.Errorf("allocating inode: %w", ErrNoSpace)
	}
	fs.inodeTable[ino] = inodeRecord{}
	return ino, nil
}

// freeInode puts every non-zero inode-data slot the inode still holds
// across every snapshot, then returns the inode number to the bitmap.
// Used when the last directory entry naming ino is unlinked.
func (fs *FileSystem) freeInode(ino uint32) error {
	for snap := uint32(0); snap < MaxSnapshots; snap++ {
		if err := fs.putInodeDataSlot(ino, snap); err != nil {
			return fmt.Errorf("freeing inode %d: %w", ino, err)
		}
	}
	fs.inodeTable[ino] = inodeRecord{}
	fs.inodeBitmap.Free(ino)
	return nil
}

// Stat resolves a regular-file or directory inode's current (live
// snapshot) metadata.
func (fs *FileSystem) Stat(ino uint32) (InodeData, error) {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()
	idx := fs.inodeSlot(ino, 0)
	if idx == 0 {
		return InodeData{}, fmt.Errorf("stat inode %d: %w", ino, ErrNotFound)
	}
	return fs.inodeData(idx), nil
}
