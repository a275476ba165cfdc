package snapfs

import "fmt"

// AllocBlock claims a free data block, zeroes it on disk, and seeds its
// refcount at 1. Grounded on original_source/block.c's
// ouichefs_alloc_block.
func (fs *FileSystem) AllocBlock(kind BlockKind) (uint32, error) {
	rel := fs.blockBitmap.Alloc()
	if rel == 0 {
		return 0, fmt.Errorf("allocating %s block: %w", kind, ErrNoSpace)
	}
	bno := fs.sb.DataStart() + rel
	fs.refcounts.Set(rel, 1)

	zero := make([]byte, BlockSize)
	if err := fs.vol.WriteBlock(bno, zero); err != nil {
		fs.blockBitmap.Free(rel)
		return 0, fmt.Errorf("allocating %s block: %w", kind, err)
	}
	return bno, nil
}

// GetBlock bumps bno's refcount — another index/directory entry now also
// points at it. Grounded on ouichefs_get_block.
func (fs *FileSystem) GetBlock(bno uint32) error {
	if bno == 0 {
		return nil
	}
	fs.refcounts.Inc(fs.relBlock(bno))
	return nil
}

// PutBlock drops bno's refcount and, once it reaches zero, zeroes it and
// frees it — recursively walking its children first for a KindIndex block
// (an index block's own data pointers). A KindDir block's listed inodes are
// never walked here: which snapshot slots they still occupy is tracked
// per-inode (every live inode has an entry in every occupied snapshot
// slot, not just the ones reachable by directory traversal), so
// CreateSnapshot/DeleteSnapshot/RestoreSnapshot's own inode-table walk
// is the single place that bookkeeping happens — walking the directory
// block too would double-release the same slot. Grounded on
// ouichefs_put_block, adapted away from its FIXME'd (and, read literally,
// doubly-releasing) directory cascade.
func (fs *FileSystem) PutBlock(bno uint32, kind BlockKind) error {
	if bno == 0 {
		return nil
	}
	rel := fs.relBlock(bno)
	if fs.refcounts.Dec(rel) > 0 {
		return nil
	}

	if kind == KindIndex {
		children, err := fs.readIndexBlock(bno)
		if err != nil {
			return fmt.Errorf("freeing index block %d: %w", bno, err)
		}
		for _, child := range children {
			if child == 0 {
				continue
			}
			if err := fs.PutBlock(child, KindData); err != nil {
				return fmt.Errorf("freeing index block %d: %w", bno, err)
			}
		}
	}

	zero := make([]byte, BlockSize)
	if err := fs.vol.WriteBlock(bno, zero); err != nil {
		return fmt.Errorf("freeing block %d: %w", bno, err)
	}
	fs.blockBitmap.Free(rel)
	return nil
}

// CowBlock returns bno unchanged if it has exactly one owner; otherwise it
// allocates a fresh block, copies bno's content into it, bumps the
// refcount of every child bno points at (since the new copy now also
// points at them), and drops bno's own refcount by one. Grounded on
// ouichefs_cow_block.
func (fs *FileSystem) CowBlock(bno uint32, kind BlockKind) (uint32, error) {
	if bno == 0 {
		return fs.AllocBlock(kind)
	}
	rel := fs.relBlock(bno)
	if fs.refcounts.Get(rel) == 1 {
		return bno, nil
	}

	buf := make([]byte, BlockSize)
	if err := fs.vol.ReadBlock(bno, buf); err != nil {
		return 0, fmt.Errorf("cow block %d: %w", bno, err)
	}
	newBno, err := fs.AllocBlock(kind)
	if err != nil {
		return 0, fmt.Errorf("cow block %d: %w", bno, err)
	}
	if err := fs.vol.WriteBlock(newBno, buf); err != nil {
		return 0, fmt.Errorf("cow block %d: %w", bno, err)
	}

	if kind == KindIndex {
		children, err := fs.readIndexBlock(newBno)
		if err != nil {
			return 0, fmt.Errorf("cow block %d: %w", bno, err)
		}
		for _, child := range children {
			if err := fs.GetBlock(child); err != nil {
				return 0, fmt.Errorf("cow block %d: %w", bno, err)
			}
		}
	}

	fs.refcounts.Dec(rel)
	return newBno, nil
}

func (fs *FileSystem) relBlock(bno uint32) uint32 { return bno - fs.sb.DataStart() }

func (fs *FileSystem) readIndexBlock(bno uint32) ([]uint32, error) {
	buf := make([]byte, BlockSize)
	if err := fs.vol.ReadBlock(bno, buf); err != nil {
		return nil, err
	}
	out := make([]uint32, IndexEntries)
	for i := 0; i < IndexEntries; i++ {
		out[i] = le32(buf[i*4 : i*4+4])
	}
	return out, nil
}

func (fs *FileSystem) writeIndexBlock(bno uint32, entries []uint32) error {
	buf := make([]byte, BlockSize)
	for i, v := range entries {
		putLE32(buf[i*4:i*4+4], v)
	}
	return fs.vol.WriteBlock(bno, buf)
}
