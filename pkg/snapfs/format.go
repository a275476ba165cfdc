package snapfs

import "fmt"

// Format writes a fresh, empty filesystem image of totalBlocks blocks to
// vol: a superblock, empty bitmaps, an empty inode-data index, a zeroed
// metadata region, and a root directory inode. Mirrors the offline
// formatter pattern of the teacher's ext2/cmd/mkext2, generalized to this
// layout's regions.
func Format(vol Volume, totalBlocks uint32) error {
	if totalBlocks < 64 {
		return fmt.Errorf("formatting: %w: image must be at least 64 blocks, got %d", ErrInvalidArgument, totalBlocks)
	}
	sb := layoutFor(totalBlocks)

	inodeBitmap := NewBitmap(sb.NInodes())
	blockBitmap := NewBitmap(sb.NDataBlocks())
	idBitmap := NewBitmap(sb.NIDEntries())
	inodeTable := make([]inodeRecord, sb.NInodes())
	idEntries := make([]InodeData, sb.NIDEntries())
	refcounts := NewRefcountTable(sb.NDataBlocks())

	fs := &FileSystem{
		vol:         vol,
		sb:          sb,
		inodeBitmap: inodeBitmap,
		blockBitmap: blockBitmap,
		idBitmap:    idBitmap,
		inodeTable:  inodeTable,
		idEntries:   idEntries,
		refcounts:   refcounts,
		vfs:         nopVFSAdapter{},
	}

	if err := fs.formatRoot(); err != nil {
		return fmt.Errorf("formatting: %w", err)
	}

	sb.Snapshots[0] = SnapshotSlot{ID: 0}
	fs.sb = sb

	if err := fs.Sync(); err != nil {
		return fmt.Errorf("formatting: %w", err)
	}
	return nil
}

// formatRoot allocates inode RootIno, its inode-data entry, and an empty
// directory block, wiring the live (snapshot 0) i_data slot to it.
func (fs *FileSystem) formatRoot() error {
	ino := fs.inodeBitmap.Alloc()
	if ino != RootIno {
		return fmt.Errorf("allocating root inode: expected slot %d, got %d", RootIno, ino)
	}

	dirBlock, err := fs.AllocBlock(KindDir)
	if err != nil {
		return fmt.Errorf("allocating root directory block: %w", err)
	}

	idIdx, err := fs.allocInodeData()
	if err != nil {
		return fmt.Errorf("allocating root inode-data entry: %w", err)
	}
	fs.setInodeData(idIdx, InodeData{
		Mode:       ModeDir | 0755,
		NLink:      2,
		IndexBlock: dirBlock,
		Refcount:   1,
	})
	fs.setInodeSlot(ino, 0, idIdx)
	return nil
}
