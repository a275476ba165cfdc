package snapfs

import "fmt"

// Lookup resolves name inside directory dirIno's live snapshot listing.
// Grounded on original_source/inode.c's ouichefs_lookup.
func (fs *FileSystem) Lookup(dirIno uint32, name string) (uint32, error) {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	_, d, err := fs.getInodeData(dirIno, 0, false, false)
	if err != nil {
		return 0, fmt.Errorf("looking up %q: %w", name, err)
	}
	entries, err := fs.readDirBlock(d.IndexBlock)
	if err != nil {
		return 0, fmt.Errorf("looking up %q: %w", name, err)
	}
	for _, e := range entries {
		if e.Ino != 0 && e.Name == name {
			return e.Ino, nil
		}
	}
	return 0, fmt.Errorf("looking up %q: %w", name, ErrNotFound)
}

// List returns every live entry of directory dirIno.
func (fs *FileSystem) List(dirIno uint32) ([]DirEntry, error) {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	_, d, err := fs.getInodeData(dirIno, 0, false, false)
	if err != nil {
		return nil, fmt.Errorf("listing directory %d: %w", dirIno, err)
	}
	entries, err := fs.readDirBlock(d.IndexBlock)
	if err != nil {
		return nil, fmt.Errorf("listing directory %d: %w", dirIno, err)
	}
	out := entries[:0:0]
	for _, e := range entries {
		if e.Ino != 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

// Create makes a new inode of the given mode, links it into directory
// dirIno under name, and returns its inode number. Grounded on
// original_source/inode.c's ouichefs_create / ouichefs_mkdir.
func (fs *FileSystem) Create(dirIno uint32, name string, mode FileMode) (uint32, error) {
	if len(name) == 0 {
		return 0, fmt.Errorf("creating %q: %w: empty name", name, ErrInvalidArgument)
	}
	if len(name) > FilenameLen {
		return 0, fmt.Errorf("creating %q: %w", name, ErrNameTooLong{name})
	}

	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	if _, err := fs.lookupLocked(dirIno, name); err == nil {
		return 0, fmt.Errorf("creating %q: %w", name, ErrInvalidArgument)
	}

	ino, err := fs.allocInode()
	if err != nil {
		return 0, fmt.Errorf("creating %q: %w", name, err)
	}

	var blk uint32
	nlink := uint32(1)
	if mode.IsDir() {
		// No "." self-entry is stored in the directory block itself (only
		// the parent's dentry exists), so nlink starts at 1 like a regular
		// file's — Rmdir's single Unlink decrement is what frees it.
		blk, err = fs.AllocBlock(KindDir)
	} else {
		blk = 0 // regular files allocate their index block lazily on first write
	}
	if err != nil {
		return 0, fmt.Errorf("creating %q: %w", name, err)
	}

	idx, err := fs.allocInodeData()
	if err != nil {
		return 0, fmt.Errorf("creating %q: %w", name, err)
	}
	fs.setInodeData(idx, InodeData{Mode: mode, NLink: nlink, IndexBlock: blk, Refcount: 1})
	fs.setInodeSlot(ino, 0, idx)

	if err := fs.linkEntry(dirIno, name, ino); err != nil {
		return 0, fmt.Errorf("creating %q: %w", name, err)
	}
	return ino, nil
}

func (fs *FileSystem) lookupLocked(dirIno uint32, name string) (uint32, error) {
	_, d, err := fs.getInodeData(dirIno, 0, false, false)
	if err != nil {
		return 0, err
	}
	entries, err := fs.readDirBlock(d.IndexBlock)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Ino != 0 && e.Name == name {
			return e.Ino, nil
		}
	}
	return 0, ErrNotFound
}

// linkEntry CoWs dirIno's directory block and writes a new entry for
// name -> ino into the first empty slot.
func (fs *FileSystem) linkEntry(dirIno uint32, name string, ino uint32) error {
	idx, d, err := fs.getInodeData(dirIno, 0, false, true)
	if err != nil {
		return err
	}
	entries, err := fs.readDirBlock(d.IndexBlock)
	if err != nil {
		return err
	}
	slot := -1
	for i, e := range entries {
		if e.Ino == 0 {
			slot = i
			break
		}
	}
	if slot < 0 {
		return ErrDirFull
	}
	entries[slot] = DirEntry{Ino: ino, Name: name}
	if err := fs.writeDirBlock(d.IndexBlock, entries); err != nil {
		return err
	}
	d.Size = uint64(MaxSubfiles) * DirEntrySize
	fs.setInodeData(idx, *d)
	return nil
}

// Unlink removes name from directory dirIno, dropping the target inode's
// link count and freeing it once it reaches zero. Grounded on
// original_source/inode.c's ouichefs_unlink.
func (fs *FileSystem) Unlink(dirIno uint32, name string) error {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	idx, d, err := fs.getInodeData(dirIno, 0, false, true)
	if err != nil {
		return fmt.Errorf("unlinking %q: %w", name, err)
	}
	entries, err := fs.readDirBlock(d.IndexBlock)
	if err != nil {
		return fmt.Errorf("unlinking %q: %w", name, err)
	}
	slot := -1
	for i, e := range entries {
		if e.Ino != 0 && e.Name == name {
			slot = i
			break
		}
	}
	if slot < 0 {
		return fmt.Errorf("unlinking %q: %w", name, ErrNotFound)
	}
	target := entries[slot].Ino
	copy(entries[slot:], entries[slot+1:])
	entries[len(entries)-1] = DirEntry{}
	if err := fs.writeDirBlock(d.IndexBlock, entries); err != nil {
		return fmt.Errorf("unlinking %q: %w", name, err)
	}
	fs.setInodeData(idx, *d)

	tIdx, tData, err := fs.getInodeData(target, 0, false, true)
	if err != nil {
		return fmt.Errorf("unlinking %q: %w", name, err)
	}
	tData.NLink--
	fs.setInodeData(tIdx, *tData)
	if tData.NLink == 0 {
		if err := fs.freeInode(target); err != nil {
			return fmt.Errorf("unlinking %q: %w", name, err)
		}
	}
	return nil
}

// Rmdir removes an empty subdirectory named name from dirIno, refusing if it
// still has any live entry. Grounded on original_source/inode.c's
// ouichefs_rmdir, which the same CoW-then-mutate directory block path as
// Unlink but adds the emptiness check first.
func (fs *FileSystem) Rmdir(dirIno uint32, name string) error {
	fs.freeze.RLock()
	target, err := fs.lookupLocked(dirIno, name)
	fs.freeze.RUnlock()
	if err != nil {
		return fmt.Errorf("removing directory %q: %w", name, err)
	}

	d, err := fs.Stat(target)
	if err != nil {
		return fmt.Errorf("removing directory %q: %w", name, err)
	}
	if !d.Mode.IsDir() {
		return fmt.Errorf("removing directory %q: %w: not a directory", name, ErrInvalidArgument)
	}
	entries, err := fs.List(target)
	if err != nil {
		return fmt.Errorf("removing directory %q: %w", name, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("removing directory %q: %w: directory not empty", name, ErrInvalidArgument)
	}

	if err := fs.Unlink(dirIno, name); err != nil {
		return fmt.Errorf("removing directory %q: %w", name, err)
	}
	return nil
}

// Rename moves name from srcDir to dstName in dstDir, the teacher's way of
// composing existing primitives (link then unlink) rather than a bespoke
// in-place rewrite. Grounded on original_source/inode.c's ouichefs_rename.
func (fs *FileSystem) Rename(srcDir uint32, srcName string, dstDir uint32, dstName string) error {
	fs.freeze.RLock()
	ino, err := fs.lookupLocked(srcDir, srcName)
	fs.freeze.RUnlock()
	if err != nil {
		return fmt.Errorf("renaming %q: %w", srcName, err)
	}

	fs.freeze.RLock()
	err = fs.linkEntry(dstDir, dstName, ino)
	fs.freeze.RUnlock()
	if err != nil {
		return fmt.Errorf("renaming %q to %q: %w", srcName, dstName, err)
	}

	fs.freeze.RLock()
	idx, d, err := fs.getInodeData(ino, 0, false, true)
	if err == nil {
		d.NLink++
		fs.setInodeData(idx, *d)
	}
	fs.freeze.RUnlock()

	if err := fs.Unlink(srcDir, srcName); err != nil {
		return fmt.Errorf("renaming %q to %q: %w", srcName, dstName, err)
	}
	return nil
}

// Reflink deduplicates content between two existing regular files,
// sharing srcIno's data blocks with dstIno instead of copying them —
// both become CoW on any subsequent write. It does not touch either
// file's directory entry or link count; callers create dstIno first
// (e.g. via Create) and then Reflink its content from srcIno. If dstIno
// has no content yet, its index_block pointer is simply repointed at
// srcIno's index_block (decrementing whatever dstIno's old index_block
// was) and get_block is called on the shared block — spec §4.4's
// whole-file fast path. Otherwise each of srcIno's blocks is reflinked
// into the matching slot of dstIno's index block (copied first if another
// file or snapshot still shares it), skipping slots
// that already agree. Grounded on original_source/file.c's
// __reflink_file and __reflink_file_range.
func (fs *FileSystem) Reflink(srcIno, dstIno uint32) error {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	_, sd, err := fs.getInodeData(srcIno, 0, false, false)
	if err != nil {
		return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
	}
	if sd.Mode.IsDir() {
		return fmt.Errorf("reflinking %d onto %d: %w: source is a directory", srcIno, dstIno, ErrInvalidArgument)
	}

	dIdx, dd, err := fs.getInodeData(dstIno, 0, false, true)
	if err != nil {
		return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
	}
	if dd.Mode.IsDir() {
		return fmt.Errorf("reflinking %d onto %d: %w: destination is a directory", srcIno, dstIno, ErrInvalidArgument)
	}
	if sd.IndexBlock == dd.IndexBlock {
		return nil
	}

	if dd.IndexBlock == 0 {
		if err := fs.GetBlock(sd.IndexBlock); err != nil {
			return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
		}
		dd.IndexBlock = sd.IndexBlock
		dd.Size = sd.Size
		dd.NBlocks = sd.NBlocks
		fs.setInodeData(dIdx, *dd)
		return nil
	}

	var srcEntries []uint32
	if sd.IndexBlock != 0 {
		srcEntries, err = fs.readIndexBlock(sd.IndexBlock)
		if err != nil {
			return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
		}
	} else {
		srcEntries = make([]uint32, IndexEntries)
	}
	dd.IndexBlock, err = fs.CowBlock(dd.IndexBlock, KindIndex)
	if err != nil {
		return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
	}
	dstEntries, err := fs.readIndexBlock(dd.IndexBlock)
	if err != nil {
		return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
	}

	nblocks := dd.NBlocks
	for i := range dstEntries {
		if srcEntries[i] == dstEntries[i] {
			continue
		}
		if err := fs.GetBlock(srcEntries[i]); err != nil {
			return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
		}
		if dstEntries[i] != 0 {
			if err := fs.PutBlock(dstEntries[i], KindData); err != nil {
				return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
			}
			nblocks--
		}
		if srcEntries[i] != 0 {
			nblocks++
		}
		dstEntries[i] = srcEntries[i]
	}
	if err := fs.writeIndexBlock(dd.IndexBlock, dstEntries); err != nil {
		return fmt.Errorf("reflinking %d onto %d: %w", srcIno, dstIno, err)
	}
	dd.NBlocks = nblocks
	if sd.Size > dd.Size {
		dd.Size = sd.Size
	}
	fs.setInodeData(dIdx, *dd)
	return nil
}
