package snapfs

import "fmt"

// ReadAt reads len(buf) bytes of regular file ino's live content starting
// at offset, the way a single level of index-block indirection is walked
// in original_source/file.c's ouichefs_file_read. Blocks never allocated
// (sparse holes) read back as zero.
func (fs *FileSystem) ReadAt(ino uint32, offset int64, buf []byte) (int, error) {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	_, d, err := fs.getInodeData(ino, 0, false, false)
	if err != nil {
		return 0, fmt.Errorf("reading inode %d: %w", ino, err)
	}
	if offset >= int64(d.Size) {
		return 0, nil
	}
	if rem := int64(d.Size) - offset; int64(len(buf)) > rem {
		buf = buf[:rem]
	}

	var entries []uint32
	if d.IndexBlock != 0 {
		entries, err = fs.readIndexBlock(d.IndexBlock)
		if err != nil {
			return 0, fmt.Errorf("reading inode %d: %w", ino, err)
		}
	}

	n := 0
	for n < len(buf) {
		pos := offset + int64(n)
		blkIdx := int(pos / BlockSize)
		blkOff := int(pos % BlockSize)
		want := len(buf) - n
		if want > BlockSize-blkOff {
			want = BlockSize - blkOff
		}
		if blkIdx >= len(entries) || entries[blkIdx] == 0 {
			// Sparse hole: reads back as zero.
			for i := n; i < n+want; i++ {
				buf[i] = 0
			}
		} else {
			full := make([]byte, BlockSize)
			if err := fs.vol.ReadBlock(entries[blkIdx], full); err != nil {
				return n, fmt.Errorf("reading inode %d: %w", ino, err)
			}
			copy(buf[n:n+want], full[blkOff:blkOff+want])
		}
		n += want
	}
	return n, nil
}

// WriteAt writes data into regular file ino's live content at offset,
// extending the file and allocating (or CoWing) data and index blocks as
// needed. Grounded on original_source/file.c's ouichefs_file_write.
func (fs *FileSystem) WriteAt(ino uint32, offset int64, data []byte) (int, error) {
	if offset+int64(len(data)) > MaxFileSize {
		return 0, fmt.Errorf("writing inode %d: %w", ino, ErrTooBig)
	}

	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	idx, d, err := fs.getInodeData(ino, 0, false, true)
	if err != nil {
		return 0, fmt.Errorf("writing inode %d: %w", ino, err)
	}

	if d.IndexBlock == 0 {
		d.IndexBlock, err = fs.AllocBlock(KindIndex)
		if err != nil {
			return 0, fmt.Errorf("writing inode %d: %w", ino, err)
		}
	} else {
		// A reflinked index block may still be shared with another file.
		d.IndexBlock, err = fs.CowBlock(d.IndexBlock, KindIndex)
		if err != nil {
			return 0, fmt.Errorf("writing inode %d: %w", ino, err)
		}
	}
	entries, err := fs.readIndexBlock(d.IndexBlock)
	if err != nil {
		return 0, fmt.Errorf("writing inode %d: %w", ino, err)
	}

	n := 0
	for n < len(data) {
		pos := offset + int64(n)
		blkIdx := int(pos / BlockSize)
		blkOff := int(pos % BlockSize)
		want := len(data) - n
		if want > BlockSize-blkOff {
			want = BlockSize - blkOff
		}

		var bno uint32
		if entries[blkIdx] == 0 {
			bno, err = fs.AllocBlock(KindData)
			if err != nil {
				return n, fmt.Errorf("writing inode %d: %w", ino, err)
			}
			d.NBlocks++
			entries[blkIdx] = bno
		} else {
			bno, err = fs.CowBlock(entries[blkIdx], KindData)
			if err != nil {
				return n, fmt.Errorf("writing inode %d: %w", ino, err)
			}
			entries[blkIdx] = bno
		}

		full := make([]byte, BlockSize)
		if blkOff != 0 || want != BlockSize {
			if err := fs.vol.ReadBlock(bno, full); err != nil {
				return n, fmt.Errorf("writing inode %d: %w", ino, err)
			}
		}
		copy(full[blkOff:blkOff+want], data[n:n+want])
		if err := fs.vol.WriteBlock(bno, full); err != nil {
			return n, fmt.Errorf("writing inode %d: %w", ino, err)
		}
		n += want
	}

	if err := fs.writeIndexBlock(d.IndexBlock, entries); err != nil {
		return n, fmt.Errorf("writing inode %d: %w", ino, err)
	}
	if newSize := uint64(offset) + uint64(n); newSize > d.Size {
		d.Size = newSize
	}
	fs.setInodeData(idx, *d)
	return n, nil
}

// Truncate shrinks or grows regular file ino's live content to size,
// freeing any data blocks beyond the new size.
func (fs *FileSystem) Truncate(ino uint32, size uint64) error {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	idx, d, err := fs.getInodeData(ino, 0, false, true)
	if err != nil {
		return fmt.Errorf("truncating inode %d: %w", ino, err)
	}
	if size >= d.Size {
		d.Size = size
		fs.setInodeData(idx, *d)
		return nil
	}
	if d.IndexBlock == 0 {
		d.Size = size
		fs.setInodeData(idx, *d)
		return nil
	}
	d.IndexBlock, err = fs.CowBlock(d.IndexBlock, KindIndex)
	if err != nil {
		return fmt.Errorf("truncating inode %d: %w", ino, err)
	}
	entries, err := fs.readIndexBlock(d.IndexBlock)
	if err != nil {
		return fmt.Errorf("truncating inode %d: %w", ino, err)
	}
	keep := int((size + BlockSize - 1) / BlockSize)
	for i := keep; i < len(entries); i++ {
		if entries[i] == 0 {
			continue
		}
		if err := fs.PutBlock(entries[i], KindData); err != nil {
			return fmt.Errorf("truncating inode %d: %w", ino, err)
		}
		entries[i] = 0
		d.NBlocks--
	}
	if err := fs.writeIndexBlock(d.IndexBlock, entries); err != nil {
		return fmt.Errorf("truncating inode %d: %w", ino, err)
	}
	d.Size = size
	fs.setInodeData(idx, *d)
	return nil
}
