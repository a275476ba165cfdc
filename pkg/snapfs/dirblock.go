package snapfs

import (
	"bytes"
	"fmt"
)

// DirEntry is one slot of a directory block: an inode number and a
// fixed-width, NUL-padded filename. Ino == 0 marks an empty slot.
// Grounded on original_source/ouichefs.h's struct ouichefs_dir_block
// entry layout.
type DirEntry struct {
	Ino  uint32
	Name string
}

func decodeDirEntry(b []byte) DirEntry {
	ino := le32(b[0:4])
	raw := b[4 : 4+FilenameLen]
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		nul = len(raw)
	}
	return DirEntry{Ino: ino, Name: string(raw[:nul])}
}

func (e DirEntry) encode(b []byte) {
	putLE32(b[0:4], e.Ino)
	name := b[4 : 4+FilenameLen]
	for i := range name {
		name[i] = 0
	}
	copy(name, e.Name)
}

func (fs *FileSystem) readDirBlock(bno uint32) ([]DirEntry, error) {
	buf := make([]byte, BlockSize)
	if err := fs.vol.ReadBlock(bno, buf); err != nil {
		return nil, err
	}
	out := make([]DirEntry, MaxSubfiles)
	for i := 0; i < MaxSubfiles; i++ {
		out[i] = decodeDirEntry(buf[i*DirEntrySize : (i+1)*DirEntrySize])
	}
	return out, nil
}

func (fs *FileSystem) writeDirBlock(bno uint32, entries []DirEntry) error {
	buf := make([]byte, BlockSize)
	for i := 0; i < MaxSubfiles; i++ {
		var e DirEntry
		if i < len(entries) {
			e = entries[i]
		}
		e.encode(buf[i*DirEntrySize : (i+1)*DirEntrySize])
	}
	return fs.vol.WriteBlock(bno, buf)
}

// ErrNameTooLong is returned by directory operations when a filename
// exceeds FilenameLen bytes.
type ErrNameTooLong struct{ Name string }

func (e ErrNameTooLong) Error() string {
	return fmt.Sprintf("name %q exceeds %d bytes", e.Name, FilenameLen)
}

// ErrDirFull is returned when a directory block has no empty slot left
// (the original ouichefs one-block-per-directory limit, spec §3/§11).
var ErrDirFull = &kindSentinel{KindNoSpace}
