package snapfs

import "fmt"

// Handle is an open reference to a live-snapshot inode, stamped with the
// mount's generation counter at open time. A Handle whose generation has
// fallen behind the filesystem's — because a RestoreSnapshot ran while it
// was open — fails every subsequent write with ErrStale rather than
// silently writing into whatever the inode number now resolves to
// (spec §4.5/§9 open question, design decision (a)).
type Handle struct {
	fs         *FileSystem
	Ino        uint32
	generation uint64
}

// Open returns a Handle for ino, snapshotting the current generation.
func (fs *FileSystem) Open(ino uint32) (*Handle, error) {
	fs.freeze.RLock()
	_, _, err := fs.getInodeData(ino, 0, false, false)
	gen := fs.generation
	fs.freeze.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("opening inode %d: %w", ino, err)
	}
	return &Handle{fs: fs, Ino: ino, generation: gen}, nil
}

func (h *Handle) checkStale() error {
	if h.fs.currentGeneration() != h.generation {
		return fmt.Errorf("handle for inode %d: %w", h.Ino, ErrStale)
	}
	return nil
}

func (fs *FileSystem) currentGeneration() uint64 {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()
	return fs.generation
}

func (h *Handle) ReadAt(offset int64, buf []byte) (int, error) {
	if err := h.checkStale(); err != nil {
		return 0, err
	}
	return h.fs.ReadAt(h.Ino, offset, buf)
}

func (h *Handle) WriteAt(offset int64, data []byte) (int, error) {
	if err := h.checkStale(); err != nil {
		return 0, err
	}
	return h.fs.WriteAt(h.Ino, offset, data)
}

func (h *Handle) Truncate(size uint64) error {
	if err := h.checkStale(); err != nil {
		return err
	}
	return h.fs.Truncate(h.Ino, size)
}

func (h *Handle) Stat() (InodeData, error) {
	if err := h.checkStale(); err != nil {
		return InodeData{}, err
	}
	return h.fs.Stat(h.Ino)
}
