package snapfs

import (
	"fmt"
	"os"
)

// Volume is the block device adapter: the host collaborator this core reads
// and writes fixed-size blocks through. Adapted from the teacher's
// pkg/ext2.Volume, generalized from byte offsets to block numbers since
// every access in this filesystem is block-granular.
type Volume interface {
	ReadBlock(bno uint32, buf []byte) error
	WriteBlock(bno uint32, buf []byte) error
	Sync() error
}

// MemoryVolume is an in-memory Volume, useful for tests and for the
// property-test harness in §8.
type MemoryVolume struct {
	blocks [][BlockSize]byte
}

// NewMemoryVolume allocates a MemoryVolume with room for nblocks blocks.
func NewMemoryVolume(nblocks uint32) *MemoryVolume {
	return &MemoryVolume{blocks: make([][BlockSize]byte, nblocks)}
}

func (v *MemoryVolume) ReadBlock(bno uint32, buf []byte) error {
	if int(bno) >= len(v.blocks) {
		return fmt.Errorf("reading block %d: %w", bno, ErrBlockOutOfRange{uint64(bno)})
	}
	copy(buf, v.blocks[bno][:])
	return nil
}

func (v *MemoryVolume) WriteBlock(bno uint32, buf []byte) error {
	if int(bno) >= len(v.blocks) {
		return fmt.Errorf("writing block %d: %w", bno, ErrBlockOutOfRange{uint64(bno)})
	}
	copy(v.blocks[bno][:], buf)
	return nil
}

func (v *MemoryVolume) Sync() error { return nil }

// FileVolume is a Volume backed by a regular file, the on-disk image a real
// mount would use. Adapted from the teacher's pkg/ext2.FileVolume.
type FileVolume struct {
	file *os.File
}

// OpenFileVolume opens path for reading and writing as a block device image.
func OpenFileVolume(path string) (*FileVolume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening volume %q: %w", path, err)
	}
	return &FileVolume{file: f}, nil
}

// CreateFileVolume creates a new, zero-filled image of the given block
// count. Used by the offline formatter (cmd/mkfs).
func CreateFileVolume(path string, nblocks uint32) (*FileVolume, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating volume %q: %w", path, err)
	}
	if err := f.Truncate(int64(nblocks) * BlockSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing volume %q: %w", path, err)
	}
	return &FileVolume{file: f}, nil
}

func (v *FileVolume) ReadBlock(bno uint32, buf []byte) error {
	if _, err := v.file.ReadAt(buf[:BlockSize], int64(bno)*BlockSize); err != nil {
		return fmt.Errorf("reading block %d: %w", bno, err)
	}
	return nil
}

func (v *FileVolume) WriteBlock(bno uint32, buf []byte) error {
	if _, err := v.file.WriteAt(buf[:BlockSize], int64(bno)*BlockSize); err != nil {
		return fmt.Errorf("writing block %d: %w", bno, err)
	}
	return nil
}

func (v *FileVolume) Sync() error {
	if err := v.file.Sync(); err != nil {
		return fmt.Errorf("syncing volume: %w", err)
	}
	return nil
}

func (v *FileVolume) Close() error { return v.file.Close() }

// ErrBlockOutOfRange mirrors the teacher's typed error of the same name in
// pkg/ext2/filesystem.go.
type ErrBlockOutOfRange struct {
	Block uint64
}

func (err ErrBlockOutOfRange) Error() string {
	return fmt.Sprintf("block `%#x` is out of range", err.Block)
}
