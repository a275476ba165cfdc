package snapfs

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Checksum hashes every block of the volume mounted by fs, from block 0 to
// the image's last block, as currently written to it. The in-memory
// bitmaps, inode table, inode-data entries and refcounts reach the volume
// only on Sync, so changes to them since the last Sync are not reflected.
func (fs *FileSystem) Checksum() ([32]byte, error) {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()

	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, fmt.Errorf("checksumming: %w", err)
	}

	buf := make([]byte, BlockSize)
	total := fs.sb.NBlocks
	for bno := uint32(0); bno < total; bno++ {
		if err := fs.vol.ReadBlock(bno, buf); err != nil {
			return [32]byte{}, fmt.Errorf("checksumming block %d: %w", bno, err)
		}
		if _, err := h.Write(buf); err != nil {
			return [32]byte{}, fmt.Errorf("checksumming block %d: %w", bno, err)
		}
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
