package snapfs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FileSystem is the mounted image: every region's in-memory cache plus the
// freeze/thaw lock that serializes snapshot operations against ordinary
// traffic (spec §5). Method sets are grouped by concern across several
// files (blockstore.go, inodedata.go, inode.go, directory.go, fileindex.go,
// snapshot.go)
// the way the teacher's pkg/ext2.FileSystem hangs every operation off one
// type rather than one type per layer.
type FileSystem struct {
	vol Volume
	sb  Superblock

	inodeBitmap *Bitmap
	blockBitmap *Bitmap
	idBitmap    *Bitmap
	inodeTable  []inodeRecord // length sb.NInodes()
	idEntries   []InodeData   // length sb.NIDEntries()
	refcounts   *RefcountTable

	// freeze is the reader/writer lock described in spec §5: ordinary
	// filesystem operations take RLock, snapshot Create/Delete/Restore
	// take Lock.
	freeze sync.RWMutex

	vfs VFSAdapter

	// runID identifies one mount and is passed to every VFSAdapter
	// callback, the way the teacher's services stamp a uuid per run/request.
	runID string

	// generation is bumped on every RestoreSnapshot; a Handle opened
	// before the bump fails subsequent writes with ErrStale.
	generation uint64
}

// Mount reads the superblock and every region's free-object table from vol
// and returns a ready FileSystem. Adapted from the teacher's
// pkg/ext2.FileSystem mount path, which reads the superblock then the
// group descriptor table before returning.
func Mount(vol Volume, vfs VFSAdapter) (*FileSystem, error) {
	if vfs == nil {
		vfs = nopVFSAdapter{}
	}

	buf := make([]byte, BlockSize)
	if err := vol.ReadBlock(SuperblockBlock, buf); err != nil {
		return nil, fmt.Errorf("mounting: reading superblock: %w", err)
	}
	sb, err := DecodeSuperblock(buf)
	if err != nil {
		return nil, fmt.Errorf("mounting: %w", err)
	}

	fs := &FileSystem{vol: vol, sb: sb, vfs: vfs, runID: uuid.New().String()}

	if fs.inodeBitmap, err = fs.readBitmap(sb.InodeFreeStart(), sb.NInodeFreeBlocks, sb.NInodes()); err != nil {
		return nil, fmt.Errorf("mounting: reading inode bitmap: %w", err)
	}
	if fs.blockBitmap, err = fs.readBitmap(sb.BlockFreeStart(), sb.NBlockFreeBlocks, sb.NDataBlocks()); err != nil {
		return nil, fmt.Errorf("mounting: reading block bitmap: %w", err)
	}
	if fs.idBitmap, err = fs.readBitmap(sb.IDFreeStart(), sb.NInodeDataFreeBlocks, sb.NIDEntries()); err != nil {
		return nil, fmt.Errorf("mounting: reading inode-data bitmap: %w", err)
	}

	if fs.inodeTable, err = fs.readInodeTable(); err != nil {
		return nil, fmt.Errorf("mounting: reading inode table: %w", err)
	}

	if fs.idEntries, err = fs.readIDEntries(); err != nil {
		return nil, fmt.Errorf("mounting: reading inode-data entries: %w", err)
	}

	if fs.refcounts, err = fs.readRefcounts(); err != nil {
		return nil, fmt.Errorf("mounting: reading metadata region: %w", err)
	}

	if n := fs.inodeBitmap.FreeCount(); n != sb.FreeInodes {
		return nil, fmt.Errorf("mounting: %w: inode bitmap free count %d disagrees with superblock %d", ErrIO, n, sb.FreeInodes)
	}
	if n := fs.blockBitmap.FreeCount(); n != sb.FreeBlocks {
		return nil, fmt.Errorf("mounting: %w: block bitmap free count %d disagrees with superblock %d", ErrIO, n, sb.FreeBlocks)
	}

	fs.vfs.OnMount(fs.runID, sb.NBlocks)
	return fs, nil
}

func (fs *FileSystem) readBitmap(start, nblocks, nobjects uint32) (*Bitmap, error) {
	raw := make([]byte, nblocks*BlockSize)
	for i := uint32(0); i < nblocks; i++ {
		if err := fs.vol.ReadBlock(start+i, raw[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return nil, err
		}
	}
	need := (nobjects + 7) / 8
	if uint32(len(raw)) > need {
		raw = raw[:need]
	}
	return LoadBitmap(raw, nobjects), nil
}

func (fs *FileSystem) readInodeTable() ([]inodeRecord, error) {
	n := fs.sb.NInodeStoreBlocks
	records := make([]inodeRecord, 0, n*InodesPerBlock)
	buf := make([]byte, BlockSize)
	for i := uint32(0); i < n; i++ {
		if err := fs.vol.ReadBlock(fs.sb.InodeStoreStart()+i, buf); err != nil {
			return nil, err
		}
		for off := 0; off < BlockSize; off += InodeRecordSize {
			records = append(records, decodeInodeRecord(buf[off:off+InodeRecordSize]))
		}
	}
	return records, nil
}

func (fs *FileSystem) readIDEntries() ([]InodeData, error) {
	n := fs.sb.NInodeDataIndexBlocks
	entries := make([]InodeData, 0, n*EntriesPerIDBlock)
	buf := make([]byte, BlockSize)
	for i := uint32(0); i < n; i++ {
		if err := fs.vol.ReadBlock(fs.sb.IDIndexStart()+i, buf); err != nil {
			return nil, err
		}
		for off := 0; off+InodeDataSize <= BlockSize; off += InodeDataSize {
			entries = append(entries, DecodeInodeData(buf[off:off+InodeDataSize]))
		}
	}
	return entries, nil
}

func (fs *FileSystem) readRefcounts() (*RefcountTable, error) {
	n := fs.sb.NMetaBlocks
	raw := make([]byte, n*BlockSize)
	for i := uint32(0); i < n; i++ {
		if err := fs.vol.ReadBlock(fs.sb.MetaStart()+i, raw[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return nil, err
		}
	}
	ndata := fs.sb.NDataBlocks()
	if uint32(len(raw)) > ndata {
		raw = raw[:ndata]
	}
	return LoadRefcountTable(raw), nil
}

// Sync flushes every in-memory region cache back to vol, the way
// pkg/ext2.FileSystem.Sync rewrites the superblock and every dirty group.
func (fs *FileSystem) Sync() error {
	fs.freeze.Lock()
	defer fs.freeze.Unlock()

	sbBuf := make([]byte, BlockSize)
	fs.sb.FreeInodes = fs.inodeBitmap.FreeCount()
	fs.sb.FreeBlocks = fs.blockBitmap.FreeCount()
	fs.sb.FreeInodeData = fs.idBitmap.FreeCount()
	fs.sb.Encode(sbBuf)
	if err := fs.vol.WriteBlock(SuperblockBlock, sbBuf); err != nil {
		return fmt.Errorf("syncing: writing superblock: %w", err)
	}

	if err := fs.writeRegion(fs.sb.InodeFreeStart(), fs.sb.NInodeFreeBlocks, fs.inodeBitmap.Bytes()); err != nil {
		return fmt.Errorf("syncing: writing inode bitmap: %w", err)
	}
	if err := fs.writeRegion(fs.sb.BlockFreeStart(), fs.sb.NBlockFreeBlocks, fs.blockBitmap.Bytes()); err != nil {
		return fmt.Errorf("syncing: writing block bitmap: %w", err)
	}
	if err := fs.writeRegion(fs.sb.IDFreeStart(), fs.sb.NInodeDataFreeBlocks, fs.idBitmap.Bytes()); err != nil {
		return fmt.Errorf("syncing: writing inode-data bitmap: %w", err)
	}

	inodeBytes := make([]byte, len(fs.inodeTable)*InodeRecordSize)
	for i, r := range fs.inodeTable {
		r.encode(inodeBytes[i*InodeRecordSize : (i+1)*InodeRecordSize])
	}
	if err := fs.writeRegion(fs.sb.InodeStoreStart(), fs.sb.NInodeStoreBlocks, inodeBytes); err != nil {
		return fmt.Errorf("syncing: writing inode table: %w", err)
	}

	idBytes := make([]byte, fs.sb.NInodeDataIndexBlocks*BlockSize)
	for i, d := range fs.idEntries {
		blk := uint32(i) / EntriesPerIDBlock
		off := blk*BlockSize + (uint32(i)%EntriesPerIDBlock)*InodeDataSize
		d.Encode(idBytes[off : off+InodeDataSize])
	}
	if err := fs.writeRegion(fs.sb.IDIndexStart(), fs.sb.NInodeDataIndexBlocks, idBytes); err != nil {
		return fmt.Errorf("syncing: writing inode-data entries: %w", err)
	}

	if err := fs.writeRegion(fs.sb.MetaStart(), fs.sb.NMetaBlocks, fs.refcounts.Bytes()); err != nil {
		return fmt.Errorf("syncing: writing metadata region: %w", err)
	}

	if err := fs.vol.Sync(); err != nil {
		return fmt.Errorf("syncing: %w", err)
	}
	return nil
}

func (fs *FileSystem) writeRegion(start, nblocks uint32, data []byte) error {
	padded := make([]byte, nblocks*BlockSize)
	copy(padded, data)
	for i := uint32(0); i < nblocks; i++ {
		if err := fs.vol.WriteBlock(start+i, padded[i*BlockSize:(i+1)*BlockSize]); err != nil {
			return err
		}
	}
	return nil
}

// Unmount syncs and notifies the VFS adapter. Closing the underlying
// Volume, if it needs closing, is the caller's responsibility.
func (fs *FileSystem) Unmount() error {
	if err := fs.Sync(); err != nil {
		return fmt.Errorf("unmounting: %w", err)
	}
	fs.vfs.OnUnmount(fs.runID)
	return nil
}

// Superblock returns a copy of the current superblock, mainly for tests
// and for cmd/snapfsctl's status output.
func (fs *FileSystem) Superblock() Superblock {
	fs.freeze.RLock()
	defer fs.freeze.RUnlock()
	return fs.sb
}
