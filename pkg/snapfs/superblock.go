package snapfs

import "fmt"

// SnapshotSlot is one entry of the fixed-size snapshot table embedded in
// the superblock (spec §3). ID == 0 means the slot is empty; slot 0 is
// always the live snapshot with ID == 0.
type SnapshotSlot struct {
	CreatedUnix int64
	ID          uint32
}

// Superblock holds every region size, free-object counter, and the
// snapshot table — the core's only process-wide state (spec §9 "Global
// mutable state"), encoded little-endian into block 0 the way the
// teacher's pkg/ext2.Superblock is encoded into block 1 of an ext2 image.
type Superblock struct {
	NBlocks uint32 // total blocks in the image, including this one

	NInodeStoreBlocks     uint32 // N_is
	NInodeFreeBlocks      uint32 // N_if
	NBlockFreeBlocks      uint32 // N_bf
	NInodeDataFreeBlocks  uint32 // N_idf
	NInodeDataIndexBlocks uint32 // N_idx
	NMetaBlocks           uint32 // N_meta

	FreeInodes    uint32
	FreeBlocks    uint32
	FreeInodeData uint32

	Snapshots [MaxSnapshots]SnapshotSlot
}

// Region start offsets, derived from the region sizes above (spec §3's
// table, in order).
func (sb *Superblock) InodeStoreStart() uint32 { return 1 }
func (sb *Superblock) InodeFreeStart() uint32  { return sb.InodeStoreStart() + sb.NInodeStoreBlocks }
func (sb *Superblock) BlockFreeStart() uint32  { return sb.InodeFreeStart() + sb.NInodeFreeBlocks }
func (sb *Superblock) IDFreeStart() uint32     { return sb.BlockFreeStart() + sb.NBlockFreeBlocks }
func (sb *Superblock) IDIndexStart() uint32    { return sb.IDFreeStart() + sb.NInodeDataFreeBlocks }
func (sb *Superblock) MetaStart() uint32       { return sb.IDIndexStart() + sb.NInodeDataIndexBlocks }
func (sb *Superblock) DataStart() uint32       { return sb.MetaStart() + sb.NMetaBlocks }

// NInodes is the total number of inode slots the inode store holds.
func (sb *Superblock) NInodes() uint32 { return sb.NInodeStoreBlocks * InodesPerBlock }

// NIDEntries is the total number of inode-data entry slots the inode-data
// region can address: each block there packs EntriesPerIDBlock 80-byte
// records rather than IndexEntries uint32 pointers.
func (sb *Superblock) NIDEntries() uint32 { return sb.NInodeDataIndexBlocks * EntriesPerIDBlock }

// NDataBlocks is the number of blocks in the data region, each with its own
// refcount byte in the metadata region.
func (sb *Superblock) NDataBlocks() uint32 { return sb.NBlocks - sb.DataStart() }

// superblockPayload is large enough for magic + every field above; well
// under one block, matching the static-assertion invariant in spec §6.
const superblockPayload = 4 + 10*4 + MaxSnapshots*12

type ErrBadMagic struct{ Found uint32 }

func (e ErrBadMagic) Error() string {
	return fmt.Sprintf("bad magic: wanted `%#x`; found `%#x`", Magic, e.Found)
}

// DecodeSuperblock parses a just-read block 0 into a Superblock.
func DecodeSuperblock(b []byte) (Superblock, error) {
	var sb Superblock
	magic := le32(b[0:4])
	if magic != Magic {
		return Superblock{}, fmt.Errorf("decoding superblock: %w", ErrBadMagic{magic})
	}
	sb.NBlocks = le32(b[4:8])
	sb.NInodeStoreBlocks = le32(b[8:12])
	sb.NInodeFreeBlocks = le32(b[12:16])
	sb.NBlockFreeBlocks = le32(b[16:20])
	sb.NInodeDataFreeBlocks = le32(b[20:24])
	sb.NInodeDataIndexBlocks = le32(b[24:28])
	sb.NMetaBlocks = le32(b[28:32])
	sb.FreeInodes = le32(b[32:36])
	sb.FreeBlocks = le32(b[36:40])
	sb.FreeInodeData = le32(b[40:44])

	off := 44
	for i := 0; i < MaxSnapshots; i++ {
		sb.Snapshots[i].CreatedUnix = int64(le64(b[off : off+8]))
		sb.Snapshots[i].ID = le32(b[off+8 : off+12])
		off += 12
	}
	return sb, nil
}

// Encode writes sb into b (a zeroed block-sized buffer expected).
func (sb *Superblock) Encode(b []byte) {
	putLE32(b[0:4], Magic)
	putLE32(b[4:8], sb.NBlocks)
	putLE32(b[8:12], sb.NInodeStoreBlocks)
	putLE32(b[12:16], sb.NInodeFreeBlocks)
	putLE32(b[16:20], sb.NBlockFreeBlocks)
	putLE32(b[20:24], sb.NInodeDataFreeBlocks)
	putLE32(b[24:28], sb.NInodeDataIndexBlocks)
	putLE32(b[28:32], sb.NMetaBlocks)
	putLE32(b[32:36], sb.FreeInodes)
	putLE32(b[36:40], sb.FreeBlocks)
	putLE32(b[40:44], sb.FreeInodeData)

	off := 44
	for i := 0; i < MaxSnapshots; i++ {
		putLE64(b[off:off+8], uint64(sb.Snapshots[i].CreatedUnix))
		putLE32(b[off+8:off+12], sb.Snapshots[i].ID)
		off += 12
	}
}

// layoutFor solves the circular sizing problem at format time: the block
// free bitmap and the metadata region are both sized in proportion to the
// data region, which is everything left over after every other region is
// subtracted from the image. A handful of fixed-point iterations converge
// immediately since both are tiny fractions of the image.
func layoutFor(totalBlocks uint32) Superblock {
	var sb Superblock
	sb.NBlocks = totalBlocks

	// One inode per 4 image blocks, rounded up to a whole inode-store block.
	nInodes := totalBlocks / 4
	if nInodes < InodesPerBlock {
		nInodes = InodesPerBlock
	}
	sb.NInodeStoreBlocks = ceilDiv(nInodes, InodesPerBlock)
	sb.NInodeFreeBlocks = ceilDiv(sb.NInodeStoreBlocks*InodesPerBlock, BlockSize*8)

	// Inode-data entries: generously, two per inode (one for the live
	// snapshot, headroom for one additional snapshot to diverge into
	// before the next create/delete cycle reclaims space).
	nIDEntries := sb.NInodeStoreBlocks * InodesPerBlock * 2
	sb.NInodeDataIndexBlocks = ceilDiv(nIDEntries, EntriesPerIDBlock)
	sb.NInodeDataFreeBlocks = ceilDiv(sb.NInodeDataIndexBlocks*EntriesPerIDBlock, BlockSize*8)

	fixedOverhead := 1 + sb.NInodeStoreBlocks + sb.NInodeFreeBlocks +
		sb.NInodeDataFreeBlocks + sb.NInodeDataIndexBlocks

	dataBlocks := totalBlocks - fixedOverhead
	for i := 0; i < 3; i++ {
		nbf := ceilDiv(dataBlocks, BlockSize*8)
		nmeta := ceilDiv(dataBlocks, BlockSize)
		newData := totalBlocks - fixedOverhead - nbf - nmeta
		sb.NBlockFreeBlocks = nbf
		sb.NMetaBlocks = nmeta
		dataBlocks = newData
	}

	return sb
}

func ceilDiv(a, b uint32) uint32 {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}
