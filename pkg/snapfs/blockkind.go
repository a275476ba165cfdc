package snapfs

// BlockKind tags a data-region block with how PutBlock and CowBlock must
// walk it when its refcount reaches zero or needs duplicating. Mirrors the
// kind argument to ouichefs_put_block/ouichefs_cow_block in
// original_source/block.c, which original ouichefs encodes as a plain int
// rather than a named type.
type BlockKind int

const (
	// KindData is a leaf block: file contents, with no children to walk.
	KindData BlockKind = iota
	// KindIndex is a file index block: IndexEntries uint32 pointers to
	// KindData blocks.
	KindIndex
	// KindDir is a directory block: MaxSubfiles directory entries. Which
	// inode-data slot each named inode occupies is tracked per-inode, not
	// walked from here — see PutBlock.
	KindDir
)

func (k BlockKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindIndex:
		return "index"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}
