package snapfs

// VFSAdapter is the host collaborator notified of mount-level lifecycle
// events, the seam a real kernel VFS (or a FUSE loop) would hang
// inode-cache invalidation and logging on. Spec §1 calls this out as an
// external collaborator the core depends on without owning.
type VFSAdapter interface {
	// OnMount is called once Mount has finished reading every region.
	OnMount(runID string, totalBlocks uint32)
	// OnUnmount is called as the last step of Unmount.
	OnUnmount(runID string)
	// OnRestore is called after Restore swaps the live inode table,
	// the trigger point for a real VFS to drop every cached dentry and
	// inode below the mount point.
	OnRestore(runID string, snapshotID uint32)
}

// nopVFSAdapter is the default VFSAdapter used when callers don't need to
// observe lifecycle events, e.g. in most tests.
type nopVFSAdapter struct{}

func (nopVFSAdapter) OnMount(string, uint32)   {}
func (nopVFSAdapter) OnUnmount(string)         {}
func (nopVFSAdapter) OnRestore(string, uint32) {}
