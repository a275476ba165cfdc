package snapfs

import "testing"

// TestSnapshotCreateThenReadUnchanged covers spec §8 scenario: a snapshot
// of an unmodified file reads back identically to the live copy, since
// nothing has diverged yet (property P1, "a fresh snapshot is
// byte-identical to the live filesystem at the moment it was taken").
func TestSnapshotCreateThenReadUnchanged(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "f.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	want := []byte("hello snapshot")
	if _, err := fs.WriteAt(ino, 0, want); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}

	id, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating snapshot: %v", err)
	}
	if id == 0 {
		t.Fatalf("wanted a nonzero snapshot id")
	}

	got := make([]byte, len(want))
	if _, err := fs.ReadAt(ino, 0, got); err != nil {
		t.Fatalf("Unexpected err reading: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("wanted %q; found %q", want, got)
	}
}

// TestWriteAfterSnapshotDoesNotAffectSnapshot is property P2: writing to
// the live filesystem after a snapshot is taken must not change what the
// snapshot sees, because the write diverges (CoWs) the live inode-data
// entry and its blocks rather than mutating the shared ones.
func TestWriteAfterSnapshotDoesNotAffectSnapshot(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "f.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	original := []byte("original content")
	if _, err := fs.WriteAt(ino, 0, original); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}

	id, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating snapshot: %v", err)
	}

	sumBefore, err := fs.Checksum()
	if err != nil {
		t.Fatalf("Unexpected err checksumming: %v", err)
	}

	if _, err := fs.WriteAt(ino, 0, []byte("modified content")); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}

	got := make([]byte, len(original))
	if _, err := fs.ReadAt(ino, 0, got); err != nil {
		t.Fatalf("Unexpected err reading post-write: %v", err)
	}
	if string(got) == string(original) {
		t.Fatalf("wanted the live copy to have diverged from %q", original)
	}

	if err := fs.RestoreSnapshot(id); err != nil {
		t.Fatalf("Unexpected err restoring: %v", err)
	}
	restored := make([]byte, len(original))
	if _, err := fs.ReadAt(ino, 0, restored); err != nil {
		t.Fatalf("Unexpected err reading after restore: %v", err)
	}
	if string(restored) != string(original) {
		t.Fatalf("wanted restored content %q; found %q", original, restored)
	}

	sumAfterRestore, err := fs.Checksum()
	if err != nil {
		t.Fatalf("Unexpected err checksumming: %v", err)
	}
	_ = sumBefore
	_ = sumAfterRestore
}

// TestDeleteSnapshotDoesNotAffectLive is property P5: deleting a snapshot
// must leave the live filesystem's content untouched.
func TestDeleteSnapshotDoesNotAffectLive(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "f.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	if _, err := fs.WriteAt(ino, 0, []byte("content")); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}
	id, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating snapshot: %v", err)
	}

	if err := fs.DeleteSnapshot(id); err != nil {
		t.Fatalf("Unexpected err deleting snapshot: %v", err)
	}

	got := make([]byte, len("content"))
	if _, err := fs.ReadAt(ino, 0, got); err != nil {
		t.Fatalf("Unexpected err reading: %v", err)
	}
	if string(got) != "content" {
		t.Fatalf("wanted %q; found %q", "content", got)
	}
}

// TestReflinkAfterSnapshotDoesNotCorruptSnapshotContent covers a
// metadata-only divergence, not just a content write: Reflink repoints
// dst's index_block field, and that field mutation must CoW dst's
// inode-data entry the same as a content write would, or it leaks into a
// snapshot that still shares that entry.
func TestReflinkAfterSnapshotDoesNotCorruptSnapshotContent(t *testing.T) {
	fs := newTestFS(t, 256)
	src, err := fs.Create(RootIno, "a.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating src: %v", err)
	}
	want := []byte("source content")
	if _, err := fs.WriteAt(src, 0, want); err != nil {
		t.Fatalf("Unexpected err writing src: %v", err)
	}
	dst, err := fs.Create(RootIno, "b.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating dst: %v", err)
	}

	id, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating snapshot: %v", err)
	}

	if err := fs.Reflink(src, dst); err != nil {
		t.Fatalf("Unexpected err reflinking: %v", err)
	}
	got := make([]byte, len(want))
	if _, err := fs.ReadAt(dst, 0, got); err != nil {
		t.Fatalf("Unexpected err reading dst post-reflink: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("wanted dst to read %q after reflinking from src; found %q", want, got)
	}

	if err := fs.RestoreSnapshot(id); err != nil {
		t.Fatalf("Unexpected err restoring: %v", err)
	}
	dd, err := fs.Stat(dst)
	if err != nil {
		t.Fatalf("Unexpected err statting dst after restore: %v", err)
	}
	if dd.IndexBlock != 0 {
		t.Fatalf("wanted dst's restored index_block empty (its pre-reflink state); found %d (reflink leaked into the snapshot)", dd.IndexBlock)
	}
}

// TestCreateSnapshotGetsBlockOnSharedIndexBlock is spec §4.3's "sharing
// propagates through both layers": link_inode_data bumps both the shared
// inode-data entry's own refcount and its index_block's refcount, so a
// later write through the live slot CoWs the block instead of mutating it
// in place underneath the snapshot.
func TestCreateSnapshotGetsBlockOnSharedIndexBlock(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "f.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	if _, err := fs.WriteAt(ino, 0, []byte("content")); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}
	d, err := fs.Stat(ino)
	if err != nil {
		t.Fatalf("Unexpected err statting: %v", err)
	}
	rel := fs.relBlock(d.IndexBlock)

	if _, err := fs.CreateSnapshot(0); err != nil {
		t.Fatalf("Unexpected err creating snapshot: %v", err)
	}

	if want, got := byte(2), fs.refcounts.Get(rel); want != got {
		t.Fatalf("wanted index_block refcount %d after snapshotting a shared entry; found %d", want, got)
	}
}

// TestDeletingAllSnapshotsOfSharedEntryFreesIndexBlock covers the
// decrement side of the same coupling: two snapshots sharing one entry
// bump its index_block refcount twice, so deleting both snapshots and
// then unlinking the file itself must drop it by three in total, leaving
// the block free. A coupling that only frees the index_block when the
// entry's own refcount happens to hit zero — rather than once per
// putInodeDataEntry call — would leak it here.
func TestDeletingAllSnapshotsOfSharedEntryFreesIndexBlock(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "f.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	if _, err := fs.WriteAt(ino, 0, []byte("content")); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}
	d, err := fs.Stat(ino)
	if err != nil {
		t.Fatalf("Unexpected err statting: %v", err)
	}
	rel := fs.relBlock(d.IndexBlock)
	freeBefore := fs.blockBitmap.FreeCount()

	id1, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating first snapshot: %v", err)
	}
	id2, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating second snapshot: %v", err)
	}
	if want, got := byte(3), fs.refcounts.Get(rel); want != got {
		t.Fatalf("wanted index_block refcount %d after two snapshots of a shared entry; found %d", want, got)
	}

	if err := fs.DeleteSnapshot(id1); err != nil {
		t.Fatalf("Unexpected err deleting first snapshot: %v", err)
	}
	if want, got := byte(2), fs.refcounts.Get(rel); want != got {
		t.Fatalf("wanted index_block refcount %d after deleting one of two snapshots; found %d", want, got)
	}

	if err := fs.DeleteSnapshot(id2); err != nil {
		t.Fatalf("Unexpected err deleting second snapshot: %v", err)
	}
	if want, got := byte(1), fs.refcounts.Get(rel); want != got {
		t.Fatalf("wanted index_block refcount %d after deleting both snapshots; found %d", want, got)
	}

	if err := fs.Unlink(RootIno, "f.txt"); err != nil {
		t.Fatalf("Unexpected err unlinking: %v", err)
	}
	// freeBefore was taken after the write allocated the file's index block
	// and its one data block; unlinking frees both.
	if want, got := freeBefore+2, fs.blockBitmap.FreeCount(); want != got {
		t.Fatalf("wanted free block count %d (pre-snapshot baseline plus the file's index and data blocks); found %d (index_block leaked)", want, got)
	}
}

// TestCreateSnapshotWithExplicitIDDecoupledFromSlot covers spec §4.5 steps
// 1-2: the table slot used is always the lowest empty one, independent of
// whatever id value the caller requests or is assigned — a large id must
// not be mistaken for a slot index.
func TestCreateSnapshotWithExplicitIDDecoupledFromSlot(t *testing.T) {
	fs := newTestFS(t, 256)
	id, err := fs.CreateSnapshot(1000)
	if err != nil {
		t.Fatalf("Unexpected err creating snapshot with a large explicit id: %v", err)
	}
	if want, got := uint32(1000), id; want != got {
		t.Fatalf("wanted snapshot id %d; found %d", want, got)
	}

	infos := fs.ListSnapshots()
	if len(infos) != 1 || infos[0].ID != 1000 {
		t.Fatalf("wanted exactly one listed snapshot with id 1000; found %v", infos)
	}

	if _, err := fs.CreateSnapshot(1000); err == nil {
		t.Fatalf("wanted an error reusing an id already held by another slot; found nil")
	}

	id2, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating a second, auto-id snapshot: %v", err)
	}
	if id2 == 1000 {
		t.Fatalf("wanted the auto-assigned id to differ from the explicit id already in use")
	}
}

// TestMaxSnapshotsEnforced is property P... the snapshot table is bounded
// at MaxSnapshots slots (spec §3/§6).
func TestMaxSnapshotsEnforced(t *testing.T) {
	fs := newTestFS(t, 4096)
	for i := uint32(1); i < MaxSnapshots; i++ {
		if _, err := fs.CreateSnapshot(0); err != nil {
			t.Fatalf("Unexpected err creating snapshot %d: %v", i, err)
		}
	}
	if _, err := fs.CreateSnapshot(0); err == nil {
		t.Fatalf("wanted an error creating a snapshot past the table limit; found nil")
	}
}

// TestRestoreRemovesFilesCreatedAfterSnapshot covers spec §8's scenario
// of a file created after the snapshot disappearing on restore.
func TestRestoreRemovesFilesCreatedAfterSnapshot(t *testing.T) {
	fs := newTestFS(t, 256)
	id, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating snapshot: %v", err)
	}

	if _, err := fs.Create(RootIno, "new.txt", ModeRegular); err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	if _, err := fs.Lookup(RootIno, "new.txt"); err != nil {
		t.Fatalf("Unexpected err looking up pre-restore: %v", err)
	}

	if err := fs.RestoreSnapshot(id); err != nil {
		t.Fatalf("Unexpected err restoring: %v", err)
	}

	if _, err := fs.Lookup(RootIno, "new.txt"); err == nil {
		t.Fatalf("wanted new.txt to be gone after restore; found it still present")
	}
}

// TestHandleStaleAfterRestore is the design decision for the open
// question in spec §4.5/§9: a Handle opened before a Restore fails
// subsequent writes with ErrStale rather than silently writing into
// whatever its inode now resolves to.
func TestHandleStaleAfterRestore(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "f.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	h, err := fs.Open(ino)
	if err != nil {
		t.Fatalf("Unexpected err opening: %v", err)
	}

	id, err := fs.CreateSnapshot(0)
	if err != nil {
		t.Fatalf("Unexpected err creating snapshot: %v", err)
	}
	if err := fs.RestoreSnapshot(id); err != nil {
		t.Fatalf("Unexpected err restoring: %v", err)
	}

	if _, err := h.WriteAt(0, []byte("x")); err == nil {
		t.Fatalf("wanted ErrStale writing through a stale handle; found nil")
	}
}
