package snapfs

import "testing"

func newTestFS(t *testing.T, nblocks uint32) *FileSystem {
	t.Helper()
	vol := NewMemoryVolume(nblocks)
	if err := Format(vol, nblocks); err != nil {
		t.Fatalf("Unexpected err formatting: %v", err)
	}
	fs, err := Mount(vol, nil)
	if err != nil {
		t.Fatalf("Unexpected err mounting: %v", err)
	}
	return fs
}

func TestFormatAndMountRoot(t *testing.T) {
	fs := newTestFS(t, 256)
	d, err := fs.Stat(RootIno)
	if err != nil {
		t.Fatalf("Unexpected err statting root: %v", err)
	}
	if !d.Mode.IsDir() {
		t.Fatalf("wanted root to be a directory")
	}
	if want, got := uint32(2), d.NLink; want != got {
		t.Fatalf("wanted root nlink %d; found %d", want, got)
	}
}

func TestCreateLookupUnlink(t *testing.T) {
	fs := newTestFS(t, 256)

	ino, err := fs.Create(RootIno, "hello.txt", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}

	found, err := fs.Lookup(RootIno, "hello.txt")
	if err != nil {
		t.Fatalf("Unexpected err looking up: %v", err)
	}
	if found != ino {
		t.Fatalf("wanted inode %d; found %d", ino, found)
	}

	if err := fs.Unlink(RootIno, "hello.txt"); err != nil {
		t.Fatalf("Unexpected err unlinking: %v", err)
	}
	if _, err := fs.Lookup(RootIno, "hello.txt"); err == nil {
		t.Fatalf("wanted an error looking up an unlinked name; found nil")
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	fs := newTestFS(t, 256)
	if _, err := fs.Create(RootIno, "dup", ModeRegular); err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	if _, err := fs.Create(RootIno, "dup", ModeRegular); err == nil {
		t.Fatalf("wanted an error creating a duplicate name; found nil")
	}
}

func TestMkdirAndNestedFile(t *testing.T) {
	fs := newTestFS(t, 256)
	dir, err := fs.Create(RootIno, "subdir", ModeDir)
	if err != nil {
		t.Fatalf("Unexpected err creating directory: %v", err)
	}
	if _, err := fs.Create(dir, "nested.txt", ModeRegular); err != nil {
		t.Fatalf("Unexpected err creating nested file: %v", err)
	}
	if _, err := fs.Lookup(dir, "nested.txt"); err != nil {
		t.Fatalf("Unexpected err looking up nested file: %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "data.bin", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}

	want := []byte("the quick brown fox jumps over the lazy dog")
	if n, err := fs.WriteAt(ino, 0, want); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	} else if n != len(want) {
		t.Fatalf("wanted to write %d bytes; wrote %d", len(want), n)
	}

	got := make([]byte, len(want))
	if n, err := fs.ReadAt(ino, 0, got); err != nil {
		t.Fatalf("Unexpected err reading: %v", err)
	} else if n != len(want) {
		t.Fatalf("wanted to read %d bytes; read %d", len(want), n)
	}
	if string(got) != string(want) {
		t.Fatalf("wanted %q; found %q", want, got)
	}
}

func TestWriteSpanningMultipleBlocks(t *testing.T) {
	fs := newTestFS(t, 512)
	ino, err := fs.Create(RootIno, "big.bin", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}

	want := make([]byte, BlockSize*3+17)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if _, err := fs.WriteAt(ino, 0, want); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}

	got := make([]byte, len(want))
	if _, err := fs.ReadAt(ino, 0, got); err != nil {
		t.Fatalf("Unexpected err reading: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("byte %d differs: wanted %d; found %d", i, want[i], got[i])
		}
	}
}

func TestTruncateShrinkFreesBlocks(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "shrink.bin", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	data := make([]byte, BlockSize*2)
	if _, err := fs.WriteAt(ino, 0, data); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}
	freeBefore := fs.blockBitmap.FreeCount()

	if err := fs.Truncate(ino, 10); err != nil {
		t.Fatalf("Unexpected err truncating: %v", err)
	}
	freeAfter := fs.blockBitmap.FreeCount()
	if freeAfter <= freeBefore {
		t.Fatalf("wanted truncate to free blocks: before %d, after %d", freeBefore, freeAfter)
	}

	d, err := fs.Stat(ino)
	if err != nil {
		t.Fatalf("Unexpected err statting: %v", err)
	}
	if want, got := uint64(10), d.Size; want != got {
		t.Fatalf("wanted size %d; found %d", want, got)
	}
}

func TestTruncateZeroesFreedBlocks(t *testing.T) {
	fs := newTestFS(t, 256)
	ino, err := fs.Create(RootIno, "shrink.bin", ModeRegular)
	if err != nil {
		t.Fatalf("Unexpected err creating: %v", err)
	}
	data := make([]byte, BlockSize)
	for i := range data {
		data[i] = 0xAB
	}
	if _, err := fs.WriteAt(ino, 0, data); err != nil {
		t.Fatalf("Unexpected err writing: %v", err)
	}
	d, err := fs.Stat(ino)
	if err != nil {
		t.Fatalf("Unexpected err statting: %v", err)
	}
	entries, err := fs.readIndexBlock(d.IndexBlock)
	if err != nil {
		t.Fatalf("Unexpected err reading index block: %v", err)
	}
	freedBno := entries[0]

	if err := fs.Truncate(ino, 0); err != nil {
		t.Fatalf("Unexpected err truncating: %v", err)
	}

	raw := make([]byte, BlockSize)
	if err := fs.vol.ReadBlock(freedBno, raw); err != nil {
		t.Fatalf("Unexpected err reading freed block %d: %v", freedBno, err)
	}
	for i, b := range raw {
		if b != 0 {
			t.Fatalf("wanted freed block %d entirely zeroed; found nonzero byte at offset %d", freedBno, i)
		}
	}
}
