package snapfs

import "sync"

// RefcountTable is the in-memory mirror of the metadata region: one byte
// per data block, holding how many index/inode-data/directory/file-data
// pointers currently reference it. Loaded fully into memory at mount and
// flushed back to the metadata blocks at Sync, the same way a Bitmap is
// handled — the metadata region is, functionally, just another bitmap
// with 8-bit counters instead of single bits.
type RefcountTable struct {
	mu     sync.Mutex
	counts []byte
}

// NewRefcountTable allocates a table for n data blocks, all starting at
// refcount 0 (free).
func NewRefcountTable(n uint32) *RefcountTable {
	return &RefcountTable{counts: make([]byte, n)}
}

// LoadRefcountTable wraps bytes already read from the metadata region.
func LoadRefcountTable(counts []byte) *RefcountTable {
	return &RefcountTable{counts: append([]byte(nil), counts...)}
}

func (t *RefcountTable) Get(i uint32) byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[i]
}

func (t *RefcountTable) Set(i uint32, v byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[i] = v
}

// Inc bumps the refcount for i and returns the new value.
func (t *RefcountTable) Inc(i uint32) byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[i]++
	return t.counts[i]
}

// Dec drops the refcount for i and returns the new value. Decrementing a
// zero refcount is a bug in the caller and panics rather than wrapping
// around, the way the original ouichefs BUG_ON(refcount == 0) does.
func (t *RefcountTable) Dec(i uint32) byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[i] == 0 {
		panic("snapfs: refcount underflow")
	}
	t.counts[i]--
	return t.counts[i]
}

// Bytes returns a copy of the raw refcount bytes for writing to the
// metadata region on sync.
func (t *RefcountTable) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.counts...)
}

func (t *RefcountTable) Len() uint32 { return uint32(len(t.counts)) }
