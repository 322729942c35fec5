package ubuf

import (
	"fmt"
	"time"

	"github.com/openheadend/upipe-go/hk"
	"github.com/openheadend/upipe-go/umem"
	"github.com/openheadend/upipe-go/upool"
	"github.com/openheadend/upipe-go/urefcount"
)

// Manager is a pool-backed Block allocator (§4.2, §5: "all allocations go
// through pluggable managers"; ubuf_block_mem_mgr in the original). It
// owns a pool of recycled Block handles and a pool of recycled backing
// regions, and pre-reserves Prepend/Append/Align padding on every fresh
// allocation the way ubuf_block_mem_alloc computes its aligned offset.
type Manager struct {
	Prepend, Append, Align int

	blocks  *upool.Pool[*Block]
	regions *upool.Pool[*umem.Region]
}

// NewManager returns a Manager whose Block and Region pools each hold up
// to poolDepth recycled objects.
func NewManager(poolDepth, prepend, appendPad, align int) *Manager {
	if poolDepth <= 0 {
		poolDepth = 1
	}
	return &Manager{
		Prepend: prepend,
		Append:  appendPad,
		Align:   align,
		blocks:  upool.New[*Block](poolDepth),
		regions: upool.New[*umem.Region](poolDepth),
	}
}

// Alloc returns a writable, single-segment Block of exactly size usable
// bytes, reserving Prepend/Append/Align padding around it per §4.3.
func (m *Manager) Alloc(size int) *Block {
	total := size + m.Prepend + m.Append + m.Align
	region, ok := m.regions.Pop()
	if !ok {
		region = umem.Alloc(total)
	} else {
		region.Realloc(total)
	}

	off := m.Prepend
	if m.Align > 0 {
		off += m.Align - (off % m.Align)
		if off+size > total {
			off = m.Prepend
		}
	}

	b := m.newBlock()
	b.segs = append(b.segs[:0], segment{
		region: region,
		rc:     urefcount.New(),
		off:    off,
		size:   size,
	})
	return b
}

func (m *Manager) newBlock() *Block {
	b, ok := m.blocks.Pop()
	if !ok {
		return &Block{mgr: m}
	}
	b.mgr = m
	b.readers.Store(0)
	return b
}

// free returns b's shell to the block pool once its segment refcounts
// have already been released by Free.
func (m *Manager) free(b *Block) {
	b.segs = b.segs[:0]
	if !m.blocks.Push(b) {
		// Pool full: let it be garbage collected.
		_ = b
	}
}

// releaseBlockShell recycles a Block whose segments were moved elsewhere
// (Insert) without touching their refcounts.
func (m *Manager) releaseBlockShell(b *Block) {
	b.segs = nil
	m.blocks.Push(b)
}

// releaseRegion returns a backing region whose last reference was just
// dropped to the region pool, for reuse by a later Alloc (§3: "backing
// region goes to a separate pool"). If the pool is already full, the
// region is simply let go.
func (m *Manager) releaseRegion(r *umem.Region) {
	if !m.regions.Push(r) {
		umem.Free(r)
	}
}

// Vacuum drains both pools, releasing every pooled region back to the
// allocator (§5: "Pools are drained on manager release").
func (m *Manager) Vacuum() {
	m.blocks.Vacuum(func(*Block) {})
	m.regions.Vacuum(func(r *umem.Region) { umem.Free(r) })
}

// EnableHousekeeping registers m with the package-wide housekeeper so
// Vacuum runs every interval out-of-band (§5: "debug leak checks run
// out-of-band"), draining idle pool capacity instead of holding it
// indefinitely. It returns a function that unregisters the sweep;
// callers that own m for the life of the process may ignore it, but
// anything that tears down a Manager should call it to avoid leaving a
// stale callback registered against a discarded manager.
func (m *Manager) EnableHousekeeping(interval time.Duration) (disable func()) {
	name := fmt.Sprintf("ubuf.Manager.%p", m)
	hk.Reg(name, func() time.Duration {
		m.Vacuum()
		return interval
	}, interval)
	return func() { hk.Unreg(name) }
}
