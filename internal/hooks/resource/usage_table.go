package resource

import "sync/atomic"

// RSSMember identifies one mm counter, numbered as the kernel numbers them.
//
// Counters belong to an mm, not a cgroup. The usage table keeps the last
// value reported for each member, so with several processes in one cgroup
// rss_bytes follows whichever mm changed most recently rather than the
// cgroup total.
type RSSMember int32

const (
	MemberFilePages RSSMember = iota
	MemberAnonPages
	MemberSwapEntries
	MemberShmemPages

	rssMembers = 4
)

// maxProbe bounds the open-addressing probe sequence.
const maxProbe = 32

// usage is one cgroup's running totals. The zero key marks a free slot.
type usage struct {
	key atomic.Uint64
	cpu atomic.Uint64
	rss [rssMembers]atomic.Int64
}

// rssBytes reports resident memory: file, anonymous and shared pages.
// Swapped-out entries are not resident.
func (u *usage) rssBytes() uint64 {
	total := u.rss[MemberFilePages].Load() +
		u.rss[MemberAnonPages].Load() +
		u.rss[MemberShmemPages].Load()
	if total < 0 {
		return 0
	}
	return uint64(total)
}

// usageTable is a fixed-size, lock-free map from cgroup id to usage.
// Entries are never removed.
type usageTable struct {
	slots []usage
	mask  uint64
	probe int
}

func newUsageTable(size int) *usageTable {
	n := 1
	for n < size {
		n <<= 1
	}
	probe := maxProbe
	if n < probe {
		probe = n
	}
	return &usageTable{
		slots: make([]usage, n),
		mask:  uint64(n - 1),
		probe: probe,
	}
}

// get returns the slot for id, claiming a free one if needed. It returns nil
// when id is zero or no slot is free within the probe bound.
func (t *usageTable) get(id uint64) *usage {
	if id == 0 {
		return nil
	}
	h := mix(id)
	for i := 0; i < t.probe; i++ {
		u := &t.slots[(h+uint64(i))&t.mask]
		k := u.key.Load()
		if k == id {
			return u
		}
		if k == 0 {
			if u.key.CompareAndSwap(0, id) {
				return u
			}
			if u.key.Load() == id {
				return u
			}
		}
	}
	return nil
}

// lookup returns the slot for id without claiming one.
func (t *usageTable) lookup(id uint64) *usage {
	if id == 0 {
		return nil
	}
	h := mix(id)
	for i := 0; i < t.probe; i++ {
		u := &t.slots[(h+uint64(i))&t.mask]
		switch u.key.Load() {
		case id:
			return u
		case 0:
			return nil
		}
	}
	return nil
}

func (t *usageTable) len() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].key.Load() != 0 {
			n++
		}
	}
	return n
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
