package fsfilter

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pyisolate/guard/internal/policy"
	"github.com/pyisolate/guard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReader records which slots were read.
type countingReader struct {
	policy.Reader
	mu    sync.Mutex
	slots []uint32
}

func (r *countingReader) Lookup(index uint32, dst *domain.PathBuf) error {
	r.mu.Lock()
	r.slots = append(r.slots, index)
	r.mu.Unlock()
	return r.Reader.Lookup(index, dst)
}

type failingResolver struct{}

func (failingResolver) ResolvePath(*domain.PathBuf) (int, error) {
	return 0, errors.New("dentry unreachable")
}

// garbageResolver writes path followed by junk, as bpf_d_path leaves it.
type garbageResolver string

func (g garbageResolver) ResolvePath(buf *domain.PathBuf) (int, error) {
	for i := range buf {
		buf[i] = 'X'
	}
	n := copy(buf[:], g)
	buf[n] = 0
	return n + 1, nil
}

// unterminatedResolver reports a length whose last byte is not NUL.
type unterminatedResolver struct{}

func (unterminatedResolver) ResolvePath(buf *domain.PathBuf) (int, error) {
	n := copy(buf[:], "/etc/passwd")
	return n, nil
}

func newFilter(t *testing.T, entries map[uint32]string) (*Filter, *policy.ArrayTable) {
	t.Helper()
	table := policy.NewArrayTable()
	for i, p := range entries {
		require.NoError(t, table.Set(i, p))
	}
	return New(table), table
}

func TestFilterExactMatchNotPrefix(t *testing.T) {
	f, _ := newFilter(t, map[uint32]string{0: "/etc/passwd"})

	assert.Equal(t, domain.Allow(), f.CheckPath("/etc/passwd", 0))
	assert.False(t, f.CheckPath("/etc/passwd2", 0).Allowed)
	assert.False(t, f.CheckPath("/etc/passw", 0).Allowed)
	assert.False(t, f.CheckPath("/etc", 0).Allowed)
}

func TestFilterEmptyTableDeniesEverything(t *testing.T) {
	f, _ := newFilter(t, nil)

	for _, p := range []string{"/anything", "/", "/etc/passwd", ""} {
		v := f.CheckPath(p, 0)
		assert.False(t, v.Allowed, p)
		assert.Equal(t, domain.ReasonEndOfList, v.Reason, p)
	}
}

func TestFilterStopsAtFirstHole(t *testing.T) {
	table := policy.NewArrayTable()
	require.NoError(t, table.Set(0, "/tmp/a"))
	require.NoError(t, table.Set(2, "/tmp/b"))
	reader := &countingReader{Reader: table}
	f := New(reader)

	v := f.CheckPath("/tmp/b", 0)
	assert.Equal(t, domain.Deny(domain.ReasonEndOfList), v)
	assert.Equal(t, []uint32{0, 1}, reader.slots, "scan must not go past the hole")
}

func TestFilterFullTableMiss(t *testing.T) {
	entries := map[uint32]string{}
	for i := uint32(0); i < domain.PolicySlots; i++ {
		entries[i] = "/slot/" + strings.Repeat("x", int(i)+1)
	}
	f, _ := newFilter(t, entries)

	assert.Equal(t, domain.Deny(domain.ReasonPolicyMiss), f.CheckPath("/nope", 0))
	assert.True(t, f.CheckPath("/slot/"+strings.Repeat("x", domain.PolicySlots), 0).Allowed)
}

func TestFilterFailsClosedOnResolution(t *testing.T) {
	f, _ := newFilter(t, map[uint32]string{0: "/etc/passwd"})

	assert.Equal(t, domain.Deny(domain.ReasonResolveFailed), f.Check(failingResolver{}, 0))
	assert.Equal(t, domain.Deny(domain.ReasonResolveFailed), f.Check(unterminatedResolver{}, 0))
	assert.Equal(t, domain.Deny(domain.ReasonResolveFailed),
		f.CheckPath("/"+strings.Repeat("a", domain.PathMax), 0))
}

func TestFilterIgnoresBytesAfterTerminator(t *testing.T) {
	f, _ := newFilter(t, map[uint32]string{0: "/tmp/a"})
	assert.True(t, f.Check(garbageResolver("/tmp/a"), 0).Allowed)
	assert.False(t, f.Check(garbageResolver("/tmp"), 0).Allowed)
}

func TestFilterLongestPath(t *testing.T) {
	long := "/" + strings.Repeat("p", domain.PathMax-2)
	f, _ := newFilter(t, map[uint32]string{0: long})

	assert.True(t, f.CheckPath(long, 0).Allowed)
	assert.False(t, f.CheckPath(long[:len(long)-1], 0).Allowed)
}

func TestFilterMaskIgnored(t *testing.T) {
	f, _ := newFilter(t, map[uint32]string{0: "/etc/hosts"})
	for _, mask := range []uint32{0, 0x2, 0x4, 0xffffffff} {
		assert.True(t, f.CheckPath("/etc/hosts", mask).Allowed)
		assert.False(t, f.CheckPath("/etc/shadow", mask).Allowed)
	}
}

func TestFilterIdempotent(t *testing.T) {
	f, _ := newFilter(t, map[uint32]string{0: "/a", 1: "/b"})
	for _, p := range []string{"/a", "/b", "/c"} {
		first := f.CheckPath(p, 0)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, f.CheckPath(p, 0))
		}
	}
}

func TestFilterSeesPolicyWrites(t *testing.T) {
	f, table := newFilter(t, nil)
	assert.False(t, f.CheckPath("/tmp/new", 0).Allowed)

	require.NoError(t, table.Set(0, "/tmp/new"))
	assert.True(t, f.CheckPath("/tmp/new", 0).Allowed)

	require.NoError(t, table.Clear(0))
	assert.False(t, f.CheckPath("/tmp/new", 0).Allowed)
}

// Allow iff some non-empty entry before the first hole equals the path.
func TestFilterMatchesReferenceModel(t *testing.T) {
	candidates := []string{"/a", "/b", "/a/b", "/ab", "/c", "/a/"}
	layouts := []map[uint32]string{
		{},
		{0: "/a"},
		{0: "/a", 1: "/b"},
		{0: "/a", 2: "/b"},
		{1: "/a"},
		{0: "/a/b", 1: "/ab", 2: "/a/"},
	}

	for _, layout := range layouts {
		f, _ := newFilter(t, layout)
		for _, p := range candidates {
			want := false
			for i := uint32(0); i < domain.PolicySlots; i++ {
				entry, ok := layout[i]
				if !ok {
					break
				}
				if entry == p {
					want = true
					break
				}
			}
			assert.Equal(t, want, f.CheckPath(p, 0).Allowed, "layout %v path %q", layout, p)
		}
	}
}

func TestFilterConcurrent(t *testing.T) {
	f, _ := newFilter(t, map[uint32]string{0: "/allowed"})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				assert.True(t, f.CheckPath("/allowed", 0).Allowed)
				assert.False(t, f.CheckPath("/denied", 0).Allowed)
			}
		}()
	}
	wg.Wait()
}

func TestStringPathTooLong(t *testing.T) {
	var buf domain.PathBuf
	_, err := StringPath(strings.Repeat("a", domain.PathMax)).ResolvePath(&buf)
	assert.Error(t, err)

	n, err := StringPath("/x").ResolvePath(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
