// Package fsfilter implements the file-access filter: an exact-match
// allow-list check run on every file open, failing closed.
package fsfilter

import (
	"fmt"
	"sync"

	"github.com/pyisolate/guard/internal/policy"
	"github.com/pyisolate/guard/pkg/domain"
	"golang.org/x/sys/unix"
)

// PathResolver writes the NUL-terminated absolute path of the file being
// opened into buf and returns its length including the terminator, the way
// bpf_d_path does. Bytes after the terminator are unspecified.
type PathResolver interface {
	ResolvePath(buf *domain.PathBuf) (int, error)
}

// StringPath resolves to itself.
type StringPath string

// ResolvePath implements PathResolver.
func (p StringPath) ResolvePath(buf *domain.PathBuf) (int, error) {
	if len(p) >= domain.PathMax {
		return 0, fmt.Errorf("%d bytes: %w", len(p), unix.ENAMETOOLONG)
	}
	n := copy(buf[:], p)
	buf[n] = 0
	return n + 1, nil
}

type scratch struct {
	path  domain.PathBuf
	entry domain.PathBuf
}

// Filter decides file opens against a policy table. It is safe for
// concurrent use and does not log or count decisions.
type Filter struct {
	table policy.Reader
	bufs  sync.Pool
}

// New returns a filter reading table.
func New(table policy.Reader) *Filter {
	return &Filter{
		table: table,
		bufs: sync.Pool{
			New: func() any { return new(scratch) },
		},
	}
}

// Check resolves the path being opened and scans the allow-list. mask is the
// open mode; it does not take part in the decision.
func (f *Filter) Check(resolver PathResolver, mask uint32) domain.Verdict {
	s := f.bufs.Get().(*scratch)
	defer f.bufs.Put(s)

	n, err := resolver.ResolvePath(&s.path)
	if err != nil || n <= 0 || n > domain.PathMax || s.path[n-1] != 0 {
		return domain.Deny(domain.ReasonResolveFailed)
	}
	return f.scan(&s.path, &s.entry)
}

// CheckPath is Check for an already resolved path.
func (f *Filter) CheckPath(path string, mask uint32) domain.Verdict {
	return f.Check(StringPath(path), mask)
}

// scan walks slots in index order and stops at the first empty one.
func (f *Filter) scan(path, entry *domain.PathBuf) domain.Verdict {
	for i := uint32(0); i < domain.PolicySlots; i++ {
		if err := f.table.Lookup(i, entry); err != nil {
			return domain.Deny(domain.ReasonEndOfList)
		}
		if entry.IsEmpty() {
			return domain.Deny(domain.ReasonEndOfList)
		}
		if exactMatch(entry, path) {
			return domain.Allow()
		}
	}
	return domain.Deny(domain.ReasonPolicyMiss)
}

// exactMatch compares at most PathMax bytes and stops at the entry's
// terminator, which the path must share.
func exactMatch(entry, path *domain.PathBuf) bool {
	for j := 0; j < domain.PathMax; j++ {
		c := entry[j]
		if c != path[j] {
			return false
		}
		if c == 0 {
			return true
		}
	}
	return true
}
