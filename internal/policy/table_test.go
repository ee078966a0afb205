package policy

import (
	"testing"

	"github.com/pyisolate/guard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIncludesEntriesAfterHole(t *testing.T) {
	table := NewArrayTable()
	require.NoError(t, table.Set(0, "/tmp/a"))
	require.NoError(t, table.Set(5, "/tmp/f"))

	entries, err := List(table)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint32(0), entries[0].Index)
	assert.Equal(t, uint32(5), entries[1].Index)
	assert.Equal(t, "/tmp/f", entries[1].Path.String())
}

func TestReplace(t *testing.T) {
	table := NewArrayTable()
	for i := uint32(0); i < domain.PolicySlots; i++ {
		require.NoError(t, table.Set(i, "/old"))
	}

	require.NoError(t, Replace(table, []string{"/new/a", "/new/b"}))

	entries, err := List(table)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/new/a", entries[0].Path.String())
	assert.Equal(t, "/new/b", entries[1].Path.String())
}

func TestReplaceValidatesBeforeWriting(t *testing.T) {
	table := NewArrayTable()
	require.NoError(t, table.Set(0, "/keep"))

	err := Replace(table, []string{"/ok", "relative"})
	assert.ErrorIs(t, err, domain.ErrPathNotAbsolute)

	var buf domain.PathBuf
	require.NoError(t, table.Lookup(0, &buf))
	assert.Equal(t, "/keep", buf.String(), "table must be untouched on validation failure")
}

func TestReplaceRejectsOverflowAndHoles(t *testing.T) {
	table := NewArrayTable()

	tooMany := make([]string, domain.PolicySlots+1)
	for i := range tooMany {
		tooMany[i] = "/p"
	}
	assert.ErrorIs(t, Replace(table, tooMany), domain.ErrTooManyEntries)
	assert.Error(t, Replace(table, []string{"/a", ""}))
}
