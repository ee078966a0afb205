package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pyisolate/guard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `allowed_paths:
  - /etc/passwd
  - /tmp/a
allowed_syscalls:
  - read
  - write
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/passwd", "/tmp/a"}, f.AllowedPaths)
	assert.Equal(t, []string{"read", "write"}, f.AllowedSyscalls)

	table := NewArrayTable()
	require.NoError(t, f.Apply(table))

	entries, err := List(table)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/etc/passwd", entries[0].Path.String())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{name: "empty document", yaml: ""},
		{name: "relative path", yaml: "allowed_paths: [tmp/a]", wantErr: domain.ErrPathNotAbsolute},
		{
			name:    "too many paths",
			yaml:    "allowed_paths: [" + strings.TrimSuffix(strings.Repeat("/p,", domain.PolicySlots+1), ",") + "]",
			wantErr: domain.ErrTooManyEntries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.yaml))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseFileRejectsEmptyEntry(t *testing.T) {
	_, err := ParseFile([]byte("allowed_paths: ['/a', '']"))
	assert.Error(t, err)
}
