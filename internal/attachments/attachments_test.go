package attachments

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report (final).pdf", "my_report__final_.pdf"},
		{"../../etc/passwd", "passwd"},
		{"résumé.doc", "r_sum_.doc"},
		{"UPPER-case.txt", "UPPER-case.txt"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), tc.in)
	}
}

func TestStore_SaveAndOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewStore(fs, "assets", nil)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		stored, err := store.Save("notes.txt", strings.NewReader("inspection notes"))
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", stored)

		f, err := store.Open("notes.txt")
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "inspection notes", string(data))
	})

	t.Run("save sanitizes the name", func(t *testing.T) {
		stored, err := store.Save("weird name?.txt", strings.NewReader("x"))
		require.NoError(t, err)
		assert.Equal(t, "weird_name_.txt", stored)

		exists, err := store.Exists(stored)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("exists is false for unknown blobs", func(t *testing.T) {
		exists, err := store.Exists("nope.bin")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("rejects names that sanitize to nothing", func(t *testing.T) {
		_, err := store.Save(".", strings.NewReader("x"))
		assert.Error(t, err)
	})
}
