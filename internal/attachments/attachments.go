// Package attachments is the opaque content store for document and reply
// files, keyed by sanitized filename. Blobs are written before the owning
// record references them; an orphaned blob from a failed metadata insert is
// acceptable garbage, cleaned up out of band, never referenced.
package attachments

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeFilename replaces every character outside [a-zA-Z0-9.-] with an
// underscore, matching how stored filenames have always been issued.
func SanitizeFilename(name string) string {
	return unsafeChars.ReplaceAllString(filepath.Base(name), "_")
}

// Store writes and reads attachment blobs.
type Store struct {
	fs  afero.Fs
	dir string
	log hclog.Logger
}

// NewStore returns a Store rooted at dir on fs, creating the directory if
// needed.
func NewStore(fs afero.Fs, dir string, log hclog.Logger) (*Store, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating attachments directory: %w", err)
	}
	return &Store{
		fs:  fs,
		dir: dir,
		log: log.Named("attachments"),
	}, nil
}

// Save writes the blob under the sanitized filename and returns the stored
// name, which is the handle document and reply records reference.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	stored := SanitizeFilename(name)
	if stored == "" || stored == "." {
		return "", fmt.Errorf("invalid attachment filename %q", name)
	}

	path := filepath.Join(s.dir, stored)
	f, err := s.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating attachment file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		return "", fmt.Errorf("error writing attachment file: %w", err)
	}

	s.log.Debug("attachment stored", "file_name", stored, "bytes", written)
	return stored, nil
}

// Open opens a stored blob by its stored name.
func (s *Store) Open(name string) (afero.File, error) {
	return s.fs.Open(filepath.Join(s.dir, SanitizeFilename(name)))
}

// Exists reports whether a blob with the stored name exists.
func (s *Store) Exists(name string) (bool, error) {
	return afero.Exists(s.fs, filepath.Join(s.dir, SanitizeFilename(name)))
}
