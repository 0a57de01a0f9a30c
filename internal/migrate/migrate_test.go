package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_UnsupportedDriver(t *testing.T) {
	err := RunMigrations(nil, "mysql")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite"} {
		entries, err := migrationsFS.ReadDir("migrations/" + driver)
		require.NoError(t, err)
		assert.NotEmpty(t, entries, driver)

		// Every up migration needs a matching down migration.
		ups, downs := 0, 0
		for _, entry := range entries {
			switch {
			case strings.HasSuffix(entry.Name(), ".up.sql"):
				ups++
			case strings.HasSuffix(entry.Name(), ".down.sql"):
				downs++
			}
		}
		assert.Equal(t, ups, downs, driver)
	}
}
