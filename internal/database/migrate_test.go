package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claim-batch/migrations"
)

func TestMigrations_UpAndDownPaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestMigrations_ActiveRunIndex(t *testing.T) {
	body, err := fs.ReadFile(migrations.FS, "000001_claims_schema.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "batch_runs_active_key")
	assert.Contains(t, string(body), "WHERE validity_to IS NULL")
}
