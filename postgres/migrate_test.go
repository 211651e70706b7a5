package postgres

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmie/mailqueue/internal/sqlrow"
)

func TestMigrationsCoverColumns(t *testing.T) {
	up, err := fs.ReadFile(migrations, "migrations/000001_create_emails.up.sql")
	require.NoError(t, err)

	for _, col := range sqlrow.Columns {
		assert.Contains(t, string(up), "\t"+col+" ", col)
	}

	down, err := fs.ReadFile(migrations, "migrations/000001_create_emails.down.sql")
	require.NoError(t, err)
	assert.Contains(t, string(down), "DROP TABLE IF EXISTS emails")
}
