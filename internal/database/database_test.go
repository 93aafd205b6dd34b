package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	req := require.New(t)
	req.Equal("pgx5://u:p@db:5432/ichat?sslmode=disable", migrateURL("postgres://u:p@db:5432/ichat?sslmode=disable"))
	req.Equal("pgx5://u@db/ichat", migrateURL("postgresql://u@db/ichat"))
	req.Equal("pgx5://already", migrateURL("pgx5://already"))
}

func TestMigrationsAreEmbeddedInPairs(t *testing.T) {
	ups, err := fs.Glob(migrations, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}
