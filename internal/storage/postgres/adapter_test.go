package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/storage"
	"github.com/kurihiro0119/commit-streaks/internal/storage/storagetest"
)

// TEST_POSTGRES_URL points at a disposable database; the tables are truncated per subtest
func TestPostgresStorage(t *testing.T) {
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s, err := NewPostgresStorage(url)
		require.NoError(t, err)
		_, err = s.(*postgresStorage).db.ExecContext(context.Background(),
			`TRUNCATE commits, streaks, achievements`)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
