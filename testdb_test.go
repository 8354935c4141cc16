package tasks_test

import (
	"context"
	"database/sql"
	"io/fs"
	"sort"
	"strings"
	"testing"

	tasks "github.com/goliatone/go-tasks"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// newTestDB opens an in-memory sqlite database and applies the embedded
// sqlite migrations so repository tests run against the real schema.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	// A private in-memory database pinned to a single connection keeps
	// each test isolated.
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		db.Close()
	})

	migrations, err := fs.Sub(tasks.GetMigrationsFS(), "data/sql/migrations/sqlite")
	require.NoError(t, err)

	var files []string
	err = fs.WalkDir(migrations, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".up.sql") {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(migrations, file)
		require.NoError(t, err)

		for _, stmt := range strings.Split(string(content), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			_, err = db.ExecContext(context.Background(), stmt)
			require.NoError(t, err, "migration %s", file)
		}
	}

	return db
}

func newTestRepo(t *testing.T) tasks.RepositoryManager {
	t.Helper()
	repo := tasks.NewRepositoryManager(newTestDB(t))
	require.NoError(t, repo.Validate())
	return repo
}

// seedUser registers a user through the users repository and returns the record.
func seedUser(t *testing.T, repo tasks.RepositoryManager, username, email, password string) *tasks.User {
	t.Helper()

	hash, err := tasks.HashPassword(password)
	require.NoError(t, err)

	user, err := repo.Users().Register(context.Background(), &tasks.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)
	require.NotNil(t, user)

	return user
}
