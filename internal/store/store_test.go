// internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github-account-mirror/internal/errors"
	"github-account-mirror/internal/model"
)

// fakeDB records executed statements and plays back canned results.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	tags     []pgconn.CommandTag
	errs     []error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	i := len(f.execSQL)
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)

	var tag pgconn.CommandTag
	if i < len(f.tags) {
		tag = f.tags[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return tag, err
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("insert")
	require.NoError(t, err)
	assert.Equal(t, PolicyInsertIfAbsent, p)

	p, err = ParsePolicy("refresh")
	require.NoError(t, err)
	assert.Equal(t, PolicyRefresh, p)

	_, err = ParsePolicy("upsert")
	assert.Error(t, err)
}

func TestStore_PolicySelectsStatement(t *testing.T) {
	insertStore := New(nil, PolicyInsertIfAbsent, testLogger())
	assert.Contains(t, insertStore.accountSQL(), "DO NOTHING")
	assert.Contains(t, insertStore.repositorySQL(), "DO NOTHING")

	refreshStore := New(nil, PolicyRefresh, testLogger())
	assert.Contains(t, refreshStore.accountSQL(), "DO UPDATE")
	assert.Contains(t, refreshStore.repositorySQL(), "DO UPDATE")
}

func TestStore_UpsertAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("passes the row values through", func(t *testing.T) {
		db := &fakeDB{tags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 1")}}
		s := New(db, PolicyInsertIfAbsent, testLogger())

		name := "Alice"
		err := s.UpsertAccount(ctx, &model.Account{ID: 1, Login: "alice", Name: &name})

		require.NoError(t, err)
		require.Len(t, db.execArgs, 1)
		assert.Equal(t, int64(1), db.execArgs[0][0])
		assert.Equal(t, "alice", db.execArgs[0][1])
		assert.Equal(t, &name, db.execArgs[0][2])
		assert.Nil(t, db.execArgs[0][3]) // location absent
	})

	t.Run("treats an existing row as a silent no-op", func(t *testing.T) {
		db := &fakeDB{tags: []pgconn.CommandTag{pgconn.NewCommandTag("INSERT 0 0")}}
		s := New(db, PolicyInsertIfAbsent, testLogger())

		err := s.UpsertAccount(ctx, &model.Account{ID: 1, Login: "alice"})
		require.NoError(t, err)
	})
}

func TestStore_UpsertRepositories(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps the owner id on every row and counts writes", func(t *testing.T) {
		db := &fakeDB{tags: []pgconn.CommandTag{
			pgconn.NewCommandTag("INSERT 0 1"),
			pgconn.NewCommandTag("INSERT 0 0"), // already present
		}}
		s := New(db, PolicyInsertIfAbsent, testLogger())

		written, err := s.UpsertRepositories(ctx, []model.Repository{{ID: 100}, {ID: 101}}, 7)

		require.NoError(t, err)
		assert.Equal(t, 1, written)
		require.Len(t, db.execArgs, 2)
		assert.Equal(t, int64(7), db.execArgs[0][3])
		assert.Equal(t, int64(7), db.execArgs[1][3])
	})

	t.Run("writes nothing for an empty list", func(t *testing.T) {
		db := &fakeDB{}
		s := New(db, PolicyInsertIfAbsent, testLogger())

		written, err := s.UpsertRepositories(ctx, nil, 7)

		require.NoError(t, err)
		assert.Zero(t, written)
		assert.Empty(t, db.execSQL)
	})

	t.Run("classifies a constraint violation as a persistence error", func(t *testing.T) {
		db := &fakeDB{errs: []error{&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}}}
		s := New(db, PolicyInsertIfAbsent, testLogger())

		_, err := s.UpsertRepositories(ctx, []model.Repository{{ID: 100}}, 7)

		var pErr *apperrors.PersistenceError
		assert.ErrorAs(t, err, &pErr)
	})
}

func TestClassifyWriteError(t *testing.T) {
	t.Run("constraint violation is account-scoped", func(t *testing.T) {
		err := classifyWriteError("alice", &pgconn.PgError{Code: pgerrcode.UniqueViolation})
		var pErr *apperrors.PersistenceError
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, "alice", pErr.Handle)
		assert.False(t, apperrors.IsFatal(err))
	})

	t.Run("connection exception is fatal", func(t *testing.T) {
		err := classifyWriteError("alice", &pgconn.PgError{Code: pgerrcode.ConnectionFailure})
		var sErr *apperrors.StorageUnavailableError
		assert.ErrorAs(t, err, &sErr)
		assert.True(t, apperrors.IsFatal(err))
	})

	t.Run("transport failure is fatal", func(t *testing.T) {
		err := classifyWriteError("alice", &net.OpError{Op: "dial", Err: errors.New("refused")})
		var sErr *apperrors.StorageUnavailableError
		assert.ErrorAs(t, err, &sErr)
	})

	t.Run("cancellation passes through untouched", func(t *testing.T) {
		err := classifyWriteError("alice", context.Canceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, apperrors.IsFatal(err))
	})
}
