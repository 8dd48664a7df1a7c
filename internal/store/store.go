// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github-account-mirror/internal/errors"
	"github-account-mirror/internal/model"
)

// WritePolicy selects what happens when a row with the same primary key
// already exists.
type WritePolicy int

const (
	// PolicyInsertIfAbsent leaves an existing row unmodified; only
	// first-seen data is ever stored. Matches the original behavior.
	PolicyInsertIfAbsent WritePolicy = iota
	// PolicyRefresh overwrites the existing row with the freshly fetched
	// state.
	PolicyRefresh
)

func (p WritePolicy) String() string {
	if p == PolicyRefresh {
		return "refresh"
	}
	return "insert"
}

// ParsePolicy translates the WRITE_POLICY configuration value.
func ParsePolicy(s string) (WritePolicy, error) {
	switch s {
	case "insert":
		return PolicyInsertIfAbsent, nil
	case "refresh":
		return PolicyRefresh, nil
	default:
		return PolicyInsertIfAbsent, fmt.Errorf("unknown write policy %q", s)
	}
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store writes mirrored accounts and repositories into Postgres and serves
// the read queries for the API. Every write is its own durable unit; there is
// no run-level transaction, so a failed account never takes earlier accounts'
// rows with it.
type Store struct {
	db     DB
	policy WritePolicy
	logger *slog.Logger
}

// New creates a Store with the given write policy.
func New(db DB, policy WritePolicy, logger *slog.Logger) *Store {
	return &Store{db: db, policy: policy, logger: logger}
}

const insertAccountSQL = `
INSERT INTO accounts (id, login, name, location, public_repos, followers, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

const refreshAccountSQL = `
INSERT INTO accounts (id, login, name, location, public_repos, followers, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    login = EXCLUDED.login,
    name = EXCLUDED.name,
    location = EXCLUDED.location,
    public_repos = EXCLUDED.public_repos,
    followers = EXCLUDED.followers,
    created_at = EXCLUDED.created_at`

const insertRepositorySQL = `
INSERT INTO repositories (id, name, full_name, account_id, html_url, description,
                          language, stargazers_count, forks_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

const refreshRepositorySQL = `
INSERT INTO repositories (id, name, full_name, account_id, html_url, description,
                          language, stargazers_count, forks_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    full_name = EXCLUDED.full_name,
    account_id = EXCLUDED.account_id,
    html_url = EXCLUDED.html_url,
    description = EXCLUDED.description,
    language = EXCLUDED.language,
    stargazers_count = EXCLUDED.stargazers_count,
    forks_count = EXCLUDED.forks_count,
    created_at = EXCLUDED.created_at,
    updated_at = EXCLUDED.updated_at`

// accountSQL returns the upsert statement matching the configured policy.
func (s *Store) accountSQL() string {
	if s.policy == PolicyRefresh {
		return refreshAccountSQL
	}
	return insertAccountSQL
}

func (s *Store) repositorySQL() string {
	if s.policy == PolicyRefresh {
		return refreshRepositorySQL
	}
	return insertRepositorySQL
}

// UpsertAccount writes one account row. Under the insert-if-absent policy a
// pre-existing row with the same id is a silent no-op.
func (s *Store) UpsertAccount(ctx context.Context, acct *model.Account) error {
	tag, err := s.db.Exec(ctx, s.accountSQL(),
		acct.ID, acct.Login, acct.Name, acct.Location,
		acct.PublicRepos, acct.Followers, acct.CreatedAt,
	)
	if err != nil {
		return classifyWriteError(acct.Login, err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Debug("Account row already present, left unmodified", "id", acct.ID, "login", acct.Login)
	}
	return nil
}

// UpsertRepositories writes the repository rows for one account, each
// stamped with ownerID. The caller must have written (or verified) the
// owning account row first. Returns the number of rows actually written.
func (s *Store) UpsertRepositories(ctx context.Context, repos []model.Repository, ownerID int64) (int, error) {
	written := 0
	for _, r := range repos {
		tag, err := s.db.Exec(ctx, s.repositorySQL(),
			r.ID, r.Name, r.FullName, ownerID, r.HTMLURL, r.Description,
			r.Language, r.StargazersCount, r.ForksCount, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return written, classifyWriteError("", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

const selectAccountCols = `id, login, name, location, public_repos, followers, created_at`

// ListAccounts returns every mirrored account, ordered by login.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectAccountCols+` FROM accounts ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Login, &a.Name, &a.Location, &a.PublicRepos, &a.Followers, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccountByLogin returns one mirrored account. pgx.ErrNoRows passes
// through for the caller to translate.
func (s *Store) GetAccountByLogin(ctx context.Context, login string) (model.Account, error) {
	var a model.Account
	err := s.db.QueryRow(ctx, `SELECT `+selectAccountCols+` FROM accounts WHERE login = $1`, login).
		Scan(&a.ID, &a.Login, &a.Name, &a.Location, &a.PublicRepos, &a.Followers, &a.CreatedAt)
	return a, err
}

// ListRepositoriesByAccount returns the mirrored repositories owned by the
// given account id, ordered by repository id.
func (s *Store) ListRepositoriesByAccount(ctx context.Context, accountID int64) ([]model.Repository, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, name, full_name, account_id, html_url, description,
       language, stargazers_count, forks_count, created_at, updated_at
FROM repositories WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		var r model.Repository
		if err := rows.Scan(&r.ID, &r.Name, &r.FullName, &r.AccountID, &r.HTMLURL, &r.Description,
			&r.Language, &r.StargazersCount, &r.ForksCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// classifyWriteError splits write failures into constraint violations
// (account-scoped) and lost-connection failures (fatal to the run).
func classifyWriteError(handle string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgerrcode.IsConnectionException(pgErr.Code) {
			return &apperrors.StorageUnavailableError{Err: err}
		}
		return &apperrors.PersistenceError{Handle: handle, Err: err}
	}

	// No SQLSTATE at all means the statement never reached the server.
	return &apperrors.StorageUnavailableError{Err: err}
}
