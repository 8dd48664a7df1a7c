// internal/schema/schema.go
package schema

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	apperrors "github-account-mirror/internal/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Mode selects how the destination schema is provisioned at the start of a
// run.
type Mode int

const (
	// ModeEnsure creates the tables if they are absent and leaves existing
	// data untouched.
	ModeEnsure Mode = iota
	// ModeReset drops everything first, discarding all previously ingested
	// history. Matches the original destructive behavior; opt-in only.
	ModeReset
)

func (m Mode) String() string {
	if m == ModeReset {
		return "reset"
	}
	return "ensure"
}

// ParseMode translates the SCHEMA_MODE configuration value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "ensure":
		return ModeEnsure, nil
	case "reset":
		return ModeReset, nil
	default:
		return ModeEnsure, fmt.Errorf("unknown schema mode %q", s)
	}
}

// Manager provisions the accounts and repositories tables before any writes
// occur.
type Manager struct {
	dbURL  string
	mode   Mode
	logger *slog.Logger
}

// NewManager creates a Manager that provisions the database at dbURL.
func NewManager(dbURL string, mode Mode, logger *slog.Logger) *Manager {
	return &Manager{dbURL: dbURL, mode: mode, logger: logger}
}

// Ensure idempotently guarantees both tables exist with the expected shape.
// In ModeReset the schema is dropped and recreated first. Any failure is a
// fatal SchemaError: without a schema no further work is possible.
//
// The migrate API carries no context, so ctx only gates entry: a cancelled
// context aborts before any DDL is issued.
func (m *Manager) Ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &apperrors.SchemaError{Err: err}
	}

	m.logger.Info("Provisioning schema", "mode", m.mode.String())

	if m.mode == ModeReset {
		if err := m.drop(); err != nil {
			return &apperrors.SchemaError{Err: err}
		}
	}
	if err := m.up(); err != nil {
		return &apperrors.SchemaError{Err: err}
	}
	return nil
}

func (m *Manager) up() error {
	mig, err := m.newMigrate()
	if err != nil {
		return err
	}
	defer func() { _, _ = mig.Close() }()

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// drop removes all objects in the target schema, version table included, so
// the subsequent Up runs against a fresh instance.
func (m *Manager) drop() error {
	mig, err := m.newMigrate()
	if err != nil {
		return err
	}
	defer func() { _, _ = mig.Close() }()

	return mig.Drop()
}

func (m *Manager) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", src, m.dbURL)
}
