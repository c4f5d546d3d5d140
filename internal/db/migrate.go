//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"embed"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// MigrationsTable is the table golang-migrate uses to track the schema version.
const MigrationsTable = "retail_etl_schema_migrations"

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationHandler applies the embedded warehouse migrations.
type MigrationHandler struct {
	Migrate *migrate.Migrate
}

// Printf implements the migrate logger interface.
func (h *MigrationHandler) Printf(format string, v ...any) {
	logging.Debug().Str("component", "migrate").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Verbose implements the migrate logger interface.
func (h *MigrationHandler) Verbose() bool {
	return logging.Logger.GetLevel() <= zerolog.DebugLevel
}

// NewMigrationHandler prepares a migrate instance for the warehouse database.
func NewMigrationHandler(connString string) (*MigrationHandler, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	migrateURL, err := MigrateURL(connString)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	h := &MigrationHandler{Migrate: m}
	m.Log = h
	return h, nil
}

// Up applies all pending migrations.
func (h *MigrationHandler) Up() error {
	defer timer("migrate up")()
	if err := h.Migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed up: %w", err)
	}
	return nil
}

// Down reverts all migrations, dropping the warehouse tables.
func (h *MigrationHandler) Down() error {
	defer timer("migrate down")()
	if err := h.Migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed down: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (h *MigrationHandler) Version() (uint, bool, error) {
	v, dirty, err := h.Migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the migrate source and database handles.
func (h *MigrationHandler) Close() error {
	srcErr, dbErr := h.Migrate.Close()
	return errors.Join(srcErr, dbErr)
}

// MigrateURL converts a libpq connection string (URL or keyword/value form)
// into the pgx5:// URL understood by the golang-migrate pgx driver.
func MigrateURL(connString string) (string, error) {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, scheme) {
			u, err := url.Parse(connString)
			if err != nil {
				return "", fmt.Errorf("failed to parse connection string: %w", err)
			}
			u.Scheme = "pgx5"
			q := u.Query()
			q.Set("x-migrations-table", MigrationsTable)
			u.RawQuery = q.Encode()
			return u.String(), nil
		}
	}

	cfg, err := pgconn.ParseConfig(connString)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}

	u := url.URL{
		Scheme: "pgx5",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port))),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	if cfg.TLSConfig == nil {
		q.Set("sslmode", "disable")
	} else {
		q.Set("sslmode", "require")
	}
	q.Set("x-migrations-table", MigrationsTable)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func timer(name string) func() {
	start := time.Now()
	return func() {
		logging.Debug().Dur("elapsed", time.Since(start)).Msg(name)
	}
}
