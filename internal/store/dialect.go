// Copyright © by the domainwatch authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package store is the Persistence component (C4): it opens a GORM
// connection to one of three dialects, runs the embedded migrations,
// and exposes the serializable claim/flush operations the worker pool
// and scheduler drive. The dialect-selection and migration-running
// shape is adapted from the source engine's session database setup,
// which opened the same three GORM dialects behind a single DSN switch
// and ran rubenv/sql-migrate against an embedded migration filesystem.
package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/glebarez/sqlite"
	migrate "github.com/rubenv/sql-migrate"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Dialect names the three backing databases domainwatch supports.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Store wraps the GORM handle along with the dialect it was opened
// with; the dialect name also selects sql-migrate's dialect when the
// migrations run.
type Store struct {
	DB       *gorm.DB
	dialect  Dialect
	existing *ExistingFilter
}

// existingFilterCapacity sizes the bloom filter primed at Open time;
// headroom over the "tens of thousands at a time" import scale the
// bulk pipeline targets.
const existingFilterCapacity = 2_000_000

// Open connects to dsn using dialect, then runs every pending migration
// before returning. A Store is not usable until Open succeeds.
func Open(dialect Dialect, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	case DialectMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dialect, err)
	}

	s := &Store{DB: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		return nil, err
	}

	existing, err := NewExistingFilter(context.Background(), s, existingFilterCapacity)
	if err != nil {
		return nil, fmt.Errorf("store: prime existing-name filter: %w", err)
	}
	s.existing = existing
	return s, nil
}

func (s *Store) migrate() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("store: extract raw sql.DB: %w", err)
	}

	src := migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFS,
		Root:       "migrations",
	}

	// sql-migrate names the SQLite dialect "sqlite3".
	migrateDialect := string(s.dialect)
	if s.dialect == DialectSQLite {
		migrateDialect = "sqlite3"
	}

	if _, err := migrate.Exec(sqlDB, migrateDialect, src, migrate.Up); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
