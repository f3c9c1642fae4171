package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// sqlitePragmas apply to SQLite DSNs that set no pragmas of their own.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Init opens driver ("sqlite" or "pgx") and verifies the connection.
func Init(driver, connection string) (*sqlx.DB, error) {
	if driver == "sqlite" {
		var err error
		connection, err = prepareSQLite(connection)
		if err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite has a single writer; one connection serializes transactions
		// instead of failing them with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	slog.Info("database connected", "driver", driver)
	return db, nil
}

func prepareSQLite(connection string) (string, error) {
	path, _, _ := strings.Cut(strings.TrimPrefix(connection, "file:"), "?")
	if path != "" && !strings.Contains(connection, ":memory:") {
		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if strings.Contains(connection, "_pragma=") {
		return connection, nil
	}
	if strings.Contains(connection, "?") {
		return connection + "&" + sqlitePragmas, nil
	}
	return connection + "?" + sqlitePragmas, nil
}

func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
