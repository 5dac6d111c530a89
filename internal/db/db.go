package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/shiramwangi/gawa/internal/config"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "db").Logger()

// Dialect is the SQL flavour behind a *sql.DB.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite3"
)

// LockClause is appended to a SELECT to take an exclusive row lock inside a transaction.
// SQLite has no row locks; its connections are opened with _txlock=immediate so
// every transaction holds the write lock from BEGIN.
func (d Dialect) LockClause() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// Open connects to the configured database, retrying while it comes up.
func Open(cfg config.DatabaseConfig) (*sql.DB, Dialect, error) {
	switch Dialect(cfg.Driver) {
	case MySQL:
		d, err := connectWithRetry("mysql", mysqlDSN(cfg), cfg.Name, cfg.Retries)
		return d, MySQL, err
	case SQLite:
		d, err := OpenSQLite(cfg.Path)
		return d, SQLite, err
	}
	return nil, "", fmt.Errorf("unsupported driver %q", cfg.Driver)
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = "gawa.db"
	}
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_foreign_keys=on", path)
	d, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, err
	}
	// journal_mode may not be supported in some contexts. Ignore errors.
	_, _ = d.Exec(`PRAGMA journal_mode=WAL`)
	return d, nil
}

func mysqlDSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN()
}

func connectWithRetry(driver, dsn, name string, retries int) (*sql.DB, error) {
	if retries <= 0 {
		retries = 1
	}
	var err error
	for i := 0; i < retries; i++ {
		var d *sql.DB
		d, err = sql.Open(driver, dsn)
		if err == nil {
			err = d.Ping()
			if err == nil {
				logger.Info().Msgf("connected to DB %s", name)
				return d, nil
			}
			_ = d.Close()
		}
		logger.Warn().Err(err).Msgf("retry %d: failed to connect to DB %s", i+1, name)
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to DB %s after %d retries: %w", name, retries, err)
}
