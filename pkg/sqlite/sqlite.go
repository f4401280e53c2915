package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Config struct {
	Path        string `split_words:"true" required:"true"`
	BusyTimeout int    `split_words:"true" default:"5"`
}

// New opens a sqlite database at the configured path and verifies connectivity.
func (c *Config) New() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		c.Path, c.BusyTimeout*1000)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// modernc sqlite serializes writes through a single connection.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.BusyTimeout)*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// MustNew opens the database or panics. Intended for application bootstrap only.
func (c *Config) MustNew() *sql.DB {
	db, err := c.New()
	if err != nil {
		panic(err)
	}

	return db
}
