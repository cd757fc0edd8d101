// Package db opens the gateway's SQLite pools and applies migrations.
//
// Access is split in two: a single-connection write pool that only migrations
// and CSV ingestion touch, and a wider read pool that serves validated
// questions. Every read connection is opened with query_only in its DSN, so
// the read-only setting holds on each physical connection the pool creates,
// not just the first one.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"
)

const defaultReadPoolSize = 4

// OpenSQLitePair opens the write pool and the read pool for one data file.
// readMaxOpen bounds the read pool (0 picks the default of 4).
func OpenSQLitePair(path string, readMaxOpen int) (writeDB, readDB *sql.DB, err error) {
	writeDB, err = openPool(writeDSN(path), 1)
	if err != nil {
		return nil, nil, fmt.Errorf("open write pool: %w", err)
	}

	if readMaxOpen <= 0 {
		readMaxOpen = defaultReadPoolSize
	}
	readDB, err = openPool(readDSN(path), readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, nil, fmt.Errorf("open read pool: %w", err)
	}

	return writeDB, readDB, nil
}

func openPool(dsn string, maxOpen int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxOpen)
	pool.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return pool, nil
}

// writeDSN configures the single writer: WAL with immediate transactions so
// lock contention surfaces at BEGIN instead of mid-transaction.
func writeDSN(path string) string {
	params := baseParams()
	params.Set("_txlock", "immediate")
	return path + "?" + params.Encode()
}

// readDSN configures query connections. _query_only is the hard stop for
// writes: the driver applies DSN pragmas when each physical connection is
// opened, so a write slipping past validation fails no matter which pooled
// connection picks it up.
func readDSN(path string) string {
	params := baseParams()
	params.Set("_query_only", "on")
	return path + "?" + params.Encode()
}

func baseParams() url.Values {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")
	return params
}
