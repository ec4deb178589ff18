/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package database provides access to the local library database
package database

import (
	"context"
	"database/sql"

	// registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// DB wraps a database connection, and a transaction when one is in progress.
// Queries run inside the transaction if there is one.
type DB struct {
	Conn *sql.DB
	Tx   *sql.Tx
}

// Open opens a connection to the SQLite database at the given path, which
// may also be a "file:" URI
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening db connection")
	}

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "configuring the connection")
	}

	// A file that is not a database only fails once its header is read
	var n int
	if err := conn.QueryRow("SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "reading the schema")
	}

	return &DB{Conn: conn}, nil
}

// Begin begins a transaction
func (d *DB) Begin() (*DB, error) {
	return d.BeginContext(context.Background())
}

// BeginContext begins a transaction that is rolled back by the driver if the
// context is cancelled before it is committed
func (d *DB) BeginContext(ctx context.Context) (*DB, error) {
	if d.Tx != nil {
		return nil, errors.New("transaction already in progress")
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning a transaction")
	}

	return &DB{Conn: d.Conn, Tx: tx}, nil
}

// Commit commits the transaction
func (d *DB) Commit() error {
	if d.Tx == nil {
		return errors.New("no transaction in progress")
	}

	if err := d.Tx.Commit(); err != nil {
		return errors.Wrap(err, "committing a transaction")
	}

	return nil
}

// Rollback rolls back the transaction. Rolling back a finished transaction
// is not an error.
func (d *DB) Rollback() error {
	if d.Tx == nil {
		return nil
	}

	if err := d.Tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, "rolling back a transaction")
	}

	return nil
}

// Exec executes a query without returning any rows
func (d *DB) Exec(query string, values ...interface{}) (sql.Result, error) {
	if d.Tx != nil {
		return d.Tx.Exec(query, values...)
	}

	return d.Conn.Exec(query, values...)
}

// Query executes a query that returns rows
func (d *DB) Query(query string, values ...interface{}) (*sql.Rows, error) {
	if d.Tx != nil {
		return d.Tx.Query(query, values...)
	}

	return d.Conn.Query(query, values...)
}

// QueryRow executes a query that returns at most one row
func (d *DB) QueryRow(query string, values ...interface{}) *sql.Row {
	if d.Tx != nil {
		return d.Tx.QueryRow(query, values...)
	}

	return d.Conn.QueryRow(query, values...)
}

// Close closes the connection
func (d *DB) Close() error {
	if err := d.Conn.Close(); err != nil {
		return errors.Wrap(err, "closing the connection")
	}

	return nil
}

// GetSystem scans the value of the system key into dest. It returns
// sql.ErrNoRows, unwrapped, if the key is not set.
func GetSystem(db *DB, key string, dest interface{}) error {
	err := db.QueryRow("SELECT value FROM system WHERE key = ?", key).Scan(dest)
	if err == sql.ErrNoRows {
		return err
	}
	if err != nil {
		return errors.Wrapf(err, "finding system configuration record %s", key)
	}

	return nil
}

// UpsertSystem sets the value of the system key
func UpsertSystem(db *DB, key string, val interface{}) error {
	res, err := db.Exec("UPDATE system SET value = ? WHERE key = ?", val, key)
	if err != nil {
		return errors.Wrapf(err, "updating system configuration record %s", key)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n > 0 {
		return nil
	}

	if _, err := db.Exec("INSERT INTO system (key, value) VALUES (?, ?)", key, val); err != nil {
		return errors.Wrapf(err, "inserting system configuration record %s", key)
	}

	return nil
}
