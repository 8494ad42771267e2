// Package database is the sqlite write-behind store. The in-memory
// engine is the concurrency authority; rows here are a durable
// projection used only for warm starts and reporting.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Таблица бронирований
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            series_id TEXT,
            resources TEXT NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            requested_by TEXT NOT NULL,
            status TEXT NOT NULL,
            purpose TEXT,
            attendees INTEGER,
            notes TEXT,
            cost REAL NOT NULL DEFAULT 0,
            cancel_cutoff_hours INTEGER NOT NULL DEFAULT 0,
            budget_key TEXT,
            check_in_at DATETIME,
            history TEXT,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_series ON bookings(series_id)`,
		// Таблица бюджетных счетов
		`CREATE TABLE IF NOT EXISTS budget_accounts (
            account_key TEXT PRIMARY KEY,
            allocated REAL NOT NULL,
            spent REAL NOT NULL DEFAULT 0,
            committed REAL NOT NULL DEFAULT 0,
            period_start DATETIME NOT NULL,
            period_end DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		// Журнал транзакций; повтор (booking_ref, kind) игнорируется
		`CREATE TABLE IF NOT EXISTS ledger_transactions (
            id TEXT PRIMARY KEY,
            account_key TEXT NOT NULL,
            kind TEXT NOT NULL,
            amount REAL NOT NULL,
            booking_ref TEXT NOT NULL,
            detail TEXT,
            timestamp DATETIME NOT NULL
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_booking_kind ON ledger_transactions(booking_ref, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_account ON ledger_transactions(account_key)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %v", err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
