// Package repository implements the PostgreSQL storage for users, sessions,
// security tokens, subscriptions, payments, coupons and gifts.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the pgx driver for database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Storage encapsulates the PostgreSQL connection and implements the
// repository methods used by the services.
type Storage struct {
	DB *sql.DB
}

// New opens a connection to PostgreSQL and verifies it with a ping.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady verifies that the schema has been migrated.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'users'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table users missing or query error: %w", err)
	}
	return nil
}
