package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// schema is applied statement by statement on every Open.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		username   VARCHAR NOT NULL,
		id         VARCHAR NOT NULL,
		title      VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (username, id)
	)`,
	`CREATE SEQUENCE IF NOT EXISTS message_seq`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq        BIGINT NOT NULL DEFAULT nextval('message_seq'),
		username   VARCHAR NOT NULL,
		chat_id    VARCHAR NOT NULL,
		role       VARCHAR NOT NULL,
		content    VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		username          VARCHAR NOT NULL,
		session_id        VARCHAR NOT NULL,
		question          VARCHAR NOT NULL,
		model             VARCHAR NOT NULL,
		original_answer   VARCHAR NOT NULL,
		expected_question VARCHAR,
		expected_answer   VARCHAR NOT NULL,
		created_at        TIMESTAMP NOT NULL
	)`,
}

// Open opens the DuckDB database at path, creating it and its schema when
// needed. An empty path opens a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	// DuckDB works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return db, nil
}
