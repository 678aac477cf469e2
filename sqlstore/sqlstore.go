// Package sqlstore persists OCR transcripts and reader bookmarks in SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bnrm/pdfview/bookmark"
)

// SchemaVersion is bumped whenever schema changes.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ocr_pages (
    document_id TEXT    NOT NULL,
    page        INTEGER NOT NULL CHECK (page >= 1),
    text        TEXT    NOT NULL,
    updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (document_id, page)
);
CREATE TABLE IF NOT EXISTS bookmarks (
    user_id     TEXT    NOT NULL,
    document_id TEXT    NOT NULL,
    page        INTEGER NOT NULL CHECK (page >= 1),
    created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (user_id, document_id, page)
);
`

// DB is a SQLite-backed ocr.Store and bookmark store.
type DB struct {
	Conn *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" works for tests
// that use a single connection.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := conn.Exec(`
        PRAGMA foreign_keys = ON;
        PRAGMA journal_mode = WAL;
    `); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set PRAGMA: %w", err)
	}
	if err := initSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &DB{Conn: conn}, nil
}

func initSchema(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	var version int
	err = tx.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
			return err
		}
	case err != nil:
		return err
	case version != SchemaVersion:
		return fmt.Errorf("schema version %d, want %d", version, SchemaVersion)
	}
	return tx.Commit()
}

func (db *DB) Close() error { return db.Conn.Close() }

func (db *DB) HasOcrForDocument(ctx context.Context, documentID string) (bool, error) {
	var exists bool
	err := db.Conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM ocr_pages WHERE document_id = ?)", documentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query ocr pages: %w", err)
	}
	return exists, nil
}

func (db *DB) OcrText(ctx context.Context, documentID string, page int) (string, bool, error) {
	var text string
	err := db.Conn.QueryRowContext(ctx,
		"SELECT text FROM ocr_pages WHERE document_id = ? AND page = ?", documentID, page,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query ocr text: %w", err)
	}
	return text, true, nil
}

func (db *DB) PutOcrText(ctx context.Context, documentID string, page int, text string) error {
	_, err := db.Conn.ExecContext(ctx, `
        INSERT INTO ocr_pages (document_id, page, text)
        VALUES (?, ?, ?)
        ON CONFLICT(document_id, page) DO UPDATE SET
            text = excluded.text,
            updated_at = CURRENT_TIMESTAMP
    `, documentID, page, text)
	if err != nil {
		return fmt.Errorf("failed to upsert ocr text: %w", err)
	}
	return nil
}

// Bookmarks returns the pages a user bookmarked in a document, ascending.
func (db *DB) Bookmarks(ctx context.Context, userID, documentID string) ([]int, error) {
	rows, err := db.Conn.QueryContext(ctx,
		"SELECT page FROM bookmarks WHERE user_id = ? AND document_id = ? ORDER BY page",
		userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	defer rows.Close()

	var pages []int
	for rows.Next() {
		var page int
		if err := rows.Scan(&page); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookmarks: %w", err)
	}
	return pages, nil
}

// SetBookmark adds or removes one bookmark.
func (db *DB) SetBookmark(ctx context.Context, userID, documentID string, page int, on bool) error {
	var err error
	if on {
		_, err = db.Conn.ExecContext(ctx,
			"INSERT OR IGNORE INTO bookmarks (user_id, document_id, page) VALUES (?, ?, ?)",
			userID, documentID, page)
	} else {
		_, err = db.Conn.ExecContext(ctx,
			"DELETE FROM bookmarks WHERE user_id = ? AND document_id = ? AND page = ?",
			userID, documentID, page)
	}
	if err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	return nil
}

// BookmarkSet loads a user's bookmarks into a set that persists back here.
func (db *DB) BookmarkSet(ctx context.Context, userID, documentID string) (*bookmark.Set, error) {
	pages, err := db.Bookmarks(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	persist := func(ctx context.Context, page int, on bool) error {
		return db.SetBookmark(ctx, userID, documentID, page, on)
	}
	return bookmark.New(persist, pages...), nil
}
