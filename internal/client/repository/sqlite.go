package repository

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const ( // Local Database tables for client side application

	createUsersTable = `
		-- Just to store the current logged-in user
		CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            role TEXT NOT NULL,
            profile_picture TEXT NOT NULL DEFAULT ''
		);
	`
	createConversationTable = `
		CREATE TABLE IF NOT EXISTS conversation (
            id TEXT PRIMARY KEY,
            course_id TEXT NOT NULL,
            course_name TEXT NOT NULL,
            counterpart_id TEXT NOT NULL,
            counterpart_name TEXT NOT NULL,
            counterpart_picture TEXT NOT NULL DEFAULT '',
            last_message_content TEXT NOT NULL DEFAULT '',
            last_message_at DATETIME, -- DATETIME works TEXT, INTEGER will not be mapped to time.Time
            learner_unread_count INTEGER NOT NULL DEFAULT 0,
            instructor_unread_count INTEGER NOT NULL DEFAULT 0
		);
	`
	createMessageTable = `
		CREATE TABLE IF NOT EXISTS message (
            id TEXT PRIMARY KEY, -- Simulating UUID
            conversation_id TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            content TEXT NOT NULL,
            attachments TEXT NOT NULL DEFAULT '[]',
            created_at DATETIME NOT NULL,
            is_read INTEGER NOT NULL DEFAULT 0,
            read_at DATETIME,
            is_deleted_for_everyone INTEGER NOT NULL DEFAULT 0,
            version INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_message_conversation_created_at ON message(conversation_id, created_at DESC);
	`
)

type DB struct {
	*sqlx.DB
}

func OpenDB(filesDir string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, "sqlite3", filepath.Join(filesDir, "Courseline.db"))
	if err == nil {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
	if err != nil && db != nil {
		db.Close()
	}
	return &DB{db}, err
}

func DeleteDBFile(filesDir string) error {
	return os.Remove(filepath.Join(filesDir, "Courseline.db"))
}

func (db *DB) RunMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, table := range []string{createUsersTable, createConversationTable, createMessageTable} {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return err
		}
	}
	return nil
}
