package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Connect opens the database for driver and applies the schema.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if driver == DriverSQLite {
		// a single connection keeps :memory: databases alive and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	if err := runMigrations(db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB, driver string) error {
	var migrations []string
	switch driver {
	case DriverPostgres:
		migrations = postgresMigrations
	case DriverSQLite:
		migrations = sqliteMigrations
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	migrations = append(migrations, sharedIndexes...)

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Printf("database migrations applied driver=%s", driver)
	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            username TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            role_id INT NOT NULL DEFAULT 0,
            presence TEXT NOT NULL DEFAULT 'offline',
            account_status TEXT NOT NULL DEFAULT 'active',
            ip_address TEXT,
            office_location TEXT,
            last_seen TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS chat_groups (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            created_by INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS group_members (
            group_id INT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            user_id INT NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(group_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            from_user INT NOT NULL,
            to_user INT,
            group_id INT REFERENCES chat_groups(id) ON DELETE CASCADE,
            text TEXT NOT NULL DEFAULT '',
            file_url TEXT,
            file_name TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK ((to_user IS NULL) <> (group_id IS NULL))
        );`,
	`CREATE TABLE IF NOT EXISTS connection_requests (
            id SERIAL PRIMARY KEY,
            from_user_id INT NOT NULL,
            to_user_id INT NOT NULL,
            user_low INT NOT NULL,
            user_high INT NOT NULL,
            status TEXT NOT NULL,
            admin_approval_status TEXT NOT NULL DEFAULT 'pending',
            admin_approved_by INT,
            admin_approved_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (from_user_id <> to_user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS contacts (
            user_id INT NOT NULL,
            contact_id INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(user_id, contact_id)
        );`,
	`CREATE TABLE IF NOT EXISTS read_cursors (
            user_id INT NOT NULL,
            conversation_key TEXT NOT NULL,
            last_read_id INT NOT NULL,
            PRIMARY KEY(user_id, conversation_key)
        );`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL DEFAULT '',
            username TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            role_id INTEGER NOT NULL DEFAULT 0,
            presence TEXT NOT NULL DEFAULT 'offline',
            account_status TEXT NOT NULL DEFAULT 'active',
            ip_address TEXT,
            office_location TEXT,
            last_seen TIMESTAMP,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS chat_groups (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            created_by INTEGER NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS group_members (
            group_id INTEGER NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            user_id INTEGER NOT NULL,
            joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(group_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            from_user INTEGER NOT NULL,
            to_user INTEGER,
            group_id INTEGER REFERENCES chat_groups(id) ON DELETE CASCADE,
            text TEXT NOT NULL DEFAULT '',
            file_url TEXT,
            file_name TEXT,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK ((to_user IS NULL) <> (group_id IS NULL))
        );`,
	`CREATE TABLE IF NOT EXISTS connection_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            from_user_id INTEGER NOT NULL,
            to_user_id INTEGER NOT NULL,
            user_low INTEGER NOT NULL,
            user_high INTEGER NOT NULL,
            status TEXT NOT NULL,
            admin_approval_status TEXT NOT NULL DEFAULT 'pending',
            admin_approved_by INTEGER,
            admin_approved_at TIMESTAMP,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK (from_user_id <> to_user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS contacts (
            user_id INTEGER NOT NULL,
            contact_id INTEGER NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY(user_id, contact_id)
        );`,
	`CREATE TABLE IF NOT EXISTS read_cursors (
            user_id INTEGER NOT NULL,
            conversation_key TEXT NOT NULL,
            last_read_id INTEGER NOT NULL,
            PRIMARY KEY(user_id, conversation_key)
        );`,
}

// Index syntax is identical on both dialects.
var sharedIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS connection_requests_active_pair
            ON connection_requests(user_low, user_high) WHERE status = 'sent';`,
	`CREATE INDEX IF NOT EXISTS messages_direct_idx ON messages(from_user, to_user, id);`,
	`CREATE INDEX IF NOT EXISTS messages_group_idx ON messages(group_id, id);`,
	`CREATE INDEX IF NOT EXISTS group_members_user_idx ON group_members(user_id);`,
}
