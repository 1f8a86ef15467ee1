package zadavalnik

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the audit store for users and test attempts
type DB struct {
	db *sql.DB
}

// OpenDB opens a new database connection
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory SQLite gives every connection its own database, so keep a
	// single connection for that case
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			language_code TEXT,
			is_bot TEXT NOT NULL DEFAULT 'false',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS test_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			topic TEXT,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			status TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// UpsertUser creates or refreshes a user record
func (db *DB) UpsertUser(user User) error {
	now := time.Now()
	_, err := db.db.Exec(
		`INSERT INTO users (id, username, first_name, last_name, language_code, is_bot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			language_code = excluded.language_code,
			is_bot = excluded.is_bot,
			updated_at = excluded.updated_at`,
		user.ID, user.Username, user.FirstName, user.LastName, user.LanguageCode,
		fmt.Sprintf("%t", user.IsBot), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// StartAttempt records the start of a test attempt and returns its id
func (db *DB) StartAttempt(userID int64, topic string) (int64, error) {
	res, err := db.db.Exec(
		"INSERT INTO test_attempts (user_id, topic, start_time, status) VALUES (?, ?, ?, ?)",
		userID, topic, time.Now(), string(AttemptStarted),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get attempt id: %w", err)
	}
	return id, nil
}

// CompleteAttempt moves an attempt to a terminal status. endTime may be nil
// to leave the end time unset.
func (db *DB) CompleteAttempt(attemptID int64, status AttemptStatus, endTime *time.Time) error {
	_, err := db.db.Exec(
		"UPDATE test_attempts SET status = ?, end_time = ? WHERE id = ?",
		string(status), endTime, attemptID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete attempt: %w", err)
	}
	return nil
}

// CountAttemptsSince counts a user's attempts started at or after the given
// time, excluding RATE_LIMITED rows which only record refused starts
func (db *DB) CountAttemptsSince(userID int64, since time.Time) (int, error) {
	var count int
	err := db.db.QueryRow(
		"SELECT COUNT(id) FROM test_attempts WHERE user_id = ? AND start_time >= ? AND status != ?",
		userID, since, string(AttemptRateLimited),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

// LogRateLimited records a refused attempt to start a test over quota
func (db *DB) LogRateLimited(userID int64) error {
	_, err := db.db.Exec(
		"INSERT INTO test_attempts (user_id, start_time, status) VALUES (?, ?, ?)",
		userID, time.Now(), string(AttemptRateLimited),
	)
	if err != nil {
		return fmt.Errorf("failed to log rate limited attempt: %w", err)
	}
	return nil
}

// GetAttempt retrieves an attempt by id
func (db *DB) GetAttempt(id int64) (*Attempt, error) {
	var attempt Attempt
	var topic sql.NullString
	var endTime sql.NullTime
	var status string
	err := db.db.QueryRow(
		"SELECT id, user_id, topic, start_time, end_time, status FROM test_attempts WHERE id = ?",
		id,
	).Scan(&attempt.ID, &attempt.UserID, &topic, &attempt.StartTime, &endTime, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("attempt not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	attempt.Topic = topic.String
	if endTime.Valid {
		t := endTime.Time
		attempt.EndTime = &t
	}
	attempt.Status = AttemptStatus(status)
	return &attempt, nil
}

// GetUser retrieves a user by id
func (db *DB) GetUser(id int64) (*User, error) {
	var user User
	var isBot string
	err := db.db.QueryRow(
		"SELECT id, username, first_name, last_name, language_code, is_bot FROM users WHERE id = ?",
		id,
	).Scan(&user.ID, &user.Username, &user.FirstName, &user.LastName, &user.LanguageCode, &isBot)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.IsBot = isBot == "true"
	return &user, nil
}
