// Package store persists saved programs and user accounts in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/luishsr/rustvm/pkg/logger"
)

var (
	ErrProgramNotFound    = errors.New("program not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Program is a stored program: the raw line-oriented source text under a
// per-owner unique name.
type Program struct {
	ID        string
	Owner     string
	Name      string
	Source    string
	CreatedAt time.Time
}

// Store wraps the SQLite database connection.
type Store struct {
	conn *sql.DB
}

// InitDB opens the SQLite database at dbPath and verifies the connection.
func InitDB(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{conn: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateTables ensures all required tables exist.
func (s *Store) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (owner, name)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	logger.Info(logger.AreaDatabase, "Database tables initialized")
	return nil
}

// SaveProgram stores a program under (owner, name). Saving to an existing
// name overwrites the source; last write wins.
func (s *Store) SaveProgram(owner, name, source string) (*Program, error) {
	prog := &Program{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      name,
		Source:    source,
		CreatedAt: time.Now(),
	}

	_, err := s.conn.Exec(
		`INSERT INTO programs (id, owner, name, source, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (owner, name) DO UPDATE SET source = excluded.source`,
		prog.ID, prog.Owner, prog.Name, prog.Source, prog.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save program: %w", err)
	}

	logger.Debug(logger.AreaDatabase, "Saved program %q for %s (%d bytes)", name, owner, len(source))
	return prog, nil
}

// LoadProgram fetches a stored program by owner and name.
func (s *Store) LoadProgram(owner, name string) (*Program, error) {
	row := s.conn.QueryRow(
		`SELECT id, owner, name, source, created_at FROM programs WHERE owner = ? AND name = ?`,
		owner, name,
	)

	var prog Program
	var createdAt int64
	err := row.Scan(&prog.ID, &prog.Owner, &prog.Name, &prog.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProgramNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	prog.CreatedAt = time.Unix(createdAt, 0)
	return &prog, nil
}

// ListPrograms returns the names of all programs stored for an owner.
func (s *Store) ListPrograms(owner string) ([]string, error) {
	rows, err := s.conn.Query(`SELECT name FROM programs WHERE owner = ? ORDER BY name`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteProgram removes a stored program.
func (s *Store) DeleteProgram(owner, name string) error {
	result, err := s.conn.Exec(`DELETE FROM programs WHERE owner = ? AND name = ?`, owner, name)
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProgramNotFound
	}
	return nil
}

// CreateUser registers a new user with a bcrypt-hashed password.
func (s *Store) CreateUser(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.conn.Exec(
		`INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)`,
		username, string(hash), time.Now().Unix(),
	)
	if err != nil {
		// UNIQUE violation on the primary key
		return ErrUserExists
	}

	logger.AuthInfo("User created: %s", username)
	return nil
}

// Authenticate checks a username/password pair against the stored hash.
func (s *Store) Authenticate(username, password string) error {
	row := s.conn.QueryRow(`SELECT password FROM users WHERE username = ?`, username)

	var hash string
	err := row.Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		logger.AuthWarn("Failed login attempt for %s", username)
		return ErrInvalidCredentials
	}
	return nil
}
