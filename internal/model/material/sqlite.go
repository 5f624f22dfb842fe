package material

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store against a local SQLite database so material
// edits made by the main app survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS materials (
	id         TEXT PRIMARY KEY,
	folder_id  TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'note',
	content    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);`

// OpenSQLiteStore opens (and if needed initializes) the material database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open material db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init material schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns all stored materials ordered by creation time.
func (s *SQLiteStore) List() ([]Material, error) {
	rows, err := s.db.Query(`SELECT id, folder_id, name, kind, content, created_at FROM materials ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	var items []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.FolderID, &m.Name, &m.Kind, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan material: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// FindByID looks up a material by identifier.
func (s *SQLiteStore) FindByID(id string) (Material, bool, error) {
	var m Material
	err := s.db.QueryRow(
		`SELECT id, folder_id, name, kind, content, created_at FROM materials WHERE id = ?`, id,
	).Scan(&m.ID, &m.FolderID, &m.Name, &m.Kind, &m.Content, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Material{}, false, nil
	}
	if err != nil {
		return Material{}, false, fmt.Errorf("find material: %w", err)
	}
	return m, true, nil
}

// Insert stores a material. Used by seeding and tests; the relay itself
// only reads.
func (s *SQLiteStore) Insert(m Material) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO materials (id, folder_id, name, kind, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.FolderID, m.Name, m.Kind, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert material: %w", err)
	}
	return nil
}
