package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait instead of failing when the writer holds the lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Fragment operations

const fragmentColumns = `id, title, content, full_content, tags, metadata, vector, dimension, access_count, seq, created_at, updated_at`

// UpsertFragment inserts a fragment, replacing any existing row with the same id
func (s *SQLiteStorage) UpsertFragment(ctx context.Context, fragment *Fragment) error {
	query := `
		INSERT INTO fragments (id, title, content, full_content, tags, metadata, vector, dimension, access_count, seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			full_content = excluded.full_content,
			tags = excluded.tags,
			metadata = excluded.metadata,
			vector = excluded.vector,
			dimension = excluded.dimension,
			access_count = excluded.access_count,
			seq = excluded.seq,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		fragment.ID, fragment.Title, fragment.Content, fragment.FullContent,
		fragment.Tags, fragment.Metadata, fragment.Vector, fragment.Dimension,
		fragment.AccessCount, fragment.Seq, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert fragment: %w", err)
	}
	fragment.CreatedAt = now
	fragment.UpdatedAt = now
	return nil
}

// UpsertFragmentBatch inserts fragments inside a single transaction
func (s *SQLiteStorage) UpsertFragmentBatch(ctx context.Context, fragments []*Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO fragments (id, title, content, full_content, tags, metadata, vector, dimension, access_count, seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			full_content = excluded.full_content,
			tags = excluded.tags,
			metadata = excluded.metadata,
			vector = excluded.vector,
			dimension = excluded.dimension,
			access_count = excluded.access_count,
			seq = excluded.seq,
			updated_at = excluded.updated_at
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	for _, fragment := range fragments {
		_, err := stmt.ExecContext(ctx,
			fragment.ID, fragment.Title, fragment.Content, fragment.FullContent,
			fragment.Tags, fragment.Metadata, fragment.Vector, fragment.Dimension,
			fragment.AccessCount, fragment.Seq, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert fragment %s: %w", fragment.ID, err)
		}
		fragment.CreatedAt = now
		fragment.UpdatedAt = now
	}

	return tx.Commit()
}

// GetFragment retrieves a fragment by id
func (s *SQLiteStorage) GetFragment(ctx context.Context, id string) (*Fragment, error) {
	query := `SELECT ` + fragmentColumns + ` FROM fragments WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	fragment, err := scanFragment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fragment: %w", err)
	}
	return fragment, nil
}

// ListFragments returns all fragments ordered by insertion sequence.
// Used to rebuild the in-memory corpus and ANN index on open.
func (s *SQLiteStorage) ListFragments(ctx context.Context) ([]*Fragment, error) {
	query := `SELECT ` + fragmentColumns + ` FROM fragments ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fragments []*Fragment
	for rows.Next() {
		fragment, err := scanFragment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fragment: %w", err)
		}
		fragments = append(fragments, fragment)
	}

	return fragments, rows.Err()
}

// DeleteFragment removes a fragment by id
func (s *SQLiteStorage) DeleteFragment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fragment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFragmentsByPrefix removes all fragments whose id starts with prefix
// and returns the number of rows removed
func (s *SQLiteStorage) DeleteFragmentsByPrefix(ctx context.Context, prefix string) (int, error) {
	// GLOB avoids LIKE wildcard interpretation of _ and % inside ids
	result, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE id GLOB ? || '*'`, escapeGlob(prefix))
	if err != nil {
		return 0, fmt.Errorf("failed to delete fragments by prefix: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// CountFragments returns the number of stored fragments
func (s *SQLiteStorage) CountFragments(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fragments: %w", err)
	}
	return count, nil
}

// UpdateAccessCount persists the access counter for a fragment
func (s *SQLiteStorage) UpdateAccessCount(ctx context.Context, id string, accessCount int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE fragments SET access_count = ?, updated_at = ? WHERE id = ?`,
		accessCount, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update access count: %w", err)
	}
	return nil
}

// Index snapshot operations

// SaveIndexSnapshot stores a serialized index, replacing any prior snapshot of the same kind
func (s *SQLiteStorage) SaveIndexSnapshot(ctx context.Context, kind string, data []byte) error {
	query := `
		INSERT INTO index_snapshots (kind, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, kind, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save index snapshot: %w", err)
	}
	return nil
}

// LoadIndexSnapshot retrieves a serialized index by kind
func (s *SQLiteStorage) LoadIndexSnapshot(ctx context.Context, kind string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM index_snapshots WHERE kind = ?`, kind).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index snapshot: %w", err)
	}
	return data, nil
}

// Helpers

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanFragment scans a fragment row in fragmentColumns order
func scanFragment(row rowScanner) (*Fragment, error) {
	var fragment Fragment
	var title, fullContent, tags, metadata sql.NullString
	err := row.Scan(
		&fragment.ID, &title, &fragment.Content, &fullContent,
		&tags, &metadata, &fragment.Vector, &fragment.Dimension,
		&fragment.AccessCount, &fragment.Seq, &fragment.CreatedAt, &fragment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fragment.Title = title.String
	fragment.FullContent = fullContent.String
	fragment.Tags = tags.String
	fragment.Metadata = metadata.String
	return &fragment, nil
}

// escapeGlob escapes GLOB metacharacters in a fragment id prefix
func escapeGlob(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']':
			out = append(out, '[', r, ']')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
