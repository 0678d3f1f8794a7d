package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore implements Store on a SQLite database. Documents are kept
// as JSON bodies in a single table keyed by (collection, id); filters,
// sorting and aggregation evaluate in-process after decoding.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite-backed document store at path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// loadCollection reads and decodes every document in a collection, in
// insertion (rowid) order.
func (s *SqliteStore) loadCollection(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM documents WHERE collection = ? ORDER BY rowid ASC",
		collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var doc Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	if docs == nil {
		exists, err := s.collectionExists(ctx, collection)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
		}
	}
	return docs, nil
}

func (s *SqliteStore) collectionExists(ctx context.Context, collection string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?",
		collection).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return n > 0, nil
}

func (s *SqliteStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	docs, err := s.loadCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	var matched []Document
	for _, doc := range docs {
		match, err := matchFilter(doc, q.Filter)
		if err != nil {
			return nil, err
		}
		if match {
			matched = append(matched, doc)
		}
	}

	sortDocuments(matched, q.Sort)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if len(q.Projection) > 0 {
		for i, doc := range matched {
			matched[i] = applyProjection(doc, q.Projection)
		}
	}
	return matched, nil
}

func (s *SqliteStore) FindOne(ctx context.Context, collection string, filter map[string]any) (Document, error) {
	docs, err := s.Find(ctx, collection, Query{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (s *SqliteStore) Count(ctx context.Context, collection string, filter map[string]any) (int, error) {
	docs, err := s.loadCollection(ctx, collection)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, doc := range docs {
		match, err := matchFilter(doc, filter)
		if err != nil {
			return 0, err
		}
		if match {
			count++
		}
	}
	return count, nil
}

func (s *SqliteStore) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]Document, error) {
	docs, err := s.loadCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	return runPipeline(docs, pipeline)
}

func (s *SqliteStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	d := cloneDocument(doc)
	id, ok := d["_id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		d["_id"] = id
	}

	body, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)",
		collection, id, string(body))
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

func (s *SqliteStore) Update(ctx context.Context, collection string, filter, update map[string]any) (UpdateResult, error) {
	fields, err := setFields(update)
	if err != nil {
		return UpdateResult{}, err
	}
	docs, err := s.loadCollection(ctx, collection)
	if err != nil {
		return UpdateResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE documents SET body = ?, updated_at = datetime('now') WHERE collection = ? AND id = ?")
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to prepare update statement: %w", err)
	}
	defer stmt.Close()

	var result UpdateResult
	for _, doc := range docs {
		match, err := matchFilter(doc, filter)
		if err != nil {
			return UpdateResult{}, err
		}
		if !match {
			continue
		}
		result.Matched++

		changed := false
		for k, v := range fields {
			if !equalValues(doc[k], v) {
				doc[k] = v
				changed = true
			}
		}
		if !changed {
			continue
		}
		id, _ := doc["_id"].(string)
		body, err := json.Marshal(doc)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("failed to encode document: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, string(body), collection, id); err != nil {
			return UpdateResult{}, fmt.Errorf("failed to update document: %w", err)
		}
		result.Modified++
	}

	if err := tx.Commit(); err != nil {
		return UpdateResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

func (s *SqliteStore) Delete(ctx context.Context, collection string, filter map[string]any) (int, error) {
	docs, err := s.loadCollection(ctx, collection)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer stmt.Close()

	deleted := 0
	for _, doc := range docs {
		match, err := matchFilter(doc, filter)
		if err != nil {
			return 0, err
		}
		if !match {
			continue
		}
		id, _ := doc["_id"].(string)
		if _, err := stmt.ExecContext(ctx, collection, id); err != nil {
			return 0, fmt.Errorf("failed to delete document: %w", err)
		}
		deleted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}

func (s *SqliteStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT collection, COUNT(*) FROM documents GROUP BY collection ORDER BY COUNT(*) DESC, collection")
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Count); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return infos, nil
}

// Seed inserts initial collections, skipping any collection that already
// has documents so restarts don't duplicate data.
func (s *SqliteStore) Seed(ctx context.Context, data map[string][]Document) error {
	for name, docs := range data {
		exists, err := s.collectionExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		for _, doc := range docs {
			if _, err := s.Insert(ctx, name, doc); err != nil {
				return err
			}
		}
	}
	return nil
}
