package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"paperbase/backend/internal/apperr"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Create inserts the document and relies on the unique index on file_path
// to reject concurrent ingests of the same object. A unique violation is
// surfaced as apperr.ErrAlreadyExists.
func (r *PostgresRepo) Create(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (filename, file_path, file_size, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, doc.Filename, doc.FilePath, doc.FileSize, doc.Status).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("locator %s: %w", doc.FilePath, apperr.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

const documentColumns = `id, filename, file_path, file_size, status, created_at, processed_at`

func scanDocument(row interface{ Scan(...interface{}) error }, doc *Document) error {
	return row.Scan(&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileSize, &doc.Status, &doc.CreatedAt, &doc.ProcessedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	err := scanDocument(r.db.QueryRowContext(ctx, query, id), doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) GetByFilename(ctx context.Context, filename string) (*Document, error) {
	doc := &Document{}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE filename = $1 ORDER BY created_at LIMIT 1`
	err := scanDocument(r.db.QueryRowContext(ctx, query, filename), doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("filename %s: %w", filename, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) GetByLocator(ctx context.Context, locator string) (*Document, error) {
	doc := &Document{}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE file_path = $1`
	err := scanDocument(r.db.QueryRowContext(ctx, query, locator), doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("locator %s: %w", locator, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FindByLocatorSuffix matches documents whose locator ends with the object
// name, covering rows written with differing bucket or scheme prefixes.
func (r *PostgresRepo) FindByLocatorSuffix(ctx context.Context, objectName string) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE file_path LIKE '%' || $1`
	rows, err := r.db.QueryContext(ctx, query, objectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) List(ctx context.Context, limit, offset int) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) ListAll(ctx context.Context) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListLocators returns the locators of documents whose file_path starts
// with the given scheme prefix. The watcher reseeds its processed set
// from this at startup.
func (r *PostgresRepo) ListLocators(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT file_path FROM documents WHERE file_path LIKE $1 || '%'`
	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locators []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		locators = append(locators, l)
	}
	return locators, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = $1, processed_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, StatusCompleted, id)
	return err
}

// InsertChunks writes all chunks in one transaction so a half-ingested
// document never becomes visible.
func (r *PostgresRepo) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO document_chunks (document_id, chunk_index, content, page_number) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.DocumentID, c.ChunkIndex, c.Content, c.PageNumber); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) GetChunks(ctx context.Context, documentID string) ([]Chunk, error) {
	query := `SELECT id, document_id, chunk_index, content, page_number, created_at FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.PageNumber, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *PostgresRepo) CountChunks(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&count)
	return count, err
}

// DeleteWithChunks removes a document and its chunks in one transaction.
func (r *PostgresRepo) DeleteWithChunks(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	return tx.Commit()
}

// DeleteBatch removes a set of documents and their chunks in a single
// transaction. Reconciliation uses this so an orphan sweep is all-or-nothing.
func (r *PostgresRepo) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ANY($1)`, pq.Array(ids)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return err
	}
	return tx.Commit()
}
