package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document lifecycle states.
const (
	DocumentUploaded  = "uploaded"
	DocumentParsing   = "parsing"
	DocumentCompleted = "completed"
	DocumentFailed    = "failed"
)

// Document is an uploaded file plus the text and structured data mined
// from it. ParsedContent is omitted from listings for size.
type Document struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       uuid.UUID       `json:"ownerId"`
	Title         string          `json:"title"`
	Filename      string          `json:"filename"`
	OriginalName  string          `json:"originalName"`
	FilePath      string          `json:"-"`
	FileType      string          `json:"fileType"`
	FileSize      int64           `json:"fileSize"`
	Status        string          `json:"status"`
	ParsedContent string          `json:"parsedContent,omitempty"`
	ExtractedData json.RawMessage `json:"extractedData,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Tags          []string        `json:"tags"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// DocumentStore persists documents.
type DocumentStore struct {
	db DBTX
}

// NewDocumentStore creates a DocumentStore backed by db.
func NewDocumentStore(db DBTX) *DocumentStore {
	return &DocumentStore{db: db}
}

// Create inserts a freshly uploaded document.
func (s *DocumentStore) Create(ctx context.Context, d *Document) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO documents (owner_id, title, filename, original_name, file_path,
		                       file_type, file_size, status, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		d.OwnerID, d.Title, d.Filename, d.OriginalName, d.FilePath,
		d.FileType, d.FileSize, d.Status, d.Tags,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// MarkParsing flags the document as being parsed.
func (s *DocumentStore) MarkParsing(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE documents SET status = 'parsing', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark document parsing: %w", err)
	}
	return nil
}

// SetParsed records the parse output and marks the document completed.
func (s *DocumentStore) SetParsed(ctx context.Context, id uuid.UUID, content string, extracted, metadata []byte) error {
	_, err := s.db.Exec(ctx, `
		UPDATE documents
		SET parsed_content = $2, extracted_data = $3, metadata = $4,
		    status = 'completed', updated_at = now()
		WHERE id = $1`,
		id, content, extracted, metadata,
	)
	if err != nil {
		return fmt.Errorf("set parsed document: %w", err)
	}
	return nil
}

// SetFailed marks the document's parse as failed.
func (s *DocumentStore) SetFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE documents SET status = 'failed', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set failed document: %w", err)
	}
	return nil
}

// GetByID fetches one of the owner's documents, including parsed content.
func (s *DocumentStore) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Document, error) {
	d := &Document{}
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, title, filename, original_name, file_path, file_type,
		       file_size, status, parsed_content, extracted_data, metadata, tags,
		       created_at, updated_at
		FROM documents
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&d.ID, &d.OwnerID, &d.Title, &d.Filename, &d.OriginalName, &d.FilePath,
		&d.FileType, &d.FileSize, &d.Status, &d.ParsedContent, &d.ExtractedData,
		&d.Metadata, &d.Tags, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, "get document")
	}
	return d, nil
}

// List returns a page of the owner's documents without parsed content,
// optionally filtered by a title substring, plus the unpaginated total.
func (s *DocumentStore) List(ctx context.Context, ownerID uuid.UUID, search string, limit, offset int) ([]Document, int64, error) {
	where := "owner_id = $1"
	args := []interface{}{ownerID}
	if search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(" AND title ILIKE $%d", len(args))
	}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM documents WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT id, owner_id, title, filename, original_name, file_path, file_type,
		       file_size, status, tags, created_at, updated_at
		FROM documents
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Filename, &d.OriginalName,
			&d.FilePath, &d.FileType, &d.FileSize, &d.Status, &d.Tags,
			&d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return docs, total, nil
}

// Update changes a document's title and tags.
func (s *DocumentStore) Update(ctx context.Context, ownerID, id uuid.UUID, title string, tags []string) (*Document, error) {
	_, err := s.db.Exec(ctx, `
		UPDATE documents SET title = $3, tags = $4, updated_at = now()
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID, title, tags,
	)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return s.GetByID(ctx, ownerID, id)
}

// Delete removes one of the owner's documents and returns the deleted row
// so the caller can unlink the underlying file.
func (s *DocumentStore) Delete(ctx context.Context, ownerID, id uuid.UUID) (*Document, error) {
	d, err := s.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID); err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	return d, nil
}
