package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Webhook event types.
const (
	EventProductCreated    = "product.created"
	EventProductUpdated    = "product.updated"
	EventProductDeleted    = "product.deleted"
	EventProductBulkImport = "product.bulk_import"
	EventDocumentUploaded  = "document.uploaded"
)

// ValidEventType reports whether s names a known webhook event.
func ValidEventType(s string) bool {
	switch s {
	case EventProductCreated, EventProductUpdated, EventProductDeleted,
		EventProductBulkImport, EventDocumentUploaded:
		return true
	}
	return false
}

// WebhookEndpoint is a registered delivery target for one event type.
// The telemetry fields record the last delivery attempt, successful or not.
type WebhookEndpoint struct {
	ID                 uuid.UUID  `json:"id"`
	OwnerID            uuid.UUID  `json:"ownerId"`
	URL                string     `json:"url"`
	EventType          string     `json:"eventType"`
	Enabled            bool       `json:"enabled"`
	Secret             string     `json:"secret"`
	LastTriggeredAt    *time.Time `json:"lastTriggered,omitempty"`
	LastResponseCode   *int       `json:"lastResponseCode,omitempty"`
	LastResponseTimeMS *int64     `json:"lastResponseTime,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// WebhookEndpointParams are the writable endpoint fields.
type WebhookEndpointParams struct {
	URL       string
	EventType string
	Enabled   bool
	Secret    string
}

// WebhookStore persists webhook endpoints and their delivery telemetry.
type WebhookStore struct {
	db DBTX
}

// NewWebhookStore creates a WebhookStore backed by db.
func NewWebhookStore(db DBTX) *WebhookStore {
	return &WebhookStore{db: db}
}

const webhookColumns = `id, owner_id, url, event_type, enabled, secret,
	last_triggered_at, last_response_code, last_response_time_ms, created_at, updated_at`

func scanWebhook(row interface{ Scan(...any) error }) (*WebhookEndpoint, error) {
	w := &WebhookEndpoint{}
	err := row.Scan(&w.ID, &w.OwnerID, &w.URL, &w.EventType, &w.Enabled, &w.Secret,
		&w.LastTriggeredAt, &w.LastResponseCode, &w.LastResponseTimeMS, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Create registers a new endpoint.
func (s *WebhookStore) Create(ctx context.Context, ownerID uuid.UUID, p WebhookEndpointParams) (*WebhookEndpoint, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO webhook_endpoints (owner_id, url, event_type, enabled, secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+webhookColumns,
		ownerID, p.URL, p.EventType, p.Enabled, p.Secret,
	)
	w, err := scanWebhook(row)
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return w, nil
}

// GetByID fetches one of the owner's endpoints.
func (s *WebhookStore) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*WebhookEndpoint, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_endpoints
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	w, err := scanWebhook(row)
	if err != nil {
		return nil, mapNoRows(err, "get webhook")
	}
	return w, nil
}

// List returns all of the owner's endpoints, newest first.
func (s *WebhookStore) List(ctx context.Context, ownerID uuid.UUID) ([]WebhookEndpoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_endpoints
		WHERE owner_id = $1
		ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var out []WebhookEndpoint
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return out, nil
}

// ListEnabled returns the owner's enabled endpoints subscribed to eventType.
// This is the dispatch fan-out selection.
func (s *WebhookStore) ListEnabled(ctx context.Context, ownerID uuid.UUID, eventType string) ([]WebhookEndpoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_endpoints
		WHERE owner_id = $1 AND event_type = $2 AND enabled`,
		ownerID, eventType,
	)
	if err != nil {
		return nil, fmt.Errorf("list enabled webhooks: %w", err)
	}
	defer rows.Close()

	var out []WebhookEndpoint
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list enabled webhooks: %w", err)
	}
	return out, nil
}

// Update overwrites one of the owner's endpoints.
func (s *WebhookStore) Update(ctx context.Context, ownerID, id uuid.UUID, p WebhookEndpointParams) (*WebhookEndpoint, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE webhook_endpoints
		SET url = $3, event_type = $4, enabled = $5, secret = $6, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING `+webhookColumns,
		id, ownerID, p.URL, p.EventType, p.Enabled, p.Secret,
	)
	w, err := scanWebhook(row)
	if err != nil {
		return nil, mapNoRows(err, "update webhook")
	}
	return w, nil
}

// Delete removes one of the owner's endpoints.
func (s *WebhookStore) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM webhook_endpoints WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery updates an endpoint's telemetry after a delivery attempt.
// Called for every attempt, success or failure; statusCode is 0 when no
// response was received.
func (s *WebhookStore) RecordDelivery(ctx context.Context, id uuid.UUID, at time.Time, statusCode int, elapsed time.Duration) error {
	_, err := s.db.Exec(ctx, `
		UPDATE webhook_endpoints
		SET last_triggered_at = $2, last_response_code = $3, last_response_time_ms = $4
		WHERE id = $1`,
		id, at, statusCode, elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
