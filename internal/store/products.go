package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Product is a catalog item. SKUs are unique per owner, case-insensitively.
type Product struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"ownerId"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UpsertProductParams are the fields written by the CSV import upsert.
type UpsertProductParams struct {
	SKU         string
	Name        string
	Description string
	Active      bool
}

// ListProductsParams filter and paginate product listings.
type ListProductsParams struct {
	Search string // matches name, description or SKU
	SKU    string // substring match on SKU
	Active *bool  // nil means unfiltered
	Limit  int
	Offset int
}

// ProductStore persists products.
type ProductStore struct {
	db DBTX
}

// NewProductStore creates a ProductStore backed by db.
func NewProductStore(db DBTX) *ProductStore {
	return &ProductStore{db: db}
}

// Upsert inserts or overwrites a product keyed by (owner, lower(sku)).
// Repeated imports of identical content are idempotent: an existing row is
// overwritten in place, including the stored SKU casing.
func (s *ProductStore) Upsert(ctx context.Context, ownerID uuid.UUID, p UpsertProductParams) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO products (owner_id, sku, name, description, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, lower(sku)) DO UPDATE
		SET sku = EXCLUDED.sku,
		    name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    active = EXCLUDED.active,
		    updated_at = now()`,
		ownerID, p.SKU, p.Name, p.Description, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// Create inserts a new product. Returns ErrDuplicateSKU when the owner
// already has a product with the same SKU (case-insensitive).
func (s *ProductStore) Create(ctx context.Context, ownerID uuid.UUID, p UpsertProductParams) (*Product, error) {
	out := &Product{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO products (owner_id, sku, name, description, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, sku, name, description, active, created_at, updated_at`,
		ownerID, p.SKU, p.Name, p.Description, p.Active,
	).Scan(&out.ID, &out.OwnerID, &out.SKU, &out.Name, &out.Description, &out.Active, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSKU
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	return out, nil
}

// Update overwrites a product's fields. Returns ErrNotFound if the product
// does not belong to ownerID, ErrDuplicateSKU on a SKU collision.
func (s *ProductStore) Update(ctx context.Context, ownerID, id uuid.UUID, p UpsertProductParams) (*Product, error) {
	out := &Product{}
	err := s.db.QueryRow(ctx, `
		UPDATE products
		SET sku = $3, name = $4, description = $5, active = $6, updated_at = now()
		WHERE id = $1 AND owner_id = $2
		RETURNING id, owner_id, sku, name, description, active, created_at, updated_at`,
		id, ownerID, p.SKU, p.Name, p.Description, p.Active,
	).Scan(&out.ID, &out.OwnerID, &out.SKU, &out.Name, &out.Description, &out.Active, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSKU
		}
		return nil, mapNoRows(err, "update product")
	}
	return out, nil
}

// GetByID fetches one of the owner's products.
func (s *ProductStore) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Product, error) {
	out := &Product{}
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, sku, name, description, active, created_at, updated_at
		FROM products
		WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&out.ID, &out.OwnerID, &out.SKU, &out.Name, &out.Description, &out.Active, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, "get product")
	}
	return out, nil
}

// List returns a page of the owner's products plus the unpaginated total.
func (s *ProductStore) List(ctx context.Context, ownerID uuid.UUID, p ListProductsParams) ([]Product, int64, error) {
	where := "owner_id = $1"
	args := []interface{}{ownerID}

	if p.Search != "" {
		args = append(args, "%"+p.Search+"%")
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d OR sku ILIKE $%d)",
			len(args), len(args), len(args))
	}
	if p.SKU != "" {
		args = append(args, "%"+p.SKU+"%")
		where += fmt.Sprintf(" AND sku ILIKE $%d", len(args))
	}
	if p.Active != nil {
		args = append(args, *p.Active)
		where += fmt.Sprintf(" AND active = $%d", len(args))
	}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM products WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	query := fmt.Sprintf(`
		SELECT id, owner_id, sku, name, description, active, created_at, updated_at
		FROM products
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var pr Product
		if err := rows.Scan(&pr.ID, &pr.OwnerID, &pr.SKU, &pr.Name, &pr.Description, &pr.Active, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// Delete removes one of the owner's products and returns the deleted row.
func (s *ProductStore) Delete(ctx context.Context, ownerID, id uuid.UUID) (*Product, error) {
	out := &Product{}
	err := s.db.QueryRow(ctx, `
		DELETE FROM products
		WHERE id = $1 AND owner_id = $2
		RETURNING id, owner_id, sku, name, description, active, created_at, updated_at`,
		id, ownerID,
	).Scan(&out.ID, &out.OwnerID, &out.SKU, &out.Name, &out.Description, &out.Active, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, "delete product")
	}
	return out, nil
}

// DeleteAll removes every product the owner has and reports how many went.
func (s *ProductStore) DeleteAll(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM products WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete all products: %w", err)
	}
	return tag.RowsAffected(), nil
}
