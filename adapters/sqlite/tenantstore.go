package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/fetchvault/domain/plan"
	"github.com/artpar/fetchvault/ports"
)

// ErrTenantNotFound is returned for unknown tenant lookups.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantStore implements ports.TenantStore using SQLite.
type TenantStore struct {
	db *DB
}

// NewTenantStore creates a new SQLite tenant store.
func NewTenantStore(db *DB) *TenantStore {
	return &TenantStore{db: db}
}

const tenantColumns = `id, name, api_key_hash, tier, callback_url, webhook_secret, stripe_id, status, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (ports.Tenant, error) {
	var t ports.Tenant
	var tier string
	err := row.Scan(&t.ID, &t.Name, &t.APIKeyHash, &tier, &t.CallbackURL,
		&t.WebhookSecret, &t.StripeID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return ports.Tenant{}, err
	}
	t.Tier, _ = plan.Parse(tier)
	return t, nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, id string) (ports.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Tenant{}, ErrTenantNotFound
	}
	return t, err
}

// GetByStripeID retrieves a tenant by payment provider customer id.
func (s *TenantStore) GetByStripeID(ctx context.Context, customerID string) (ports.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE stripe_id = ? AND stripe_id != ''`, customerID)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Tenant{}, ErrTenantNotFound
	}
	return t, err
}

// Create stores a new tenant.
func (s *TenantStore) Create(ctx context.Context, t ports.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.APIKeyHash, string(t.Tier), t.CallbackURL,
		t.WebhookSecret, t.StripeID, t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

// Update modifies an existing tenant.
func (s *TenantStore) Update(ctx context.Context, t ports.Tenant) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET
			name = ?, api_key_hash = ?, tier = ?, callback_url = ?,
			webhook_secret = ?, stripe_id = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, t.Name, t.APIKeyHash, string(t.Tier), t.CallbackURL,
		t.WebhookSecret, t.StripeID, t.Status, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// List returns all tenants ordered by id.
func (s *TenantStore) List(ctx context.Context) ([]ports.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []ports.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Ensure interface compliance.
var _ ports.TenantStore = (*TenantStore)(nil)
