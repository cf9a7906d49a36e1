package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

// BundleStore implements storage.BundleStore using PostgreSQL. The entire
// bundle is stored as one JSONB value per run, replaced atomically on every
// checkpoint: a reader can never observe a half-written run.
type BundleStore struct {
	pool *Pool
}

// NewBundleStore creates a new BundleStore.
func NewBundleStore(pool *Pool) *BundleStore {
	return &BundleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BundleStore = (*BundleStore)(nil)

// Put stores or fully replaces the bundle for runID.
func (s *BundleStore) Put(ctx context.Context, runID string, bundle *domain.RunBundle) error {
	if runID == "" || bundle == nil || bundle.Record == nil {
		return storage.ErrInvalidInput
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	query := `
		INSERT INTO run_bundles (run_id, status, created_at, updated_at, bundle)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			bundle = EXCLUDED.bundle
	`

	_, err = s.pool.Exec(ctx, query,
		runID,
		string(bundle.Record.Status),
		bundle.Record.CreatedAt,
		bundle.Record.UpdatedAt,
		raw,
	)
	if err != nil {
		return fmt.Errorf("upsert run bundle: %w", err)
	}
	return nil
}

// Get retrieves the bundle for runID. Returns ErrNotFound if not exists.
func (s *BundleStore) Get(ctx context.Context, runID string) (*domain.RunBundle, error) {
	query := `SELECT bundle FROM run_bundles WHERE run_id = $1`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, runID).Scan(&raw); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("select run bundle: %w", err)
	}

	var bundle domain.RunBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("unmarshal bundle %s: %w", runID, err)
	}
	return &bundle, nil
}

// GetAll retrieves every stored bundle, ordered by creation time ASC.
func (s *BundleStore) GetAll(ctx context.Context) ([]*domain.RunBundle, error) {
	query := `SELECT bundle FROM run_bundles ORDER BY created_at ASC, run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select run bundles: %w", err)
	}
	defer rows.Close()

	var out []*domain.RunBundle
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan run bundle: %w", err)
		}
		var bundle domain.RunBundle
		if err := json.Unmarshal(raw, &bundle); err != nil {
			return nil, fmt.Errorf("unmarshal bundle: %w", err)
		}
		out = append(out, &bundle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run bundles: %w", err)
	}
	return out, nil
}
