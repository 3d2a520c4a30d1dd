package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ultimate-pixel/storegate/internal/database"
)

// maxCodeAttempts bounds the insert-retry loop for code collisions.
const maxCodeAttempts = 100

const shopColumns = `shop_code, shop, host, hmac, timestamp, status,
	 COALESCE(note, ''), installation_started_at, authorization_completed_at,
	 COALESCE(installation_token, ''), COALESCE(fingerprint, '')`

// querier is the pool subset the store uses. Satisfied by *pgxpool.Pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides shop registry CRUD backed by PostgreSQL.
type Store struct {
	db querier
}

// NewStore creates a shop Store over the management database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db.Pool}
}

func scanShop(row pgx.Row) (*Shop, error) {
	var s Shop
	err := row.Scan(&s.ShopCode, &s.Shop, &s.Host, &s.HMAC, &s.Timestamp,
		&s.Status, &s.Note, &s.InstallationStartedAt, &s.AuthorizationCompletedAt,
		&s.InstallationToken, &s.Fingerprint)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByDomain returns the shop record for a provider domain.
// Returns ErrNotFound if no shop matches.
func (st *Store) GetByDomain(ctx context.Context, domain string) (*Shop, error) {
	s, err := scanShop(st.db.QueryRow(ctx,
		`SELECT `+shopColumns+` FROM shopify_shops WHERE shop = $1`, domain))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, domain)
	}
	if err != nil {
		return nil, fmt.Errorf("shop: get by domain %q: %w", domain, err)
	}
	return s, nil
}

// GetByCode returns the shop record for a shop code.
// Returns ErrNotFound if no shop matches.
func (st *Store) GetByCode(ctx context.Context, code string) (*Shop, error) {
	s, err := scanShop(st.db.QueryRow(ctx,
		`SELECT `+shopColumns+` FROM shopify_shops WHERE shop_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("shop: get by code %q: %w", code, err)
	}
	return s, nil
}

// Create inserts a new shop record, generating its code inside a bounded
// insert-and-retry loop. A primary-key conflict on the candidate code
// retries with a fresh one; any other error (including a duplicate shop
// domain) is returned as-is. This keeps code assignment atomic under
// concurrent installs instead of checking existence first.
func (st *Store) Create(ctx context.Context, s *Shop) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewCode(time.Now())
		if err != nil {
			return err
		}

		_, err = st.db.Exec(ctx,
			`INSERT INTO shopify_shops
			 (shop_code, shop, host, hmac, timestamp, status, note,
			  installation_started_at, installation_token, fingerprint)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			code, s.Shop, s.Host, s.HMAC, s.Timestamp, s.Status, s.Note,
			s.InstallationStartedAt, s.InstallationToken, s.Fingerprint)
		if err == nil {
			s.ShopCode = code
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "shopify_shops_pkey" {
			continue // code collision, try another
		}
		return fmt.Errorf("shop: create %q: %w", s.Shop, err)
	}
	return fmt.Errorf("shop: create %q: no unique code after %d attempts", s.Shop, maxCodeAttempts)
}

// Update persists the mutable handshake and lifecycle fields of an
// existing record. Returns ErrNotFound if the shop code does not exist.
func (st *Store) Update(ctx context.Context, s *Shop) error {
	result, err := st.db.Exec(ctx,
		`UPDATE shopify_shops SET
		   host = $1, hmac = $2, timestamp = $3, status = $4, note = $5,
		   installation_started_at = $6, authorization_completed_at = $7,
		   installation_token = $8, fingerprint = $9
		 WHERE shop_code = $10`,
		s.Host, s.HMAC, s.Timestamp, s.Status, s.Note,
		s.InstallationStartedAt, s.AuthorizationCompletedAt,
		s.InstallationToken, s.Fingerprint, s.ShopCode)
	if err != nil {
		return fmt.Errorf("shop: update %q: %w", s.ShopCode, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, s.ShopCode)
	}
	return nil
}

// MarkAuthorized transitions the shop to authorized and stamps the
// completion time. Returns ErrNotFound if the shop code does not exist.
func (st *Store) MarkAuthorized(ctx context.Context, code string) (*Shop, error) {
	s, err := scanShop(st.db.QueryRow(ctx,
		`UPDATE shopify_shops
		 SET status = $1, authorization_completed_at = NOW()
		 WHERE shop_code = $2
		 RETURNING `+shopColumns, StatusAuthorized, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("shop: mark authorized %q: %w", code, err)
	}
	return s, nil
}
