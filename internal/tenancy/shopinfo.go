package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrShopInfoNotFound is returned when a tenant schema has no
// shop_info row yet.
var ErrShopInfoNotFound = errors.New("tenancy: shop info not found")

// ShopInfo is the storefront profile row inside a tenant schema.
type ShopInfo struct {
	ShopCode   string     `json:"shop_code"`
	ShopDomain string     `json:"shop_domain"`
	ShopName   string     `json:"shop_name"`
	ShopEmail  string     `json:"shop_email"`
	Currency   string     `json:"currency"`
	Timezone   string     `json:"timezone"`
	PlanName   string     `json:"plan_name"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

// ShopInfoStore reads and writes a tenant's shop_info table through
// the router-resolved, schema-scoped connection. Queries are
// unqualified: the pool's search_path targets the tenant schema.
type ShopInfoStore struct {
	router *Router
}

// NewShopInfoStore creates a store over the router.
func NewShopInfoStore(router *Router) *ShopInfoStore {
	return &ShopInfoStore{router: router}
}

// UpsertAccessToken stores the provider access token for a shop,
// creating the profile row on first authorization.
func (s *ShopInfoStore) UpsertAccessToken(ctx context.Context, code, shopDomain, accessToken string) error {
	conn, err := s.router.Resolve(ctx, code)
	if err != nil {
		return err
	}
	_, err = conn.Pool.Exec(ctx,
		`INSERT INTO shop_info (shop_code, shop_domain, access_token)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (shop_code) DO UPDATE
		 SET shop_domain = EXCLUDED.shop_domain, access_token = EXCLUDED.access_token`,
		code, shopDomain, accessToken)
	if err != nil {
		return fmt.Errorf("tenancy: upsert access token for %q: %w", code, err)
	}
	return nil
}

// Get returns the tenant's shop profile. Returns ErrShopInfoNotFound
// when the schema has no profile row yet.
func (s *ShopInfoStore) Get(ctx context.Context, code string) (*ShopInfo, error) {
	conn, err := s.router.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	var info ShopInfo
	err = conn.Pool.QueryRow(ctx,
		`SELECT shop_code, shop_domain,
		        COALESCE(shop_name, ''), COALESCE(shop_email, ''),
		        COALESCE(currency, ''), COALESCE(timezone, ''),
		        COALESCE(plan_name, ''), is_active, created_at, updated_at
		 FROM shop_info WHERE shop_code = $1`, code,
	).Scan(&info.ShopCode, &info.ShopDomain, &info.ShopName, &info.ShopEmail,
		&info.Currency, &info.Timezone, &info.PlanName, &info.IsActive,
		&info.CreatedAt, &info.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrShopInfoNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("tenancy: get shop info for %q: %w", code, err)
	}
	return &info, nil
}
