package database

// RegistrySchema contains the SQL statements for the public shop
// registry. One row per storefront that has attempted installation.
//
// shop_code is assigned exactly once at insert time; the unique
// constraint backs the insert-and-retry-on-conflict generation loop.
// The shop domain is unique so re-installation updates in place.
const RegistrySchema = `
CREATE TABLE IF NOT EXISTS shopify_shops (
    shop_code                   VARCHAR(20) PRIMARY KEY,
    shop                        VARCHAR(255) UNIQUE NOT NULL,
    host                        VARCHAR(255) NOT NULL,
    hmac                        VARCHAR(64) NOT NULL,
    timestamp                   VARCHAR(20) NOT NULL,
    status                      VARCHAR(50) NOT NULL DEFAULT 'installing',
    note                        VARCHAR(1000),
    installation_started_at     TIMESTAMPTZ,
    authorization_completed_at  TIMESTAMPTZ,
    installation_token          VARCHAR(255),
    fingerprint                 VARCHAR(64)
);

CREATE INDEX IF NOT EXISTS idx_shopify_shops_status ON shopify_shops(status);
`
