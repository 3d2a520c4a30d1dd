// Package shop provides the data model and registry store for onboarded
// storefronts. A shop is identified by its provider domain and by an
// opaque shop code assigned exactly once at first installation; the code
// names the tenant schema and keys the tenant connection cache.
package shop

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Installation lifecycle statuses.
const (
	StatusInstalling = "installing"
	StatusAuthorized = "authorized"
	StatusFailed     = "failed"
)

// ErrNotFound is returned when a shop lookup finds no matching row.
var ErrNotFound = errors.New("shop: not found")

// Shop represents one storefront's registry record.
type Shop struct {
	ShopCode                 string     `json:"shop_code"`
	Shop                     string     `json:"shop"`
	Host                     string     `json:"host"`
	HMAC                     string     `json:"hmac"`
	Timestamp                string     `json:"timestamp"`
	Status                   string     `json:"status"`
	Note                     string     `json:"note"`
	InstallationStartedAt    *time.Time `json:"installation_started_at"`
	AuthorizationCompletedAt *time.Time `json:"authorization_completed_at"`
	InstallationToken        string     `json:"-"`
	Fingerprint              string     `json:"-"`
}

// CodeLength is the fixed length of generated shop codes.
const CodeLength = 20

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrInvalidCode is returned for anything that is not a generated shop
// code. Callers treat it as caller-fixable input, not a server fault.
var ErrInvalidCode = errors.New("shop: invalid shop code")

// ValidateCode rejects anything that is not a generated shop code:
// exactly CodeLength characters from the generation charset. Codes are
// interpolated into schema-qualified DDL, so this check is the injection
// guard for every dynamic schema name.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return fmt.Errorf("%w: length %d", ErrInvalidCode, len(code))
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return fmt.Errorf("%w: character %q", ErrInvalidCode, c)
		}
	}
	return nil
}

// SchemaName maps a shop code to its tenant schema name. The code must
// have passed ValidateCode before this is interpolated into DDL.
func SchemaName(code string) string {
	return "shop_" + code
}

// NewCode generates a candidate shop code: a letter derived from the
// current day of month followed by 19 random charset characters.
// Uniqueness is enforced by the store's insert-on-conflict retry loop,
// not here.
func NewCode(now time.Time) (string, error) {
	buf := make([]byte, CodeLength-1)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("shop: generate code: %w", err)
	}

	code := make([]byte, 0, CodeLength)
	code = append(code, byte('A'+(now.Day()-1)%26))
	for _, b := range buf {
		code = append(code, codeCharset[int(b)%len(codeCharset)])
	}
	return string(code), nil
}
