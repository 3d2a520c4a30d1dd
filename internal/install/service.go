// Package install drives a storefront through its onboarding lifecycle:
// an untrusted installation handshake becomes a token-bound shop record,
// and a later authorized handshake triggers tenant schema provisioning.
//
// States per shop: installing -> authorized, with failed reachable from
// either on unrecoverable error. Re-installation resets to installing
// and rotates the installation token only when the client fingerprint
// changed.
package install

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ultimate-pixel/storegate/internal/metrics"
	"github.com/ultimate-pixel/storegate/internal/registry"
	"github.com/ultimate-pixel/storegate/internal/shop"
)

// stalenessWindow is how old a handshake timestamp may be before the
// authorization is rejected.
const stalenessWindow = 3600 * time.Second

// initialSchemaVersion is recorded after first provisioning so
// validation has a baseline.
const initialSchemaVersion = "1.0.0"

// Handshake is the inbound installation/authorization payload.
type Handshake struct {
	Shop        string `json:"shop"`
	Host        string `json:"host"`
	HMAC        string `json:"hmac"`
	Timestamp   string `json:"timestamp"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Code        string `json:"code,omitempty"`
	State       string `json:"state,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Note        string `json:"note,omitempty"`
}

// AuthorizationResult is what the caller receives from Authorize:
// either a redirect directive to complete the consent flow, or the
// completed authorization.
type AuthorizationResult struct {
	ShopDomain   string `json:"shopDomain"`
	Status       string `json:"status"`
	AuthURL      string `json:"authUrl,omitempty"`
	State        string `json:"state,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	AuthorizedAt string `json:"authorizedAt,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
}

// StatusRedirectRequired marks a result that needs the external consent
// flow before authorization can complete.
const StatusRedirectRequired = "redirect_required"

// ShopStore is the registry persistence the service needs.
type ShopStore interface {
	GetByDomain(ctx context.Context, domain string) (*shop.Shop, error)
	GetByCode(ctx context.Context, code string) (*shop.Shop, error)
	Create(ctx context.Context, s *shop.Shop) error
	Update(ctx context.Context, s *shop.Shop) error
	MarkAuthorized(ctx context.Context, code string) (*shop.Shop, error)
}

// Provisioner materializes the tenant schema after authorization.
type Provisioner interface {
	Provision(ctx context.Context, code string, tables []string) error
	RecordVersion(ctx context.Context, code, version, description string, tables []string) error
}

// ProviderClient performs the external authorization business step.
type ProviderClient interface {
	AuthorizeURL(shopDomain, state string) string
	TokenExchange(ctx context.Context, shopDomain, code string) (string, error)
}

// ShopInfoWriter stores the access token inside the tenant schema.
type ShopInfoWriter interface {
	UpsertAccessToken(ctx context.Context, code, shopDomain, accessToken string) error
}

// Service is the installation/authorization state machine.
type Service struct {
	shops       ShopStore
	engine      Provisioner
	provider    ProviderClient
	shopInfo    ShopInfoWriter
	secret      string
	frontendURL string
	log         *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewService wires the state machine to its collaborators. secret is
// the shared HMAC signing secret.
func NewService(shops ShopStore, engine Provisioner, provider ProviderClient, shopInfo ShopInfoWriter, secret, frontendURL string, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		shops:       shops,
		engine:      engine,
		provider:    provider,
		shopInfo:    shopInfo,
		secret:      secret,
		frontendURL: frontendURL,
		log:         log,
		metrics:     m,
		now:         time.Now,
	}
}

// NewInstallationToken generates a high-entropy installation token.
func NewInstallationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("install: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return &ValidationError{Field: "shop", Reason: "is required"}
	}
	for i := 0; i < len(domain); i++ {
		c := domain[i]
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '.' || c == '-'
		if !ok {
			return &ValidationError{Field: "shop", Reason: "is not a valid domain"}
		}
	}
	return nil
}

func validateRequired(h Handshake, needHMAC bool) error {
	if err := validateDomain(h.Shop); err != nil {
		return err
	}
	if h.Host == "" {
		return &ValidationError{Field: "host", Reason: "is required"}
	}
	if h.Timestamp == "" {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	if needHMAC && h.HMAC == "" {
		return &ValidationError{Field: "hmac", Reason: "is required"}
	}
	return nil
}

// checkProviderInstallation asks the external provider whether the app
// is still installed for the shop. The provider-side check is pending;
// treat every shop as needing reinstallation.
func (s *Service) checkProviderInstallation(ctx context.Context, code string) bool {
	// TODO: query the provider's appInstallation API once credentials
	// for the GraphQL Admin API are provisioned.
	return false
}

// StartInstallation validates the handshake and upserts the shop
// record. A brand-new domain gets a generated shop code and a fresh
// installation token. Re-installation resets the record to installing
// and rotates the token only when no token exists or the client
// fingerprint changed; an unchanged fingerprint keeps the issued token.
func (s *Service) StartInstallation(ctx context.Context, h Handshake) (*shop.Shop, error) {
	if err := validateRequired(h, false); err != nil {
		return nil, err
	}
	if h.Fingerprint == "" {
		return nil, &ValidationError{Field: "fingerprint", Reason: "is required"}
	}

	existing, err := s.shops.GetByDomain(ctx, h.Shop)
	if err != nil && !errors.Is(err, shop.ErrNotFound) {
		return nil, err
	}

	startedAt := s.now()

	if existing == nil {
		token, err := NewInstallationToken()
		if err != nil {
			return nil, err
		}
		record := &shop.Shop{
			Shop:                  h.Shop,
			Host:                  h.Host,
			HMAC:                  h.HMAC,
			Timestamp:             h.Timestamp,
			Status:                shop.StatusInstalling,
			Note:                  h.Note,
			InstallationStartedAt: &startedAt,
			InstallationToken:     token,
			Fingerprint:           h.Fingerprint,
		}
		if err := s.shops.Create(ctx, record); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.InstallationsTotal.WithLabelValues("created").Inc()
		}
		s.log.Info("installation started",
			zap.String("shop", record.Shop),
			zap.String("shop_code", record.ShopCode))
		return record, nil
	}

	if existing.Status == shop.StatusAuthorized && s.checkProviderInstallation(ctx, existing.ShopCode) {
		return existing, nil
	}

	rotateToken := existing.InstallationToken == "" || existing.Fingerprint != h.Fingerprint

	existing.Host = h.Host
	existing.HMAC = h.HMAC
	existing.Timestamp = h.Timestamp
	existing.Status = shop.StatusInstalling
	existing.InstallationStartedAt = &startedAt
	existing.Note = h.Note
	existing.Fingerprint = h.Fingerprint

	if rotateToken {
		token, err := NewInstallationToken()
		if err != nil {
			return nil, err
		}
		existing.InstallationToken = token
	}

	if err := s.shops.Update(ctx, existing); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.InstallationsTotal.WithLabelValues("reinstalled").Inc()
	}
	s.log.Info("re-installation started",
		zap.String("shop", existing.Shop),
		zap.String("shop_code", existing.ShopCode),
		zap.Bool("token_rotated", rotateToken))
	return existing, nil
}

// AuthenticateShop resolves the caller's shop record from a shop code
// and bearer token. The token must match the stored installation token
// exactly; comparison is constant-time and every failure is reported as
// the same unauthorized error.
func (s *Service) AuthenticateShop(ctx context.Context, code, bearerToken string) (*shop.Shop, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: shop code is required", ErrUnauthorized)
	}
	if bearerToken == "" {
		return nil, fmt.Errorf("%w: bearer token is required", ErrUnauthorized)
	}

	record, err := s.shops.GetByCode(ctx, code)
	if errors.Is(err, shop.ErrNotFound) {
		return nil, fmt.Errorf("%w: invalid shop code", ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	if record.InstallationToken == "" ||
		subtle.ConstantTimeCompare([]byte(record.InstallationToken), []byte(bearerToken)) != 1 {
		return nil, fmt.Errorf("%w: token does not match the installed client", ErrUnauthorized)
	}
	return record, nil
}

// Authorize validates the signed handshake for an authenticated shop
// and executes the authorization business step. Without an
// authorization code it returns a redirect directive for the consent
// flow; with one it exchanges the code for an access token, provisions
// the tenant schema, stores the token in it, and marks the shop
// authorized.
func (s *Service) Authorize(ctx context.Context, h Handshake, record *shop.Shop) (*AuthorizationResult, error) {
	if err := validateRequired(h, true); err != nil {
		return nil, err
	}

	requestTime, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: "timestamp", Reason: "is not a unix timestamp"}
	}
	if s.now().Unix()-requestTime > int64(stalenessWindow.Seconds()) {
		return nil, ErrStaleTimestamp
	}

	if !VerifySignature(h, s.secret) {
		return nil, fmt.Errorf("%w: invalid hmac signature", ErrUnauthorized)
	}

	if h.Fingerprint != "" && record.Fingerprint != h.Fingerprint {
		return nil, fmt.Errorf("%w: fingerprint mismatch - installation token invalid", ErrUnauthorized)
	}

	if h.Code == "" {
		stateBuf := make([]byte, 16)
		if _, err := rand.Read(stateBuf); err != nil {
			return nil, fmt.Errorf("install: generate state: %w", err)
		}
		state := hex.EncodeToString(stateBuf)
		if s.metrics != nil {
			s.metrics.AuthorizationsTotal.WithLabelValues("redirect").Inc()
		}
		return &AuthorizationResult{
			ShopDomain: h.Shop,
			Status:     StatusRedirectRequired,
			AuthURL:    s.provider.AuthorizeURL(h.Shop, state),
			State:      state,
		}, nil
	}

	accessToken, err := s.provider.TokenExchange(ctx, h.Shop, h.Code)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AuthorizationsTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("install: token exchange for %q: %w", h.Shop, err)
	}

	// Provision before flipping the status: an authorized shop must
	// always have a live schema behind it. Failures here surface as
	// internal errors; the idempotent engine makes a retry safe.
	if err := s.engine.Provision(ctx, record.ShopCode, nil); err != nil {
		if s.metrics != nil {
			s.metrics.AuthorizationsTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("install: provision schema for %q: %w", record.ShopCode, err)
	}
	if err := s.engine.RecordVersion(ctx, record.ShopCode, initialSchemaVersion, "Initial schema", registry.DefaultShopTables); err != nil {
		return nil, fmt.Errorf("install: record schema version for %q: %w", record.ShopCode, err)
	}

	if err := s.shopInfo.UpsertAccessToken(ctx, record.ShopCode, record.Shop, accessToken); err != nil {
		return nil, fmt.Errorf("install: save access token for %q: %w", record.ShopCode, err)
	}

	if _, err := s.shops.MarkAuthorized(ctx, record.ShopCode); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AuthorizationsTotal.WithLabelValues("authorized").Inc()
	}
	s.log.Info("shop authorized",
		zap.String("shop", record.Shop),
		zap.String("shop_code", record.ShopCode))

	return &AuthorizationResult{
		ShopDomain:   h.Shop,
		Status:       shop.StatusAuthorized,
		AccessToken:  accessToken,
		AuthorizedAt: s.now().UTC().Format(time.RFC3339),
		RedirectURL:  s.frontendURL + "/dashboard?shop=" + h.Shop,
	}, nil
}
