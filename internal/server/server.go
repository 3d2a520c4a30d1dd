// Package server provides the HTTP surface for storegate, built on
// Echo v4: the public installation/authorization endpoints, the
// per-tenant data endpoints, and the admin schema-management API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ultimate-pixel/storegate/internal/config"
	"github.com/ultimate-pixel/storegate/internal/install"
	"github.com/ultimate-pixel/storegate/internal/provision"
	"github.com/ultimate-pixel/storegate/internal/shop"
	"github.com/ultimate-pixel/storegate/internal/tenancy"
)

// Headers consumed by the guards.
const (
	HeaderShopCode = "x-shop-code"
	HeaderTenantID = "x-tenant-id"
)

// Server wraps the Echo instance and application dependencies.
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	installs *install.Service
	engine   *provision.Engine
	shopInfo *tenancy.ShopInfoStore
	log      *zap.Logger
}

// New creates a configured Echo server with all routes registered.
func New(cfg *config.Config, installs *install.Service, engine *provision.Engine, shopInfo *tenancy.ShopInfoStore, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true // We log the listen address ourselves.

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		echo:     e,
		cfg:      cfg,
		installs: installs,
		engine:   engine,
		shopInfo: shopInfo,
		log:      log,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")

	api.POST("/shopify/installation", s.handleStartInstallation)
	api.POST("/shopify/authorize", s.handleAuthorize, s.shopCodeGuard)

	api.GET("/tenant/shop-info", s.handleTenantShopInfo, s.tenantGuard)

	admin := api.Group("/admin", s.adminAuth)
	admin.GET("/schema/:code/version", s.handleSchemaVersion)
	admin.GET("/schema/:code/validate", s.handleSchemaValidate)
	admin.POST("/schema/:code/migrate", s.handleSchemaMigrate)
	admin.POST("/schema/:code/tables", s.handleSchemaAddTables)

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

const shopContextKey = "shop"

// shopFromContext retrieves the shop record set by shopCodeGuard.
func shopFromContext(c echo.Context) *shop.Shop {
	if sh, ok := c.Get(shopContextKey).(*shop.Shop); ok {
		return sh
	}
	return nil
}

// extractBearer extracts the Bearer token from the Authorization header.
func extractBearer(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

// shopCodeGuard authenticates the caller by shop code plus installation
// token and attaches the shop record to the request.
func (s *Server) shopCodeGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		code := c.Request().Header.Get(HeaderShopCode)
		record, err := s.installs.AuthenticateShop(c.Request().Context(), code, extractBearer(c))
		if err != nil {
			return s.errorJSON(c, err)
		}
		c.Set(shopContextKey, record)
		return next(c)
	}
}

const tenantContextKey = "tenantCode"

// tenantGuard requires the tenant-identifier header for generic
// per-tenant data access.
func (s *Server) tenantGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		code := c.Request().Header.Get(HeaderTenantID)
		if code == "" {
			return respond(c, http.StatusBadRequest, "Tenant ID is missing", nil)
		}
		if err := shop.ValidateCode(code); err != nil {
			return respond(c, http.StatusBadRequest, "Invalid tenant ID", nil)
		}
		c.Set(tenantContextKey, code)
		return next(c)
	}
}

func tenantFromContext(c echo.Context) string {
	if code, ok := c.Get(tenantContextKey).(string); ok {
		return code
	}
	return ""
}

// adminAuth validates the Authorization header against the configured
// admin key. Schema-management endpoints are protected by this.
func (s *Server) adminAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := extractBearer(c)
		if token == "" {
			return respond(c, http.StatusUnauthorized, "Authorization header with Bearer token is required", nil)
		}
		if token != s.cfg.AdminKey {
			return respond(c, http.StatusForbidden, "Invalid admin key", nil)
		}
		return next(c)
	}
}

// respond writes the standard response envelope.
func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, map[string]any{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

// errorJSON maps service errors onto caller-visible HTTP responses.
// Validation and authorization failures carry their specific reason;
// anything unexpected is logged and surfaced as a generic internal
// error without leaking internals.
func (s *Server) errorJSON(c echo.Context, err error) error {
	var vErr *install.ValidationError
	switch {
	case errors.As(err, &vErr):
		return respond(c, http.StatusBadRequest, vErr.Error(), nil)
	case errors.Is(err, install.ErrStaleTimestamp):
		return respond(c, http.StatusBadRequest, "Request timestamp is too old", nil)
	case errors.Is(err, install.ErrUnauthorized):
		return respond(c, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, shop.ErrInvalidCode):
		return respond(c, http.StatusBadRequest, "Invalid shop code", nil)
	case errors.Is(err, shop.ErrNotFound), errors.Is(err, tenancy.ErrShopInfoNotFound):
		return respond(c, http.StatusNotFound, "Not found", nil)
	default:
		s.log.Error("internal error", zap.String("path", c.Path()), zap.Error(err))
		return respond(c, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// Start begins listening for HTTP requests. It blocks until the context
// is cancelled, then performs a graceful shutdown allowing in-flight
// requests to complete.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.ListenAddr))
		if err := s.echo.Start(s.cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down HTTP server")
		return s.echo.Shutdown(context.Background())
	}
}
