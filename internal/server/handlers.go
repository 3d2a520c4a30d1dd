package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ultimate-pixel/storegate/internal/install"
)

// handleStartInstallation accepts the unauthenticated installation
// handshake and returns the shop code and installation token the
// client needs for the authorization step.
func (s *Server) handleStartInstallation(c echo.Context) error {
	var h install.Handshake
	if err := c.Bind(&h); err != nil {
		return respond(c, http.StatusBadRequest, "Malformed request body", nil)
	}

	record, err := s.installs.StartInstallation(c.Request().Context(), h)
	if err != nil {
		return s.errorJSON(c, err)
	}

	return respond(c, http.StatusOK, "Installation started successfully", map[string]any{
		"shop_code":          record.ShopCode,
		"shop":               record.Shop,
		"installation_token": record.InstallationToken,
		"status":             record.Status,
	})
}

// handleAuthorize runs the signed authorization handshake for the shop
// authenticated by shopCodeGuard.
func (s *Server) handleAuthorize(c echo.Context) error {
	record := shopFromContext(c)

	var h install.Handshake
	if err := c.Bind(&h); err != nil {
		return respond(c, http.StatusBadRequest, "Malformed request body", nil)
	}

	result, err := s.installs.Authorize(c.Request().Context(), h, record)
	if err != nil {
		return s.errorJSON(c, err)
	}
	return respond(c, http.StatusOK, "Authorization successful", result)
}

// handleTenantShopInfo serves the tenant's profile row through the
// schema-scoped connection resolved for the tenant header.
func (s *Server) handleTenantShopInfo(c echo.Context) error {
	info, err := s.shopInfo.Get(c.Request().Context(), tenantFromContext(c))
	if err != nil {
		return s.errorJSON(c, err)
	}
	return respond(c, http.StatusOK, "OK", info)
}

// handleSchemaVersion reports the tenant's current schema version, or
// null when the tenant was never provisioned.
func (s *Server) handleSchemaVersion(c echo.Context) error {
	version, err := s.engine.CurrentVersion(c.Request().Context(), c.Param("code"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	if version == nil {
		return respond(c, http.StatusOK, "No schema version recorded", nil)
	}
	return respond(c, http.StatusOK, "OK", version)
}

// handleSchemaValidate compares the tenant's recorded table set against
// the live schema.
func (s *Server) handleSchemaValidate(c echo.Context) error {
	report, err := s.engine.Validate(c.Request().Context(), c.Param("code"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	return respond(c, http.StatusOK, "OK", report)
}

type migrateRequest struct {
	FromVersion  string   `json:"fromVersion"`
	ToVersion    string   `json:"toVersion"`
	AddTables    []string `json:"addTables"`
	RemoveTables []string `json:"removeTables"`
}

// handleSchemaMigrate applies an additive-plus-drop migration and
// records the resulting table set as the new current version.
func (s *Server) handleSchemaMigrate(c echo.Context) error {
	var req migrateRequest
	if err := c.Bind(&req); err != nil {
		return respond(c, http.StatusBadRequest, "Malformed request body", nil)
	}
	if req.ToVersion == "" {
		return respond(c, http.StatusBadRequest, "toVersion is required", nil)
	}

	err := s.engine.Migrate(c.Request().Context(), c.Param("code"),
		req.FromVersion, req.ToVersion, req.AddTables, req.RemoveTables)
	if err != nil {
		return s.errorJSON(c, err)
	}
	return respond(c, http.StatusOK, "Migration applied", nil)
}

type addTablesRequest struct {
	Tables []string `json:"tables"`
}

// handleSchemaAddTables provisions additional registry tables into an
// existing tenant schema via the idempotent path.
func (s *Server) handleSchemaAddTables(c echo.Context) error {
	var req addTablesRequest
	if err := c.Bind(&req); err != nil {
		return respond(c, http.StatusBadRequest, "Malformed request body", nil)
	}
	if len(req.Tables) == 0 {
		return respond(c, http.StatusBadRequest, "tables is required", nil)
	}

	if err := s.engine.Provision(c.Request().Context(), c.Param("code"), req.Tables); err != nil {
		return s.errorJSON(c, err)
	}
	return respond(c, http.StatusOK, "Tables provisioned", nil)
}
