// Package provision orchestrates tenant schema creation, version
// tracking, additive migration, and validation on top of the ddl
// builder. Every operation is idempotent so a partially applied run is
// repaired by re-invoking it.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ultimate-pixel/storegate/internal/ddl"
	"github.com/ultimate-pixel/storegate/internal/metrics"
	"github.com/ultimate-pixel/storegate/internal/registry"
	"github.com/ultimate-pixel/storegate/internal/shop"
)

// MigrationError reports a failed schema migration step. Already-applied
// steps are left in place; re-running the migration is safe.
type MigrationError struct {
	Schema string
	From   string
	To     string
	Err    error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("provision: migrate %q from %s to %s: %v", e.Schema, e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// DDL is the builder surface the engine drives. Satisfied by
// *ddl.Builder and by test mocks.
type DDL interface {
	CreateSchema(ctx context.Context, schema string) error
	EnsureUpdatedAtFunction(ctx context.Context, schema string) error
	CreateTable(ctx context.Context, tbl registry.Table, schema string) error
	DropTable(ctx context.Context, table, schema string) error
	TableExists(ctx context.Context, table, schema string) (bool, error)
	ListTables(ctx context.Context, schema string) ([]string, error)
}

// Version is one recorded schema version for a tenant. The latest row
// by creation time is authoritative; history is append-only.
type Version struct {
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Tables      []string  `json:"tables"`
	CreatedAt   time.Time `json:"created_at"`
}

// Report is the result of comparing a tenant's recorded table set
// against the live one. HasVersion distinguishes a never-provisioned
// tenant from a clean diff; Valid is false for both.
type Report struct {
	Valid         bool     `json:"is_valid"`
	HasVersion    bool     `json:"has_version"`
	MissingTables []string `json:"missing_tables"`
	ExtraTables   []string `json:"extra_tables"`
}

// versionTable is the per-tenant table that tracks applied versions.
// Validation ignores it and provisioning creates it on first use.
const versionTable = "schema_info"

// Engine materializes tenant schemas from the registry catalog.
type Engine struct {
	ddl     DDL
	db      ddl.Querier
	log     *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a provisioning engine. The Querier runs the
// version-table DML; DDL execution goes through the builder.
func NewEngine(d DDL, db ddl.Querier, log *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		ddl:     d,
		db:      db,
		log:     log,
		metrics: m,
		locks:   make(map[string]*sync.Mutex),
	}
}

// tenantLock serializes provisioning work per tenant. Different tenants
// proceed independently.
func (e *Engine) tenantLock(code string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[code]
	if !ok {
		l = &sync.Mutex{}
		e.locks[code] = l
	}
	return l
}

// Provision creates the tenant schema and applies the requested tables
// in registry order, regardless of request order. A nil table list means
// the default set. Unknown table names are skipped with a warning, not
// an error. Re-running on an already-provisioned tenant is a no-op.
func (e *Engine) Provision(ctx context.Context, code string, tables []string) error {
	if err := shop.ValidateCode(code); err != nil {
		return err
	}
	l := e.tenantLock(code)
	l.Lock()
	defer l.Unlock()

	start := time.Now()
	schema := shop.SchemaName(code)

	if err := e.ddl.CreateSchema(ctx, schema); err != nil {
		return err
	}
	if err := e.ddl.EnsureUpdatedAtFunction(ctx, schema); err != nil {
		return err
	}

	if tables == nil {
		tables = registry.DefaultShopTables
	}
	resolved, unknown := registry.Resolve(tables)
	for _, name := range unknown {
		e.log.Warn("table definition not found, skipping",
			zap.String("table", name),
			zap.String("schema", schema))
	}
	for _, tbl := range resolved {
		if err := e.ddl.CreateTable(ctx, tbl, schema); err != nil {
			return err
		}
		e.log.Info("created table",
			zap.String("schema", schema),
			zap.String("table", tbl.Name))
	}

	if e.metrics != nil {
		e.metrics.SchemasProvisioned.Inc()
		e.metrics.ProvisionDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// ensureVersionTable creates the version-tracking table if it is not
// present yet. CreateTable is idempotent, so no existence check is
// needed on the happy path.
func (e *Engine) ensureVersionTable(ctx context.Context, schema string) error {
	return e.ddl.CreateTable(ctx, registry.SchemaInfoTable, schema)
}

// RecordVersion appends a version record for the tenant, provisioning
// the version-tracking table on first use.
func (e *Engine) RecordVersion(ctx context.Context, code, version, description string, tables []string) error {
	if err := shop.ValidateCode(code); err != nil {
		return err
	}
	schema := shop.SchemaName(code)

	if err := e.ensureVersionTable(ctx, schema); err != nil {
		return err
	}

	payload, err := json.Marshal(tables)
	if err != nil {
		return fmt.Errorf("provision: marshal table list: %w", err)
	}
	_, err = e.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO "%s".%s (version, description, tables) VALUES ($1, $2, $3)`,
			schema, versionTable),
		version, description, payload)
	if err != nil {
		return fmt.Errorf("provision: record version %s for %q: %w", version, schema, err)
	}
	return nil
}

// CurrentVersion returns the latest version record for the tenant, or
// nil when the tenant has no version-tracking table or no records yet.
func (e *Engine) CurrentVersion(ctx context.Context, code string) (*Version, error) {
	if err := shop.ValidateCode(code); err != nil {
		return nil, err
	}
	schema := shop.SchemaName(code)

	exists, err := e.ddl.TableExists(ctx, versionTable, schema)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var v Version
	err = e.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT version, description, tables, created_at
		 FROM "%s".%s ORDER BY created_at DESC, id DESC LIMIT 1`, schema, versionTable),
	).Scan(&v.Version, &v.Description, &v.Tables, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("provision: current version of %q: %w", schema, err)
	}
	return &v, nil
}

// Migrate applies an additive-plus-drop migration for the tenant. Added
// tables go through the idempotent provisioning path; removed tables are
// dropped unconditionally, cascading to dependents. The live table list
// is then read back and recorded as the new current version. A failure
// aborts without rolling back already-applied steps; re-running the
// migration repairs the partial state.
func (e *Engine) Migrate(ctx context.Context, code, fromVersion, toVersion string, addTables, removeTables []string) error {
	if err := shop.ValidateCode(code); err != nil {
		return err
	}
	l := e.tenantLock(code)
	l.Lock()
	defer l.Unlock()

	schema := shop.SchemaName(code)

	fail := func(err error) error {
		if e.metrics != nil {
			e.metrics.MigrationsTotal.WithLabelValues("error").Inc()
		}
		return &MigrationError{Schema: schema, From: fromVersion, To: toVersion, Err: err}
	}

	resolved, unknown := registry.Resolve(addTables)
	for _, name := range unknown {
		e.log.Warn("table definition not found, skipping",
			zap.String("table", name),
			zap.String("schema", schema))
	}
	for _, tbl := range resolved {
		if err := e.ddl.CreateTable(ctx, tbl, schema); err != nil {
			return fail(err)
		}
		e.log.Info("added table", zap.String("schema", schema), zap.String("table", tbl.Name))
	}

	for _, name := range removeTables {
		if err := e.ddl.DropTable(ctx, name, schema); err != nil {
			return fail(err)
		}
		e.log.Info("removed table", zap.String("schema", schema), zap.String("table", name))
	}

	current, err := e.ddl.ListTables(ctx, schema)
	if err != nil {
		return fail(err)
	}
	desc := fmt.Sprintf("Migration from %s to %s", fromVersion, toVersion)
	if err := e.RecordVersion(ctx, code, toVersion, desc, current); err != nil {
		return fail(err)
	}

	if e.metrics != nil {
		e.metrics.MigrationsTotal.WithLabelValues("ok").Inc()
	}
	return nil
}

// Validate compares the tenant's recorded table set against the live
// one, ignoring the version-tracking table. A tenant without any
// version record reports Valid=false with empty diffs and
// HasVersion=false.
func (e *Engine) Validate(ctx context.Context, code string) (*Report, error) {
	current, err := e.CurrentVersion(ctx, code)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &Report{
			Valid:         false,
			HasVersion:    false,
			MissingTables: []string{},
			ExtraTables:   []string{},
		}, nil
	}

	actual, err := e.ddl.ListTables(ctx, shop.SchemaName(code))
	if err != nil {
		return nil, err
	}

	actualSet := make(map[string]bool, len(actual))
	for _, t := range actual {
		actualSet[t] = true
	}
	expectedSet := make(map[string]bool, len(current.Tables))
	for _, t := range current.Tables {
		expectedSet[t] = true
	}

	missing := []string{}
	for _, t := range current.Tables {
		if !actualSet[t] {
			missing = append(missing, t)
		}
	}
	extra := []string{}
	for _, t := range actual {
		if !expectedSet[t] && t != versionTable {
			extra = append(extra, t)
		}
	}

	return &Report{
		Valid:         len(missing) == 0 && len(extra) == 0,
		HasVersion:    true,
		MissingTables: missing,
		ExtraTables:   extra,
	}, nil
}
