// Package ddl renders table definitions into schema-scoped DDL and
// executes it idempotently against PostgreSQL. Re-running any create on
// an already-provisioned schema is a no-op: tables, indexes, and schemas
// use IF NOT EXISTS, and triggers are existence-checked against the
// catalog before creation.
package ddl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ultimate-pixel/storegate/internal/registry"
)

// ProvisioningError reports a DDL statement that failed for a reason
// other than the object already existing.
type ProvisioningError struct {
	Schema string
	Table  string
	Op     string
	Err    error
}

func (e *ProvisioningError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("ddl: %s schema %q: %v", e.Op, e.Schema, e.Err)
	}
	return fmt.Sprintf("ddl: %s %q.%q: %v", e.Op, e.Schema, e.Table, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Querier is the subset of pgxpool.Pool the builder needs. Satisfied by
// *pgxpool.Pool and by test fakes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Builder executes rendered DDL and answers catalog existence queries.
type Builder struct {
	db  Querier
	log *zap.Logger
}

// NewBuilder creates a Builder over the given connection.
func NewBuilder(db Querier, log *zap.Logger) *Builder {
	return &Builder{db: db, log: log}
}

// duplicate SQLSTATEs: schema, table, generic object (triggers).
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P06", "42P07", "42710":
			return true
		}
	}
	return false
}

// CreateSchema creates the schema if absent.
func (b *Builder) CreateSchema(ctx context.Context, schema string) error {
	if _, err := b.db.Exec(ctx, CreateSchemaSQL(schema)); err != nil && !isDuplicate(err) {
		return &ProvisioningError{Schema: schema, Op: "create", Err: err}
	}
	return nil
}

// EnsureUpdatedAtFunction installs the updated_at trigger function in
// the schema. CREATE OR REPLACE is safe for functions, so no existence
// check is needed.
func (b *Builder) EnsureUpdatedAtFunction(ctx context.Context, schema string) error {
	if _, err := b.db.Exec(ctx, UpdatedAtFunctionSQL(schema)); err != nil {
		return &ProvisioningError{Schema: schema, Op: "create updated_at function in", Err: err}
	}
	return nil
}

// CreateTable creates the table, its indexes, and its triggers in the
// target schema. Any failure not explained by "already exists" aborts
// the remaining steps for this table; the partial state is recoverable
// by re-running, since every step is idempotent.
func (b *Builder) CreateTable(ctx context.Context, tbl registry.Table, schema string) error {
	if _, err := b.db.Exec(ctx, CreateTableSQL(tbl, schema)); err != nil && !isDuplicate(err) {
		return &ProvisioningError{Schema: schema, Table: tbl.Name, Op: "create table", Err: err}
	}

	for _, idx := range tbl.Indexes {
		if _, err := b.db.Exec(ctx, CreateIndexSQL(idx, tbl.Name, schema)); err != nil && !isDuplicate(err) {
			return &ProvisioningError{Schema: schema, Table: tbl.Name, Op: "create index " + idx.Name + " on", Err: err}
		}
	}

	for _, trg := range tbl.Triggers {
		name := TriggerName(trg, tbl.Name)
		exists, err := b.TriggerExists(ctx, name, tbl.Name, schema)
		if err != nil {
			return &ProvisioningError{Schema: schema, Table: tbl.Name, Op: "check trigger " + name + " on", Err: err}
		}
		if exists {
			b.log.Debug("trigger already exists, skipping",
				zap.String("trigger", name),
				zap.String("schema", schema),
				zap.String("table", tbl.Name))
			continue
		}
		if _, err := b.db.Exec(ctx, CreateTriggerSQL(trg, tbl.Name, schema)); err != nil && !isDuplicate(err) {
			return &ProvisioningError{Schema: schema, Table: tbl.Name, Op: "create trigger " + name + " on", Err: err}
		}
	}

	return nil
}

// DropTable drops a table and everything that depends on it.
func (b *Builder) DropTable(ctx context.Context, table, schema string) error {
	if _, err := b.db.Exec(ctx, DropTableSQL(table, schema)); err != nil {
		return &ProvisioningError{Schema: schema, Table: table, Op: "drop table", Err: err}
	}
	return nil
}

// DropSchema drops a schema, optionally cascading to its contents.
func (b *Builder) DropSchema(ctx context.Context, schema string, cascade bool) error {
	if _, err := b.db.Exec(ctx, DropSchemaSQL(schema, cascade)); err != nil {
		return &ProvisioningError{Schema: schema, Op: "drop", Err: err}
	}
	return nil
}

// SchemaExists reports whether the schema is present.
func (b *Builder) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var exists bool
	err := b.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT FROM information_schema.schemata
		    WHERE schema_name = $1
		)`, schema).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ddl: check schema %q: %w", schema, err)
	}
	return exists, nil
}

// TableExists reports whether the table is present in the schema.
func (b *Builder) TableExists(ctx context.Context, table, schema string) (bool, error) {
	var exists bool
	err := b.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT FROM information_schema.tables
		    WHERE table_schema = $1 AND table_name = $2
		)`, schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ddl: check table %q.%q: %w", schema, table, err)
	}
	return exists, nil
}

// TriggerExists reports whether the named trigger is present on the
// table in the schema.
func (b *Builder) TriggerExists(ctx context.Context, trigger, table, schema string) (bool, error) {
	var exists bool
	err := b.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT FROM information_schema.triggers
		    WHERE trigger_schema = $1 AND trigger_name = $2 AND event_object_table = $3
		)`, schema, trigger, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ddl: check trigger %q on %q.%q: %w", trigger, schema, table, err)
	}
	return exists, nil
}

// FunctionExists reports whether a function with the given name is
// present in the schema.
func (b *Builder) FunctionExists(ctx context.Context, function, schema string) (bool, error) {
	var exists bool
	err := b.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM pg_proc p
		    JOIN pg_namespace n ON p.pronamespace = n.oid
		    WHERE n.nspname = $1 AND p.proname = $2
		)`, schema, function).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ddl: check function %q.%q: %w", schema, function, err)
	}
	return exists, nil
}

// ListTables returns the base tables present in a schema, ordered by name.
func (b *Builder) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := b.db.Query(ctx,
		`SELECT table_name
		 FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("ddl: list tables in %q: %w", schema, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ddl: list tables scan: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
