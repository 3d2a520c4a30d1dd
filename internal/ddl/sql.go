package ddl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ultimate-pixel/storegate/internal/registry"
)

// qualify renders a quoted, optionally schema-qualified identifier.
func qualify(schema, name string) string {
	if schema == "" {
		return `"` + name + `"`
	}
	return `"` + schema + `"."` + name + `"`
}

// ColumnSQL renders one column clause. Constraint order is fixed so the
// output is deterministic: type, length, PRIMARY KEY, UNIQUE, NOT NULL,
// DEFAULT.
func ColumnSQL(col registry.Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, `"%s" %s`, col.Name, col.Type)

	// Length applies only to variable-length character types.
	if col.Length > 0 && (strings.Contains(col.Type, "VARCHAR") || strings.Contains(col.Type, "CHAR")) {
		fmt.Fprintf(&b, "(%d)", col.Length)
	}
	if col.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if col.Unique {
		b.WriteString(" UNIQUE")
	}
	if col.NotNull {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		if isKeywordDefault(col.Default) {
			fmt.Fprintf(&b, " DEFAULT %s", col.Default)
		} else {
			fmt.Fprintf(&b, " DEFAULT '%s'", col.Default)
		}
	}
	return b.String()
}

// isKeywordDefault reports whether a default renders unquoted: keyword
// defaults (CURRENT_TIMESTAMP, NOW()), booleans, and numeric literals.
func isKeywordDefault(def string) bool {
	switch strings.ToUpper(def) {
	case "CURRENT_TIMESTAMP", "NOW()", "TRUE", "FALSE", "NULL":
		return true
	}
	if _, err := strconv.ParseFloat(def, 64); err == nil {
		return true
	}
	return false
}

// CreateSchemaSQL renders an idempotent schema creation statement.
func CreateSchemaSQL(schema string) string {
	return fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, schema)
}

// CreateTableSQL renders an idempotent CREATE TABLE statement with all
// column clauses and raw table constraints.
func CreateTableSQL(tbl registry.Table, schema string) string {
	clauses := make([]string, 0, len(tbl.Columns)+len(tbl.Constraints))
	for _, col := range tbl.Columns {
		clauses = append(clauses, ColumnSQL(col))
	}
	clauses = append(clauses, tbl.Constraints...)

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		qualify(schema, tbl.Name), strings.Join(clauses, ",\n    "))
}

// CreateIndexSQL renders an idempotent CREATE INDEX statement. The index
// name is unqualified: PostgreSQL creates the index in the table's schema.
func CreateIndexSQL(idx registry.Index, table, schema string) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	using := ""
	if idx.Using != "" {
		using = " USING " + idx.Using
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = `"` + c + `"`
	}
	return fmt.Sprintf(`CREATE %sINDEX IF NOT EXISTS "%s" ON %s%s (%s)`,
		unique, idx.Name, qualify(schema, table), using, strings.Join(cols, ", "))
}

// TriggerName namespaces a trigger's base name with its table. Trigger
// names are scoped per table, so the suffix keeps them unambiguous in
// catalog queries.
func TriggerName(trg registry.Trigger, table string) string {
	return trg.Name + "_" + table
}

// CreateTriggerSQL renders a CREATE TRIGGER statement. There is no
// "IF NOT EXISTS" form for triggers; callers must existence-check first.
// An unqualified backing function is resolved in the target schema so
// trigger creation does not depend on the session search_path.
func CreateTriggerSQL(trg registry.Trigger, table, schema string) string {
	fn := trg.Function
	if schema != "" && !strings.Contains(fn, ".") {
		fn = `"` + schema + `".` + fn
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TRIGGER \"%s\"\n", TriggerName(trg, table))
	fmt.Fprintf(&b, "  %s %s ON %s\n", trg.Timing, trg.Event, qualify(schema, table))
	b.WriteString("  FOR EACH ROW")
	if trg.Condition != "" {
		fmt.Fprintf(&b, " WHEN (%s)", trg.Condition)
	}
	fmt.Fprintf(&b, " EXECUTE FUNCTION %s", fn)
	return b.String()
}

// DropTableSQL renders an unconditional drop, cascading to dependents.
func DropTableSQL(table, schema string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", qualify(schema, table))
}

// DropSchemaSQL renders a schema drop, optionally cascading.
func DropSchemaSQL(schema string, cascade bool) string {
	sql := fmt.Sprintf(`DROP SCHEMA IF EXISTS "%s"`, schema)
	if cascade {
		sql += " CASCADE"
	}
	return sql
}

// UpdatedAtFunctionSQL renders the per-schema trigger function that
// stamps updated_at on row updates.
func UpdatedAtFunctionSQL(schema string) string {
	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION "%s".update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = CURRENT_TIMESTAMP;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`, schema)
}
