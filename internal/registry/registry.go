// Package registry is the static catalog of table definitions available
// for per-tenant provisioning. Definitions are pure data: the ddl
// package renders them into SQL, the provision package decides which of
// them a tenant gets.
package registry

// Column describes one table column.
type Column struct {
	Name       string
	Type       string
	Length     int    // only rendered for variable-length types
	PrimaryKey bool
	Unique     bool
	NotNull    bool
	Default    string // literal value or keyword (e.g. CURRENT_TIMESTAMP)
}

// Index describes a secondary index on a table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Using   string // index method, e.g. "gin"; empty for the default btree
}

// Trigger describes a row-level trigger. The rendered trigger name is
// namespaced as <Name>_<table> because PostgreSQL scopes trigger names
// per table, not per schema.
type Trigger struct {
	Name      string
	Timing    string // BEFORE / AFTER
	Event     string // INSERT / UPDATE / DELETE
	Function  string // backing function call, e.g. "update_updated_at_column()"
	Condition string // optional WHEN condition
}

// Table is a complete table definition.
type Table struct {
	Name        string
	Columns     []Column
	Indexes     []Index
	Triggers    []Trigger
	Constraints []string // raw table-level constraint clauses
}

// UpdatedAtTrigger keeps updated_at current on every row update. The
// backing function is created per schema by the provisioning engine.
var UpdatedAtTrigger = Trigger{
	Name:     "update_updated_at",
	Timing:   "BEFORE",
	Event:    "UPDATE",
	Function: "update_updated_at_column()",
}

// timestampColumns returns the standard audit columns appended to every
// catalog table.
func timestampColumns() []Column {
	return []Column{
		{Name: "created_at", Type: "TIMESTAMP", Default: "CURRENT_TIMESTAMP", NotNull: true},
		{Name: "updated_at", Type: "TIMESTAMP", Default: "CURRENT_TIMESTAMP", NotNull: true},
		{Name: "deleted_at", Type: "TIMESTAMP"},
	}
}
