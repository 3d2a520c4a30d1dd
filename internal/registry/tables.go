package registry

// ShopInfoTable holds the storefront profile and its provider access
// token inside the tenant schema.
var ShopInfoTable = Table{
	Name: "shop_info",
	Columns: append([]Column{
		{Name: "id", Type: "SERIAL", PrimaryKey: true},
		{Name: "shop_code", Type: "VARCHAR", Length: 20, Unique: true, NotNull: true},
		{Name: "shop_domain", Type: "VARCHAR", Length: 255, NotNull: true},
		{Name: "shop_name", Type: "VARCHAR", Length: 255},
		{Name: "shop_email", Type: "VARCHAR", Length: 100},
		{Name: "currency", Type: "VARCHAR", Length: 50},
		{Name: "timezone", Type: "VARCHAR", Length: 100},
		{Name: "plan_name", Type: "VARCHAR", Length: 50},
		{Name: "access_token", Type: "TEXT"},
		{Name: "is_active", Type: "BOOLEAN", Default: "true", NotNull: true},
		{Name: "additional_data", Type: "JSONB"},
	}, timestampColumns()...),
	Triggers: []Trigger{UpdatedAtTrigger},
}

// ProductsTable mirrors the provider's product catalog.
var ProductsTable = Table{
	Name: "products",
	Columns: append([]Column{
		{Name: "id", Type: "SERIAL", PrimaryKey: true},
		{Name: "shopify_product_id", Type: "BIGINT", NotNull: true, Unique: true},
		{Name: "title", Type: "VARCHAR", Length: 500, NotNull: true},
		{Name: "handle", Type: "VARCHAR", Length: 255, NotNull: true},
		{Name: "description", Type: "TEXT"},
		{Name: "vendor", Type: "VARCHAR", Length: 255},
		{Name: "product_type", Type: "VARCHAR", Length: 255},
		{Name: "status", Type: "VARCHAR", Length: 50, Default: "active", NotNull: true},
		{Name: "tags", Type: "TEXT"},
		{Name: "price", Type: "DECIMAL"},
		{Name: "compare_at_price", Type: "DECIMAL"},
		{Name: "inventory_quantity", Type: "INTEGER", Default: "0", NotNull: true},
		{Name: "published_at", Type: "TIMESTAMP"},
	}, timestampColumns()...),
	Indexes: []Index{
		{Name: "idx_products_shopify_id", Columns: []string{"shopify_product_id"}, Unique: true},
		{Name: "idx_products_handle", Columns: []string{"handle"}},
		{Name: "idx_products_status", Columns: []string{"status"}},
	},
	Triggers: []Trigger{UpdatedAtTrigger},
}

// OrdersTable mirrors the provider's order history.
var OrdersTable = Table{
	Name: "orders",
	Columns: append([]Column{
		{Name: "id", Type: "SERIAL", PrimaryKey: true},
		{Name: "shopify_order_id", Type: "BIGINT", NotNull: true, Unique: true},
		{Name: "order_number", Type: "VARCHAR", Length: 50, NotNull: true},
		{Name: "email", Type: "VARCHAR", Length: 255},
		{Name: "total_price", Type: "DECIMAL", NotNull: true},
		{Name: "subtotal_price", Type: "DECIMAL", NotNull: true},
		{Name: "total_tax", Type: "DECIMAL"},
		{Name: "currency", Type: "VARCHAR", Length: 10, NotNull: true},
		{Name: "financial_status", Type: "VARCHAR", Length: 50},
		{Name: "fulfillment_status", Type: "VARCHAR", Length: 50},
		{Name: "processed_at", Type: "TIMESTAMP"},
	}, timestampColumns()...),
	Indexes: []Index{
		{Name: "idx_orders_shopify_id", Columns: []string{"shopify_order_id"}, Unique: true},
		{Name: "idx_orders_number", Columns: []string{"order_number"}},
		{Name: "idx_orders_email", Columns: []string{"email"}},
		{Name: "idx_orders_status", Columns: []string{"financial_status", "fulfillment_status"}},
	},
	Triggers: []Trigger{UpdatedAtTrigger},
}

// SchemaInfoTable tracks applied schema versions inside each tenant
// schema. Not part of the catalog: the provisioning engine creates it
// on first use and validation ignores it.
var SchemaInfoTable = Table{
	Name: "schema_info",
	Columns: []Column{
		{Name: "id", Type: "SERIAL", PrimaryKey: true},
		{Name: "version", Type: "VARCHAR", Length: 50, NotNull: true},
		{Name: "description", Type: "TEXT"},
		{Name: "tables", Type: "JSONB", NotNull: true},
		{Name: "created_at", Type: "TIMESTAMP", Default: "CURRENT_TIMESTAMP", NotNull: true},
	},
}

// catalog lists all provisionable tables in creation order. Order
// matters: provisioning applies requested tables in this order.
var catalog = []Table{ShopInfoTable, ProductsTable, OrdersTable}

// DefaultShopTables is the table set provisioned for a new shop when
// the caller does not ask for a specific one.
var DefaultShopTables = []string{"shop_info"}

// Lookup returns the definition for a table name, or false when the
// name is not in the catalog.
func Lookup(name string) (Table, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Resolve maps requested table names onto catalog definitions, in
// catalog order regardless of request order. Unknown names are returned
// separately so callers can report them.
func Resolve(names []string) ([]Table, []string) {
	requested := make(map[string]bool, len(names))
	var unknown []string
	for _, n := range names {
		if _, ok := Lookup(n); ok {
			requested[n] = true
		} else {
			unknown = append(unknown, n)
		}
	}

	tables := make([]Table, 0, len(requested))
	for _, t := range catalog {
		if requested[t.Name] {
			tables = append(tables, t)
		}
	}
	return tables, unknown
}

// Names returns all catalog table names in creation order.
func Names() []string {
	names := make([]string, len(catalog))
	for i, t := range catalog {
		names[i] = t.Name
	}
	return names
}
