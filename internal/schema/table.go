package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/model"
)

// Column is the wire shape callers supply for a new column; it omits
// the implicit id/created_at/updated_at columns the manager always adds.
type Column struct {
	Name     string
	Type     model.ColumnType
	Nullable bool
	Default  *string
}

func columnToPayload(c Column) map[string]any {
	p := map[string]any{
		"name":     c.Name,
		"type":     string(c.Type),
		"nullable": c.Nullable,
	}
	if c.Default != nil {
		p["default"] = *c.Default
	}
	return p
}

func columnFromPayload(v any) (Column, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Column{}, fmt.Errorf("schema: malformed column payload")
	}
	c := Column{
		Name:     asString(m["name"]),
		Type:     model.ColumnType(asString(m["type"])),
		Nullable: asBool(m["nullable"]),
	}
	if d, ok := m["default"]; ok && d != nil {
		s := asString(d)
		c.Default = &s
	}
	return c, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func isValidColumnType(t model.ColumnType) bool {
	switch t {
	case model.TypeText, model.TypeInteger, model.TypeReal, model.TypeBlob, model.TypeNumeric:
		return true
	}
	return false
}

// CreateTable validates and commits a create_table change (spec.md 4.F).
// The implicit id/created_at/updated_at columns are added here; callers
// must not declare them.
func (m *Manager) CreateTable(ctx context.Context, name string, columns []Column) (model.Change, error) {
	const op = "schema.CreateTable"
	if err := m.checkMaintenance(op); err != nil {
		return model.Change{}, err
	}
	if err := checkName(op, name); err != nil {
		return model.Change{}, err
	}
	if len(columns) == 0 {
		return model.Change{}, cincherr.New(cincherr.SQLValidation, op, "create_table requires at least one column")
	}

	colPayloads := make([]any, 0, len(columns))
	seen := map[string]bool{}
	for _, c := range columns {
		if systemColumns[c.Name] {
			return model.Change{}, cincherr.New(cincherr.SQLValidation, op, "column name is reserved: "+c.Name)
		}
		if err := checkName(op, c.Name); err != nil {
			return model.Change{}, err
		}
		if !isValidColumnType(c.Type) {
			return model.Change{}, cincherr.New(cincherr.SQLValidation, op, "invalid column type: "+string(c.Type))
		}
		if !c.Nullable && c.Default == nil {
			return model.Change{}, cincherr.New(cincherr.SQLValidation, op, "non-nullable column requires a default: "+c.Name)
		}
		if seen[c.Name] {
			return model.Change{}, cincherr.New(cincherr.SQLValidation, op, "duplicate column name: "+c.Name)
		}
		seen[c.Name] = true
		colPayloads = append(colPayloads, columnToPayload(c))
	}

	h, err := m.Pool.Borrow(ctx, m.mainTenantPath(), nil)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	defer h.Release()

	exists, err := tableExists(ctx, h.DB, name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if exists {
		return model.Change{}, cincherr.New(cincherr.AlreadyExists, op, "table already exists: "+name)
	}

	change := model.NewChange(model.CreateTable, map[string]any{
		"name":    name,
		"columns": colPayloads,
	})
	return m.commit(ctx, op, change)
}

// DropTable validates and commits a drop_table change. Refuses to drop
// the last table, and refuses if any view depends on it.
func (m *Manager) DropTable(ctx context.Context, name string) (model.Change, error) {
	const op = "schema.DropTable"
	if err := m.checkMaintenance(op); err != nil {
		return model.Change{}, err
	}
	if err := checkName(op, name); err != nil {
		return model.Change{}, err
	}

	h, err := m.Pool.Borrow(ctx, m.mainTenantPath(), nil)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	defer h.Release()

	exists, err := tableExists(ctx, h.DB, name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if !exists {
		return model.Change{}, cincherr.New(cincherr.NotFound, op, "table not found: "+name)
	}

	count, err := tableCount(ctx, h.DB)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if count <= 1 {
		return model.Change{}, cincherr.New(cincherr.SchemaConflict, op, "refusing to drop the last table")
	}

	dependents, err := viewsReferencing(ctx, h.DB, name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if len(dependents) > 0 {
		return model.Change{}, cincherr.New(cincherr.SchemaConflict, op, "views depend on table "+name+": "+fmt.Sprint(dependents))
	}

	change := model.NewChange(model.DropTable, map[string]any{"name": name})
	return m.commit(ctx, op, change)
}

func buildCreateTableSQL(payload map[string]any) ([]string, error) {
	name := asString(payload["name"])
	cols := asSlice(payload["columns"])

	stmt := fmt.Sprintf(`CREATE TABLE %q (`, name)
	stmt += `id TEXT PRIMARY KEY, `
	for _, raw := range cols {
		c, err := columnFromPayload(raw)
		if err != nil {
			return nil, err
		}
		stmt += fmt.Sprintf("%q %s", c.Name, c.Type)
		if !c.Nullable {
			stmt += " NOT NULL"
		}
		if c.Default != nil {
			stmt += fmt.Sprintf(" DEFAULT %s", quoteDefault(c.Type, *c.Default))
		}
		stmt += ", "
	}
	stmt += `created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')), `
	stmt += `updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`
	stmt += ")"
	return []string{stmt}, nil
}

func buildDropTableSQL(payload map[string]any) ([]string, error) {
	return []string{fmt.Sprintf(`DROP TABLE %q`, asString(payload["name"]))}, nil
}

func quoteDefault(t model.ColumnType, v string) string {
	switch t {
	case model.TypeInteger, model.TypeReal, model.TypeNumeric:
		return v
	default:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
}
