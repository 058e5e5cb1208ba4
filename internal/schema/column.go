package schema

import (
	"context"
	"fmt"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/model"
)

// AddColumn validates and commits an add_column change. The column is
// appended at the end of table; non-nullable columns must supply a default.
func (m *Manager) AddColumn(ctx context.Context, table string, col Column) (model.Change, error) {
	const op = "schema.AddColumn"
	if err := m.checkMaintenance(op); err != nil {
		return model.Change{}, err
	}
	if err := checkName(op, table); err != nil {
		return model.Change{}, err
	}
	if systemColumns[col.Name] {
		return model.Change{}, cincherr.New(cincherr.SQLValidation, op, "column name is reserved: "+col.Name)
	}
	if err := checkName(op, col.Name); err != nil {
		return model.Change{}, err
	}
	if !isValidColumnType(col.Type) {
		return model.Change{}, cincherr.New(cincherr.SQLValidation, op, "invalid column type: "+string(col.Type))
	}
	if !col.Nullable && col.Default == nil {
		return model.Change{}, cincherr.New(cincherr.SQLValidation, op, "non-nullable column requires a default: "+col.Name)
	}

	h, err := m.Pool.Borrow(ctx, m.mainTenantPath(), nil)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	defer h.Release()

	exists, err := tableExists(ctx, h.DB, table)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if !exists {
		return model.Change{}, cincherr.New(cincherr.NotFound, op, "table not found: "+table)
	}

	already, err := columnExists(ctx, h.DB, table, col.Name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if already {
		return model.Change{}, cincherr.New(cincherr.AlreadyExists, op, "column already exists: "+col.Name)
	}

	change := model.NewChange(model.AddColumn, map[string]any{
		"table":  table,
		"column": columnToPayload(col),
	})
	return m.commit(ctx, op, change)
}

// DropColumn validates and commits a drop_column change. Refuses for
// system columns and columns a view references.
func (m *Manager) DropColumn(ctx context.Context, table, name string) (model.Change, error) {
	const op = "schema.DropColumn"
	if err := m.checkMaintenance(op); err != nil {
		return model.Change{}, err
	}
	if systemColumns[name] {
		return model.Change{}, cincherr.New(cincherr.SchemaConflict, op, "refusing to drop system column: "+name)
	}

	h, err := m.Pool.Borrow(ctx, m.mainTenantPath(), nil)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	defer h.Release()

	exists, err := tableExists(ctx, h.DB, table)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if !exists {
		return model.Change{}, cincherr.New(cincherr.NotFound, op, "table not found: "+table)
	}

	present, err := columnExists(ctx, h.DB, table, name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if !present {
		return model.Change{}, cincherr.New(cincherr.NotFound, op, "column not found: "+name)
	}

	dependents, err := viewsReferencingColumn(ctx, h.DB, name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if len(dependents) > 0 {
		return model.Change{}, cincherr.New(cincherr.SchemaConflict, op, "views depend on column "+name+": "+fmt.Sprint(dependents))
	}

	change := model.NewChange(model.DropColumn, map[string]any{"table": table, "name": name})
	return m.commit(ctx, op, change)
}

// RenameColumn validates and commits a rename_column change.
func (m *Manager) RenameColumn(ctx context.Context, table, oldName, newName string) (model.Change, error) {
	const op = "schema.RenameColumn"
	if err := m.checkMaintenance(op); err != nil {
		return model.Change{}, err
	}
	if systemColumns[oldName] {
		return model.Change{}, cincherr.New(cincherr.SchemaConflict, op, "refusing to rename system column: "+oldName)
	}
	if err := checkName(op, newName); err != nil {
		return model.Change{}, err
	}

	h, err := m.Pool.Borrow(ctx, m.mainTenantPath(), nil)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	defer h.Release()

	exists, err := tableExists(ctx, h.DB, table)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if !exists {
		return model.Change{}, cincherr.New(cincherr.NotFound, op, "table not found: "+table)
	}

	present, err := columnExists(ctx, h.DB, table, oldName)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if !present {
		return model.Change{}, cincherr.New(cincherr.NotFound, op, "column not found: "+oldName)
	}

	clash, err := columnExists(ctx, h.DB, table, newName)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if clash {
		return model.Change{}, cincherr.New(cincherr.AlreadyExists, op, "column already exists: "+newName)
	}

	change := model.NewChange(model.RenameColumn, map[string]any{"table": table, "old": oldName, "new": newName})
	return m.commit(ctx, op, change)
}

func buildAddColumnSQL(payload map[string]any) ([]string, error) {
	table := asString(payload["table"])
	c, err := columnFromPayload(payload["column"])
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("ALTER TABLE %q ADD COLUMN %q %s", table, c.Name, c.Type)
	if !c.Nullable {
		stmt += " NOT NULL"
	}
	if c.Default != nil {
		stmt += fmt.Sprintf(" DEFAULT %s", quoteDefault(c.Type, *c.Default))
	}
	return []string{stmt}, nil
}

func buildDropColumnSQL(payload map[string]any) ([]string, error) {
	table := asString(payload["table"])
	name := asString(payload["name"])
	return []string{fmt.Sprintf("ALTER TABLE %q DROP COLUMN %q", table, name)}, nil
}

func buildRenameColumnSQL(payload map[string]any) ([]string, error) {
	table := asString(payload["table"])
	old := asString(payload["old"])
	newName := asString(payload["new"])
	return []string{fmt.Sprintf("ALTER TABLE %q RENAME COLUMN %q TO %q", table, old, newName)}, nil
}
