package schema

import (
	"context"
	"fmt"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/sqlclass"
)

// CreateView validates and commits a create_view change. selectSQL
// must classify as a read statement (4.I); CREATE VIEW itself supplies
// the DDL wrapper.
func (m *Manager) CreateView(ctx context.Context, name, selectSQL string) (model.Change, error) {
	const op = "schema.CreateView"
	if err := m.checkMaintenance(op); err != nil {
		return model.Change{}, err
	}
	if err := checkName(op, name); err != nil {
		return model.Change{}, err
	}
	if err := sqlclass.CheckKind(op, selectSQL, sqlclass.Read); err != nil {
		return model.Change{}, err
	}

	h, err := m.Pool.Borrow(ctx, m.mainTenantPath(), nil)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	defer h.Release()

	existsTable, err := tableExists(ctx, h.DB, name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	existsView, err := viewExists(ctx, h.DB, name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if existsTable || existsView {
		return model.Change{}, cincherr.New(cincherr.AlreadyExists, op, "name already in use: "+name)
	}

	change := model.NewChange(model.CreateView, map[string]any{"name": name, "select_sql": selectSQL})
	return m.commit(ctx, op, change)
}

// DropView validates and commits a drop_view change.
func (m *Manager) DropView(ctx context.Context, name string) (model.Change, error) {
	const op = "schema.DropView"
	if err := m.checkMaintenance(op); err != nil {
		return model.Change{}, err
	}

	h, err := m.Pool.Borrow(ctx, m.mainTenantPath(), nil)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	defer h.Release()

	exists, err := viewExists(ctx, h.DB, name)
	if err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if !exists {
		return model.Change{}, cincherr.New(cincherr.NotFound, op, "view not found: "+name)
	}

	change := model.NewChange(model.DropView, map[string]any{"name": name})
	return m.commit(ctx, op, change)
}

func buildCreateViewSQL(payload map[string]any) ([]string, error) {
	name := asString(payload["name"])
	selectSQL := asString(payload["select_sql"])
	return []string{fmt.Sprintf("CREATE VIEW %q AS %s", name, selectSQL)}, nil
}

func buildDropViewSQL(payload map[string]any) ([]string, error) {
	return []string{fmt.Sprintf("DROP VIEW %q", asString(payload["name"]))}, nil
}
