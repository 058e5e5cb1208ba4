// Package query implements the query executor (spec.md 4.I): the
// only entry point callers use for ordinary SQL, as opposed to schema
// mutations which must go through internal/schema. Its Exec/Query
// split mirrors hazyhaar-GoClode/internal/core/db.go's Engine
// Exec/Query/QueryRow convenience wrappers, generalized from "the one
// engine DB" to "the tenant a ConnContext resolves to".
package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/maintenance"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/pool"
	"github.com/cinchdb/cinchdb/internal/sqlclass"
)

// Executor routes a read or write SQL statement to the tenant
// connection a ConnContext resolves to.
type Executor struct {
	Pool   *pool.Pool
	Gate   *maintenance.Gate
	Layout *cinchpath.Layout
}

// Execute runs a read statement and returns its result as ordered
// typed rows. DDL and write statements are rejected.
func (e *Executor) Execute(ctx context.Context, cc model.ConnContext, query string, args ...any) ([]model.Row, error) {
	const op = "query.Execute"
	if err := sqlclass.RejectDDL(op, query); err != nil {
		return nil, err
	}
	if err := sqlclass.CheckKind(op, query, sqlclass.Read); err != nil {
		return nil, err
	}

	h, err := e.borrow(ctx, cc)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	rows, err := h.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cincherr.Wrap(op, err)
	}
	defer rows.Close()

	return scanRows(op, rows)
}

// ExecuteWrite runs a write statement (INSERT/UPDATE/DELETE/REPLACE)
// and returns the number of affected rows. DDL and read statements are
// rejected; the maintenance gate is consulted first.
func (e *Executor) ExecuteWrite(ctx context.Context, cc model.ConnContext, query string, args ...any) (int64, error) {
	const op = "query.ExecuteWrite"
	if err := sqlclass.RejectDDL(op, query); err != nil {
		return 0, err
	}
	if err := sqlclass.CheckKind(op, query, sqlclass.Write); err != nil {
		return 0, err
	}
	if err := e.Gate.Check(op, cc.Database, cc.Branch); err != nil {
		return 0, err
	}

	h, err := e.borrow(ctx, cc)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	result, err := h.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, cincherr.Wrap(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, cincherr.Wrap(op, err)
	}
	return n, nil
}

func (e *Executor) borrow(ctx context.Context, cc model.ConnContext) (*pool.Handle, error) {
	path := e.Layout.TenantFile(cc.Database, cc.Branch, cc.Tenant)
	h, err := e.Pool.Borrow(ctx, path, cc.EncryptionKey)
	if err != nil {
		return nil, cincherr.Wrap("query.borrow", err)
	}
	return h, nil
}

func scanRows(op string, rows *sql.Rows) ([]model.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, cincherr.Wrap(op, err)
	}

	var out []model.Row
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, cincherr.Wrap(op, err)
		}

		values := make([]model.Cell, len(columns))
		for i, v := range raw {
			values[i] = toCell(v)
		}
		out = append(out, model.Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, cincherr.Wrap(op, err)
	}
	return out, nil
}

func toCell(v any) model.Cell {
	switch t := v.(type) {
	case nil:
		return model.Cell{Kind: model.CellNull}
	case int64:
		return model.Cell{Kind: model.CellInteger, Integer: t}
	case float64:
		return model.Cell{Kind: model.CellReal, Real: t}
	case string:
		return model.Cell{Kind: model.CellText, Text: t}
	case []byte:
		return model.Cell{Kind: model.CellBlob, Blob: t}
	default:
		return model.Cell{Kind: model.CellText, Text: fmt.Sprintf("%v", t)}
	}
}
