// Package model holds the value types shared across the CinchDB core:
// the connection context callers address operations with, the change
// record that flows from schema managers through the change log to
// tenant fanout, and the typed cell/row shape query results are
// returned as.
package model

import (
	"time"

	"github.com/cinchdb/cinchdb/internal/ulid"
)

// ConnContext is the immutable value every core operation is
// addressed with: the currency managers are parameterized by, per
// spec.md §3 and §9 (no inheritance, capability composition instead).
type ConnContext struct {
	ProjectRoot   string
	Database      string
	Branch        string
	Tenant        string // empty when the operation is branch-scoped, not tenant-scoped
	EncryptionKey []byte
}

// WithTenant returns a copy of c addressed at a specific tenant.
func (c ConnContext) WithTenant(tenant string) ConnContext {
	c.Tenant = tenant
	return c
}

// ChangeKind enumerates the schema mutation kinds spec.md §3 defines.
type ChangeKind string

const (
	CreateTable  ChangeKind = "create_table"
	DropTable    ChangeKind = "drop_table"
	AddColumn    ChangeKind = "add_column"
	DropColumn   ChangeKind = "drop_column"
	RenameColumn ChangeKind = "rename_column"
	CreateView   ChangeKind = "create_view"
	DropView     ChangeKind = "drop_view"
)

// ColumnType enumerates the SQLite-ish column types spec.md 4.F allows.
type ColumnType string

const (
	TypeText    ColumnType = "TEXT"
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeBlob    ColumnType = "BLOB"
	TypeNumeric ColumnType = "NUMERIC"
)

// ColumnDef describes one user-declared column (the implicit id /
// created_at / updated_at columns are never part of this type; the
// schema manager adds them itself).
type ColumnDef struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Default  *string
}

// Change is an atomic, append-only schema mutation record.
type Change struct {
	ID             ulid.ID
	Kind           ChangeKind
	Payload        map[string]any
	CreatedAt      time.Time
	AppliedTenants map[string]bool
}

// NewChange constructs a Change with a fresh id and an empty applied set.
func NewChange(kind ChangeKind, payload map[string]any) Change {
	return Change{
		ID:             ulid.New(),
		Kind:           kind,
		Payload:        payload,
		CreatedAt:      time.Now(),
		AppliedTenants: map[string]bool{},
	}
}

// CellKind enumerates the sum variant a result cell can hold.
type CellKind int

const (
	CellNull CellKind = iota
	CellInteger
	CellReal
	CellText
	CellBlob
)

// Cell is one typed value in a query result row.
type Cell struct {
	Kind    CellKind
	Integer int64
	Real    float64
	Text    string
	Blob    []byte
}

// Value returns the cell's value as a plain Go interface{}, or nil.
func (c Cell) Value() any {
	switch c.Kind {
	case CellInteger:
		return c.Integer
	case CellReal:
		return c.Real
	case CellText:
		return c.Text
	case CellBlob:
		return c.Blob
	default:
		return nil
	}
}

// Row is one ordered, named set of Cells.
type Row struct {
	Columns []string
	Values  []Cell
}

// MaintenanceScope enumerates what a Maintenance Record locks.
type MaintenanceScope string

const (
	ScopeDatabase MaintenanceScope = "db"
	ScopeBranch   MaintenanceScope = "branch"
)

// MaintenanceInfo is a maintenance record as read back from the
// metadata store.
type MaintenanceInfo struct {
	Scope     MaintenanceScope
	Key       string
	Reason    string
	StartedAt time.Time
}

// TenantState enumerates the tenant state machine of spec.md §4 "State
// Machines".
type TenantState string

const (
	TenantAbsent       TenantState = "absent"
	TenantInitializing TenantState = "initializing"
	TenantReady        TenantState = "ready"
	TenantDivergent    TenantState = "divergent"
	TenantDeleted      TenantState = "deleted"
)
