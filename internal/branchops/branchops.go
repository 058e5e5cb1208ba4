// Package branchops implements branch-level operations over the
// storage engine (spec.md 4.H): create_branch, delete_branch, and
// merge. Its manager-over-injected-collaborators shape follows
// other_examples/66c451c7_riftdata-rift's branch manager
// (mu-guarded map, load/persist-to-disk lifecycle), generalized from
// an in-memory branch map to CinchDB's on-disk branch directories.
package branchops

import (
	"context"
	"fmt"
	"os"

	"github.com/cinchdb/cinchdb/internal/changelog"
	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/fanout"
	"github.com/cinchdb/cinchdb/internal/maintenance"
	"github.com/cinchdb/cinchdb/internal/metadatastore"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/namecheck"
	"github.com/cinchdb/cinchdb/internal/pool"
	"github.com/cinchdb/cinchdb/internal/schema"
)

// Manager owns the collaborators branch operations need.
type Manager struct {
	Pool     *pool.Pool
	Meta     *metadatastore.Store
	Gate     *maintenance.Gate
	Layout   *cinchpath.Layout
	Database string
}

func (m *Manager) logFor(branch string) *changelog.Log {
	return changelog.Open(m.Layout.ChangesFile(m.Database, branch), m.Layout.ChangesLockFile(m.Database, branch))
}

func (m *Manager) fanoutDepsFor(branch string) fanout.Deps {
	return fanout.Deps{
		Pool:     m.Pool,
		Meta:     m.Meta,
		Log:      m.logFor(branch),
		Layout:   m.Layout,
		Database: m.Database,
		Branch:   branch,
	}
}

// CreateBranch snapshots fromBranch's change log and tenant files into
// a new branch, under branch-scoped maintenance on the source
// (spec.md 4.H).
func (m *Manager) CreateBranch(ctx context.Context, fromBranch, newName string) error {
	const op = "branchops.CreateBranch"

	if err := namecheck.Check(op, newName); err != nil {
		return err
	}
	exists, err := m.Meta.BranchExists(m.Database, fromBranch)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	if !exists {
		return cincherr.New(cincherr.NotFound, op, "source branch not found: "+fromBranch)
	}
	taken, err := m.Meta.BranchExists(m.Database, newName)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	if taken {
		return cincherr.New(cincherr.AlreadyExists, op, "branch already exists: "+newName)
	}
	if err := m.Gate.Check(op, m.Database, fromBranch); err != nil {
		return err
	}

	branchKey := maintenance.BranchKey(m.Database, fromBranch)
	if err := m.Gate.Enter(model.ScopeBranch, branchKey, "create_branch snapshot of "+fromBranch); err != nil {
		return cincherr.Wrap(op, err)
	}
	defer m.Gate.Exit(model.ScopeBranch, branchKey)

	if err := os.MkdirAll(m.Layout.TenantsDir(m.Database, newName), 0o755); err != nil {
		return cincherr.Wrap(op, err)
	}

	srcChanges, err := os.ReadFile(m.Layout.ChangesFile(m.Database, fromBranch))
	if err != nil && !os.IsNotExist(err) {
		return cincherr.Wrap(op, err)
	}
	if err == nil {
		if err := os.WriteFile(m.Layout.ChangesFile(m.Database, newName), srcChanges, 0o644); err != nil {
			return cincherr.Wrap(op, err)
		}
	} else {
		if err := m.logFor(newName).Init(); err != nil {
			return err
		}
	}

	if err := m.Meta.RegisterBranch(m.Database, newName, fromBranch); err != nil {
		return cincherr.Wrap(op, err)
	}

	tenants, err := m.Meta.ListTenants(m.Database, fromBranch)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	for _, tenant := range tenants {
		if err := m.copyTenant(ctx, fromBranch, newName, tenant); err != nil {
			return err
		}
	}
	return nil
}

// copyTenant duplicates one tenant file from srcBranch to dstBranch
// via SQLite's VACUUM INTO statement rather than an OS-level file
// copy, preserving WAL safety (spec.md 4.H).
func (m *Manager) copyTenant(ctx context.Context, srcBranch, dstBranch, tenant string) error {
	const op = "branchops.copyTenant"

	dst := m.Layout.TenantFile(m.Database, dstBranch, tenant)
	if _, err := os.Stat(dst); err == nil {
		return cincherr.New(cincherr.AlreadyExists, op, "tenant file already exists: "+dst)
	}

	h, err := m.Pool.Borrow(ctx, m.Layout.TenantFile(m.Database, srcBranch, tenant), nil)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	defer h.Release()

	if _, err := h.DB.ExecContext(ctx, fmt.Sprintf("VACUUM INTO %q", dst)); err != nil {
		return cincherr.Wrap(op, err)
	}

	if err := m.Meta.RegisterTenant(m.Database, dstBranch, tenant); err != nil {
		return cincherr.Wrap(op, err)
	}
	version, err := m.Meta.GetSchemaVersion(m.Database, srcBranch, tenant)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	if version != "" {
		if err := m.Meta.SetSchemaVersion(m.Database, dstBranch, tenant, version); err != nil {
			return cincherr.Wrap(op, err)
		}
	}
	return nil
}

// DeleteBranch refuses to delete "main" and refuses while any tenant
// connection is borrowed, then removes the branch's subtree and metadata.
func (m *Manager) DeleteBranch(ctx context.Context, name string) error {
	const op = "branchops.DeleteBranch"

	if name == "main" {
		return cincherr.New(cincherr.SchemaConflict, op, "refusing to delete the main branch")
	}
	exists, err := m.Meta.BranchExists(m.Database, name)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	if !exists {
		return cincherr.New(cincherr.NotFound, op, "branch not found: "+name)
	}

	tenants, err := m.Meta.ListTenants(m.Database, name)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	for _, tenant := range tenants {
		path := m.Layout.TenantFile(m.Database, name, tenant)
		if m.Pool.IsBorrowed(path) {
			return cincherr.New(cincherr.Concurrency, op, "tenant connection is borrowed: "+tenant)
		}
	}

	if err := os.RemoveAll(m.Layout.BranchDir(m.Database, name)); err != nil {
		return cincherr.Wrap(op, err)
	}
	for _, tenant := range tenants {
		if err := m.Meta.DropTenant(m.Database, name, tenant); err != nil {
			return cincherr.Wrap(op, err)
		}
	}
	if err := m.Meta.DropBranch(m.Database, name); err != nil {
		return cincherr.Wrap(op, err)
	}
	return nil
}

// MergeResult reports what a successful merge applied.
type MergeResult struct {
	AppliedChangeIDs []string
}

// mergeSourceTag is a payload key stamped onto a re-appended merge
// change, recording the source change id it was merged from. It lets
// Merge recognize a change it already replicated into target on an
// earlier merge, so re-merging the same source is a no-op rather than
// a false conflict against its own past output.
const mergeSourceTag = "_merge_source_id"

func taggedPayload(payload map[string]any, sourceID string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out[mergeSourceTag] = sourceID
	return out
}

func mergeSourceOf(c model.Change) (string, bool) {
	if c.Payload == nil {
		return "", false
	}
	s, ok := c.Payload[mergeSourceTag].(string)
	return s, ok
}

// Merge computes the longest common prefix of source's and target's
// change logs. Changes in source beyond the prefix, not already
// merged into target, form the merge set; changes in target beyond
// the prefix that target authored itself (as opposed to a previous
// merge from this same source) form the conflict set. A non-empty
// conflict set fails the merge; otherwise the merge set is re-stamped
// with fresh ids, appended to target, and fanned out (spec.md 4.H, §9
// "re-stamp, not preserve, ids").
func (m *Manager) Merge(ctx context.Context, source, target string) (MergeResult, error) {
	const op = "branchops.Merge"

	if err := m.Gate.Check(op, m.Database, target); err != nil {
		return MergeResult{}, err
	}

	srcLog := m.logFor(source)
	dstLog := m.logFor(target)

	srcChanges, err := srcLog.All()
	if err != nil {
		return MergeResult{}, err
	}
	dstChanges, err := dstLog.All()
	if err != nil {
		return MergeResult{}, err
	}

	commonLen := 0
	for commonLen < len(srcChanges) && commonLen < len(dstChanges) {
		if srcChanges[commonLen].ID != dstChanges[commonLen].ID {
			break
		}
		commonLen++
	}

	alreadyMerged := map[string]bool{}
	var conflictSet []model.Change
	for _, c := range dstChanges[commonLen:] {
		if sourceID, ok := mergeSourceOf(c); ok {
			alreadyMerged[sourceID] = true
			continue
		}
		conflictSet = append(conflictSet, c)
	}
	if len(conflictSet) > 0 {
		ids := make([]string, len(conflictSet))
		for i, c := range conflictSet {
			ids[i] = c.ID.String()
		}
		return MergeResult{}, cincherr.New(cincherr.MergeConflict, op, "target has diverged, conflicting change ids: "+fmt.Sprint(ids))
	}

	var mergeSet []model.Change
	for _, c := range srcChanges[commonLen:] {
		if !alreadyMerged[c.ID.String()] {
			mergeSet = append(mergeSet, c)
		}
	}

	result := MergeResult{AppliedChangeIDs: make([]string, 0, len(mergeSet))}
	for _, c := range mergeSet {
		restamped := model.NewChange(c.Kind, taggedPayload(c.Payload, c.ID.String()))
		if err := dstLog.Append(restamped); err != nil {
			return MergeResult{}, err
		}
		if err := fanout.Apply(ctx, m.fanoutDepsFor(target), restamped, schema.BuildSQL); err != nil {
			return MergeResult{}, cincherr.Wrap(op, err)
		}
		result.AppliedChangeIDs = append(result.AppliedChangeIDs, restamped.ID.String())
	}
	return result, nil
}
