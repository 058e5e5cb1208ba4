// Package changelog implements the append-only, per-branch change log
// (spec.md 4.D): changes.json, id-ordered, guarded on append by an
// advisory file lock. The locking idiom is ported from
// steveyegge-beads/cmd/bd/sync_lock_test.go's use of
// github.com/gofrs/flock.
package changelog

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/ulid"
)

// formatVersion is the changes.json schema version (spec.md §6).
const formatVersion = 1

// document is the on-disk shape of changes.json.
type document struct {
	Version int            `json:"version"`
	Changes []changeRecord `json:"changes"`
}

type changeRecord struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	Payload        map[string]any `json:"payload"`
	CreatedAt      time.Time      `json:"created_at"`
	AppliedTenants []string       `json:"applied_tenants"`
}

// Log is a handle onto one branch's changes.json.
type Log struct {
	path     string
	lockPath string
}

// Open returns a Log for the changes.json at path, locked via lockPath.
func Open(path, lockPath string) *Log {
	return &Log{path: path, lockPath: lockPath}
}

// Init creates an empty changes.json if one does not already exist.
func (l *Log) Init() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	}
	return l.writeDocument(document{Version: formatVersion})
}

// All reads every change in id order. Readers never take the append
// lock; a concurrent append may or may not be visible depending on
// scan timing, per spec.md 4.D.
func (l *Log) All() ([]model.Change, error) {
	doc, err := l.readDocument()
	if err != nil {
		return nil, err
	}
	out := make([]model.Change, 0, len(doc.Changes))
	for _, r := range doc.Changes {
		c, err := fromRecord(r)
		if err != nil {
			return nil, cincherr.Wrap("changelog.All", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Head returns the last change in the log, or the zero Change (with
// Zero id) if the log is empty.
func (l *Log) Head() (model.Change, error) {
	all, err := l.All()
	if err != nil {
		return model.Change{}, err
	}
	if len(all) == 0 {
		return model.Change{}, nil
	}
	return all[len(all)-1], nil
}

// Append adds change to the log under the advisory lock, after
// verifying append-monotonicity (spec.md §8 property 2).
func (l *Log) Append(change model.Change) error {
	fl := flock.New(l.lockPath)
	if err := fl.Lock(); err != nil {
		return cincherr.WrapKind(cincherr.Concurrency, "changelog.Append", err)
	}
	defer fl.Unlock()

	doc, err := l.readDocument()
	if err != nil {
		return err
	}

	if len(doc.Changes) > 0 {
		lastID, err := ulid.Parse(doc.Changes[len(doc.Changes)-1].ID)
		if err == nil && change.ID.Compare(lastID) <= 0 {
			return cincherr.New(cincherr.Concurrency, "changelog.Append", "change id does not strictly increase the log")
		}
	}

	doc.Changes = append(doc.Changes, toRecord(change))
	return l.writeDocument(doc)
}

// MarkApplied records that tenant has successfully applied changeID,
// under the append lock.
func (l *Log) MarkApplied(changeID ulid.ID, tenant string) error {
	fl := flock.New(l.lockPath)
	if err := fl.Lock(); err != nil {
		return cincherr.WrapKind(cincherr.Concurrency, "changelog.MarkApplied", err)
	}
	defer fl.Unlock()

	doc, err := l.readDocument()
	if err != nil {
		return err
	}

	target := changeID.String()
	found := false
	for i, r := range doc.Changes {
		if r.ID == target {
			if !containsString(r.AppliedTenants, tenant) {
				doc.Changes[i].AppliedTenants = append(doc.Changes[i].AppliedTenants, tenant)
			}
			found = true
			break
		}
	}
	if !found {
		return cincherr.New(cincherr.NotFound, "changelog.MarkApplied", "change not found in log: "+target)
	}
	return l.writeDocument(doc)
}

// Since returns every change with id strictly greater than after (or
// all changes, if after is the zero id), in log order.
func (l *Log) Since(after ulid.ID) ([]model.Change, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	if after.Zero() {
		return all, nil
	}
	idx := sort.Search(len(all), func(i int) bool {
		return all[i].ID.Compare(after) > 0
	})
	return all[idx:], nil
}

func (l *Log) readDocument() (document, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return document{Version: formatVersion}, nil
	}
	if err != nil {
		return document{}, cincherr.Wrap("changelog.readDocument", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, cincherr.Wrap("changelog.readDocument", err)
	}
	return doc, nil
}

func (l *Log) writeDocument(doc document) error {
	doc.Version = formatVersion
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return cincherr.Wrap("changelog.writeDocument", err)
	}
	// Write to a temp file then rename, so readers never observe a
	// half-written document.
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cincherr.Wrap("changelog.writeDocument", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return cincherr.Wrap("changelog.writeDocument", err)
	}
	return nil
}

func toRecord(c model.Change) changeRecord {
	tenants := make([]string, 0, len(c.AppliedTenants))
	for t := range c.AppliedTenants {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	return changeRecord{
		ID:             c.ID.String(),
		Kind:           string(c.Kind),
		Payload:        c.Payload,
		CreatedAt:      c.CreatedAt,
		AppliedTenants: tenants,
	}
}

func fromRecord(r changeRecord) (model.Change, error) {
	id, err := ulid.Parse(r.ID)
	if err != nil {
		return model.Change{}, err
	}
	applied := make(map[string]bool, len(r.AppliedTenants))
	for _, t := range r.AppliedTenants {
		applied[t] = true
	}
	return model.Change{
		ID:             id,
		Kind:           model.ChangeKind(r.Kind),
		Payload:        r.Payload,
		CreatedAt:      r.CreatedAt,
		AppliedTenants: applied,
	}, nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
