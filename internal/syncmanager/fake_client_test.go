package syncmanager

import (
	"context"
	"database/sql"
	"fmt"

	"dvsync/internal/versioning"
	"dvsync/pkg/types"
)

// fakeClient is a whole-table-snapshot versioning engine, grounded on
// the same in-memory-fake idiom as versioning.MemoryTableStore: it lets
// the sync manager's pipelines be exercised end to end against branches, commits,
// and diffs with no live Dolt connection. Every commit snapshots the
// entire documents table rather than tracking row-level staged/unstaged
// state, which is coarser than the real engine but sufficient to drive
// Status/Commit/Checkout/Merge/Reset/Diff the way the pipelines call
// them.
type fakeCommit struct {
	parent   string
	snapshot map[string]types.Document
	message  string
}

type fakeClient struct {
	tables   *versioning.MemoryTableStore
	branch   string
	branches map[string]string // branch name -> head commit hash
	commits  map[string]fakeCommit
	counter  int

	conflictOnMerge bool
	conflicts       []types.Conflict
}

var _ versioning.Client = (*fakeClient)(nil)

func newFakeClient(tables *versioning.MemoryTableStore) *fakeClient {
	return &fakeClient{
		tables:   tables,
		branch:   "main",
		branches: map[string]string{"main": ""},
		commits:  make(map[string]fakeCommit),
	}
}

func (c *fakeClient) Query(context.Context, string, ...interface{}) ([]versioning.Row, error) {
	return nil, nil
}

func (c *fakeClient) Execute(context.Context, string, ...interface{}) error { return nil }

func (c *fakeClient) CurrentBranch(context.Context) (string, error) { return c.branch, nil }

func (c *fakeClient) HeadCommit(context.Context) (string, error) {
	return c.branches[c.branch], nil
}

func (c *fakeClient) snapshotDocuments(ctx context.Context) (map[string]types.Document, error) {
	cols, err := c.tables.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.Document)
	for _, col := range cols {
		docs, err := c.tables.ListDocuments(ctx, col.CollectionName)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			out[d.DocID+"\x00"+d.CollectionName] = d
		}
	}
	return out, nil
}

func (c *fakeClient) restoreSnapshot(ctx context.Context, snapshot map[string]types.Document) error {
	current, err := c.snapshotDocuments(ctx)
	if err != nil {
		return err
	}
	for key, d := range current {
		if _, ok := snapshot[key]; !ok {
			if err := c.tables.DeleteDocument(ctx, d.DocID, d.CollectionName); err != nil {
				return err
			}
		}
	}
	for _, d := range snapshot {
		doc := d
		if err := c.tables.UpsertDocument(ctx, &doc); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeClient) dirty(ctx context.Context) (bool, error) {
	current, err := c.snapshotDocuments(ctx)
	if err != nil {
		return false, err
	}
	head := c.branches[c.branch]
	committed := c.commits[head].snapshot
	if len(current) != len(committed) {
		return true, nil
	}
	for key, d := range current {
		cd, ok := committed[key]
		if !ok || cd.ContentHash != d.ContentHash {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeClient) Status(ctx context.Context) (*versioning.Status, error) {
	dirty, err := c.dirty(ctx)
	if err != nil {
		return nil, err
	}
	if !dirty {
		return &versioning.Status{}, nil
	}
	return &versioning.Status{UnstagedTables: []string{"documents"}}, nil
}

func (c *fakeClient) Add(context.Context, string) error { return nil }
func (c *fakeClient) AddAll(context.Context) error      { return nil }

func (c *fakeClient) Commit(ctx context.Context, message string) (*versioning.CommitResult, error) {
	snapshot, err := c.snapshotDocuments(ctx)
	if err != nil {
		return nil, err
	}
	c.counter++
	hash := fmt.Sprintf("commit-%d", c.counter)
	c.commits[hash] = fakeCommit{parent: c.branches[c.branch], snapshot: snapshot, message: message}
	c.branches[c.branch] = hash
	return &versioning.CommitResult{Success: true, Hash: hash, Message: message}, nil
}

func (c *fakeClient) Checkout(ctx context.Context, ref string, createNew bool) (*versioning.CheckoutResult, error) {
	dirty, err := c.dirty(ctx)
	if err != nil {
		return nil, err
	}
	if dirty {
		return nil, fmt.Errorf("checkout blocked: uncommitted local changes")
	}
	if createNew {
		if _, exists := c.branches[ref]; !exists {
			c.branches[ref] = c.branches[c.branch]
		}
	}
	head, ok := c.branches[ref]
	if !ok {
		return nil, fmt.Errorf("unknown branch %q", ref)
	}
	c.branch = ref
	if err := c.restoreSnapshot(ctx, c.commits[head].snapshot); err != nil {
		return nil, err
	}
	return &versioning.CheckoutResult{Success: true}, nil
}

func (c *fakeClient) resolveRef(ref string) string {
	if ref == "HEAD" || ref == "" {
		return c.branches[c.branch]
	}
	if head, ok := c.branches[ref]; ok {
		return head
	}
	return ref
}

func (c *fakeClient) ResetHard(ctx context.Context, ref string) error {
	hash := c.resolveRef(ref)
	c.branches[c.branch] = hash
	return c.restoreSnapshot(ctx, c.commits[hash].snapshot)
}

func (c *fakeClient) ResetSoft(ctx context.Context, ref string) error {
	c.branches[c.branch] = c.resolveRef(ref)
	return nil
}

func (c *fakeClient) Merge(ctx context.Context, ref string) (*versioning.MergeResult, error) {
	if c.conflictOnMerge {
		return &versioning.MergeResult{Success: true, HasConflicts: true}, nil
	}
	theirHead := c.branches[ref]
	merged, err := c.snapshotDocuments(ctx)
	if err != nil {
		return nil, err
	}
	for key, d := range c.commits[theirHead].snapshot {
		if _, ok := merged[key]; !ok {
			merged[key] = d
		}
	}
	if err := c.restoreSnapshot(ctx, merged); err != nil {
		return nil, err
	}
	if _, err := c.Commit(ctx, "merge "+ref); err != nil {
		return nil, err
	}
	return &versioning.MergeResult{Success: true}, nil
}

func (c *fakeClient) Pull(ctx context.Context, remote string) error {
	remoteHead, ok := c.branches[remote]
	if !ok {
		return nil
	}
	c.branches[c.branch] = remoteHead
	return c.restoreSnapshot(ctx, c.commits[remoteHead].snapshot)
}

func (c *fakeClient) Push(context.Context, string, string) (*versioning.PushResult, error) {
	return &versioning.PushResult{Success: true}, nil
}

func (c *fakeClient) Fetch(context.Context) error         { return nil }
func (c *fakeClient) Clone(context.Context, string) error { return nil }
func (c *fakeClient) IsInitialized(context.Context) (bool, error) {
	return c.branches["main"] != "", nil
}

func (c *fakeClient) GetConflicts(_ context.Context, table string) ([]types.Conflict, error) {
	if table == "documents" {
		return c.conflicts, nil
	}
	return nil, nil
}

func (c *fakeClient) Diff(_ context.Context, fromCommit, toCommit, table string) ([]types.DiffRow, error) {
	if table != "documents" {
		return nil, nil
	}
	var from, to map[string]types.Document
	if fromCommit != "" {
		from = c.commits[fromCommit].snapshot
	}
	to = c.commits[toCommit].snapshot
	var rows []types.DiffRow
	for key, doc := range to {
		if old, ok := from[key]; !ok {
			rows = append(rows, types.DiffRow{Action: types.DiffAdded, Document: doc})
		} else if old.ContentHash != doc.ContentHash {
			rows = append(rows, types.DiffRow{Action: types.DiffModified, Document: doc})
		}
	}
	for key, doc := range from {
		if _, ok := to[key]; !ok {
			rows = append(rows, types.DiffRow{Action: types.DiffRemoved, Document: doc})
		}
	}
	return rows, nil
}

func (c *fakeClient) DB() *sql.DB { return nil }
