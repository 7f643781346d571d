// Package versioning is the client for the SQL-schema versioning engine
// (the "repository" side): a Dolt-compatible, Postgres-wire-protocol
// server supporting branching, merging, diffing, and commit history on
// tabular data. It exposes an abstract capability set plus the typed
// documents/collections/sync-log tables built on top of it.
package versioning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"dvsync/internal/config"
	synerrors "dvsync/internal/errors"
	"dvsync/internal/logging"
	"dvsync/internal/retry"
	"dvsync/pkg/types"

	_ "github.com/lib/pq"
)

// Row is the single row abstraction carrying typed accessors plus a
// schema-free JSON pass-through, replacing the source's mix of
// strongly-typed and schemaless row reads (Design Notes: "Dynamic row
// parsing").
type Row struct {
	values map[string]interface{}
}

func newRow(values map[string]interface{}) Row {
	return Row{values: values}
}

// GetString returns the column as a string, or "" if absent/nil.
func (r Row) GetString(col string) string {
	v, ok := r.values[col]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// GetInt returns the column as an int, or 0 if absent/nil/unparseable.
func (r Row) GetInt(col string) int {
	v, ok := r.values[col]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

// GetBool returns the column as a bool.
func (r Row) GetBool(col string) bool {
	v, ok := r.values[col]
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetJSON unmarshals the column (expected to hold a JSON document) into
// out.
func (r Row) GetJSON(col string, out interface{}) error {
	raw := r.GetString(col)
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

// Status reports the versioning engine's working-directory state.
type Status struct {
	StagedTables   []string
	UnstagedTables []string
}

// Clean reports whether there is nothing staged or unstaged.
func (s *Status) Clean() bool {
	return len(s.StagedTables) == 0 && len(s.UnstagedTables) == 0
}

// CommitResult is the outcome of Commit.
type CommitResult struct {
	Success bool
	Hash    string
	Message string
}

// CheckoutResult is the outcome of Checkout.
type CheckoutResult struct {
	Success bool
	Error   string
}

// MergeResult is the outcome of Merge.
type MergeResult struct {
	Success      bool
	HasConflicts bool
	Message      string
}

// PushResult is the outcome of Push.
type PushResult struct {
	Success bool
	Message string
}

// Client is the abstract versioning-engine capability set.
type Client interface {
	Query(ctx context.Context, sqlText string, args ...interface{}) ([]Row, error)
	Execute(ctx context.Context, sqlText string, args ...interface{}) error

	CurrentBranch(ctx context.Context) (string, error)
	HeadCommit(ctx context.Context) (string, error)
	Status(ctx context.Context) (*Status, error)
	Add(ctx context.Context, table string) error
	AddAll(ctx context.Context) error
	Commit(ctx context.Context, message string) (*CommitResult, error)
	Checkout(ctx context.Context, ref string, createNew bool) (*CheckoutResult, error)
	ResetHard(ctx context.Context, ref string) error
	ResetSoft(ctx context.Context, ref string) error
	Merge(ctx context.Context, ref string) (*MergeResult, error)
	Pull(ctx context.Context, remote string) error
	Push(ctx context.Context, remote, branch string) (*PushResult, error)
	Fetch(ctx context.Context) error
	Clone(ctx context.Context, url string) error
	IsInitialized(ctx context.Context) (bool, error)
	GetConflicts(ctx context.Context, table string) ([]types.Conflict, error)
	Diff(ctx context.Context, fromCommit, toCommit, table string) ([]types.DiffRow, error)

	// DB exposes the underlying connection for tables.go's typed CRUD.
	// Returns nil for clients with no direct SQL connection.
	DB() *sql.DB
}

// identifierPattern guards against SQL injection through table names
// that must be interpolated (Dolt's per-table system views and
// functions take the table name as an identifier, not a bind
// parameter).
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid table identifier %q", name)
	}
	return nil
}

// PqClient talks to the versioning engine over its Postgres-wire
// protocol using Dolt's SQL-level VCS functions (DOLT_ADD, DOLT_COMMIT,
// DOLT_CHECKOUT, DOLT_MERGE, DOLT_RESET, DOLT_DIFF, dolt_status,
// dolt_conflicts_<table>).
type PqClient struct {
	db      *sql.DB
	logger  *logging.EnhancedLogger
	retrier *retry.Retrier
}

// NewPqClient opens a connection to the versioning engine, retrying the
// initial ping against transient connection failures (the server
// restarting, a momentary network blip) before giving up.
func NewPqClient(cfg *config.VersioningConfig) (*PqClient, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, synerrors.NewBackendUnavailable("versioning engine", err)
	}
	db.SetConnMaxLifetime(time.Hour)

	if cfg.ConnectTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ConnectTimeout)*time.Second)
		defer cancel()
		result := retry.New(retry.DefaultConfig()).Do(ctx, func(ctx context.Context) error {
			return db.PingContext(ctx)
		})
		if result.Err != nil {
			db.Close()
			return nil, synerrors.NewBackendUnavailable("versioning engine", result.Err)
		}
	}

	return &PqClient{
		db:      db,
		logger:  logging.GetComponentLogger("versioning.client"),
		retrier: retry.New(retry.DefaultConfig()),
	}, nil
}

func (c *PqClient) DB() *sql.DB { return c.db }

// Query retries on transient failures since a read is always safe to
// repeat. Execute is not retried: Dolt's DOLT_* stored procedures aren't
// guaranteed idempotent if a write succeeded server-side but the
// response was lost, so a blind retry there could double-apply it.
func (c *PqClient) Query(ctx context.Context, sqlText string, args ...interface{}) ([]Row, error) {
	var rows *sql.Rows
	result := c.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		rows, err = c.db.QueryContext(ctx, sqlText, args...)
		return err
	})
	if result.Err != nil {
		return nil, fmt.Errorf("query versioning engine: %w", result.Err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		values := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			values[col] = raw[i]
		}
		out = append(out, newRow(values))
	}
	return out, rows.Err()
}

func (c *PqClient) Execute(ctx context.Context, sqlText string, args ...interface{}) error {
	if _, err := c.db.ExecContext(ctx, sqlText, args...); err != nil {
		return fmt.Errorf("execute on versioning engine: %w", err)
	}
	return nil
}

func (c *PqClient) CurrentBranch(ctx context.Context) (string, error) {
	rows, err := c.Query(ctx, "SELECT active_branch() AS branch")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("active_branch(): no rows")
	}
	return rows[0].GetString("branch"), nil
}

func (c *PqClient) HeadCommit(ctx context.Context) (string, error) {
	rows, err := c.Query(ctx, "SELECT hashof('HEAD') AS commit_hash")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("hashof('HEAD'): no rows")
	}
	return rows[0].GetString("commit_hash"), nil
}

func (c *PqClient) Status(ctx context.Context) (*Status, error) {
	rows, err := c.Query(ctx, "SELECT table_name, staged FROM dolt_status")
	if err != nil {
		return nil, err
	}
	status := &Status{}
	for _, r := range rows {
		if r.GetBool("staged") {
			status.StagedTables = append(status.StagedTables, r.GetString("table_name"))
		} else {
			status.UnstagedTables = append(status.UnstagedTables, r.GetString("table_name"))
		}
	}
	return status, nil
}

func (c *PqClient) Add(ctx context.Context, table string) error {
	if err := validIdentifier(table); err != nil {
		return err
	}
	return c.Execute(ctx, "SELECT DOLT_ADD($1)", table)
}

func (c *PqClient) AddAll(ctx context.Context) error {
	return c.Execute(ctx, "SELECT DOLT_ADD('-A')")
}

func (c *PqClient) Commit(ctx context.Context, message string) (*CommitResult, error) {
	rows, err := c.Query(ctx, "SELECT DOLT_COMMIT('-m', $1, '--allow-empty') AS commit_hash", message)
	if err != nil {
		return &CommitResult{Success: false, Message: err.Error()}, err
	}
	hash := ""
	if len(rows) > 0 {
		hash = rows[0].GetString("commit_hash")
	}
	c.logger.Info("committed", "hash", hash)
	return &CommitResult{Success: true, Hash: hash, Message: message}, nil
}

func (c *PqClient) Checkout(ctx context.Context, ref string, createNew bool) (*CheckoutResult, error) {
	var err error
	if createNew {
		err = c.Execute(ctx, "SELECT DOLT_CHECKOUT('-b', $1)", ref)
	} else {
		err = c.Execute(ctx, "SELECT DOLT_CHECKOUT($1)", ref)
	}
	if err != nil {
		return &CheckoutResult{Success: false, Error: err.Error()}, err
	}
	c.logger.Info("checked out", "ref", ref, "new_branch", createNew)
	return &CheckoutResult{Success: true}, nil
}

func (c *PqClient) ResetHard(ctx context.Context, ref string) error {
	return c.Execute(ctx, "SELECT DOLT_RESET('--hard', $1)", ref)
}

func (c *PqClient) ResetSoft(ctx context.Context, ref string) error {
	return c.Execute(ctx, "SELECT DOLT_RESET('--soft', $1)", ref)
}

func (c *PqClient) Merge(ctx context.Context, ref string) (*MergeResult, error) {
	rows, err := c.Query(ctx, "SELECT DOLT_MERGE($1) AS fast_forward, @@dolt_merge_has_conflicts AS conflicts", ref)
	if err != nil {
		return &MergeResult{Success: false, Message: err.Error()}, err
	}
	hasConflicts := len(rows) > 0 && rows[0].GetInt("conflicts") != 0
	return &MergeResult{Success: true, HasConflicts: hasConflicts, Message: ref}, nil
}

func (c *PqClient) Pull(ctx context.Context, remote string) error {
	return c.Execute(ctx, "SELECT DOLT_PULL($1)", remote)
}

func (c *PqClient) Push(ctx context.Context, remote, branch string) (*PushResult, error) {
	if err := c.Execute(ctx, "SELECT DOLT_PUSH($1, $2)", remote, branch); err != nil {
		return &PushResult{Success: false, Message: err.Error()}, err
	}
	return &PushResult{Success: true}, nil
}

func (c *PqClient) Fetch(ctx context.Context) error {
	return c.Execute(ctx, "SELECT DOLT_FETCH()")
}

func (c *PqClient) Clone(ctx context.Context, url string) error {
	return fmt.Errorf("clone must be performed before establishing a connection: %s", url)
}

func (c *PqClient) IsInitialized(ctx context.Context) (bool, error) {
	_, err := c.Query(ctx, "SELECT commit_hash FROM dolt_log LIMIT 1")
	if err != nil {
		return false, nil // treat as uninitialized rather than propagating a driver error
	}
	return true, nil
}

func (c *PqClient) GetConflicts(ctx context.Context, table string) ([]types.Conflict, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	rows, err := c.Query(ctx, fmt.Sprintf("SELECT doc_id, our_content AS ours, their_content AS theirs FROM dolt_conflicts_%s", table))
	if err != nil {
		return nil, err
	}
	out := make([]types.Conflict, len(rows))
	for i, r := range rows {
		out[i] = types.Conflict{DocID: r.GetString("doc_id"), Ours: r.GetString("ours"), Theirs: r.GetString("theirs")}
	}
	return out, nil
}

// diffActionFromDolt maps Dolt's DOLT_DIFF diff_type values to the
// action enum used by the versioning engine's commit_diff result.
func diffActionFromDolt(doltType string) types.DiffRowAction {
	switch doltType {
	case "added":
		return types.DiffAdded
	case "removed":
		return types.DiffRemoved
	default:
		return types.DiffModified
	}
}

func (c *PqClient) Diff(ctx context.Context, fromCommit, toCommit, table string) ([]types.DiffRow, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	rows, err := c.Query(ctx, fmt.Sprintf(
		`SELECT to_doc_id, from_doc_id, to_collection_name, from_collection_name,
		        to_content, from_content, to_content_hash, from_content_hash, diff_type
		 FROM DOLT_DIFF($1, $2, '%s')`, table),
		fromCommit, toCommit)
	if err != nil {
		return nil, err
	}

	out := make([]types.DiffRow, 0, len(rows))
	for _, r := range rows {
		action := diffActionFromDolt(r.GetString("diff_type"))

		docID := r.GetString("to_doc_id")
		collection := r.GetString("to_collection_name")
		content := r.GetString("to_content")
		hash := r.GetString("to_content_hash")
		if action == types.DiffRemoved {
			docID = r.GetString("from_doc_id")
			collection = r.GetString("from_collection_name")
			content = r.GetString("from_content")
			hash = r.GetString("from_content_hash")
		}

		out = append(out, types.DiffRow{
			Action: action,
			Document: types.Document{
				DocID:          docID,
				CollectionName: collection,
				Content:        content,
				ContentHash:    hash,
			},
		})
	}
	return out, nil
}
