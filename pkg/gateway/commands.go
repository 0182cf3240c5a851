package gateway

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/bmatcuk/doublestar"
	"github.com/marmos91/fsgate/pkg/backend"
	"github.com/marmos91/fsgate/pkg/metrics"
)

// Membership answers admin-group checks.
type Membership interface {
	IsMember(ctx context.Context, name, group string) bool
}

// SnapshotProvider returns instrumentation data.
type SnapshotProvider interface {
	Snapshot() (map[string]any, error)
}

// Env is what a command may use while executing.
type Env struct {
	Scope      *Scope
	Identity   Identity
	Copier     *Copier
	Metrics    metrics.GatewayMetrics
	Admins     Membership
	AdminGroup string
	Snapshots  SnapshotProvider
}

// Command is one parsed operation, ready to execute.
type Command interface {
	Op() OpCode
	Path() string
	Execute(ctx context.Context, env *Env) (Result, error)

	// AuditFields returns the operation-specific values recorded in the
	// audit log.
	AuditFields() map[string]string
}

// ============================================================================
// Read family
// ============================================================================

type openCommand struct {
	path   string
	offset int64
	length int64
}

func (c *openCommand) Op() OpCode   { return OpOpen }
func (c *openCommand) Path() string { return c.path }

func (c *openCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := fs.Open(ctx, c.path)
	if err != nil {
		return nil, err
	}

	rc = closeOnce(rc)
	env.Scope.Track(rc)

	return ByteStream{
		Reader:      rc,
		Offset:      c.offset,
		Length:      c.length,
		ContentType: contentTypeBinary,
	}, nil
}

func (c *openCommand) AuditFields() map[string]string {
	return map[string]string{
		"offset": strconv.FormatInt(c.offset, 10),
		"len":    strconv.FormatInt(c.length, 10),
	}
}

type getFileStatusCommand struct {
	path string
}

func (c *getFileStatusCommand) Op() OpCode   { return OpGetFileStatus }
func (c *getFileStatusCommand) Path() string { return c.path }

func (c *getFileStatusCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	st, err := fs.GetFileStatus(ctx, c.path)
	if err != nil {
		return nil, err
	}
	return Status{Status: *st}, nil
}

func (c *getFileStatusCommand) AuditFields() map[string]string { return nil }

type listStatusCommand struct {
	path   string
	filter string
}

func (c *listStatusCommand) Op() OpCode   { return OpListStatus }
func (c *listStatusCommand) Path() string { return c.path }

func (c *listStatusCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ListStatus(ctx, c.path)
	if err != nil {
		return nil, err
	}
	if c.filter == "" {
		return StatusList{Statuses: entries}, nil
	}

	matched := make([]backend.FileStatus, 0, len(entries))
	for _, e := range entries {
		ok, err := doublestar.Match(c.filter, entryName(e.Path))
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", c.filter, err)
		}
		if ok {
			matched = append(matched, e)
		}
	}
	return StatusList{Statuses: matched}, nil
}

func (c *listStatusCommand) AuditFields() map[string]string {
	if c.filter == "" {
		return nil
	}
	return map[string]string{"filter": c.filter}
}

type homeDirCommand struct {
	path string
}

func (c *homeDirCommand) Op() OpCode   { return OpHomeDir }
func (c *homeDirCommand) Path() string { return c.path }

func (c *homeDirCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	home, err := fs.HomeDirectory(ctx)
	if err != nil {
		return nil, err
	}
	return HomeDir{Path: home}, nil
}

func (c *homeDirCommand) AuditFields() map[string]string { return nil }

// instrumentationCommand never touches the backend. The path is checked at
// parse time; membership is checked here, before the provider is called.
type instrumentationCommand struct {
	path string
}

func (c *instrumentationCommand) Op() OpCode   { return OpInstrumentation }
func (c *instrumentationCommand) Path() string { return c.path }

func (c *instrumentationCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	if env.Admins == nil || !env.Admins.IsMember(ctx, env.Identity.Effective, env.AdminGroup) {
		return nil, forbidden("user %s is not in admin group %s", env.Identity.Effective, env.AdminGroup)
	}
	if env.Snapshots == nil {
		return Snapshot{Data: map[string]any{}}, nil
	}
	data, err := env.Snapshots.Snapshot()
	if err != nil {
		return nil, err
	}
	return Snapshot{Data: data}, nil
}

func (c *instrumentationCommand) AuditFields() map[string]string { return nil }

// ============================================================================
// Delete
// ============================================================================

type deleteCommand struct {
	path      string
	recursive bool
}

func (c *deleteCommand) Op() OpCode   { return OpDelete }
func (c *deleteCommand) Path() string { return c.path }

func (c *deleteCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := fs.Delete(ctx, c.path, c.recursive)
	if err != nil {
		return nil, err
	}
	return Flag{Label: "boolean", Value: ok}, nil
}

func (c *deleteCommand) AuditFields() map[string]string {
	return map[string]string{"recursive": strconv.FormatBool(c.recursive)}
}

// ============================================================================
// Mutate family
// ============================================================================

type appendCommand struct {
	path string
	body io.Reader
}

func (c *appendCommand) Op() OpCode   { return OpAppend }
func (c *appendCommand) Path() string { return c.path }

func (c *appendCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	w, err := fs.Append(ctx, c.path)
	if err != nil {
		return nil, err
	}
	if err := writeBody(env, w, c.body); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

func (c *appendCommand) AuditFields() map[string]string { return nil }

type renameCommand struct {
	path        string
	destination string
}

func (c *renameCommand) Op() OpCode   { return OpRename }
func (c *renameCommand) Path() string { return c.path }

func (c *renameCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := fs.Rename(ctx, c.path, c.destination)
	if err != nil {
		return nil, err
	}
	return Flag{Label: "rename", Value: ok}, nil
}

func (c *renameCommand) AuditFields() map[string]string {
	return map[string]string{"destination": c.destination}
}

type setOwnerCommand struct {
	path  string
	owner string
	group string
}

func (c *setOwnerCommand) Op() OpCode   { return OpSetOwner }
func (c *setOwnerCommand) Path() string { return c.path }

func (c *setOwnerCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	if err := fs.SetOwner(ctx, c.path, c.owner, c.group); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

func (c *setOwnerCommand) AuditFields() map[string]string {
	return map[string]string{"owner": c.owner, "group": c.group}
}

type setPermissionCommand struct {
	path       string
	permission *backend.Permission
}

func (c *setPermissionCommand) Op() OpCode   { return OpSetPermission }
func (c *setPermissionCommand) Path() string { return c.path }

func (c *setPermissionCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	if err := fs.SetPermission(ctx, c.path, c.permission); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

func (c *setPermissionCommand) AuditFields() map[string]string {
	return map[string]string{"permission": backend.FormatPermission(c.permission)}
}

type setReplicationCommand struct {
	path        string
	replication int16
}

func (c *setReplicationCommand) Op() OpCode   { return OpSetReplication }
func (c *setReplicationCommand) Path() string { return c.path }

func (c *setReplicationCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	replication := c.replication
	if replication < 0 {
		replication = fs.Defaults().Replication
	}
	ok, err := fs.SetReplication(ctx, c.path, replication)
	if err != nil {
		return nil, err
	}
	return Flag{Label: "setReplication", Value: ok}, nil
}

func (c *setReplicationCommand) AuditFields() map[string]string {
	return map[string]string{"replication": strconv.Itoa(int(c.replication))}
}

type setTimesCommand struct {
	path         string
	modifiedTime int64
	accessTime   int64
}

func (c *setTimesCommand) Op() OpCode   { return OpSetTimes }
func (c *setTimesCommand) Path() string { return c.path }

func (c *setTimesCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	if err := fs.SetTimes(ctx, c.path, c.modifiedTime, c.accessTime); err != nil {
		return nil, err
	}
	return Empty{}, nil
}

func (c *setTimesCommand) AuditFields() map[string]string {
	return map[string]string{
		"modifiedTime": strconv.FormatInt(c.modifiedTime, 10),
		"accessTime":   strconv.FormatInt(c.accessTime, 10),
	}
}

// ============================================================================
// Create family
// ============================================================================

type createCommand struct {
	path        string
	body        io.Reader
	permission  *backend.Permission
	overwrite   bool
	replication int16
	blockSize   int64
}

func (c *createCommand) Op() OpCode   { return OpCreate }
func (c *createCommand) Path() string { return c.path }

func (c *createCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}

	defaults := fs.Defaults()
	opts := backend.CreateOptions{
		Permission:  c.permission,
		Overwrite:   c.overwrite,
		Replication: c.replication,
		BlockSize:   c.blockSize,
	}
	if opts.Replication < 0 {
		opts.Replication = defaults.Replication
	}
	if opts.BlockSize < 0 {
		opts.BlockSize = defaults.BlockSize
	}

	w, err := fs.Create(ctx, c.path, opts)
	if err != nil {
		return nil, err
	}
	if err := writeBody(env, w, c.body); err != nil {
		return nil, err
	}
	return CreatedResource{Path: c.path}, nil
}

func (c *createCommand) AuditFields() map[string]string {
	return map[string]string{
		"permission":  backend.FormatPermission(c.permission),
		"overwrite":   strconv.FormatBool(c.overwrite),
		"replication": strconv.Itoa(int(c.replication)),
		"blockSize":   strconv.FormatInt(c.blockSize, 10),
	}
}

type mkdirsCommand struct {
	path       string
	permission *backend.Permission
}

func (c *mkdirsCommand) Op() OpCode   { return OpMkdirs }
func (c *mkdirsCommand) Path() string { return c.path }

func (c *mkdirsCommand) Execute(ctx context.Context, env *Env) (Result, error) {
	fs, err := env.Scope.FileSystem(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := fs.Mkdirs(ctx, c.path, c.permission)
	if err != nil {
		return nil, err
	}
	return Flag{Label: "mkdirs", Value: ok}, nil
}

func (c *mkdirsCommand) AuditFields() map[string]string {
	return map[string]string{"permission": backend.FormatPermission(c.permission)}
}

// writeBody copies body into w and commits it with Close. w is closed on
// every path.
func writeBody(env *Env, w io.WriteCloser, body io.Reader) error {
	if body == nil {
		body = eofReader{}
	}

	n, err := env.Copier.CopyRange(w, io.NopCloser(body), 0, -1)
	env.Metrics.RecordBytesTransferred("write", n)
	if err != nil {
		if a, ok := w.(backend.Aborter); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return err
	}
	return w.Close()
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
