package gateway

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/marmos91/fsgate/pkg/auth"
	"github.com/marmos91/fsgate/pkg/backend"
)

// Query parameter names. Lookups are case-insensitive.
const (
	paramOp           = "op"
	paramOffset       = "offset"
	paramLen          = "len"
	paramFilter       = "filter"
	paramDoAs         = "doas"
	paramDestination  = "destination"
	paramOwner        = "owner"
	paramGroup        = "group"
	paramPermission   = "permission"
	paramReplication  = "replication"
	paramBlockSize    = "blocksize"
	paramOverwrite    = "overwrite"
	paramModifiedTime = "modifiedtime"
	paramAccessTime   = "accesstime"
	paramRecursive    = "recursive"
)

// Request is a parsed inbound call.
type Request struct {
	Method  string
	Path    string
	DoAs    string
	Command Command
}

type params map[string]string

func newParams(q url.Values) params {
	p := make(params, len(q))
	for k, v := range q {
		if len(v) == 0 {
			continue
		}
		key := strings.ToLower(k)
		if _, dup := p[key]; !dup {
			p[key] = v[0]
		}
	}
	return p
}

func (p params) long(name string, def, min int64) (int64, error) {
	raw, ok := p[name]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("parameter %s: invalid integer %q", name, raw)
	}
	if v < min {
		return 0, badRequest("parameter %s: %d is below minimum %d", name, v, min)
	}
	return v, nil
}

func (p params) short(name string, def int16) (int16, error) {
	raw, ok := p[name]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 16)
	if err != nil {
		return 0, badRequest("parameter %s: invalid short %q", name, raw)
	}
	return int16(v), nil
}

func (p params) flag(name string, def bool) (bool, error) {
	raw, ok := p[name]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("parameter %s: invalid boolean %q", name, raw)
	}
	return v, nil
}

// user returns an optional user or group name.
func (p params) user(name string) (string, error) {
	v := p[name]
	if v == "" {
		return "", nil
	}
	if !auth.ValidUserName(v) {
		return "", badRequest("parameter %s: invalid name %q", name, v)
	}
	return v, nil
}

func (p params) permission() (*backend.Permission, error) {
	perm, err := backend.ParsePermission(p[paramPermission])
	if err != nil {
		return nil, badRequest("parameter %s: invalid permission %q", paramPermission, p[paramPermission])
	}
	return perm, nil
}

// absolutePath prefixes "/" when missing and cleans the result.
func absolutePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// parseRequest turns an HTTP request into a Request.
//
// Root GET requests without op default to OPEN with no range or filter.
// PUT and POST require op. DELETE ignores op.
func parseRequest(r *http.Request, target string, root bool) (*Request, error) {
	family, err := methodFamily(r.Method)
	if err != nil {
		return nil, err
	}

	p := newParams(r.URL.Query())
	req := &Request{Method: r.Method, Path: absolutePath(target)}

	if req.DoAs, err = p.user(paramDoAs); err != nil {
		return nil, err
	}

	op := OpDelete
	if family != FamilyDelete {
		name := p[paramOp]
		switch {
		case name != "":
			if op, err = ParseOp(name); err != nil {
				return nil, err
			}
		case family == FamilyRead:
			op = OpOpen
		default:
			return nil, badRequest("missing operation parameter")
		}
		if op.Family() != family {
			return nil, badRequest("operation %s is not valid for %s", op, r.Method)
		}
	}

	if req.Command, err = buildCommand(op, req.Path, p, r.Body, root); err != nil {
		return nil, err
	}
	return req, nil
}

func buildCommand(op OpCode, target string, p params, body io.Reader, root bool) (Command, error) {
	var err error

	switch op {
	case OpOpen:
		c := &openCommand{path: target, length: -1}
		if root {
			return c, nil
		}
		if c.offset, err = p.long(paramOffset, 0, 0); err != nil {
			return nil, err
		}
		if c.length, err = p.long(paramLen, -1, -1); err != nil {
			return nil, err
		}
		return c, nil

	case OpGetFileStatus:
		return &getFileStatusCommand{path: target}, nil

	case OpListStatus:
		return &listStatusCommand{path: target, filter: p[paramFilter]}, nil

	case OpHomeDir:
		return &homeDirCommand{path: target}, nil

	case OpInstrumentation:
		if target != "/" {
			return nil, badRequest("invalid path for %s=%s, must be '/'", paramOp, OpInstrumentation)
		}
		return &instrumentationCommand{path: target}, nil

	case OpDelete:
		c := &deleteCommand{path: target}
		if c.recursive, err = p.flag(paramRecursive, false); err != nil {
			return nil, err
		}
		return c, nil

	case OpAppend:
		return &appendCommand{path: target, body: body}, nil

	case OpRename:
		dst := p[paramDestination]
		if dst == "" {
			return nil, badRequest("missing %s parameter", paramDestination)
		}
		return &renameCommand{path: target, destination: absolutePath(dst)}, nil

	case OpSetOwner:
		c := &setOwnerCommand{path: target}
		if c.owner, err = p.user(paramOwner); err != nil {
			return nil, err
		}
		if c.group, err = p.user(paramGroup); err != nil {
			return nil, err
		}
		return c, nil

	case OpSetPermission:
		c := &setPermissionCommand{path: target}
		if c.permission, err = p.permission(); err != nil {
			return nil, err
		}
		return c, nil

	case OpSetReplication:
		c := &setReplicationCommand{path: target}
		if c.replication, err = p.short(paramReplication, -1); err != nil {
			return nil, err
		}
		return c, nil

	case OpSetTimes:
		c := &setTimesCommand{path: target}
		if c.modifiedTime, err = p.long(paramModifiedTime, -1, -1); err != nil {
			return nil, err
		}
		if c.accessTime, err = p.long(paramAccessTime, -1, -1); err != nil {
			return nil, err
		}
		return c, nil

	case OpCreate:
		c := &createCommand{path: target, body: body}
		if c.permission, err = p.permission(); err != nil {
			return nil, err
		}
		if c.overwrite, err = p.flag(paramOverwrite, true); err != nil {
			return nil, err
		}
		if c.replication, err = p.short(paramReplication, -1); err != nil {
			return nil, err
		}
		if c.blockSize, err = p.long(paramBlockSize, -1, -1); err != nil {
			return nil, err
		}
		return c, nil

	case OpMkdirs:
		c := &mkdirsCommand{path: target}
		if c.permission, err = p.permission(); err != nil {
			return nil, err
		}
		return c, nil
	}

	return nil, badRequest("unsupported operation %s", op)
}
