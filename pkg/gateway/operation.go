package gateway

import (
	"fmt"
	"net/http"
	"strings"
)

// OpCode names a gateway operation as it appears in the op query parameter.
type OpCode string

const (
	OpOpen            OpCode = "OPEN"
	OpGetFileStatus   OpCode = "GETFILESTATUS"
	OpListStatus      OpCode = "LISTSTATUS"
	OpHomeDir         OpCode = "HOMEDIR"
	OpInstrumentation OpCode = "INSTRUMENTATION"
	OpDelete          OpCode = "DELETE"
	OpAppend          OpCode = "APPEND"
	OpRename          OpCode = "RENAME"
	OpSetOwner        OpCode = "SETOWNER"
	OpSetPermission   OpCode = "SETPERMISSION"
	OpSetReplication  OpCode = "SETREPLICATION"
	OpSetTimes        OpCode = "SETTIMES"
	OpCreate          OpCode = "CREATE"
	OpMkdirs          OpCode = "MKDIRS"
)

// Family groups operations by the HTTP method that carries them.
type Family int

const (
	FamilyRead Family = iota
	FamilyMutate
	FamilyCreate
	FamilyDelete
)

func (f Family) String() string {
	switch f {
	case FamilyRead:
		return "read"
	case FamilyMutate:
		return "mutate"
	case FamilyCreate:
		return "create"
	case FamilyDelete:
		return "delete"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

var families = map[OpCode]Family{
	OpOpen:            FamilyRead,
	OpGetFileStatus:   FamilyRead,
	OpListStatus:      FamilyRead,
	OpHomeDir:         FamilyRead,
	OpInstrumentation: FamilyRead,
	OpAppend:          FamilyMutate,
	OpRename:          FamilyMutate,
	OpSetOwner:        FamilyMutate,
	OpSetPermission:   FamilyMutate,
	OpSetReplication:  FamilyMutate,
	OpSetTimes:        FamilyMutate,
	OpCreate:          FamilyCreate,
	OpMkdirs:          FamilyCreate,
	OpDelete:          FamilyDelete,
}

// Deprecated spellings accepted by the parser. They resolve to the current
// op code and share its implementation.
var aliases = map[string]OpCode{
	"STATUS": OpGetFileStatus,
	"LIST":   OpListStatus,
}

// ParseOp resolves an op name case-insensitively.
func ParseOp(name string) (OpCode, error) {
	upper := OpCode(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := families[upper]; ok {
		return upper, nil
	}
	if op, ok := aliases[string(upper)]; ok {
		return op, nil
	}
	return "", badRequest("invalid operation %q", name)
}

// Family returns the family of op.
func (op OpCode) Family() Family {
	return families[op]
}

// methodFamily maps an HTTP method to the family it accepts.
func methodFamily(method string) (Family, error) {
	switch method {
	case http.MethodGet:
		return FamilyRead, nil
	case http.MethodPut:
		return FamilyMutate, nil
	case http.MethodPost:
		return FamilyCreate, nil
	case http.MethodDelete:
		return FamilyDelete, nil
	default:
		return 0, &Error{Kind: KindMethodNotAllowed, Message: fmt.Sprintf("method %s not allowed", method)}
	}
}
