package backend

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultPermissionName is the wire value that selects the backend default ACL.
const DefaultPermissionName = "default"

var symbolicPermission = regexp.MustCompile(`^-[-r][-w][-x][-r][-w][-x][-r][-w][-x]$`)

// Permission holds the nine POSIX mode bits (owner, group, other).
type Permission uint16

const permissionMask Permission = 0o777

// NewPermission masks mode down to the permission bits.
func NewPermission(mode uint32) Permission {
	return Permission(mode) & permissionMask
}

// ParsePermission accepts "default" or a symbolic string such as "-rwxr-x---".
// The input is matched case-insensitively. "default" returns a nil permission.
func ParsePermission(s string) (*Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == DefaultPermissionName {
		return nil, nil
	}
	if !symbolicPermission.MatchString(s) {
		return nil, fmt.Errorf("permission %q: %w", s, ErrInvalidArgument)
	}

	var p Permission
	for i, c := range s[1:] {
		if c != '-' {
			p |= 1 << (8 - i)
		}
	}
	return &p, nil
}

// String renders the permission in symbolic form with a leading '-'.
func (p Permission) String() string {
	const symbols = "rwxrwxrwx"

	var b strings.Builder
	b.Grow(10)
	b.WriteByte('-')
	for i := 0; i < 9; i++ {
		if p&(1<<(8-i)) != 0 {
			b.WriteByte(symbols[i])
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// FormatPermission renders p, or "default" when p is nil.
func FormatPermission(p *Permission) string {
	if p == nil {
		return DefaultPermissionName
	}
	return p.String()
}

// Allows reports whether the given class bits (0o4 read, 0o2 write,
// 0o1 execute) are granted to owner, group member or other.
func (p Permission) Allows(bit Permission, isOwner, inGroup bool) bool {
	switch {
	case isOwner:
		return p&(bit<<6) != 0
	case inGroup:
		return p&(bit<<3) != 0
	default:
		return p&bit != 0
	}
}
