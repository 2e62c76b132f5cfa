package circlefs

import (
	"errors"
	"strings"
)

// PathKind classifies a path inside the mount.
type PathKind int

const (
	// PathInvalid is anything outside the two-level namespace: relative
	// paths, empty segments and paths deeper than /USER/NAME.
	PathInvalid PathKind = iota
	PathRoot
	PathUser
	PathSocket
)

func (k PathKind) String() string {
	switch k {
	case PathRoot:
		return "root"
	case PathUser:
		return "user"
	case PathSocket:
		return "socket"
	}
	return "invalid"
}

// Path is a classified mount path. User and Name are empty when the kind
// does not carry them.
type Path struct {
	Kind PathKind
	User string
	Name string
}

// ParsePath splits an absolute slash-separated path into at most two
// segments. It never consults the account database.
func ParsePath(p string) Path {
	if p == "/" {
		return Path{Kind: PathRoot}
	}
	if !strings.HasPrefix(p, "/") {
		return Path{Kind: PathInvalid}
	}

	parts := strings.SplitN(p[1:], "/", 3)
	for _, part := range parts {
		if part == "" {
			return Path{Kind: PathInvalid}
		}
	}

	switch len(parts) {
	case 1:
		return Path{Kind: PathUser, User: parts[0]}
	case 2:
		return Path{Kind: PathSocket, User: parts[0], Name: parts[1]}
	}
	return Path{Kind: PathInvalid}
}

// String rebuilds the canonical form of p.
func (p Path) String() string {
	switch p.Kind {
	case PathRoot:
		return "/"
	case PathUser:
		return "/" + p.User
	case PathSocket:
		return "/" + p.User + "/" + p.Name
	}
	return "<invalid>"
}

// Location is a Path together with the account its user segment resolved
// to. Account is nil for the root, for invalid paths and for user names the
// host does not know.
type Location struct {
	Path
	Account *Account
}

// resolve classifies p and looks up its user segment. A missing account is
// not an error here; callers decide what it means for their operation.
func resolve(accounts Accounts, p string) (Location, error) {
	loc := Location{Path: ParsePath(p)}
	if loc.Kind != PathUser && loc.Kind != PathSocket {
		return loc, nil
	}

	acct, err := accounts.ByName(loc.User)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return loc, nil
		}
		return loc, err
	}
	loc.Account = &acct
	return loc, nil
}
