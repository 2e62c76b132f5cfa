package circlefs

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
)

// Account is a host user account as seen by the filesystem.
type Account struct {
	Name string
	UID  uint32
	GID  uint32
}

// Accounts looks up host user accounts. Both methods return an error
// wrapping ErrUnknownAccount when no account matches.
type Accounts interface {
	ByName(name string) (Account, error)
	ByUID(uid uint32) (Account, error)
}

// SystemAccounts queries the host account database (passwd or NSS) on every
// call. Nothing is cached, so accounts added or removed while mounted are
// picked up immediately.
type SystemAccounts struct{}

// ByName resolves a user name to its uid and primary gid.
func (SystemAccounts) ByName(name string) (Account, error) {
	u, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return Account{}, fmt.Errorf("%q: %w", name, ErrUnknownAccount)
		}
		return Account{}, err
	}
	return accountFromUser(u)
}

// ByUID resolves a uid back to its account, used to name root listing entries.
func (SystemAccounts) ByUID(uid uint32) (Account, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		var unknown user.UnknownUserIdError
		if errors.As(err, &unknown) {
			return Account{}, fmt.Errorf("uid %d: %w", uid, ErrUnknownAccount)
		}
		return Account{}, err
	}
	return accountFromUser(u)
}

func accountFromUser(u *user.User) (Account, error) {
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return Account{}, fmt.Errorf("account %q has non-numeric uid %q", u.Username, u.Uid)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return Account{}, fmt.Errorf("account %q has non-numeric gid %q", u.Username, u.Gid)
	}
	return Account{Name: u.Username, UID: uint32(uid), GID: uint32(gid)}, nil
}
