package circlefs

import (
	"os"
	"time"
)

// dirMode is r-x for everyone. Directories are synthesized, never written.
const dirMode = os.ModeDir | 0o555

func rootAttr(started time.Time) Attr {
	return Attr{
		Mode:  dirMode,
		Atime: started,
		Mtime: started,
		Ctime: started,
	}
}

func userAttr(acct Account, started time.Time) Attr {
	a := rootAttr(started)
	a.UID = acct.UID
	a.GID = acct.GID
	return a
}

func socketAttr(mode os.FileMode, acct Account, now time.Time) Attr {
	return Attr{
		Mode:  mode,
		UID:   acct.UID,
		GID:   acct.GID,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
}
