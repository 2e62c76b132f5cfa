package circlefs

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Options configures a Service. Zero values select the host implementations.
// When Liveness also implements ThreadResolver, sockets are owned by the
// process of the registering thread rather than by the thread itself.
type Options struct {
	Accounts Accounts
	Liveness Liveness
	Metrics  *Metrics
	Now      func() time.Time
}

// Service implements the filesystem operations on mount paths. It holds all
// mutable state of one mount; the bazil nodes in fs.go are thin wrappers
// around it.
type Service struct {
	accounts Accounts
	registry *Registry
	threads  ThreadResolver
	metrics  *Metrics
	now      func() time.Time
	started  time.Time
}

// NewService creates a Service with an empty registry. The current time
// becomes the timestamp of all directories.
func NewService(opts Options) *Service {
	if opts.Accounts == nil {
		opts.Accounts = SystemAccounts{}
	}
	if opts.Liveness == nil {
		opts.Liveness = NewLiveness("/proc")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	threads, _ := opts.Liveness.(ThreadResolver)
	return &Service{
		accounts: opts.Accounts,
		threads:  threads,
		registry: NewRegistry(opts.Liveness, opts.Metrics),
		metrics:  opts.Metrics,
		now:      opts.Now,
		started:  opts.Now(),
	}
}

// Registry returns the socket registry backing the service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// DirEntry is one child returned by ReadDir.
type DirEntry struct {
	Name string
	Kind PathKind
	Attr Attr
}

// ReadDir lists the directory at p. The root lists every user that owns at
// least one live socket; a user directory lists that user's live sockets.
func (s *Service) ReadDir(p string) (entries []DirEntry, err error) {
	defer func() { s.metrics.observe("readdir", err) }()

	loc, err := resolve(s.accounts, p)
	if err != nil {
		return nil, err
	}

	switch loc.Kind {
	case PathRoot:
		return s.readRoot()
	case PathUser:
		if loc.Account == nil {
			return nil, fmt.Errorf("%q: %w", loc.User, ErrUnknownAccount)
		}
		sockets, ok := s.registry.Entries(loc.Account.UID)
		if !ok {
			return nil, fmt.Errorf("%s has no sockets: %w", loc.Path, ErrNotFound)
		}
		entries = make([]DirEntry, 0, len(sockets))
		for _, e := range sockets {
			entries = append(entries, DirEntry{Name: e.Name, Kind: PathSocket, Attr: e.Attr})
		}
		return entries, nil
	case PathSocket:
		panic(fmt.Sprintf("circlefs: readdir called on socket path %s", loc.Path))
	}
	return nil, ErrInvalidPath
}

func (s *Service) readRoot() ([]DirEntry, error) {
	uids := s.registry.Users()
	entries := make([]DirEntry, 0, len(uids))
	seen := make(map[string]bool, len(uids))
	for _, uid := range uids {
		acct, err := s.accounts.ByUID(uid)
		if err != nil {
			log.Printf("hiding sockets of uid %d: %v", uid, err)
			continue
		}
		if seen[acct.Name] {
			continue
		}
		seen[acct.Name] = true
		entries = append(entries, DirEntry{Name: acct.Name, Kind: PathUser, Attr: userAttr(acct, s.started)})
	}
	return entries, nil
}

// GetAttr returns the metadata of the node at p. Directories are
// synthesized; sockets report the metadata stored when they were created.
func (s *Service) GetAttr(p string) (attr Attr, err error) {
	defer func() { s.metrics.observe("getattr", err) }()
	return s.attr(p)
}

func (s *Service) attr(p string) (Attr, error) {
	loc, err := resolve(s.accounts, p)
	if err != nil {
		return Attr{}, err
	}

	switch loc.Kind {
	case PathRoot:
		return rootAttr(s.started), nil
	case PathUser, PathSocket:
		if loc.Account == nil {
			return Attr{}, fmt.Errorf("%q: %w", loc.User, ErrUnknownAccount)
		}
	default:
		return Attr{}, ErrInvalidPath
	}

	if loc.Kind == PathUser {
		return userAttr(*loc.Account, s.started), nil
	}
	e, ok := s.registry.Lookup(loc.Account.UID, loc.Name)
	if !ok {
		return Attr{}, fmt.Errorf("%s: %w", loc.Path, ErrNotFound)
	}
	return e.Attr, nil
}

// Mknod registers a socket at p on behalf of caller. An existing entry with
// the same name is replaced.
func (s *Service) Mknod(p string, mode os.FileMode, caller Caller) error {
	_, err := s.register(p, mode, caller)
	return err
}

// register is Mknod returning the uid of the bucket that now holds the entry.
func (s *Service) register(p string, mode os.FileMode, caller Caller) (uid uint32, err error) {
	defer func() { s.metrics.observe("mknod", err) }()

	loc, err := resolve(s.accounts, p)
	if err != nil {
		return 0, err
	}
	if err := checkMknod(loc, mode, caller); err != nil {
		log.Printf("mknod %s by pid %d uid %d denied: %v", p, caller.PID, caller.UID, err)
		return 0, err
	}

	// FUSE reports the calling thread; the entry must outlive that thread
	// as long as its process runs.
	pid := caller.PID
	if s.threads != nil {
		pid = s.threads.ProcessOf(caller.PID)
	}

	acct := *loc.Account
	e := Entry{
		Name: loc.Name,
		PID:  pid,
		Attr: socketAttr(mode, acct, s.now()),
	}
	if s.registry.Register(acct.UID, e) {
		log.Printf("socket %s re-registered by pid %d (mode %#o)", loc.Path, pid, UnixMode(mode))
	} else {
		log.Printf("socket %s registered by pid %d (mode %#o)", loc.Path, pid, UnixMode(mode))
	}
	return acct.UID, nil
}

// Open only permits read-only access. Write access is refused before the
// path is even looked at.
func (s *Service) Open(p string, flags int) (err error) {
	defer func() { s.metrics.observe("open", err) }()

	if flags&unix.O_ACCMODE != unix.O_RDONLY {
		return fmt.Errorf("%s: %w", p, ErrWriteAccess)
	}
	_, err = s.attr(p)
	return err
}

// Read transfers nothing. Data flows through the socket itself once a peer
// has connected, never through the filesystem.
func (s *Service) Read(p string, buf []byte, off int64) (int, error) {
	return 0, nil
}

// Write discards data and reports nothing written, see Read.
func (s *Service) Write(p string, data []byte, off int64) (int, error) {
	return 0, nil
}
