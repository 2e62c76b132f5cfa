package circlefs

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

const rootInode = 1

// FS serves a Service over FUSE.
type FS struct {
	svc     *Service
	attrTTL time.Duration
	verbose bool

	// bazil keys node IDs by Node value. A path must keep mapping to the
	// same pointer or connect(2) will not find the socket bound to it.
	// Nodes are dropped when the kernel forgets them or the registry evicts
	// their entry.
	mu      sync.Mutex
	nodes   map[string]fs.Node
	sockets map[entryKey]string
}

// entryKey names a registry entry independently of the account name.
type entryKey struct {
	uid  uint32
	name string
}

// NewFS wraps svc for bazil. attrTTL bounds how long the kernel may cache
// attributes; keep it short so evictions become visible quickly.
func NewFS(svc *Service, attrTTL time.Duration, verbose bool) *FS {
	f := &FS{
		svc:     svc,
		attrTTL: attrTTL,
		verbose: verbose,
		nodes:   make(map[string]fs.Node),
		sockets: make(map[entryKey]string),
	}
	svc.Registry().OnEvict(f.evict)
	return f
}

// Root returns the root directory node
func (f *FS) Root() (fs.Node, error) {
	return &Dir{fs: f, path: "/", inode: rootInode}, nil
}

func (f *FS) fill(a *fuse.Attr, inode uint64, attr Attr) {
	a.Valid = f.attrTTL
	a.Inode = inode
	a.Mode = attr.Mode
	a.Uid = attr.UID
	a.Gid = attr.GID
	a.Atime = attr.Atime
	a.Mtime = attr.Mtime
	a.Ctime = attr.Ctime
	a.Nlink = 1
	if attr.Mode.IsDir() {
		a.Nlink = 2
	}
}

// fail converts err for the kernel, logging the return code when verbose.
func (f *FS) fail(op, p string, err error) error {
	if f.verbose {
		log.Printf("%s %s = %d (%v)", op, p, ReturnCode(err), err)
	}
	return Errno(err)
}

// dir returns the cached directory node for p, creating it on first use.
func (f *FS) dir(p string, inode uint64) fs.Node {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n, ok := f.nodes[p]; ok {
		return n
	}
	n := &Dir{fs: f, path: p, inode: inode}
	f.nodes[p] = n
	return n
}

// socket returns the cached node for the entry registered at p.
func (f *FS) socket(p string, inode uint64, key entryKey) fs.Node {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n, ok := f.nodes[p]; ok {
		if s, ok := n.(*Socket); ok && s.key == key {
			return n
		}
		f.dropLocked(p)
	}
	n := &Socket{fs: f, path: p, inode: inode, key: key}
	f.nodes[p] = n
	f.sockets[key] = p
	return n
}

// forget drops the cached node for p. When n is not nil, only n is dropped,
// so a newer node for the same path survives.
func (f *FS) forget(p string, n fs.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cur, ok := f.nodes[p]; ok && (n == nil || cur == n) {
		f.dropLocked(p)
	}
}

// evict is called by the registry for every collected entry.
func (f *FS) evict(uid uint32, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.sockets[entryKey{uid: uid, name: name}]; ok {
		f.dropLocked(p)
	}
}

func (f *FS) dropLocked(p string) {
	if s, ok := f.nodes[p].(*Socket); ok && f.sockets[s.key] == p {
		delete(f.sockets, s.key)
	}
	delete(f.nodes, p)
}

func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Dir is the root or a user directory. It is its own handle.
type Dir struct {
	fs    *FS
	path  string
	inode uint64
}

// Attr returns directory attributes
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := d.fs.svc.GetAttr(d.path)
	if err != nil {
		return d.fs.fail("getattr", d.path, err)
	}
	d.fs.fill(a, d.inode, attr)
	return nil
}

// Lookup resolves a user name in the root or a socket name in a user
// directory.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	p := childPath(d.path, name)
	attr, err := d.fs.svc.GetAttr(p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			d.fs.forget(p, nil)
		}
		return nil, d.fs.fail("lookup", p, err)
	}
	inode := fs.GenerateDynamicInode(d.inode, name)
	if attr.Mode.IsDir() {
		return d.fs.dir(p, inode), nil
	}
	// a socket reports the uid of the bucket it lives in
	return d.fs.socket(p, inode, entryKey{uid: attr.UID, name: name}), nil
}

// ReadDirAll lists directory contents
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fs.svc.ReadDir(d.path)
	if err != nil {
		return nil, d.fs.fail("readdir", d.path, err)
	}

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		typ := fuse.DT_Socket
		if e.Kind == PathUser {
			typ = fuse.DT_Dir
		}
		dirents = append(dirents, fuse.Dirent{
			Inode: fs.GenerateDynamicInode(d.inode, e.Name),
			Name:  e.Name,
			Type:  typ,
		})
	}
	return dirents, nil
}

// Mknod registers a socket. This is what bind(2) on a path inside the
// mount ends up calling.
func (d *Dir) Mknod(ctx context.Context, req *fuse.MknodRequest) (fs.Node, error) {
	p := childPath(d.path, req.Name)
	caller := Caller{PID: req.Pid, UID: req.Uid, GID: req.Gid}
	uid, err := d.fs.svc.register(p, req.Mode, caller)
	if err != nil {
		return nil, d.fs.fail("mknod", p, err)
	}
	return d.fs.socket(p, fs.GenerateDynamicInode(d.inode, req.Name), entryKey{uid: uid, name: req.Name}), nil
}

// Forget drops the node from the cache once the kernel no longer uses it.
func (d *Dir) Forget() {
	d.fs.forget(d.path, d)
}

func (d *Dir) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if err := d.fs.svc.Open(d.path, int(req.Flags)); err != nil {
		return nil, d.fs.fail("open", d.path, err)
	}
	return d, nil
}

// Socket is a registered socket node. Reads and writes are accepted and
// transfer nothing.
type Socket struct {
	fs    *FS
	path  string
	inode uint64
	key   entryKey
}

func (s *Socket) Forget() {
	s.fs.forget(s.path, s)
}

func (s *Socket) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := s.fs.svc.GetAttr(s.path)
	if err != nil {
		return s.fs.fail("getattr", s.path, err)
	}
	s.fs.fill(a, s.inode, attr)
	return nil
}

func (s *Socket) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if err := s.fs.svc.Open(s.path, int(req.Flags)); err != nil {
		return nil, s.fs.fail("open", s.path, err)
	}
	resp.Flags |= fuse.OpenDirectIO
	return s, nil
}

func (s *Socket) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := s.fs.svc.Read(s.path, buf, req.Offset)
	if err != nil {
		return s.fs.fail("read", s.path, err)
	}
	resp.Data = buf[:n]
	return nil
}

func (s *Socket) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := s.fs.svc.Write(s.path, req.Data, req.Offset)
	if err != nil {
		return s.fs.fail("write", s.path, err)
	}
	resp.Size = n
	return nil
}
