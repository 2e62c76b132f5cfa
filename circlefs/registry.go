package circlefs

import (
	"os"
	"sync"
	"time"

	"github.com/google/btree"
)

// Attr is the stat-like metadata reported for a node.
type Attr struct {
	Mode  os.FileMode
	UID   uint32
	GID   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// Entry is one registered socket file.
type Entry struct {
	Name string
	PID  uint32 // process that created the node
	Attr Attr
}

// bucket holds the entries of one account, ordered by name.
type bucket struct {
	uid     uint32
	entries *btree.BTreeG[*Entry]
}

const btreeDegree = 8

func newBucket(uid uint32) *bucket {
	return &bucket{
		uid: uid,
		entries: btree.NewG(btreeDegree, func(a, b *Entry) bool {
			return a.Name < b.Name
		}),
	}
}

// Registry is the in-memory set of registered sockets, keyed by account uid.
// All exported methods are atomic with respect to each other.
type Registry struct {
	mu       sync.Mutex
	buckets  *btree.BTreeG[*bucket]
	liveness Liveness
	metrics  *Metrics
	onEvict  func(uid uint32, name string)
}

// NewRegistry creates an empty registry that uses liveness to decide which
// entries to keep. metrics may be nil.
func NewRegistry(liveness Liveness, metrics *Metrics) *Registry {
	return &Registry{
		buckets: btree.NewG(btreeDegree, func(a, b *bucket) bool {
			return a.uid < b.uid
		}),
		liveness: liveness,
		metrics:  metrics,
	}
}

// OnEvict sets fn to be called for every entry the collector removes. fn
// runs with the registry lock held and must not call back into r.
func (r *Registry) OnEvict(fn func(uid uint32, name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = fn
}

// Register stores e in the bucket of uid, replacing any entry with the same
// name. It reports whether an entry was replaced.
func (r *Registry) Register(uid uint32, e Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := r.insertOrReplace(r.bucketFor(uid), &e)
	r.metrics.setSockets(r.countLocked())
	return replaced
}

// Lookup collects the bucket of uid and returns the entry called name.
func (r *Registry) Lookup(uid uint32, name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.findBucket(uid)
	if b == nil {
		return Entry{}, false
	}
	r.collect(b)
	defer r.removeBucketIfEmpty(uid)

	e := r.lookup(b, name)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// Entries collects the bucket of uid and returns the surviving entries in
// name order. ok is false when the account has no bucket at all.
func (r *Registry) Entries(uid uint32) (entries []Entry, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.findBucket(uid)
	if b == nil {
		return nil, false
	}
	r.collect(b)
	defer r.removeBucketIfEmpty(uid)

	entries = make([]Entry, 0, b.entries.Len())
	b.entries.Ascend(func(e *Entry) bool {
		entries = append(entries, *e)
		return true
	})
	return entries, true
}

// Users collects every bucket, drops the ones left empty and returns the
// uids that still own at least one live entry, in ascending order.
func (r *Registry) Users() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		uids  []uint32
		empty []uint32
	)
	r.buckets.Ascend(func(b *bucket) bool {
		r.collect(b)
		if b.entries.Len() == 0 {
			empty = append(empty, b.uid)
		} else {
			uids = append(uids, b.uid)
		}
		return true
	})
	// the tree cannot be modified while Ascend is iterating
	for _, uid := range empty {
		r.removeBucketIfEmpty(uid)
	}
	return uids
}

// Len returns the number of entries currently held, without collecting.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked()
}

// The methods below require r.mu.

func (r *Registry) countLocked() int {
	n := 0
	r.buckets.Ascend(func(b *bucket) bool {
		n += b.entries.Len()
		return true
	})
	return n
}

func (r *Registry) findBucket(uid uint32) *bucket {
	b, ok := r.buckets.Get(&bucket{uid: uid})
	if !ok {
		return nil
	}
	return b
}

func (r *Registry) bucketFor(uid uint32) *bucket {
	if b := r.findBucket(uid); b != nil {
		return b
	}
	b := newBucket(uid)
	r.buckets.ReplaceOrInsert(b)
	return b
}

func (r *Registry) lookup(b *bucket, name string) *Entry {
	e, ok := b.entries.Get(&Entry{Name: name})
	if !ok {
		return nil
	}
	return e
}

func (r *Registry) insertOrReplace(b *bucket, e *Entry) bool {
	_, replaced := b.entries.Delete(e)
	b.entries.ReplaceOrInsert(e)
	return replaced
}

func (r *Registry) removeBucketIfEmpty(uid uint32) {
	b := r.findBucket(uid)
	if b == nil || b.entries.Len() > 0 {
		return
	}
	r.buckets.Delete(b)
}
