package circlefs

import (
	"fmt"
	"sync"
	"time"
)

var (
	alice = Account{Name: "alice", UID: 1000, GID: 1000}
	bob   = Account{Name: "bob", UID: 1001, GID: 100}
	carol = Account{Name: "carol", UID: 1002, GID: 100}
)

// fakeAccounts is an account database that tests can edit while mounted.
type fakeAccounts struct {
	mu      sync.Mutex
	users   map[string]Account
	aliases map[uint32]Account
}

func newFakeAccounts(accts ...Account) *fakeAccounts {
	f := &fakeAccounts{users: make(map[string]Account), aliases: make(map[uint32]Account)}
	for _, a := range accts {
		f.users[a.Name] = a
	}
	return f
}

func (f *fakeAccounts) ByName(name string) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.users[name]; ok {
		return a, nil
	}
	return Account{}, fmt.Errorf("%q: %w", name, ErrUnknownAccount)
}

func (f *fakeAccounts) ByUID(uid uint32) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.users {
		if a.UID == uid {
			return a, nil
		}
	}
	if a, ok := f.aliases[uid]; ok {
		return a, nil
	}
	return Account{}, fmt.Errorf("uid %d: %w", uid, ErrUnknownAccount)
}

// alias makes uid resolve to acct, like a second passwd line sharing a name.
func (f *fakeAccounts) alias(uid uint32, acct Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aliases[uid] = acct
}

func (f *fakeAccounts) remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, name)
}

// fakeProcs is a process table: every pid is alive until killed.
type fakeProcs struct {
	mu   sync.Mutex
	dead map[uint32]bool
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{dead: make(map[uint32]bool)}
}

func (p *fakeProcs) Alive(pid uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pid != 0 && !p.dead[pid]
}

func (p *fakeProcs) kill(pid uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead[pid] = true
}

// threadedProcs additionally knows which process each thread belongs to.
type threadedProcs struct {
	*fakeProcs
	tgid map[uint32]uint32
}

func (p *threadedProcs) ProcessOf(tid uint32) uint32 {
	if pid, ok := p.tgid[tid]; ok {
		return pid
	}
	return tid
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeClock returns epoch and advances by one second per call.
func fakeClock() func() time.Time {
	var mu sync.Mutex
	t := epoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := t
		t = t.Add(time.Second)
		return now
	}
}

type testEnv struct {
	svc      *Service
	accounts *fakeAccounts
	procs    *fakeProcs
	metrics  *Metrics
}

func newTestEnv() *testEnv {
	env := &testEnv{
		accounts: newFakeAccounts(alice, bob, carol),
		procs:    newFakeProcs(),
		metrics:  NewMetrics(),
	}
	env.svc = NewService(Options{
		Accounts: env.accounts,
		Liveness: env.procs,
		Metrics:  env.metrics,
		Now:      fakeClock(),
	})
	return env
}
