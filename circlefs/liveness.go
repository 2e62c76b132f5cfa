package circlefs

import (
	"errors"
	"log"
	"math"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// Liveness reports whether a process still exists on the host.
type Liveness interface {
	Alive(pid uint32) bool
}

// LivenessFunc adapts a plain function to Liveness.
type LivenessFunc func(pid uint32) bool

func (f LivenessFunc) Alive(pid uint32) bool { return f(pid) }

// ThreadResolver maps a thread id to the id of the process it belongs to.
// Ids it cannot resolve are returned unchanged.
type ThreadResolver interface {
	ProcessOf(tid uint32) uint32
}

// ProcLiveness asks procfs whether /proc/PID exists.
type ProcLiveness struct {
	fs procfs.FS
}

// NewProcLiveness opens the proc filesystem mounted at mountPoint.
func NewProcLiveness(mountPoint string) (*ProcLiveness, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, err
	}
	return &ProcLiveness{fs: fs}, nil
}

func (p *ProcLiveness) Alive(pid uint32) bool {
	if pid == 0 {
		return false
	}
	_, err := p.fs.Proc(int(pid))
	return err == nil
}

// ProcessOf reads the thread group id from /proc/TID/status.
func (p *ProcLiveness) ProcessOf(tid uint32) uint32 {
	if tid == 0 || tid > math.MaxInt32 {
		return tid
	}
	proc, err := p.fs.Proc(int(tid))
	if err != nil {
		return tid
	}
	status, err := proc.NewStatus()
	if err != nil || status.TGID <= 0 {
		return tid
	}
	return uint32(status.TGID)
}

// SignalLiveness probes with kill(pid, 0). EPERM still means the process
// exists, it just belongs to someone else.
type SignalLiveness struct{}

func (SignalLiveness) Alive(pid uint32) bool {
	// kill(2) treats non-positive pids as process groups
	if pid == 0 || pid > math.MaxInt32 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// NewLiveness prefers procfs at procPath and falls back to signal probing
// when it is not mounted.
func NewLiveness(procPath string) Liveness {
	p, err := NewProcLiveness(procPath)
	if err != nil {
		log.Printf("procfs unavailable at %s (%v), using signal probes for liveness", procPath, err)
		return SignalLiveness{}
	}
	return p
}
