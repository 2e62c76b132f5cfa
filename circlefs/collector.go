package circlefs

import (
	"log"
)

// collect evicts every entry of b whose owning process has exited and
// returns how many were removed. Dropping b itself once it is empty is left
// to the caller. Requires r.mu.
func (r *Registry) collect(b *bucket) int {
	var dead []*Entry
	b.entries.Ascend(func(e *Entry) bool {
		if !r.liveness.Alive(e.PID) {
			dead = append(dead, e)
		}
		return true
	})

	for _, e := range dead {
		b.entries.Delete(e)
		log.Printf("evicted socket %q of uid %d: process %d is gone", e.Name, b.uid, e.PID)
		if r.onEvict != nil {
			r.onEvict(b.uid, e.Name)
		}
	}
	if len(dead) > 0 {
		r.metrics.evicted(len(dead))
		r.metrics.setSockets(r.countLocked())
	}
	return len(dead)
}
