package scheduler

// ActionLock is a named single-slot semaphore. A scheduled tick and a manual
// trigger of the same action compete for the same lock; different actions never do.
type ActionLock struct {
	name string
	slot chan struct{}
}

func NewActionLock(name string) *ActionLock {
	return &ActionLock{name: name, slot: make(chan struct{}, 1)}
}

func (l *ActionLock) Name() string { return l.name }

// TryAcquire takes the lock without blocking.
func (l *ActionLock) TryAcquire() bool {
	select {
	case l.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *ActionLock) Release() {
	select {
	case <-l.slot:
	default:
	}
}

// Held reports whether an action currently owns the lock.
func (l *ActionLock) Held() bool {
	return len(l.slot) == 1
}

// Locks exposes both mutual-exclusion domains.
type Locks struct {
	Fetch *ActionLock
	Post  *ActionLock
}
