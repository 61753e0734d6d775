// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package filelock

import "sync"

// MemoryRegistry is the in-memory, thread-safe Registry implementation used
// by the scheduler. One MemoryRegistry is shared by every task in a run.
type MemoryRegistry struct {
	mu    sync.RWMutex
	locks map[string]string // lock name -> holder task ID
}

// NewMemoryRegistry creates an empty lock registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{locks: make(map[string]string)}
}

// Acquire grants req.Name to req.Holder unless another holder already has
// it, in which case it returns a ConflictError naming the current holder.
func (r *MemoryRegistry) Acquire(req LockRequest) (LockResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, held := r.locks[req.Name]; held && holder != req.Holder {
		return LockResult{
				Granted:  false,
				Conflict: &Lock{Name: req.Name, Holder: holder},
			}, &ConflictError{
				Name:            req.Name,
				Holder:          holder,
				RequestedHolder: req.Holder,
			}
	}

	r.locks[req.Name] = req.Holder
	return LockResult{Granted: true}, nil
}

// AcquireAll attempts to acquire every name atomically: if any is already
// held by a different holder, none are acquired and the first conflict is
// returned.
func (r *MemoryRegistry) AcquireAll(holder string, names []string) (LockResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		if h, held := r.locks[name]; held && h != holder {
			return LockResult{
					Granted:  false,
					Conflict: &Lock{Name: name, Holder: h},
				}, &ConflictError{
					Name:            name,
					Holder:          h,
					RequestedHolder: holder,
				}
		}
	}
	for _, name := range names {
		r.locks[name] = holder
	}
	return LockResult{Granted: true}, nil
}

// Release removes the lock on name if held by holder.
func (r *MemoryRegistry) Release(name, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, held := r.locks[name]
	if !held {
		return nil
	}
	if h != holder {
		return ErrLockNotHeld
	}
	delete(r.locks, name)
	return nil
}

// ReleaseAll releases every lock currently held by holder.
func (r *MemoryRegistry) ReleaseAll(holder string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, h := range r.locks {
		if h == holder {
			delete(r.locks, name)
		}
	}
}

// Holder returns the current holder of name, if any.
func (r *MemoryRegistry) Holder(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.locks[name]
	return h, ok
}

// HoldsAll reports whether holder currently holds every lock in names.
func (r *MemoryRegistry) HoldsAll(holder string, names []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		if r.locks[name] != holder {
			return false
		}
	}
	return true
}
