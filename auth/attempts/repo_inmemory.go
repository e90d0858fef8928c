package attempts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	latch     Latch
	expiresAt time.Time
}

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Latches are only shared within one process.
type InMemoryRepo struct {
	mu      sync.Mutex
	latches map[string]*entry
	ttl     time.Duration
	nowFunc func() time.Time
}

type InMemoryRepoOption func(*InMemoryRepo)

// WithNowFunc sets the clock used for expiry (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = nowFunc
	}
}

// NewInMemoryRepo creates a new in-memory latch repository. Latches are
// forgotten ttl after Begin.
func NewInMemoryRepo(ttl time.Duration, opts ...InMemoryRepoOption) *InMemoryRepo {
	r := &InMemoryRepo{
		latches: make(map[string]*entry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// current returns the live entry for key. Caller holds r.mu.
func (r *InMemoryRepo) current(key string, now time.Time) *entry {
	e, ok := r.latches[key]
	if !ok {
		return nil
	}
	if !now.Before(e.expiresAt) {
		delete(r.latches, key)
		return nil
	}
	return e
}

func (r *InMemoryRepo) Begin(_ context.Context, key string) (Latch, bool, error) {
	if key == "" {
		return Latch{}, false, errors.New("key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if e := r.current(key, now); e != nil {
		return e.latch, false, nil
	}

	state, err := Transition(StateIdle, StateRunning)
	if err != nil {
		return Latch{}, false, err
	}
	latch := Latch{State: state, Owner: uuid.NewString(), UpdatedAt: now}
	r.latches[key] = &entry{latch: latch, expiresAt: now.Add(r.ttl)}
	return latch, true, nil
}

func (r *InMemoryRepo) Complete(_ context.Context, key, owner string, result Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.current(key, r.nowFunc())
	if e == nil {
		return ErrUnknownAttempt
	}
	if e.latch.Owner != owner {
		return ErrNotOwner
	}
	state, err := Transition(e.latch.State, StateDone)
	if err != nil {
		return err
	}
	e.latch = Latch{
		State:       state,
		Owner:       owner,
		SubjectID:   result.SubjectID,
		RedirectURI: result.RedirectURI,
		UpdatedAt:   r.nowFunc(),
	}
	return nil
}

func (r *InMemoryRepo) Reset(_ context.Context, key, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.current(key, r.nowFunc())
	if e == nil {
		return nil
	}
	if e.latch.Owner != owner {
		return ErrNotOwner
	}
	if _, err := Transition(e.latch.State, StateIdle); err != nil {
		return err
	}
	delete(r.latches, key)
	return nil
}

// Cleanup drops expired latches and returns how many were removed.
func (r *InMemoryRepo) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	removed := 0
	for key, e := range r.latches {
		if !now.Before(e.expiresAt) {
			delete(r.latches, key)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (r *InMemoryRepo) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cleanup()
		}
	}
}

var _ Repo = (*InMemoryRepo)(nil)
