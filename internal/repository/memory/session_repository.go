package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"repochat-be/pkg/apperror"
	"repochat-be/pkg/store"
	"repochat-be/pkg/vectorstore"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Session couples a corpus index with its transcript. Both are created and dropped together.
type Session struct {
	ID        string
	Index     vectorstore.Index
	Source    string
	CreatedAt time.Time

	mu         sync.Mutex
	transcript []store.Turn
	lastActive time.Time

	// 1-slot semaphore held for a whole chat turn
	turnLock chan struct{}
	closed   atomic.Bool
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) snapshot() []store.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) append(turns ...store.Turn) {
	s.mu.Lock()
	if s.transcript == nil {
		s.transcript = make([]store.Turn, 0, len(turns))
	}
	s.transcript = append(s.transcript, turns...)
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// TurnTx stages the turns of one chat exchange. Nothing is visible until the turn commits.
type TurnTx struct {
	session *Session
	staged  []store.Turn
}

func (tx *TurnTx) Session() *Session {
	return tx.session
}

// Transcript returns the committed turns followed by the staged ones.
func (tx *TurnTx) Transcript() []store.Turn {
	return append(tx.session.snapshot(), tx.staged...)
}

func (tx *TurnTx) Append(turns ...store.Turn) {
	tx.staged = append(tx.staged, turns...)
}

// SessionRepository keeps live sessions in a go-cache with a sliding TTL.
type SessionRepository struct {
	cache     *cache.Cache
	mu        sync.RWMutex
	onExpired func(*Session)
}

func NewSessionRepository(ttl, cleanupInterval time.Duration) *SessionRepository {
	r := &SessionRepository{
		cache: cache.New(ttl, cleanupInterval),
	}
	r.cache.OnEvicted(r.evicted)
	return r
}

// OnExpired registers the hook run (on the janitor goroutine) when a session times out.
// Explicit deletes do not trigger it.
func (r *SessionRepository) OnExpired(hook func(*Session)) {
	r.mu.Lock()
	r.onExpired = hook
	r.mu.Unlock()
}

func (r *SessionRepository) evicted(_ string, v interface{}) {
	s, ok := v.(*Session)
	if !ok || !s.closed.CompareAndSwap(false, true) {
		return
	}

	r.mu.RLock()
	hook := r.onExpired
	r.mu.RUnlock()

	if hook != nil {
		hook(s)
	}
}

// Create registers a fresh session owning index. A live id is never overwritten.
func (r *SessionRepository) Create(index vectorstore.Index, source string) (*Session, error) {
	now := time.Now()
	for attempt := 0; attempt < 3; attempt++ {
		s := &Session{
			ID:         uuid.NewString(),
			Index:      index,
			Source:     source,
			CreatedAt:  now,
			lastActive: now,
			turnLock:   make(chan struct{}, 1),
		}
		if err := r.cache.Add(s.ID, s, cache.DefaultExpiration); err == nil {
			return s, nil
		}
	}
	return nil, apperror.Internal("allocate session id", fmt.Errorf("id collision after 3 attempts"))
}

// Get returns a live session and refreshes its TTL.
func (r *SessionRepository) Get(id string) (*Session, error) {
	x, found := r.cache.Get(id)
	if !found {
		return nil, apperror.SessionNotFound(id)
	}
	s := x.(*Session)
	if s.closed.Load() {
		return nil, apperror.SessionNotFound(id)
	}
	r.touch(s)
	return s, nil
}

func (r *SessionRepository) GetIndex(id string) (vectorstore.Index, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Index, nil
}

func (r *SessionRepository) AppendTurn(id, role, content string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.append(store.Turn{Role: role, Content: content})
	return nil
}

// Transcript returns a copy of the session's turns in order.
func (r *SessionRepository) Transcript(id string) ([]store.Turn, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// WithTurn runs fn while holding the session's turn lock, so turns of one session
// never interleave. Turns staged on the TurnTx are committed only when fn returns nil
// and ctx is still live.
func (r *SessionRepository) WithTurn(ctx context.Context, id string, fn func(tx *TurnTx) error) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}

	select {
	case s.turnLock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.turnLock }()

	// Deleted or expired while waiting for the lock
	if s.closed.Load() {
		return apperror.SessionNotFound(id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.touch(s)

	tx := &TurnTx{session: s}
	if err := fn(tx); err != nil {
		return err
	}

	// A turn whose caller gave up is not recorded
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(tx.staged) > 0 {
		s.append(tx.staged...)
	}
	r.touch(s)
	return nil
}

// Delete removes a session. The caller owns releasing its index.
func (r *SessionRepository) Delete(id string) (*Session, error) {
	x, found := r.cache.Get(id)
	if !found {
		return nil, apperror.SessionNotFound(id)
	}
	s := x.(*Session)
	if !s.closed.CompareAndSwap(false, true) {
		return nil, apperror.SessionNotFound(id)
	}
	r.cache.Delete(id)
	return s, nil
}

// Count includes sessions that expired but were not swept yet.
func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}

// touch slides the expiry. Replace fails when the entry is already gone, so a
// concurrent delete is never undone.
func (r *SessionRepository) touch(s *Session) {
	_ = r.cache.Replace(s.ID, s, cache.DefaultExpiration)
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}
