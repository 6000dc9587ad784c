package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"repochat-be/pkg/apperror"
	"repochat-be/pkg/store"
	"repochat-be/pkg/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo() *SessionRepository {
	return NewSessionRepository(time.Hour, 10*time.Minute)
}

func TestCreate_FreshIDs(t *testing.T) {
	r := newRepo()
	idx := vectorstore.NewMemoryIndex()

	a, err := r.Create(idx, "acme/widgets")
	require.NoError(t, err)
	b, err := r.Create(idx, "acme/widgets")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Count())

	transcript, err := r.Transcript(a.ID)
	require.NoError(t, err)
	assert.Empty(t, transcript)
}

func TestUnknownSession_NoSideEffects(t *testing.T) {
	r := newRepo()

	for i := 0; i < 2; i++ {
		_, err := r.Get("nonexistent-id")
		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)

		_, err = r.GetIndex("nonexistent-id")
		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)

		err = r.AppendTurn("nonexistent-id", store.RoleUser, "hi")
		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)

		_, err = r.Transcript("nonexistent-id")
		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)

		called := false
		err = r.WithTurn(context.Background(), "nonexistent-id", func(tx *TurnTx) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)
		assert.False(t, called)
	}
	assert.Equal(t, 0, r.Count())
}

func TestWithTurn_CommitsInOrder(t *testing.T) {
	r := newRepo()
	s, err := r.Create(vectorstore.NewMemoryIndex(), "upload.md")
	require.NoError(t, err)

	const n = 5
	for i := 0; i < n; i++ {
		err := r.WithTurn(context.Background(), s.ID, func(tx *TurnTx) error {
			q := store.UserTurn(fmt.Sprintf("q%d", i))
			assert.Len(t, append(tx.Transcript(), q), 2*i+1)
			tx.Append(q, store.AssistantTurn(fmt.Sprintf("a%d", i)))
			return nil
		})
		require.NoError(t, err)
	}

	transcript, err := r.Transcript(s.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2*n)
	for i := 0; i < n; i++ {
		assert.Equal(t, store.UserTurn(fmt.Sprintf("q%d", i)), transcript[2*i])
		assert.Equal(t, store.AssistantTurn(fmt.Sprintf("a%d", i)), transcript[2*i+1])
	}
}

func TestWithTurn_FailureAppendsNothing(t *testing.T) {
	r := newRepo()
	s, err := r.Create(vectorstore.NewMemoryIndex(), "x")
	require.NoError(t, err)

	boom := errors.New("model down")
	err = r.WithTurn(context.Background(), s.ID, func(tx *TurnTx) error {
		tx.Append(store.UserTurn("q"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	transcript, err := r.Transcript(s.ID)
	require.NoError(t, err)
	assert.Empty(t, transcript)
}

func TestWithTurn_SerializesSameSession(t *testing.T) {
	r := newRepo()
	s, err := r.Create(vectorstore.NewMemoryIndex(), "x")
	require.NoError(t, err)

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.WithTurn(context.Background(), s.ID, func(tx *TurnTx) error {
				cur := inFlight.Add(1)
				if cur > maxInFlight.Load() {
					maxInFlight.Store(cur)
				}
				time.Sleep(2 * time.Millisecond)
				tx.Append(store.UserTurn("q"), store.AssistantTurn("a"))
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	transcript, err := r.Transcript(s.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 16)
	for i := 0; i < 16; i += 2 {
		assert.Equal(t, store.RoleUser, transcript[i].Role)
		assert.Equal(t, store.RoleAssistant, transcript[i+1].Role)
	}
}

func TestWithTurn_WaitHonoursContext(t *testing.T) {
	r := newRepo()
	s, err := r.Create(vectorstore.NewMemoryIndex(), "x")
	require.NoError(t, err)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.WithTurn(context.Background(), s.ID, func(tx *TurnTx) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = r.WithTurn(ctx, s.ID, func(tx *TurnTx) error {
		t.Error("must not run while another turn holds the lock")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestWithTurn_CanceledContextCommitsNothing(t *testing.T) {
	canceled := func() context.Context {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	tests := []struct {
		name    string
		ctx     func() context.Context
		cancel  bool // cancel from inside fn
		wantRun bool
	}{
		{name: "canceled before the lock", ctx: canceled, wantRun: false},
		{name: "canceled during the turn", ctx: context.Background, cancel: true, wantRun: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRepo()
			s, err := r.Create(vectorstore.NewMemoryIndex(), "x")
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(tt.ctx())
			defer cancel()

			ran := false
			err = r.WithTurn(ctx, s.ID, func(tx *TurnTx) error {
				ran = true
				tx.Append(store.UserTurn("q"), store.AssistantTurn("a"))
				if tt.cancel {
					cancel()
				}
				return nil
			})
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, tt.wantRun, ran)

			transcript, err := r.Transcript(s.ID)
			require.NoError(t, err)
			assert.Empty(t, transcript)

			// The lock is free again
			require.NoError(t, r.WithTurn(context.Background(), s.ID, func(tx *TurnTx) error { return nil }))
		})
	}
}

func TestDelete(t *testing.T) {
	r := newRepo()
	s, err := r.Create(vectorstore.NewMemoryIndex(), "x")
	require.NoError(t, err)

	expired := false
	r.OnExpired(func(*Session) { expired = true })

	deleted, err := r.Delete(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, deleted.ID)

	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, apperror.ErrSessionNotFound)

	_, err = r.Delete(s.ID)
	assert.ErrorIs(t, err, apperror.ErrSessionNotFound)
	assert.False(t, expired, "explicit delete is not an expiry")
}

func TestExpiry_RunsHook(t *testing.T) {
	r := NewSessionRepository(20*time.Millisecond, 5*time.Millisecond)

	got := make(chan string, 1)
	r.OnExpired(func(s *Session) { got <- s.ID })

	s, err := r.Create(vectorstore.NewMemoryIndex(), "x")
	require.NoError(t, err)

	select {
	case id := <-got:
		assert.Equal(t, s.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry hook not called")
	}

	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, apperror.ErrSessionNotFound)
	assert.Equal(t, 0, r.Count())
}
