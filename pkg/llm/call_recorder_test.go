package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/models"
)

// fakeCallStore keeps calls in memory, keyed by ID.
type fakeCallStore struct {
	mu        sync.Mutex
	calls     map[uuid.UUID]models.LLMCall
	saves     int
	updates   int
	saveErr   error
	updateErr error
	block     chan struct{}
}

func newFakeCallStore() *fakeCallStore {
	return &fakeCallStore{calls: make(map[uuid.UUID]models.LLMCall)}
}

func (s *fakeCallStore) Save(ctx context.Context, call *models.LLMCall) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.calls[call.ID] = *call
	return nil
}

func (s *fakeCallStore) Update(ctx context.Context, call *models.LLMCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	s.calls[call.ID] = *call
	return nil
}

func (s *fakeCallStore) get(id uuid.UUID) (models.LLMCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	return c, ok
}

func TestAsyncCallRecorder_SavePendingSetsStatus(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newFakeCallStore()
	r := NewAsyncCallRecorder(store, zap.NewNop(), 4)
	defer r.Close()

	call := &models.LLMCall{ID: uuid.New(), Model: "m", Status: models.LLMCallStatusSuccess}
	require.NoError(t, r.SavePending(context.Background(), call))

	saved, ok := store.get(call.ID)
	require.True(t, ok)
	assert.Equal(t, models.LLMCallStatusPending, saved.Status)
}

func TestAsyncCallRecorder_SavePendingError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newFakeCallStore()
	store.saveErr = errors.New("db down")
	r := NewAsyncCallRecorder(store, zap.NewNop(), 4)
	defer r.Close()

	err := r.SavePending(context.Background(), &models.LLMCall{ID: uuid.New()})
	assert.EqualError(t, err, "db down")
}

func TestAsyncCallRecorder_CompletionUpdatesOrInserts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newFakeCallStore()
	r := NewAsyncCallRecorder(store, zap.NewNop(), 4)

	updated := &models.LLMCall{ID: uuid.New(), Status: models.LLMCallStatusSuccess, Response: "hi"}
	inserted := &models.LLMCall{ID: uuid.New(), Status: models.LLMCallStatusError, ErrorType: "transient"}

	r.RecordCompletion(updated, true)
	r.RecordCompletion(inserted, false)
	r.Close()

	assert.Equal(t, 1, store.updates)
	assert.Equal(t, 1, store.saves)

	got, ok := store.get(updated.ID)
	require.True(t, ok)
	assert.Equal(t, "hi", got.Response)

	got, ok = store.get(inserted.ID)
	require.True(t, ok)
	assert.Equal(t, "transient", got.ErrorType)
}

func TestAsyncCallRecorder_StoreErrorIsLogged(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newFakeCallStore()
	store.updateErr = errors.New("gone")
	r := NewAsyncCallRecorder(store, zap.NewNop(), 1)

	r.RecordCompletion(&models.LLMCall{ID: uuid.New()}, true)
	r.Close()

	assert.Equal(t, 1, store.updates)
}

func TestAsyncCallRecorder_DropsWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := newFakeCallStore()
	store.block = make(chan struct{})
	r := NewAsyncCallRecorder(store, zap.NewNop(), 1)

	// The writer picks up the first record and blocks in Save.
	r.RecordCompletion(&models.LLMCall{ID: uuid.New()}, false)
	require.Eventually(t, func() bool { return len(r.queue) == 0 }, time.Second, time.Millisecond)

	r.RecordCompletion(&models.LLMCall{ID: uuid.New()}, false) // buffered
	r.RecordCompletion(&models.LLMCall{ID: uuid.New()}, false) // dropped

	close(store.block)
	r.Close()

	assert.Equal(t, 2, store.saves)
}

func TestAsyncCallRecorder_CloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewAsyncCallRecorder(newFakeCallStore(), zap.NewNop(), 0)
	r.Close()
	r.Close()
}
