package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/model"
)

type memDraftStore struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]map[uuid.UUID]json.RawMessage
}

func newMemDraftStore() *memDraftStore {
	return &memDraftStore{drafts: map[uuid.UUID]map[uuid.UUID]json.RawMessage{}}
}

func (m *memDraftStore) UpsertDraftAnswers(_ context.Context, attemptID uuid.UUID, patches []model.AnswerPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drafts[attemptID] == nil {
		m.drafts[attemptID] = map[uuid.UUID]json.RawMessage{}
	}
	for _, p := range patches {
		m.drafts[attemptID][p.QuestionID] = p.Answer
	}
	return nil
}

func (m *memDraftStore) get(attemptID, questionID uuid.UUID) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	answer, ok := m.drafts[attemptID][questionID]
	return answer, ok
}

func enqueue(t *testing.T, rdb *redis.Client, attemptID, questionID uuid.UUID, answer string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"attempt_id":  attemptID.String(),
		"question_id": questionID.String(),
		"answer":      json.RawMessage(answer),
	})
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistDraftsQueue, payload).Err())
}

func TestWorkerPersistsQueuedDrafts(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := newMemDraftStore()
	w := NewAutosaveWorker(store, rdb, zerolog.Nop())

	attemptID := uuid.New()
	q1 := uuid.New()
	q2 := uuid.New()
	enqueue(t, rdb, attemptID, q1, `"POST"`)
	enqueue(t, rdb, attemptID, q2, `true`)

	w.processNext(context.Background())
	w.processNext(context.Background())

	answer, ok := store.get(attemptID, q1)
	require.True(t, ok)
	assert.JSONEq(t, `"POST"`, string(answer))

	answer, ok = store.get(attemptID, q2)
	require.True(t, ok)
	assert.JSONEq(t, `true`, string(answer))

	left, err := rdb.LLen(context.Background(), config.WorkerKey.PersistDraftsQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestWorkerSkipsMalformedPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := newMemDraftStore()
	w := NewAutosaveWorker(store, rdb, zerolog.Nop())

	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistDraftsQueue, "not json").Err())

	w.processNext(context.Background())

	// The bad item is consumed, not retried.
	left, err := rdb.LLen(context.Background(), config.WorkerKey.PersistDraftsQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestWorkerDrainsOnShutdown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := newMemDraftStore()
	w := NewAutosaveWorker(store, rdb, zerolog.Nop())

	attemptID := uuid.New()
	questionID := uuid.New()
	enqueue(t, rdb, attemptID, questionID, `"draft text"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	answer, ok := store.get(attemptID, questionID)
	require.True(t, ok, "queued item should be drained before exit")
	assert.JSONEq(t, `"draft text"`, string(answer))
}
