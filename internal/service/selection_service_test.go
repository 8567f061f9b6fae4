package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examly/examly-backend/internal/model"
)

func seedPool(t *testing.T, pool *memQuestionStore, courseID uuid.UUID, counts map[model.QuestionType]int) map[model.QuestionType][]uuid.UUID {
	t.Helper()
	ids := map[model.QuestionType][]uuid.UUID{}
	for qtype, n := range counts {
		for i := 0; i < n; i++ {
			q := pool.add(model.Question{
				CourseID: courseID,
				Type:     qtype,
				Content:  "q",
				Points:   1,
			})
			ids[qtype] = append(ids[qtype], q.ID)
		}
	}
	return ids
}

func randomExam(courseID uuid.UUID, total int, cfg *model.RandomConfig) *model.Exam {
	return &model.Exam{
		ID:            uuid.New(),
		CourseID:      &courseID,
		SelectionMode: model.SelectionModeRandom,
		QuestionCount: total,
		RandomConfig:  cfg,
	}
}

func TestSelectComposition(t *testing.T) {
	pool := &memQuestionStore{}
	courseID := uuid.New()
	typed := seedPool(t, pool, courseID, map[model.QuestionType]int{
		model.QuestionTypeMultipleChoice: 5,
		model.QuestionTypeTrueFalse:      5,
		model.QuestionTypeEssay:          5,
	})
	svc := NewSelectionService(pool)

	exam := randomExam(courseID, 5, &model.RandomConfig{MCCount: 2, TFCount: 1})
	picked, err := svc.Select(context.Background(), exam)
	require.NoError(t, err)
	require.Len(t, picked, 5)

	seen := map[uuid.UUID]bool{}
	for _, id := range picked {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	mcSet := map[uuid.UUID]bool{}
	for _, id := range typed[model.QuestionTypeMultipleChoice] {
		mcSet[id] = true
	}
	tfSet := map[uuid.UUID]bool{}
	for _, id := range typed[model.QuestionTypeTrueFalse] {
		tfSet[id] = true
	}

	// The first two slots come from the mc bucket and the third from tf;
	// shuffle_order is off so the bucket order is preserved.
	assert.True(t, mcSet[picked[0]])
	assert.True(t, mcSet[picked[1]])
	assert.True(t, tfSet[picked[2]])
}

func TestSelectShuffleOrderKeepsMembership(t *testing.T) {
	pool := &memQuestionStore{}
	courseID := uuid.New()
	seedPool(t, pool, courseID, map[model.QuestionType]int{
		model.QuestionTypeMultipleChoice: 4,
		model.QuestionTypeTrueFalse:      4,
	})
	svc := NewSelectionService(pool)

	exam := randomExam(courseID, 6, &model.RandomConfig{MCCount: 3, TFCount: 3, ShuffleOrder: true})
	picked, err := svc.Select(context.Background(), exam)
	require.NoError(t, err)
	require.Len(t, picked, 6)

	byType := map[model.QuestionType]int{}
	docs, err := pool.GetByIDs(context.Background(), picked)
	require.NoError(t, err)
	require.Len(t, docs, 6, "no duplicates")
	for _, q := range docs {
		byType[q.Type]++
	}
	assert.Equal(t, 3, byType[model.QuestionTypeMultipleChoice])
	assert.Equal(t, 3, byType[model.QuestionTypeTrueFalse])
}

func TestValidatePoolShortfall(t *testing.T) {
	pool := &memQuestionStore{}
	courseID := uuid.New()
	seedPool(t, pool, courseID, map[model.QuestionType]int{
		model.QuestionTypeMultipleChoice: 2,
		model.QuestionTypeEssay:          5,
	})
	svc := NewSelectionService(pool)

	exam := randomExam(courseID, 3, &model.RandomConfig{MCCount: 3})
	err := svc.Validate(context.Background(), exam)
	require.ErrorIs(t, err, ErrInsufficientPool)

	var shortfall *PoolShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, model.QuestionTypeMultipleChoice, shortfall.Type)
	assert.Equal(t, 3, shortfall.Required)
	assert.Equal(t, 2, shortfall.Available)
	assert.Contains(t, err.Error(), "multiple-choice")
	assert.Contains(t, err.Error(), "need 3, have 2")
}

func TestValidateTotalShortfall(t *testing.T) {
	pool := &memQuestionStore{}
	courseID := uuid.New()
	seedPool(t, pool, courseID, map[model.QuestionType]int{
		model.QuestionTypeEssay: 3,
	})
	svc := NewSelectionService(pool)

	err := svc.Validate(context.Background(), randomExam(courseID, 5, nil))
	var shortfall *PoolShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Empty(t, shortfall.Type)
	assert.Equal(t, 5, shortfall.Required)
	assert.Equal(t, 3, shortfall.Available)
}

func TestValidateRejectsBadCounts(t *testing.T) {
	pool := &memQuestionStore{}
	courseID := uuid.New()
	seedPool(t, pool, courseID, map[model.QuestionType]int{model.QuestionTypeEssay: 10})
	svc := NewSelectionService(pool)

	t.Run("no course", func(t *testing.T) {
		exam := randomExam(courseID, 5, nil)
		exam.CourseID = nil
		assert.ErrorIs(t, svc.Validate(context.Background(), exam), ErrSelectionNoCourse)
	})

	t.Run("zero total", func(t *testing.T) {
		assert.ErrorIs(t, svc.Validate(context.Background(), randomExam(courseID, 0, nil)), ErrSelectionBadCounts)
	})

	t.Run("typed counts exceed total", func(t *testing.T) {
		exam := randomExam(courseID, 2, &model.RandomConfig{EssayCount: 3})
		assert.ErrorIs(t, svc.Validate(context.Background(), exam), ErrSelectionBadCounts)
	})

	t.Run("negative count", func(t *testing.T) {
		exam := randomExam(courseID, 2, &model.RandomConfig{TFCount: -1})
		assert.ErrorIs(t, svc.Validate(context.Background(), exam), ErrSelectionBadCounts)
	})
}

func TestDraw(t *testing.T) {
	pool := &memQuestionStore{}
	courseID := uuid.New()
	seedPool(t, pool, courseID, map[model.QuestionType]int{model.QuestionTypeMultipleChoice: 4})
	svc := NewSelectionService(pool)

	ids, err := svc.Draw(context.Background(), courseID, 3)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	_, err = svc.Draw(context.Background(), courseID, 5)
	assert.ErrorIs(t, err, ErrInsufficientPool)
}

// mustJSON marshals a value for use as an answer payload in tests.
func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
