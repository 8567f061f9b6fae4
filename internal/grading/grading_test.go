package grading

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examly/examly-backend/internal/model"
)

func TestScorePercent(t *testing.T) {
	tests := []struct {
		name    string
		awarded float64
		total   float64
		want    float64
	}{
		{name: "half", awarded: 5, total: 10, want: 50},
		{name: "full", awarded: 10, total: 10, want: 100},
		{name: "zero total", awarded: 5, total: 0, want: 0},
		{name: "negative total", awarded: 5, total: -3, want: 0},
		{name: "over-awarded clamps to 100", awarded: 12, total: 10, want: 100},
		{name: "negative awarded clamps to 0", awarded: -2, total: 10, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ScorePercent(tc.awarded, tc.total), 1e-9)
		})
	}
}

func TestLetterGradeBoundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{90, "A"}, {89.999, "B"},
		{80, "B"}, {79.999, "C"},
		{70, "C"}, {69.999, "D"},
		{55, "D"}, {54.999, "F"},
		{0, "F"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, LetterGrade(tc.pct), "pct=%v", tc.pct)
	}
}

func TestSummarizeProvisional(t *testing.T) {
	s := Summarize(3, 10, false)
	assert.InDelta(t, 30.0, s.ScorePercent, 1e-9)
	assert.Nil(t, s.Grade)
	assert.Nil(t, s.Passed)
}

func TestSummarizeFinalPassBoundary(t *testing.T) {
	s := Summarize(55, 100, true)
	require.NotNil(t, s.Grade)
	require.NotNil(t, s.Passed)
	assert.Equal(t, "D", *s.Grade)
	assert.True(t, *s.Passed)

	s = Summarize(54.999, 100, true)
	require.NotNil(t, s.Grade)
	assert.Equal(t, "F", *s.Grade)
	assert.False(t, *s.Passed)
}

func TestSummarizeZeroTotal(t *testing.T) {
	s := Summarize(0, 0, true)
	assert.Zero(t, s.ScorePercent)
	require.NotNil(t, s.Grade)
	assert.Equal(t, "F", *s.Grade)
}

func tfQuestion(points float64, key bool) model.Question {
	raw, _ := json.Marshal(key)
	return model.Question{
		ID:            uuid.New(),
		Type:          model.QuestionTypeTrueFalse,
		Content:       "The sky is blue.",
		CorrectAnswer: raw,
		Points:        points,
	}
}

func mcQuestion(points float64, options []string, key string) model.Question {
	raw, _ := json.Marshal(key)
	return model.Question{
		ID:            uuid.New(),
		Type:          model.QuestionTypeMultipleChoice,
		Content:       "Pick one.",
		Options:       options,
		CorrectAnswer: raw,
		Points:        points,
	}
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestGradeTrueFalse(t *testing.T) {
	q := tfQuestion(2, true)

	tests := []struct {
		name        string
		answer      json.RawMessage
		wantCorrect bool
		wantPoints  float64
	}{
		{name: "exact match", answer: rawJSON(t, true), wantCorrect: true, wantPoints: 2},
		{name: "wrong boolean", answer: rawJSON(t, false), wantCorrect: false, wantPoints: 0},
		{name: "non-boolean payload", answer: rawJSON(t, "true"), wantCorrect: false, wantPoints: 0},
		{name: "missing answer", answer: nil, wantCorrect: false, wantPoints: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			submitted := map[uuid.UUID]json.RawMessage{}
			if tc.answer != nil {
				submitted[q.ID] = tc.answer
			}
			res := Grade([]model.Question{q}, submitted)
			require.Len(t, res.Answers, 1)
			require.NotNil(t, res.Answers[0].IsCorrect)
			assert.Equal(t, tc.wantCorrect, *res.Answers[0].IsCorrect)
			assert.InDelta(t, tc.wantPoints, res.Answers[0].PointsAwarded, 1e-9)
			assert.InDelta(t, 2.0, res.PointsTotal, 1e-9)
			assert.False(t, res.NeedsReview)
		})
	}
}

func TestGradeMultipleChoiceCaseSensitive(t *testing.T) {
	q := mcQuestion(3, []string{"POST", "GET"}, "POST")

	res := Grade([]model.Question{q}, map[uuid.UUID]json.RawMessage{q.ID: rawJSON(t, "POST")})
	assert.InDelta(t, 3.0, res.PointsAwarded, 1e-9)

	res = Grade([]model.Question{q}, map[uuid.UUID]json.RawMessage{q.ID: rawJSON(t, "post")})
	assert.Zero(t, res.PointsAwarded)
	require.NotNil(t, res.Answers[0].IsCorrect)
	assert.False(t, *res.Answers[0].IsCorrect)
}

func TestGradeEssayNeedsReview(t *testing.T) {
	essay := model.Question{ID: uuid.New(), Type: model.QuestionTypeEssay, Content: "Discuss.", Points: 5}
	tf := tfQuestion(1, true)
	mc := mcQuestion(2, []string{"A", "B"}, "A")

	res := Grade([]model.Question{mc, tf, essay}, map[uuid.UUID]json.RawMessage{
		mc.ID:    rawJSON(t, "A"),
		tf.ID:    rawJSON(t, true),
		essay.ID: rawJSON(t, "my essay text"),
	})

	assert.True(t, res.NeedsReview)
	// Essay contributes to the total but not to the awarded points.
	assert.InDelta(t, 8.0, res.PointsTotal, 1e-9)
	assert.InDelta(t, 3.0, res.PointsAwarded, 1e-9)
	assert.Nil(t, res.Answers[2].IsCorrect)
	assert.Zero(t, res.Answers[2].PointsAwarded)
}

func TestGradeMalformedPointsDefaultToOne(t *testing.T) {
	q := tfQuestion(0, true) // non-positive points
	res := Grade([]model.Question{q}, map[uuid.UUID]json.RawMessage{q.ID: rawJSON(t, true)})
	assert.InDelta(t, 1.0, res.PointsTotal, 1e-9)
	assert.InDelta(t, 1.0, res.PointsAwarded, 1e-9)
}

func TestGradePreservesQuestionOrder(t *testing.T) {
	qs := []model.Question{
		mcQuestion(1, []string{"A", "B"}, "A"),
		tfQuestion(1, false),
		mcQuestion(1, []string{"C", "D"}, "D"),
	}
	res := Grade(qs, nil)
	require.Len(t, res.Answers, 3)
	for i, q := range qs {
		assert.Equal(t, q.ID, res.Answers[i].QuestionID)
	}
}

func TestClampOverride(t *testing.T) {
	assert.InDelta(t, 0.0, ClampOverride(-1, 5), 1e-9)
	assert.InDelta(t, 5.0, ClampOverride(9, 5), 1e-9)
	assert.InDelta(t, 3.5, ClampOverride(3.5, 5), 1e-9)
}
