// Package grading holds the pure scoring logic for exam attempts: objective
// auto-grading of submitted answers and the grade-summary calculation used by
// every grade-facing read path.
package grading

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/model"
)

// PassPercent is the minimum score percentage that counts as a pass, and the
// D/F letter-grade boundary.
const PassPercent = 55.0

// Summary is the rendered grade for one attempt. Grade and Passed stay nil
// while the attempt is provisional (pending manual review); ScorePercent is
// always reported, as a provisional figure when not final.
type Summary struct {
	ScorePercent float64  `json:"scorePercent"`
	Grade        *string  `json:"grade"`
	Passed       *bool    `json:"passed"`
}

// ScorePercent maps awarded/total points to a percentage clamped to [0, 100].
// A non-positive total yields 0.
func ScorePercent(pointsAwarded, pointsTotal float64) float64 {
	if pointsTotal <= 0 {
		return 0
	}
	pct := pointsAwarded / pointsTotal * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// LetterGrade maps a score percentage onto the A–F scale.
func LetterGrade(scorePercent float64) string {
	switch {
	case scorePercent >= 90:
		return "A"
	case scorePercent >= 80:
		return "B"
	case scorePercent >= 70:
		return "C"
	case scorePercent >= PassPercent:
		return "D"
	default:
		return "F"
	}
}

// Summarize renders points into the grade summary. This is the single source
// of truth for every surface that displays a grade.
func Summarize(pointsAwarded, pointsTotal float64, isFinal bool) Summary {
	pct := ScorePercent(pointsAwarded, pointsTotal)
	if !isFinal {
		return Summary{ScorePercent: pct}
	}
	grade := LetterGrade(pct)
	passed := pct >= PassPercent
	return Summary{ScorePercent: pct, Grade: &grade, Passed: &passed}
}

// Result is the outcome of grading one attempt.
type Result struct {
	Answers       []model.AttemptAnswer
	PointsAwarded float64
	PointsTotal   float64
	NeedsReview   bool
}

// Grade scores a submitted answer set against the attempt's question list, in
// question order. Questions without a submitted answer are recorded with an
// empty payload. Essay and image-upload questions are never auto-graded: they
// contribute 0 points and flag the attempt for manual review. tf answers must
// be a JSON boolean exactly equal to the key; multiple-choice answers a JSON
// string exactly equal to the key, case-sensitive.
func Grade(questions []model.Question, submitted map[uuid.UUID]json.RawMessage) Result {
	res := Result{Answers: make([]model.AttemptAnswer, 0, len(questions))}

	for _, q := range questions {
		maxPoints := q.MaxPoints()
		res.PointsTotal += maxPoints

		rec := model.AttemptAnswer{
			QuestionID: q.ID,
			Answer:     submitted[q.ID],
			MaxPoints:  maxPoints,
		}

		switch q.Type {
		case model.QuestionTypeEssay, model.QuestionTypeImageUpload:
			res.NeedsReview = true
		case model.QuestionTypeTrueFalse:
			correct := gradeTrueFalse(&q, rec.Answer)
			rec.IsCorrect = &correct
			if correct {
				rec.PointsAwarded = maxPoints
			}
		case model.QuestionTypeMultipleChoice:
			correct := gradeMultipleChoice(&q, rec.Answer)
			rec.IsCorrect = &correct
			if correct {
				rec.PointsAwarded = maxPoints
			}
		}

		res.PointsAwarded += rec.PointsAwarded
		res.Answers = append(res.Answers, rec)
	}

	return res
}

func gradeTrueFalse(q *model.Question, answer json.RawMessage) bool {
	key, ok := q.CorrectBool()
	if !ok {
		return false
	}
	var got bool
	if err := json.Unmarshal(answer, &got); err != nil {
		return false
	}
	return got == key
}

func gradeMultipleChoice(q *model.Question, answer json.RawMessage) bool {
	key, ok := q.CorrectOption()
	if !ok {
		return false
	}
	var got string
	if err := json.Unmarshal(answer, &got); err != nil {
		return false
	}
	return got == key
}

// ClampOverride bounds a manual point override into [0, maxPoints].
func ClampOverride(points, maxPoints float64) float64 {
	if points < 0 {
		return 0
	}
	if points > maxPoints {
		return maxPoints
	}
	return points
}
