package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/examly/examly-backend/internal/model"
)

var (
	ErrSelectionNoCourse  = errors.New("random selection requires an exam bound to a course")
	ErrSelectionBadCounts = errors.New("selection composition counts are inconsistent")
	ErrInsufficientPool   = errors.New("question pool cannot satisfy the requested composition")
)

// PoolShortfallError reports the first unmet feasibility constraint: which
// question type ran short (empty Type means the overall total) and the
// requested versus available counts. It unwraps to ErrInsufficientPool.
type PoolShortfallError struct {
	Type      model.QuestionType
	Required  int
	Available int
}

func (e *PoolShortfallError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("question pool too small: need %d questions, have %d", e.Required, e.Available)
	}
	return fmt.Sprintf("not enough %s questions: need %d, have %d", e.Type, e.Required, e.Available)
}

func (e *PoolShortfallError) Unwrap() error { return ErrInsufficientPool }

// QuestionPool is the read-only view of a course's question bank consumed by
// selection. Pass an empty type for the whole bank.
type QuestionPool interface {
	ListByCourse(ctx context.Context, courseID uuid.UUID, qtype model.QuestionType) ([]model.Question, error)
	CountByCourseAndType(ctx context.Context, courseID uuid.UUID) (map[model.QuestionType]int, error)
}

// SelectionService validates random-composition feasibility against a course
// pool and draws attempt question lists with an unbiased crypto-strong
// shuffle.
type SelectionService struct {
	pool QuestionPool
}

// NewSelectionService creates a new SelectionService.
func NewSelectionService(pool QuestionPool) *SelectionService {
	return &SelectionService{pool: pool}
}

// Validate checks that the exam's composition can be drawn from its course
// pool. It fails on the first unmet constraint with an error naming the
// shortfall and the required/available counts.
func (s *SelectionService) Validate(ctx context.Context, exam *model.Exam) error {
	if exam.CourseID == nil {
		return ErrSelectionNoCourse
	}
	total := exam.QuestionCount
	if total < 1 {
		return fmt.Errorf("%w: total question count must be at least 1", ErrSelectionBadCounts)
	}

	cfg := exam.RandomConfig
	if cfg == nil {
		cfg = &model.RandomConfig{}
	}
	for _, n := range []int{cfg.MCCount, cfg.TFCount, cfg.ImageCount, cfg.EssayCount} {
		if n < 0 {
			return fmt.Errorf("%w: per-type counts must not be negative", ErrSelectionBadCounts)
		}
	}
	if cfg.TypedTotal() > total {
		return fmt.Errorf("%w: per-type counts sum to %d, exceeding total %d",
			ErrSelectionBadCounts, cfg.TypedTotal(), total)
	}

	// Feasibility only needs counts, not the question rows themselves.
	byType, err := s.pool.CountByCourseAndType(ctx, *exam.CourseID)
	if err != nil {
		return fmt.Errorf("count course questions: %w", err)
	}
	poolSize := 0
	for _, n := range byType {
		poolSize += n
	}

	required := []struct {
		t model.QuestionType
		n int
	}{
		{model.QuestionTypeMultipleChoice, cfg.MCCount},
		{model.QuestionTypeTrueFalse, cfg.TFCount},
		{model.QuestionTypeImageUpload, cfg.ImageCount},
		{model.QuestionTypeEssay, cfg.EssayCount},
	}
	for _, req := range required {
		if req.n > byType[req.t] {
			return &PoolShortfallError{Type: req.t, Required: req.n, Available: byType[req.t]}
		}
	}
	if total > poolSize {
		return &PoolShortfallError{Required: total, Available: poolSize}
	}
	return nil
}

// Select draws one attempt's question-id list: a random subset of each typed
// bucket, the remaining slots filled from the rest of the pool, no
// duplicates, length exactly the exam's question count. When the composition
// asks for it the final order is itself shuffled; otherwise the
// bucket-then-remainder order is preserved.
func (s *SelectionService) Select(ctx context.Context, exam *model.Exam) ([]uuid.UUID, error) {
	if err := s.Validate(ctx, exam); err != nil {
		return nil, err
	}

	questions, err := s.pool.ListByCourse(ctx, *exam.CourseID, "")
	if err != nil {
		return nil, fmt.Errorf("list course questions: %w", err)
	}

	cfg := exam.RandomConfig
	if cfg == nil {
		cfg = &model.RandomConfig{}
	}

	buckets := map[model.QuestionType][]uuid.UUID{}
	for _, q := range questions {
		buckets[q.Type] = append(buckets[q.Type], q.ID)
	}

	picked := make([]uuid.UUID, 0, exam.QuestionCount)
	pickedSet := map[uuid.UUID]bool{}
	draws := []struct {
		t model.QuestionType
		n int
	}{
		{model.QuestionTypeMultipleChoice, cfg.MCCount},
		{model.QuestionTypeTrueFalse, cfg.TFCount},
		{model.QuestionTypeImageUpload, cfg.ImageCount},
		{model.QuestionTypeEssay, cfg.EssayCount},
	}
	for _, d := range draws {
		if d.n == 0 {
			continue
		}
		ids := append([]uuid.UUID(nil), buckets[d.t]...)
		if err := shuffleUUIDs(ids); err != nil {
			return nil, err
		}
		for _, id := range ids[:d.n] {
			picked = append(picked, id)
			pickedSet[id] = true
		}
	}

	if remaining := exam.QuestionCount - len(picked); remaining > 0 {
		rest := make([]uuid.UUID, 0, len(questions)-len(picked))
		for _, q := range questions {
			if !pickedSet[q.ID] {
				rest = append(rest, q.ID)
			}
		}
		if err := shuffleUUIDs(rest); err != nil {
			return nil, err
		}
		picked = append(picked, rest[:remaining]...)
	}

	if cfg.ShuffleOrder {
		if err := shuffleUUIDs(picked); err != nil {
			return nil, err
		}
	}
	return picked, nil
}

// Draw picks n random question ids from the whole course pool. Used to lazily
// populate a manual-mode exam whose question list was left empty.
func (s *SelectionService) Draw(ctx context.Context, courseID uuid.UUID, n int) ([]uuid.UUID, error) {
	questions, err := s.pool.ListByCourse(ctx, courseID, "")
	if err != nil {
		return nil, fmt.Errorf("list course questions: %w", err)
	}
	if n > len(questions) {
		return nil, &PoolShortfallError{Required: n, Available: len(questions)}
	}
	ids := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	if err := shuffleUUIDs(ids); err != nil {
		return nil, err
	}
	return ids[:n], nil
}

// shuffleUUIDs is a Fisher-Yates shuffle driven by crypto/rand. rand.Int
// draws uniformly in [0, max), so the swap index carries no modulo bias.
func shuffleUUIDs(ids []uuid.UUID) error {
	for i := len(ids) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("draw shuffle index: %w", err)
		}
		j := int(n.Int64())
		ids[i], ids[j] = ids[j], ids[i]
	}
	return nil
}
