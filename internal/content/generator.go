// Package content supplies quiz questions to sessions. The engine treats the
// generator as an external collaborator whose output is an opaque batch of
// validated questions.
package content

import (
	"context"
	"fmt"

	"flashquiz-service/internal/domain"

	"github.com/google/uuid"
)

// Generator produces a batch of questions for a topic. Implementations may be
// slow or fail; callers must not invoke them from inside a session loop.
type Generator interface {
	Generate(ctx context.Context, topic string, count int) ([]domain.Question, error)
}

// BankSource loads the full question bank for a topic.
type BankSource interface {
	GetBank(ctx context.Context, topic string) (domain.QuestionBank, error)
}

// BankGenerator draws questions from stored banks. Batches are validated
// wholesale: one malformed question rejects the batch.
type BankGenerator struct {
	banks BankSource
}

func NewBankGenerator(banks BankSource) *BankGenerator {
	return &BankGenerator{banks: banks}
}

func (g *BankGenerator) Generate(ctx context.Context, topic string, count int) ([]domain.Question, error) {
	bank, err := g.banks.GetBank(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("load bank %q: %w", topic, err)
	}
	questions := bank.Questions
	if count > 0 && count < len(questions) {
		questions = questions[:count]
	}

	out := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		q = EnsureIDs(q)
		if err := ValidateQuestion(q); err != nil {
			return nil, fmt.Errorf("bank %q question %q: %w", topic, q.ID, err)
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, domain.ErrBankNotFound
	}
	return out, nil
}

// EnsureIDs assigns fresh identifiers where the bank left them blank, so the
// same bank question can appear in many sessions without id reuse.
func EnsureIDs(q domain.Question) domain.Question {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	answers := make([]domain.Answer, len(q.Answers))
	copy(answers, q.Answers)
	for i := range answers {
		if answers[i].ID == "" {
			answers[i].ID = uuid.NewString()
		}
	}
	q.Answers = answers
	return q
}

// ValidateQuestion enforces the invariants a session relies on: exactly four
// answers, exactly one correct, unique answer ids, and known color tags.
func ValidateQuestion(q domain.Question) error {
	if q.Text == "" {
		return fmt.Errorf("%w: empty text", domain.ErrInvalidQuestion)
	}
	if len(q.Answers) != 4 {
		return fmt.Errorf("%w: expected 4 answers, got %d", domain.ErrInvalidQuestion, len(q.Answers))
	}
	correct := 0
	seen := make(map[string]bool, len(q.Answers))
	for _, a := range q.Answers {
		if a.ID == "" || seen[a.ID] {
			return fmt.Errorf("%w: duplicate or empty answer id", domain.ErrInvalidQuestion)
		}
		seen[a.ID] = true
		if !a.Color.Valid() {
			return fmt.Errorf("%w: unknown color %q", domain.ErrInvalidQuestion, a.Color)
		}
		if a.Correct {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("%w: expected exactly one correct answer, got %d", domain.ErrInvalidQuestion, correct)
	}
	return nil
}

// StaticGenerator serves fixed batches keyed by topic (useful for tests and
// for running without a database).
type StaticGenerator struct {
	banks map[string][]domain.Question
}

func NewStaticGenerator(banks map[string][]domain.Question) *StaticGenerator {
	return &StaticGenerator{banks: banks}
}

func (g *StaticGenerator) Generate(_ context.Context, topic string, count int) ([]domain.Question, error) {
	questions, ok := g.banks[topic]
	if !ok {
		return nil, domain.ErrBankNotFound
	}
	if count > 0 && count < len(questions) {
		questions = questions[:count]
	}
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return out, nil
}
