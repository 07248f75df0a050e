package services

import (
	"context"
	"fmt"

	"qa-escrow/internal/models"
)

// GetAllOpenQuestions returns open questions whose deadline has not passed,
// in ascending id order.
func (s *LedgerService) GetAllOpenQuestions(ctx context.Context) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	questions, err := s.repo.ListOpenQuestions(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list open questions: %w", err)
	}
	return questions, nil
}

func (s *LedgerService) GetQuestionDetails(ctx context.Context, questionID uint64) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadQuestion(ctx, s.repo, questionID)
}

// GetAnswersForQuestion returns the answers to one question in submission
// order.
func (s *LedgerService) GetAnswersForQuestion(ctx context.Context, questionID uint64) ([]*models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.loadQuestion(ctx, s.repo, questionID); err != nil {
		return nil, err
	}

	answers, err := s.repo.ListAnswersByQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}

// GetQuestionsByStatus filters by stored status. Open questions past their
// deadline keep their stored status here.
func (s *LedgerService) GetQuestionsByStatus(
	ctx context.Context,
	status models.QuestionStatus,
) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	questions, err := s.repo.ListQuestionsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions by status: %w", err)
	}
	return questions, nil
}

// GetExpiredQuestions returns open questions whose deadline has passed and
// which are waiting for approval or refund.
func (s *LedgerService) GetExpiredQuestions(ctx context.Context) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	questions, err := s.repo.ListOverdueQuestions(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue questions: %w", err)
	}
	return questions, nil
}

func (s *LedgerService) GetQuestionsByCreator(ctx context.Context, creator string) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	questions, err := s.repo.ListQuestionsByCreator(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions by creator: %w", err)
	}
	return questions, nil
}

// GetUnsettledPayouts returns closed questions whose closing transfer is
// pending or has an unknown outcome.
func (s *LedgerService) GetUnsettledPayouts(ctx context.Context) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	questions, err := s.repo.ListUnsettledPayouts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled payouts: %w", err)
	}
	return questions, nil
}

func (s *LedgerService) GetOwner(ctx context.Context) (string, error) {
	state, err := s.readState(ctx)
	if err != nil {
		return "", err
	}
	return state.Owner, nil
}

func (s *LedgerService) IsPaused(ctx context.Context) (bool, error) {
	state, err := s.readState(ctx)
	if err != nil {
		return false, err
	}
	return state.Paused, nil
}

// GetTotalQuestions returns how many question ids have been issued.
func (s *LedgerService) GetTotalQuestions(ctx context.Context) (uint64, error) {
	state, err := s.readState(ctx)
	if err != nil {
		return 0, err
	}
	return state.QuestionCounter, nil
}

// GetTotalAnswers returns how many answer ids have been issued.
func (s *LedgerService) GetTotalAnswers(ctx context.Context) (uint64, error) {
	state, err := s.readState(ctx)
	if err != nil {
		return 0, err
	}
	return state.AnswerCounter, nil
}

func (s *LedgerService) GetContractStats(ctx context.Context) (*models.ContractStats, error) {
	state, err := s.readState(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ContractStats{
		TotalQuestions: state.QuestionCounter,
		TotalAnswers:   state.AnswerCounter,
		Paused:         state.Paused,
	}, nil
}

func (s *LedgerService) readState(ctx context.Context) (*models.LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadState(ctx, s.repo)
}
