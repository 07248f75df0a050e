package repository

import (
	"context"
	"errors"

	"qa-escrow/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("record not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn against a repository bound to a single database
// transaction. Returning an error from fn rolls everything back.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ============================================================================
// Ledger state
// ============================================================================

// GetLedgerState retrieves the single ledger configuration row
func (r *Repository) GetLedgerState(ctx context.Context) (*models.LedgerState, error) {
	var state models.LedgerState
	err := r.db.WithContext(ctx).Where("id = ?", models.LedgerStateID).First(&state).Error
	if err != nil {
		return nil, translate(err)
	}
	return &state, nil
}

// CreateLedgerStateIfMissing inserts the configuration row unless it already
// exists. It never overwrites an existing owner.
func (r *Repository) CreateLedgerStateIfMissing(ctx context.Context, state *models.LedgerState) (bool, error) {
	state.ID = models.LedgerStateID
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(state)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SaveLedgerState updates the configuration row
func (r *Repository) SaveLedgerState(ctx context.Context, state *models.LedgerState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

// ============================================================================
// Questions
// ============================================================================

// CreateQuestion stores a new question
func (r *Repository) CreateQuestion(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

// GetQuestionByID retrieves a question by ID
func (r *Repository) GetQuestionByID(ctx context.Context, questionID uint64) (*models.Question, error) {
	var question models.Question
	err := r.db.WithContext(ctx).Where("id = ?", questionID).First(&question).Error
	if err != nil {
		return nil, translate(err)
	}
	return &question, nil
}

// UpdateQuestion persists a question after a transition
func (r *Repository) UpdateQuestion(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Save(question).Error
}

// DepositRefExists reports whether a deposit reference already backs a question
func (r *Repository) DepositRefExists(ctx context.Context, ref string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("deposit_ref = ?", ref).
		Count(&count).Error
	return count > 0, err
}

// ListUnsettledPayouts retrieves closed questions whose transfer is not
// confirmed
func (r *Repository) ListUnsettledPayouts(ctx context.Context) ([]*models.Question, error) {
	var questions []*models.Question
	err := r.db.WithContext(ctx).
		Where("payout_status IN ?", []models.PayoutStatus{models.PayoutPending, models.PayoutUnconfirmed}).
		Order("id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// ListOpenQuestions retrieves questions that still accept answers at now
func (r *Repository) ListOpenQuestions(ctx context.Context, now uint64) ([]*models.Question, error) {
	var questions []*models.Question
	err := r.db.WithContext(ctx).
		Where("status IN ? AND deadline > ?", models.OpenQuestionStatuses, now).
		Order("id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// ListOverdueQuestions retrieves questions past their deadline that still hold a deposit
func (r *Repository) ListOverdueQuestions(ctx context.Context, now uint64) ([]*models.Question, error) {
	var questions []*models.Question
	err := r.db.WithContext(ctx).
		Where("status IN ? AND deadline <= ?", models.OpenQuestionStatuses, now).
		Order("id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// ListQuestionsByStatus retrieves questions with exactly the stored status
func (r *Repository) ListQuestionsByStatus(ctx context.Context, status models.QuestionStatus) ([]*models.Question, error) {
	var questions []*models.Question
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// ListQuestionsByCreator retrieves every question posted by one identity
func (r *Repository) ListQuestionsByCreator(ctx context.Context, creator string) ([]*models.Question, error) {
	var questions []*models.Question
	err := r.db.WithContext(ctx).
		Where("creator = ?", creator).
		Order("id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

// ============================================================================
// Deposit claims
// ============================================================================

// ClaimDeposit reserves claim.Ref. It reports false when the reference was
// already claimed; the primary key decides across every writer.
func (r *Repository) ClaimDeposit(ctx context.Context, claim *models.DepositClaim) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(claim)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// GetDepositClaim retrieves the claim on a deposit reference
func (r *Repository) GetDepositClaim(ctx context.Context, ref string) (*models.DepositClaim, error) {
	var claim models.DepositClaim
	err := r.db.WithContext(ctx).Where("ref = ?", ref).First(&claim).Error
	if err != nil {
		return nil, translate(err)
	}
	return &claim, nil
}

// SaveDepositClaim inserts or updates a claim
func (r *Repository) SaveDepositClaim(ctx context.Context, claim *models.DepositClaim) error {
	return r.db.WithContext(ctx).Save(claim).Error
}

// ReleasePendingClaim drops a claim that never reached custody
func (r *Repository) ReleasePendingClaim(ctx context.Context, ref string) error {
	return r.db.WithContext(ctx).
		Where("ref = ? AND status = ?", ref, models.DepositClaimPending).
		Delete(&models.DepositClaim{}).Error
}

// ============================================================================
// Answers
// ============================================================================

// CreateAnswer stores a new answer
func (r *Repository) CreateAnswer(ctx context.Context, answer *models.Answer) error {
	return r.db.WithContext(ctx).Create(answer).Error
}

// GetAnswerByID retrieves an answer by ID
func (r *Repository) GetAnswerByID(ctx context.Context, answerID uint64) (*models.Answer, error) {
	var answer models.Answer
	err := r.db.WithContext(ctx).Where("id = ?", answerID).First(&answer).Error
	if err != nil {
		return nil, translate(err)
	}
	return &answer, nil
}

// UpdateAnswer persists an answer after approval
func (r *Repository) UpdateAnswer(ctx context.Context, answer *models.Answer) error {
	return r.db.WithContext(ctx).Save(answer).Error
}

// ListAnswersByQuestion retrieves answers in submission order. Answer IDs
// come from a monotonic counter, so ID order is insertion order.
func (r *Repository) ListAnswersByQuestion(ctx context.Context, questionID uint64) ([]*models.Answer, error) {
	var answers []*models.Answer
	err := r.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("id ASC").
		Find(&answers).Error
	if err != nil {
		return nil, err
	}
	return answers, nil
}
