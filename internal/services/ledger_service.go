package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"qa-escrow/internal/blockchain"
	"qa-escrow/internal/metrics"
	"qa-escrow/internal/models"
	"qa-escrow/internal/repository"
)

// LedgerOptions configures the marketplace rules.
type LedgerOptions struct {
	// MinDeposit is the smallest accepted question deposit, in lamports.
	MinDeposit uint64
}

// LedgerService is the escrow state machine for questions and answers.
//
// Every mutation runs under the write lock, so operations in one process are
// serialized. All guards run before the first write. Mutations run on a
// context detached from the caller: a client that goes away never interrupts
// a custody movement half way. Queries take the read lock and observe a
// consistent snapshot.
//
// Settlement commits the closed status before moving funds. The question is
// reopened only when the transfer definitely did not happen; a transfer with
// an unknown outcome keeps the question closed and records its reference.
type LedgerService struct {
	mu         sync.RWMutex
	repo       *repository.Repository
	custodian  blockchain.Custodian
	payouts    *PayoutService
	clock      Clock
	events     EventSink
	metrics    *metrics.LedgerMetrics
	minDeposit uint64
}

func NewLedgerService(
	repo *repository.Repository,
	custodian blockchain.Custodian,
	clock Clock,
	events EventSink,
	m *metrics.LedgerMetrics,
	opts LedgerOptions,
) *LedgerService {
	if events == nil {
		events = LogEventSink{}
	}
	return &LedgerService{
		repo:       repo,
		custodian:  custodian,
		payouts:    NewPayoutService(custodian, m),
		clock:      clock,
		events:     events,
		metrics:    m,
		minDeposit: opts.MinDeposit,
	}
}

// Initialize creates the ledger configuration with owner. It runs once per
// deployment; later calls keep the existing owner.
func (s *LedgerService) Initialize(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.custodian.ValidateAddress(owner) {
		return reject(KindInvalidInput, CodeInvalidInput, "owner %q is not a valid address", owner)
	}

	created, err := s.repo.CreateLedgerStateIfMissing(ctx, &models.LedgerState{Owner: owner})
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	if created {
		log.Printf("[Ledger] Initialized with owner %s", owner)
	} else {
		log.Printf("[Ledger] Already initialized, keeping existing owner")
	}
	return nil
}

// Now returns the current logical time.
func (s *LedgerService) Now() uint64 {
	return s.clock.Now()
}

// MinDeposit returns the smallest accepted deposit in lamports.
func (s *LedgerService) MinDeposit() uint64 {
	return s.minDeposit
}

// PostQuestion locks the caller's deposit and opens a question.
func (s *LedgerService) PostQuestion(
	ctx context.Context,
	caller string,
	req *models.PostQuestionRequest,
) (*models.Question, error) {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	question, err := s.postQuestion(context.WithoutCancel(ctx), caller, req)
	s.observe("post_question", started, err)
	if err != nil {
		return nil, err
	}

	event := models.NewLedgerEvent(models.LedgerEventQuestionCreated, question.CreatedAt)
	event.QuestionID = question.ID
	event.Actor = question.Creator
	event.Amount = question.LockedAmount
	event.Deadline = question.Deadline
	event.TxRef = question.DepositRef
	s.events.Emit(event)

	return question, nil
}

func (s *LedgerService) postQuestion(
	ctx context.Context,
	caller string,
	req *models.PostQuestionRequest,
) (*models.Question, error) {
	if caller == "" {
		return nil, reject(KindUnauthorized, CodeUnauthorized, "caller identity required")
	}
	now := s.clock.Now()

	state, err := s.loadState(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	if state.Paused {
		return nil, reject(KindInvalidState, CodeContractPaused, "contract is paused")
	}
	if req.DepositAmount < s.minDeposit {
		return nil, reject(KindInvalidInput, CodeInsufficientDeposit,
			"deposit of %d lamports is below the minimum of %d", req.DepositAmount, s.minDeposit)
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return nil, reject(KindInvalidInput, CodeInvalidInput, "title or description is empty")
	}
	if len(req.Title) > models.MaxTitleLength {
		return nil, reject(KindInvalidInput, CodeInvalidInput, "title exceeds %d bytes", models.MaxTitleLength)
	}
	if len(req.DepositSignature) > models.MaxDepositRefLength {
		return nil, reject(KindInvalidInput, CodeInvalidInput,
			"deposit signature exceeds %d bytes", models.MaxDepositRefLength)
	}
	if req.Deadline <= now {
		return nil, reject(KindInvalidInput, CodeInvalidDeadline,
			"deadline %d must be after the current time %d", req.Deadline, now)
	}

	ref := req.DepositSignature
	if ref != "" {
		if err := s.claimDeposit(ctx, caller, req.DepositAmount, ref, now); err != nil {
			return nil, err
		}
	}

	receipt, err := s.payouts.AcceptDeposit(ctx, caller, req.DepositAmount, ref)
	if err != nil {
		if ref != "" {
			if relErr := s.repo.ReleasePendingClaim(ctx, ref); relErr != nil {
				log.Printf("[Ledger] Deposit %s stays claimed: %v", ref, relErr)
			}
		}
		return nil, err
	}

	var question *models.Question
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}

		question = &models.Question{
			ID:           state.NextQuestionID(),
			Creator:      caller,
			Title:        req.Title,
			Description:  req.Description,
			Deadline:     req.Deadline,
			LockedAmount: receipt.Amount,
			CreatedAt:    now,
			Status:       models.QuestionStatusCreated,
			DepositRef:   receipt.Ref,
		}

		if err := tx.CreateQuestion(ctx, question); err != nil {
			return fmt.Errorf("failed to create question: %w", err)
		}
		if err := tx.SaveLedgerState(ctx, state); err != nil {
			return fmt.Errorf("failed to advance question counter: %w", err)
		}
		claim := &models.DepositClaim{
			Ref:        receipt.Ref,
			Payer:      caller,
			Amount:     receipt.Amount,
			Status:     models.DepositClaimConsumed,
			QuestionID: &question.ID,
			ClaimedAt:  now,
		}
		if err := tx.SaveDepositClaim(ctx, claim); err != nil {
			return fmt.Errorf("failed to record deposit claim: %w", err)
		}
		return nil
	})
	if err != nil {
		s.abandonDeposit(ctx, receipt, now)
		return nil, err
	}

	log.Printf("[Ledger] Question %d posted by %s: %d lamports locked until %d",
		question.ID, caller, question.LockedAmount, question.Deadline)
	return question, nil
}

// claimDeposit reserves a caller-supplied deposit reference before the
// deposit is confirmed. A reference is accepted at most once, even after its
// deposit was returned.
func (s *LedgerService) claimDeposit(ctx context.Context, caller string, amount uint64, ref string, now uint64) error {
	used, err := s.repo.DepositRefExists(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to check deposit reference: %w", err)
	}
	if used {
		return reject(KindInvalidInput, CodeDepositAlreadyUsed, "deposit %s already backs a question", ref)
	}

	claimed, err := s.repo.ClaimDeposit(ctx, &models.DepositClaim{
		Ref:       ref,
		Payer:     caller,
		Amount:    amount,
		Status:    models.DepositClaimPending,
		ClaimedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to claim deposit reference: %w", err)
	}
	if !claimed {
		return reject(KindInvalidInput, CodeDepositAlreadyUsed, "deposit %s was already used", ref)
	}
	return nil
}

// abandonDeposit returns a confirmed deposit whose question could not be
// stored. The claim is marked reversed before any funds move.
func (s *LedgerService) abandonDeposit(ctx context.Context, receipt *blockchain.DepositReceipt, now uint64) {
	owned, err := s.repo.DepositRefExists(ctx, receipt.Ref)
	if err != nil {
		log.Printf("[Ledger] CRITICAL: deposit %s from %s left in custody, ownership unknown: %v",
			receipt.Ref, receipt.Payer, err)
		return
	}
	if owned {
		log.Printf("[Ledger] Deposit %s already backs a question, not returned", receipt.Ref)
		return
	}

	claim := &models.DepositClaim{
		Ref:       receipt.Ref,
		Payer:     receipt.Payer,
		Amount:    receipt.Amount,
		Status:    models.DepositClaimReversed,
		ClaimedAt: now,
	}
	if err := s.repo.SaveDepositClaim(ctx, claim); err != nil {
		// A supplied reference keeps its pending claim; a generated one
		// cannot be presented again.
		log.Printf("[Ledger] Deposit %s reversal not recorded: %v", receipt.Ref, err)
	}

	if _, err := s.payouts.ReverseDeposit(ctx, receipt); err != nil {
		log.Printf("[Ledger] CRITICAL: deposit %s from %s could not be returned: %v",
			receipt.Ref, receipt.Payer, err)
	}
}

// SubmitAnswer records an answer to an open question.
func (s *LedgerService) SubmitAnswer(
	ctx context.Context,
	caller string,
	questionID uint64,
	req *models.SubmitAnswerRequest,
) (*models.Answer, error) {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller == "" {
		err := reject(KindUnauthorized, CodeUnauthorized, "caller identity required")
		s.observe("submit_answer", started, err)
		return nil, err
	}
	if len(req.Title) > models.MaxTitleLength {
		err := reject(KindInvalidInput, CodeInvalidInput, "title exceeds %d bytes", models.MaxTitleLength)
		s.observe("submit_answer", started, err)
		return nil, err
	}
	now := s.clock.Now()

	var answer *models.Answer
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		state, err := s.loadState(ctx, tx)
		if err != nil {
			return err
		}
		if state.Paused {
			return reject(KindInvalidState, CodeContractPaused, "contract is paused")
		}

		question, err := s.loadQuestion(ctx, tx, questionID)
		if err != nil {
			return err
		}
		if !question.Status.IsOpen() {
			return reject(KindInvalidState, CodeQuestionClosed, "question %d is closed", questionID)
		}
		if now >= question.Deadline {
			return reject(KindTimingViolation, CodeDeadlinePassed,
				"question %d stopped accepting answers at %d", questionID, question.Deadline)
		}
		if caller == question.Creator {
			return reject(KindUnauthorized, CodeSelfAnswerForbidden, "creator cannot answer own question")
		}

		answer = &models.Answer{
			ID:          state.NextAnswerID(),
			QuestionID:  questionID,
			Creator:     caller,
			Title:       req.Title,
			Description: req.Description,
			CreatedAt:   now,
		}
		if err := tx.CreateAnswer(ctx, answer); err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}

		advanced, err := question.RecordAnswer()
		if err != nil {
			return reject(KindInvalidState, CodeQuestionClosed, "question %d is closed", questionID)
		}
		if advanced {
			if err := tx.UpdateQuestion(ctx, question); err != nil {
				return fmt.Errorf("failed to update question status: %w", err)
			}
		}

		if err := tx.SaveLedgerState(ctx, state); err != nil {
			return fmt.Errorf("failed to advance answer counter: %w", err)
		}
		return nil
	})
	s.observe("submit_answer", started, err)
	if err != nil {
		return nil, err
	}

	log.Printf("[Ledger] Answer %d submitted to question %d by %s", answer.ID, questionID, caller)

	event := models.NewLedgerEvent(models.LedgerEventAnswerSubmitted, now)
	event.QuestionID = questionID
	event.AnswerID = answer.ID
	event.Actor = caller
	s.events.Emit(event)

	return answer, nil
}

// ApproveAnswer closes a question after its deadline and pays the locked
// amount to the approved answer's author. Pausing never blocks it.
func (s *LedgerService) ApproveAnswer(
	ctx context.Context,
	caller string,
	questionID uint64,
	answerID uint64,
) (*models.Question, error) {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now()

	var (
		question *models.Question
		answer   *models.Answer
		reopenAs models.QuestionStatus
	)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		question, err = s.loadQuestion(ctx, tx, questionID)
		if err != nil {
			return err
		}
		if caller != question.Creator {
			return reject(KindUnauthorized, CodeUnauthorized, "only the question creator can approve an answer")
		}
		if now < question.Deadline {
			return reject(KindTimingViolation, CodeTooEarly,
				"question %d cannot be approved before %d", questionID, question.Deadline)
		}
		if !question.Status.IsOpen() {
			return reject(KindInvalidState, CodeAlreadyClosed, "question %d is already closed", questionID)
		}

		answer, err = tx.GetAnswerByID(ctx, answerID)
		if errors.Is(err, repository.ErrNotFound) {
			return errAnswerNotFound(answerID)
		}
		if err != nil {
			return fmt.Errorf("failed to get answer: %w", err)
		}
		if answer.QuestionID != questionID {
			return reject(KindMismatch, CodeAnswerMismatch,
				"answer %d belongs to question %d, not %d", answerID, answer.QuestionID, questionID)
		}

		reopenAs = question.Status
		if err := question.Approve(answer.ID); err != nil {
			return reject(KindInvalidState, CodeAlreadyClosed, "question %d is already closed", questionID)
		}
		question.PayoutStatus = models.PayoutPending
		answer.ApprovedByCreator = true

		if err := tx.UpdateQuestion(ctx, question); err != nil {
			return fmt.Errorf("failed to update question: %w", err)
		}
		if err := tx.UpdateAnswer(ctx, answer); err != nil {
			return fmt.Errorf("failed to update answer: %w", err)
		}
		return nil
	})
	if err != nil {
		s.observe("approve_answer", started, err)
		return nil, err
	}

	txRef, err := s.payouts.ReleaseToAnswerer(ctx, question, answer)
	if err != nil && !errors.Is(err, blockchain.ErrTransferUnresolved) {
		s.reopen(ctx, question, answer, reopenAs)
		s.observe("approve_answer", started, err)
		return nil, err
	}
	s.recordPayout(ctx, question, txRef, err)
	s.observe("approve_answer", started, nil)

	log.Printf("[Ledger] Question %d: answer %d approved, %d lamports paid to %s",
		questionID, answerID, question.LockedAmount, answer.Creator)

	event := models.NewLedgerEvent(models.LedgerEventAnswerApproved, now)
	event.QuestionID = questionID
	event.AnswerID = answerID
	event.Actor = caller
	event.Counterparty = answer.Creator
	event.Amount = question.LockedAmount
	event.TxRef = txRef
	s.events.Emit(event)

	return question, nil
}

// RefundQuestion closes a question after its deadline and returns the
// locked amount to its creator. Pausing never blocks it.
func (s *LedgerService) RefundQuestion(
	ctx context.Context,
	caller string,
	questionID uint64,
) (*models.Question, error) {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now()

	var (
		question *models.Question
		reopenAs models.QuestionStatus
	)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		question, err = s.loadQuestion(ctx, tx, questionID)
		if err != nil {
			return err
		}
		if caller != question.Creator {
			return reject(KindUnauthorized, CodeUnauthorized, "only the question creator can request a refund")
		}
		if now < question.Deadline {
			return reject(KindTimingViolation, CodeTooEarly,
				"question %d cannot be refunded before %d", questionID, question.Deadline)
		}

		reopenAs = question.Status
		if err := question.Expire(); err != nil {
			return reject(KindInvalidState, CodeAlreadyClosed, "question %d is already closed", questionID)
		}
		question.PayoutStatus = models.PayoutPending

		if err := tx.UpdateQuestion(ctx, question); err != nil {
			return fmt.Errorf("failed to update question: %w", err)
		}
		return nil
	})
	if err != nil {
		s.observe("refund_question", started, err)
		return nil, err
	}

	txRef, err := s.payouts.RefundToCreator(ctx, question)
	if err != nil && !errors.Is(err, blockchain.ErrTransferUnresolved) {
		s.reopen(ctx, question, nil, reopenAs)
		s.observe("refund_question", started, err)
		return nil, err
	}
	s.recordPayout(ctx, question, txRef, err)
	s.observe("refund_question", started, nil)

	log.Printf("[Ledger] Question %d refunded: %d lamports returned to %s",
		questionID, question.LockedAmount, question.Creator)

	event := models.NewLedgerEvent(models.LedgerEventTokensRefunded, now)
	event.QuestionID = questionID
	event.Actor = caller
	event.Amount = question.LockedAmount
	event.TxRef = txRef
	s.events.Emit(event)

	return question, nil
}

// recordPayout stores the closing transfer. An unresolved transfer still
// leaves the question closed; its reference is kept for reconciliation.
func (s *LedgerService) recordPayout(ctx context.Context, question *models.Question, txRef string, releaseErr error) {
	question.PayoutRef = txRef
	question.PayoutStatus = models.PayoutConfirmed
	if releaseErr != nil {
		question.PayoutStatus = models.PayoutUnconfirmed
		log.Printf("[Ledger] CRITICAL: question %d closed with unconfirmed transfer %s: %v",
			question.ID, txRef, releaseErr)
	}
	if err := s.repo.UpdateQuestion(ctx, question); err != nil {
		log.Printf("[Ledger] CRITICAL: question %d transfer %s not recorded: %v", question.ID, txRef, err)
	}
}

// reopen undoes a settlement whose transfer definitely failed.
func (s *LedgerService) reopen(
	ctx context.Context,
	question *models.Question,
	answer *models.Answer,
	status models.QuestionStatus,
) {
	question.Reopen(status)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.UpdateQuestion(ctx, question); err != nil {
			return err
		}
		if answer != nil {
			answer.ApprovedByCreator = false
			return tx.UpdateAnswer(ctx, answer)
		}
		return nil
	})
	if err != nil {
		log.Printf("[Ledger] CRITICAL: question %d stays closed without a transfer, deposit still in custody: %v",
			question.ID, err)
	}
}

func (s *LedgerService) loadState(ctx context.Context, repo *repository.Repository) (*models.LedgerState, error) {
	state, err := repo.GetLedgerState(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, reject(KindInvalidState, CodeNotInitialized, "ledger has not been initialized")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger state: %w", err)
	}
	return state, nil
}

func (s *LedgerService) loadQuestion(
	ctx context.Context,
	repo *repository.Repository,
	questionID uint64,
) (*models.Question, error) {
	question, err := repo.GetQuestionByID(ctx, questionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errQuestionNotFound(questionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return question, nil
}

func (s *LedgerService) observe(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		var ledgerErr *LedgerError
		if errors.As(err, &ledgerErr) {
			result = ledgerErr.Code
		} else {
			result = "error"
			log.Printf("[Ledger] %s failed: %v", operation, err)
		}
	}
	s.metrics.ObserveOperation(operation, result, started)
}
