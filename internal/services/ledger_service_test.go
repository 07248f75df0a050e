package services

import (
	"context"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"qa-escrow/internal/blockchain"
	"qa-escrow/internal/models"
	"qa-escrow/internal/repository"
)

const (
	testStart      uint64 = 1_000
	testMinDeposit uint64 = 100
)

func testAddress(seed byte) string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	return base58.Encode(raw)
}

var (
	owner = testAddress(10)
	alice = testAddress(20)
	bob   = testAddress(30)
	carol = testAddress(40)
)

type testLedger struct {
	db        *gorm.DB
	service   *LedgerService
	custodian *blockchain.MemoryCustodian
	clock     *ManualClock
	events    *MemoryEventSink
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	// Each :memory: connection is its own database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.LedgerState{}, &models.Question{}, &models.Answer{}, &models.DepositClaim{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func setupLedger(t *testing.T) *testLedger {
	db := setupTestDB(t)
	custodian := blockchain.NewMemoryCustodian()
	clock := NewManualClock(testStart)
	events := NewMemoryEventSink(0)

	service := NewLedgerService(
		repository.NewRepository(db),
		custodian,
		clock,
		events,
		nil,
		LedgerOptions{MinDeposit: testMinDeposit},
	)
	if err := service.Initialize(context.Background(), owner); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	custodian.Fund(alice, 1_000)
	custodian.Fund(bob, 1_000)
	custodian.Fund(carol, 1_000)

	return &testLedger{db: db, service: service, custodian: custodian, clock: clock, events: events}
}

func (l *testLedger) post(t *testing.T, caller string, amount, deadline uint64) *models.Question {
	t.Helper()
	q, err := l.service.PostQuestion(context.Background(), caller, &models.PostQuestionRequest{
		Title:         "How do I X?",
		Description:   "Details about X",
		Deadline:      deadline,
		DepositAmount: amount,
	})
	if err != nil {
		t.Fatalf("PostQuestion failed: %v", err)
	}
	return q
}

func (l *testLedger) answer(t *testing.T, caller string, questionID uint64) *models.Answer {
	t.Helper()
	a, err := l.service.SubmitAnswer(context.Background(), caller, questionID, &models.SubmitAnswerRequest{
		Title:       "Do Y",
		Description: "Because Z",
	})
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	return a
}

func expectCode(t *testing.T, err error, kind *LedgerError, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("expected kind %s, got %v", kind.Kind, err)
	}
	var ledgerErr *LedgerError
	if !errors.As(err, &ledgerErr) || ledgerErr.Code != code {
		t.Fatalf("expected code %s, got %v", code, err)
	}
}

func TestApproveAnswerPaysAnswerer(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q := l.post(t, alice, 150, testStart+100)
	if q.ID != 1 {
		t.Errorf("expected question id 1, got %d", q.ID)
	}
	if q.Status != models.QuestionStatusCreated {
		t.Errorf("expected status CREATED, got %s", q.Status)
	}
	if got := l.custodian.EscrowBalance(); got != 150 {
		t.Errorf("expected escrow 150, got %d", got)
	}

	a := l.answer(t, bob, q.ID)
	if a.ID != 1 || a.QuestionID != q.ID {
		t.Errorf("unexpected answer %+v", a)
	}

	q, err := l.service.GetQuestionDetails(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuestionDetails failed: %v", err)
	}
	if q.Status != models.QuestionStatusAnswered {
		t.Errorf("expected status ANSWERED, got %s", q.Status)
	}

	l.clock.Set(testStart + 100)

	q, err = l.service.ApproveAnswer(ctx, alice, q.ID, a.ID)
	if err != nil {
		t.Fatalf("ApproveAnswer failed: %v", err)
	}
	if q.Status != models.QuestionStatusAnswerApproved {
		t.Errorf("expected status ANSWER_APPROVED, got %s", q.Status)
	}
	if q.ApprovedAnswerID == nil || *q.ApprovedAnswerID != a.ID {
		t.Errorf("expected approved answer %d, got %v", a.ID, q.ApprovedAnswerID)
	}

	answers, err := l.service.GetAnswersForQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetAnswersForQuestion failed: %v", err)
	}
	if len(answers) != 1 || !answers[0].ApprovedByCreator {
		t.Errorf("expected the single answer to be approved, got %+v", answers)
	}

	if got := l.custodian.Balance(bob); got != 1_150 {
		t.Errorf("expected bob balance 1150, got %d", got)
	}
	if got := l.custodian.Balance(alice); got != 850 {
		t.Errorf("expected alice balance 850, got %d", got)
	}
	if got := l.custodian.EscrowBalance(); got != 0 {
		t.Errorf("expected empty escrow, got %d", got)
	}

	approved := l.events.OfType(models.LedgerEventAnswerApproved)
	if len(approved) != 1 {
		t.Fatalf("expected 1 answer_approved event, got %d", len(approved))
	}
	if approved[0].Counterparty != bob || approved[0].Amount != 150 {
		t.Errorf("unexpected approval event %+v", approved[0])
	}
}

func TestRefundQuestionWithoutAnswers(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q := l.post(t, alice, 100, testStart+50)

	_, err := l.service.RefundQuestion(ctx, alice, q.ID)
	expectCode(t, err, ErrTimingViolation, CodeTooEarly)

	l.clock.Set(testStart + 60)

	q, err = l.service.RefundQuestion(ctx, alice, q.ID)
	if err != nil {
		t.Fatalf("RefundQuestion failed: %v", err)
	}
	if q.Status != models.QuestionStatusExpired {
		t.Errorf("expected status EXPIRED, got %s", q.Status)
	}
	if got := l.custodian.Balance(alice); got != 1_000 {
		t.Errorf("expected alice balance restored to 1000, got %d", got)
	}

	_, err = l.service.RefundQuestion(ctx, alice, q.ID)
	expectCode(t, err, ErrInvalidState, CodeAlreadyClosed)

	if got := l.custodian.Balance(alice); got != 1_000 {
		t.Errorf("second refund must not pay again, alice has %d", got)
	}
	if n := len(l.events.OfType(models.LedgerEventTokensRefunded)); n != 1 {
		t.Errorf("expected 1 tokens_refunded event, got %d", n)
	}
}

func TestRefundQuestionRequiresCreator(t *testing.T) {
	l := setupLedger(t)
	q := l.post(t, alice, 100, testStart+10)
	l.clock.Set(testStart + 10)

	_, err := l.service.RefundQuestion(context.Background(), bob, q.ID)
	expectCode(t, err, ErrUnauthorized, CodeUnauthorized)
}

func TestSubmitAnswerRejectsCreator(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)
	q := l.post(t, alice, 100, testStart+100)

	_, err := l.service.SubmitAnswer(ctx, alice, q.ID, &models.SubmitAnswerRequest{Title: "self", Description: "answer"})
	expectCode(t, err, ErrUnauthorized, CodeSelfAnswerForbidden)

	total, err := l.service.GetTotalAnswers(ctx)
	if err != nil {
		t.Fatalf("GetTotalAnswers failed: %v", err)
	}
	if total != 0 {
		t.Errorf("rejected answer must not consume an id, counter is %d", total)
	}
}

func TestSubmitAnswerAfterDeadline(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)
	q := l.post(t, alice, 100, testStart+100)

	l.clock.Set(testStart + 100)

	_, err := l.service.SubmitAnswer(ctx, bob, q.ID, &models.SubmitAnswerRequest{Title: "late", Description: "answer"})
	expectCode(t, err, ErrTimingViolation, CodeDeadlinePassed)

	_, err = l.service.SubmitAnswer(ctx, bob, 99, &models.SubmitAnswerRequest{Title: "t", Description: "d"})
	expectCode(t, err, ErrNotFound, CodeNotFound)
}

func TestSubmitAnswerToClosedQuestion(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)
	q := l.post(t, alice, 100, testStart+10)
	l.clock.Set(testStart + 10)

	if _, err := l.service.RefundQuestion(ctx, alice, q.ID); err != nil {
		t.Fatalf("RefundQuestion failed: %v", err)
	}

	_, err := l.service.SubmitAnswer(ctx, bob, q.ID, &models.SubmitAnswerRequest{Title: "t", Description: "d"})
	expectCode(t, err, ErrInvalidState, CodeQuestionClosed)
}

func TestMultipleAnswersKeepQuestionAnswered(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)
	q := l.post(t, alice, 100, testStart+100)

	first := l.answer(t, bob, q.ID)
	second := l.answer(t, carol, q.ID)
	if second.ID != first.ID+1 {
		t.Errorf("expected consecutive answer ids, got %d then %d", first.ID, second.ID)
	}

	q, err := l.service.GetQuestionDetails(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuestionDetails failed: %v", err)
	}
	if q.Status != models.QuestionStatusAnswered {
		t.Errorf("expected status ANSWERED, got %s", q.Status)
	}

	answers, err := l.service.GetAnswersForQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetAnswersForQuestion failed: %v", err)
	}
	if len(answers) != 2 || answers[0].ID != first.ID || answers[1].ID != second.ID {
		t.Errorf("expected answers in submission order, got %+v", answers)
	}
}

func TestPauseBlocksOnlyPostAndSubmit(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	refundable := l.post(t, alice, 100, testStart+10)
	approvable := l.post(t, alice, 200, testStart+10)
	a := l.answer(t, bob, approvable.ID)

	if err := l.service.PauseContract(ctx, owner); err != nil {
		t.Fatalf("PauseContract failed: %v", err)
	}
	paused, err := l.service.IsPaused(ctx)
	if err != nil || !paused {
		t.Fatalf("expected paused ledger, got %t (%v)", paused, err)
	}

	_, err = l.service.PostQuestion(ctx, alice, &models.PostQuestionRequest{
		Title: "t", Description: "d", Deadline: testStart + 100, DepositAmount: 100,
	})
	expectCode(t, err, ErrInvalidState, CodeContractPaused)

	_, err = l.service.SubmitAnswer(ctx, carol, approvable.ID, &models.SubmitAnswerRequest{Title: "t", Description: "d"})
	expectCode(t, err, ErrInvalidState, CodeContractPaused)

	l.clock.Set(testStart + 10)

	if _, err := l.service.RefundQuestion(ctx, alice, refundable.ID); err != nil {
		t.Errorf("refund must work while paused: %v", err)
	}
	if _, err := l.service.ApproveAnswer(ctx, alice, approvable.ID, a.ID); err != nil {
		t.Errorf("approve must work while paused: %v", err)
	}

	if err := l.service.UnpauseContract(ctx, owner); err != nil {
		t.Fatalf("UnpauseContract failed: %v", err)
	}
	l.post(t, alice, 100, testStart+100)
}

func TestApproveAnswerFromAnotherQuestion(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q1 := l.post(t, alice, 100, testStart+10)
	q2 := l.post(t, alice, 100, testStart+10)
	l.answer(t, bob, q1.ID)
	foreign := l.answer(t, carol, q2.ID)

	l.clock.Set(testStart + 10)

	_, err := l.service.ApproveAnswer(ctx, alice, q1.ID, foreign.ID)
	expectCode(t, err, ErrMismatch, CodeAnswerMismatch)

	q1, err = l.service.GetQuestionDetails(ctx, q1.ID)
	if err != nil {
		t.Fatalf("GetQuestionDetails failed: %v", err)
	}
	if q1.Status != models.QuestionStatusAnswered {
		t.Errorf("mismatched approval must leave the question open, got %s", q1.Status)
	}
	if got := l.custodian.EscrowBalance(); got != 200 {
		t.Errorf("expected escrow untouched at 200, got %d", got)
	}
}

func TestApproveAnswerGuards(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q := l.post(t, alice, 100, testStart+10)
	a := l.answer(t, bob, q.ID)

	_, err := l.service.ApproveAnswer(ctx, alice, q.ID, a.ID)
	expectCode(t, err, ErrTimingViolation, CodeTooEarly)

	l.clock.Set(testStart + 10)

	_, err = l.service.ApproveAnswer(ctx, bob, q.ID, a.ID)
	expectCode(t, err, ErrUnauthorized, CodeUnauthorized)

	_, err = l.service.ApproveAnswer(ctx, alice, 42, a.ID)
	expectCode(t, err, ErrNotFound, CodeNotFound)

	_, err = l.service.ApproveAnswer(ctx, alice, q.ID, 42)
	expectCode(t, err, ErrNotFound, CodeNotFound)

	if _, err := l.service.ApproveAnswer(ctx, alice, q.ID, a.ID); err != nil {
		t.Fatalf("ApproveAnswer failed: %v", err)
	}

	_, err = l.service.ApproveAnswer(ctx, alice, q.ID, a.ID)
	expectCode(t, err, ErrInvalidState, CodeAlreadyClosed)

	_, err = l.service.RefundQuestion(ctx, alice, q.ID)
	expectCode(t, err, ErrInvalidState, CodeAlreadyClosed)

	if got := l.custodian.Balance(bob); got != 1_100 {
		t.Errorf("expected a single payout, bob has %d", got)
	}
}

func TestApproveAnswerRollsBackOnFailedRelease(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q := l.post(t, alice, 100, testStart+10)
	a := l.answer(t, bob, q.ID)
	l.clock.Set(testStart + 10)

	l.custodian.FailReleases(errors.New("rpc unavailable"))
	if _, err := l.service.ApproveAnswer(ctx, alice, q.ID, a.ID); err == nil {
		t.Fatal("expected approval to fail when the payout fails")
	}

	q, err := l.service.GetQuestionDetails(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuestionDetails failed: %v", err)
	}
	if q.Status != models.QuestionStatusAnswered || q.ApprovedAnswerID != nil {
		t.Errorf("failed approval must leave the question unchanged, got %+v", q)
	}
	answers, _ := l.service.GetAnswersForQuestion(ctx, q.ID)
	if len(answers) != 1 || answers[0].ApprovedByCreator {
		t.Errorf("failed approval must leave the answer unapproved, got %+v", answers)
	}
	if got := l.custodian.EscrowBalance(); got != 100 {
		t.Errorf("expected escrow still holding 100, got %d", got)
	}
	if n := len(l.events.OfType(models.LedgerEventAnswerApproved)); n != 0 {
		t.Errorf("no event expected for a failed approval, got %d", n)
	}

	l.custodian.FailReleases(nil)
	if _, err := l.service.ApproveAnswer(ctx, alice, q.ID, a.ID); err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
	if got := l.custodian.Balance(bob); got != 1_100 {
		t.Errorf("expected bob balance 1100, got %d", got)
	}
}

func TestPostQuestionValidation(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	cases := []struct {
		name string
		req  models.PostQuestionRequest
		kind *LedgerError
		code string
	}{
		{
			name: "below minimum deposit",
			req:  models.PostQuestionRequest{Title: "t", Description: "d", Deadline: testStart + 10, DepositAmount: testMinDeposit - 1},
			kind: ErrInvalidInput,
			code: CodeInsufficientDeposit,
		},
		{
			name: "empty title",
			req:  models.PostQuestionRequest{Title: "  ", Description: "d", Deadline: testStart + 10, DepositAmount: testMinDeposit},
			kind: ErrInvalidInput,
			code: CodeInvalidInput,
		},
		{
			name: "empty description",
			req:  models.PostQuestionRequest{Title: "t", Description: "", Deadline: testStart + 10, DepositAmount: testMinDeposit},
			kind: ErrInvalidInput,
			code: CodeInvalidInput,
		},
		{
			name: "deadline now",
			req:  models.PostQuestionRequest{Title: "t", Description: "d", Deadline: testStart, DepositAmount: testMinDeposit},
			kind: ErrInvalidInput,
			code: CodeInvalidDeadline,
		},
		{
			name: "deposit exceeds balance",
			req:  models.PostQuestionRequest{Title: "t", Description: "d", Deadline: testStart + 10, DepositAmount: 5_000},
			kind: ErrInvalidInput,
			code: CodeDepositNotConfirmed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := l.service.PostQuestion(ctx, alice, &req)
			expectCode(t, err, tc.kind, tc.code)
		})
	}

	total, err := l.service.GetTotalQuestions(ctx)
	if err != nil {
		t.Fatalf("GetTotalQuestions failed: %v", err)
	}
	if total != 0 {
		t.Errorf("rejected posts must not consume ids, counter is %d", total)
	}
	if got := l.custodian.Balance(alice); got != 1_000 {
		t.Errorf("rejected posts must not move funds, alice has %d", got)
	}
}

func TestPostQuestionRejectsReusedDeposit(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	req := &models.PostQuestionRequest{
		Title: "t", Description: "d", Deadline: testStart + 10, DepositAmount: 100, DepositSignature: "sig-1",
	}
	if _, err := l.service.PostQuestion(ctx, alice, req); err != nil {
		t.Fatalf("PostQuestion failed: %v", err)
	}

	_, err := l.service.PostQuestion(ctx, alice, req)
	expectCode(t, err, ErrInvalidInput, CodeDepositAlreadyUsed)
}

func TestPostQuestionReversesDepositWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	failQuestionInserts(t, l.db)

	_, err := l.service.PostQuestion(ctx, alice, &models.PostQuestionRequest{
		Title: "t", Description: "d", Deadline: testStart + 10, DepositAmount: 100,
	})
	if err == nil {
		t.Fatal("expected PostQuestion to fail when the question cannot be stored")
	}

	if got := l.custodian.Balance(alice); got != 1_000 {
		t.Errorf("expected deposit returned to alice, balance %d", got)
	}
	if got := l.custodian.EscrowBalance(); got != 0 {
		t.Errorf("expected empty escrow, got %d", got)
	}
	total, err := l.service.GetTotalQuestions(ctx)
	if err != nil {
		t.Fatalf("GetTotalQuestions failed: %v", err)
	}
	if total != 0 {
		t.Errorf("failed post must not consume an id, counter is %d", total)
	}
}

func TestEscrowMatchesOpenQuestions(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q1 := l.post(t, alice, 100, testStart+10)
	q2 := l.post(t, bob, 250, testStart+20)
	q3 := l.post(t, carol, 400, testStart+30)
	a := l.answer(t, carol, q1.ID)

	l.clock.Set(testStart + 20)
	if _, err := l.service.ApproveAnswer(ctx, alice, q1.ID, a.ID); err != nil {
		t.Fatalf("ApproveAnswer failed: %v", err)
	}
	if _, err := l.service.RefundQuestion(ctx, bob, q2.ID); err != nil {
		t.Fatalf("RefundQuestion failed: %v", err)
	}

	var locked uint64
	for _, status := range models.OpenQuestionStatuses {
		open, err := l.service.GetQuestionsByStatus(ctx, status)
		if err != nil {
			t.Fatalf("GetQuestionsByStatus failed: %v", err)
		}
		for _, q := range open {
			locked += q.LockedAmount
		}
	}
	if locked != q3.LockedAmount {
		t.Errorf("expected only question %d locked, got %d lamports", q3.ID, locked)
	}
	if got := l.custodian.EscrowBalance(); got != locked {
		t.Errorf("escrow %d does not match open deposits %d", got, locked)
	}
}

func TestQuestionQueries(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q1 := l.post(t, alice, 100, testStart+10)
	q2 := l.post(t, bob, 100, testStart+100)
	q3 := l.post(t, alice, 100, testStart+200)
	l.answer(t, carol, q2.ID)

	l.clock.Set(testStart + 50)

	open, err := l.service.GetAllOpenQuestions(ctx)
	if err != nil {
		t.Fatalf("GetAllOpenQuestions failed: %v", err)
	}
	if len(open) != 2 || open[0].ID != q2.ID || open[1].ID != q3.ID {
		t.Errorf("expected open questions [%d %d], got %+v", q2.ID, q3.ID, open)
	}

	expired, err := l.service.GetExpiredQuestions(ctx)
	if err != nil {
		t.Fatalf("GetExpiredQuestions failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != q1.ID {
		t.Errorf("expected overdue question %d, got %+v", q1.ID, expired)
	}
	if got := expired[0].DisplayStatus(l.service.Now()); got != models.QuestionStatusExpired {
		t.Errorf("expected overdue question displayed as EXPIRED, got %s", got)
	}

	answered, err := l.service.GetQuestionsByStatus(ctx, models.QuestionStatusAnswered)
	if err != nil {
		t.Fatalf("GetQuestionsByStatus failed: %v", err)
	}
	if len(answered) != 1 || answered[0].ID != q2.ID {
		t.Errorf("expected answered question %d, got %+v", q2.ID, answered)
	}

	mine, err := l.service.GetQuestionsByCreator(ctx, alice)
	if err != nil {
		t.Fatalf("GetQuestionsByCreator failed: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != q1.ID || mine[1].ID != q3.ID {
		t.Errorf("expected alice's questions [%d %d], got %+v", q1.ID, q3.ID, mine)
	}

	_, err = l.service.GetQuestionDetails(ctx, 99)
	expectCode(t, err, ErrNotFound, CodeNotFound)

	_, err = l.service.GetAnswersForQuestion(ctx, 99)
	expectCode(t, err, ErrNotFound, CodeNotFound)

	stats, err := l.service.GetContractStats(ctx)
	if err != nil {
		t.Fatalf("GetContractStats failed: %v", err)
	}
	if stats.TotalQuestions != 3 || stats.TotalAnswers != 1 || stats.Paused {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestOwnerOperations(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	err := l.service.PauseContract(ctx, alice)
	expectCode(t, err, ErrUnauthorized, CodeUnauthorized)

	err = l.service.TransferOwnership(ctx, owner, "not-an-address")
	expectCode(t, err, ErrInvalidInput, CodeInvalidInput)

	if err := l.service.TransferOwnership(ctx, owner, alice); err != nil {
		t.Fatalf("TransferOwnership failed: %v", err)
	}
	got, err := l.service.GetOwner(ctx)
	if err != nil {
		t.Fatalf("GetOwner failed: %v", err)
	}
	if got != alice {
		t.Errorf("expected owner %s, got %s", alice, got)
	}

	err = l.service.PauseContract(ctx, owner)
	expectCode(t, err, ErrUnauthorized, CodeUnauthorized)

	if err := l.service.PauseContract(ctx, alice); err != nil {
		t.Fatalf("new owner could not pause: %v", err)
	}

	transfers := l.events.OfType(models.LedgerEventOwnershipTransferred)
	if len(transfers) != 1 || transfers[0].Actor != owner || transfers[0].Counterparty != alice {
		t.Errorf("unexpected ownership events %+v", transfers)
	}
}

func TestInitializeKeepsExistingOwner(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	if err := l.service.Initialize(ctx, alice); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	got, err := l.service.GetOwner(ctx)
	if err != nil {
		t.Fatalf("GetOwner failed: %v", err)
	}
	if got != owner {
		t.Errorf("expected owner to stay %s, got %s", owner, got)
	}
}

func TestUninitializedLedger(t *testing.T) {
	ctx := context.Background()
	service := NewLedgerService(
		repository.NewRepository(setupTestDB(t)),
		blockchain.NewMemoryCustodian(),
		NewManualClock(testStart),
		nil,
		nil,
		LedgerOptions{MinDeposit: testMinDeposit},
	)

	_, err := service.GetOwner(ctx)
	expectCode(t, err, ErrInvalidState, CodeNotInitialized)
}
