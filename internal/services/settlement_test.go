package services

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"gorm.io/gorm"

	"qa-escrow/internal/blockchain"
	"qa-escrow/internal/blockchain/solanatest"
	"qa-escrow/internal/models"
	"qa-escrow/internal/repository"
)

// failQuestionInserts makes every question insert abort until the returned
// func is called.
func failQuestionInserts(t *testing.T, db *gorm.DB) func() {
	t.Helper()
	err := db.Exec(`CREATE TRIGGER fail_question_insert BEFORE INSERT ON questions
		BEGIN SELECT RAISE(ABORT, 'questions unavailable'); END`).Error
	if err != nil {
		t.Fatalf("failed to install trigger: %v", err)
	}
	return func() {
		if err := db.Exec(`DROP TRIGGER fail_question_insert`).Error; err != nil {
			t.Fatalf("failed to drop trigger: %v", err)
		}
	}
}

type solanaLedger struct {
	db      *gorm.DB
	repo    *repository.Repository
	service *LedgerService
	clock   *ManualClock
	node    *solanatest.Server
	escrow  solana.PublicKey
	payer   solana.PublicKey
}

func setupSolanaLedger(t *testing.T) *solanaLedger {
	t.Helper()
	db := setupTestDB(t)
	node := solanatest.NewServer(t)
	escrow := solana.NewWallet()

	client := blockchain.NewSolanaClient("localnet", node.URL, escrow.PrivateKey.String())
	client.SetConfirmationTiming(5*time.Millisecond, 300*time.Millisecond)

	repo := repository.NewRepository(db)
	clock := NewManualClock(testStart)
	service := NewLedgerService(
		repo,
		blockchain.NewSolanaCustodian(client),
		clock,
		NewMemoryEventSink(0),
		nil,
		LedgerOptions{MinDeposit: testMinDeposit},
	)
	if err := service.Initialize(context.Background(), owner); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	return &solanaLedger{
		db:      db,
		repo:    repo,
		service: service,
		clock:   clock,
		node:    node,
		escrow:  escrow.PublicKey(),
		payer:   solana.NewWallet().PublicKey(),
	}
}

func (l *solanaLedger) deposit(t *testing.T, lamports uint64) *models.PostQuestionRequest {
	t.Helper()
	return &models.PostQuestionRequest{
		Title:            "How do I X?",
		Description:      "Details about X",
		Deadline:         testStart + 10,
		DepositAmount:    lamports,
		DepositSignature: l.node.AddTransfer(t, l.payer, l.escrow, lamports),
	}
}

func TestPostQuestionRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	posted, err := l.service.PostQuestion(ctx, alice, &models.PostQuestionRequest{
		Title:            "How do I X?",
		Description:      "Details about X",
		Deadline:         testStart + 50,
		DepositAmount:    150,
		DepositSignature: "deposit-1",
	})
	if err != nil {
		t.Fatalf("PostQuestion failed: %v", err)
	}

	stored, err := l.service.GetQuestionDetails(ctx, posted.ID)
	if err != nil {
		t.Fatalf("GetQuestionDetails failed: %v", err)
	}
	if !reflect.DeepEqual(posted, stored) {
		t.Errorf("stored question differs from the posted one:\nposted %+v\nstored %+v", posted, stored)
	}
	if stored.CreatedAt != testStart || stored.LockedAmount != 150 || stored.DepositRef != "deposit-1" {
		t.Errorf("unexpected stored fields %+v", stored)
	}
	if stored.ApprovedAnswerID != nil {
		t.Errorf("expected no approved answer, got %d", *stored.ApprovedAnswerID)
	}
	if stored.PayoutStatus != "" || stored.PayoutRef != "" {
		t.Errorf("an open question must not carry a payout, got %s / %q", stored.PayoutStatus, stored.PayoutRef)
	}
}

func TestPostQuestionRejectsLongFieldsBeforeDeposit(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	cases := []struct {
		name string
		req  models.PostQuestionRequest
	}{
		{
			name: "title",
			req: models.PostQuestionRequest{
				Title: strings.Repeat("x", models.MaxTitleLength+1), Description: "d",
				Deadline: testStart + 10, DepositAmount: 100, DepositSignature: "long-title",
			},
		},
		{
			name: "deposit signature",
			req: models.PostQuestionRequest{
				Title: "t", Description: "d", Deadline: testStart + 10, DepositAmount: 100,
				DepositSignature: strings.Repeat("s", models.MaxDepositRefLength+1),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := l.service.PostQuestion(ctx, alice, &req)
			expectCode(t, err, ErrInvalidInput, CodeInvalidInput)

			if _, err := repository.NewRepository(l.db).GetDepositClaim(ctx, req.DepositSignature); err == nil {
				t.Error("a rejected post must not claim its deposit")
			}
		})
	}

	if got := l.custodian.Balance(alice); got != 1_000 {
		t.Errorf("rejected posts must not move funds, alice has %d", got)
	}
	if n := len(l.custodian.Transfers()); n != 0 {
		t.Errorf("expected no custody movements, got %d", n)
	}
}

func TestPostQuestionReturnedDepositCannotBeReplayed(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	req := &models.PostQuestionRequest{
		Title: "t", Description: "d", Deadline: testStart + 10, DepositAmount: 100, DepositSignature: "deposit-1",
	}

	restore := failQuestionInserts(t, l.db)
	if _, err := l.service.PostQuestion(ctx, alice, req); err == nil {
		t.Fatal("expected PostQuestion to fail when the question cannot be stored")
	}
	restore()

	if got := l.custodian.Balance(alice); got != 1_000 {
		t.Fatalf("expected deposit returned to alice, balance %d", got)
	}

	_, err := l.service.PostQuestion(ctx, alice, req)
	expectCode(t, err, ErrInvalidInput, CodeDepositAlreadyUsed)

	claim, err := repository.NewRepository(l.db).GetDepositClaim(ctx, "deposit-1")
	if err != nil {
		t.Fatalf("GetDepositClaim failed: %v", err)
	}
	if claim.Status != models.DepositClaimReversed || claim.QuestionID != nil {
		t.Errorf("expected a reversed claim without a question, got %+v", claim)
	}
}

func TestSolanaReturnedDepositCannotBeReplayed(t *testing.T) {
	ctx := context.Background()
	l := setupSolanaLedger(t)
	req := l.deposit(t, 200)

	restore := failQuestionInserts(t, l.db)
	if _, err := l.service.PostQuestion(ctx, l.payer.String(), req); err == nil {
		t.Fatal("expected PostQuestion to fail when the question cannot be stored")
	}
	restore()

	sent := l.node.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected the deposit to be returned once, got %d transfers", len(sent))
	}
	if sent[0].From != l.escrow.String() || sent[0].To != l.payer.String() || sent[0].Lamports != 200 {
		t.Errorf("unexpected return transfer %+v", sent[0])
	}

	_, err := l.service.PostQuestion(ctx, l.payer.String(), req)
	expectCode(t, err, ErrInvalidInput, CodeDepositAlreadyUsed)

	if n := len(l.node.Sent()); n != 1 {
		t.Errorf("a replayed deposit must not be returned again, got %d transfers", n)
	}
	total, err := l.service.GetTotalQuestions(ctx)
	if err != nil {
		t.Fatalf("GetTotalQuestions failed: %v", err)
	}
	if total != 0 {
		t.Errorf("a replayed deposit must not back a question, counter is %d", total)
	}

	claim, err := l.repo.GetDepositClaim(ctx, req.DepositSignature)
	if err != nil {
		t.Fatalf("GetDepositClaim failed: %v", err)
	}
	if claim.Status != models.DepositClaimReversed {
		t.Errorf("expected claim REVERSED, got %s", claim.Status)
	}
}

func TestSolanaDepositBacksOneQuestion(t *testing.T) {
	ctx := context.Background()
	l := setupSolanaLedger(t)
	req := l.deposit(t, 200)

	q, err := l.service.PostQuestion(ctx, l.payer.String(), req)
	if err != nil {
		t.Fatalf("PostQuestion failed: %v", err)
	}
	if q.DepositRef != req.DepositSignature || q.LockedAmount != 200 {
		t.Errorf("unexpected question %+v", q)
	}

	_, err = l.service.PostQuestion(ctx, l.payer.String(), req)
	expectCode(t, err, ErrInvalidInput, CodeDepositAlreadyUsed)

	claim, err := l.repo.GetDepositClaim(ctx, req.DepositSignature)
	if err != nil {
		t.Fatalf("GetDepositClaim failed: %v", err)
	}
	if claim.Status != models.DepositClaimConsumed || claim.QuestionID == nil || *claim.QuestionID != q.ID {
		t.Errorf("expected claim consumed by question %d, got %+v", q.ID, claim)
	}
}

func TestSolanaApprovalSurvivesCaller(t *testing.T) {
	cases := []struct {
		name    string
		outcome solanatest.SendOutcome
		cancel  bool
	}{
		{name: "caller cancelled after broadcast", outcome: solanatest.Land, cancel: true},
		{name: "send response lost", outcome: solanatest.DropResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := setupSolanaLedger(t)
			creator := l.payer.String()

			q, err := l.service.PostQuestion(context.Background(), creator, l.deposit(t, 300))
			if err != nil {
				t.Fatalf("PostQuestion failed: %v", err)
			}
			a, err := l.service.SubmitAnswer(context.Background(), bob, q.ID, &models.SubmitAnswerRequest{
				Title: "Do Y", Description: "Because Z",
			})
			if err != nil {
				t.Fatalf("SubmitAnswer failed: %v", err)
			}
			l.clock.Set(testStart + 10)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tc.cancel {
				l.node.OnSend(cancel)
			}
			l.node.SetSendOutcome(tc.outcome)

			approved, err := l.service.ApproveAnswer(ctx, creator, q.ID, a.ID)
			if err != nil {
				t.Fatalf("ApproveAnswer must not fail once the payout is sent: %v", err)
			}

			sent := l.node.Sent()
			if len(sent) != 1 || sent[0].To != bob || sent[0].Lamports != 300 {
				t.Fatalf("expected one payout of 300 to bob, got %+v", sent)
			}
			if approved.Status != models.QuestionStatusAnswerApproved ||
				approved.PayoutStatus != models.PayoutConfirmed || approved.PayoutRef != sent[0].Signature {
				t.Errorf("unexpected settlement %s / %s / %q", approved.Status, approved.PayoutStatus, approved.PayoutRef)
			}

			stored, err := l.service.GetQuestionDetails(context.Background(), q.ID)
			if err != nil {
				t.Fatalf("GetQuestionDetails failed: %v", err)
			}
			if !reflect.DeepEqual(approved, stored) {
				t.Errorf("stored settlement differs:\nreturned %+v\nstored   %+v", approved, stored)
			}

			_, err = l.service.RefundQuestion(context.Background(), creator, q.ID)
			expectCode(t, err, ErrInvalidState, CodeAlreadyClosed)
			if n := len(l.node.Sent()); n != 1 {
				t.Errorf("a settled question must not pay twice, got %d transfers", n)
			}
		})
	}
}

func TestUnconfirmedPayoutStaysClosed(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q := l.post(t, alice, 100, testStart+10)
	a := l.answer(t, bob, q.ID)
	l.clock.Set(testStart + 10)

	l.custodian.LoseReleaseOutcomes(true)
	approved, err := l.service.ApproveAnswer(ctx, alice, q.ID, a.ID)
	if err != nil {
		t.Fatalf("ApproveAnswer must succeed when the outcome is unknown: %v", err)
	}
	if approved.Status != models.QuestionStatusAnswerApproved || approved.PayoutStatus != models.PayoutUnconfirmed {
		t.Errorf("expected approved with an unconfirmed payout, got %s / %s", approved.Status, approved.PayoutStatus)
	}
	if approved.PayoutRef == "" {
		t.Error("expected the transfer reference to be recorded")
	}

	unsettled, err := l.service.GetUnsettledPayouts(ctx)
	if err != nil {
		t.Fatalf("GetUnsettledPayouts failed: %v", err)
	}
	if len(unsettled) != 1 || unsettled[0].ID != q.ID || unsettled[0].PayoutRef != approved.PayoutRef {
		t.Errorf("expected question %d listed as unsettled, got %+v", q.ID, unsettled)
	}

	l.custodian.LoseReleaseOutcomes(false)
	_, err = l.service.RefundQuestion(ctx, alice, q.ID)
	expectCode(t, err, ErrInvalidState, CodeAlreadyClosed)

	if got := l.custodian.Balance(bob); got != 1_100 {
		t.Errorf("expected bob paid once, balance %d", got)
	}
	if got := l.custodian.Balance(alice); got != 900 {
		t.Errorf("expected no refund to alice, balance %d", got)
	}
}

func TestFailedRefundReopensQuestion(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t)

	q := l.post(t, alice, 100, testStart+10)
	l.clock.Set(testStart + 10)

	l.custodian.FailReleases(blockchain.ErrNoServerWallet)
	if _, err := l.service.RefundQuestion(ctx, alice, q.ID); err == nil {
		t.Fatal("expected the refund to fail")
	}

	stored, err := l.service.GetQuestionDetails(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuestionDetails failed: %v", err)
	}
	if stored.Status != models.QuestionStatusCreated || stored.PayoutStatus != "" {
		t.Errorf("expected the question reopened, got %s / %s", stored.Status, stored.PayoutStatus)
	}
	unsettled, err := l.service.GetUnsettledPayouts(ctx)
	if err != nil {
		t.Fatalf("GetUnsettledPayouts failed: %v", err)
	}
	if len(unsettled) != 0 {
		t.Errorf("a reopened question is not an unsettled payout, got %d", len(unsettled))
	}

	l.custodian.FailReleases(nil)
	refunded, err := l.service.RefundQuestion(ctx, alice, q.ID)
	if err != nil {
		t.Fatalf("retry after recovery failed: %v", err)
	}
	if refunded.PayoutStatus != models.PayoutConfirmed {
		t.Errorf("expected a confirmed refund, got %s", refunded.PayoutStatus)
	}
	if got := l.custodian.Balance(alice); got != 1_000 {
		t.Errorf("expected alice refunded to 1000, got %d", got)
	}
}
