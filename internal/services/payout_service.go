package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"qa-escrow/internal/blockchain"
	"qa-escrow/internal/metrics"
	"qa-escrow/internal/models"
	"qa-escrow/internal/utils"
)

// Custody movement kinds.
const (
	PayoutKindDeposit  = "deposit"
	PayoutKindApproval = "payout"
	PayoutKindRefund   = "refund"
	PayoutKindReversal = "reversal"
)

// PayoutService is the only component that moves custodied deposits.
type PayoutService struct {
	custodian blockchain.Custodian
	metrics   *metrics.LedgerMetrics
}

func NewPayoutService(custodian blockchain.Custodian, m *metrics.LedgerMetrics) *PayoutService {
	return &PayoutService{
		custodian: custodian,
		metrics:   m,
	}
}

// AcceptDeposit confirms the deposit backing a new question.
func (ps *PayoutService) AcceptDeposit(
	ctx context.Context,
	payer string,
	amount uint64,
	ref string,
) (*blockchain.DepositReceipt, error) {
	receipt, err := ps.custodian.ConfirmDeposit(ctx, payer, amount, ref)
	if err != nil {
		if errors.Is(err, blockchain.ErrDepositNotConfirmed) || errors.Is(err, blockchain.ErrDepositMismatch) {
			return nil, reject(KindInvalidInput, CodeDepositNotConfirmed, "%v", err)
		}
		return nil, fmt.Errorf("failed to confirm deposit: %w", err)
	}

	ps.metrics.ObserveCustody(PayoutKindDeposit, receipt.Amount)
	log.Printf("[Payout] Deposit accepted: %s SOL from %s (ref %s)",
		utils.LamportsToSOL(receipt.Amount), payer, receipt.Ref)
	return receipt, nil
}

// ReleaseToAnswerer pays the question's locked amount to the approved answer's author.
func (ps *PayoutService) ReleaseToAnswerer(
	ctx context.Context,
	question *models.Question,
	answer *models.Answer,
) (string, error) {
	memo := fmt.Sprintf("question %d answer %d approved", question.ID, answer.ID)
	return ps.release(ctx, PayoutKindApproval, answer.Creator, question.LockedAmount, memo)
}

// RefundToCreator returns the question's locked amount to its creator.
func (ps *PayoutService) RefundToCreator(ctx context.Context, question *models.Question) (string, error) {
	memo := fmt.Sprintf("question %d refunded", question.ID)
	return ps.release(ctx, PayoutKindRefund, question.Creator, question.LockedAmount, memo)
}

// ReverseDeposit returns a confirmed deposit whose question could not be recorded.
func (ps *PayoutService) ReverseDeposit(ctx context.Context, receipt *blockchain.DepositReceipt) (string, error) {
	memo := fmt.Sprintf("deposit %s reversed", receipt.Ref)
	return ps.release(ctx, PayoutKindReversal, receipt.Payer, receipt.Amount, memo)
}

// release moves funds out of custody. Cancelling ctx never abandons a
// transfer half way. On ErrTransferUnresolved the reference is returned with
// the error.
func (ps *PayoutService) release(ctx context.Context, kind, to string, amount uint64, memo string) (string, error) {
	ctx = context.WithoutCancel(ctx)
	log.Printf("[Payout] Executing %s: %s SOL to %s (%s)", kind, utils.LamportsToSOL(amount), to, memo)

	txRef, err := ps.custodian.Release(ctx, to, amount, memo)
	if errors.Is(err, blockchain.ErrTransferUnresolved) {
		ps.metrics.ObserveCustody(kind+"_unresolved", amount)
		log.Printf("[Payout] CRITICAL: %s of %d lamports to %s unresolved (tx %s): %v", kind, amount, to, txRef, err)
		return txRef, err
	}
	if err != nil {
		return "", fmt.Errorf("failed to release funds from escrow: %w", err)
	}

	ps.metrics.ObserveCustody(kind, amount)
	log.Printf("[Payout] %s executed successfully: %d lamports to %s (tx %s)", kind, amount, to, txRef)
	return txRef, nil
}
