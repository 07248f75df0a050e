package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
)

// SolanaCustodian keeps deposits in the escrow wallet on Solana
type SolanaCustodian struct {
	client *SolanaClient
}

// NewSolanaCustodian creates a custodian backed by the escrow wallet of client
func NewSolanaCustodian(client *SolanaClient) *SolanaCustodian {
	return &SolanaCustodian{client: client}
}

// ConfirmDeposit verifies that ref is a confirmed transaction moving at least
// amount lamports from payer to the escrow wallet. It keeps no record of
// refs it has confirmed; callers claim refs before confirming them.
func (c *SolanaCustodian) ConfirmDeposit(
	ctx context.Context,
	payer string,
	amount uint64,
	ref string,
) (*DepositReceipt, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: deposit signature required", ErrDepositNotConfirmed)
	}
	if _, err := solana.SignatureFromBase58(ref); err != nil {
		return nil, fmt.Errorf("%w: malformed deposit signature: %v", ErrDepositNotConfirmed, err)
	}

	escrow, err := c.client.EscrowPublicKey()
	if err != nil {
		return nil, err
	}

	details, err := c.client.VerifyTransaction(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to verify deposit: %w", err)
	}
	if details == nil {
		return nil, fmt.Errorf("%w: %s", ErrDepositNotConfirmed, ref)
	}

	received := details.TransferredBetween(payer, escrow.String())
	if received == 0 {
		return nil, fmt.Errorf("%w: %s moves nothing from %s to the escrow wallet", ErrDepositMismatch, ref, payer)
	}
	if received < amount {
		return nil, fmt.Errorf("%w: received %d lamports, expected %d", ErrDepositMismatch, received, amount)
	}

	log.Printf("[Custody] Deposit %s confirmed: %d lamports from %s", ref, received, payer)

	return &DepositReceipt{
		Ref:    ref,
		Payer:  payer,
		Amount: received,
	}, nil
}

// Release transfers lamports from the escrow wallet to the given address
func (c *SolanaCustodian) Release(ctx context.Context, to string, amount uint64, memo string) (string, error) {
	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %s: %w", to, err)
	}

	log.Printf("[Custody] Releasing %d lamports to %s (%s)", amount, to, memo)

	sig, err := c.client.TransferLamports(ctx, recipient, amount)
	if errors.Is(err, ErrTransferUnresolved) {
		return sig.String(), err
	}
	if err != nil {
		return "", fmt.Errorf("failed to release funds: %w", err)
	}
	return sig.String(), nil
}

func (c *SolanaCustodian) ValidateAddress(addr string) bool {
	return c.client.ValidateWalletAddress(addr)
}

func (c *SolanaCustodian) Diagnostics(ctx context.Context) *CustodyDiagnostics {
	return c.client.RunDiagnostics(ctx)
}
