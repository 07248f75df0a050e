package blockchain

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"qa-escrow/internal/utils"

	"github.com/google/uuid"
)

// Transfer records one movement performed by the in-memory custodian.
type Transfer struct {
	Ref    string
	From   string
	To     string
	Amount uint64
	Memo   string
}

// EscrowAccount is the pseudo-address of the in-memory escrow.
const EscrowAccount = "escrow"

// MemoryCustodian keeps balances in process. It backs local development and
// tests; nothing it holds survives a restart.
type MemoryCustodian struct {
	mu         sync.Mutex
	balances   map[string]uint64
	escrow     uint64
	usedRefs   map[string]struct{}
	transfers  []Transfer
	releaseErr error
	unresolved bool
}

// NewMemoryCustodian creates an empty in-memory custodian
func NewMemoryCustodian() *MemoryCustodian {
	return &MemoryCustodian{
		balances: make(map[string]uint64),
		usedRefs: make(map[string]struct{}),
	}
}

// Fund credits an address, e.g. to simulate a faucet.
func (m *MemoryCustodian) Fund(addr string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr] += amount
}

// Balance returns the spendable balance of an address
func (m *MemoryCustodian) Balance(addr string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr]
}

// EscrowBalance returns the total held in custody
func (m *MemoryCustodian) EscrowBalance() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrow
}

// Transfers returns a copy of every movement so far
func (m *MemoryCustodian) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}

// FailReleases makes every subsequent Release fail with err. Pass nil to
// restore normal behaviour.
func (m *MemoryCustodian) FailReleases(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseErr = err
}

// LoseReleaseOutcomes makes every subsequent Release move the funds and then
// report ErrTransferUnresolved, as when a confirmation never arrives.
func (m *MemoryCustodian) LoseReleaseOutcomes(lose bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unresolved = lose
}

func (m *MemoryCustodian) ConfirmDeposit(
	ctx context.Context,
	payer string,
	amount uint64,
	ref string,
) (*DepositReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ref == "" {
		ref = uuid.New().String()
	}
	if _, used := m.usedRefs[ref]; used {
		return nil, fmt.Errorf("%w: reference %s already consumed", ErrDepositMismatch, ref)
	}
	if m.balances[payer] < amount {
		return nil, fmt.Errorf("%w: payer %s holds %d lamports, needs %d",
			ErrDepositNotConfirmed, payer, m.balances[payer], amount)
	}

	m.balances[payer] -= amount
	m.escrow += amount
	m.usedRefs[ref] = struct{}{}
	m.transfers = append(m.transfers, Transfer{
		Ref:    ref,
		From:   payer,
		To:     EscrowAccount,
		Amount: amount,
		Memo:   "deposit",
	})

	return &DepositReceipt{Ref: ref, Payer: payer, Amount: amount}, nil
}

func (m *MemoryCustodian) Release(ctx context.Context, to string, amount uint64, memo string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.releaseErr != nil {
		return "", m.releaseErr
	}
	if m.escrow < amount {
		return "", fmt.Errorf("escrow holds %d lamports, cannot release %d", m.escrow, amount)
	}

	ref := uuid.New().String()
	m.escrow -= amount
	m.balances[to] += amount
	m.transfers = append(m.transfers, Transfer{
		Ref:    ref,
		From:   EscrowAccount,
		To:     to,
		Amount: amount,
		Memo:   memo,
	})

	log.Printf("[Custody] Released %d lamports to %s (%s)", amount, to, memo)
	if m.unresolved {
		return ref, fmt.Errorf("%w: transfer %s", ErrTransferUnresolved, ref)
	}
	return ref, nil
}

func (m *MemoryCustodian) ValidateAddress(addr string) bool {
	return isPublicKey(addr)
}

func (m *MemoryCustodian) Diagnostics(ctx context.Context) *CustodyDiagnostics {
	return &CustodyDiagnostics{
		Mode:          "memory",
		RPCConnected:  true,
		EscrowWallet:  EscrowAccount,
		EscrowBalance: utils.LamportsToSOL(m.EscrowBalance()).String(),
		Timestamp:     time.Now().Format(time.RFC3339),
	}
}
