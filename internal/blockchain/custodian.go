package blockchain

import (
	"context"
	"errors"

	"github.com/mr-tron/base58"
)

var (
	// ErrDepositNotConfirmed means the referenced deposit could not be found
	// or has not reached the required confirmation level.
	ErrDepositNotConfirmed = errors.New("deposit not confirmed")
	// ErrDepositMismatch means the deposit exists but does not match the
	// payer, escrow account or amount it was presented for.
	ErrDepositMismatch = errors.New("deposit does not match request")
	// ErrTransferUnresolved means a transfer was broadcast but its outcome
	// is unknown. The funds may have moved.
	ErrTransferUnresolved = errors.New("transfer outcome unknown")
)

// DepositReceipt is the custodian's acknowledgement of a received deposit.
type DepositReceipt struct {
	Ref    string `json:"ref"`
	Payer  string `json:"payer"`
	Amount uint64 `json:"amount"`
}

// CustodyDiagnostics describes the state of the custody backend
type CustodyDiagnostics struct {
	Mode            string `json:"mode"`
	RPCConnected    bool   `json:"rpc_connected"`
	RPCURL          string `json:"rpc_url,omitempty"`
	RPCError        string `json:"rpc_error,omitempty"`
	LatestBlockhash string `json:"latest_blockhash,omitempty"`
	EscrowWallet    string `json:"escrow_wallet,omitempty"`
	EscrowBalance   string `json:"escrow_balance_sol,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// Custodian holds question deposits. Every transfer it performs either fully
// succeeds or fully fails.
type Custodian interface {
	// ConfirmDeposit checks that payer moved at least amount lamports into
	// custody under ref and returns what was actually received.
	ConfirmDeposit(ctx context.Context, payer string, amount uint64, ref string) (*DepositReceipt, error)
	// Release moves amount lamports out of custody to the given address and
	// returns a transfer reference. Any error other than ErrTransferUnresolved
	// means no funds moved; with ErrTransferUnresolved the reference is still
	// returned.
	Release(ctx context.Context, to string, amount uint64, memo string) (string, error)
	// ValidateAddress reports whether addr can receive funds.
	ValidateAddress(addr string) bool
	// Diagnostics reports connectivity and escrow balance.
	Diagnostics(ctx context.Context) *CustodyDiagnostics
}

// isPublicKey reports whether addr is a base58-encoded 32-byte public key.
func isPublicKey(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	raw, err := base58.Decode(addr)
	return err == nil && len(raw) == 32
}
