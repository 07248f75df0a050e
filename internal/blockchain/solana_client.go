package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"

	"qa-escrow/internal/utils"
)

// ErrNoServerWallet is returned when an operation needs the escrow keypair
// but none was configured.
var ErrNoServerWallet = errors.New("escrow wallet not configured")

// SolanaClient handles Solana blockchain interactions
type SolanaClient struct {
	rpcClient    *rpc.Client
	rpcURL       string
	network      string
	serverWallet *solana.Wallet

	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// RPCURLForNetwork returns the public RPC endpoint of a cluster
func RPCURLForNetwork(network string) string {
	switch network {
	case "mainnet-beta":
		return rpc.MainNetBeta_RPC
	case "testnet":
		return rpc.TestNet_RPC
	case "localnet":
		return rpc.LocalNet_RPC
	default:
		return rpc.DevNet_RPC
	}
}

// NewSolanaClient creates a new Solana client. An empty rpcURL selects the
// public endpoint of the network.
func NewSolanaClient(network, rpcURL, privateKey string) *SolanaClient {
	if rpcURL == "" {
		rpcURL = RPCURLForNetwork(network)
	}

	client := &SolanaClient{
		rpcClient:      rpc.New(rpcURL),
		rpcURL:         rpcURL,
		network:        network,
		pollInterval:   2 * time.Second,
		confirmTimeout: 2 * time.Minute,
	}

	// Initialize server wallet if private key is provided
	if privateKey != "" {
		wallet, err := solana.WalletFromPrivateKeyBase58(privateKey)
		if err != nil {
			log.Printf("Warning: Failed to load escrow wallet: %v", err)
		} else {
			client.serverWallet = wallet
			log.Printf("Escrow wallet loaded: %s", wallet.PublicKey())
		}
	}

	return client
}

// SetConfirmationTiming changes how often a sent transfer is polled and how
// long to wait before reporting its outcome as unknown.
func (s *SolanaClient) SetConfirmationTiming(poll, timeout time.Duration) {
	s.pollInterval = poll
	s.confirmTimeout = timeout
}

// EscrowPublicKey returns the public key deposits must be sent to
func (s *SolanaClient) EscrowPublicKey() (solana.PublicKey, error) {
	if s.serverWallet == nil {
		return solana.PublicKey{}, ErrNoServerWallet
	}
	return s.serverWallet.PublicKey(), nil
}

// SendTransaction sends a signed transaction to the network
func (s *SolanaClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := s.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// GetRecentBlockhash gets the latest blockhash
func (s *SolanaClient) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	resp, err := s.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	return resp.Value.Blockhash, nil
}

// ValidateWalletAddress validates a Solana wallet address format
func (s *SolanaClient) ValidateWalletAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// GetSOLBalance gets the SOL balance for a wallet
func (s *SolanaClient) GetSOLBalance(ctx context.Context, walletAddress string) (decimal.Decimal, error) {
	pubKey, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := s.rpcClient.GetBalance(ctx, pubKey, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, err
	}

	return utils.LamportsToSOL(balance.Value), nil
}

// SystemTransfer is one system-program transfer inside a transaction
type SystemTransfer struct {
	From     string
	To       string
	Lamports uint64
}

// TransactionDetails holds the parsed details of a verified transaction
type TransactionDetails struct {
	Signature string
	Transfers []SystemTransfer
	Confirmed bool
}

// TransferredBetween sums the lamports moved from one account to another.
func (d *TransactionDetails) TransferredBetween(from, to string) uint64 {
	var total uint64
	for _, t := range d.Transfers {
		if t.From == from && t.To == to {
			total += t.Lamports
		}
	}
	return total
}

// VerifyTransaction verifies that a transaction is confirmed and returns the
// system transfers it executed. A nil result with a nil error means the
// transaction is not (yet) confirmed.
func (s *SolanaClient) VerifyTransaction(ctx context.Context, txHash string) (*TransactionDetails, error) {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	status, err := s.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}

	if len(status.Value) == 0 || status.Value[0] == nil {
		return nil, nil
	}

	if status.Value[0].Err != nil {
		log.Printf("Transaction %s failed with error: %v", txHash, status.Value[0].Err)
		return nil, fmt.Errorf("transaction execution failed")
	}

	confStatus := status.Value[0].ConfirmationStatus
	if confStatus != rpc.ConfirmationStatusConfirmed && confStatus != rpc.ConfirmationStatusFinalized {
		return nil, nil
	}

	tx, err := s.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction details: %w", err)
	}
	if tx.Meta == nil || tx.Transaction == nil {
		return nil, fmt.Errorf("transaction %s has no metadata", txHash)
	}
	if tx.Meta.Err != nil {
		return nil, fmt.Errorf("transaction execution failed")
	}

	transaction, err := tx.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	transfers, err := systemTransfers(transaction)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txHash, err)
	}

	return &TransactionDetails{
		Signature: txHash,
		Transfers: transfers,
		Confirmed: true,
	}, nil
}

// systemTransfers decodes every system-program transfer instruction.
// Instructions of other programs are skipped.
func systemTransfers(tx *solana.Transaction) ([]SystemTransfer, error) {
	var out []SystemTransfer
	for i := range tx.Message.Instructions {
		compiled := &tx.Message.Instructions[i]

		programID, err := tx.Message.ResolveProgramIDIndex(compiled.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		if !programID.Equals(solana.SystemProgramID) {
			continue
		}

		accounts, err := compiled.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		decoded, err := system.DecodeInstruction(accounts, compiled.Data)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}

		transfer, ok := decoded.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil || len(transfer.AccountMetaSlice) < 2 {
			continue
		}
		out = append(out, SystemTransfer{
			From:     transfer.GetFundingAccount().PublicKey.String(),
			To:       transfer.GetRecipientAccount().PublicKey.String(),
			Lamports: *transfer.Lamports,
		})
	}
	return out, nil
}

// TransferLamports signs a system transfer from the escrow wallet and waits
// until it is confirmed or can no longer land.
//
// A returned error wrapping ErrTransferUnresolved carries the signature: the
// transfer may still land. Any other error means it never will.
func (s *SolanaClient) TransferLamports(ctx context.Context, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	if s.serverWallet == nil {
		return solana.Signature{}, ErrNoServerWallet
	}
	from := s.serverWallet.PublicKey()

	blockhash, err := s.GetRecentBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transfer: %w", err)
	}

	signatures, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &s.serverWallet.PrivateKey
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transfer: %w", err)
	}
	sig := signatures[0]

	if _, err := s.SendTransaction(ctx, tx); err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			// The node refused it; nothing was broadcast.
			return solana.Signature{}, err
		}
		log.Printf("[Custody] Transfer %s may have been broadcast: %v", sig, err)
	}

	if err := s.waitForConfirmation(ctx, sig, blockhash); err != nil {
		return sig, err
	}
	return sig, nil
}

// waitForConfirmation polls until sig is confirmed, fails, or its blockhash
// expires. Once the blockhash is invalid the transfer can never land.
func (s *SolanaClient) waitForConfirmation(ctx context.Context, sig solana.Signature, blockhash solana.Hash) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(s.confirmTimeout)
	defer timeout.Stop()

	for {
		landed, err := s.transferStatus(ctx, sig, false)
		if err != nil || landed {
			return err
		}

		valid, err := s.rpcClient.IsBlockhashValid(ctx, blockhash, rpc.CommitmentProcessed)
		if err == nil && !valid.Value {
			// It may have landed between the two calls.
			landed, err := s.transferStatus(ctx, sig, true)
			if err != nil || landed {
				return err
			}
			return fmt.Errorf("transfer %s expired before confirmation", sig)
		}

		select {
		case <-ctx.Done():
			log.Printf("[Custody] CRITICAL: transfer %s outcome unknown: %v", sig, ctx.Err())
			return fmt.Errorf("%w: transfer %s: %v", ErrTransferUnresolved, sig, ctx.Err())
		case <-timeout.C:
			log.Printf("[Custody] CRITICAL: transfer %s unconfirmed after %s", sig, s.confirmTimeout)
			return fmt.Errorf("%w: transfer %s unconfirmed after %s", ErrTransferUnresolved, sig, s.confirmTimeout)
		case <-ticker.C:
		}
	}
}

// transferStatus reports whether sig is confirmed. It fails only when the
// transaction landed with an error; RPC errors read as not confirmed yet.
func (s *SolanaClient) transferStatus(ctx context.Context, sig solana.Signature, searchHistory bool) (bool, error) {
	status, err := s.rpcClient.GetSignatureStatuses(ctx, searchHistory, sig)
	if err != nil || len(status.Value) == 0 || status.Value[0] == nil {
		return false, nil
	}
	st := status.Value[0]
	if st.Err != nil {
		return false, fmt.Errorf("transfer %s failed: %v", sig, st.Err)
	}
	return st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		st.ConfirmationStatus == rpc.ConfirmationStatusFinalized, nil
}

// RunDiagnostics checks RPC connectivity and the escrow wallet
func (s *SolanaClient) RunDiagnostics(ctx context.Context) *CustodyDiagnostics {
	result := &CustodyDiagnostics{
		Mode:      "solana:" + s.network,
		RPCURL:    s.rpcURL,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	blockhash, err := s.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		result.RPCError = err.Error()
		log.Printf("[Diagnostics] RPC check failed: %v", err)
	} else {
		result.RPCConnected = true
		result.LatestBlockhash = blockhash.Value.Blockhash.String()
	}

	if s.serverWallet != nil {
		result.EscrowWallet = s.serverWallet.PublicKey().String()
		if result.RPCConnected {
			if balance, err := s.GetSOLBalance(ctx, result.EscrowWallet); err == nil {
				result.EscrowBalance = balance.String()
			}
		}
	}

	return result
}
