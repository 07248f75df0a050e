// Package solanatest provides an in-process Solana JSON-RPC node for tests.
//
// The node answers the calls SolanaClient makes: getLatestBlockhash,
// isBlockhashValid, getSignatureStatuses, getTransaction, getBalance and
// sendTransaction. Sent transactions are decoded and recorded so tests can
// count the lamports that actually left the escrow wallet.
package solanatest

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// SendOutcome decides what happens to a transaction after sendTransaction.
type SendOutcome int

const (
	// Land confirms the transaction immediately.
	Land SendOutcome = iota
	// Vanish accepts the transaction but never reports a status.
	Vanish
	// Reject answers sendTransaction with a JSON-RPC error; nothing is sent.
	Reject
	// LandFailed confirms the transaction with an execution error.
	LandFailed
	// DropResponse lands the transaction and then closes the connection
	// before the client reads the signature.
	DropResponse
)

// Transfer is one system transfer the node accepted via sendTransaction.
type Transfer struct {
	Signature string
	From      string
	To        string
	Lamports  uint64
}

type txRecord struct {
	raw          []byte
	preBalances  []uint64
	postBalances []uint64
	status       rpc.ConfirmationStatusType
	failed       bool
}

// Server is a fake Solana RPC node.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	blockhash      solana.Hash
	blockhashValid bool
	outcome        SendOutcome
	onSend         func()
	txs            map[string]*txRecord
	sent           []Transfer
}

// NewServer starts a node that is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		blockhash:      randomHash(t),
		blockhashValid: true,
		txs:            make(map[string]*txRecord),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetSendOutcome sets the fate of transactions sent from now on.
func (s *Server) SetSendOutcome(outcome SendOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = outcome
}

// SetBlockhashValid controls the answer to isBlockhashValid.
func (s *Server) SetBlockhashValid(valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockhashValid = valid
}

// OnSend registers fn to run after a transaction is accepted, before the
// response is written.
func (s *Server) OnSend(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSend = fn
}

// Sent returns every transfer accepted via sendTransaction.
func (s *Server) Sent() []Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transfer, len(s.sent))
	copy(out, s.sent)
	return out
}

// AddTransfer records a transaction of system transfers from one account
// and returns its signature.
func (s *Server) AddTransfer(t *testing.T, from solana.PublicKey, to solana.PublicKey, lamports uint64) string {
	t.Helper()
	return s.AddTransaction(t, rpc.ConfirmationStatusConfirmed, from, system.NewTransferInstruction(lamports, from, to).Build())
}

// AddTransaction records a transaction paid by payer with the given
// confirmation status and returns its signature.
func (s *Server) AddTransaction(
	t *testing.T,
	status rpc.ConfirmationStatusType,
	payer solana.PublicKey,
	instructions ...solana.Instruction,
) string {
	t.Helper()

	tx, err := solana.NewTransaction(instructions, s.blockhash, solana.TransactionPayer(payer))
	if err != nil {
		t.Fatalf("failed to build transaction: %v", err)
	}
	var sig solana.Signature
	if _, err := rand.Read(sig[:]); err != nil {
		t.Fatalf("failed to generate signature: %v", err)
	}
	tx.Signatures = []solana.Signature{sig}

	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to encode transaction: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(sig.String(), tx, raw, status, false)
	return sig.String()
}

func (s *Server) store(sig string, tx *solana.Transaction, raw []byte, status rpc.ConfirmationStatusType, failed bool) {
	keys := tx.Message.AccountKeys
	pre := make([]uint64, len(keys))
	post := make([]uint64, len(keys))
	for i := range keys {
		pre[i] = 1_000_000_000
		post[i] = pre[i]
	}
	for _, tr := range decodeTransfers(tx) {
		for i, k := range keys {
			switch k.String() {
			case tr.From:
				post[i] -= tr.Lamports
			case tr.To:
				post[i] += tr.Lamports
			}
		}
	}
	s.txs[sig] = &txRecord{
		raw:          raw,
		preBalances:  pre,
		postBalances: post,
		status:       status,
		failed:       failed,
	}
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, rpcErr, drop := s.dispatch(req)
	if drop {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
	}

	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
	}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) dispatch(req request) (interface{}, map[string]interface{}, bool) {
	slotContext := map[string]interface{}{"slot": 1}

	switch req.Method {
	case "getLatestBlockhash":
		s.mu.Lock()
		defer s.mu.Unlock()
		return map[string]interface{}{
			"context": slotContext,
			"value": map[string]interface{}{
				"blockhash":            s.blockhash.String(),
				"lastValidBlockHeight": 100,
			},
		}, nil, false

	case "isBlockhashValid":
		s.mu.Lock()
		defer s.mu.Unlock()
		return map[string]interface{}{"context": slotContext, "value": s.blockhashValid}, nil, false

	case "getBalance":
		return map[string]interface{}{"context": slotContext, "value": 0}, nil, false

	case "getSignatureStatuses":
		var sigs []string
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params[0], &sigs)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		values := make([]interface{}, len(sigs))
		for i, sig := range sigs {
			rec, ok := s.txs[sig]
			if !ok || rec.status == "" {
				continue
			}
			var txErr interface{}
			if rec.failed {
				txErr = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
			}
			values[i] = map[string]interface{}{
				"slot":               1,
				"confirmations":      nil,
				"err":                txErr,
				"confirmationStatus": rec.status,
			}
		}
		return map[string]interface{}{"context": slotContext, "value": values}, nil, false

	case "getTransaction":
		var sig string
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params[0], &sig)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		rec, ok := s.txs[sig]
		if !ok || rec.status == "" {
			return nil, nil, false
		}
		var txErr interface{}
		if rec.failed {
			txErr = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
		}
		return map[string]interface{}{
			"slot":        1,
			"blockTime":   nil,
			"transaction": []string{base64.StdEncoding.EncodeToString(rec.raw), "base64"},
			"meta": map[string]interface{}{
				"err":          txErr,
				"fee":          5000,
				"preBalances":  rec.preBalances,
				"postBalances": rec.postBalances,
			},
			"version": "legacy",
		}, nil, false

	case "sendTransaction":
		return s.send(req)
	}

	return nil, map[string]interface{}{"code": -32601, "message": "method not found: " + req.Method}, false
}

func (s *Server) send(req request) (interface{}, map[string]interface{}, bool) {
	var encoded string
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params[0], &encoded)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, map[string]interface{}{"code": -32602, "message": err.Error()}, false
	}
	tx, err := solana.TransactionFromBytes(raw)
	if err != nil || len(tx.Signatures) == 0 {
		return nil, map[string]interface{}{"code": -32602, "message": "invalid transaction"}, false
	}
	sig := tx.Signatures[0].String()

	s.mu.Lock()
	outcome := s.outcome
	onSend := s.onSend
	if outcome == Reject {
		s.mu.Unlock()
		return nil, map[string]interface{}{
			"code":    -32002,
			"message": "Transaction simulation failed: insufficient funds",
		}, false
	}

	var status rpc.ConfirmationStatusType
	switch outcome {
	case Land, LandFailed, DropResponse:
		status = rpc.ConfirmationStatusConfirmed
	}
	s.store(sig, tx, raw, status, outcome == LandFailed)
	if outcome != LandFailed {
		for _, tr := range decodeTransfers(tx) {
			tr.Signature = sig
			s.sent = append(s.sent, tr)
		}
	}
	s.mu.Unlock()

	if onSend != nil {
		onSend()
	}
	return sig, nil, outcome == DropResponse
}

func decodeTransfers(tx *solana.Transaction) []Transfer {
	var out []Transfer
	for i := range tx.Message.Instructions {
		compiled := &tx.Message.Instructions[i]
		programID, err := tx.Message.ResolveProgramIDIndex(compiled.ProgramIDIndex)
		if err != nil || !programID.Equals(solana.SystemProgramID) {
			continue
		}
		accounts, err := compiled.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			continue
		}
		decoded, err := system.DecodeInstruction(accounts, compiled.Data)
		if err != nil {
			continue
		}
		transfer, ok := decoded.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil {
			continue
		}
		out = append(out, Transfer{
			From:     transfer.GetFundingAccount().PublicKey.String(),
			To:       transfer.GetRecipientAccount().PublicKey.String(),
			Lamports: *transfer.Lamports,
		})
	}
	return out
}

func randomHash(t *testing.T) solana.Hash {
	t.Helper()
	var h solana.Hash
	if _, err := rand.Read(h[:]); err != nil {
		t.Fatalf("failed to generate blockhash: %v", err)
	}
	return h
}
