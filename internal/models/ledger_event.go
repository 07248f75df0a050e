package models

import (
	"time"

	"github.com/google/uuid"
)

type LedgerEventType string

const (
	LedgerEventQuestionCreated      LedgerEventType = "question_created"
	LedgerEventAnswerSubmitted      LedgerEventType = "answer_submitted"
	LedgerEventAnswerApproved       LedgerEventType = "answer_approved"
	LedgerEventTokensRefunded       LedgerEventType = "tokens_refunded"
	LedgerEventContractPaused       LedgerEventType = "contract_paused"
	LedgerEventContractUnpaused     LedgerEventType = "contract_unpaused"
	LedgerEventOwnershipTransferred LedgerEventType = "ownership_transferred"
)

// LedgerEvent is a notification emitted after a committed ledger operation.
// Events are not part of the persisted ledger state.
type LedgerEvent struct {
	ID           uuid.UUID       `json:"id"`
	Type         LedgerEventType `json:"type"`
	QuestionID   uint64          `json:"question_id,omitempty"`
	AnswerID     uint64          `json:"answer_id,omitempty"`
	Actor        string          `json:"actor,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	Amount       uint64          `json:"amount,omitempty"`
	Deadline     uint64          `json:"deadline,omitempty"`
	TxRef        string          `json:"tx_ref,omitempty"`
	LogicalTime  uint64          `json:"logical_time"`
	EmittedAt    time.Time       `json:"emitted_at"`
}

// NewLedgerEvent stamps an event of the given type.
func NewLedgerEvent(eventType LedgerEventType, logicalTime uint64) *LedgerEvent {
	return &LedgerEvent{
		ID:          uuid.New(),
		Type:        eventType,
		LogicalTime: logicalTime,
		EmittedAt:   time.Now(),
	}
}
