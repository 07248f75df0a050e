package models

import "qa-escrow/internal/utils"

// PostQuestionRequest represents a request to post a question with a deposit.
// DepositAmount is in lamports; DepositSignature references the transfer
// that moved it into custody.
type PostQuestionRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Deadline         uint64 `json:"deadline" binding:"required"`
	DepositAmount    uint64 `json:"deposit_amount" binding:"required"`
	DepositSignature string `json:"deposit_signature"`
}

// SubmitAnswerRequest represents an answer to an open question
type SubmitAnswerRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ApproveAnswerRequest selects the answer that receives the deposit
type ApproveAnswerRequest struct {
	AnswerID uint64 `json:"answer_id" binding:"required"`
}

// TransferOwnershipRequest names the next ledger owner
type TransferOwnershipRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

// QuestionResponse represents a question in API responses
type QuestionResponse struct {
	Question
	LockedAmountSOL string         `json:"locked_amount_sol"`
	DisplayStatus   QuestionStatus `json:"display_status"`
}

// NewQuestionResponse renders a question as seen at logical time now.
func NewQuestionResponse(q *Question, now uint64) QuestionResponse {
	return QuestionResponse{
		Question:        *q,
		LockedAmountSOL: utils.LamportsToSOL(q.LockedAmount).String(),
		DisplayStatus:   q.DisplayStatus(now),
	}
}

// NewQuestionResponses renders a list of questions.
func NewQuestionResponses(questions []*Question, now uint64) []QuestionResponse {
	out := make([]QuestionResponse, 0, len(questions))
	for _, q := range questions {
		out = append(out, NewQuestionResponse(q, now))
	}
	return out
}
