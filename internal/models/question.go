package models

import (
	"errors"
	"fmt"
	"strings"
)

type QuestionStatus string

const (
	QuestionStatusCreated        QuestionStatus = "CREATED"
	QuestionStatusAnswered       QuestionStatus = "ANSWERED"
	QuestionStatusAnswerApproved QuestionStatus = "ANSWER_APPROVED"
	QuestionStatusExpired        QuestionStatus = "EXPIRED"
)

// OpenQuestionStatuses are the statuses in which a question still holds its deposit.
var OpenQuestionStatuses = []QuestionStatus{
	QuestionStatusCreated,
	QuestionStatusAnswered,
}

// IsOpen reports whether the question still custodies its deposit.
func (s QuestionStatus) IsOpen() bool {
	return s == QuestionStatusCreated || s == QuestionStatusAnswered
}

// IsTerminal reports whether no further transition is possible.
func (s QuestionStatus) IsTerminal() bool {
	return s == QuestionStatusAnswerApproved || s == QuestionStatusExpired
}

// ParseQuestionStatus accepts both the stored form (ANSWER_APPROVED) and the
// CamelCase form (AnswerApproved), case-insensitively.
func ParseQuestionStatus(raw string) (QuestionStatus, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""))
	switch normalized {
	case "CREATED":
		return QuestionStatusCreated, nil
	case "ANSWERED":
		return QuestionStatusAnswered, nil
	case "ANSWERAPPROVED":
		return QuestionStatusAnswerApproved, nil
	case "EXPIRED":
		return QuestionStatusExpired, nil
	}
	return "", fmt.Errorf("unknown question status %q", raw)
}

// Column limits enforced before any deposit is taken.
const (
	MaxTitleLength      = 255
	MaxDepositRefLength = 128
)

// PayoutStatus tracks the custody transfer that closed a question.
type PayoutStatus string

const (
	// PayoutPending: the question is closed and its transfer is in flight.
	PayoutPending PayoutStatus = "PENDING"
	// PayoutConfirmed: the transfer is confirmed.
	PayoutConfirmed PayoutStatus = "CONFIRMED"
	// PayoutUnconfirmed: the transfer was broadcast but its outcome is
	// unknown. PayoutRef names it for reconciliation.
	PayoutUnconfirmed PayoutStatus = "UNCONFIRMED"
)

// ErrQuestionTerminal is returned by a transition applied to a closed question.
var ErrQuestionTerminal = errors.New("question is in a terminal state")

// Question is an escrow-backed question. LockedAmount is in lamports and is
// never changed after creation.
type Question struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Creator          string         `gorm:"size:64;not null;index" json:"creator"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	Description      string         `gorm:"type:text;not null" json:"description"`
	Deadline         uint64         `gorm:"not null;index" json:"deadline"`
	LockedAmount     uint64         `gorm:"not null" json:"locked_amount"`
	CreatedAt        uint64         `gorm:"not null;autoCreateTime:false" json:"created_at"`
	Status           QuestionStatus `gorm:"size:32;not null;index" json:"status"`
	ApprovedAnswerID *uint64        `json:"approved_answer_id"`
	DepositRef       string         `gorm:"size:128;not null;uniqueIndex" json:"deposit_ref"`
	PayoutRef        string         `gorm:"size:128;not null;default:''" json:"payout_ref,omitempty"`
	PayoutStatus     PayoutStatus   `gorm:"size:16;not null;default:'';index" json:"payout_status,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// RecordAnswer advances Created to Answered. It reports whether the status
// changed; further answers leave an Answered question untouched.
func (q *Question) RecordAnswer() (bool, error) {
	switch q.Status {
	case QuestionStatusCreated:
		q.Status = QuestionStatusAnswered
		return true, nil
	case QuestionStatusAnswered:
		return false, nil
	}
	return false, ErrQuestionTerminal
}

// Approve closes the question in favour of answerID.
func (q *Question) Approve(answerID uint64) error {
	if !q.Status.IsOpen() {
		return ErrQuestionTerminal
	}
	q.Status = QuestionStatusAnswerApproved
	q.ApprovedAnswerID = &answerID
	return nil
}

// Reopen undoes Approve or Expire after the closing transfer was definitely
// not made.
func (q *Question) Reopen(status QuestionStatus) {
	q.Status = status
	q.ApprovedAnswerID = nil
	q.PayoutStatus = ""
	q.PayoutRef = ""
}

// Expire closes the question for a refund.
func (q *Question) Expire() error {
	if !q.Status.IsOpen() {
		return ErrQuestionTerminal
	}
	q.Status = QuestionStatusExpired
	return nil
}

// IsOverdue reports whether the deadline has passed while the deposit is
// still held.
func (q *Question) IsOverdue(now uint64) bool {
	return q.Status.IsOpen() && q.Deadline <= now
}

// AcceptsAnswers reports whether an answer submitted at now would be accepted
// on timing and status grounds.
func (q *Question) AcceptsAnswers(now uint64) bool {
	return q.Status.IsOpen() && now < q.Deadline
}

// DisplayStatus is the status shown to users: overdue questions show as
// Expired even though the stored status only changes on refund.
func (q *Question) DisplayStatus(now uint64) QuestionStatus {
	if q.IsOverdue(now) {
		return QuestionStatusExpired
	}
	return q.Status
}
