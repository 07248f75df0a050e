package services

import "fmt"

// ErrorKind classifies why a ledger operation was rejected.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "InvalidInput"
	KindInvalidState    ErrorKind = "InvalidState"
	KindUnauthorized    ErrorKind = "Unauthorized"
	KindNotFound        ErrorKind = "NotFound"
	KindTimingViolation ErrorKind = "TimingViolation"
	KindMismatch        ErrorKind = "Mismatch"
)

// Rejection codes reported to callers.
const (
	CodeContractPaused      = "CONTRACT_PAUSED"
	CodeInsufficientDeposit = "INSUFFICIENT_DEPOSIT"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidDeadline     = "INVALID_DEADLINE"
	CodeDepositAlreadyUsed  = "DEPOSIT_ALREADY_USED"
	CodeDepositNotConfirmed = "DEPOSIT_NOT_CONFIRMED"
	CodeNotFound            = "NOT_FOUND"
	CodeQuestionClosed      = "QUESTION_CLOSED"
	CodeDeadlinePassed      = "DEADLINE_PASSED"
	CodeSelfAnswerForbidden = "SELF_ANSWER_FORBIDDEN"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeTooEarly            = "TOO_EARLY"
	CodeAlreadyClosed       = "ALREADY_CLOSED"
	CodeAnswerMismatch      = "ANSWER_MISMATCH"
	CodeNotInitialized      = "NOT_INITIALIZED"
)

// LedgerError is a typed rejection. A rejected operation leaves the ledger
// unchanged.
type LedgerError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on kind, so errors.Is(err, ErrNotFound) holds for every
// not-found rejection regardless of code.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrInvalidInput    = &LedgerError{Kind: KindInvalidInput}
	ErrInvalidState    = &LedgerError{Kind: KindInvalidState}
	ErrUnauthorized    = &LedgerError{Kind: KindUnauthorized}
	ErrNotFound        = &LedgerError{Kind: KindNotFound}
	ErrTimingViolation = &LedgerError{Kind: KindTimingViolation}
	ErrMismatch        = &LedgerError{Kind: KindMismatch}
)

func reject(kind ErrorKind, code, format string, args ...interface{}) *LedgerError {
	return &LedgerError{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func errQuestionNotFound(questionID uint64) *LedgerError {
	return reject(KindNotFound, CodeNotFound, "question %d not found", questionID)
}

func errAnswerNotFound(answerID uint64) *LedgerError {
	return reject(KindNotFound, CodeNotFound, "answer %d not found", answerID)
}
