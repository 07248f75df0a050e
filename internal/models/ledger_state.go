package models

// LedgerStateID is the primary key of the single ledger configuration row.
const LedgerStateID = 1

// LedgerState holds the contract-wide configuration: owner, pause flag and
// the ID counters. Counters only ever grow.
type LedgerState struct {
	ID              uint   `gorm:"primaryKey;autoIncrement:false" json:"-"`
	Owner           string `gorm:"size:64;not null" json:"owner"`
	Paused          bool   `gorm:"not null;default:false" json:"paused"`
	QuestionCounter uint64 `gorm:"not null;default:0" json:"question_counter"`
	AnswerCounter   uint64 `gorm:"not null;default:0" json:"answer_counter"`
}

func (LedgerState) TableName() string {
	return "ledger_state"
}

// NextQuestionID allocates a question ID.
func (s *LedgerState) NextQuestionID() uint64 {
	s.QuestionCounter++
	return s.QuestionCounter
}

// NextAnswerID allocates an answer ID.
func (s *LedgerState) NextAnswerID() uint64 {
	s.AnswerCounter++
	return s.AnswerCounter
}

// ContractStats is the (total questions, total answers, paused) triple.
type ContractStats struct {
	TotalQuestions uint64 `json:"total_questions"`
	TotalAnswers   uint64 `json:"total_answers"`
	Paused         bool   `json:"paused"`
}
