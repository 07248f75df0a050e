package models

// Answer is a reply to a question. Votes is reserved and no ledger operation
// changes it.
type Answer struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement:false" json:"id"`
	QuestionID        uint64 `gorm:"not null;index" json:"question_id"`
	Creator           string `gorm:"size:64;not null;index" json:"creator"`
	Title             string `gorm:"size:255;not null" json:"title"`
	Description       string `gorm:"type:text;not null" json:"description"`
	CreatedAt         uint64 `gorm:"not null;autoCreateTime:false" json:"created_at"`
	Votes             uint32 `gorm:"not null;default:0" json:"votes"`
	ApprovedByCreator bool   `gorm:"not null;default:false" json:"approved_by_creator"`
}

func (Answer) TableName() string {
	return "answers"
}
