package models

// DepositClaimStatus tracks what became of a deposit reference.
type DepositClaimStatus string

const (
	// DepositClaimPending: the reference is reserved while its deposit is
	// confirmed and the question stored.
	DepositClaimPending DepositClaimStatus = "PENDING"
	// DepositClaimConsumed: the deposit backs a question.
	DepositClaimConsumed DepositClaimStatus = "CONSUMED"
	// DepositClaimReversed: the deposit was returned to its payer.
	DepositClaimReversed DepositClaimStatus = "REVERSED"
)

// DepositClaim reserves a deposit reference. A reference is claimed at most
// once; only a claim whose deposit was never confirmed is ever released.
type DepositClaim struct {
	Ref        string             `gorm:"primaryKey;size:128" json:"ref"`
	Payer      string             `gorm:"size:64;not null;index" json:"payer"`
	Amount     uint64             `gorm:"not null" json:"amount"`
	Status     DepositClaimStatus `gorm:"size:16;not null;index" json:"status"`
	QuestionID *uint64            `json:"question_id"`
	ClaimedAt  uint64             `gorm:"not null" json:"claimed_at"`
}

func (DepositClaim) TableName() string {
	return "deposit_claims"
}
