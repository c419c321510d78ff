package domain

import "time"

// Credit kinds. A monthly subscription is effectively unlimited for
// starting conversations but still subject to the per-period message cap.
const (
	CreditFreeGrant    = "free_grant"
	CreditPurchasePack = "purchased_pack"
	CreditSubscription = "monthly_subscription"
)

// GrantAllowanceExtension is an intake grant kind that raises the
// per-period message cap instead of creating a credit entry
const GrantAllowanceExtension = "allowance_extension"

// StartCredit is one consumable ledger entry permitting new
// conversations. Remaining never exceeds Total and never goes below
// zero; an expired entry contributes nothing to the available balance.
type StartCredit struct {
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index" json:"expires_at,omitempty"`

	ID        string `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	UserID    string `gorm:"column:user_id;type:varchar(36);index" json:"user_id"`
	Kind      string `gorm:"column:kind;type:varchar(24)" json:"kind"`
	Total     int    `gorm:"column:total" json:"total"`
	Remaining int    `gorm:"column:remaining" json:"remaining"`
}

func (StartCredit) TableName() string {
	return "start_credits"
}

// Expired reports whether the entry is past its expiry at t
func (c *StartCredit) Expired(t time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(t)
}

// MessageAllowance is the renewable per-period message cap, one row per
// user. Used resets to zero exactly at the period boundary.
type MessageAllowance struct {
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	PeriodResetAt time.Time `gorm:"column:period_reset_at" json:"period_reset_at"`

	UserID string `gorm:"column:user_id;primaryKey;type:varchar(36)" json:"user_id"`
	Cap    int    `gorm:"column:cap" json:"cap"`
	Used   int    `gorm:"column:used" json:"used"`
}

func (MessageAllowance) TableName() string {
	return "message_allowances"
}

// QuotaStatus is the UI-facing quota payload: whether to show upgrade
// prompts and how much headroom remains. Unlimited starts (an active
// subscription) and unlimited messages (cap <= 0) are independent.
type QuotaStatus struct {
	StartCredits      int64 `json:"start_credits"`
	UnlimitedStarts   bool  `json:"unlimited_starts"`
	MessageCap        int   `json:"message_cap"`
	MessagesUsed      int   `json:"messages_used"`
	MessagesRemaining int   `json:"messages_remaining"`
	UnlimitedMessages bool  `json:"unlimited_messages"`
}

// GrantCreditRequest is the purchase-intake payload recorded after a
// completed purchase. Payment processing happens elsewhere; this only
// creates ledger rows.
type GrantCreditRequest struct {
	UserID    string     `json:"user_id" binding:"required"`
	Kind      string     `json:"kind" binding:"required,oneof=free_grant purchased_pack monthly_subscription allowance_extension"`
	Amount    int        `json:"amount" binding:"required,min=1"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
