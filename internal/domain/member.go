package domain

import "time"

// Member roles. Every profile is either a seeker (looking for a rental)
// or a lister (offering one); the pair ordering of a conversation is
// canonicalized from these.
const (
	RoleSeeker = "seeker"
	RoleLister = "lister"
)

// Member represents a marketplace user profile
type Member struct {
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	ID        string `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Nickname  string `gorm:"column:nickname" json:"nickname"`
	Role      string `gorm:"column:role;type:varchar(10);index" json:"role"` // "seeker" or "lister"
	AvatarURL string `gorm:"column:avatar_url" json:"avatar_url,omitempty"`
}

func (Member) TableName() string {
	return "members"
}

// SyncMemberRequest is the profile payload pushed from the account
// system whenever a profile is created or edited there
type SyncMemberRequest struct {
	ID        string `json:"id" binding:"required"`
	Nickname  string `json:"nickname" binding:"required"`
	Role      string `json:"role" binding:"required,oneof=seeker lister"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// MemberSummary is the participant display payload embedded in
// conversation list responses
type MemberSummary struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ToSummary converts a Member to its display summary
func (m *Member) ToSummary() *MemberSummary {
	return &MemberSummary{
		ID:        m.ID,
		Nickname:  m.Nickname,
		Role:      m.Role,
		AvatarURL: m.AvatarURL,
	}
}
