package repository

import (
	"errors"

	"github.com/nestmatch/nestmatch-backend/internal/common"
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"gorm.io/gorm"
)

// MemberRepository member profile data access interface
type MemberRepository interface {
	FindByID(id string) (*domain.Member, error)
	FindByIDs(ids []string) (map[string]*domain.Member, error)
	Create(member *domain.Member) error
	Update(member *domain.Member) error
}

type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

// FindByID finds a member by user id
func (r *memberRepository) FindByID(id string) (*domain.Member, error) {
	var member domain.Member
	err := r.db.Where("id = ?", id).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// FindByIDs loads several members at once, keyed by id. Missing ids are
// simply absent from the result map.
func (r *memberRepository) FindByIDs(ids []string) (map[string]*domain.Member, error) {
	if len(ids) == 0 {
		return map[string]*domain.Member{}, nil
	}

	var members []*domain.Member
	if err := r.db.Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}

	result := make(map[string]*domain.Member, len(members))
	for _, m := range members {
		result[m.ID] = m
	}
	return result, nil
}

// Create creates a member profile
func (r *memberRepository) Create(member *domain.Member) error {
	return r.db.Create(member).Error
}

// Update saves profile changes
func (r *memberRepository) Update(member *domain.Member) error {
	return r.db.Model(&domain.Member{}).
		Where("id = ?", member.ID).
		Updates(map[string]interface{}{
			"nickname":   member.Nickname,
			"role":       member.Role,
			"avatar_url": member.AvatarURL,
		}).Error
}
