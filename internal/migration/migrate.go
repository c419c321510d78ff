package migration

import (
	"github.com/nestmatch/nestmatch-backend/internal/domain"
	"gorm.io/gorm"
)

// Run executes AutoMigrate for all messaging tables. The unique index
// on the conversation pair comes from the model tags and is what makes
// concurrent creation safe; refusing to start without it is deliberate.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Member{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.StartCredit{},
		&domain.MessageAllowance{},
	)
}
