package userstate

import (
	"encoding/json"
	"time"
)

// AudiusUser is one versioned snapshot of a user profile entity.
type AudiusUser struct {
	AudiusUserUUID     string          `json:"audiusUserUUID" gorm:"primaryKey;column:audius_user_uuid"`
	CNodeUserUUID      string          `json:"cnodeUserUUID" gorm:"column:cnode_user_uuid;index;not null"`
	BlockchainId       int64           `json:"blockchainId" gorm:"index"`
	MetadataFileUUID   *string         `json:"metadataFileUUID" gorm:"column:metadata_file_uuid"`
	MetadataJSON       json.RawMessage `json:"metadataJSON" gorm:"type:jsonb"`
	CoverArtFileUUID   *string         `json:"coverArtFileUUID" gorm:"column:cover_art_file_uuid"`
	ProfilePicFileUUID *string         `json:"profilePicFileUUID" gorm:"column:profile_pic_file_uuid"`
	Clock              int             `json:"clock" gorm:"not null"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func (AudiusUser) TableName() string {
	return "audius_users"
}

func (db *UserStateDb) GetAudiusUsersInRange(userID string, clockMin, clockMax int) ([]AudiusUser, error) {
	var users []AudiusUser
	err := db.Get().
		Where("cnode_user_uuid = ? AND clock BETWEEN ? AND ?", userID, clockMin, clockMax).
		Order("clock asc").
		Find(&users).Error
	return users, err
}

func (db *UserStateDb) CreateAudiusUsers(users []AudiusUser) error {
	if len(users) == 0 {
		return nil
	}
	return db.Get().Create(&users).Error
}
