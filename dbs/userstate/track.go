package userstate

import (
	"encoding/json"
	"time"
)

// Track is one versioned snapshot of a track entity. Updates create a new row
// at a higher clock instead of mutating.
type Track struct {
	TrackUUID        string          `json:"trackUUID" gorm:"primaryKey;column:track_uuid"`
	CNodeUserUUID    string          `json:"cnodeUserUUID" gorm:"column:cnode_user_uuid;index;not null"`
	BlockchainId     int64           `json:"blockchainId" gorm:"index"`
	MetadataFileUUID *string         `json:"metadataFileUUID" gorm:"column:metadata_file_uuid"`
	MetadataJSON     json.RawMessage `json:"metadataJSON" gorm:"type:jsonb"`
	CoverArtFileUUID *string         `json:"coverArtFileUUID" gorm:"column:cover_art_file_uuid"`
	Clock            int             `json:"clock" gorm:"not null"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (Track) TableName() string {
	return "tracks"
}

func (db *UserStateDb) GetTracksInRange(userID string, clockMin, clockMax int) ([]Track, error) {
	var tracks []Track
	err := db.Get().
		Where("cnode_user_uuid = ? AND clock BETWEEN ? AND ?", userID, clockMin, clockMax).
		Order("clock asc").
		Find(&tracks).Error
	return tracks, err
}

func (db *UserStateDb) CreateTracks(tracks []Track) error {
	if len(tracks) == 0 {
		return nil
	}
	return db.Get().Create(&tracks).Error
}
