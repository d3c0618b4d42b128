package userstate

import (
	"time"
)

// Source tables a clock tick can be consumed by.
const (
	SourceAudiusUser = "AudiusUser"
	SourceTrack      = "Track"
	SourceFile       = "File"
)

// ClockRecord is one row of the append-only per-user write log. Each record at
// clock n corresponds to exactly one entity row tagged with clock = n.
type ClockRecord struct {
	CNodeUserUUID string    `json:"cnodeUserUUID" gorm:"primaryKey;column:cnode_user_uuid"`
	Clock         int       `json:"clock" gorm:"primaryKey;autoIncrement:false"`
	SourceTable   string    `json:"sourceTable" gorm:"not null"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (ClockRecord) TableName() string {
	return "clock_records"
}

func (db *UserStateDb) GetClockRecordsInRange(userID string, clockMin, clockMax int) ([]ClockRecord, error) {
	var records []ClockRecord
	err := db.Get().
		Where("cnode_user_uuid = ? AND clock BETWEEN ? AND ?", userID, clockMin, clockMax).
		Order("clock asc").
		Find(&records).Error
	return records, err
}

func (db *UserStateDb) CreateClockRecords(records []ClockRecord) error {
	if len(records) == 0 {
		return nil
	}
	return db.Get().Create(&records).Error
}

func (db *UserStateDb) CountClockRecords(userID string) (int64, error) {
	var count int64
	err := db.Get().Model(&ClockRecord{}).
		Where("cnode_user_uuid = ?", userID).
		Count(&count).Error
	return count, err
}
