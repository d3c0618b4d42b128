package userstate

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CNodeUser is the per-wallet root record. Clock is the user's logical write
// counter on this node: it equals the count of ClockRecord rows for the user
// and never decreases.
type CNodeUser struct {
	CNodeUserUUID     string     `json:"cnodeUserUUID" gorm:"primaryKey;column:cnode_user_uuid"`
	WalletPublicKey   string     `json:"walletPublicKey" gorm:"uniqueIndex;not null"`
	Clock             int        `json:"clock" gorm:"not null;default:0"`
	LatestBlockNumber int64      `json:"latestBlockNumber"`
	LastLogin         *time.Time `json:"lastLogin"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (CNodeUser) TableName() string {
	return "cnode_users"
}

// GetCNodeUser returns the user for wallet, or nil when none exists.
func (db *UserStateDb) GetCNodeUser(wallet string) (*CNodeUser, error) {
	var user CNodeUser
	err := db.Get().Where("wallet_public_key = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetCNodeUserByUUID returns the user with the given uuid, or nil.
func (db *UserStateDb) GetCNodeUserByUUID(userID string) (*CNodeUser, error) {
	var user CNodeUser
	err := db.Get().Where("cnode_user_uuid = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *UserStateDb) GetCNodeUsers(wallets []string) ([]CNodeUser, error) {
	var users []CNodeUser
	err := db.Get().Where("wallet_public_key IN ?", wallets).Find(&users).Error
	return users, err
}

// GetOrCreateCNodeUser creates the root record on first write for a wallet.
func (db *UserStateDb) GetOrCreateCNodeUser(wallet string) (*CNodeUser, error) {
	user, err := db.GetCNodeUser(wallet)
	if err != nil || user != nil {
		return user, err
	}
	user = &CNodeUser{
		CNodeUserUUID:   uuid.NewString(),
		WalletPublicKey: wallet,
	}
	if err := db.Get().Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// UpsertCNodeUser writes the fetched root record verbatim, keeping the remote
// uuid and clock so that clock numbering is preserved exactly.
func (db *UserStateDb) UpsertCNodeUser(user *CNodeUser) error {
	return db.Get().Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cnode_user_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"wallet_public_key", "clock", "latest_block_number", "last_login",
		}),
	}).Create(user).Error
}

func (db *UserStateDb) SetClock(userID string, clock int) error {
	return db.Get().Model(&CNodeUser{}).
		Where("cnode_user_uuid = ?", userID).
		Update("clock", clock).Error
}
