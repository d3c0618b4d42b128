package cnode

import (
	"github.com/AudiusProject/creator-node/dbs/userstate"
)

// WalletPathPager adapts the relational file table to the disk layer's pager,
// resolving wallet to the user uuid the file rows are keyed on.
type WalletPathPager struct {
	db *userstate.UserStateDb
}

func NewWalletPathPager(db *userstate.UserStateDb) *WalletPathPager {
	return &WalletPathPager{db: db}
}

func (p *WalletPathPager) StoragePathsPage(wallet string, afterPath string, limit int) ([]string, error) {
	user, err := p.db.GetCNodeUser(wallet)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return p.db.GetStoragePathsPage(user.CNodeUserUUID, afterPath, limit)
}
