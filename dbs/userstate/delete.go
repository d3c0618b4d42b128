package userstate

import (
	"github.com/AudiusProject/creator-node/core/logging"
	"go.uber.org/zap"
)

// SubtreeDeleteCounts reports how many rows each pass of a subtree delete
// removed, for logging.
type SubtreeDeleteCounts struct {
	TrackFiles    int64
	Tracks        int64
	RemainingFile int64
	AudiusUsers   int64
	ClockRecords  int64
}

// DeleteUserSubtree removes every row owned by userID, in strict
// reverse-dependency order: files referencing tracks, then tracks, then the
// remaining files, then audius users, then clock records, then the root row.
// Must be called on a tx-scoped db; a failure aborts the whole transaction.
func (db *UserStateDb) DeleteUserSubtree(userID string) (SubtreeDeleteCounts, error) {
	var counts SubtreeDeleteCounts
	g := db.Get()

	res := g.Where("cnode_user_uuid = ? AND track_uuid IS NOT NULL", userID).Delete(&File{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.TrackFiles = res.RowsAffected

	res = g.Where("cnode_user_uuid = ?", userID).Delete(&Track{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.Tracks = res.RowsAffected

	res = g.Where("cnode_user_uuid = ?", userID).Delete(&File{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.RemainingFile = res.RowsAffected

	res = g.Where("cnode_user_uuid = ?", userID).Delete(&AudiusUser{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.AudiusUsers = res.RowsAffected

	res = g.Where("cnode_user_uuid = ?", userID).Delete(&ClockRecord{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.ClockRecords = res.RowsAffected

	if err := g.Where("cnode_user_uuid = ?", userID).Delete(&CNodeUser{}).Error; err != nil {
		return counts, err
	}

	logging.Logger.Info("deleted cnode user subtree",
		zap.String("cnode_user_uuid", userID),
		zap.Int64("track_files", counts.TrackFiles),
		zap.Int64("tracks", counts.Tracks),
		zap.Int64("remaining_files", counts.RemainingFile),
		zap.Int64("audius_users", counts.AudiusUsers),
		zap.Int64("clock_records", counts.ClockRecords),
	)
	return counts, nil
}
