package userstate

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WriteWithClock runs write inside one transaction that advances the user's
// clock and appends the matching ClockRecord. Every local mutation of the
// user's subtree must go through here: no entity row may exist with a clock
// value for which no ClockRecord exists, and vice versa.
//
// The callback receives the tx-scoped db and the clock value assigned to this
// write; it must tag every row it creates with that clock.
func (db *UserStateDb) WriteWithClock(userID string, sourceTable string, write func(tx *UserStateDb, clock int) error) error {
	return db.Get().Transaction(func(gtx *gorm.DB) error {
		tx := &UserStateDb{Store: &txStore{Store: db.Store, tx: gtx}}

		// SQLite has a single writer and no row locks; the clause is postgres only.
		q := gtx
		if gtx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var user CNodeUser
		if err := q.
			Where("cnode_user_uuid = ?", userID).
			First(&user).Error; err != nil {
			return fmt.Errorf("load cnode user %v: %w", userID, err)
		}

		clock := user.Clock + 1
		if err := gtx.Model(&CNodeUser{}).
			Where("cnode_user_uuid = ?", userID).
			Update("clock", clock).Error; err != nil {
			return err
		}
		if err := gtx.Create(&ClockRecord{
			CNodeUserUUID: userID,
			Clock:         clock,
			SourceTable:   sourceTable,
		}).Error; err != nil {
			return err
		}
		return write(tx, clock)
	})
}
