package userstate

import (
	"errors"
	"fmt"

	"github.com/AudiusProject/creator-node/core/config"
	"github.com/AudiusProject/creator-node/dbs"
	"gorm.io/gorm"
)

// NewUserStateDb wraps an opened store and migrates the clock-indexed schema.
func NewUserStateDb(store dbs.Store) (*UserStateDb, error) {
	db := &UserStateDb{Store: store}
	if err := db.AutoMigrate(); err != nil {
		return nil, err
	}
	return db, nil
}

// UserStateDb is the relational persistence layer for the clock-indexed
// entities: CNodeUser, AudiusUser, Track, File and the ClockRecord log.
type UserStateDb struct {
	dbs.Store
}

func (db *UserStateDb) AutoMigrate() error {
	return db.Store.Get().AutoMigrate(
		&CNodeUser{},
		&ClockRecord{},
		&File{},
		&Track{},
		&AudiusUser{},
	)
}

// Begin opens a transaction and returns a tx-scoped copy of the db.
func (db *UserStateDb) Begin() (*UserStateDb, error) {
	tx := db.Store.Get().Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin transaction: %v", tx.Error)
	}
	return &UserStateDb{Store: &txStore{Store: db.Store, tx: tx}}, nil
}

func (db *UserStateDb) Commit() error {
	if db.Store.Get() == nil {
		return errors.New("committing nil transaction")
	}
	return db.Store.Get().Commit().Error
}

func (db *UserStateDb) Rollback() error {
	if db.Store.Get() == nil {
		return errors.New("rollbacking nil transaction")
	}
	return db.Store.Get().Rollback().Error
}

// txStore scopes a Store to one transaction.
type txStore struct {
	dbs.Store
	tx *gorm.DB
}

func (s *txStore) Get() *gorm.DB {
	return s.tx
}

func (s *txStore) Open(_ config.DbAccess) error {
	return errors.New("opening a transaction store")
}

func (s *txStore) Close() {}
