// Package sqlite provides an in-memory store used by tests.
package sqlite

import (
	"errors"

	"github.com/AudiusProject/creator-node/core/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SqliteStore struct {
	db *gorm.DB
}

func NewSqliteStore() (*SqliteStore, error) {
	store := &SqliteStore{}
	if err := store.Open(config.DbAccess{}); err != nil {
		return nil, err
	}
	return store, nil
}

func (store *SqliteStore) Open(_ config.DbAccess) error {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=private"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	// A single connection keeps every session on the same in-memory database.
	sqldb, err := db.DB()
	if err != nil {
		return err
	}
	sqldb.SetMaxOpenConns(1)
	store.db = db
	return nil
}

func (store *SqliteStore) AutoMigrate() error {
	return errors.New("migrations belong to the wrapping store")
}

func (store *SqliteStore) Close() {
	if store.db != nil {
		if sqldb, _ := store.db.DB(); sqldb != nil {
			sqldb.Close()
		}
	}
}

func (store *SqliteStore) Get() *gorm.DB {
	return store.db
}
