package postgresql

import (
	"errors"
	"fmt"

	"gorm.io/gorm/logger"

	"github.com/AudiusProject/creator-node/core/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func GetPostgresSqlDb(access config.DbAccess) (*PostgresStore, error) {
	if !access.Enabled {
		return nil, errors.New("db_open_error, db disabled")
	}
	db := &PostgresStore{}
	err := db.Open(access)
	if err != nil {
		return nil, err
	}
	return db, nil
}

type PostgresStore struct {
	db *gorm.DB
}

func (store *PostgresStore) Open(access config.DbAccess) error {
	if !access.Enabled {
		return errors.New("db_open_error, db disabled")
	}

	db, err := gorm.Open(postgres.Open(fmt.Sprintf(
		"host=%v port=%v user=%v dbname=%v password=%v sslmode=disable",
		access.Host,
		access.Port,
		access.User,
		access.Name,
		access.Password)),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	if err != nil {
		return fmt.Errorf("db_open_error, Error opening the DB connection: %v", err)
	}

	sqldb, err := db.DB()
	if err != nil {
		return fmt.Errorf("db_open_error, Error opening the DB connection: %v", err)
	}

	sqldb.SetMaxIdleConns(access.MaxIdleConns)
	sqldb.SetMaxOpenConns(access.MaxOpenConns)
	sqldb.SetConnMaxLifetime(access.ConnMaxLifetime)

	store.db = db
	return nil
}

func (store *PostgresStore) AutoMigrate() error {
	panic("should not be called")
}

func (store *PostgresStore) Close() {
	if store.db != nil {
		if sqldb, _ := store.db.DB(); sqldb != nil {
			sqldb.Close()
		}
	}
}

func (store *PostgresStore) Get() *gorm.DB {
	return store.db
}
