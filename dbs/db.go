package dbs

import (
	"github.com/AudiusProject/creator-node/core/config"
	"gorm.io/gorm"
)

type Store interface {
	Get() *gorm.DB
	Open(access config.DbAccess) error
	AutoMigrate() error
	Close()
}
