package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/cnode"
	"github.com/AudiusProject/creator-node/core/config"
	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/core/memorystore"
	"github.com/AudiusProject/creator-node/dbs/postgresql"
	"github.com/AudiusProject/creator-node/dbs/userstate"
	"github.com/AudiusProject/creator-node/diskstore"
	"github.com/AudiusProject/creator-node/sync"
)

func main() {
	development := flag.Bool("development", false, "development mode")
	flag.Parse()

	config.SetupDefaultConfig()
	config.SetupConfig()
	if *development {
		logging.InitLogging("development")
	} else {
		logging.InitLogging("production")
	}
	cfg := config.ReadConfig()

	pg, err := postgresql.GetPostgresSqlDb(cfg.Db)
	if err != nil {
		logging.Logger.Panic("error opening postgres", zap.Error(err))
	}
	db, err := userstate.NewUserStateDb(pg)
	if err != nil {
		logging.Logger.Panic("error migrating user state schema", zap.Error(err))
	}

	memorystore.InitDefaultPool(cfg.RedisHost, cfg.RedisPort)
	cache := memorystore.NewStore(memorystore.DefaultPool)

	disk, err := diskstore.NewStore(cfg.StorageRoot)
	if err != nil {
		logging.Logger.Panic("error initializing file storage", zap.Error(err))
	}
	purger := diskstore.NewPurger(disk, cache, cnode.NewWalletPathPager(db), cfg.FilesPerPage, cfg.DeleteBatchSize)

	fetchClient := &http.Client{Timeout: cfg.FetchTimeout}
	exportClient := &http.Client{Timeout: cfg.ExportTimeout}

	exporter := sync.NewExportService(db, cfg.MaxExportClockValueRange)
	locker := sync.NewWalletLocker(cache, cfg.SyncLockTTL)
	health := sync.NewHealthTracker(cache, cfg.HealthExpiry)
	fetcher := sync.NewContentFetcher(disk, fetchClient, cfg.FetchWorkers)
	fetcher.LocalGateway = cfg.LocalGateway
	coordinator := sync.NewCoordinator(db, fetcher, locker, health, exportClient, cfg.SelfEndpoint)

	tasks := cnode.NewTaskPool(cfg.FetchWorkers, 1024)
	defer tasks.Stop()

	node := cnode.NewNode(cfg, db, disk, purger, exporter, coordinator, locker, health, fetcher, tasks)

	mux := http.DefaultServeMux
	node.SetupHandlers(mux)

	address := fmt.Sprintf(":%v", cfg.Port)
	server := &http.Server{
		Addr:              address,
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           mux,
	}
	logging.Logger.Info("starting creator node",
		zap.String("address", address),
		zap.String("self_endpoint", cfg.SelfEndpoint),
		zap.String("storage_root", cfg.StorageRoot),
	)
	logging.Logger.Fatal("server exited", zap.Error(server.ListenAndServe()))
}
