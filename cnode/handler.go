package cnode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/common"
	"github.com/AudiusProject/creator-node/core/config"
	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/dbs/userstate"
	"github.com/AudiusProject/creator-node/diskstore"
	"github.com/AudiusProject/creator-node/sync"
)

// Node wires the replication engine to its HTTP surface.
type Node struct {
	cfg         *config.Config
	db          *userstate.UserStateDb
	disk        *diskstore.Store
	purger      *diskstore.Purger
	exporter    *sync.ExportService
	coordinator *sync.Coordinator
	locker      *sync.WalletLocker
	health      *sync.HealthTracker
	fetcher     *sync.ContentFetcher
	replicaSets sync.ReplicaSetProvider
	tasks       *TaskPool
}

func NewNode(
	cfg *config.Config,
	db *userstate.UserStateDb,
	disk *diskstore.Store,
	purger *diskstore.Purger,
	exporter *sync.ExportService,
	coordinator *sync.Coordinator,
	locker *sync.WalletLocker,
	health *sync.HealthTracker,
	fetcher *sync.ContentFetcher,
	tasks *TaskPool,
) *Node {
	return &Node{
		cfg:         cfg,
		db:          db,
		disk:        disk,
		purger:      purger,
		exporter:    exporter,
		coordinator: coordinator,
		locker:      locker,
		health:      health,
		fetcher:     fetcher,
		tasks:       tasks,
	}
}

// SetReplicaSetProvider enables content re-fetch fallback across a wallet's
// replica set when serving reads.
func (n *Node) SetReplicaSetProvider(p sync.ReplicaSetProvider) {
	n.replicaSets = p
	n.coordinator.SetReplicaSetProvider(p)
}

/*SetupHandlers sets up the necessary API end points */
func (n *Node) SetupHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/export", common.ToJSONResponse(n.ExportHandler))
	mux.HandleFunc("/sync", n.SyncHandler)
	mux.HandleFunc("/sync_status/", common.ToJSONResponse(n.SyncStatusHandler))
	mux.HandleFunc("/ipfs/", n.ServeContentHandler)
	mux.HandleFunc("/health_check", common.ToJSONResponse(n.HealthCheckHandler))
	mux.HandleFunc("/users/clock_status/", common.ToJSONResponse(n.ClockStatusHandler))
	mux.HandleFunc("/users/purge", common.ToJSONResponse(n.PurgeHandler))
	mux.HandleFunc("/secondary_sync_rates/", common.ToJSONResponse(n.SecondarySyncRatesHandler))
}

/*ExportHandler - GET /export?wallet_public_key=w1,w2&clock_range_min=n */
func (n *Node) ExportHandler(_ context.Context, r *http.Request) (interface{}, error) {
	walletsParam := r.URL.Query().Get("wallet_public_key")
	if walletsParam == "" {
		return nil, common.InvalidRequest("wallet_public_key is required")
	}
	wallets := strings.Split(walletsParam, ",")

	var clockRangeMin *int
	if param := r.URL.Query().Get("clock_range_min"); param != "" {
		value, err := strconv.Atoi(param)
		if err != nil || value < 0 {
			return nil, common.InvalidRequest("clock_range_min must be a non-negative integer")
		}
		clockRangeMin = &value
	}
	if source := r.URL.Query().Get("source_endpoint"); source != "" {
		logging.Logger.Info("export requested",
			zap.Strings("wallets", wallets),
			zap.String("source_endpoint", source),
		)
	}
	return n.exporter.Export(wallets, clockRangeMin)
}

type syncRequest struct {
	Wallet              []string `json:"wallet"`
	CreatorNodeEndpoint string   `json:"creator_node_endpoint"`
	Immediate           bool     `json:"immediate"`
	ForceResync         bool     `json:"force_resync"`
}

/*SyncHandler - POST /sync, immediate or fire-and-forget */
func (n *Node) SyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		common.Respond(w, r, nil, common.InvalidRequest("POST required"))
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.Respond(w, r, nil, common.InvalidRequest(err.Error()))
		return
	}
	if len(req.Wallet) == 0 || req.CreatorNodeEndpoint == "" {
		common.Respond(w, r, nil, common.InvalidRequest("wallet and creator_node_endpoint are required"))
		return
	}

	if req.Immediate {
		start := time.Now()
		if err := n.coordinator.RunSync(req.Wallet, req.CreatorNodeEndpoint, req.ForceResync); err != nil {
			common.Respond(w, r, nil, err)
			return
		}
		common.Respond(w, r, map[string]interface{}{
			"duration": time.Since(start).Milliseconds(),
		}, nil)
		return
	}

	// Fail fast on held locks so the caller gets the 423 now instead of a
	// silently dropped background sync.
	for _, wallet := range req.Wallet {
		locked, err := n.locker.IsLocked(wallet)
		if err != nil {
			common.Respond(w, r, nil, err)
			return
		}
		if locked {
			common.Respond(w, r, nil, common.NewErrorf(common.ErrSyncInProgressCode,
				"cannot change state of wallet %v, node sync currently in progress", wallet))
			return
		}
	}
	n.tasks.Submit("sync", func() error {
		return n.coordinator.RunSync(req.Wallet, req.CreatorNodeEndpoint, req.ForceResync)
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "accepted"}) //nolint:errcheck
}

/*SyncStatusHandler - GET /sync_status/:wallet */
func (n *Node) SyncStatusHandler(_ context.Context, r *http.Request) (interface{}, error) {
	wallet := strings.TrimPrefix(r.URL.Path, "/sync_status/")
	if wallet == "" {
		return nil, common.InvalidRequest("wallet is required")
	}
	locked, err := n.locker.IsLocked(wallet)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"walletPublicKey":  wallet,
		"isSyncInProgress": locked,
	}, nil
}

/*ServeContentHandler - GET /ipfs/:cid and GET /ipfs/:dirCID/:filename */
func (n *Node) ServeContentHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/ipfs/"), "/")
	var ref diskstore.ContentRef
	switch {
	case len(parts) == 1 && parts[0] != "":
		ref = diskstore.NewFileRef(parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		ref = diskstore.NewDirEntryRef(parts[0], parts[1])
	default:
		common.Respond(w, r, nil, common.InvalidRequest("expected /ipfs/:cid or /ipfs/:dirCID/:filename"))
		return
	}
	if err := diskstore.ValidateCID(ref.CID); err != nil {
		common.Respond(w, r, nil, err)
		return
	}

	f, err := n.disk.Open(ref)
	if err != nil {
		if common.IsCode(err, common.ErrNoResourceCode) {
			n.dispatchRefetch(ref)
		}
		common.Respond(w, r, nil, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, f); err != nil {
		logging.Logger.Error("error streaming content", zap.String("cid", ref.CID), zap.Error(err))
	}
}

// dispatchRefetch opportunistically tries to re-materialize content we have a
// row for but no bytes, without making the reader wait.
func (n *Node) dispatchRefetch(ref diskstore.ContentRef) {
	file, err := n.db.GetFileByMultihash(ref.CID)
	if err != nil || file == nil {
		return
	}
	user, err := n.db.GetCNodeUserByUUID(file.CNodeUserUUID)
	if err != nil || user == nil || n.replicaSets == nil {
		return
	}
	wallet := user.WalletPublicKey
	row := *file
	n.tasks.Submit("content_refetch", func() error {
		sources, err := n.replicaSets.GetReplicaSet(wallet)
		if err != nil {
			return err
		}
		return n.fetcher.FetchMissing([]userstate.File{row}, sources)
	})
}

/*HealthCheckHandler - GET /health_check */
func (n *Node) HealthCheckHandler(_ context.Context, _ *http.Request) (interface{}, error) {
	return map[string]interface{}{
		"healthy":                  true,
		"service":                  "content-node",
		"selfEndpoint":             n.cfg.SelfEndpoint,
		"port":                     n.cfg.Port,
		"storagePath":              n.cfg.StorageRoot,
		"maxExportClockValueRange": n.cfg.MaxExportClockValueRange,
	}, nil
}

/*ClockStatusHandler - GET /users/clock_status/:wallet */
func (n *Node) ClockStatusHandler(_ context.Context, r *http.Request) (interface{}, error) {
	wallet := strings.TrimPrefix(r.URL.Path, "/users/clock_status/")
	if wallet == "" {
		return nil, common.InvalidRequest("wallet is required")
	}
	clock := -1
	user, err := n.db.GetCNodeUser(wallet)
	if err != nil {
		return nil, err
	}
	if user != nil {
		clock = user.Clock
	}
	locked, err := n.locker.IsLocked(wallet)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"clockValue":      clock,
		"syncInProgress":  locked,
		"walletPublicKey": wallet,
	}, nil
}

type purgeRequest struct {
	Wallet string `json:"wallet"`
}

/*PurgeHandler - POST /users/purge, removes a user's rows and on-disk content */
func (n *Node) PurgeHandler(_ context.Context, r *http.Request) (interface{}, error) {
	if r.Method != http.MethodPost {
		return nil, common.InvalidRequest("POST required")
	}
	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, common.InvalidRequest(err.Error())
	}
	if req.Wallet == "" {
		return nil, common.InvalidRequest("wallet is required")
	}
	user, err := n.db.GetCNodeUser(req.Wallet)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, common.NewErrorf(common.ErrNoResourceCode, "no cnode user for wallet %v", req.Wallet)
	}

	// Stage disk paths while the rows still exist, drop the rows, then delete
	// from disk off the staged set.
	staged, err := n.purger.StagePathsForDeletion(req.Wallet)
	if err != nil {
		return nil, err
	}
	tx, err := n.db.Begin()
	if err != nil {
		return nil, err
	}
	if _, err := tx.DeleteUserSubtree(user.CNodeUserUUID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	deleted, err := n.purger.CommitDeletion(req.Wallet, staged)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"walletPublicKey": req.Wallet,
		"filesStaged":     staged,
		"filesDeleted":    deleted,
	}, nil
}

/*SecondarySyncRatesHandler - GET /secondary_sync_rates/:wallet?secondaries=a,b */
func (n *Node) SecondarySyncRatesHandler(_ context.Context, r *http.Request) (interface{}, error) {
	wallet := strings.TrimPrefix(r.URL.Path, "/secondary_sync_rates/")
	if wallet == "" {
		return nil, common.InvalidRequest("wallet is required")
	}
	secondariesParam := r.URL.Query().Get("secondaries")
	if secondariesParam == "" {
		return nil, common.InvalidRequest("secondaries is required")
	}
	return n.health.ComputeUserSecondarySyncSuccessRates(wallet, strings.Split(secondariesParam, ","))
}
