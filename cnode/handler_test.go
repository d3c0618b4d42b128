package cnode

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/common"
	"github.com/AudiusProject/creator-node/core/config"
	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/core/memorystore"
	"github.com/AudiusProject/creator-node/dbs/sqlite"
	"github.com/AudiusProject/creator-node/dbs/userstate"
	"github.com/AudiusProject/creator-node/diskstore"
	"github.com/AudiusProject/creator-node/sync"
)

func init() {
	logging.Logger = zap.NewNop()
}

type testNode struct {
	node   *Node
	db     *userstate.UserStateDb
	disk   *diskstore.Store
	locker *sync.WalletLocker
	server *httptest.Server
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	store, err := sqlite.NewSqliteStore()
	require.NoError(t, err)
	t.Cleanup(store.Close)
	db, err := userstate.NewUserStateDb(store)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	pool := &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", mr.Addr())
		},
	}
	t.Cleanup(func() { pool.Close() })
	cache := memorystore.NewStore(pool)

	disk, err := diskstore.NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		Port:                     4000,
		SelfEndpoint:             "http://localhost:4000",
		StorageRoot:              disk.Root(),
		MaxExportClockValueRange: 25000,
		SyncLockTTL:              time.Hour,
		HealthExpiry:             90 * 24 * time.Hour,
		FetchWorkers:             2,
		DeleteBatchSize:          10,
		FilesPerPage:             100,
	}

	client := &http.Client{Timeout: 5 * time.Second}
	exporter := sync.NewExportService(db, cfg.MaxExportClockValueRange)
	locker := sync.NewWalletLocker(cache, cfg.SyncLockTTL)
	health := sync.NewHealthTracker(cache, cfg.HealthExpiry)
	fetcher := sync.NewContentFetcher(disk, client, cfg.FetchWorkers)
	coordinator := sync.NewCoordinator(db, fetcher, locker, health, client, cfg.SelfEndpoint)
	purger := diskstore.NewPurger(disk, cache, NewWalletPathPager(db), cfg.FilesPerPage, cfg.DeleteBatchSize)
	tasks := NewTaskPool(1, 16)
	t.Cleanup(tasks.Stop)

	node := NewNode(cfg, db, disk, purger, exporter, coordinator, locker, health, fetcher, tasks)
	mux := http.NewServeMux()
	node.SetupHandlers(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testNode{node: node, db: db, disk: disk, locker: locker, server: server}
}

func (tn *testNode) seedFile(t *testing.T, wallet string, data []byte) string {
	t.Helper()
	user, err := tn.db.GetOrCreateCNodeUser(wallet)
	require.NoError(t, err)
	cid, path, err := tn.disk.Put(data)
	require.NoError(t, err)
	err = tn.db.WriteWithClock(user.CNodeUserUUID, userstate.SourceFile, func(tx *userstate.UserStateDb, clock int) error {
		return tx.CreateFiles([]userstate.File{{
			FileUUID:      uuid.NewString(),
			CNodeUserUUID: user.CNodeUserUUID,
			Multihash:     cid,
			StoragePath:   path,
			Type:          userstate.FileTypeMetadata,
			Clock:         clock,
		}})
	})
	require.NoError(t, err)
	return cid
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestExportEndpoint(t *testing.T) {
	tn := newTestNode(t)
	tn.seedFile(t, "0xwallet", []byte("payload"))

	var payload sync.ExportPayload
	resp := getJSON(t, tn.server.URL+"/export?wallet_public_key=0xwallet", &payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, payload.CNodeUsers, 1)
	for _, exported := range payload.CNodeUsers {
		require.Equal(t, "0xwallet", exported.WalletPublicKey)
		require.Equal(t, 1, exported.Clock)
	}
}

func TestExportEndpointRequiresWallet(t *testing.T) {
	tn := newTestNode(t)
	resp := getJSON(t, tn.server.URL+"/export", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, common.ErrBadRequestCode, resp.Header.Get(common.AppErrorHeader))
}

func TestExportEndpointRejectsBadClockRange(t *testing.T) {
	tn := newTestNode(t)
	resp := getJSON(t, tn.server.URL+"/export?wallet_public_key=0xw&clock_range_min=-3", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncEndpointValidation(t *testing.T) {
	tn := newTestNode(t)

	resp := getJSON(t, tn.server.URL+"/sync", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(tn.server.URL+"/sync", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncEndpointLockedWallet(t *testing.T) {
	tn := newTestNode(t)
	require.NoError(t, tn.locker.AcquireAll([]string{"0xwallet"}))

	body := `{"wallet": ["0xwallet"], "creator_node_endpoint": "http://remote", "immediate": true}`
	resp, err := http.Post(tn.server.URL+"/sync", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	require.Equal(t, common.ErrSyncInProgressCode, resp.Header.Get(common.AppErrorHeader))

	// The background variant also refuses rather than silently dropping.
	body = `{"wallet": ["0xwallet"], "creator_node_endpoint": "http://remote"}`
	resp, err = http.Post(tn.server.URL+"/sync", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestSyncEndpointAcceptsBackgroundSync(t *testing.T) {
	tn := newTestNode(t)
	body := `{"wallet": ["0xwallet"], "creator_node_endpoint": "http://127.0.0.1:1"}`
	resp, err := http.Post(tn.server.URL+"/sync", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestSyncStatusEndpoint(t *testing.T) {
	tn := newTestNode(t)

	var status map[string]interface{}
	resp := getJSON(t, tn.server.URL+"/sync_status/0xwallet", &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, status["isSyncInProgress"])

	require.NoError(t, tn.locker.AcquireAll([]string{"0xwallet"}))
	resp = getJSON(t, tn.server.URL+"/sync_status/0xwallet", &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, status["isSyncInProgress"])
}

func TestServeContent(t *testing.T) {
	tn := newTestNode(t)
	data := []byte("served bytes")
	cid := tn.seedFile(t, "0xwallet", data)

	resp, err := http.Get(tn.server.URL + "/ipfs/" + cid)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	read, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, data, read)
}

func TestServeContentInvalidCID(t *testing.T) {
	tn := newTestNode(t)
	resp := getJSON(t, tn.server.URL+"/ipfs/not-a-cid", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, common.ErrInvalidCIDCode, resp.Header.Get(common.AppErrorHeader))
}

func TestServeContentMissing(t *testing.T) {
	tn := newTestNode(t)
	cid := diskstore.ComputeCID([]byte("never stored"))
	resp := getJSON(t, tn.server.URL+"/ipfs/"+cid, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, common.ErrNoResourceCode, resp.Header.Get(common.AppErrorHeader))
}

func TestHealthCheckEndpoint(t *testing.T) {
	tn := newTestNode(t)
	var health map[string]interface{}
	resp := getJSON(t, tn.server.URL+"/health_check", &health)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, health["healthy"])
	require.Equal(t, "content-node", health["service"])
}

func TestClockStatusEndpoint(t *testing.T) {
	tn := newTestNode(t)

	var status map[string]interface{}
	resp := getJSON(t, tn.server.URL+"/users/clock_status/0xunknown", &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, -1, status["clockValue"])

	tn.seedFile(t, "0xwallet", []byte("x"))
	resp = getJSON(t, tn.server.URL+"/users/clock_status/0xwallet", &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, status["clockValue"])
	require.Equal(t, false, status["syncInProgress"])
}

func TestPurgeEndpoint(t *testing.T) {
	tn := newTestNode(t)
	cid := tn.seedFile(t, "0xwallet", []byte("purge me"))

	resp, err := http.Post(tn.server.URL+"/users/purge", "application/json",
		bytes.NewBufferString(`{"wallet": "0xwallet"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.EqualValues(t, 1, result["filesStaged"])
	require.EqualValues(t, 1, result["filesDeleted"])

	user, err := tn.db.GetCNodeUser("0xwallet")
	require.NoError(t, err)
	require.Nil(t, user)
	require.False(t, tn.disk.Has(diskstore.NewFileRef(cid)))
}

func TestPurgeEndpointUnknownWallet(t *testing.T) {
	tn := newTestNode(t)
	resp, err := http.Post(tn.server.URL+"/users/purge", "application/json",
		bytes.NewBufferString(`{"wallet": "0xnobody"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSecondarySyncRatesEndpoint(t *testing.T) {
	tn := newTestNode(t)

	resp := getJSON(t, tn.server.URL+"/secondary_sync_rates/0xwallet", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var rates map[string]*sync.SecondarySyncMetrics
	resp = getJSON(t, tn.server.URL+"/secondary_sync_rates/0xwallet?secondaries=http://a", &rates)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1.0, rates["http://a"].SuccessRate)
}
