package sync

import (
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/core/memorystore"
	"github.com/AudiusProject/creator-node/dbs/sqlite"
	"github.com/AudiusProject/creator-node/dbs/userstate"
	"github.com/AudiusProject/creator-node/diskstore"
)

func init() {
	logging.Logger = zap.NewNop()
}

func newTestDb(t *testing.T) *userstate.UserStateDb {
	t.Helper()
	store, err := sqlite.NewSqliteStore()
	require.NoError(t, err)
	t.Cleanup(store.Close)
	db, err := userstate.NewUserStateDb(store)
	require.NoError(t, err)
	return db
}

func newTestCache(t *testing.T) (*memorystore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	pool := &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", mr.Addr())
		},
	}
	t.Cleanup(func() { pool.Close() })
	return memorystore.NewStore(pool), mr
}

func newTestDisk(t *testing.T) *diskstore.Store {
	t.Helper()
	disk, err := diskstore.NewStore(t.TempDir())
	require.NoError(t, err)
	return disk
}

// writeContentFile stores data on disk and appends the matching file row at
// the user's next clock value.
func writeContentFile(t *testing.T, db *userstate.UserStateDb, disk *diskstore.Store, userID string, data []byte) string {
	t.Helper()
	cid, path, err := disk.Put(data)
	require.NoError(t, err)
	err = db.WriteWithClock(userID, userstate.SourceFile, func(tx *userstate.UserStateDb, clock int) error {
		return tx.CreateFiles([]userstate.File{{
			FileUUID:      uuid.NewString(),
			CNodeUserUUID: userID,
			Multihash:     cid,
			StoragePath:   path,
			Type:          userstate.FileTypeMetadata,
			Clock:         clock,
		}})
	})
	require.NoError(t, err)
	return cid
}

// writeMetadataOnly appends an audius user row without any content bytes.
func writeMetadataOnly(t *testing.T, db *userstate.UserStateDb, userID string) {
	t.Helper()
	err := db.WriteWithClock(userID, userstate.SourceAudiusUser, func(tx *userstate.UserStateDb, clock int) error {
		return tx.CreateAudiusUsers([]userstate.AudiusUser{{
			AudiusUserUUID: uuid.NewString(),
			CNodeUserUUID:  userID,
			MetadataJSON:   []byte(fmt.Sprintf(`{"handle":"user-%d"}`, clock)),
			Clock:          clock,
		}})
	})
	require.NoError(t, err)
}
