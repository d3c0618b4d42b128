package diskstore

import (
	"os"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/require"

	"github.com/AudiusProject/creator-node/core/memorystore"
)

func newTestCache(t *testing.T) *memorystore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	pool := &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", mr.Addr())
		},
	}
	t.Cleanup(func() { pool.Close() })
	return memorystore.NewStore(pool)
}

// slicePager serves sorted storage paths page by page, the way the relational
// store does.
type slicePager struct {
	paths map[string][]string
}

func (p *slicePager) StoragePathsPage(wallet string, afterPath string, limit int) ([]string, error) {
	var page []string
	for _, path := range p.paths[wallet] {
		if path > afterPath {
			page = append(page, path)
			if len(page) == limit {
				break
			}
		}
	}
	return page, nil
}

func TestPurgerTwoPhaseDeletion(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t)

	var paths []string
	for _, content := range []string{"a", "b", "c", "d", "e"} {
		_, path, err := store.Put([]byte(content))
		require.NoError(t, err)
		paths = append(paths, path)
	}
	sort.Strings(paths)
	pager := &slicePager{paths: map[string][]string{"0xwallet": paths}}

	// Small pages force multiple staging and deletion rounds.
	purger := NewPurger(store, cache, pager, 2, 2)

	staged, err := purger.StagePathsForDeletion("0xwallet")
	require.NoError(t, err)
	require.Equal(t, 5, staged)

	// Staging alone deletes nothing.
	for _, path := range paths {
		_, err := os.Stat(path)
		require.NoError(t, err)
	}

	deleted, err := purger.CommitDeletion("0xwallet", staged)
	require.NoError(t, err)
	require.Equal(t, 5, deleted)
	for _, path := range paths {
		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	}

	// The staging set is cleared after the commit.
	remaining, err := cache.SCard(stagingKey("0xwallet"))
	require.NoError(t, err)
	require.Equal(t, 0, remaining)
}

func TestPurgerUnknownWalletStagesNothing(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t)
	purger := NewPurger(store, cache, &slicePager{paths: map[string][]string{}}, 10, 10)

	staged, err := purger.StagePathsForDeletion("0xunknown")
	require.NoError(t, err)
	require.Equal(t, 0, staged)

	deleted, err := purger.CommitDeletion("0xunknown", staged)
	require.NoError(t, err)
	require.Equal(t, 0, deleted)
}
