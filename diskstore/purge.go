package diskstore

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/core/memorystore"
)

// Prefix for cache keys that stage which files to delete for a user.
const stagingKeyPrefix = "filePathsToDeleteFor:"

// PathPager pages a user's storage paths out of the relational store, ordered
// by path. Narrow on purpose so the disk layer does not depend on the schema.
type PathPager interface {
	StoragePathsPage(wallet string, afterPath string, limit int) ([]string, error)
}

// Purger is the two-phase bulk deletion of all on-disk data for one user.
// Phase 1 stages every storage path into a durable cache set, phase 2 pops
// pages from that set and deletes them. Splitting the phases bounds memory for
// users with very large file counts.
type Purger struct {
	store        *Store
	cache        *memorystore.Store
	pager        PathPager
	filesPerPage int
	deleteBatch  int
}

func NewPurger(store *Store, cache *memorystore.Store, pager PathPager, filesPerPage, deleteBatch int) *Purger {
	return &Purger{
		store:        store,
		cache:        cache,
		pager:        pager,
		filesPerPage: filesPerPage,
		deleteBatch:  deleteBatch,
	}
}

func stagingKey(wallet string) string {
	return stagingKeyPrefix + wallet
}

// StagePathsForDeletion paginates all of wallet's storage paths into the
// staging set and returns how many are staged. Does not delete anything.
func (p *Purger) StagePathsForDeletion(wallet string) (int, error) {
	key := stagingKey(wallet)
	if err := p.cache.Del(key); err != nil {
		return 0, err
	}

	// Paginate by storagePath, starting at the lowest real character (space).
	prevPath := " "
	for {
		paths, err := p.pager.StoragePathsPage(wallet, prevPath, p.filesPerPage)
		if err != nil {
			return 0, errors.Wrap(err, "paginate storage paths")
		}
		if len(paths) == 0 {
			break
		}
		added, err := p.cache.SAdd(key, paths)
		if err != nil {
			return 0, err
		}
		prevPath = paths[len(paths)-1]
		if len(paths) < p.filesPerPage && added == 0 {
			// Last page was short and contained nothing new.
			break
		}
	}
	return p.cache.SCard(key)
}

// CommitDeletion pops staged pages and deletes them from disk, returning the
// number of files deleted. The staging set is cleared even on error so a
// failed purge cannot leave stale paths behind for the next run.
func (p *Purger) CommitDeletion(wallet string, numStaged int) (deleted int, err error) {
	key := stagingKey(wallet)
	defer func() {
		if delErr := p.cache.Del(key); delErr != nil && err == nil {
			err = delErr
		}
	}()

	for popped := 0; popped < numStaged; popped += p.filesPerPage {
		paths, err := p.cache.SPopN(key, p.filesPerPage)
		if err != nil {
			return deleted, err
		}
		if len(paths) == 0 {
			return deleted, nil
		}
		n, errs := p.store.BatchDelete(paths, p.deleteBatch)
		deleted += n
		if len(errs) > 0 {
			logging.Logger.Warn("purge page had failures",
				zap.String("wallet", wallet),
				zap.Int("failed", len(errs)),
			)
		}
	}
	return deleted, nil
}
