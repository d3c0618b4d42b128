package sync

import (
	"time"

	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/common"
	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/core/memorystore"
)

const lockKeyPrefix = "NodeSyncLock:::"

// WalletLocker serializes syncs for the same wallet across the process and
// its peers sharing the cache. The lock is advisory with a TTL safety net: a
// crashed holder cannot leave a wallet permanently un-syncable, at the cost of
// a narrow race window between TTL expiry and release. That tradeoff is
// accepted; do not upgrade this to a consensus primitive without a design
// decision, it changes operational characteristics.
type WalletLocker struct {
	cache *memorystore.Store
	ttl   time.Duration
}

func NewWalletLocker(cache *memorystore.Store, ttl time.Duration) *WalletLocker {
	return &WalletLocker{cache: cache, ttl: ttl}
}

func lockKey(wallet string) string {
	return lockKeyPrefix + wallet
}

// AcquireAll takes the lock for every wallet or none of them. When any wallet
// is already locked, the ones taken so far are released and the caller gets
// sync_in_progress - no partial locking is retried.
func (l *WalletLocker) AcquireAll(wallets []string) error {
	acquired := make([]string, 0, len(wallets))
	for _, wallet := range wallets {
		ok, err := l.cache.AcquireLock(lockKey(wallet), int(l.ttl.Seconds()))
		if err != nil {
			l.ReleaseAll(acquired)
			return err
		}
		if !ok {
			l.ReleaseAll(acquired)
			return common.NewErrorf(common.ErrSyncInProgressCode,
				"cannot change state of wallet %v, node sync currently in progress", wallet)
		}
		acquired = append(acquired, wallet)
	}
	return nil
}

// ReleaseAll releases every lock, logging rather than aborting on failure: a
// lock that cannot be released blocks future syncs until TTL expiry, which is
// an anomaly worth a loud log but not worth masking the sync outcome.
func (l *WalletLocker) ReleaseAll(wallets []string) {
	for _, wallet := range wallets {
		if err := l.cache.ReleaseLock(lockKey(wallet)); err != nil {
			logging.Logger.Error("could not release sync lock, wallet stays locked until ttl expiry",
				zap.String("wallet", wallet),
				zap.Error(err),
			)
		}
	}
}

/*IsLocked - whether a sync is currently in progress for wallet */
func (l *WalletLocker) IsLocked(wallet string) (bool, error) {
	return l.cache.IsLocked(lockKey(wallet))
}
