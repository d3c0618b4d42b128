package sync

import (
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/common"
	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/dbs/userstate"
)

// SyncState names the phases of one RunSync call.
type SyncState string

const (
	StateIdle            SyncState = "Idle"
	StateLocked          SyncState = "Locked"
	StateFetching        SyncState = "Fetching"
	StateReconciling     SyncState = "Reconciling"
	StateFetchingContent SyncState = "FetchingContent"
	StateCommitting      SyncState = "Committing"
	StateDone            SyncState = "Done"
	StateFailed          SyncState = "Failed"
)

// Guard against a remote that keeps reporting more data than it returns.
const maxSyncPages = 1000

// ReplicaSetProvider resolves the ordered replica-set endpoints holding a
// wallet's content. Resolution itself (on-chain registry lookup) lives outside
// this engine.
type ReplicaSetProvider interface {
	GetReplicaSet(wallet string) ([]string, error)
}

// Coordinator drives one sync: lock the wallets, pull the remote's export,
// reconcile it into local storage, materialize missing content bytes, and
// record the outcome. Retries are the scheduler's responsibility, never the
// coordinator's.
type Coordinator struct {
	db          *userstate.UserStateDb
	fetcher     *ContentFetcher
	locker      *WalletLocker
	health      *HealthTracker
	client      *http.Client
	replicaSets ReplicaSetProvider // optional; the sync source is always tried

	selfEndpoint string
}

func NewCoordinator(
	db *userstate.UserStateDb,
	fetcher *ContentFetcher,
	locker *WalletLocker,
	health *HealthTracker,
	client *http.Client,
	selfEndpoint string,
) *Coordinator {
	return &Coordinator{
		db:           db,
		fetcher:      fetcher,
		locker:       locker,
		health:       health,
		client:       client,
		selfEndpoint: selfEndpoint,
	}
}

// SetReplicaSetProvider injects replica-set resolution for content fetch
// fallback sources.
func (c *Coordinator) SetReplicaSetProvider(p ReplicaSetProvider) {
	c.replicaSets = p
}

// RunSync pulls the state of wallets from remoteEndpoint and reconciles it
// into local storage. With forceResync the local subtree for each wallet is
// discarded and fully replaced. Locks are all-or-nothing: if any wallet is
// already being synced the call fails fast with sync_in_progress.
//
// Database rows are committed before content bytes are fetched: content can be
// re-fetched lazily on read, database divergence cannot.
func (c *Coordinator) RunSync(wallets []string, remoteEndpoint string, forceResync bool) error {
	start := time.Now()
	state := StateIdle
	syncType := SyncTypeRecurring
	if forceResync {
		syncType = SyncTypeManual
	}

	if err := c.locker.AcquireAll(wallets); err != nil {
		return err
	}
	state = StateLocked
	defer c.locker.ReleaseAll(wallets)

	for _, wallet := range wallets {
		if err := c.syncWallet(wallet, remoteEndpoint, forceResync, &state); err != nil {
			logging.Logger.Error("sync failed",
				zap.String("wallet", wallet),
				zap.String("remote", remoteEndpoint),
				zap.String("state", string(state)),
				zap.Error(err),
			)
			state = StateFailed
			c.recordOutcome(wallet, syncType, false)
			return err
		}
		c.recordOutcome(wallet, syncType, true)
	}

	state = StateDone
	logging.Logger.Info("sync complete",
		zap.Strings("wallets", wallets),
		zap.String("remote", remoteEndpoint),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// recordOutcome attributes the outcome to this node as the secondary that ran
// the sync.
func (c *Coordinator) recordOutcome(wallet, syncType string, success bool) {
	secondary := c.selfEndpoint
	if secondary == "" {
		secondary = "self"
	}
	if success {
		c.health.RecordSuccess(secondary, wallet, syncType)
	} else {
		c.health.RecordFailure(secondary, wallet, syncType)
	}
}

// syncWallet pages through the remote's history for one wallet until caught
// up: each round requests clocks past what is already local, reconciles, then
// fetches the referenced content.
func (c *Coordinator) syncWallet(wallet, remoteEndpoint string, forceResync bool, state *SyncState) error {
	fullReplace := forceResync
	for page := 0; page < maxSyncPages; page++ {
		clockRangeMin := 0
		if !fullReplace {
			local, err := c.db.GetCNodeUser(wallet)
			if err != nil {
				return err
			}
			if local == nil {
				fullReplace = true
			} else {
				clockRangeMin = local.Clock + 1
			}
		}

		*state = StateFetching
		payload, err := FetchExport(c.client, remoteEndpoint, FetchExportOptions{
			Wallets:       []string{wallet},
			ClockRangeMin: clockRangeMin,
			ForceExport:   fullReplace,
			SelfEndpoint:  c.selfEndpoint,
		})
		if err != nil {
			return err
		}
		fetched := findExportedUser(payload, wallet)
		if fetched == nil {
			return common.NewErrorf(common.ErrNoResourceCode,
				"wallet %v does not exist on %v", wallet, remoteEndpoint)
		}

		*state = StateReconciling
		newFiles, err := c.reconcileUser(wallet, fetched, fullReplace)
		if err != nil {
			return err
		}

		*state = StateFetchingContent
		if err := c.fetchContent(wallet, remoteEndpoint, newFiles); err != nil {
			return err
		}
		*state = StateCommitting

		// The header clock is pinned to the max included clock; when the true
		// local max lies past the requested range, pull the next page.
		if fetched.ClockInfo.LocalClockMax <= fetched.ClockInfo.RequestedClockRangeMax {
			return nil
		}
		fullReplace = false
	}
	return errors.Errorf("sync for %v did not converge after %v pages", wallet, maxSyncPages)
}

func findExportedUser(payload *ExportPayload, wallet string) *ExportedCNodeUser {
	for _, fetched := range payload.CNodeUsers {
		if fetched.WalletPublicKey == wallet {
			return fetched
		}
	}
	return nil
}

func (c *Coordinator) fetchContent(wallet, remoteEndpoint string, files []userstate.File) error {
	sources := []string{remoteEndpoint}
	if c.replicaSets != nil {
		replicaSet, err := c.replicaSets.GetReplicaSet(wallet)
		if err != nil {
			logging.Logger.Warn("could not resolve replica set, falling back to sync source",
				zap.String("wallet", wallet),
				zap.Error(err),
			)
		} else {
			for _, endpoint := range replicaSet {
				if endpoint != remoteEndpoint {
					sources = append(sources, endpoint)
				}
			}
		}
	}
	return c.fetcher.FetchMissing(files, sources)
}

// reconcileUser merges one fetched user into local storage inside a single
// transaction and returns the file rows whose content must be materialized.
// Any failure rolls the whole transaction back: no partial user state is ever
// left half-imported.
func (c *Coordinator) reconcileUser(wallet string, fetched *ExportedCNodeUser, fullReplace bool) (files []userstate.File, err error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Logger.Error("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	local, err := tx.GetCNodeUser(wallet)
	if err != nil {
		return nil, err
	}

	if fullReplace || local == nil {
		files, err = importFullReplace(tx, local, fetched)
	} else {
		files, err = importIncremental(tx, local, fetched)
	}
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return files, nil
}

// importFullReplace deletes the whole local subtree and inserts the fetched
// rows verbatim; the user root keeps the fetched uuid and clock so numbering
// is preserved exactly. The fetched records must cover 1..clock without gaps,
// a corrupt export must not become a committed history.
func importFullReplace(tx *userstate.UserStateDb, local *userstate.CNodeUser, fetched *ExportedCNodeUser) ([]userstate.File, error) {
	clockRecords := append([]userstate.ClockRecord(nil), fetched.ClockRecords...)
	sort.Slice(clockRecords, func(i, j int) bool { return clockRecords[i].Clock < clockRecords[j].Clock })
	if len(clockRecords) != fetched.Clock {
		return nil, common.NewErrorf(common.ErrReconciliationConflictCode,
			"remote export for wallet %v carries %v clock records against clock %v",
			fetched.WalletPublicKey, len(clockRecords), fetched.Clock)
	}
	for i := range clockRecords {
		if clockRecords[i].Clock != i+1 {
			return nil, common.NewErrorf(common.ErrReconciliationConflictCode,
				"remote clock records for wallet %v have a gap at clock %v",
				fetched.WalletPublicKey, i+1)
		}
	}

	if local != nil {
		if _, err := tx.DeleteUserSubtree(local.CNodeUserUUID); err != nil {
			return nil, errors.Wrap(err, "delete local subtree")
		}
	}

	user := fetched.CNodeUser
	if err := tx.UpsertCNodeUser(&user); err != nil {
		return nil, errors.Wrap(err, "insert fetched cnode user")
	}
	if err := tx.CreateClockRecords(clockRecords); err != nil {
		return nil, errors.Wrap(err, "insert clock records")
	}
	if err := insertEntityRows(tx, fetched.Files, fetched.Tracks, fetched.AudiusUsers); err != nil {
		return nil, err
	}
	return fetched.Files, nil
}

// importIncremental appends only rows whose clock exceeds the local max. The
// local history must be a strict prefix of the remote's; diverged histories
// have no defined merge and fail with reconciliation_conflict.
func importIncremental(tx *userstate.UserStateDb, local *userstate.CNodeUser, fetched *ExportedCNodeUser) ([]userstate.File, error) {
	localMax := local.Clock
	if fetched.ClockInfo.LocalClockMax < localMax {
		return nil, common.NewErrorf(common.ErrReconciliationConflictCode,
			"local clock %v is ahead of remote clock %v for wallet %v, no merge policy exists for diverged histories",
			localMax, fetched.ClockInfo.LocalClockMax, local.WalletPublicKey)
	}
	if fetched.ClockInfo.LocalClockMax == localMax {
		return nil, nil
	}

	clockRecords := filterClockRecords(fetched.ClockRecords, localMax)
	sort.Slice(clockRecords, func(i, j int) bool { return clockRecords[i].Clock < clockRecords[j].Clock })
	if len(clockRecords) == 0 || clockRecords[0].Clock != localMax+1 {
		return nil, common.NewErrorf(common.ErrReconciliationConflictCode,
			"remote export for wallet %v does not continue local history at clock %v",
			local.WalletPublicKey, localMax+1)
	}
	for i := 1; i < len(clockRecords); i++ {
		if clockRecords[i].Clock != clockRecords[i-1].Clock+1 {
			return nil, common.NewErrorf(common.ErrReconciliationConflictCode,
				"remote clock records for wallet %v have a gap at clock %v",
				local.WalletPublicKey, clockRecords[i-1].Clock+1)
		}
	}
	newMax := clockRecords[len(clockRecords)-1].Clock

	// Nodes assign their own uuid to the user root, so imported rows are
	// re-keyed to the local uuid.
	userID := local.CNodeUserUUID
	for i := range clockRecords {
		clockRecords[i].CNodeUserUUID = userID
	}
	var newFiles []userstate.File
	for _, f := range fetched.Files {
		if f.Clock > localMax {
			f.CNodeUserUUID = userID
			newFiles = append(newFiles, f)
		}
	}
	var newTracks []userstate.Track
	for _, t := range fetched.Tracks {
		if t.Clock > localMax {
			t.CNodeUserUUID = userID
			newTracks = append(newTracks, t)
		}
	}
	var newAudiusUsers []userstate.AudiusUser
	for _, au := range fetched.AudiusUsers {
		if au.Clock > localMax {
			au.CNodeUserUUID = userID
			newAudiusUsers = append(newAudiusUsers, au)
		}
	}

	if err := tx.CreateClockRecords(clockRecords); err != nil {
		return nil, errors.Wrap(err, "insert clock records")
	}
	if err := insertEntityRows(tx, newFiles, newTracks, newAudiusUsers); err != nil {
		return nil, err
	}
	if err := tx.SetClock(userID, newMax); err != nil {
		return nil, errors.Wrap(err, "advance local clock")
	}
	return newFiles, nil
}

// insertEntityRows inserts in row-type dependency order: files that stand
// alone first, then tracks (which reference metadata files), then files that
// reference a track, then profile rows. Track-referencing files and their
// track may share the same clock position, so the dependent pass always runs
// after track creation.
func insertEntityRows(tx *userstate.UserStateDb, files []userstate.File, tracks []userstate.Track, audiusUsers []userstate.AudiusUser) error {
	independent, dependent := userstate.SplitFilesByTrackDependency(files)
	if err := tx.CreateFiles(independent); err != nil {
		return errors.Wrap(err, "insert non-track files")
	}
	if err := tx.CreateTracks(tracks); err != nil {
		return errors.Wrap(err, "insert tracks")
	}
	if err := tx.CreateFiles(dependent); err != nil {
		return errors.Wrap(err, "insert track files")
	}
	if err := tx.CreateAudiusUsers(audiusUsers); err != nil {
		return errors.Wrap(err, "insert audius users")
	}
	return nil
}

func filterClockRecords(records []userstate.ClockRecord, above int) []userstate.ClockRecord {
	var out []userstate.ClockRecord
	for _, r := range records {
		if r.Clock > above {
			out = append(out, r)
		}
	}
	return out
}
