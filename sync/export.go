package sync

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/dbs/userstate"
)

// ExportService serializes a user's state (or a clock-range slice of it) into
// a transportable snapshot.
type ExportService struct {
	db       *userstate.UserStateDb
	maxRange int
}

func NewExportService(db *userstate.UserStateDb, maxExportClockValueRange int) *ExportService {
	return &ExportService{db: db, maxRange: maxExportClockValueRange}
}

// Export returns the state of every known wallet in wallets, bounded to
// clockRangeMin..clockRangeMin+maxRange-1. The whole read runs inside one
// transaction so concurrent writes cannot produce a torn view, e.g. a file
// row without its clock record. Wallets with no local user are omitted.
func (s *ExportService) Export(wallets []string, clockRangeMin *int) (*ExportPayload, error) {
	requestedMin := 0
	if clockRangeMin != nil {
		requestedMin = *clockRangeMin
	}
	requestedMax := requestedMin + s.maxRange - 1

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // read-only snapshot

	users, err := tx.GetCNodeUsers(wallets)
	if err != nil {
		return nil, errors.Wrap(err, "load cnode users")
	}

	payload := &ExportPayload{CNodeUsers: make(map[string]*ExportedCNodeUser, len(users))}
	for i := range users {
		user := users[i]
		exported, err := exportUser(tx, &user, requestedMin, requestedMax)
		if err != nil {
			return nil, errors.Wrapf(err, "export wallet %v", user.WalletPublicKey)
		}
		payload.CNodeUsers[user.CNodeUserUUID] = exported
	}
	return payload, nil
}

func exportUser(tx *userstate.UserStateDb, user *userstate.CNodeUser, requestedMin, requestedMax int) (*ExportedCNodeUser, error) {
	userID := user.CNodeUserUUID

	audiusUsers, err := tx.GetAudiusUsersInRange(userID, requestedMin, requestedMax)
	if err != nil {
		return nil, err
	}
	tracks, err := tx.GetTracksInRange(userID, requestedMin, requestedMax)
	if err != nil {
		return nil, err
	}
	files, err := tx.GetFilesInRange(userID, requestedMin, requestedMax)
	if err != nil {
		return nil, err
	}
	clockRecords, err := tx.GetClockRecordsInRange(userID, requestedMin, requestedMax)
	if err != nil {
		return nil, err
	}

	exported := &ExportedCNodeUser{
		CNodeUser:    *user,
		AudiusUsers:  audiusUsers,
		Tracks:       tracks,
		Files:        files,
		ClockRecords: clockRecords,
		ClockInfo: &ClockInfo{
			RequestedClockRangeMin: requestedMin,
			RequestedClockRangeMax: requestedMax,
			LocalClockMax:          user.Clock,
		},
	}
	// Pin the header clock to the max clock actually included so an importer
	// that trusts the header cannot get ahead of the rows it received.
	if exported.Clock > requestedMax {
		exported.Clock = requestedMax
	}

	logging.Logger.Debug("exported cnode user",
		zap.String("wallet", user.WalletPublicKey),
		zap.Int("requested_min", requestedMin),
		zap.Int("requested_max", requestedMax),
		zap.Int("local_clock_max", user.Clock),
		zap.Int("clock_records", len(clockRecords)),
	)
	return exported, nil
}
