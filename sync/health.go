package sync

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/common"
	"github.com/AudiusProject/creator-node/core/logging"
	"github.com/AudiusProject/creator-node/core/memorystore"
)

const healthKeyPrefix = "SecondarySyncRequestOutcomes-Daily"

const (
	OutcomeSuccess = "Success"
	OutcomeFailure = "Failure"
)

const (
	SyncTypeRecurring = "recurring"
	SyncTypeManual    = "manual"
)

// SecondarySyncMetrics aggregates one secondary's outcome counts for a wallet.
type SecondarySyncMetrics struct {
	SuccessCount int64   `json:"successCount"`
	FailureCount int64   `json:"failureCount"`
	SuccessRate  float64 `json:"successRate"`
}

// HealthTracker measures sync success and failure counts per secondary, user
// and day, in daily cache counters that expire after 90 days by default.
type HealthTracker struct {
	cache  *memorystore.Store
	expiry time.Duration
}

func NewHealthTracker(cache *memorystore.Store, expiry time.Duration) *HealthTracker {
	return &HealthTracker{cache: cache, expiry: expiry}
}

// healthKey builds the counter key. "*" components make it a scan pattern.
func healthKey(secondary, wallet, syncType, date, outcome string) string {
	if date == "" {
		date = common.DateKey(time.Now())
	}
	return strings.Join([]string{healthKeyPrefix, secondary, wallet, syncType, date, outcome}, ":::")
}

type healthKeyComponents struct {
	secondary string
	wallet    string
	syncType  string
	date      string
	outcome   string
}

func parseHealthKey(key string) (healthKeyComponents, bool) {
	parts := strings.Split(key, ":::")
	if len(parts) != 6 {
		return healthKeyComponents{}, false
	}
	return healthKeyComponents{
		secondary: parts[1],
		wallet:    parts[2],
		syncType:  parts[3],
		date:      parts[4],
		outcome:   parts[5],
	}, true
}

func (t *HealthTracker) RecordSuccess(secondary, wallet, syncType string) {
	t.recordOutcome(secondary, wallet, syncType, OutcomeSuccess)
}

func (t *HealthTracker) RecordFailure(secondary, wallet, syncType string) {
	t.recordOutcome(secondary, wallet, syncType, OutcomeFailure)
}

// recordOutcome increments the daily counter and sets its expiry. Failures to
// record are swallowed and logged: health accounting must never fail a sync.
func (t *HealthTracker) recordOutcome(secondary, wallet, syncType, outcome string) {
	key := healthKey(secondary, wallet, syncType, "", outcome)
	if _, err := t.cache.Incr(key); err != nil {
		logging.Logger.Error("could not record sync outcome", zap.String("key", key), zap.Error(err))
		return
	}
	if err := t.cache.Expire(key, int(t.expiry.Seconds())); err != nil {
		logging.Logger.Error("could not set sync outcome expiry", zap.String("key", key), zap.Error(err))
	}
}

// ComputeUserSecondarySyncSuccessRates aggregates all daily outcome counts for
// wallet by secondary. A secondary with zero failures - including zero
// observations - rates 1.0: an untested secondary is optimistically treated as
// healthy until proven otherwise.
func (t *HealthTracker) ComputeUserSecondarySyncSuccessRates(wallet string, secondaries []string) (map[string]*SecondarySyncMetrics, error) {
	metrics := make(map[string]*SecondarySyncMetrics, len(secondaries))
	for _, secondary := range secondaries {
		metrics[secondary] = &SecondarySyncMetrics{}
	}

	pattern := healthKey("*", wallet, "*", "*", "*")
	if err := t.aggregate(pattern, func(c healthKeyComponents, count int64) {
		m, ok := metrics[c.secondary]
		if !ok {
			// Secondaries cycled out of the user's replica set are skipped.
			return
		}
		switch c.outcome {
		case OutcomeSuccess:
			m.SuccessCount += count
		case OutcomeFailure:
			m.FailureCount += count
		}
	}); err != nil {
		return nil, err
	}

	for _, m := range metrics {
		m.SuccessRate = successRate(m.SuccessCount, m.FailureCount)
	}
	return metrics, nil
}

// BatchComputeUserSecondarySyncSuccessRates computes rates for many wallets in
// one scan pass to bound the number of key-matching operations under load.
func (t *HealthTracker) BatchComputeUserSecondarySyncSuccessRates(walletsToSecondaries map[string][]string) (map[string]map[string]*SecondarySyncMetrics, error) {
	all := make(map[string]map[string]*SecondarySyncMetrics, len(walletsToSecondaries))
	for wallet, secondaries := range walletsToSecondaries {
		metrics := make(map[string]*SecondarySyncMetrics, len(secondaries))
		for _, secondary := range secondaries {
			metrics[secondary] = &SecondarySyncMetrics{}
		}
		all[wallet] = metrics
	}

	pattern := healthKey("*", "*", "*", "*", "*")
	if err := t.aggregate(pattern, func(c healthKeyComponents, count int64) {
		metrics, ok := all[c.wallet]
		if !ok {
			return
		}
		m, ok := metrics[c.secondary]
		if !ok {
			return
		}
		switch c.outcome {
		case OutcomeSuccess:
			m.SuccessCount += count
		case OutcomeFailure:
			m.FailureCount += count
		}
	}); err != nil {
		return nil, err
	}

	for _, metrics := range all {
		for _, m := range metrics {
			m.SuccessRate = successRate(m.SuccessCount, m.FailureCount)
		}
	}
	return all, nil
}

// FailureCountToday returns today's failure count for one (secondary, wallet,
// syncType) triple.
func (t *HealthTracker) FailureCountToday(secondary, wallet, syncType string) (int64, error) {
	counts, err := t.cache.MGetInts([]string{healthKey(secondary, wallet, syncType, "", OutcomeFailure)})
	if err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

func (t *HealthTracker) aggregate(pattern string, visit func(healthKeyComponents, int64)) error {
	keys, err := t.cache.ScanKeys(pattern)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	counts, err := t.cache.MGetInts(keys)
	if err != nil {
		return err
	}
	for i, key := range keys {
		components, ok := parseHealthKey(key)
		if !ok {
			continue
		}
		visit(components, counts[i])
	}
	return nil
}

func successRate(successes, failures int64) float64 {
	if failures == 0 {
		return 1.0
	}
	return float64(successes) / float64(successes+failures)
}
