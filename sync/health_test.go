package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSuccessRateDefaultsToHealthy(t *testing.T) {
	cache, _ := newTestCache(t)
	tracker := NewHealthTracker(cache, 90*24*time.Hour)

	// No observations at all: optimistic 1.0 for every listed secondary.
	rates, err := tracker.ComputeUserSecondarySyncSuccessRates("0xw1", []string{"http://a", "http://b"})
	require.NoError(t, err)
	require.Len(t, rates, 2)
	for _, m := range rates {
		require.EqualValues(t, 0, m.SuccessCount)
		require.EqualValues(t, 0, m.FailureCount)
		require.Equal(t, 1.0, m.SuccessRate)
	}
}

func TestComputeUserSecondarySyncSuccessRates(t *testing.T) {
	cache, _ := newTestCache(t)
	tracker := NewHealthTracker(cache, 90*24*time.Hour)

	tracker.RecordSuccess("http://a", "0xw1", SyncTypeRecurring)
	tracker.RecordSuccess("http://a", "0xw1", SyncTypeRecurring)
	tracker.RecordSuccess("http://a", "0xw1", SyncTypeManual)
	tracker.RecordFailure("http://a", "0xw1", SyncTypeRecurring)
	tracker.RecordFailure("http://b", "0xw1", SyncTypeRecurring)
	// Another wallet's outcomes must not bleed in.
	tracker.RecordFailure("http://a", "0xw2", SyncTypeRecurring)
	// A secondary no longer in the replica set is not reported.
	tracker.RecordFailure("http://gone", "0xw1", SyncTypeRecurring)

	rates, err := tracker.ComputeUserSecondarySyncSuccessRates("0xw1", []string{"http://a", "http://b"})
	require.NoError(t, err)
	require.Len(t, rates, 2)

	require.EqualValues(t, 3, rates["http://a"].SuccessCount)
	require.EqualValues(t, 1, rates["http://a"].FailureCount)
	require.Equal(t, 0.75, rates["http://a"].SuccessRate)

	require.EqualValues(t, 0, rates["http://b"].SuccessCount)
	require.EqualValues(t, 1, rates["http://b"].FailureCount)
	require.Equal(t, 0.0, rates["http://b"].SuccessRate)
}

func TestBatchComputeUserSecondarySyncSuccessRates(t *testing.T) {
	cache, _ := newTestCache(t)
	tracker := NewHealthTracker(cache, 90*24*time.Hour)

	tracker.RecordSuccess("http://a", "0xw1", SyncTypeRecurring)
	tracker.RecordFailure("http://a", "0xw2", SyncTypeRecurring)
	tracker.RecordSuccess("http://b", "0xw2", SyncTypeRecurring)

	all, err := tracker.BatchComputeUserSecondarySyncSuccessRates(map[string][]string{
		"0xw1": {"http://a"},
		"0xw2": {"http://a", "http://b"},
	})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 1.0, all["0xw1"]["http://a"].SuccessRate)
	require.Equal(t, 0.0, all["0xw2"]["http://a"].SuccessRate)
	require.Equal(t, 1.0, all["0xw2"]["http://b"].SuccessRate)
}

func TestFailureCountToday(t *testing.T) {
	cache, _ := newTestCache(t)
	tracker := NewHealthTracker(cache, 90*24*time.Hour)

	count, err := tracker.FailureCountToday("http://a", "0xw1", SyncTypeRecurring)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)

	tracker.RecordFailure("http://a", "0xw1", SyncTypeRecurring)
	tracker.RecordFailure("http://a", "0xw1", SyncTypeRecurring)
	tracker.RecordFailure("http://a", "0xw1", SyncTypeManual)

	count, err = tracker.FailureCountToday("http://a", "0xw1", SyncTypeRecurring)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestHealthCountersExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	tracker := NewHealthTracker(cache, time.Hour)

	tracker.RecordFailure("http://a", "0xw1", SyncTypeRecurring)
	mr.FastForward(2 * time.Hour)

	rates, err := tracker.ComputeUserSecondarySyncSuccessRates("0xw1", []string{"http://a"})
	require.NoError(t, err)
	require.Equal(t, 1.0, rates["http://a"].SuccessRate)
}
