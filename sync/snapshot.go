// Package sync implements the replication engine of the creator node: the
// export snapshot format, the per-wallet advisory locks, the secondary sync
// health counters, and the coordinator that reconciles a remote node's
// exported state into local storage.
package sync

import (
	"github.com/AudiusProject/creator-node/dbs/userstate"
)

// ClockInfo describes which slice of a user's history an export contains.
// When LocalClockMax exceeds RequestedClockRangeMax, more data remains and the
// caller must re-export with a higher clock_range_min.
type ClockInfo struct {
	RequestedClockRangeMin int `json:"requestedClockRangeMin"`
	RequestedClockRangeMax int `json:"requestedClockRangeMax"`
	LocalClockMax          int `json:"localClockMax"`
}

// ExportedCNodeUser is one user's state slice in an export payload. The
// embedded header's Clock is pinned to the max clock actually included, not
// the true local maximum - inspect ClockInfo.LocalClockMax for that.
// ClockInfo is a pointer so a payload that omits it is distinguishable from
// one whose range starts at zero.
type ExportedCNodeUser struct {
	userstate.CNodeUser
	AudiusUsers  []userstate.AudiusUser  `json:"audiusUsers"`
	Tracks       []userstate.Track       `json:"tracks"`
	Files        []userstate.File        `json:"files"`
	ClockRecords []userstate.ClockRecord `json:"clockRecords"`
	ClockInfo    *ClockInfo              `json:"clockInfo"`
}

// ExportPayload is the transportable snapshot returned by /export, keyed on
// cnodeUserUUID.
type ExportPayload struct {
	CNodeUsers map[string]*ExportedCNodeUser `json:"cnodeUsers"`
}
