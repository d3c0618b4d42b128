package common

import (
	"time"
)

/*Timestamp - just a wrapper to control the json encoding */
type Timestamp int64

/*Now - current datetime */
func Now() Timestamp {
	return Timestamp(time.Now().Unix())
}

/*ToTime - converts the common.Timestamp to time.Time */
func ToTime(ts Timestamp) time.Time {
	return time.Unix(int64(ts), 0)
}

// DateKey formats t as the YYYY-MM-DD bucket used by daily counters.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
