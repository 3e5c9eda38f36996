package store

import "time"

// now returns the current time at the precision PostgreSQL stores, so a
// record returned from a write matches the same record read back later.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
