package index

import "time"

// nowISO8601 formats the current UTC time as the DB's "timestamp" field.
func nowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
