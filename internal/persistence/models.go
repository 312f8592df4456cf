package persistence

import "github.com/example/attendance-tracker/internal/attendance"

// RecordFilter narrows attendance record listings. Zero values match everything.
type RecordFilter struct {
	Status attendance.Status
	ZoneID string
}

// Matches reports whether rec satisfies the filter.
func (f RecordFilter) Matches(rec attendance.Record) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.ZoneID != "" && rec.CurrentZoneID != f.ZoneID {
		return false
	}
	return true
}
