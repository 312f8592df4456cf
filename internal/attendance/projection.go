package attendance

import "time"

// ProjectedMinutes is the total the record would have if it checked out at
// now. It is display-only and never persisted.
func ProjectedMinutes(rec Record, zone *ZoneRule, now, referenceDate time.Time) int {
	return projectedMinutes(Accountant{}, rec, zone, now, referenceDate)
}

// Project computes ProjectedMinutes with the machine's policy and time zone.
// rule is the DailyRule of the record's reference date.
func (m *Machine) Project(rec Record, rule *DailyRule, now time.Time) int {
	if !rec.Inside() || rec.LastCheckIn == nil {
		return rec.TotalRecognizedMinutes
	}
	zone, _ := rule.Zone(rec.CurrentZoneID)
	return projectedMinutes(m.accountant, rec, zone, now, rec.LastCheckIn.In(m.location))
}

func projectedMinutes(a Accountant, rec Record, zone *ZoneRule, now, referenceDate time.Time) int {
	if !rec.Inside() || rec.LastCheckIn == nil {
		return rec.TotalRecognizedMinutes
	}
	return rec.TotalRecognizedMinutes + a.Recognize(*rec.LastCheckIn, now, zone, referenceDate).RecognizedMinutes
}
